// Command rigfeed replays a rig capture into a running avatar over its
// websocket ingest endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/rigavatar/internal/rig"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8765/ws/rig", "ingest websocket URL")
	capture := flag.String("capture", "", "rig capture file (JSON lines)")
	loop := flag.Bool("loop", false, "restart the capture when it ends")
	speed := flag.Float64("speed", 1, "playback speed multiplier")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("app", "rigfeed").Logger()

	if err := run(*url, *capture, *loop, *speed, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("replay failed")
		os.Exit(1)
	}
}

func run(url, capture string, loop bool, speed float64, log zerolog.Logger) error {
	if capture == "" {
		return fmt.Errorf("-capture is required")
	}
	f, err := os.Open(capture)
	if err != nil {
		return err
	}
	samples, err := rig.ReadCapture(f)
	f.Close()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newStreamer(url, samples, log)
	s.loop = loop
	if speed > 0 {
		s.speed = speed
	}
	return s.run(ctx)
}

// streamer sends capture samples at their recorded pace. A dropped
// connection is retried with exponential backoff and playback resumes at the
// sample that failed.
type streamer struct {
	url     string
	samples []rig.Sample
	loop    bool
	speed   float64
	log     zerolog.Logger
	dialer  *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration

	pos  int
	sent int
}

func newStreamer(url string, samples []rig.Sample, log zerolog.Logger) *streamer {
	return &streamer{
		url:        url,
		samples:    samples,
		speed:      1,
		log:        log,
		dialer:     websocket.DefaultDialer,
		minBackoff: 3 * time.Second,
		maxBackoff: 60 * time.Second,
	}
}

func (s *streamer) run(ctx context.Context) error {
	if len(s.samples) == 0 {
		return errors.New("capture is empty")
	}
	backoff := s.minBackoff
	failures := 0

	for {
		sent := s.sent
		err := s.session(ctx)
		if err == nil {
			s.log.Info().Int("sent", s.sent).Msg("capture finished")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.sent > sent {
			backoff = s.minBackoff
			failures = 0
		}
		failures++
		if failures >= 3 {
			s.log.Debug().Err(err).Int("failures", failures).Msg("ingest still unavailable")
			backoff = s.maxBackoff
		} else {
			s.log.Warn().Err(err).Msg("connection failed, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

// session plays from the current position over one connection. It returns
// nil once a non-looping capture is fully sent.
func (s *streamer) session(ctx context.Context) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return fmt.Errorf("dial %s: %s: %w", s.url, resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()
	s.log.Info().Str("url", s.url).Int("from", s.pos).Msg("connected")

	for {
		if err := s.play(ctx, conn); err != nil {
			return err
		}
		if !s.loop {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "capture finished")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return nil
		}
		s.pos = 0
	}
}

func (s *streamer) play(ctx context.Context, conn *websocket.Conn) error {
	origin := s.samples[s.pos].At
	start := time.Now()

	for ; s.pos < len(s.samples); s.pos++ {
		sample := s.samples[s.pos]
		due := start.Add(time.Duration(float64(sample.At-origin) / s.speed))
		if wait := time.Until(due); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		// Frames where the solver produced nothing are simply not sent.
		if sample.State == nil {
			continue
		}
		if err := conn.WriteJSON(sample.State); err != nil {
			return fmt.Errorf("write sample %d: %w", s.pos, err)
		}
		s.sent++
	}
	return nil
}
