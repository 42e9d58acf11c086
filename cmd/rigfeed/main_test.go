package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/rigavatar/internal/rig"
)

// sink is an ingest endpoint recording received states. The first
// dropAfter messages of the first connection are accepted before the
// connection is closed.
type sink struct {
	mu        sync.Mutex
	states    []rig.State
	conns     int
	dropAfter int
}

func (k *sink) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		k.mu.Lock()
		k.conns++
		first := k.conns == 1
		k.mu.Unlock()

		received := 0
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var st rig.State
			if err := json.Unmarshal(data, &st); err != nil {
				t.Errorf("bad sample: %v", err)
				return
			}
			k.mu.Lock()
			k.states = append(k.states, st)
			k.mu.Unlock()

			received++
			if first && k.dropAfter > 0 && received == k.dropAfter {
				return
			}
		}
	})
}

func (k *sink) received() []rig.State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]rig.State(nil), k.states...)
}

func samples(n int) []rig.Sample {
	out := make([]rig.Sample, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, rig.Sample{
			At:    time.Duration(i) * 5 * time.Millisecond,
			State: &rig.State{Mouth: rig.Vec2{Y: float32(i)}},
		})
	}
	// A frame without a state is skipped.
	out = append(out, rig.Sample{At: time.Duration(n) * 5 * time.Millisecond})
	return out
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamer_SendsCapture(t *testing.T) {
	k := &sink{}
	srv := httptest.NewServer(k.handler(t))
	defer srv.Close()

	s := newStreamer(wsURL(srv), samples(4), zerolog.Nop())
	require.NoError(t, s.run(context.Background()))
	assert.Equal(t, 4, s.sent)

	assert.Eventually(t, func() bool { return len(k.received()) == 4 }, time.Second, 5*time.Millisecond)
	got := k.received()
	for i, st := range got {
		assert.Equal(t, float32(i), st.Mouth.Y)
	}
}

func TestStreamer_ResumesAfterDrop(t *testing.T) {
	k := &sink{dropAfter: 2}
	srv := httptest.NewServer(k.handler(t))
	defer srv.Close()

	s := newStreamer(wsURL(srv), samples(20), zerolog.Nop())
	s.minBackoff = 10 * time.Millisecond
	s.speed = 0.5

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.run(ctx))

	assert.Eventually(t, func() bool {
		got := k.received()
		return len(got) > 0 && got[len(got)-1].Mouth.Y == 19
	}, time.Second, 5*time.Millisecond)

	k.mu.Lock()
	conns := k.conns
	k.mu.Unlock()
	assert.GreaterOrEqual(t, conns, 2)
}

func TestStreamer_Cancel(t *testing.T) {
	s := newStreamer("ws://127.0.0.1:1/ws/rig", samples(1), zerolog.Nop())
	s.minBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.run(ctx), context.DeadlineExceeded)
}

func TestStreamer_Empty(t *testing.T) {
	s := newStreamer("ws://unused", nil, zerolog.Nop())
	assert.Error(t, s.run(context.Background()))
}
