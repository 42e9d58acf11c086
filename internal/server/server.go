// Package server receives rig states over websocket and HTTP and exposes
// health, log history and configuration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/rigavatar/internal/bus"
	"github.com/normanking/rigavatar/internal/logging"
	"github.com/normanking/rigavatar/internal/rig"
)

// ErrBusy is returned when the motion request queue is full.
var ErrBusy = errors.New("motion queue full")

// lipSyncHold is how long a posted lip-sync value stays in effect.
const lipSyncHold = 500 * time.Millisecond

// Options configures the server. Every field is optional.
type Options struct {
	Logger zerolog.Logger
	// Bus events are relayed to /ws/events watchers.
	Bus *bus.EventBus
	// History serves GET /api/logs when set.
	History func(limit int) []logging.LogEntry
	// Config serves GET /api/config when set.
	Config func() any
	// HasMotion validates POST /api/motion/:name when set.
	HasMotion func(name string) bool
}

// Producer is one connected rig-state source.
type Producer struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	Connected time.Time `json:"connected"`
	Samples   uint64    `json:"samples"`
}

// Server is the network surface of a running avatar.
type Server struct {
	app  *fiber.App
	feed *rig.Feed
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	mu        sync.RWMutex
	producers map[string]*Producer
	lipValue  float32
	lipAt     time.Time

	watchMu       sync.RWMutex
	watchers      map[string]chan Message
	droppedEvents atomic.Uint64

	motions  chan string
	rejected atomic.Uint64
}

func New(feed *rig.Feed, opts Options) *Server {
	s := &Server{
		feed:      feed,
		opts:      opts,
		log:       opts.Logger,
		now:       time.Now,
		producers: make(map[string]*Producer),
		watchers:  make(map[string]chan Message),
		motions:   make(chan string, 8),
	}
	s.relayBus()

	app := fiber.New(fiber.Config{
		AppName:               "rigavatar",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/logs", s.handleLogs)
	api.Get("/config", s.handleConfig)
	api.Get("/producers", s.handleProducers)
	api.Post("/rig", s.handlePostRig)
	api.Post("/motion/:name", s.handleMotion)
	api.Post("/lipsync", s.handleLipSync)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/rig", websocket.New(s.handleRig))
	app.Get("/ws/events", websocket.New(s.handleEvents))

	s.app = app
	return s
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App { return s.app }

// Motions delivers motion names requested over HTTP. The render loop drains
// it and starts them.
func (s *Server) Motions() <-chan string { return s.motions }

func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("ingest server listening")
	return s.app.Listen(addr)
}

// Serve runs on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("ingest server listening")
	return s.app.Listener(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// LipSync returns the last posted mouth value, or 0 once it is older than
// lipSyncHold.
func (s *Server) LipSync() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lipAt.IsZero() || s.now().Sub(s.lipAt) > lipSyncHold {
		return 0
	}
	return s.lipValue
}

// Producers lists the connected rig-state sources.
func (s *Server) Producers() []Producer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Producer, 0, len(s.producers))
	for _, p := range s.producers {
		out = append(out, *p)
	}
	return out
}

func (s *Server) publish(t bus.EventType, data map[string]any) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(bus.Event{Type: t, Data: data})
	}
}

// accept validates and hands a decoded sample to the feed.
func (s *Server) accept(data []byte) error {
	var st rig.State
	if err := json.Unmarshal(data, &st); err != nil {
		s.rejected.Add(1)
		return err
	}
	if err := st.Validate(); err != nil {
		s.rejected.Add(1)
		return err
	}
	s.feed.Push(st)
	return nil
}

func (s *Server) handleRig(c *websocket.Conn) {
	p := &Producer{
		ID:        uuid.NewString(),
		Remote:    c.RemoteAddr().String(),
		Connected: time.Now(),
	}

	s.mu.Lock()
	s.producers[p.ID] = p
	count := len(s.producers)
	s.mu.Unlock()

	s.log.Info().Str("id", p.ID).Str("remote", p.Remote).Int("producers", count).Msg("rig producer connected")
	s.publish(bus.EventRigConnected, map[string]any{"id": p.ID})

	defer func() {
		s.mu.Lock()
		delete(s.producers, p.ID)
		s.mu.Unlock()
		s.log.Info().Str("id", p.ID).Msg("rig producer disconnected")
		s.publish(bus.EventRigDisconnected, map[string]any{"id": p.ID})
	}()

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Str("id", p.ID).Msg("rig read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := s.accept(data); err != nil {
			s.log.Debug().Err(err).Str("id", p.ID).Msg("rig sample rejected")
			continue
		}
		s.mu.Lock()
		p.Samples++
		s.mu.Unlock()
	}
}

func (s *Server) handlePostRig(c *fiber.Ctx) error {
	if err := s.accept(c.Body()); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	received, dropped := s.feed.Stats()
	s.mu.RLock()
	producers := len(s.producers)
	s.mu.RUnlock()

	resp := fiber.Map{
		"status":    "ok",
		"producers": producers,
		"received":  received,
		"dropped":   dropped,
		"rejected":  s.rejected.Load(),
		"watchers":  s.Watchers(),
	}
	if last := s.feed.LastReceived(); !last.IsZero() {
		resp["lastSample"] = last.UTC().Format(time.RFC3339Nano)
	}
	return c.JSON(resp)
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	if s.opts.History == nil {
		return c.JSON([]logging.LogEntry{})
	}
	limit := 100
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
		}
		limit = n
	}
	return c.JSON(s.opts.History(limit))
}

func (s *Server) handleConfig(c *fiber.Ctx) error {
	if s.opts.Config == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.opts.Config())
}

func (s *Server) handleProducers(c *fiber.Ctx) error {
	return c.JSON(s.Producers())
}

func (s *Server) handleMotion(c *fiber.Ctx) error {
	name := c.Params("name")
	if s.opts.HasMotion != nil && !s.opts.HasMotion(name) {
		return fiber.NewError(fiber.StatusNotFound, "unknown motion "+name)
	}
	select {
	case s.motions <- name:
	default:
		return fiber.NewError(fiber.StatusServiceUnavailable, ErrBusy.Error())
	}
	s.publish(bus.EventMotionRequested, map[string]any{"name": name})
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleLipSync(c *fiber.Ctx) error {
	var body struct {
		Value *float32 `json:"value"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if body.Value == nil {
		return fiber.NewError(fiber.StatusBadRequest, "value is required")
	}
	s.mu.Lock()
	s.lipValue = min(max(*body.Value, 0), 1)
	s.lipAt = s.now()
	s.mu.Unlock()
	return c.SendStatus(fiber.StatusAccepted)
}
