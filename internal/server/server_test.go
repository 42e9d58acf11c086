package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/rigavatar/internal/bus"
	"github.com/normanking/rigavatar/internal/logging"
	"github.com/normanking/rigavatar/internal/rig"
)

const sample = `{"head":{"degrees":{"x":1,"y":2,"z":3},"y":0.1},"pupil":{"x":0,"y":0},"eye":{"l":0.9,"r":0.9},"mouth":{"x":0.2,"y":0.4}}`

func newServer(opts Options) (*Server, *rig.Feed) {
	opts.Logger = zerolog.Nop()
	feed := rig.NewFeed()
	return New(feed, opts), feed
}

func do(t *testing.T, s *Server, method, target, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHealth(t *testing.T) {
	s, feed := newServer(Options{})
	feed.Push(rig.State{})

	code, body := do(t, s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["received"])
	assert.Equal(t, float64(0), health["producers"])
	assert.Contains(t, health, "lastSample")
}

func TestPostRig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", sample, http.StatusAccepted},
		{"malformed", `{"head":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, feed := newServer(Options{})
			code, _ := do(t, s, http.MethodPost, "/api/rig", tt.body)
			assert.Equal(t, tt.want, code)

			st := feed.Take()
			if tt.want == http.StatusAccepted {
				require.NotNil(t, st)
				assert.Equal(t, float32(0.4), st.Mouth.Y)
			} else {
				assert.Nil(t, st)
			}
		})
	}
}

func TestLogs(t *testing.T) {
	var gotLimit int
	s, _ := newServer(Options{History: func(limit int) []logging.LogEntry {
		gotLimit = limit
		return []logging.LogEntry{{Level: "info", Component: "driver", Message: "frame"}}
	}})

	code, body := do(t, s, http.MethodGet, "/api/logs?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, gotLimit)

	var entries []logging.LogEntry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "driver", entries[0].Component)

	code, _ = do(t, s, http.MethodGet, "/api/logs?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConfig(t *testing.T) {
	s, _ := newServer(Options{})
	code, _ := do(t, s, http.MethodGet, "/api/config", "")
	assert.Equal(t, http.StatusNotFound, code)

	s, _ = newServer(Options{Config: func() any { return map[string]float32{"scale": 1} }})
	code, body := do(t, s, http.MethodGet, "/api/config", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"scale":1}`, string(body))
}

func TestMotion(t *testing.T) {
	b := bus.NewEventBus()
	requested := make(chan string, 1)
	b.Subscribe(bus.EventMotionRequested, func(e bus.Event) { requested <- e.Data["name"].(string) })

	s, _ := newServer(Options{
		Bus:       b,
		HasMotion: func(name string) bool { return name == "Tap_0" },
	})

	code, _ := do(t, s, http.MethodPost, "/api/motion/Tap_0", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "Tap_0", <-s.Motions())

	select {
	case name := <-requested:
		assert.Equal(t, "Tap_0", name)
	case <-time.After(time.Second):
		t.Fatal("motion event not published")
	}

	code, _ = do(t, s, http.MethodPost, "/api/motion/Wave_0", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMotion_QueueFull(t *testing.T) {
	s, _ := newServer(Options{})
	for i := 0; i < cap(s.motions); i++ {
		code, _ := do(t, s, http.MethodPost, "/api/motion/Idle_0", "")
		require.Equal(t, http.StatusAccepted, code)
	}
	code, _ := do(t, s, http.MethodPost, "/api/motion/Idle_0", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestWebSocketIngest(t *testing.T) {
	b := bus.NewEventBus()
	events := make(chan bus.EventType, 4)
	b.SubscribeMultiple([]bus.EventType{bus.EventRigConnected, bus.EventRigDisconnected}, func(e bus.Event) {
		events <- e.Type
	})

	s, feed := newServer(Options{Bus: b})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	ws, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/rig", nil)
	require.NoError(t, err)

	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte(`not json`)))
	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte(sample)))

	assert.Eventually(t, func() bool {
		p := s.Producers()
		return len(p) == 1 && p[0].Samples == 1
	}, 2*time.Second, 10*time.Millisecond)

	st := feed.Take()
	require.NotNil(t, st)
	assert.Equal(t, float32(2), st.Head.Degrees.Y)
	assert.Equal(t, uint64(1), s.rejected.Load())

	require.NoError(t, ws.WriteMessage(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))
	ws.Close()

	assert.Eventually(t, func() bool { return len(s.Producers()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []bus.EventType{bus.EventRigConnected, bus.EventRigDisconnected},
		[]bus.EventType{<-events, <-events})
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	s, _ := newServer(Options{})
	code, _ := do(t, s, http.MethodGet, "/ws/rig", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestLipSync(t *testing.T) {
	s, _ := newServer(Options{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.Zero(t, s.LipSync())

	tests := []struct {
		name string
		body string
		code int
		want float32
	}{
		{"value", `{"value":0.6}`, http.StatusAccepted, 0.6},
		{"clamped", `{"value":1.5}`, http.StatusAccepted, 1},
		{"missing", `{}`, http.StatusBadRequest, 1},
		{"malformed", `{"value":"open"}`, http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, s, http.MethodPost, "/api/lipsync", tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.want, s.LipSync())
		})
	}

	now = now.Add(lipSyncHold + time.Millisecond)
	assert.Zero(t, s.LipSync())
}

func TestEventStream(t *testing.T) {
	b := bus.NewEventBus()
	s, _ := newServer(Options{Bus: b})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	ws, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/events", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return s.Watchers() == 1 }, 2*time.Second, 10*time.Millisecond)

	b.PublishSync(bus.Event{Type: bus.EventAssetsReloaded, Data: map[string]any{"motions": 2}})
	s.PublishLog(logging.LogEntry{Level: "warn", Component: "assets", Message: "texture skipped"})

	got := map[string]Message{}
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 2; i++ {
		var m struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&m))
		got[m.Type] = Message{Type: m.Type, Data: m.Data}
	}

	require.Contains(t, got, string(bus.EventAssetsReloaded))
	assert.JSONEq(t, `{"motions":2}`, string(got[string(bus.EventAssetsReloaded)].Data.(json.RawMessage)))

	require.Contains(t, got, EventLogEntry)
	var entry logging.LogEntry
	require.NoError(t, json.Unmarshal(got[EventLogEntry].Data.(json.RawMessage), &entry))
	assert.Equal(t, "texture skipped", entry.Message)

	ws.Close()
	assert.Eventually(t, func() bool { return s.Watchers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcast_DropsForSlowWatcher(t *testing.T) {
	s, _ := newServer(Options{})
	s.watchers["slow"] = make(chan Message, 1)

	s.PublishLog(logging.LogEntry{Message: "one"})
	s.PublishLog(logging.LogEntry{Message: "two"})

	assert.Equal(t, uint64(1), s.droppedEvents.Load())
}
