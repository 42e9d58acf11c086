package server

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/normanking/rigavatar/internal/bus"
	"github.com/normanking/rigavatar/internal/logging"
)

// EventLogEntry is the message type of relayed log entries.
const EventLogEntry = "log.entry"

// watcherBuffer is how many messages a slow watcher may fall behind before
// further messages are dropped for it.
const watcherBuffer = 64

// Message is one frame sent to /ws/events watchers.
type Message struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

func (s *Server) relayBus() {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.SubscribeMultiple(bus.AllEvents, func(e bus.Event) {
		s.broadcast(Message{Type: string(e.Type), Time: s.now(), Data: e.Data})
	})
}

// PublishLog relays a log entry to event watchers. It is meant to be the
// logger's SetOnLog callback.
func (s *Server) PublishLog(entry logging.LogEntry) {
	s.broadcast(Message{Type: EventLogEntry, Time: s.now(), Data: entry})
}

// Watchers reports how many /ws/events clients are connected.
func (s *Server) Watchers() int {
	s.watchMu.RLock()
	defer s.watchMu.RUnlock()
	return len(s.watchers)
}

func (s *Server) broadcast(m Message) {
	s.watchMu.RLock()
	defer s.watchMu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- m:
		default:
			s.droppedEvents.Add(1)
		}
	}
}

func (s *Server) handleEvents(c *websocket.Conn) {
	id := uuid.NewString()
	out := make(chan Message, watcherBuffer)

	s.watchMu.Lock()
	s.watchers[id] = out
	s.watchMu.Unlock()
	defer func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}()

	// Watchers only listen; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case m := <-out:
			if err := c.WriteJSON(m); err != nil {
				s.log.Debug().Err(err).Str("id", id).Msg("event watcher write failed")
				return
			}
		}
	}
}
