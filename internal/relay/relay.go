// Package relay bridges embedded chat widgets to a handoff over a
// websocket. Each connection gets its own watcher, so the browser receives
// pushed frames instead of polling the backend itself.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/config"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/handoff"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// Frame types.
const (
	FrameConnected = "connected"
	FrameMessages  = "messages"
	FrameStatus    = "status"
	FrameStalled   = "stalled"
	FrameRecovered = "recovered"
	FrameError     = "error"
)

const writeTimeout = 10 * time.Second

// Frame is pushed to the widget.
type Frame struct {
	Type         string               `json:"type"`
	ConnectionID string               `json:"connectionId,omitempty"`
	HandoffID    string               `json:"handoffId,omitempty"`
	Messages     []transcript.Message `json:"messages,omitempty"`
	Status       string               `json:"status,omitempty"`
	AgentEmail   string               `json:"agentEmail,omitempty"`
	Text         string               `json:"text,omitempty"`
}

// Inbound is sent by the widget.
type Inbound struct {
	Text string `json:"text"`
}

// Server upgrades widget connections.
type Server struct {
	client         *api.Client
	opts           handoff.Options
	allowedOrigins map[string]bool
	logger         *slog.Logger
	meter          metric.Meter
	upgrader       websocket.Upgrader

	wg sync.WaitGroup
}

// NewServer creates a relay using cfg's polling settings and origin list.
func NewServer(client *api.Client, cfg config.Config, logger *slog.Logger, meter metric.Meter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	origins := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	s := &Server{
		client: client,
		opts: handoff.Options{
			Interval:    cfg.PollInterval,
			MaxInterval: cfg.PollMaxInterval,
			Timeout:     cfg.PollTimeout,
			StallAfter:  cfg.StallAfter,
		},
		allowedOrigins: origins,
		logger:         logger.With("component", "relay"),
		meter:          meter,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Handler returns the relay's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

// Wait blocks until all connections have been torn down.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return s.allowedOrigins[origin]
}

// ServeHTTP serves one widget connection for ?handoff=ID.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handoffID := r.URL.Query().Get("handoff")
	if handoffID == "" {
		http.Error(w, "missing handoff parameter", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.wg.Add(1)
	defer s.wg.Done()

	connID := uuid.New().String()
	logger := s.logger.With("connection_id", connID, "handoff_id", handoffID)
	logger.Info("widget connected")
	defer logger.Info("widget disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan Frame, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, out, logger)
	}()

	send := func(f Frame) {
		select {
		case out <- f:
		case <-ctx.Done():
		}
	}
	send(Frame{Type: FrameConnected, ConnectionID: connID, HandoffID: handoffID})

	store := transcript.NewStore()
	watcher := handoff.NewWatcher(handoffID, store, handoff.ClientFetch(s.client), transcript.SenderUser, s.opts, logger, s.meter)
	watcher.OnEvent = func(ev handoff.Event) {
		send(eventFrame(handoffID, ev))
	}
	watcher.Start(ctx)

	s.readLoop(ctx, conn, handoffID, send, logger)

	cancel()
	watcher.Stop()
	<-writerDone
}

func eventFrame(handoffID string, ev handoff.Event) Frame {
	f := Frame{
		HandoffID:  handoffID,
		Messages:   ev.Messages,
		Status:     string(ev.Session.Status),
		AgentEmail: ev.Session.AssignedAgentEmail,
	}
	switch ev.Kind {
	case handoff.EventMessages:
		f.Type = FrameMessages
	case handoff.EventStatus:
		f.Type = FrameStatus
	case handoff.EventStalled:
		f.Type = FrameStalled
		if ev.Err != nil {
			f.Text = ev.Err.Error()
		}
	case handoff.EventRecovered:
		f.Type = FrameRecovered
	}
	return f
}

// writeLoop is the connection's only writer.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan Frame, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case f := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				logger.Warn("failed to write frame", "error", err)
				cancel()
				return
			}
		}
	}
}

// readLoop forwards widget messages to the handoff until the connection
// closes.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, handoffID string, send func(Frame), logger *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			send(Frame{Type: FrameError, Text: "Invalid message format. Send JSON with a 'text' field."})
			continue
		}
		if in.Text == "" {
			continue
		}

		if err := s.client.SendClientMessage(ctx, handoffID, in.Text); err != nil {
			logger.Error("failed to forward message", "error", err)
			send(Frame{Type: FrameError, Text: "Your message could not be delivered. Please try again."})
		}
	}
}
