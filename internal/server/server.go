// Package server exposes the agent to Hubs: a WebSocket endpoint for
// the deploy protocol plus health and metrics routes. One Hub at a
// time holds the connection slot; pairing decides who gets it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/events"
	"github.com/capydeploy/agent/internal/metrics"
	"github.com/capydeploy/agent/internal/pairing"
	"github.com/capydeploy/agent/internal/steam"
	"github.com/capydeploy/agent/internal/upload"
	"github.com/capydeploy/agent/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AgentState is the live identity the wire protocol serves. Handlers
// read it per message so renames and setting changes apply to open
// connections without a restart.
type AgentState interface {
	Info() protocol.AgentInfo
	InstallPath() string
}

// SteamController is the slice of Steam control the protocol needs.
type SteamController interface {
	Users() ([]protocol.SteamUser, error)
	Restart() error
}

// Pinger reports storage health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HubInfo identifies the Hub currently holding the connection slot.
type HubInfo struct {
	HubID   string `json:"hubId"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Options carries the server's dependencies.
type Options struct {
	Addr    string
	State   AgentState
	Pairing *pairing.Manager
	Uploads *upload.Registry
	Tracker *steam.Tracker
	Steam   SteamController
	Events  *events.Publisher
	Bus     *eventbus.Bus
	Pinger  Pinger
	Logger  *slog.Logger
}

// Server is the Hub-facing endpoint.
type Server struct {
	addr    string
	state   AgentState
	pairing *pairing.Manager
	uploads *upload.Registry
	tracker *steam.Tracker
	steam   SteamController
	events  *events.Publisher
	bus     *eventbus.Bus
	pinger  Pinger
	logger  *slog.Logger

	mux       *chi.Mux
	startTime time.Time

	mu    sync.Mutex
	hub   *hubConn // authorized Hub holding the slot, nil when vacant
	conns map[*hubConn]struct{}
}

// New creates a server. It does not listen until Run.
func New(opts Options) *Server {
	s := &Server{
		addr:      opts.Addr,
		state:     opts.State,
		pairing:   opts.Pairing,
		uploads:   opts.Uploads,
		tracker:   opts.Tracker,
		steam:     opts.Steam,
		events:    opts.Events,
		bus:       opts.Bus,
		pinger:    opts.Pinger,
		logger:    opts.Logger.With("component", "server"),
		startTime: time.Now(),
		conns:     make(map[*hubConn]struct{}),
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Get("/healthz", s.handleHealthz)
	mux.Get("/readyz", s.handleReadyz)
	mux.Get("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	s.mux = mux
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled or the listener fails. On
// cancellation it shuts the listener down gracefully and closes any
// open Hub connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}

	fwdCtx, stopFwd := context.WithCancel(context.Background())
	defer stopFwd()
	go s.forwardEvents(fwdCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown failed", "error", err)
		}
		s.closeAll()
		return nil
	case err := <-errCh:
		return err
	}
}

// ConnectedHub returns the Hub holding the slot, if any.
func (s *Server) ConnectedHub() (HubInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub == nil {
		return HubInfo{}, false
	}
	return HubInfo{HubID: s.hub.hubID, Name: s.hub.hubName, Version: s.hub.hubVersion}, true
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.state.Info().AcceptConnections {
		http.Error(w, "agent is not accepting connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newHubConn(conn)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	metrics.HubConnectionsActive.Inc()
	s.logger.Info("hub connection opened", "remote", conn.RemoteAddr().String())

	go c.writePump(s.logger)
	s.readLoop(c)
}

// authorize marks c authorized and hands it the slot. A previous
// holder still online is superseded and closed.
func (s *Server) authorize(c *hubConn) {
	c.authorized = true

	s.mu.Lock()
	prev := s.hub
	var prevName string
	if prev != nil {
		prevName = prev.hubName
	}
	s.hub = c
	s.mu.Unlock()

	if prev != nil && prev != c {
		s.logger.Info("hub reconnected, closing previous connection", "hub", prevName)
		prev.close()
	}
}

// teardown runs when a read loop exits: stop the writer, release the
// slot if this connection held it, and announce the disconnect.
func (s *Server) teardown(c *hubConn) {
	c.close()
	<-c.done

	s.mu.Lock()
	delete(s.conns, c)
	held := s.hub == c
	if held {
		s.hub = nil
	}
	s.mu.Unlock()
	metrics.HubConnectionsActive.Dec()

	if held {
		s.logger.Info("hub disconnected", "hub", c.hubName)
		s.publish(eventbus.HubDisconnected, struct{}{})
	}
	s.logger.Info("hub connection closed", "remote", c.conn.RemoteAddr().String())
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*hubConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// forwardEvents pushes operation and progress events to the connected
// Hub so it can render install progress remotely.
func (s *Server) forwardEvents(ctx context.Context) {
	ch := s.bus.Subscribe(eventbus.OperationEvent, eventbus.UploadProgress)
	defer s.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.mu.Lock()
			c := s.hub
			s.mu.Unlock()
			if c == nil {
				continue
			}
			s.send(c, &protocol.Message{
				ID:      uuid.New().String(),
				Type:    protocol.MessageType(ev.Type),
				Payload: ev.Data,
			})
		}
	}
}

// send marshals msg and queues it on c's writer.
func (s *Server) send(c *hubConn, msg *protocol.Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode message", "type", msg.Type, "error", err)
		return
	}
	if !c.enqueue(frame) {
		s.logger.Warn("send queue full, dropping message", "type", msg.Type)
	}
}

func (s *Server) reply(c *hubConn, req *protocol.Message, msgType protocol.MessageType, payload any) {
	msg, err := req.Reply(msgType, payload)
	if err != nil {
		s.logger.Error("encode reply", "type", msgType, "error", err)
		return
	}
	s.send(c, msg)
}

func (s *Server) sendErr(c *hubConn, id string, code int, message string) {
	s.send(c, protocol.NewErrorMessage(id, code, message))
}

func (s *Server) publish(name string, data any) {
	if err := s.events.Publish(name, data); err != nil {
		s.logger.Warn("event publish failed", "event", name, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
