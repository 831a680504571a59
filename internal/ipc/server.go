package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/pkg/protocol"
)

// Server listens on a Unix socket and serves control requests.
type Server struct {
	path       string
	listener   net.Listener
	controller Controller
	bus        *eventbus.Bus
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	done    chan struct{}
}

// NewServer creates an IPC server on socketPath.
func NewServer(socketPath string, controller Controller, bus *eventbus.Bus, logger *slog.Logger) *Server {
	return &Server{
		path:       socketPath,
		controller: controller,
		bus:        bus,
		logger:     logger.With("component", "ipc"),
		clients:    make(map[net.Conn]struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening. Non-blocking.
func (s *Server) Start() error {
	// Remove a stale socket from a previous run.
	_ = os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	s.listener = ln

	// Only the owning user may drive the agent.
	_ = os.Chmod(s.path, 0600)

	go s.acceptLoop()
	s.logger.Info("control socket listening", "path", s.path)
	return nil
}

// Close shuts down the listener and all client connections.
func (s *Server) Close() error {
	close(s.done)

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for c := range s.clients {
		_ = c.Close()
	}
	s.clients = make(map[net.Conn]struct{})
	s.mu.Unlock()

	_ = os.Remove(s.path)
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Warn("accept error", "error", err)
				continue
			}
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		go s.handleConn(conn)
	}
}

func (s *Server) removeClient(conn net.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.removeClient(conn)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(conn, "", "invalid request")
			continue
		}

		s.handleRequest(conn, req)
	}
}

func (s *Server) handleRequest(conn net.Conn, req Request) {
	switch req.Method {
	case "status":
		s.writeResult(conn, req.ID, s.controller.Status())

	case "get_setting":
		var params GetSettingParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		value, err := s.controller.GetSetting(params.Key)
		if err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, ValueResult{Value: value})

	case "set_setting":
		var params SetSettingParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		if err := s.controller.SetSetting(params.Key, params.Value); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, OKResult{Status: "ok"})

	case "set_enabled":
		var params SetEnabledParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		if err := s.controller.SetEnabled(params.Enabled); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, OKResult{Status: "ok"})

	case "get_event":
		var params GetEventParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		rec, err := s.controller.GetEvent(params.Name)
		if err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, EventResult{Event: rec})

	case "set_agent_name":
		var params NameParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		if err := s.controller.SetAgentName(params.Name); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, OKResult{Status: "ok"})

	case "set_install_path":
		var params PathParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		if err := s.controller.SetInstallPath(params.Path); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, OKResult{Status: "ok"})

	case "register_shortcut":
		var params RegisterShortcutParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		if err := s.controller.RegisterShortcut(params.GameName, params.AppID); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, OKResult{Status: "ok"})

	case "hubs":
		hubs, err := s.controller.AuthorizedHubs()
		if err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		entries := make([]HubEntry, 0, len(hubs))
		for id, hub := range hubs {
			entries = append(entries, HubEntry{HubID: id, Name: hub.Name, PairedAt: hub.PairedAt})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].HubID < entries[j].HubID })
		s.writeResult(conn, req.ID, HubsResult{Hubs: entries})

	case "revoke_hub":
		var params HubParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		revoked, err := s.controller.RevokeHub(params.HubID)
		if err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.writeResult(conn, req.ID, RevokeResult{Revoked: revoked})

	case "games":
		games, err := s.controller.InstalledGames()
		if err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		if games == nil {
			games = []protocol.TrackedShortcut{}
		}
		s.writeResult(conn, req.ID, GamesResult{Games: games})

	case "uninstall_game":
		var params NameParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		removed, err := s.controller.UninstallGame(params.Name)
		if err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		result := UninstallResult{Removed: removed != nil}
		if removed != nil {
			result.GameName = removed.GameName
		}
		s.writeResult(conn, req.ID, result)

	case "log":
		var params LogParams
		if err := parseParams(req, &params); err != nil {
			s.writeError(conn, req.ID, err.Error())
			return
		}
		s.controller.LogMessage(params.Level, params.Message)
		s.writeResult(conn, req.ID, OKResult{Status: "ok"})

	case "subscribe":
		var params SubscribeParams
		if req.Params != nil {
			_ = json.Unmarshal(req.Params, &params)
		}
		s.handleSubscribe(conn, req.ID, params)

	default:
		s.writeError(conn, req.ID, "unknown method: "+req.Method)
	}
}

// handleSubscribe streams bus events to the client until it hangs up.
// It runs on the connection's goroutine, so a subscribed connection
// serves no further requests.
func (s *Server) handleSubscribe(conn net.Conn, reqID string, params SubscribeParams) {
	ch := s.bus.Subscribe(params.Events...)
	defer s.bus.Unsubscribe(ch)

	s.writeResult(conn, reqID, OKResult{Status: "subscribed"})

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			resp := Response{
				Type: "event",
				Data: marshalRaw(Event{
					Type:      evt.Type,
					Timestamp: evt.Timestamp,
					Data:      evt.Data,
				}),
			}
			if err := s.writeResponse(conn, resp); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Server) writeResult(conn net.Conn, id string, v any) {
	_ = s.writeResponse(conn, Response{ID: id, Type: "result", Data: marshalRaw(v)})
}

func (s *Server) writeError(conn net.Conn, id, msg string) {
	_ = s.writeResponse(conn, Response{ID: id, Type: "error", Data: marshalRaw(map[string]string{"error": msg})})
}

func (s *Server) writeResponse(conn net.Conn, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("write error", "error", err)
	}
	return err
}

func parseParams(req Request, v any) error {
	if req.Params == nil {
		return errors.New("missing params")
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return errors.New("invalid params")
	}
	return nil
}

func marshalRaw(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
