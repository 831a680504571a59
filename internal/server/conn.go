package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/capydeploy/agent/pkg/protocol"
)

const (
	// sendBuffer is the per-connection outbound queue depth.
	sendBuffer = 256

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// hubConn is one Hub WebSocket connection. The read loop owns the
// handshake state; every outbound frame goes through sendCh and a
// single writer goroutine, so replies leave the socket in the order
// their handlers queued them.
type hubConn struct {
	conn   *websocket.Conn
	sendCh chan []byte

	closeOnce sync.Once
	closeCh   chan struct{}
	done      chan struct{} // closed when the writer exits

	// set by the read loop during the handshake
	hubID      string
	hubName    string
	hubVersion string
	authorized bool
}

func newHubConn(conn *websocket.Conn) *hubConn {
	return &hubConn{
		conn:    conn,
		sendCh:  make(chan []byte, sendBuffer),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// enqueue queues a frame for the writer. It reports false when the
// connection is closing or the queue is full.
func (c *hubConn) enqueue(frame []byte) bool {
	select {
	case <-c.closeCh:
		return false
	default:
	}
	select {
	case c.sendCh <- frame:
		return true
	case <-c.closeCh:
		return false
	default:
		return false
	}
}

// close signals the writer to drain and close the socket. Safe to call
// more than once and from any goroutine.
func (c *hubConn) close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// writePump is the sole writer on the socket. It drains sendCh, sends
// keepalive pings, and on close writes whatever the handlers queued
// before the close frame.
func (c *hubConn) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case frame := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			for {
				select {
				case frame := <-c.sendCh:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// readLoop dispatches inbound frames until the socket closes, then
// runs the teardown.
func (s *Server) readLoop(c *hubConn) {
	defer s.teardown(c)

	c.conn.SetReadLimit(protocol.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("hub connection read failed", "error", err)
			}
			return
		}
		switch msgType {
		case websocket.TextMessage:
			s.handleText(c, data)
		case websocket.BinaryMessage:
			s.handleBinary(c, data)
		}
	}
}

// handleText dispatches one JSON message. Handshake messages pass
// regardless of state; everything else requires authorization first.
func (s *Server) handleText(c *hubConn, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Error("malformed message", "error", err)
		return
	}

	switch {
	case msg.Type == protocol.MsgTypeHubConnected:
		s.handleHubConnected(c, &msg)
	case msg.Type == protocol.MsgTypePairConfirm:
		s.handlePairConfirm(c, &msg)
	case !c.authorized:
		s.sendErr(c, msg.ID, protocol.WSErrCodeUnauthorized, "Not authorized")
	case msg.Type == protocol.MsgTypePing:
		s.reply(c, &msg, protocol.MsgTypePong, nil)
	case msg.Type == protocol.MsgTypeGetInfo:
		s.handleGetInfo(c, &msg)
	case msg.Type == protocol.MsgTypeGetConfig:
		s.handleGetConfig(c, &msg)
	case msg.Type == protocol.MsgTypeInitUpload:
		s.handleInitUpload(c, &msg)
	case msg.Type == protocol.MsgTypeUploadChunk:
		s.handleUploadChunk(c, &msg)
	case msg.Type == protocol.MsgTypeCompleteUpload:
		s.handleCompleteUpload(c, &msg)
	case msg.Type == protocol.MsgTypeCancelUpload:
		s.handleCancelUpload(c, &msg)
	case msg.Type == protocol.MsgTypeGetSteamUsers:
		s.handleGetSteamUsers(c, &msg)
	case msg.Type == protocol.MsgTypeListShortcuts:
		s.handleListShortcuts(c, &msg)
	case msg.Type == protocol.MsgTypeDeleteGame:
		s.handleDeleteGame(c, &msg)
	case msg.Type == protocol.MsgTypeRestartSteam:
		s.handleRestartSteam(c, &msg)
	default:
		s.logger.Warn("unknown message type", "type", msg.Type)
	}
}

// handleBinary applies one length-prefixed chunk frame.
func (s *Server) handleBinary(c *hubConn, frame []byte) {
	if !c.authorized {
		s.sendErr(c, "", protocol.WSErrCodeUnauthorized, "Not authorized")
		return
	}
	header, data, err := protocol.DecodeBinaryChunk(frame)
	if err != nil {
		s.logger.Error("malformed binary frame", "error", err)
		return
	}
	s.writeChunk(c, header.ID, header.UploadID, header.FilePath, header.Offset, data)
}
