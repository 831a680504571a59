package server

import (
	"errors"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/pairing"
	"github.com/capydeploy/agent/internal/steam"
	"github.com/capydeploy/agent/internal/upload"
	"github.com/capydeploy/agent/pkg/protocol"
)

// pairFailedReason is the only failure detail Hubs see. The precise
// cause (expiry, wrong code, wrong hub) stays in the log.
const pairFailedReason = "Invalid code"

func (s *Server) handleHubConnected(c *hubConn, msg *protocol.Message) {
	var req protocol.HubConnectedRequest
	if err := msg.ParsePayload(&req); err != nil {
		s.logger.Error("parse hub_connected", "error", err)
		return
	}
	// Identity fields are read by ConnectedHub under the same lock.
	s.mu.Lock()
	c.hubID = req.HubID
	c.hubName = req.Name
	c.hubVersion = req.Version
	s.mu.Unlock()
	s.logger.Info("hub handshake", "hub", req.Name, "version", req.Version)

	if req.Token != "" && req.HubID != "" && s.pairing.ValidateToken(req.HubID, req.Token) {
		s.authorize(c)
		info := s.state.Info()
		s.reply(c, msg, protocol.MsgTypeAgentStatus, protocol.AgentStatusResponse{
			Name:              info.Name,
			Version:           info.Version,
			Platform:          info.Platform,
			AcceptConnections: info.AcceptConnections,
		})
		s.publish(eventbus.HubConnected, map[string]string{
			"name":    req.Name,
			"version": req.Version,
		})
		return
	}

	if req.HubID == "" {
		s.sendErr(c, msg.ID, protocol.WSErrCodeUnauthorized, "hub_id required")
		return
	}

	code, err := s.pairing.GenerateCode(req.HubID, req.Name)
	if err != nil {
		s.logger.Error("generate pairing code", "error", err)
		return
	}
	s.reply(c, msg, protocol.MsgTypePairingRequired, protocol.PairingRequiredResponse{
		Code:      code,
		ExpiresIn: int(pairing.CodeTTL.Seconds()),
	})
	s.publish(eventbus.PairingCode, map[string]string{"code": code})
}

func (s *Server) handlePairConfirm(c *hubConn, msg *protocol.Message) {
	var req protocol.PairConfirmRequest
	if err := msg.ParsePayload(&req); err != nil {
		s.logger.Error("parse pair_confirm", "error", err)
		return
	}

	token, err := s.pairing.ValidateCode(c.hubID, req.Code)
	if err != nil {
		s.logger.Warn("pairing rejected", "hub", c.hubName, "error", err)
		s.reply(c, msg, protocol.MsgTypePairFailed, protocol.PairFailedResponse{Reason: pairFailedReason})
		return
	}

	s.authorize(c)
	s.logger.Info("hub paired", "hub", c.hubName)
	s.reply(c, msg, protocol.MsgTypePairSuccess, protocol.PairSuccessResponse{Token: token})
	s.publish(eventbus.PairingSuccess, struct{}{})
}

func (s *Server) handleGetInfo(c *hubConn, msg *protocol.Message) {
	s.reply(c, msg, protocol.MsgTypeInfoResponse, protocol.InfoResponse{Agent: s.state.Info()})
}

func (s *Server) handleGetConfig(c *hubConn, msg *protocol.Message) {
	s.reply(c, msg, protocol.MsgTypeConfigResponse, protocol.ConfigResponse{
		InstallPath: s.state.InstallPath(),
	})
}

func (s *Server) handleInitUpload(c *hubConn, msg *protocol.Message) {
	var req protocol.InitUploadRequest
	if err := msg.ParsePayload(&req); err != nil {
		s.logger.Error("parse init_upload", "error", err)
		return
	}
	resp, err := s.uploads.Open(s.state.InstallPath(), req.Config, req.TotalSize, req.Files)
	if err != nil {
		s.logger.Error("open upload", "game", req.Config.GameName, "error", err)
		return
	}
	s.reply(c, msg, protocol.MsgTypeUploadInitResponse, resp)
}

func (s *Server) handleUploadChunk(c *hubConn, msg *protocol.Message) {
	var req protocol.UploadChunkRequest
	if err := msg.ParsePayload(&req); err != nil {
		s.logger.Error("parse upload_chunk", "error", err)
		return
	}
	s.writeChunk(c, msg.ID, req.UploadID, req.FilePath, req.Offset, req.Data)
}

// writeChunk is shared by the text and binary chunk variants.
func (s *Server) writeChunk(c *hubConn, msgID, uploadID, filePath string, offset int64, data []byte) {
	resp, err := s.uploads.WriteChunk(uploadID, filePath, offset, data)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) {
			s.sendErr(c, msgID, protocol.WSErrCodeNotFound, "Upload not found")
			return
		}
		s.logger.Error("write chunk", "uploadId", uploadID, "file", filePath, "error", err)
		return
	}
	reply, err := protocol.NewMessage(msgID, protocol.MsgTypeUploadChunkResponse, resp)
	if err != nil {
		s.logger.Error("encode reply", "type", protocol.MsgTypeUploadChunkResponse, "error", err)
		return
	}
	s.send(c, reply)
}

func (s *Server) handleCompleteUpload(c *hubConn, msg *protocol.Message) {
	var req protocol.CompleteUploadRequest
	if err := msg.ParsePayload(&req); err != nil {
		s.logger.Error("parse complete_upload", "error", err)
		return
	}
	resp, err := s.uploads.Complete(req.UploadID, req.CreateShortcut, req.Shortcut)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) {
			s.sendErr(c, msg.ID, protocol.WSErrCodeNotFound, "Upload not found")
			return
		}
		s.logger.Error("complete upload", "uploadId", req.UploadID, "error", err)
		return
	}
	s.reply(c, msg, protocol.MsgTypeOperationResult, resp)
}

func (s *Server) handleCancelUpload(c *hubConn, msg *protocol.Message) {
	var req protocol.CancelUploadRequest
	if err := msg.ParsePayload(&req); err != nil {
		s.logger.Error("parse cancel_upload", "error", err)
		return
	}
	s.uploads.Cancel(req.UploadID)
	s.reply(c, msg, protocol.MsgTypeOperationResult, protocol.OperationResult{
		Success: true,
		Message: "cancelled",
	})
}

func (s *Server) handleGetSteamUsers(c *hubConn, msg *protocol.Message) {
	users, err := s.steam.Users()
	if err != nil && !errors.Is(err, steam.ErrSteamNotFound) {
		s.logger.Error("list steam users", "error", err)
		return
	}
	if users == nil {
		users = []protocol.SteamUser{}
	}
	s.reply(c, msg, protocol.MsgTypeSteamUsersResponse, protocol.SteamUsersResponse{Users: users})
}

func (s *Server) handleListShortcuts(c *hubConn, msg *protocol.Message) {
	shortcuts, err := s.tracker.List()
	if err != nil {
		s.logger.Error("list shortcuts", "error", err)
		return
	}
	if shortcuts == nil {
		shortcuts = []protocol.TrackedShortcut{}
	}
	s.reply(c, msg, protocol.MsgTypeShortcutsResponse, protocol.ShortcutsResponse{Shortcuts: shortcuts})
}

func (s *Server) handleDeleteGame(c *hubConn, msg *protocol.Message) {
	var req protocol.DeleteGameRequest
	if err := msg.ParsePayload(&req); err != nil {
		s.logger.Error("parse delete_game", "error", err)
		return
	}

	records, err := s.tracker.List()
	if err != nil {
		s.logger.Error("load tracked shortcuts", "error", err)
		return
	}
	var target *protocol.TrackedShortcut
	for i := range records {
		if records[i].AppID == req.AppID {
			target = &records[i]
			break
		}
	}
	if target == nil {
		s.sendErr(c, msg.ID, protocol.WSErrCodeNotFound, "game not found")
		return
	}

	s.publish(eventbus.OperationEvent, protocol.OperationEvent{
		Type: "delete", Status: "start", GameName: target.GameName, Progress: 0,
	})

	partial := ""
	dir := steam.UnquotePath(target.StartDir)
	if err := steam.RemoveGameDir(dir, s.state.InstallPath()); err != nil {
		s.logger.Warn("remove game directory", "game", target.GameName, "dir", dir, "error", err)
		partial = err.Error()
	}

	removed, err := s.tracker.RemoveByAppID(req.AppID)
	if err != nil {
		s.logger.Error("remove tracked shortcut", "appId", req.AppID, "error", err)
	}
	if removed != nil {
		s.publish(eventbus.RemoveShortcut, removed)
	}

	restartErr := s.steam.Restart()
	if restartErr != nil {
		s.logger.Warn("steam restart", "error", restartErr)
	}

	s.publish(eventbus.OperationEvent, protocol.OperationEvent{
		Type: "delete", Status: "complete", GameName: target.GameName, Progress: 100, Message: partial,
	})
	s.logger.Info("game deleted", "game", target.GameName, "appId", req.AppID)
	s.reply(c, msg, protocol.MsgTypeOperationResult, protocol.DeleteGameResponse{
		Status:         "deleted",
		GameName:       target.GameName,
		SteamRestarted: restartErr == nil,
	})
}

func (s *Server) handleRestartSteam(c *hubConn, msg *protocol.Message) {
	err := s.steam.Restart()
	resp := protocol.RestartSteamResponse{Success: err == nil, Message: "restarting"}
	if err != nil {
		s.logger.Warn("steam restart", "error", err)
		resp.Message = err.Error()
	}
	s.reply(c, msg, protocol.MsgTypeSteamResponse, resp)
}
