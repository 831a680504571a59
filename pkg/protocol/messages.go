// Package protocol defines the wire protocol spoken between a CapyDeploy
// Hub and an agent over a single WebSocket stream.
//
// Control messages are JSON text frames sharing a common envelope with a
// "type" field that determines the payload structure. File chunks travel as
// binary frames carrying a length-prefixed JSON header (see binary.go).
package protocol

import "encoding/json"

// DefaultPort is the TCP port agents listen on and advertise over DNS-SD.
const DefaultPort = 9999

// MessageType identifies the type of a control message.
type MessageType string

const (
	// Handshake
	MsgTypeHubConnected MessageType = "hub_connected" // Hub → Agent
	MsgTypeAgentStatus  MessageType = "agent_status"  // Agent → Hub

	// Pairing
	MsgTypePairingRequired MessageType = "pairing_required" // Agent → Hub
	MsgTypePairConfirm     MessageType = "pair_confirm"     // Hub → Agent
	MsgTypePairSuccess     MessageType = "pair_success"     // Agent → Hub
	MsgTypePairFailed      MessageType = "pair_failed"      // Agent → Hub

	// Requests, Hub → Agent
	MsgTypePing           MessageType = "ping"
	MsgTypeGetInfo        MessageType = "get_info"
	MsgTypeGetConfig      MessageType = "get_config"
	MsgTypeGetSteamUsers  MessageType = "get_steam_users"
	MsgTypeListShortcuts  MessageType = "list_shortcuts"
	MsgTypeDeleteGame     MessageType = "delete_game"
	MsgTypeRestartSteam   MessageType = "restart_steam"
	MsgTypeInitUpload     MessageType = "init_upload"
	MsgTypeUploadChunk    MessageType = "upload_chunk"
	MsgTypeCompleteUpload MessageType = "complete_upload"
	MsgTypeCancelUpload   MessageType = "cancel_upload"

	// Responses, Agent → Hub
	MsgTypePong                MessageType = "pong"
	MsgTypeInfoResponse        MessageType = "info_response"
	MsgTypeConfigResponse      MessageType = "config_response"
	MsgTypeSteamUsersResponse  MessageType = "steam_users_response"
	MsgTypeShortcutsResponse   MessageType = "shortcuts_response"
	MsgTypeSteamResponse       MessageType = "steam_response"
	MsgTypeUploadInitResponse  MessageType = "upload_init_response"
	MsgTypeUploadChunkResponse MessageType = "upload_chunk_response"
	MsgTypeOperationResult     MessageType = "operation_result"
	MsgTypeError               MessageType = "error"

	// Push events, Agent → Hub
	MsgTypeUploadProgress MessageType = "upload_progress"
	MsgTypeOperationEvent MessageType = "operation_event"
)

// WSError carries an error inside a message envelope.
type WSError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Message is the envelope for all control messages. ID is an opaque
// correlator chosen by the sender; the agent echoes it on responses.
type Message struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *WSError        `json:"error,omitempty"`
}

// NewMessage creates a message with the given type and payload.
func NewMessage(id string, msgType MessageType, payload any) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Message{ID: id, Type: msgType, Payload: raw}, nil
}

// NewErrorMessage creates an error response message.
func NewErrorMessage(id string, code int, message string) *Message {
	return &Message{
		ID:   id,
		Type: MsgTypeError,
		Error: &WSError{
			Code:    code,
			Message: message,
		},
	}
}

// ParsePayload unmarshals the payload into v. A nil payload is not an error.
func (m *Message) ParsePayload(v any) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Reply creates a response message correlated to this request.
func (m *Message) Reply(msgType MessageType, payload any) (*Message, error) {
	return NewMessage(m.ID, msgType, payload)
}

// ReplyError creates an error response correlated to this request.
func (m *Message) ReplyError(code int, message string) *Message {
	return NewErrorMessage(m.ID, code, message)
}

// Wire error codes.
const (
	WSErrCodeBadRequest   = 400
	WSErrCodeUnauthorized = 401
	WSErrCodeNotFound     = 404
	WSErrCodeInternal     = 500
)

// --- Handshake payloads ---

// HubConnectedRequest opens the handshake. Token is present on reconnects
// after a successful pairing.
type HubConnectedRequest struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform,omitempty"`
	HubID    string `json:"hubId,omitempty"`
	Token    string `json:"token,omitempty"`
}

// AgentStatusResponse answers a handshake that carried a valid token.
type AgentStatusResponse struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	Platform          string `json:"platform"`
	AcceptConnections bool   `json:"acceptConnections"`
}

// --- Pairing payloads ---

// PairingRequiredResponse asks the Hub to present a code to the user.
type PairingRequiredResponse struct {
	Code      string `json:"code"`      // 6 decimal digits
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// PairConfirmRequest carries the code the user typed into the Hub.
type PairConfirmRequest struct {
	Code string `json:"code"`
}

// PairSuccessResponse carries the bearer token for future connections.
type PairSuccessResponse struct {
	Token string `json:"token"`
}

// PairFailedResponse reports a rejected pairing attempt.
type PairFailedResponse struct {
	Reason string `json:"reason"`
}

// --- Info / config payloads ---

// AgentInfo describes the agent to a connected Hub.
type AgentInfo struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Platform          string   `json:"platform"`
	Version           string   `json:"version"`
	AcceptConnections bool     `json:"acceptConnections"`
	Capabilities      []string `json:"capabilities"`
}

// InfoResponse answers get_info.
type InfoResponse struct {
	Agent AgentInfo `json:"agent"`
}

// ConfigResponse answers get_config.
type ConfigResponse struct {
	InstallPath string `json:"installPath"`
}

// --- Upload payloads ---

// InitUploadRequest starts a new upload session.
type InitUploadRequest struct {
	Config    UploadConfig `json:"config"`
	TotalSize int64        `json:"totalSize"`
	Files     []FileEntry  `json:"files"`
}

// InitUploadResponse acknowledges a new session and advertises the
// preferred chunk size.
type InitUploadResponse struct {
	UploadID  string `json:"uploadId"`
	ChunkSize int    `json:"chunkSize"`
}

// UploadChunkRequest is the text-frame chunk variant; Data is base64 on the
// wire. Large transfers should prefer binary frames.
type UploadChunkRequest struct {
	UploadID string `json:"uploadId"`
	FilePath string `json:"filePath"`
	Offset   int64  `json:"offset"`
	Data     []byte `json:"data"`
}

// UploadChunkResponse acknowledges a written chunk.
type UploadChunkResponse struct {
	UploadID     string `json:"uploadId"`
	BytesWritten int64  `json:"bytesWritten"`
	TotalWritten int64  `json:"totalWritten"`
}

// CompleteUploadRequest finalizes a session.
type CompleteUploadRequest struct {
	UploadID       string          `json:"uploadId"`
	CreateShortcut bool            `json:"createShortcut"`
	Shortcut       *ShortcutConfig `json:"shortcut,omitempty"`
}

// CompleteUploadResponse reports where the game landed. Sent as an
// operation_result.
type CompleteUploadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	AppID   uint32 `json:"appId,omitempty"`
}

// CancelUploadRequest aborts a session and removes its partial files.
type CancelUploadRequest struct {
	UploadID string `json:"uploadId"`
}

// --- Steam payloads ---

// SteamUser is a local Steam account discovered on the device.
type SteamUser struct {
	ID           string `json:"id"`
	HasShortcuts bool   `json:"hasShortcuts,omitempty"`
}

// SteamUsersResponse answers get_steam_users.
type SteamUsersResponse struct {
	Users []SteamUser `json:"users"`
}

// ShortcutsResponse answers list_shortcuts with the agent's tracked records.
type ShortcutsResponse struct {
	Shortcuts []TrackedShortcut `json:"shortcuts"`
}

// DeleteGameRequest removes an installed game by its Steam AppID. The agent
// resolves everything else internally.
type DeleteGameRequest struct {
	AppID uint32 `json:"appId"`
}

// DeleteGameResponse reports the outcome of a delete_game. Sent as an
// operation_result.
type DeleteGameResponse struct {
	Status         string `json:"status"`
	GameName       string `json:"gameName"`
	SteamRestarted bool   `json:"steamRestarted"`
}

// RestartSteamResponse answers restart_steam. Message is "restarting" when
// the spawn succeeded, otherwise the spawn error string.
type RestartSteamResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// --- Generic result / event payloads ---

// OperationResult is the generic success/failure reply.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OperationEvent is a push notification for long-running operations.
type OperationEvent struct {
	Type     string  `json:"type"`   // "install", "delete"
	Status   string  `json:"status"` // "start", "progress", "complete", "error"
	GameName string  `json:"gameName"`
	Progress float64 `json:"progress"` // 0-100
	Message  string  `json:"message,omitempty"`
}

// UploadProgressEvent reports transfer progress during an upload.
type UploadProgressEvent struct {
	UploadID         string  `json:"uploadId"`
	TransferredBytes int64   `json:"transferredBytes"`
	TotalBytes       int64   `json:"totalBytes"`
	CurrentFile      string  `json:"currentFile,omitempty"`
	Percentage       float64 `json:"percentage"`
}
