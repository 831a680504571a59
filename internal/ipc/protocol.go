// Package ipc is the local control channel: a JSON-Lines protocol over
// a Unix socket, used by the CLI and the dashboard to drive the agent
// daemon.
package ipc

import (
	"encoding/json"
	"time"

	"github.com/capydeploy/agent/internal/events"
	"github.com/capydeploy/agent/internal/pairing"
	"github.com/capydeploy/agent/pkg/protocol"
)

// Request is a JSON-Lines request from a local client.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is sent back to the client.
type Response struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"` // "result", "error" or "event"
	Data json.RawMessage `json:"data,omitempty"`
}

// Event wraps a bus event for IPC transport.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatusResult is returned by the "status" method.
type StatusResult struct {
	Enabled     bool   `json:"enabled"`
	Connected   bool   `json:"connected"`
	HubName     string `json:"hubName,omitempty"`
	AgentName   string `json:"agentName"`
	InstallPath string `json:"installPath"`
	Platform    string `json:"platform"`
	Version     string `json:"version"`
	Port        int    `json:"port"`
	IP          string `json:"ip,omitempty"`
	Uptime      string `json:"uptime"`
}

// Method parameter shapes.
type (
	GetSettingParams struct {
		Key string `json:"key"`
	}
	SetSettingParams struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	SetEnabledParams struct {
		Enabled bool `json:"enabled"`
	}
	GetEventParams struct {
		Name string `json:"name"`
	}
	NameParams struct {
		Name string `json:"name"`
	}
	PathParams struct {
		Path string `json:"path"`
	}
	RegisterShortcutParams struct {
		GameName string `json:"gameName"`
		AppID    uint32 `json:"appId"`
	}
	HubParams struct {
		HubID string `json:"hubId"`
	}
	LogParams struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	SubscribeParams struct {
		Events []string `json:"events"`
	}
)

// Method result shapes.
type (
	ValueResult struct {
		Value json.RawMessage `json:"value"`
	}
	EventResult struct {
		Event *events.Record `json:"event"` // nil when the slot is empty
	}
	HubEntry struct {
		HubID    string `json:"hubId"`
		Name     string `json:"name"`
		PairedAt int64  `json:"pairedAt"`
	}
	HubsResult struct {
		Hubs []HubEntry `json:"hubs"`
	}
	RevokeResult struct {
		Revoked bool `json:"revoked"`
	}
	GamesResult struct {
		Games []protocol.TrackedShortcut `json:"games"`
	}
	UninstallResult struct {
		Removed  bool   `json:"removed"`
		GameName string `json:"gameName,omitempty"`
	}
	OKResult struct {
		Status string `json:"status"`
	}
)

// Controller is the supervisor surface the IPC methods call into.
type Controller interface {
	Status() StatusResult
	GetSetting(key string) (json.RawMessage, error)
	SetSetting(key string, value json.RawMessage) error
	SetEnabled(enabled bool) error
	GetEvent(name string) (*events.Record, error)
	SetAgentName(name string) error
	SetInstallPath(path string) error
	RegisterShortcut(gameName string, appID uint32) error
	AuthorizedHubs() (map[string]pairing.AuthorizedHub, error)
	RevokeHub(hubID string) (bool, error)
	InstalledGames() ([]protocol.TrackedShortcut, error)
	UninstallGame(name string) (*protocol.TrackedShortcut, error)
	LogMessage(level, message string)
}
