package protocol

// UploadConfig describes the game a Hub is about to push.
type UploadConfig struct {
	GameName      string `json:"gameName"`
	InstallPath   string `json:"installPath,omitempty"`
	Executable    string `json:"executable,omitempty"`
	LaunchOptions string `json:"launchOptions,omitempty"`
	Tags          string `json:"tags,omitempty"`
}

// FileEntry is one file in the upload manifest. Path is relative to the
// game's install directory.
type FileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Mode uint32 `json:"mode,omitempty"`
}

// ShortcutConfig describes the Steam shortcut a Hub wants after an upload.
type ShortcutConfig struct {
	Name          string         `json:"name"`
	Exe           string         `json:"exe"`
	StartDir      string         `json:"startDir,omitempty"`
	LaunchOptions string         `json:"launchOptions,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Artwork       *ArtworkConfig `json:"artwork,omitempty"`
}

// ArtworkConfig carries artwork locations for a shortcut. The agent treats
// every field as opaque; the UI-resident Steam client resolves them.
type ArtworkConfig struct {
	Grid   string `json:"grid,omitempty"`   // 600x900 portrait
	Hero   string `json:"hero,omitempty"`   // 1920x620 header
	Logo   string `json:"logo,omitempty"`   // transparent logo
	Icon   string `json:"icon,omitempty"`   // square icon
	Banner string `json:"banner,omitempty"` // 460x215 horizontal
}

// TrackedShortcut is a record the agent persists on behalf of the local UI.
// AppID 0 means the UI has not assigned one yet.
type TrackedShortcut struct {
	Name        string `json:"name"`
	Exe         string `json:"exe"`
	StartDir    string `json:"startDir"`
	AppID       uint32 `json:"appId"`
	GameName    string `json:"gameName"`
	InstalledAt int64  `json:"installedAt"` // unix seconds
}
