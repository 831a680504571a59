package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Frame size limits.
const (
	// MaxFrameSize is the largest frame the agent accepts, text or binary.
	MaxFrameSize = 10 * 1024 * 1024

	// ChunkSize is the preferred chunk payload size advertised to Hubs.
	ChunkSize = 1024 * 1024
)

var (
	ErrFrameTooShort  = errors.New("protocol: binary frame shorter than header length prefix")
	ErrHeaderTooLarge = errors.New("protocol: binary header length exceeds frame")
)

// ChunkHeader is the JSON header of a binary chunk frame. Checksum is
// carried but not interpreted by the agent.
type ChunkHeader struct {
	ID       string `json:"id"`
	UploadID string `json:"uploadId"`
	FilePath string `json:"filePath"`
	Offset   int64  `json:"offset"`
	Checksum string `json:"checksum,omitempty"`
}

// EncodeBinaryChunk builds a binary frame:
// [4 bytes big-endian header length][JSON header][chunk payload].
func EncodeBinaryChunk(header ChunkHeader, data []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk header: %w", err)
	}
	frame := make([]byte, 4+len(hdr)+len(data))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(hdr)))
	copy(frame[4:], hdr)
	copy(frame[4+len(hdr):], data)
	return frame, nil
}

// DecodeBinaryChunk parses a binary frame into its header and payload. The
// payload aliases the input slice.
func DecodeBinaryChunk(frame []byte) (ChunkHeader, []byte, error) {
	var header ChunkHeader
	if len(frame) < 4 {
		return header, nil, ErrFrameTooShort
	}
	headerLen := int(binary.BigEndian.Uint32(frame[:4]))
	if headerLen < 0 || len(frame) < 4+headerLen {
		return header, nil, ErrHeaderTooLarge
	}
	if err := json.Unmarshal(frame[4:4+headerLen], &header); err != nil {
		return header, nil, fmt.Errorf("unmarshal chunk header: %w", err)
	}
	return header, frame[4+headerLen:], nil
}
