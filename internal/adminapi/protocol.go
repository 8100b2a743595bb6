// Package adminapi is the gateway's administrative control surface: a
// Unix-socket server exposing ListModules, AddModule, RemoveModule, and
// BrokerStats. Every command is a single request/response round trip -
// there is no streaming or long-lived session state.
package adminapi

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
)

var (
	ErrInvalidFrame  = errors.New("adminapi: invalid frame format")
	ErrFrameTooLarge = errors.New("adminapi: frame too large")
)

const (
	RequestIDSize  = 8
	CommandSize    = 1
	StatusSize     = 1
	PayloadLenSize = 4
	MaxFrameSize   = 16 * 1024 * 1024
)

// Command codes.
const (
	CmdListModules  = 1
	CmdAddModule    = 2
	CmdRemoveModule = 3
	CmdBrokerStats  = 4
)

// Status codes.
const (
	StatusOK    = 0
	StatusError = 1
)

// RequestFrame is a single admin API request.
type RequestFrame struct {
	RequestID uint64
	Command   uint8
	Payload   []byte
}

// ResponseFrame is a single admin API response.
type ResponseFrame struct {
	RequestID uint64
	Status    uint8
	Payload   []byte
}

// header is the fixed-size prefix common to both request and response
// frames: a correlation ID, a one-byte tag (command or status depending on
// direction), and the payload's length. Encode/decode logic lives here once
// instead of being duplicated per frame type.
type header struct {
	RequestID  uint64
	Tag        uint8
	PayloadLen uint32
}

func encodeFrame(h header, payload []byte) ([]byte, error) {
	total := RequestIDSize + CommandSize + PayloadLenSize + len(payload)
	if total > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	h.PayloadLen = uint32(len(payload))

	buf := new(bytes.Buffer)
	buf.Grow(total)
	// binary.Write on the individual scalar fields, not the struct itself,
	// since header's in-memory layout (padding around the uint8) doesn't
	// match the wire format's packed layout.
	if err := binary.Write(buf, binary.LittleEndian, h.RequestID); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, h.Tag); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, h.PayloadLen); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (header, []byte, error) {
	if len(data) < RequestIDSize+CommandSize+PayloadLenSize {
		return header{}, nil, ErrInvalidFrame
	}
	r := bytes.NewReader(data)
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h.RequestID); err != nil {
		return header{}, nil, ErrInvalidFrame
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Tag); err != nil {
		return header{}, nil, ErrInvalidFrame
	}
	if err := binary.Read(r, binary.LittleEndian, &h.PayloadLen); err != nil {
		return header{}, nil, ErrInvalidFrame
	}
	if r.Len() < int(h.PayloadLen) {
		return header{}, nil, ErrInvalidFrame
	}
	var payload []byte
	if h.PayloadLen > 0 {
		payload = make([]byte, h.PayloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return header{}, nil, ErrInvalidFrame
		}
	}
	return h, payload, nil
}

// EncodeRequest encodes a request for sending.
func EncodeRequest(req *RequestFrame) ([]byte, error) {
	return encodeFrame(header{RequestID: req.RequestID, Tag: req.Command}, req.Payload)
}

// DecodeRequest decodes a request from bytes.
func DecodeRequest(data []byte) (*RequestFrame, error) {
	h, payload, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	return &RequestFrame{RequestID: h.RequestID, Command: h.Tag, Payload: payload}, nil
}

// EncodeResponse encodes a response for sending.
func EncodeResponse(resp *ResponseFrame) ([]byte, error) {
	return encodeFrame(header{RequestID: resp.RequestID, Tag: resp.Status}, resp.Payload)
}

// DecodeResponse decodes a response from bytes.
func DecodeResponse(data []byte) (*ResponseFrame, error) {
	h, payload, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	return &ResponseFrame{RequestID: h.RequestID, Status: h.Tag, Payload: payload}, nil
}

// ModuleInfo describes one live module instance in a ListModules response.
type ModuleInfo struct {
	HandleID string `json:"handle_id"`
	Path     string `json:"path"`
}

// AddModuleRequest is the CmdAddModule JSON payload.
type AddModuleRequest struct {
	Path   string          `json:"path"`
	Config json.RawMessage `json:"config"`
}

// AddModuleResponse is the CmdAddModule success JSON payload.
type AddModuleResponse struct {
	HandleID string `json:"handle_id"`
}

// RemoveModuleRequest is the CmdRemoveModule JSON payload.
type RemoveModuleRequest struct {
	HandleID string `json:"handle_id"`
}

// BrokerStatsResponse is the CmdBrokerStats JSON payload.
type BrokerStatsResponse struct {
	MessagesPublished float64 `json:"messages_published"`
	MessagesDelivered float64 `json:"messages_delivered"`
	MalformedDropped  float64 `json:"malformed_dropped"`
	ActiveWorkers     float64 `json:"active_workers"`
}

// ErrorPayload returns a JSON error payload of the form {"error": "..."}.
func ErrorPayload(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
