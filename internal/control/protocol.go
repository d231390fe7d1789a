// Package control is the Unix socket through which the CLI talks to a
// running watcher.
package control

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const ProtocolVersion = 1

// DefaultSocketName is the socket file inside .taskpath/.
const DefaultSocketName = "watch.sock"

// maxFrameSize bounds a single frame.
const maxFrameSize = 4 * 1024 * 1024

// Commands understood by the watcher.
const (
	CommandPing     = "ping"
	CommandStatus   = "status"
	CommandTrigger  = "trigger"
	CommandShutdown = "shutdown"
)

type Request struct {
	ProtocolVersion int             `json:"protocol_version"`
	Command         string          `json:"command"`
	Params          json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorDetail) Error() string {
	return e.Code + ": " + e.Message
}

const (
	ErrCodeProtocolMismatch = "PROTOCOL_MISMATCH"
	ErrCodeUnknownCommand   = "UNKNOWN_COMMAND"
	ErrCodeQueryFailed      = "QUERY_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

func NewRequest(command string, params any) (*Request, error) {
	req := &Request{ProtocolVersion: ProtocolVersion, Command: command}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

// OKResponse wraps data. A value that cannot be marshalled becomes an
// internal error response.
func OKResponse(data any) *Response {
	resp := &Response{OK: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ErrorResponse(ErrCodeInternal, fmt.Sprintf("marshal response: %v", err))
		}
		resp.Data = raw
	}
	return resp
}

func ErrorResponse(code, message string) *Response {
	return &Response{Error: &ErrorDetail{Code: code, Message: message}}
}

// Decode unmarshals the response payload into v, or returns the error the
// server reported.
func (r *Response) Decode(v any) error {
	if !r.OK {
		if r.Error != nil {
			return r.Error
		}
		return fmt.Errorf("request failed without detail")
	}
	if v == nil || len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// WriteFrame writes v as [4-byte big-endian length][JSON].
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

func ReadFrame(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}
	if length > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
