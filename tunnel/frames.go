package tunnel

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/pathlake/slideagent/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FrameKind discriminates the wire frames exchanged over the tunnel's
// single websocket connection (spec.md §4.11).
type FrameKind string

const (
	FrameHTTPRequest  FrameKind = "http_request"
	FrameHTTPResponse FrameKind = "http_response"
	FrameEvent        FrameKind = "event"
)

// Frame is the envelope for every message on the tunnel. Only the fields
// relevant to Kind are populated.
type Frame struct {
	Kind FrameKind `json:"kind"`

	// http_request / http_response
	RequestID string            `json:"requestId,omitempty"`
	Method    string            `json:"method,omitempty"`
	Path      string            `json:"path,omitempty"`
	Header    map[string]string `json:"header,omitempty"`
	Body      []byte            `json:"body,omitempty"`
	Status    int               `json:"status,omitempty"`

	// event
	EventKind string                 `json:"eventKind,omitempty"`
	EntityID  string                 `json:"entityId,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	buf, err := json.Marshal(&f)
	if err != nil {
		return nil, cmn.NewError("tunnel.frame", cmn.KindIO, "encode frame", err)
	}
	return buf, nil
}

func decodeFrame(buf []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(buf, &f); err != nil {
		return Frame{}, cmn.NewError("tunnel.frame", cmn.KindIO, "decode frame", err)
	}
	return f, nil
}
