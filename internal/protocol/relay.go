package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

// Action tags a relay message.
type Action string

const (
	ActionSubscribe      Action = "subscribe"
	ActionCameraFrame    Action = "camera_frame"
	ActionCameraStatus   Action = "camera_status"
	ActionUploadComplete Action = "upload_complete"

	// Sent by the server only.
	ActionSubscribed Action = "subscribed"
	ActionError      Action = "error"
)

// Camera statuses carried by CameraStatus.
const (
	CameraLive    = "live"
	CameraStopped = "stopped"
)

// Message is one relay frame. The concrete types below are the only
// implementations.
type Message interface {
	Kind() Action
	Session() string
}

type Subscribe struct {
	SessionID string `json:"session_id"`
	DocType   string `json:"doc_type"`
}

// CameraFrame is a preview image. FrameData is opaque to the relay
// (typically a base64 data URL) and never persisted.
type CameraFrame struct {
	SessionID string `json:"session_id"`
	DocType   string `json:"doc_type"`
	FrameData string `json:"frame_data"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	TS        int64  `json:"ts"`
}

type CameraStatus struct {
	SessionID string `json:"session_id"`
	DocType   string `json:"doc_type"`
	Status    string `json:"status"`
}

// UploadComplete is the terminal event of a session.
type UploadComplete struct {
	SessionID         string   `json:"session_id"`
	DocType           string   `json:"doc_type"`
	Title             string   `json:"title,omitempty"`
	UploadedBy        string   `json:"uploaded_by,omitempty"`
	ResultID          *int64   `json:"result_id,omitempty"`
	ObjectKeys        []string `json:"object_keys"`
	ImageURLs         []string `json:"image_urls"`
	DeferredToDesktop bool     `json:"deferred_to_desktop"`
}

// Subscribed acknowledges a subscription with the session's current status.
type Subscribed struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
}

// Notice reports a rejected message back to its sender.
type Notice struct {
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
}

func (Subscribe) Kind() Action      { return ActionSubscribe }
func (CameraFrame) Kind() Action    { return ActionCameraFrame }
func (CameraStatus) Kind() Action   { return ActionCameraStatus }
func (UploadComplete) Kind() Action { return ActionUploadComplete }
func (Subscribed) Kind() Action     { return ActionSubscribed }
func (Notice) Kind() Action         { return ActionError }

func (m Subscribe) Session() string      { return m.SessionID }
func (m CameraFrame) Session() string    { return m.SessionID }
func (m CameraStatus) Session() string   { return m.SessionID }
func (m UploadComplete) Session() string { return m.SessionID }
func (m Subscribed) Session() string     { return m.SessionID }
func (m Notice) Session() string         { return m.SessionID }

type envelope struct {
	Action Action `json:"action"`
	Type   Action `json:"type"`
}

// Encode renders m with its action tag. UploadComplete also carries the tag
// under "type" for receivers that key on it.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Subscribe:
		return json.Marshal(struct {
			Action Action `json:"action"`
			Subscribe
		}{v.Kind(), v})
	case CameraFrame:
		return json.Marshal(struct {
			Action Action `json:"action"`
			CameraFrame
		}{v.Kind(), v})
	case CameraStatus:
		return json.Marshal(struct {
			Action Action `json:"action"`
			CameraStatus
		}{v.Kind(), v})
	case UploadComplete:
		return json.Marshal(struct {
			Action Action `json:"action"`
			Type   Action `json:"type"`
			UploadComplete
		}{v.Kind(), v.Kind(), v})
	case Subscribed:
		return json.Marshal(struct {
			Action Action `json:"action"`
			Subscribed
		}{v.Kind(), v})
	case Notice:
		return json.Marshal(struct {
			Action Action `json:"action"`
			Notice
		}{v.Kind(), v})
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", common.ErrInvalidRequest, m)
	}
}

// Decode parses and validates one relay frame. maxFrameBytes bounds the
// frame_data of camera frames; zero disables the check. Any malformed input
// yields an error wrapping common.ErrInvalidRequest.
func Decode(data []byte, maxFrameBytes int) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, invalid("malformed json: %v", err)
	}
	tag := env.Action
	if tag == "" {
		tag = env.Type
	}

	switch tag {
	case ActionSubscribe:
		var m Subscribe
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid("subscribe: %v", err)
		}
		if err := validateScope(m.SessionID, m.DocType); err != nil {
			return nil, err
		}
		return m, nil
	case ActionCameraFrame:
		var m CameraFrame
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid("camera_frame: %v", err)
		}
		if err := validateScope(m.SessionID, m.DocType); err != nil {
			return nil, err
		}
		if m.FrameData == "" {
			return nil, invalid("camera_frame: empty frame_data")
		}
		if maxFrameBytes > 0 && len(m.FrameData) > maxFrameBytes {
			return nil, invalid("camera_frame: frame_data exceeds %d bytes", maxFrameBytes)
		}
		if m.Width < 0 || m.Height < 0 {
			return nil, invalid("camera_frame: negative dimensions")
		}
		return m, nil
	case ActionCameraStatus:
		var m CameraStatus
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid("camera_status: %v", err)
		}
		if err := validateScope(m.SessionID, m.DocType); err != nil {
			return nil, err
		}
		if m.Status != CameraLive && m.Status != CameraStopped {
			return nil, invalid("camera_status: unknown status %q", m.Status)
		}
		return m, nil
	case ActionUploadComplete:
		var m UploadComplete
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid("upload_complete: %v", err)
		}
		if err := validateScope(m.SessionID, m.DocType); err != nil {
			return nil, err
		}
		if len(m.ObjectKeys) == 0 {
			return nil, invalid("upload_complete: no object_keys")
		}
		return m, nil
	case ActionSubscribed:
		var m Subscribed
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid("subscribed: %v", err)
		}
		if !ValidSessionID(m.SessionID) {
			return nil, invalid("malformed session_id")
		}
		return m, nil
	case ActionError:
		var m Notice
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid("error: %v", err)
		}
		return m, nil
	case "":
		return nil, invalid("missing action")
	default:
		return nil, invalid("unknown action %q", tag)
	}
}

func validateScope(sessionID, docType string) error {
	if !ValidSessionID(sessionID) {
		return invalid("malformed session_id")
	}
	if !DocType(docType).Valid() {
		return invalid("unknown doc_type %q", docType)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidRequest, fmt.Sprintf(format, args...))
}
