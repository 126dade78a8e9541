// Package protocol holds the wire types shared by the capture server and its
// clients: document types, session statuses, HTTP payloads and relay messages.
package protocol

import (
	"fmt"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

// DocType is the category of a captured document.
type DocType string

const (
	DocResolutions DocType = "resolutions"
	DocMinutes     DocType = "minutes"
	DocOrdinances  DocType = "ordinances"
)

// DocTypes lists every accepted document type.
func DocTypes() []DocType {
	return []DocType{DocResolutions, DocMinutes, DocOrdinances}
}

// Valid reports whether d is one of the known document types.
func (d DocType) Valid() bool {
	switch d {
	case DocResolutions, DocMinutes, DocOrdinances:
		return true
	}
	return false
}

// ParseDocType validates s as a document type.
func ParseDocType(s string) (DocType, error) {
	d := DocType(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown doc_type %q", common.ErrInvalidRequest, s)
	}
	return d, nil
}

// SessionStatus is the lifecycle state of a capture session.
type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusLive     SessionStatus = "live"
	StatusComplete SessionStatus = "complete"
	StatusExpired  SessionStatus = "expired"
)

// Rank orders statuses so transitions can be checked for forward motion.
func (s SessionStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusLive:
		return 1
	case StatusComplete, StatusExpired:
		return 2
	}
	return -1
}

// Terminal reports whether no further mutation is accepted.
func (s SessionStatus) Terminal() bool {
	return s == StatusComplete || s == StatusExpired
}

// ValidSessionID reports whether id has the shape of a session token.
func ValidSessionID(id string) bool {
	return common.IsHexToken(id, common.SessionIDLength)
}
