package client

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

// ResponseError is a non-2xx answer from the capture server.
type ResponseError struct {
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server responded %d: %s", e.Code, e.Message)
}

// Unwrap maps the status code back onto the shared error taxonomy.
func (e *ResponseError) Unwrap() error {
	switch {
	case e.Code == http.StatusBadRequest:
		return common.ErrInvalidRequest
	case e.Code == http.StatusNotFound:
		return common.ErrNotFound
	case e.Code == http.StatusGone:
		return common.ErrExpired
	case e.Code == http.StatusConflict:
		switch {
		case strings.Contains(e.Message, "duplicate"):
			return common.ErrDuplicate
		case strings.Contains(e.Message, common.ErrVersionConflict.Error()):
			return common.ErrVersionConflict
		default:
			return common.ErrAlreadyUsed
		}
	case e.Code >= 500:
		return common.ErrTransient
	default:
		return common.ErrInternal
	}
}
