// Package services holds the capture server's use cases: issuing upload
// intents, reporting session status and confirming finished uploads.
package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/sessions"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/storage"
)

// SessionReader is the read side of the session registry.
type SessionReader interface {
	Get(id string) (sessions.Session, error)
}

// UploadIntent authorizes one direct PUT of one file.
type UploadIntent struct {
	URL         string
	Method      string
	Header      http.Header
	ObjectKey   string
	ContentType string
	ExpiresAt   time.Time
}

type UploadService struct {
	sessions SessionReader
	store    storage.Store
	ttl      time.Duration
	now      func() time.Time
	logger   logging.Logger
}

func NewUploadService(sessions SessionReader, store storage.Store, ttl time.Duration, logger logging.Logger) *UploadService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &UploadService{
		sessions: sessions,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With("module", "uploads"),
	}
}

// Issue validates req and returns a presigned PUT for a fresh object key.
// A session id, when given, must name a pending or live session of the same
// document type.
func (s *UploadService) Issue(ctx context.Context, req protocol.PresignRequest) (UploadIntent, error) {
	dt, err := protocol.ParseDocType(req.DocType)
	if err != nil {
		return UploadIntent{}, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForKey(req.FileName)
	}
	ext, err := storage.ExtensionFor(contentType)
	if err != nil {
		return UploadIntent{}, err
	}

	if req.SessionID != "" {
		sess, err := s.sessions.Get(req.SessionID)
		if err != nil {
			return UploadIntent{}, err
		}
		if sess.Status.Terminal() {
			return UploadIntent{}, fmt.Errorf("%w: session is %s", common.ErrInvalidRequest, sess.Status)
		}
		if sess.DocType != dt {
			return UploadIntent{}, fmt.Errorf("%w: session is for %s", common.ErrInvalidRequest, sess.DocType)
		}
	}

	key, err := storage.NewObjectKey(dt, s.now(), ext)
	if err != nil {
		return UploadIntent{}, err
	}
	canonical := storage.ContentTypeForKey(key)

	p, err := s.store.PresignPut(ctx, key, canonical, s.ttl)
	if err != nil {
		s.logger.Error(ctx, "presign failed", "object_key", key, "error", err)
		return UploadIntent{}, fmt.Errorf("%w: presign: %v", common.ErrTransient, err)
	}

	s.logger.Debug(ctx, "upload intent issued", "object_key", key, "file_name", req.FileName, "session_id", req.SessionID)
	return UploadIntent{
		URL:         p.URL,
		Method:      p.Method,
		Header:      p.Header,
		ObjectKey:   key,
		ContentType: canonical,
		ExpiresAt:   p.ExpiresAt,
	}, nil
}
