package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /mobile-session {doc_type}
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	dt, err := protocol.ParseDocType(req.DocType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.deps.Sessions.Create(dt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "session created", "session_id", sess.ID, "doc_type", dt)
	writeJSON(w, http.StatusOK, protocol.CreateSessionResponse{
		Success:   true,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	})
}

// GET /mobile-session?action=check&session={id}
func (s *Server) handleSessionQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if action := q.Get("action"); action != "check" {
		s.writeError(w, r, fmt.Errorf("%w: unknown action %q", common.ErrInvalidRequest, action))
		return
	}
	id := q.Get("session")
	if id == "" {
		id = q.Get("session_id")
	}

	res, err := s.deps.Status.Check(id)
	if errors.Is(err, common.ErrNotFound) {
		// An unknown session looks expired to the poller, which then falls
		// back to manual entry.
		writeJSON(w, http.StatusNotFound, protocol.StatusResponse{
			Success: false,
			Status:  protocol.StatusExpired,
			Error:   err.Error(),
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.StatusResponse{
		Success:           true,
		Status:            res.Status,
		ResultID:          res.ResultID,
		ObjectKeys:        res.ObjectKeys,
		ImageURLs:         res.ImageURLs,
		DeferredToDesktop: res.DeferredToDesktop,
		Title:             res.Title,
		UploadedBy:        res.UploadedBy,
	})
}

// POST /presigned-url {doc_type, file_name, content_type, session_id?}
func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req protocol.PresignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	in, err := s.deps.Uploads.Issue(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var headers map[string]string
	if len(in.Header) > 0 {
		headers = make(map[string]string, len(in.Header))
		for k := range in.Header {
			headers[k] = in.Header.Get(k)
		}
	}
	writeJSON(w, http.StatusOK, protocol.PresignResponse{
		Success:      true,
		PresignedURL: in.URL,
		ObjectKey:    in.ObjectKey,
		ContentType:  in.ContentType,
		Headers:      headers,
		ExpiresAt:    in.ExpiresAt,
	})
}

// POST /confirm-upload {doc_type, object_keys[], session_id?, defer_to_desktop, ...}
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req protocol.ConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Confirm.Confirm(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if res.Blocked {
		writeJSON(w, http.StatusConflict, protocol.ConfirmResponse{
			Success:    false,
			ObjectKeys: res.ObjectKeys,
			Error:      "duplicate",
			Duplicates: services.DuplicatePayload(res.Duplicates, res.ObjectKeys),
		})
		return
	}

	writeJSON(w, http.StatusOK, protocol.ConfirmResponse{
		Success:           true,
		ID:                res.DocumentID,
		ObjectKeys:        res.ObjectKeys,
		ImageURLs:         res.ImageURLs,
		DeferredToDesktop: res.DeferredToDesktop,
		AlreadyConfirmed:  res.AlreadyConfirmed,
		Duplicates:        services.DuplicatePayload(res.Duplicates, res.ObjectKeys),
	})
}

// DELETE /documents/{id}
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: bad document id", common.ErrInvalidRequest))
		return
	}
	if err := s.deps.Confirm.DeleteDocument(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
