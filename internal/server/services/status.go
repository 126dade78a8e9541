package services

import (
	"errors"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// StatusResult is what a poll sees of a session.
type StatusResult struct {
	Status            protocol.SessionStatus
	ResultID          *int64
	ObjectKeys        []string
	ImageURLs         []string
	DeferredToDesktop bool
	Title             string
	UploadedBy        string
}

type StatusService struct {
	sessions SessionReader
}

func NewStatusService(sessions SessionReader) *StatusService {
	return &StatusService{sessions: sessions}
}

// Check reads the session without changing it. A lapsed session reports
// expired; an unknown one yields common.ErrNotFound.
func (s *StatusService) Check(id string) (StatusResult, error) {
	sess, err := s.sessions.Get(id)
	if errors.Is(err, common.ErrExpired) {
		return StatusResult{Status: protocol.StatusExpired}, nil
	}
	if err != nil {
		return StatusResult{}, err
	}

	res := StatusResult{Status: sess.Status}
	if r := sess.Result; r != nil {
		res.ResultID = r.DocumentID
		res.ObjectKeys = r.ObjectKeys
		res.ImageURLs = r.ImageURLs
		res.DeferredToDesktop = r.DeferredToDesktop
		res.Title = r.Title
		res.UploadedBy = r.UploadedBy
	}
	return res, nil
}
