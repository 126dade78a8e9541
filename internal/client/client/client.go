package client

import (
	"context"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Client is the capture server API as seen by the mobile and desktop sides.
type Client interface {
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context, docType protocol.DocType) (protocol.CreateSessionResponse, error)
	CheckSession(ctx context.Context, sessionID string) (protocol.StatusResponse, error)
	Presign(ctx context.Context, req protocol.PresignRequest) (protocol.PresignResponse, error)
	Upload(ctx context.Context, intent protocol.PresignResponse, data []byte) error
	Confirm(ctx context.Context, req protocol.ConfirmRequest) (protocol.ConfirmResponse, error)
}
