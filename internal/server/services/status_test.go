package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/server/sessions"
)

func TestCheck(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	reg := sessions.NewRegistry(10*time.Minute, sessions.WithClock(func() time.Time { return now }))
	svc := NewStatusService(reg)

	pending, err := reg.Create(protocol.DocMinutes)
	require.NoError(t, err)
	res, err := svc.Check(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusPending, res.Status)
	assert.Nil(t, res.ResultID)

	require.NoError(t, reg.MarkLive(pending.ID))
	res, err = svc.Check(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusLive, res.Status)

	id := int64(12)
	_, _, err = reg.MarkComplete(pending.ID, sessions.Result{
		DocumentID: &id,
		ObjectKeys: []string{"minutes/2026/10/abc123.jpg"},
		ImageURLs:  []string{"http://cdn.test/minutes/2026/10/abc123.jpg"},
		Title:      "Regular session",
	})
	require.NoError(t, err)

	res, err = svc.Check(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusComplete, res.Status)
	require.NotNil(t, res.ResultID)
	assert.Equal(t, int64(12), *res.ResultID)
	assert.Equal(t, []string{"minutes/2026/10/abc123.jpg"}, res.ObjectKeys)
	assert.Equal(t, "Regular session", res.Title)

	lapsed, err := reg.Create(protocol.DocResolutions)
	require.NoError(t, err)
	now = now.Add(11 * time.Minute)
	res, err = svc.Check(lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusExpired, res.Status)

	_, err = svc.Check(strings.Repeat("0", 32))
	assert.ErrorIs(t, err, common.ErrNotFound)
}
