package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/desktop"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Desktop opens a capture session for docType, prints the session id for
// the mobile device and waits for the upload to arrive.
func (a *App) Desktop(ctx context.Context, docType protocol.DocType) error {
	sess, err := a.api.CreateSession(ctx, docType)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	info := sessionReport{SessionID: sess.SessionID, DocType: string(docType), ExpiresAt: sess.ExpiresAt.Format(time.RFC3339)}
	a.emit(info, func(w io.Writer) {
		fmt.Fprintf(w, "Capture session %s (%s), valid until %s\n", info.SessionID, info.DocType, sess.ExpiresAt.Local().Format(time.Kitchen))
		fmt.Fprintf(w, "On the mobile device run:\n  capture %s %s <files>...\n", info.DocType, info.SessionID)
	})

	w := desktop.NewWatcher(a.api, desktop.RelayDialer(a.config.RelayEndpoint(), a.logger), desktop.Config{
		PollInterval: a.config.PollInterval,
	}, a.logger)
	w.OnCamera = func(s protocol.CameraStatus) {
		if a.interactive {
			fmt.Fprintf(a.out, "Camera %s\n", s.Status)
		}
	}
	var frames int
	w.OnFrame = func(f protocol.CameraFrame) {
		frames++
		if a.interactive {
			fmt.Fprintf(a.out, "Preview %d: %dx%d\n", frames, f.Width, f.Height)
		}
	}

	out, err := w.Wait(ctx, sess.SessionID, docType, func(o desktop.Outcome) {
		a.logger.Info(ctx, "capture received", "session_id", o.SessionID, "via", o.Via, "objects", len(o.ObjectKeys))
	})
	if errors.Is(err, common.ErrExpired) {
		r := outcomeReport{SessionID: sess.SessionID, Status: string(protocol.StatusExpired)}
		a.emit(r, r.print)
		return err
	}
	if err != nil {
		return err
	}

	r := newOutcomeReport(out)
	a.emit(r, r.print)
	return nil
}
