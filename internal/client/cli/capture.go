package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/config"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/orchestrator"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/relayclient"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/flagx"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// previewLimit bounds the base64 size of a preview frame; larger images are
// uploaded without a preview.
const previewLimit = 384 * 1024

var (
	captureValueFlags = []string{"-t", "-u", "-content"}
	captureBoolFlags  = []string{"-defer", "-allow-dup"}
)

// CaptureArgs is one capture invocation:
//
//	capture [flags] <doc_type> [session_id] <file>...
type CaptureArgs struct {
	DocType   protocol.DocType
	SessionID string
	Files     []string
	Meta      orchestrator.Metadata
}

// ParseCaptureArgs reads the capture command line (without the program
// name). Client config flags are skipped.
func ParseCaptureArgs(args []string) (CaptureArgs, error) {
	var ca CaptureArgs

	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&ca.Meta.Title, "t", "", "document title")
	fs.StringVar(&ca.Meta.UploadedBy, "u", "", "uploaded by")
	fs.StringVar(&ca.Meta.Content, "content", "", "document text")
	fs.BoolVar(&ca.Meta.DeferToDesktop, "defer", false, "leave metadata to the desktop")
	fs.BoolVar(&ca.Meta.AllowDuplicateImages, "allow-dup", false, "accept images resembling stored ones")

	own := flagx.FilterArgs(args, captureValueFlags)
	for _, arg := range args {
		name, _, _ := strings.Cut(arg, "=")
		if slices.Contains(captureBoolFlags, name) {
			own = append(own, arg)
		}
	}
	if err := fs.Parse(own); err != nil {
		return ca, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}

	pos := flagx.Positionals(args, append(slices.Clone(config.ValueFlags), captureValueFlags...))
	if len(pos) < 2 {
		return ca, fmt.Errorf("%w: usage: capture [flags] <doc_type> [session_id] <file>...", common.ErrInvalidRequest)
	}
	dt, err := protocol.ParseDocType(pos[0])
	if err != nil {
		return ca, err
	}
	ca.DocType = dt
	pos = pos[1:]
	if protocol.ValidSessionID(pos[0]) {
		ca.SessionID = pos[0]
		pos = pos[1:]
	}
	if len(pos) == 0 {
		return ca, fmt.Errorf("%w: no files given", common.ErrInvalidRequest)
	}
	ca.Files = pos
	return ca, nil
}

// Capture uploads the files, confirms them and, when bound to a session,
// previews them on the waiting desktop.
func (a *App) Capture(ctx context.Context, ca CaptureArgs) error {
	files, err := loadFiles(ca.Files)
	if err != nil {
		return err
	}

	meta := ca.Meta
	if a.interactive && !meta.DeferToDesktop && meta.Title == "" {
		if meta, err = a.promptMetadata(meta); err != nil {
			return err
		}
	}

	o := orchestrator.New(a.api, ca.DocType, ca.SessionID, orchestrator.Config{
		IntentRetries: a.config.IntentRetries,
		UploadRetries: a.config.UploadRetries,
		Parallelism:   a.config.Parallelism,
	}, a.logger)
	o.SetMetadata(meta)
	o.Select(files...)

	if ca.SessionID != "" {
		conn, err := a.dialRelay(ctx)
		if err != nil {
			a.logger.Warn(ctx, "relay unavailable, desktop will poll", "error", err)
		} else {
			defer conn.Close()
			o.SetRelay(conn)
			stop := a.preview(ctx, conn, ca, files)
			defer stop()
		}
	}

	for {
		resp, batch, err := o.Submit(ctx)
		report := captureReport{
			Success:    err == nil,
			Files:      fileLines(batch),
			ID:         resp.ID,
			ObjectKeys: resp.ObjectKeys,
			Deferred:   resp.DeferredToDesktop,
			Duplicates: resp.Duplicates,
		}
		if err != nil {
			report.Error = err.Error()
		}

		if errors.Is(err, common.ErrDuplicate) && a.overrideImages(resp.Duplicates, o) {
			continue
		}
		a.emit(report, report.print)

		if errors.Is(err, common.ErrAllFilesFailed) {
			// Back to file selection; the typed metadata stays.
			o.Reset()
		}
		return err
	}
}

// overrideImages asks whether image-only matches may be accepted. Text
// matches are never overridable.
func (a *App) overrideImages(d *protocol.DuplicateReport, o *orchestrator.Orchestrator) bool {
	meta := o.Metadata()
	if !a.interactive || d == nil || len(d.Text) > 0 || len(d.Images) == 0 || meta.AllowDuplicateImages {
		return false
	}
	fmt.Fprintln(a.out, "Some images resemble stored documents:")
	printDuplicates(a.out, d)
	ok, err := Confirm(a.reader, "Upload anyway?", a.out)
	if err != nil || !ok {
		return false
	}
	meta.AllowDuplicateImages = true
	o.SetMetadata(meta)
	return true
}

func (a *App) promptMetadata(m orchestrator.Metadata) (orchestrator.Metadata, error) {
	var err error
	if m.Title, err = GetSimpleText(a.reader, "Title", a.out); err != nil {
		return m, err
	}
	if m.UploadedBy == "" {
		if m.UploadedBy, err = GetSimpleText(a.reader, "Uploaded by", a.out); err != nil {
			return m, err
		}
	}
	if m.Content == "" {
		if m.Content, err = GetMultiline(a.reader, "Document text (optional)", a.out); err != nil {
			return m, err
		}
	}
	return m, nil
}

// preview marks the camera live and streams each selected image once as a
// preview frame. The returned func stops streaming.
func (a *App) preview(ctx context.Context, conn *relayclient.Conn, ca CaptureArgs, files []orchestrator.File) func() {
	ctx, cancel := context.WithCancel(ctx)

	live := protocol.CameraStatus{SessionID: ca.SessionID, DocType: string(ca.DocType), Status: protocol.CameraLive}
	if err := conn.Send(ctx, live); err != nil {
		a.logger.Debug(ctx, "camera status not sent", "error", err)
	}

	interval := a.config.FrameInterval
	if interval <= 0 {
		interval = time.Second
	}
	pub := relayclient.NewFramePublisher(conn, interval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(ctx)
	}()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for _, f := range files {
			frame, ok := previewFrame(ca, f)
			if !ok {
				continue
			}
			pub.Offer(frame)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
		a.logger.Debug(context.Background(), "preview stopped", "sent", pub.Sent(), "replaced", pub.Replaced())
	}
}

func previewFrame(ca CaptureArgs, f orchestrator.File) (protocol.CameraFrame, bool) {
	if base64.StdEncoding.EncodedLen(len(f.Data)) > previewLimit {
		return protocol.CameraFrame{}, false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return protocol.CameraFrame{}, false
	}
	return protocol.CameraFrame{
		SessionID: ca.SessionID,
		DocType:   string(ca.DocType),
		FrameData: "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data),
		Width:     cfg.Width,
		Height:    cfg.Height,
		TS:        time.Now().UnixMilli(),
	}, true
}

// loadFiles reads the given paths. The content type is sniffed from the
// bytes; the server rejects anything that is not JPEG, PNG or WebP.
func loadFiles(paths []string) ([]orchestrator.File, error) {
	out := make([]orchestrator.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
		}
		out = append(out, orchestrator.File{
			Name:        filepath.Base(p),
			ContentType: http.DetectContentType(data),
			Data:        data,
		})
	}
	return out, nil
}
