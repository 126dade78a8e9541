package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/desktop"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/client/orchestrator"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// emit prints v as JSON for pipes and through human on a terminal.
func (a *App) emit(v any, human func(w io.Writer)) {
	if a.interactive {
		human(a.out)
		return
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type fileLine struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	ObjectKey string `json:"object_key,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

type captureReport struct {
	Success    bool                      `json:"success"`
	Files      []fileLine                `json:"files"`
	ID         *int64                    `json:"id,omitempty"`
	ObjectKeys []string                  `json:"object_keys,omitempty"`
	Deferred   bool                      `json:"deferred_to_desktop,omitempty"`
	Error      string                    `json:"error,omitempty"`
	Duplicates *protocol.DuplicateReport `json:"duplicates,omitempty"`
}

func fileLines(b orchestrator.Batch) []fileLine {
	out := make([]fileLine, len(b.Files))
	for i, f := range b.Files {
		out[i] = fileLine{Name: f.Name, State: f.State.String(), ObjectKey: f.ObjectKey, Attempts: f.Attempts}
		if f.Err != nil {
			out[i].Error = f.Err.Error()
		}
	}
	return out
}

func (r captureReport) print(w io.Writer) {
	for _, f := range r.Files {
		if f.Error != "" {
			fmt.Fprintf(w, "  %-24s %-10s %s\n", f.Name, f.State, f.Error)
			continue
		}
		fmt.Fprintf(w, "  %-24s %-10s %s\n", f.Name, f.State, f.ObjectKey)
	}
	switch {
	case r.Success && r.Deferred:
		fmt.Fprintf(w, "Uploaded %d file(s); details will be completed on the desktop.\n", len(r.ObjectKeys))
	case r.Success && r.ID != nil:
		fmt.Fprintf(w, "Saved as document #%d with %d image(s).\n", *r.ID, len(r.ObjectKeys))
	case r.Success:
		fmt.Fprintf(w, "Uploaded %d file(s).\n", len(r.ObjectKeys))
	default:
		fmt.Fprintf(w, "Upload failed: %s\n", r.Error)
	}
	printDuplicates(w, r.Duplicates)
}

func printDuplicates(w io.Writer, d *protocol.DuplicateReport) {
	if d == nil {
		return
	}
	for _, m := range d.Text {
		kind := "similar text"
		if m.Exact {
			kind = "identical text"
		}
		fmt.Fprintf(w, "  %s to document #%d %q (%.0f%%)\n", kind, m.DocumentID, m.Title, m.Similarity*100)
	}
	for _, m := range d.Images {
		fmt.Fprintf(w, "  %s looks like an image of document #%d (distance %d)\n", m.ObjectKey, m.DocumentID, m.Distance)
	}
}

type sessionReport struct {
	SessionID string `json:"session_id"`
	DocType   string `json:"doc_type"`
	ExpiresAt string `json:"expires_at"`
}

type outcomeReport struct {
	Success           bool     `json:"success"`
	SessionID         string   `json:"session_id"`
	Status            string   `json:"status"`
	ResultID          *int64   `json:"result_id,omitempty"`
	ObjectKeys        []string `json:"object_keys,omitempty"`
	ImageURLs         []string `json:"image_urls,omitempty"`
	DeferredToDesktop bool     `json:"deferred_to_desktop,omitempty"`
	Title             string   `json:"title,omitempty"`
	UploadedBy        string   `json:"uploaded_by,omitempty"`
	Via               string   `json:"via,omitempty"`
}

func newOutcomeReport(o desktop.Outcome) outcomeReport {
	return outcomeReport{
		Success:           true,
		SessionID:         o.SessionID,
		Status:            string(protocol.StatusComplete),
		ResultID:          o.ResultID,
		ObjectKeys:        o.ObjectKeys,
		ImageURLs:         o.ImageURLs,
		DeferredToDesktop: o.DeferredToDesktop,
		Title:             o.Title,
		UploadedBy:        o.UploadedBy,
		Via:               o.Via,
	}
}

func (r outcomeReport) print(w io.Writer) {
	if !r.Success {
		fmt.Fprintf(w, "Session %s %s. Enter the document manually.\n", r.SessionID, r.Status)
		return
	}
	fmt.Fprintf(w, "Received %d image(s) via %s.\n", len(r.ObjectKeys), r.Via)
	if r.ResultID != nil {
		fmt.Fprintf(w, "Document #%d", *r.ResultID)
		if r.Title != "" {
			fmt.Fprintf(w, " %q", r.Title)
		}
		fmt.Fprintln(w)
	}
	if r.DeferredToDesktop {
		fmt.Fprintln(w, "Metadata was left for the desktop; fill it in to finish the record.")
	}
	urls := r.ImageURLs
	if len(urls) == 0 {
		urls = r.ObjectKeys
	}
	if len(urls) > 0 {
		fmt.Fprintln(w, "  "+strings.Join(urls, "\n  "))
	}
}
