package netx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

func TestUploadToPresignedURL(t *testing.T) {
	file := []byte("\xff\xd8\xff fake jpeg")
	ctx := context.Background()

	t.Run("success 200 OK", func(t *testing.T) {
		var gotBody []byte
		var gotCT, gotMethod, gotINM string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			gotINM = r.Header.Get("If-None-Match")
			body, _ := io.ReadAll(r.Body)
			_ = r.Body.Close()
			gotBody = body
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		err := UploadToPresignedURL(ctx, ts.Client(), ts.URL+"/minutes/2025/05/abc.jpg?X-Amz-Signature=abc", "image/jpeg", file)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodPut {
			t.Fatalf("method = %q, want PUT", gotMethod)
		}
		if gotCT != "image/jpeg" {
			t.Fatalf("Content-Type = %q, want image/jpeg", gotCT)
		}
		if gotINM != "*" {
			t.Fatalf("If-None-Match = %q, want *", gotINM)
		}
		if !bytes.Equal(gotBody, file) {
			t.Fatalf("body = %q, want %q", string(gotBody), string(file))
		}
	})

	t.Run("204 is success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer ts.Close()

		if err := UploadToPresignedURL(ctx, ts.Client(), ts.URL, "image/png", file); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("403 -> terminal invalid request", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "token expired", http.StatusForbidden)
		}))
		defer ts.Close()

		err := UploadToPresignedURL(ctx, ts.Client(), ts.URL, "image/jpeg", file)
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusForbidden {
			t.Fatalf("want StatusError 403, got %v", err)
		}
		if !strings.Contains(err.Error(), "token expired") {
			t.Fatalf("body not propagated: %v", err)
		}
		if IsTransient(err) {
			t.Fatal("4xx must not be transient")
		}
		if !errors.Is(err, common.ErrInvalidRequest) {
			t.Fatalf("want ErrInvalidRequest, got %v", err)
		}
	})

	t.Run("409 and 412 -> already used", func(t *testing.T) {
		for _, code := range []int{http.StatusConflict, http.StatusPreconditionFailed} {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			err := UploadToPresignedURL(ctx, ts.Client(), ts.URL, "image/jpeg", file)
			ts.Close()
			if !errors.Is(err, common.ErrAlreadyUsed) {
				t.Fatalf("code %d: want ErrAlreadyUsed, got %v", code, err)
			}
		}
	})

	t.Run("503 -> transient", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		err := UploadToPresignedURL(ctx, ts.Client(), ts.URL, "image/jpeg", file)
		if !IsTransient(err) {
			t.Fatalf("want transient, got %v", err)
		}
	})

	t.Run("network error -> transient", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		err := UploadToPresignedURL(ctx, nil, ts.URL, "image/jpeg", file)
		if !IsTransient(err) {
			t.Fatalf("want transient, got %v", err)
		}
	})

	t.Run("cancelled context is not transient", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := UploadToPresignedURL(cctx, ts.Client(), ts.URL, "image/jpeg", file)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	})
}

func TestPutPresigned_SendsSignedHeaders(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	h := http.Header{}
	h.Set("Content-Type", "image/webp")
	h.Set("X-Amz-Meta-Doc", "minutes")
	if err := PutPresigned(context.Background(), ts.Client(), ts.URL, h, []byte("RIFF")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Get("Content-Type") != "image/webp" || got.Get("X-Amz-Meta-Doc") != "minutes" {
		t.Fatalf("headers not forwarded: %v", got)
	}
	if got.Get("If-None-Match") != "*" {
		t.Fatalf("If-None-Match = %q, want *", got.Get("If-None-Match"))
	}
	if !strings.Contains(h.Get("Content-Type"), "webp") {
		t.Fatalf("caller header mutated")
	}
}
