package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/cryptox"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/filex"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/logging"
)

// MaxUploadBytes bounds a single object accepted by the local gateway.
const MaxUploadBytes = 32 << 20

const gatewayKeyInfo = "efind object gateway v1"

var (
	errTokenMismatch = errors.New("token does not match request")
	errObjectExists  = errors.New("object already exists")
)

type uploadClaims struct {
	Key         string `json:"key"`
	ContentType string `json:"ct"`
	jwt.RegisteredClaims
}

// LocalStore keeps objects under a directory and acts as the storage
// gateway itself. Upload URLs carry an HS256 token naming the key, content
// type and expiry; each token id is accepted once.
type LocalStore struct {
	dir     string
	baseURL string
	key     []byte
	now     func() time.Time
	logger  logging.Logger

	mu   sync.Mutex
	used map[string]time.Time
}

// NewLocalStore prepares dir and derives the token key from secret.
// baseURL is the externally reachable URL of this server.
func NewLocalStore(dir, baseURL, secret string, logger logging.Logger) (*LocalStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	key, err := cryptox.DeriveKey([]byte(secret), gatewayKeyInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("gateway key: %w", err)
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &LocalStore{
		dir:     abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		now:     time.Now,
		logger:  logger,
		used:    make(map[string]time.Time),
	}, nil
}

// PresignPut mints a single-use upload URL on the gateway.
func (s *LocalStore) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (Presigned, error) {
	jti, err := common.MakeRandHexString(16)
	if err != nil {
		return Presigned{}, err
	}
	now := s.now()
	expires := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, uploadClaims{
		Key:         key,
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return Presigned{}, fmt.Errorf("sign upload token: %w", err)
	}

	header := http.Header{}
	header.Set(common.ContentTypeHeader, contentType)
	header.Set(common.IfNoneMatchHeader, "*")

	return Presigned{
		URL:       s.baseURL + "/objects/" + key + "?token=" + url.QueryEscape(signed),
		Method:    http.MethodPut,
		Header:    header,
		ExpiresAt: expires,
	}, nil
}

func (s *LocalStore) verify(token, key, contentType string) (*uploadClaims, error) {
	claims := &uploadClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	if claims.Key != key || !strings.EqualFold(claims.ContentType, contentType) {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidRequest, errTokenMismatch)
	}
	return claims, nil
}

// claim reserves jti. It also forgets ids whose tokens have expired, since an
// expired token is rejected before reaching here.
func (s *LocalStore) claim(jti string, exp time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.used {
		if now.After(e) {
			delete(s.used, id)
		}
	}
	if _, ok := s.used[jti]; ok {
		return false
	}
	s.used[jti] = exp
	return true
}

// release returns jti after a write that stored nothing, so the same
// intent can be retried. A token is therefore single-use per stored object,
// not per request; once an object exists every replay gets ErrAlreadyUsed.
func (s *LocalStore) release(jti string) {
	s.mu.Lock()
	delete(s.used, jti)
	s.mu.Unlock()
}

// Put stores body under key if token authorizes it. Errors:
// common.ErrExpired for an expired token, common.ErrAlreadyUsed for a
// consumed token or an existing object, common.ErrInvalidRequest otherwise.
func (s *LocalStore) Put(ctx context.Context, key, token, contentType string, body io.Reader) error {
	claims, err := s.verify(token, key, contentType)
	if err != nil {
		return err
	}
	if !s.claim(claims.ID, claims.ExpiresAt.Time) {
		return common.ErrAlreadyUsed
	}

	if err := s.write(key, body); err != nil {
		if errors.Is(err, errObjectExists) {
			return fmt.Errorf("%w: %w", common.ErrAlreadyUsed, err)
		}
		s.release(claims.ID)
		return err
	}

	s.logger.Info(ctx, "object stored", "key", key)
	return nil
}

func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key escapes store", common.ErrInvalidRequest)
	}
	return p, nil
}

// write streams body to a temp file and links it into place, failing if the
// object already exists.
func (s *LocalStore) write(key string, body io.Reader) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o770); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return errObjectExists
		}
		return err
	}
	return nil
}

// Open reads key from disk.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: object %s", common.ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether key is on disk.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// PublicURL is the gateway GET URL of key.
func (s *LocalStore) PublicURL(key string) string {
	return s.baseURL + "/objects/" + key
}

// ServeHTTP implements the gateway: PUT /objects/{key}?token= and GET /objects/{key}.
// The request path must still carry the /objects/ prefix.
func (s *LocalStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/objects/")
	if key == r.URL.Path || key == "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body := http.MaxBytesReader(w, r.Body, MaxUploadBytes)
		err := s.Put(r.Context(), key, r.URL.Query().Get("token"), r.Header.Get(common.ContentTypeHeader), body)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, common.ErrExpired):
			http.Error(w, "token expired", http.StatusForbidden)
		case errors.Is(err, common.ErrAlreadyUsed):
			http.Error(w, "already used", http.StatusConflict)
		case errors.Is(err, common.ErrInvalidRequest):
			http.Error(w, "forbidden", http.StatusForbidden)
		default:
			s.logger.Error(r.Context(), "object write failed", "key", key, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	case http.MethodGet, http.MethodHead:
		p, err := s.path(key)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if ct := ContentTypeForKey(key); ct != "" {
			w.Header().Set(common.ContentTypeHeader, ct)
		}
		http.ServeFile(w, r, p)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
