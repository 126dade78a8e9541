package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/protocol"
)

// Accepted upload content types and the extension each is stored under.
var contentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var extContentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

var keyPattern = regexp.MustCompile(`^(resolutions|minutes|ordinances)/\d{4}/\d{2}/[A-Za-z0-9_-]{1,64}\.(jpg|jpeg|png|webp)$`)

// ExtensionFor returns the stored extension for an accepted content type.
func ExtensionFor(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := contentTypes[ct]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %q", common.ErrInvalidRequest, contentType)
	}
	return ext, nil
}

// ContentTypeForKey infers the content type from an object key's extension.
func ContentTypeForKey(key string) string {
	return extContentTypes[strings.TrimPrefix(path.Ext(key), ".")]
}

// NewObjectKey builds {doc_type}/{yyyy}/{mm}/{token}.{ext}. The token is a
// UUIDv7: its leading bits are a millisecond timestamp with a monotonic
// counter and the rest is random, so two keys never collide even for the
// same file name issued in the same instant.
func NewObjectKey(docType protocol.DocType, now time.Time, ext string) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("object key: %w", err)
	}
	token := strings.ReplaceAll(u.String(), "-", "")
	now = now.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s.%s", docType, now.Year(), int(now.Month()), token, ext), nil
}

// ValidateKey checks that key follows the object key convention and belongs
// to docType.
func ValidateKey(key string, docType protocol.DocType) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: malformed object key %q", common.ErrInvalidRequest, key)
	}
	if !strings.HasPrefix(key, string(docType)+"/") {
		return fmt.Errorf("%w: object key %q does not belong to %s", common.ErrInvalidRequest, key, docType)
	}
	return nil
}
