package dedup

import (
	"fmt"
	"image"
	"io"
	"math/bits"
	"strconv"

	// Registered decoders for accepted upload types.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
	"golang.org/x/image/draw"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

// HashBits is the width of an image fingerprint.
const HashBits = 64

// Hash is a 64-bit average hash: the image scaled to 8x8 grayscale, one
// bit per pixel set when the pixel is brighter than the mean.
type Hash uint64

// String renders h as 16 lowercase hex digits, the stored form.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ParseHash parses the stored form of a hash.
func ParseHash(s string) (Hash, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("%w: hash %q must be 16 hex digits", common.ErrInvalidRequest, s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: hash %q: %v", common.ErrInvalidRequest, s, err)
	}
	return Hash(v), nil
}

// Distance is the Hamming distance between two hashes. It is symmetric and
// zero only for equal hashes.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// AverageHash fingerprints img.
func AverageHash(img image.Image) Hash {
	small := image.NewGray(image.Rect(0, 0, 8, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	for _, p := range small.Pix {
		sum += int(p)
	}
	// Compare p*64 > sum instead of p > sum/64 to avoid truncation.
	var h Hash
	for i, p := range small.Pix {
		if int(p)*len(small.Pix) > sum {
			h |= 1 << uint(HashBits-1-i)
		}
	}
	return h
}

// HashReader decodes a JPEG, PNG or WebP image from r and fingerprints it.
func HashReader(r io.Reader) (Hash, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return 0, fmt.Errorf("%w: decode image: %v", common.ErrInvalidRequest, err)
	}
	return AverageHash(img), nil
}
