package report

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrBadDigest is returned for anything but a full SHA-256 hex digest.
var ErrBadDigest = errors.New("report: image digest must be 64 hex digits")

// qrPrefix tags the payload so a scanner app can tell it is a save digest.
const qrPrefix = "gbalink:sha256:"

// ImageHashToQR renders the digest of a save image as a PNG QR code, so a
// printed import report can be matched back to the file it was made from.
// Separators and case in hash are ignored.
func ImageHashToQR(hash string, size int) ([]byte, error) {
	digest := hexDigits(hash)
	if len(digest) != 64 {
		return nil, fmt.Errorf("%w: got %d", ErrBadDigest, len(digest))
	}
	if size <= 0 {
		size = 128
	}
	code, err := qrcode.New(qrPrefix+digest, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return code.PNG(size)
}

// hexDigits keeps only hex digits, lowercased.
func hexDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
			return r
		case r >= 'A' && r <= 'F':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
}
