// Package gen3text converts between the Generation 3 console character set
// and UTF-8 strings.
package gen3text

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const (
	// Terminator ends a name field; the rest of the field is padded with it.
	Terminator = 0xFF
	// Newline is the in-text line break control byte.
	Newline = 0xFE
	// Fallback is written for runes the character set cannot represent ('?').
	Fallback = 0xAC
)

var decodeTable [256]rune

var encodeTable = map[rune]byte{}

func init() {
	for i := range decodeTable {
		decodeTable[i] = utf8.RuneError
	}
	set := func(b byte, r rune) {
		decodeTable[b] = r
		if _, dup := encodeTable[r]; !dup {
			encodeTable[r] = b
		}
	}
	set(0x00, ' ')
	accents := []rune("ÀÁÂÇÈÉÊËÌ")
	for i, r := range accents {
		set(byte(0x01+i), r)
	}
	for i, r := range []rune("ÎÏÒÓÔŒÙÚÛÑßàá") {
		set(byte(0x0B+i), r)
	}
	for i, r := range []rune("çèéêëì") {
		set(byte(0x19+i), r)
	}
	for i, r := range []rune("îïòóôœùúûñºª") {
		set(byte(0x20+i), r)
	}
	set(0x2D, '&')
	set(0x2E, '+')
	set(0x35, '=')
	set(0x36, ';')
	set(0x51, '¿')
	set(0x52, '¡')
	set(0x5A, 'Í')
	set(0x5B, '%')
	set(0x5C, '(')
	set(0x5D, ')')
	set(0x68, 'â')
	set(0x6F, 'í')
	set(0x85, '<')
	set(0x86, '>')
	for i := 0; i < 10; i++ {
		set(byte(0xA1+i), rune('0'+i))
	}
	for i, r := range []rune("!?.-・…“”‘’♂♀$,×/") {
		set(byte(0xAB+i), r)
	}
	for i := 0; i < 26; i++ {
		set(byte(0xBB+i), rune('A'+i))
		set(byte(0xD5+i), rune('a'+i))
	}
	set(0xEF, '►')
	set(0xF0, ':')
	for i, r := range []rune("ÄÖÜäöü") {
		set(byte(0xF1+i), r)
	}
	set(Newline, '\n')

	// ASCII quotes have no slot of their own.
	encodeTable['\''] = 0xB4
	encodeTable['"'] = 0xB1
}

// Encoding is the x/text view of the character set. Decoding stops emitting
// at the first terminator; encoding never writes one.
var Encoding encoding.Encoding = charset{}

type charset struct{}

func (charset) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: &decoder{}}
}

func (charset) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: encoder{}}
}

type decoder struct {
	terminated bool
}

func (d *decoder) Reset() { d.terminated = false }

func (d *decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if d.terminated {
			nSrc = len(src)
			break
		}
		b := src[nSrc]
		if b == Terminator {
			d.terminated = true
			nSrc++
			continue
		}
		r := decodeTable[b]
		size := utf8.RuneLen(r)
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		utf8.EncodeRune(dst[nDst:], r)
		nDst += size
		nSrc++
	}
	return nDst, nSrc, nil
}

type encoder struct{ transform.NopResetter }

func (encoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 && !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		dst[nDst] = EncodeRune(r)
		nDst++
		nSrc += size
	}
	return nDst, nSrc, nil
}

// DecodeByte returns the rune for b. Bytes outside the table decode to
// utf8.RuneError.
func DecodeByte(b byte) rune {
	return decodeTable[b]
}

// EncodeRune returns the byte for r, or Fallback when r has no slot.
func EncodeRune(r rune) byte {
	if b, ok := encodeTable[r]; ok {
		return b
	}
	return Fallback
}

// Decode reads a terminated or fixed-width field. It never fails.
func Decode(b []byte) string {
	out, _, err := transform.Bytes(Encoding.NewDecoder(), b)
	if err != nil {
		return ""
	}
	return string(out)
}

// Encode writes s into a field of exactly n bytes. Text longer than the field
// is truncated; the remainder is filled with the terminator.
func Encode(s string, n int) []byte {
	if n <= 0 {
		return nil
	}
	field := make([]byte, n)
	for i := range field {
		field[i] = Terminator
	}
	raw, _, err := transform.String(Encoding.NewEncoder(), s)
	if err != nil {
		return field
	}
	copy(field, raw)
	return field
}
