// Package bitfield describes packed integer words as named fields so record
// codecs can unpack and repack them without hand-written shifts.
package bitfield

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a value does not fit its field width.
var ErrOutOfRange = errors.New("bitfield: value out of range")

// Field is a contiguous run of bits inside a word.
type Field struct {
	Name   string
	Offset uint
	Width  uint
}

// Mask returns the unshifted mask of the field.
func (f Field) Mask() uint32 {
	if f.Width >= 32 {
		return 0xFFFFFFFF
	}
	return (1 << f.Width) - 1
}

// Max is the largest value the field can hold.
func (f Field) Max() uint32 {
	return f.Mask()
}

// Get extracts the field from word.
func (f Field) Get(word uint32) uint32 {
	return (word >> f.Offset) & f.Mask()
}

// Set stores v into word, leaving the other bits untouched.
func (f Field) Set(word, v uint32) (uint32, error) {
	if v > f.Mask() {
		return word, fmt.Errorf("%w: %s=%d exceeds %d", ErrOutOfRange, f.Name, v, f.Mask())
	}
	word &^= f.Mask() << f.Offset
	return word | v<<f.Offset, nil
}

// Layout is an ordered list of fields sharing one word of Bits bits.
type Layout struct {
	Name   string
	Bits   uint
	Fields []Field
}

// NewLayout builds a layout and panics if fields overlap or overflow the
// word. Layouts are package-level tables, so a bad one is a programming error.
func NewLayout(name string, bits uint, fields ...Field) Layout {
	var used uint64
	for _, f := range fields {
		if f.Width == 0 || f.Offset+f.Width > bits {
			panic(fmt.Sprintf("bitfield: %s.%s does not fit in %d bits", name, f.Name, bits))
		}
		m := uint64(f.Mask()) << f.Offset
		if used&m != 0 {
			panic(fmt.Sprintf("bitfield: %s.%s overlaps another field", name, f.Name))
		}
		used |= m
	}
	return Layout{Name: name, Bits: bits, Fields: fields}
}

// Field returns the named field.
func (l Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Unpack splits word into its named values.
func (l Layout) Unpack(word uint32) map[string]uint32 {
	out := make(map[string]uint32, len(l.Fields))
	for _, f := range l.Fields {
		out[f.Name] = f.Get(word)
	}
	return out
}

// Pack assembles a word from values. Missing names are zero; unknown names and
// oversized values are rejected.
func (l Layout) Pack(values map[string]uint32) (uint32, error) {
	var word uint32
	seen := 0
	for _, f := range l.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		seen++
		var err error
		word, err = f.Set(word, v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", l.Name, err)
		}
	}
	if seen != len(values) {
		for name := range values {
			if _, ok := l.Field(name); !ok {
				return 0, fmt.Errorf("%s: unknown field %q", l.Name, name)
			}
		}
	}
	return word, nil
}

// Get reads the named field from word. Unknown names read as zero.
func (l Layout) Get(word uint32, name string) uint32 {
	f, ok := l.Field(name)
	if !ok {
		return 0
	}
	return f.Get(word)
}

// Set writes the named field into word.
func (l Layout) Set(word uint32, name string, v uint32) (uint32, error) {
	f, ok := l.Field(name)
	if !ok {
		return word, fmt.Errorf("%s: unknown field %q", l.Name, name)
	}
	return f.Set(word, v)
}
