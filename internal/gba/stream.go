package gba

import (
	"errors"
	"fmt"
	"io"

	"example.com/gbalink/internal/pk3"
)

// ErrUntrustedSection is wrapped by reads that touch a section that is
// missing or failed its checksum.
var ErrUntrustedSection = errors.New("gba: untrusted section")

type pcSegment struct {
	id      uint16
	start   int64
	section *Section
}

// PCStream presents the payloads of sections 5..13 as one contiguous buffer.
// Records near section boundaries straddle two sections.
type PCStream struct {
	segments []pcSegment
	size     int64
}

// NewPCStream builds the stream over the selected slot.
func NewPCStream(sel *Selection) *PCStream {
	ps := &PCStream{}
	for id := uint16(firstPCSection); id <= lastPCSection; id++ {
		ps.segments = append(ps.segments, pcSegment{id: id, start: ps.size, section: sel.Section(id)})
		ps.size += int64(DataSize(id))
	}
	return ps
}

func (ps *PCStream) Size() int64 {
	return ps.size
}

// Sections returns the ids covering [offset, offset+length).
func (ps *PCStream) Sections(offset int64, length int) []uint16 {
	var ids []uint16
	end := offset + int64(length)
	for _, seg := range ps.segments {
		segEnd := seg.start + int64(DataSize(seg.id))
		if offset < segEnd && end > seg.start {
			ids = append(ids, seg.id)
		}
	}
	return ids
}

// ReadAt implements io.ReaderAt. Reads that touch an untrusted section fail
// with ErrUntrustedSection and copy nothing.
func (ps *PCStream) ReadAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d", offset)
	}
	if offset >= ps.size {
		return 0, io.EOF
	}
	want := len(p)
	short := false
	if offset+int64(want) > ps.size {
		want = int(ps.size - offset)
		short = true
	}
	if err := ps.checkTrusted(offset, want); err != nil {
		return 0, err
	}
	n := 0
	for _, seg := range ps.segments {
		segEnd := seg.start + int64(DataSize(seg.id))
		pos := offset + int64(n)
		if n >= want || pos >= segEnd || pos < seg.start {
			continue
		}
		n += copy(p[n:want], seg.section.Payload()[pos-seg.start:])
	}
	if short {
		return n, io.EOF
	}
	return n, nil
}

// Slice returns a copy of length bytes at offset.
func (ps *PCStream) Slice(offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := ps.ReadAt(buf, offset)
	if err != nil {
		return nil, err
	}
	if n != length {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}

func (ps *PCStream) checkTrusted(offset int64, length int) error {
	for _, id := range ps.Sections(offset, length) {
		s := ps.segments[id-firstPCSection].section
		if s == nil {
			return fmt.Errorf("%w: section %d missing", ErrUntrustedSection, id)
		}
		if !s.Trusted {
			return fmt.Errorf("%w: section %d checksum mismatch", ErrUntrustedSection, id)
		}
	}
	return nil
}

// locate maps a stream range onto (section, offset within section, length)
// pieces, used by write-back.
func (ps *PCStream) locate(offset int64, length int) ([]streamPiece, error) {
	if offset < 0 || offset+int64(length) > ps.size {
		return nil, fmt.Errorf("range %d+%d outside pc buffer", offset, length)
	}
	var pieces []streamPiece
	done := 0
	for _, seg := range ps.segments {
		segEnd := seg.start + int64(DataSize(seg.id))
		pos := offset + int64(done)
		if done >= length || pos >= segEnd || pos < seg.start {
			continue
		}
		n := int(segEnd - pos)
		if n > length-done {
			n = length - done
		}
		pieces = append(pieces, streamPiece{section: seg.section, id: seg.id, at: int(pos - seg.start), src: done, n: n})
		done += n
	}
	return pieces, nil
}

type streamPiece struct {
	section *Section
	id      uint16
	at      int
	src     int
	n       int
}

// BoxSlotOffset is the stream offset of a box slot.
func BoxSlotOffset(box, slot int) int64 {
	return pcFirstSlot + int64(box*SlotsPerBox+slot)*pk3.BoxSize
}
