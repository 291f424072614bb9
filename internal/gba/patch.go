package gba

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/pk3"
)

// PatchEdit is an in-place change to a save image. Before holds the bytes it
// replaces so the edit can be undone.
type PatchEdit struct {
	Offset int64
	Data   []byte
	Before []byte
	Note   string
}

// Invert returns the edit that restores the original bytes.
func (e PatchEdit) Invert() PatchEdit {
	return PatchEdit{Offset: e.Offset, Data: e.Before, Before: e.Data, Note: "undo " + e.Note}
}

var (
	ErrSlotRange = errors.New("gba: slot out of range")
	// ErrStaleEdit means the image no longer holds the bytes an edit expects.
	ErrStaleEdit = errors.New("gba: image does not match patch")
	// ErrUnknownGame means section 0 could not be read, so the family and
	// with it the party offsets are unknown.
	ErrUnknownGame = errors.New("gba: game family unknown")
)

// sectionWriter stages writes into section copies and reseals each touched
// section once at the end.
type sectionWriter struct {
	img   []byte
	work  map[uint16][]byte
	secs  map[uint16]*Section
	edits []PatchEdit
}

func newSectionWriter(img []byte) *sectionWriter {
	return &sectionWriter{img: img, work: map[uint16][]byte{}, secs: map[uint16]*Section{}}
}

func (w *sectionWriter) write(sec *Section, at int, data []byte, note string) error {
	if sec == nil {
		return fmt.Errorf("%w: section missing", ErrUntrustedSection)
	}
	if !sec.Trusted {
		return fmt.Errorf("%w: section %d", ErrUntrustedSection, sec.ID)
	}
	if at < 0 || at+len(data) > DataSize(sec.ID) {
		return fmt.Errorf("write at %d+%d outside section %d payload", at, len(data), sec.ID)
	}
	buf, ok := w.work[sec.ID]
	if !ok {
		buf = append([]byte(nil), sec.Data...)
		w.work[sec.ID] = buf
		w.secs[sec.ID] = sec
	}
	off := sec.Offset + int64(at)
	w.edits = append(w.edits, PatchEdit{
		Offset: off,
		Data:   append([]byte(nil), data...),
		Before: append([]byte(nil), buf[at:at+len(data)]...),
		Note:   note,
	})
	copy(buf[at:], data)
	return nil
}

func (w *sectionWriter) finish() ([]byte, []PatchEdit, error) {
	ids := make([]int, 0, len(w.work))
	for id := range w.work {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		sec := w.secs[uint16(id)]
		buf := w.work[uint16(id)]
		sum := Checksum(buf[:DataSize(sec.ID)])
		if sum == sec.Checksum {
			continue
		}
		after := make([]byte, 2)
		binary.LittleEndian.PutUint16(after, sum)
		w.edits = append(w.edits, PatchEdit{
			Offset: sec.Offset + footerChecksum,
			Data:   after,
			Before: append([]byte(nil), buf[footerChecksum:footerChecksum+2]...),
			Note:   fmt.Sprintf("section %d checksum", sec.ID),
		})
	}
	out, err := ApplyEdits(w.img, w.edits)
	if err != nil {
		return nil, nil, err
	}
	return out, w.edits, nil
}

// WriteBoxRecord stores rec in a PC slot of a copy of img and reseals the
// touched sections. Passing nil clears the slot. The selection must come from
// parsing img; it is stale once the write returns.
func WriteBoxRecord(img []byte, sel *Selection, box, slot int, rec *pk3.Record) ([]byte, []PatchEdit, error) {
	if box < 0 || box >= BoxCount || slot < 0 || slot >= SlotsPerBox {
		return nil, nil, fmt.Errorf("%w: box %d slot %d", ErrSlotRange, box, slot)
	}
	raw := make([]byte, pk3.BoxSize)
	if rec != nil {
		boxed := rec.Clone()
		boxed.Party = nil
		var err error
		raw, err = pk3.Encrypt(boxed)
		if err != nil {
			return nil, nil, err
		}
	}
	ps := NewPCStream(sel)
	pieces, err := ps.locate(BoxSlotOffset(box, slot), pk3.BoxSize)
	if err != nil {
		return nil, nil, err
	}
	w := newSectionWriter(img)
	note := BoxLocation(box, slot).String()
	for _, p := range pieces {
		if err := w.write(p.section, p.at, raw[p.src:p.src+p.n], note); err != nil {
			return nil, nil, err
		}
	}
	return w.finish()
}

// WritePartyRecord stores rec in a party slot. A slot equal to the current
// count appends and bumps the count.
func WritePartyRecord(img []byte, sel *Selection, layout Layout, slot int, rec *pk3.Record) ([]byte, []PatchEdit, error) {
	if rec == nil || rec.Party == nil {
		return nil, nil, errors.New("party write needs a record with party stats")
	}
	s1 := sel.Section(1)
	if s1 == nil || !s1.Trusted {
		return nil, nil, fmt.Errorf("%w: section 1", ErrUntrustedSection)
	}
	count := int(binary.LittleEndian.Uint32(s1.Data[layout.PartyCount:]))
	if count > PartyMax {
		count = PartyMax
	}
	if slot < 0 || slot >= PartyMax || slot > count {
		return nil, nil, fmt.Errorf("%w: party slot %d with %d members", ErrSlotRange, slot, count)
	}
	raw, err := pk3.Encrypt(rec)
	if err != nil {
		return nil, nil, err
	}
	w := newSectionWriter(img)
	if err := w.write(s1, layout.Party+slot*pk3.PartySize, raw, PartyLocation(slot).String()); err != nil {
		return nil, nil, err
	}
	if slot == count {
		c := make([]byte, 4)
		binary.LittleEndian.PutUint32(c, uint32(count+1))
		if err := w.write(s1, layout.PartyCount, c, "party count"); err != nil {
			return nil, nil, err
		}
	}
	return w.finish()
}

// ApplyEdits returns a copy of img with edits applied.
func ApplyEdits(img []byte, edits []PatchEdit) ([]byte, error) {
	out := append([]byte(nil), img...)
	for _, e := range edits {
		if e.Offset < 0 || e.Offset+int64(len(e.Data)) > int64(len(out)) {
			return nil, fmt.Errorf("patch at %d with length %d exceeds image size %d", e.Offset, len(e.Data), len(out))
		}
		copy(out[e.Offset:], e.Data)
	}
	return out, nil
}

// ApplyPatch applies the provided edits to path. Each edit must stay within the
// bounds of the file and does not change its length.
func ApplyPatch(path string, edits []PatchEdit) error {
	if len(edits) == 0 {
		return nil
	}
	ordered := make([]PatchEdit, 0, len(edits))
	for _, e := range edits {
		if len(e.Data) == 0 {
			continue
		}
		ordered = append(ordered, PatchEdit{Offset: e.Offset, Data: append([]byte(nil), e.Data...)})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Offset < ordered[j].Offset
	})

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	for _, edit := range ordered {
		if edit.Offset < 0 {
			return fmt.Errorf("negative patch offset %d", edit.Offset)
		}
		end := edit.Offset + int64(len(edit.Data))
		if end > size {
			return fmt.Errorf("patch at %d with length %d exceeds file size %d", edit.Offset, len(edit.Data), size)
		}
		if _, err := f.Seek(edit.Offset, io.SeekStart); err != nil {
			return err
		}
		if _, err := f.Write(edit.Data); err != nil {
			return err
		}
	}
	return f.Sync()
}

// CheckBefore verifies that img still holds every edit's Before bytes.
func CheckBefore(img []byte, edits []PatchEdit) error {
	for _, e := range edits {
		end := e.Offset + int64(len(e.Before))
		if e.Offset < 0 || end > int64(len(img)) {
			return fmt.Errorf("%w: offset %d outside image", ErrStaleEdit, e.Offset)
		}
		if !bytes.Equal(img[e.Offset:end], e.Before) {
			return fmt.Errorf("%w: bytes at 0x%X changed (%s)", ErrStaleEdit, e.Offset, e.Note)
		}
	}
	return nil
}

// AuditEntries renders edits for the patch log.
func AuditEntries(patchID, op, ref, image string, edits []PatchEdit) []common.PatchEntry {
	out := make([]common.PatchEntry, 0, len(edits))
	for _, e := range edits {
		out = append(out, common.PatchEntry{
			PatchID:   patchID,
			Op:        op,
			Ref:       ref,
			Image:     image,
			Offset:    e.Offset,
			Note:      e.Note,
			BeforeHex: hex.EncodeToString(e.Before),
			AfterHex:  hex.EncodeToString(e.Data),
		})
	}
	return out
}

// UndoEdits turns a logged patch back into edits that restore the image,
// newest first.
func UndoEdits(p common.Patch) ([]PatchEdit, error) {
	out := make([]PatchEdit, 0, len(p.Entries))
	for i := len(p.Entries) - 1; i >= 0; i-- {
		entry := p.Entries[i]
		before, err := entry.BeforeBytes()
		if err != nil {
			return nil, fmt.Errorf("patch %s entry %d: %w", p.ID, i, err)
		}
		after, err := entry.AfterBytes()
		if err != nil {
			return nil, fmt.Errorf("patch %s entry %d: %w", p.ID, i, err)
		}
		if len(before) != len(after) {
			return nil, fmt.Errorf("patch %s entry %d: before/after length differ", p.ID, i)
		}
		edit := PatchEdit{Offset: entry.Offset, Data: after, Before: before, Note: entry.Note}
		out = append(out, edit.Invert())
	}
	return out, nil
}
