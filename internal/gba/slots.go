package gba

import (
	"encoding/binary"
	"errors"
	"fmt"

	"example.com/gbalink/internal/common"
)

// ErrCorruptImage means no usable slot could be found.
var ErrCorruptImage = errors.New("gba: corrupt save image")

func readSection(img []byte, off int64) *Section {
	raw := img[off : off+SectionSize]
	data := make([]byte, SectionSize)
	copy(data, raw)
	return &Section{
		ID:        binary.LittleEndian.Uint16(data[footerID:]),
		Checksum:  binary.LittleEndian.Uint16(data[footerChecksum:]),
		Signature: binary.LittleEndian.Uint32(data[footerSignature:]),
		SaveIndex: binary.LittleEndian.Uint32(data[footerSaveIndex:]),
		Offset:    off,
		Data:      data,
	}
}

func scanSlot(img []byte, index int) Slot {
	slot := Slot{Index: index, Offset: int64(index) * SlotSize}
	var found [NumSections][]*Section
	for p := 0; p < NumSections; p++ {
		s := readSection(img, slot.Offset+int64(p)*SectionSize)
		if s.Signature != Signature || int(s.ID) >= NumSections {
			continue
		}
		found[s.ID] = append(found[s.ID], s)
	}
	indexVotes := map[uint32]int{}
	for id, list := range found {
		if len(list) != 1 {
			continue
		}
		s := list[0]
		s.Trusted = s.Verify()
		slot.Sections[id] = s
		slot.Present++
		if s.Trusted {
			slot.Valid++
		}
		indexVotes[s.SaveIndex]++
	}
	slot.Recognized = slot.Present > 0
	best := -1
	for idx, votes := range indexVotes {
		if votes > best || (votes == best && idx > slot.Generation) {
			best = votes
			slot.Generation = idx
		}
	}
	return slot
}

// LocateSlots splits the image into its two slots and indexes their sections
// by footer id. Sections with a bad signature, an id past 13, or an id that
// appears more than once are left out.
func LocateSlots(img []byte) (Slot, Slot, error) {
	if len(img) < 2*SlotSize {
		return Slot{}, Slot{}, fmt.Errorf("%w: image is %d bytes, need at least %d", ErrCorruptImage, len(img), 2*SlotSize)
	}
	return scanSlot(img, 0), scanSlot(img, 1), nil
}

func hasMajority(s Slot) bool {
	return s.Valid > NumSections/2
}

// SelectActive picks the slot to read. The newer generation wins when most of
// its sections verify; otherwise an older slot whose majority verifies is
// used; otherwise the slot with more verified sections, slot A on a tie.
func SelectActive(a, b Slot) (Selection, error) {
	if !a.Recognized && !b.Recognized {
		return Selection{}, fmt.Errorf("%w: no slot carries a valid section", ErrCorruptImage)
	}
	if a.Valid == 0 && b.Valid == 0 {
		return Selection{}, fmt.Errorf("%w: no section passes its checksum", ErrCorruptImage)
	}
	if !b.Recognized {
		return Selection{Active: a, Reason: ReasonOnlySlot}, nil
	}
	if !a.Recognized {
		return Selection{Active: b, Reason: ReasonOnlySlot}, nil
	}

	newer, older := a, b
	if b.Generation > a.Generation {
		newer, older = b, a
	}
	switch {
	case hasMajority(newer):
		return pick(newer, older, ReasonNewest), nil
	case hasMajority(older):
		common.Logf("slot %s (generation %d) has %d/%d valid sections, falling back to slot %s",
			newer.Name(), newer.Generation, newer.Valid, NumSections, older.Name())
		return pick(older, newer, ReasonFallback), nil
	}
	if b.Valid > a.Valid {
		return pick(b, a, ReasonMostValid), nil
	}
	return pick(a, b, ReasonMostValid), nil
}

func pick(active, other Slot, reason SelectionReason) Selection {
	o := other
	return Selection{Active: active, Other: &o, Reason: reason}
}
