package gba

import (
	"encoding/binary"
	"fmt"

	"example.com/gbalink/internal/gen3text"
	"example.com/gbalink/internal/pk3"
)

// Builder assembles well-formed save images. It backs the sample generator
// and the package tests.
type Builder struct {
	Trainer    Trainer
	Party      []*pk3.Record
	Boxes      map[Location]*pk3.Record
	BoxNames   [BoxCount]string
	Wallpapers [BoxCount]uint8
	CurrentBox uint32

	// Generation is the save index of the active slot.
	Generation uint32
	// ActiveSlot is 0 or 1.
	ActiveSlot int
	// Backup writes the previous generation into the other slot.
	Backup bool
	// Rotation shifts which physical position holds section 0.
	Rotation int
}

// NewBuilder returns a builder with default box names.
func NewBuilder(t Trainer) *Builder {
	b := &Builder{Trainer: t, Boxes: map[Location]*pk3.Record{}, Generation: 1}
	for i := range b.BoxNames {
		b.BoxNames[i] = fmt.Sprintf("BOX%d", i+1)
	}
	return b
}

// Put places rec into a box slot.
func (b *Builder) Put(box, slot int, rec *pk3.Record) {
	b.Boxes[BoxLocation(box, slot)] = rec
}

// Build returns a full 128 KiB image.
func (b *Builder) Build() ([]byte, error) {
	if len(b.Party) > PartyMax {
		return nil, fmt.Errorf("party of %d exceeds %d", len(b.Party), PartyMax)
	}
	img := make([]byte, ImageSize)
	active := b.ActiveSlot & 1
	if err := b.writeSlot(img, active, b.Generation, b.Rotation); err != nil {
		return nil, err
	}
	if b.Backup && b.Generation > 0 {
		if err := b.writeSlot(img, 1-active, b.Generation-1, b.Rotation+1); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func (b *Builder) writeSlot(img []byte, slot int, generation uint32, rotation int) error {
	var payloads [NumSections][]byte
	for id := range payloads {
		payloads[id] = make([]byte, SectionSize)
	}
	b.fillTrainer(payloads[0])
	if err := b.fillParty(payloads[1]); err != nil {
		return err
	}
	pc, err := b.pcBuffer()
	if err != nil {
		return err
	}
	pos := 0
	for id := firstPCSection; id <= lastPCSection; id++ {
		n := dataSizes[id]
		copy(payloads[id], pc[pos:pos+n])
		pos += n
	}

	base := slot * SlotSize
	for id := 0; id < NumSections; id++ {
		phys := ((id+rotation)%NumSections + NumSections) % NumSections
		sec := img[base+phys*SectionSize : base+(phys+1)*SectionSize]
		copy(sec, payloads[id])
		binary.LittleEndian.PutUint16(sec[footerID:], uint16(id))
		binary.LittleEndian.PutUint16(sec[footerChecksum:], Checksum(sec[:dataSizes[id]]))
		binary.LittleEndian.PutUint32(sec[footerSignature:], Signature)
		binary.LittleEndian.PutUint32(sec[footerSaveIndex:], generation)
	}
	return nil
}

func (b *Builder) fillTrainer(d []byte) {
	t := b.Trainer
	copy(d[:trainerNameLen], gen3text.Encode(t.Name, trainerNameLen))
	if t.Female {
		d[trainerGender] = 1
	}
	binary.LittleEndian.PutUint32(d[trainerIDs:], uint32(t.TrainerID)|uint32(t.SecretID)<<16)
	binary.LittleEndian.PutUint16(d[trainerPlayTime:], t.PlayTime.Hours)
	d[trainerPlayTime+2] = t.PlayTime.Minutes
	d[trainerPlayTime+3] = t.PlayTime.Seconds
	d[trainerPlayTime+4] = t.PlayTime.Frames
	switch t.Game {
	case RubySapphire:
		binary.LittleEndian.PutUint32(d[trainerGameCode:], 0)
	case FireRedLeafGreen:
		binary.LittleEndian.PutUint32(d[trainerGameCode:], 1)
		binary.LittleEndian.PutUint32(d[frlgKeyOffset:], b.securityKey())
	default:
		binary.LittleEndian.PutUint32(d[trainerGameCode:], b.securityKey())
	}
}

// Emerald stores its key in the game code word, so 0 and 1 are unusable.
func (b *Builder) securityKey() uint32 {
	switch b.Trainer.Game {
	case RubySapphire:
		return 0
	case FireRedLeafGreen:
		return b.Trainer.SecurityKey
	}
	if b.Trainer.SecurityKey <= 1 {
		return 0xA5A5A5A5
	}
	return b.Trainer.SecurityKey
}

func (b *Builder) fillParty(d []byte) error {
	layout := LayoutFor(b.Trainer.Game)
	binary.LittleEndian.PutUint32(d[layout.PartyCount:], uint32(len(b.Party)))
	for i, rec := range b.Party {
		p := rec.Clone()
		if p.Party == nil {
			p.Party = &pk3.PartyStats{Level: 5}
		}
		raw, err := pk3.Encrypt(p)
		if err != nil {
			return fmt.Errorf("party[%d]: %w", i, err)
		}
		copy(d[layout.Party+i*pk3.PartySize:], raw)
	}
	binary.LittleEndian.PutUint32(d[layout.Money:], b.Trainer.Money^b.securityKey())
	return nil
}

func (b *Builder) pcBuffer() ([]byte, error) {
	pc := make([]byte, PCBufferSize)
	binary.LittleEndian.PutUint32(pc[pcCurrentBox:], b.CurrentBox)
	for loc, rec := range b.Boxes {
		if loc.Party || loc.Box < 0 || loc.Box >= BoxCount || loc.Slot < 0 || loc.Slot >= SlotsPerBox {
			return nil, fmt.Errorf("%w: %s", ErrSlotRange, loc)
		}
		if rec == nil {
			continue
		}
		boxed := rec.Clone()
		boxed.Party = nil
		raw, err := pk3.Encrypt(boxed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		copy(pc[BoxSlotOffset(loc.Box, loc.Slot):], raw)
	}
	for i, name := range b.BoxNames {
		copy(pc[pcBoxNames+i*pcBoxNameLen:], gen3text.Encode(name, pcBoxNameLen))
		pc[pcWallpapers+i] = b.Wallpapers[i]
	}
	return pc, nil
}

// SectionOffset returns the absolute image offset of section id in slot, as
// laid out by a builder with the given rotation.
func SectionOffset(slot, rotation int, id uint16) int64 {
	phys := ((int(id)+rotation)%NumSections + NumSections) % NumSections
	return int64(slot*SlotSize + phys*SectionSize)
}
