package gba

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/gen3text"
	"example.com/gbalink/internal/pk3"
)

// DetectGame reads the game code word of section 0.
func DetectGame(s0 *Section) (GameFamily, uint32) {
	code := binary.LittleEndian.Uint32(s0.Data[trainerGameCode:])
	switch code {
	case 0:
		return RubySapphire, 0
	case 1:
		return FireRedLeafGreen, binary.LittleEndian.Uint32(s0.Data[frlgKeyOffset:])
	}
	return Emerald, code
}

// ExtractTrainer decodes the player block. Money needs a trusted section 1
// and is left at zero otherwise.
func ExtractTrainer(sel *Selection) (*Trainer, []Warning, error) {
	s0 := sel.Section(0)
	if s0 == nil || !s0.Trusted {
		return nil, nil, fmt.Errorf("%w: section 0", ErrUntrustedSection)
	}
	d := s0.Data
	ids := binary.LittleEndian.Uint32(d[trainerIDs:])
	t := &Trainer{
		Name:      gen3text.Decode(d[:trainerNameLen]),
		Female:    d[trainerGender] == 1,
		TrainerID: uint16(ids),
		SecretID:  uint16(ids >> 16),
		PlayTime: PlayTime{
			Hours:   binary.LittleEndian.Uint16(d[trainerPlayTime:]),
			Minutes: d[trainerPlayTime+2],
			Seconds: d[trainerPlayTime+3],
			Frames:  d[trainerPlayTime+4],
		},
	}
	t.Game, t.SecurityKey = DetectGame(s0)

	var warns []Warning
	s1 := sel.Section(1)
	if s1 == nil || !s1.Trusted {
		warns = append(warns, Warning{Location: PartyLocation(-1), Err: fmt.Errorf("%w: section 1, money unavailable", ErrUntrustedSection)})
		return t, warns, nil
	}
	raw := binary.LittleEndian.Uint32(s1.Data[LayoutFor(t.Game).Money:])
	if t.Game == RubySapphire {
		t.Money = raw
	} else {
		t.Money = raw ^ t.SecurityKey
	}
	return t, warns, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// decodeWindow returns nil for an empty slot.
func decodeWindow(raw []byte) (*pk3.Record, error) {
	if isZero(raw) {
		return nil, nil
	}
	rec, err := pk3.Decode(raw)
	if err != nil {
		return nil, err
	}
	if rec.IsEmpty() {
		return nil, nil
	}
	return rec, nil
}

// ExtractParty decodes up to six 100-byte party records from section 1. The
// stored count is clamped to [0, 6]; windows past it are ignored.
func ExtractParty(sel *Selection, layout Layout, metrics *common.Metrics) ([]Member, []Warning) {
	s1 := sel.Section(1)
	if s1 == nil || !s1.Trusted {
		return nil, []Warning{{Location: PartyLocation(-1), Err: fmt.Errorf("%w: section 1", ErrUntrustedSection)}}
	}
	count := int(binary.LittleEndian.Uint32(s1.Data[layout.PartyCount:]))
	if count < 0 || count > PartyMax {
		common.Logf("party count %d clamped to %d", count, PartyMax)
		count = PartyMax
	}
	var members []Member
	var warns []Warning
	for i := 0; i < count; i++ {
		off := layout.Party + i*pk3.PartySize
		rec, err := decodeWindow(s1.Data[off : off+pk3.PartySize])
		if err != nil {
			warns = append(warns, Warning{Location: PartyLocation(i), Err: err})
			metrics.AddDropped()
			continue
		}
		if rec == nil {
			metrics.AddEmpty()
			continue
		}
		metrics.AddRecord(pk3.PartySize)
		members = append(members, Member{Slot: i, Record: rec})
	}
	return members, warns
}

// ExtractBoxes decodes all 420 PC slots through the section-spanning stream.
// Slots are independent and decoded by up to concurrency workers.
func ExtractBoxes(sel *Selection, concurrency int, metrics *common.Metrics) (BoxMatrix, []Warning) {
	var m BoxMatrix
	ps := NewPCStream(sel)
	var warns []Warning

	if hdr, err := ps.Slice(pcCurrentBox, 4); err == nil {
		m.CurrentBox = binary.LittleEndian.Uint32(hdr)
	}
	if meta, err := ps.Slice(pcBoxNames, PCBufferSize-pcBoxNames); err == nil {
		for b := 0; b < BoxCount; b++ {
			m.Boxes[b].Name = gen3text.Decode(meta[b*pcBoxNameLen : (b+1)*pcBoxNameLen])
			m.Boxes[b].Wallpaper = meta[pcWallpapers-pcBoxNames+b]
		}
	} else {
		warns = append(warns, Warning{Location: Location{Box: -1, Slot: -1}, Err: err})
	}

	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	type result struct {
		rec *pk3.Record
		err error
	}
	results := make([]result, BoxSlotTotal)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < BoxSlotTotal; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			raw, err := ps.Slice(BoxSlotOffset(i/SlotsPerBox, i%SlotsPerBox), pk3.BoxSize)
			if err != nil {
				results[i] = result{err: err}
				return
			}
			rec, err := decodeWindow(raw)
			results[i] = result{rec: rec, err: err}
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		box, slot := i/SlotsPerBox, i%SlotsPerBox
		switch {
		case res.err != nil:
			warns = append(warns, Warning{Location: BoxLocation(box, slot), Err: res.err})
			metrics.AddDropped()
		case res.rec == nil:
			metrics.AddEmpty()
		default:
			metrics.AddRecord(pk3.BoxSize)
			m.Boxes[box].Slots[slot] = res.rec
		}
	}
	return m, warns
}
