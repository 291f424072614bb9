package gba

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/pk3"
)

func sampleRecord(species uint16, pid uint32, name string) *pk3.Record {
	r := &pk3.Record{PID: pid, OTID: 12345 | 54321<<16, Language: 2, Flags: 0x02}
	r.SetNickname(name)
	r.SetOTName("ALEX")
	r.Growth = pk3.Growth{Species: species, Experience: 1000, Friendship: 70}
	r.Attacks = pk3.Attacks{Moves: [4]uint16{33, 45}, PP: [4]uint8{35, 40}}
	r.Effort = pk3.Effort{HP: 10, Speed: 20}
	_ = r.SetOrigin(pk3.Origin{MetLevel: 5, Game: 2, Ball: 4})
	_ = r.SetIVs(pk3.IVs{HP: 31, Attack: 7, Speed: 12})
	return r
}

func testTrainer(game GameFamily) Trainer {
	return Trainer{
		Name:        "ALEX",
		TrainerID:   12345,
		SecretID:    54321,
		PlayTime:    PlayTime{Hours: 12, Minutes: 34, Seconds: 56},
		Game:        game,
		SecurityKey: 0xDEADBEEF,
		Money:       3000,
	}
}

func newTestBuilder(game GameFamily) *Builder {
	b := NewBuilder(testTrainer(game))
	b.Party = []*pk3.Record{sampleRecord(280, 0x10, "TORCHIC"), sampleRecord(25, 0x21, "PIKACHU")}
	b.Put(0, 0, sampleRecord(1, 0x100, "BULBASAUR"))
	b.Put(1, 19, sampleRecord(4, 0x201, "CHARMANDER")) // stream slot 49, spans sections 5 and 6
	b.Put(3, 10, sampleRecord(7, 0x302, "SQUIRTLE"))   // stream slot 100
	b.Put(13, 29, sampleRecord(411, 0x403, "CHIMECHO"))
	b.BoxNames[2] = "FAVES"
	b.Wallpapers[2] = 7
	b.CurrentBox = 3
	return b
}

func mustBuild(t *testing.T, b *Builder) []byte {
	t.Helper()
	img, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return img
}

func corruptSection(img []byte, slot, rotation int, id uint16) {
	img[SectionOffset(slot, rotation, id)+16] ^= 0xFF
}

func TestParseBuiltImage(t *testing.T) {
	for _, game := range []GameFamily{RubySapphire, Emerald, FireRedLeafGreen} {
		for _, rotation := range []int{0, 5, 13} {
			b := newTestBuilder(game)
			b.Rotation = rotation
			img := mustBuild(t, b)
			orig := append([]byte(nil), img...)

			metrics := common.NewMetrics()
			save, err := Parse(img, Options{Concurrency: 4, Metrics: metrics})
			if err != nil {
				t.Fatalf("%s rot %d: Parse: %v", game, rotation, err)
			}
			if !bytes.Equal(img, orig) {
				t.Fatalf("Parse modified the image")
			}
			if len(save.Warnings) != 0 {
				t.Fatalf("%s rot %d: warnings %v", game, rotation, save.Warnings)
			}
			tr := save.Trainer
			if tr == nil || tr.Name != "ALEX" || tr.TrainerID != 12345 || tr.SecretID != 54321 {
				t.Fatalf("trainer = %+v", tr)
			}
			if tr.Game != game {
				t.Fatalf("game = %s, want %s", tr.Game, game)
			}
			if tr.Money != 3000 {
				t.Fatalf("%s money = %d", game, tr.Money)
			}
			if tr.PlayTime.String() != "12:34:56" {
				t.Fatalf("play time = %s", tr.PlayTime)
			}
			if len(save.Party) != 2 || save.Party[0].Record.NicknameText() != "TORCHIC" {
				t.Fatalf("party = %+v", save.Party)
			}
			if save.Party[1].Record.Level() != 5 {
				t.Fatalf("party level = %d", save.Party[1].Record.Level())
			}
			boxes := save.Boxes
			if boxes.CurrentBox != 3 {
				t.Fatalf("current box = %d", boxes.CurrentBox)
			}
			if boxes.Boxes[2].Name != "FAVES" || boxes.Boxes[2].Wallpaper != 7 || boxes.Boxes[0].Name != "BOX1" {
				t.Fatalf("box metadata = %q/%d", boxes.Boxes[2].Name, boxes.Boxes[2].Wallpaper)
			}
			checks := []struct {
				box, slot int
				name      string
			}{
				{0, 0, "BULBASAUR"}, {1, 19, "CHARMANDER"}, {3, 10, "SQUIRTLE"}, {13, 29, "CHIMECHO"},
			}
			for _, c := range checks {
				r := boxes.Boxes[c.box].Slots[c.slot]
				if r == nil || r.NicknameText() != c.name {
					t.Fatalf("box %d slot %d = %+v, want %s", c.box, c.slot, r, c.name)
				}
			}
			if len(save.Records()) != 6 {
				t.Fatalf("records = %d", len(save.Records()))
			}
			snap := metrics.Snapshot()
			if snap.Records != 6 || snap.Dropped != 0 || snap.Empty != BoxSlotTotal-4 {
				t.Fatalf("metrics = %+v", snap)
			}
		}
	}
}

func TestChecksumDetectsSingleByteChange(t *testing.T) {
	img := mustBuild(t, newTestBuilder(Emerald))
	a, _, err := LocateSlots(img)
	if err != nil {
		t.Fatalf("LocateSlots: %v", err)
	}
	for id := uint16(0); id < NumSections; id++ {
		s := a.Sections[id]
		if !s.Verify() {
			t.Fatalf("section %d does not verify", id)
		}
		for _, pos := range []int{0, 1, DataSize(id) - 1} {
			mut := *s
			mut.Data = append([]byte(nil), s.Data...)
			mut.Data[pos]++
			if mut.Verify() {
				t.Fatalf("section %d: change at %d undetected", id, pos)
			}
		}
	}
}

func TestChecksumFold(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], 0xFFFF0001)
	binary.LittleEndian.PutUint32(payload[4:], 0x00020003)
	// 0xFFFF0001 + 0x00020003 = 0x00010004 (wrapped); 0x0001 + 0x0004
	if got := Checksum(payload); got != 0x0005 {
		t.Fatalf("Checksum = 0x%04X, want 0x0005", got)
	}
}

func TestSlotSelection(t *testing.T) {
	tests := []struct {
		name       string
		active     int
		backup     bool
		corrupt    func(img []byte)
		wantSlot   int
		wantReason SelectionReason
	}{
		{name: "single slot A", active: 0, wantSlot: 0, wantReason: ReasonOnlySlot},
		{name: "single slot B", active: 1, wantSlot: 1, wantReason: ReasonOnlySlot},
		{name: "newest A", active: 0, backup: true, wantSlot: 0, wantReason: ReasonNewest},
		{name: "newest B", active: 1, backup: true, wantSlot: 1, wantReason: ReasonNewest},
		{
			name: "fallback to older", active: 1, backup: true,
			corrupt: func(img []byte) {
				for id := uint16(0); id < 8; id++ {
					corruptSection(img, 1, 0, id)
				}
			},
			wantSlot: 0, wantReason: ReasonFallback,
		},
		{
			name: "newest with minority damage", active: 1, backup: true,
			corrupt: func(img []byte) {
				for id := uint16(0); id < 6; id++ {
					corruptSection(img, 1, 0, id)
				}
			},
			wantSlot: 1, wantReason: ReasonNewest,
		},
		{
			name: "both damaged, more valid wins", active: 0, backup: true,
			corrupt: func(img []byte) {
				for id := uint16(0); id < 10; id++ {
					corruptSection(img, 0, 0, id)
				}
				for id := uint16(0); id < 8; id++ {
					corruptSection(img, 1, 1, id)
				}
			},
			wantSlot: 1, wantReason: ReasonMostValid,
		},
		{
			name: "both damaged equally, slot A", active: 1, backup: true,
			corrupt: func(img []byte) {
				for id := uint16(0); id < 9; id++ {
					corruptSection(img, 0, 1, id)
					corruptSection(img, 1, 0, id)
				}
			},
			wantSlot: 0, wantReason: ReasonMostValid,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBuilder(Emerald)
			b.Generation = 10
			b.ActiveSlot = tc.active
			b.Backup = tc.backup
			img := mustBuild(t, b)
			if tc.corrupt != nil {
				tc.corrupt(img)
			}
			for run := 0; run < 3; run++ {
				a, bs, err := LocateSlots(img)
				if err != nil {
					t.Fatalf("LocateSlots: %v", err)
				}
				sel, err := SelectActive(a, bs)
				if err != nil {
					t.Fatalf("SelectActive: %v", err)
				}
				if sel.Active.Index != tc.wantSlot || sel.Reason != tc.wantReason {
					t.Fatalf("selected slot %d (%s), want %d (%s)", sel.Active.Index, sel.Reason, tc.wantSlot, tc.wantReason)
				}
			}
		})
	}
}

func TestGenerationIsMostCommonIndex(t *testing.T) {
	b := newTestBuilder(Emerald)
	b.Generation = 42
	img := mustBuild(t, b)
	off := SectionOffset(0, 0, 3)
	binary.LittleEndian.PutUint32(img[off+footerSaveIndex:], 99)
	a, _, err := LocateSlots(img)
	if err != nil {
		t.Fatalf("LocateSlots: %v", err)
	}
	if a.Generation != 42 {
		t.Fatalf("generation = %d, want 42", a.Generation)
	}
}

func TestCorruptImage(t *testing.T) {
	t.Run("blank", func(t *testing.T) {
		_, err := Parse(make([]byte, ImageSize), Options{})
		if !errors.Is(err, ErrCorruptImage) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("short", func(t *testing.T) {
		_, err := Parse(make([]byte, 100), Options{})
		if !IsCorrupt(err) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("no checksum passes", func(t *testing.T) {
		b := newTestBuilder(Emerald)
		b.Backup = true
		img := mustBuild(t, b)
		for id := uint16(0); id < NumSections; id++ {
			corruptSection(img, 0, 0, id)
			corruptSection(img, 1, 1, id)
		}
		_, err := Parse(img, Options{})
		if !errors.Is(err, ErrCorruptImage) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("bad signatures", func(t *testing.T) {
		img := mustBuild(t, newTestBuilder(Emerald))
		for id := uint16(0); id < NumSections; id++ {
			off := SectionOffset(0, 0, id)
			binary.LittleEndian.PutUint32(img[off+footerSignature:], 0)
		}
		_, err := Parse(img, Options{})
		if !errors.Is(err, ErrCorruptImage) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestDuplicateSectionIDsAreIgnored(t *testing.T) {
	img := mustBuild(t, newTestBuilder(Emerald))
	off := SectionOffset(0, 0, 4)
	binary.LittleEndian.PutUint16(img[off+footerID:], 3)
	a, _, err := LocateSlots(img)
	if err != nil {
		t.Fatalf("LocateSlots: %v", err)
	}
	if a.Sections[3] != nil || a.Sections[4] != nil {
		t.Fatalf("duplicated id 3 should leave ids 3 and 4 empty")
	}
	if a.Present != 12 || !a.Recognized {
		t.Fatalf("present = %d", a.Present)
	}
}

func TestCorruptionIsolationWithinBox(t *testing.T) {
	b := NewBuilder(testTrainer(Emerald))
	for slot := 0; slot < SlotsPerBox; slot++ {
		b.Put(2, slot, sampleRecord(uint16(1+slot), uint32(0x1000+slot), "MON"))
	}
	img := mustBuild(t, b)

	// Flip one ciphertext byte of box 3 slot 8 and reseal the section so only
	// the record checksum catches it.
	a, bs, _ := LocateSlots(img)
	sel, err := SelectActive(a, bs)
	if err != nil {
		t.Fatalf("SelectActive: %v", err)
	}
	ps := NewPCStream(&sel)
	pieces, err := ps.locate(BoxSlotOffset(2, 8)+0x24, 1)
	if err != nil || len(pieces) != 1 {
		t.Fatalf("locate: %v %v", pieces, err)
	}
	p := pieces[0]
	img[p.section.Offset+int64(p.at)] ^= 0x40
	sec := readSection(img, p.section.Offset)
	sec.Reseal()
	copy(img[sec.Offset:], sec.Data)

	save, err := Parse(img, Options{Concurrency: 3})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := save.Boxes.Boxes[2].Occupied(); got != SlotsPerBox-1 {
		t.Fatalf("occupied = %d, want %d", got, SlotsPerBox-1)
	}
	if len(save.Warnings) != 1 {
		t.Fatalf("warnings = %v", save.Warnings)
	}
	w := save.Warnings[0]
	if w.Location != BoxLocation(2, 8) || !errors.Is(w.Err, pk3.ErrChecksumMismatch) {
		t.Fatalf("warning = %s", w)
	}
	if w.Location.String() != "box 3 slot 9" {
		t.Fatalf("location = %s", w.Location)
	}
	for slot, r := range save.Boxes.Boxes[2].Slots {
		if slot == 8 {
			continue
		}
		if r == nil || r.Growth.Species != uint16(1+slot) {
			t.Fatalf("slot %d = %+v", slot, r)
		}
	}
}

func TestUntrustedSectionDropsOverlappingSlots(t *testing.T) {
	b := newTestBuilder(Emerald)
	img := mustBuild(t, b)
	corruptSection(img, 0, 0, 6)

	save, err := Parse(img, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if save.Boxes.Boxes[1].Slots[19] != nil {
		t.Fatalf("record spanning sections 5/6 must be dropped")
	}
	if save.Boxes.Boxes[3].Slots[10] == nil || save.Boxes.Boxes[0].Slots[0] == nil {
		t.Fatalf("records outside section 6 must survive")
	}
	var hit bool
	for _, w := range save.Warnings {
		if w.Location == BoxLocation(1, 19) {
			hit = errors.Is(w.Err, ErrUntrustedSection)
		}
	}
	if !hit {
		t.Fatalf("no untrusted-section warning for box 2 slot 20: %v", save.Warnings)
	}
	// Stream slots 49..99 touch section 6.
	if len(save.Warnings) != 51 {
		t.Fatalf("warnings = %d, want 51", len(save.Warnings))
	}
}

func TestUntrustedPartySection(t *testing.T) {
	img := mustBuild(t, newTestBuilder(RubySapphire))
	corruptSection(img, 0, 0, 1)
	save, err := Parse(img, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(save.Party) != 0 {
		t.Fatalf("party decoded from untrusted section")
	}
	if save.Trainer == nil || save.Trainer.Money != 0 {
		t.Fatalf("trainer = %+v", save.Trainer)
	}
	if save.Boxes.Boxes[0].Slots[0] == nil {
		t.Fatalf("boxes must still decode")
	}
}

func TestUnknownFamilySkipsParty(t *testing.T) {
	for _, game := range []GameFamily{RubySapphire, FireRedLeafGreen, Emerald} {
		img := mustBuild(t, newTestBuilder(game))
		corruptSection(img, 0, 0, 0)
		save, err := Parse(img, Options{})
		if err != nil {
			t.Fatalf("%s: Parse: %v", game, err)
		}
		if save.Trainer != nil || len(save.Party) != 0 {
			t.Fatalf("%s: trainer = %+v, party = %d", game, save.Trainer, len(save.Party))
		}
		var skipped bool
		for _, w := range save.Warnings {
			if w.Location == PartyLocation(-1) && errors.Is(w.Err, ErrUnknownGame) {
				skipped = true
			}
		}
		if !skipped {
			t.Fatalf("%s: no party warning: %v", game, save.Warnings)
		}
		if _, err := save.PartyLayout(); !errors.Is(err, ErrUnknownGame) {
			t.Fatalf("%s: PartyLayout err = %v", game, err)
		}
		if save.Boxes.Boxes[0].Slots[0] == nil {
			t.Fatalf("%s: boxes must still decode", game)
		}
	}
}

func TestPartyCountClamped(t *testing.T) {
	b := newTestBuilder(FireRedLeafGreen)
	img := mustBuild(t, b)
	off := SectionOffset(0, 0, 1)
	layout := LayoutFor(FireRedLeafGreen)
	binary.LittleEndian.PutUint32(img[off+int64(layout.PartyCount):], 200)
	sec := readSection(img, off)
	sec.Reseal()
	copy(img[off:], sec.Data)

	save, err := Parse(img, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(save.Party) != 2 || len(save.Warnings) != 0 {
		t.Fatalf("party = %d, warnings = %v", len(save.Party), save.Warnings)
	}
}

func TestStreamMatchesManualConcatenation(t *testing.T) {
	img := mustBuild(t, newTestBuilder(Emerald))
	a, bs, _ := LocateSlots(img)
	sel, err := SelectActive(a, bs)
	if err != nil {
		t.Fatalf("SelectActive: %v", err)
	}
	var manual []byte
	for id := uint16(firstPCSection); id <= lastPCSection; id++ {
		manual = append(manual, sel.Section(id).Payload()...)
	}
	if len(manual) != PCBufferSize {
		t.Fatalf("manual buffer = %d bytes", len(manual))
	}
	ps := NewPCStream(&sel)
	if ps.Size() != PCBufferSize {
		t.Fatalf("stream size = %d", ps.Size())
	}
	for _, idx := range []int{0, 49, 99, BoxSlotTotal - 1} {
		off := BoxSlotOffset(idx/SlotsPerBox, idx%SlotsPerBox)
		got, err := ps.Slice(off, pk3.BoxSize)
		if err != nil {
			t.Fatalf("slot %d: %v", idx, err)
		}
		if !bytes.Equal(got, manual[off:off+pk3.BoxSize]) {
			t.Fatalf("slot %d differs from manual concatenation", idx)
		}
	}
	if ids := ps.Sections(BoxSlotOffset(1, 19), pk3.BoxSize); len(ids) != 2 || ids[0] != 5 || ids[1] != 6 {
		t.Fatalf("slot 49 sections = %v", ids)
	}
	if ids := ps.Sections(BoxSlotOffset(13, 29), pk3.BoxSize); len(ids) != 1 || ids[0] != 13 {
		t.Fatalf("last slot sections = %v", ids)
	}
}
