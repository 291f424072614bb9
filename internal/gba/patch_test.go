package gba

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"example.com/gbalink/internal/common"
)

func parseOrFail(t *testing.T, img []byte) *Save {
	t.Helper()
	save, err := Parse(img, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return save
}

func TestWriteBoxRecordStraddlingSections(t *testing.T) {
	img := mustBuild(t, newTestBuilder(Emerald))
	save := parseOrFail(t, img)

	rec := sampleRecord(152, 0xCAFE, "CHIKORITA")
	out, edits, err := WriteBoxRecord(img, &save.Selection, 1, 19, rec)
	if err != nil {
		t.Fatalf("WriteBoxRecord: %v", err)
	}
	if bytes.Equal(out, img) {
		t.Fatalf("image unchanged")
	}
	// two data pieces plus two checksum footers
	if len(edits) != 4 {
		t.Fatalf("edits = %d", len(edits))
	}

	after := parseOrFail(t, out)
	if len(after.Warnings) != 0 {
		t.Fatalf("warnings after write: %v", after.Warnings)
	}
	got := after.Boxes.Boxes[1].Slots[19]
	if got == nil || got.NicknameText() != "CHIKORITA" || got.Growth.Species != 152 {
		t.Fatalf("slot = %+v", got)
	}
	if after.Boxes.Boxes[0].Slots[0].NicknameText() != "BULBASAUR" {
		t.Fatalf("neighbouring slot changed")
	}

	// Undo restores the original image byte for byte.
	undo := make([]PatchEdit, 0, len(edits))
	for i := len(edits) - 1; i >= 0; i-- {
		undo = append(undo, edits[i].Invert())
	}
	restored, err := ApplyEdits(out, undo)
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	if !bytes.Equal(restored, img) {
		t.Fatalf("undo did not restore the image")
	}
}

func TestWriteBoxRecordClear(t *testing.T) {
	img := mustBuild(t, newTestBuilder(Emerald))
	save := parseOrFail(t, img)
	out, _, err := WriteBoxRecord(img, &save.Selection, 13, 29, nil)
	if err != nil {
		t.Fatalf("WriteBoxRecord: %v", err)
	}
	after := parseOrFail(t, out)
	if after.Boxes.Boxes[13].Slots[29] != nil {
		t.Fatalf("slot not cleared")
	}
	if after.Boxes.Boxes[13].Name != "BOX14" {
		t.Fatalf("box name damaged: %q", after.Boxes.Boxes[13].Name)
	}
}

func TestWriteBoxRecordRejects(t *testing.T) {
	img := mustBuild(t, newTestBuilder(Emerald))
	save := parseOrFail(t, img)
	if _, _, err := WriteBoxRecord(img, &save.Selection, 14, 0, nil); !errors.Is(err, ErrSlotRange) {
		t.Fatalf("box 14: err = %v", err)
	}

	corruptSection(img, 0, 0, 7)
	save = parseOrFail(t, img)
	_, _, err := WriteBoxRecord(img, &save.Selection, 3, 10, sampleRecord(1, 1, "A"))
	if !errors.Is(err, ErrUntrustedSection) {
		t.Fatalf("untrusted write: err = %v", err)
	}
}

func TestWritePartyRecordAppends(t *testing.T) {
	for _, game := range []GameFamily{Emerald, FireRedLeafGreen} {
		img := mustBuild(t, newTestBuilder(game))
		save := parseOrFail(t, img)
		rec := sampleRecord(133, 0x77, "EEVEE")
		if _, _, err := WritePartyRecord(img, &save.Selection, LayoutFor(game), 2, rec); err == nil {
			t.Fatalf("write without party stats must fail")
		}
		rec.Party = save.Party[0].Record.Party
		out, _, err := WritePartyRecord(img, &save.Selection, LayoutFor(game), 2, rec)
		if err != nil {
			t.Fatalf("WritePartyRecord: %v", err)
		}
		after := parseOrFail(t, out)
		if len(after.Party) != 3 || after.Party[2].Record.NicknameText() != "EEVEE" {
			t.Fatalf("%s party = %+v", game, after.Party)
		}
		if _, _, err := WritePartyRecord(img, &save.Selection, LayoutFor(game), 4, rec); !errors.Is(err, ErrSlotRange) {
			t.Fatalf("gap write: err = %v", err)
		}
	}
}

func TestApplyPatchFile(t *testing.T) {
	img := mustBuild(t, newTestBuilder(Emerald))
	save := parseOrFail(t, img)
	out, edits, err := WriteBoxRecord(img, &save.Selection, 0, 1, sampleRecord(158, 0x99, "TOTODILE"))
	if err != nil {
		t.Fatalf("WriteBoxRecord: %v", err)
	}
	path := filepath.Join(t.TempDir(), "game.sav")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ApplyPatch(path, edits); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(onDisk, out) {
		t.Fatalf("file differs from in-memory result")
	}
	if err := ApplyPatch(path, []PatchEdit{{Offset: ImageSize, Data: []byte{1}}}); err == nil {
		t.Fatalf("expected bounds error")
	}
}

func TestUndoThroughAuditEntries(t *testing.T) {
	img := mustBuild(t, newTestBuilder(FireRedLeafGreen))
	save := parseOrFail(t, img)
	out, edits, err := WriteBoxRecord(img, &save.Selection, 5, 5, sampleRecord(252, 0x55, "TREECKO"))
	if err != nil {
		t.Fatalf("WriteBoxRecord: %v", err)
	}
	entries := AuditEntries("p1", common.OpInject, "box 6 slot 6", "game.sav", edits)
	patch := common.GroupPatches(entries)[0]
	undo, err := UndoEdits(patch)
	if err != nil {
		t.Fatalf("UndoEdits: %v", err)
	}
	if err := CheckBefore(out, undo); err != nil {
		t.Fatalf("CheckBefore: %v", err)
	}
	restored, err := ApplyEdits(out, undo)
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	if !bytes.Equal(restored, img) {
		t.Fatalf("undo did not restore the image")
	}
	// The original image does not carry the patched bytes.
	if err := CheckBefore(img, undo); !errors.Is(err, ErrStaleEdit) {
		t.Fatalf("stale check err = %v", err)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in   string
		want Location
	}{
		{"box 3 slot 9", BoxLocation(2, 8)},
		{"Box 14 Slot 30", BoxLocation(13, 29)},
		{"1:1", BoxLocation(0, 0)},
		{"party[5]", PartyLocation(5)},
	}
	for _, tc := range tests {
		got, err := ParseLocation(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("ParseLocation(%q) = %v, %v", tc.in, got, err)
		}
		if again, err := ParseLocation(got.String()); err != nil || again != got {
			t.Fatalf("String form of %q does not parse back", tc.in)
		}
	}
	for _, bad := range []string{"box 15 slot 1", "0:1", "party[6]", "attic", "3:31"} {
		if _, err := ParseLocation(bad); err == nil {
			t.Fatalf("ParseLocation(%q) should fail", bad)
		}
	}
}
