package rules

import (
	"testing"

	"example.com/gbalink/internal/dex"
	"example.com/gbalink/internal/pk3"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := dex.Default()
	if err != nil {
		t.Fatalf("dex.Default: %v", err)
	}
	eng, err := NewDefaultEngine(&Context{InputFile: "test.sav", Dex: store})
	if err != nil {
		t.Fatalf("NewDefaultEngine: %v", err)
	}
	return eng
}

// record builds a plain, transferable record of national species n.
func record(t *testing.T, national uint16) *pk3.Record {
	t.Helper()
	internal, ok := pk3.InternalFromNational(national)
	if !ok {
		t.Fatalf("no internal index for %d", national)
	}
	r := &pk3.Record{PID: 0x1234, OTID: 0x00020001}
	r.SetNickname("MON")
	r.Growth.Species = internal
	r.Effort = pk3.Effort{HP: 252, Attack: 252, Speed: 6}
	return r
}

func withEgg(t *testing.T, r *pk3.Record) *pk3.Record {
	t.Helper()
	iv := r.IVs()
	iv.Egg = true
	if err := r.SetIVs(iv); err != nil {
		t.Fatalf("SetIVs: %v", err)
	}
	return r
}

func TestValidateDecisions(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name   string
		rec    func() *pk3.Record
		source dex.Game
		dest   Platform
		allow  bool
		reason Reason
		ruleID string
	}{
		{"plain", func() *pk3.Record { return record(t, 25) }, dex.Emerald, Colosseum, true, ReasonNone, ""},
		{"ruby exclusive from ruby", func() *pk3.Record { return record(t, 335) }, dex.Ruby, XD, true, ReasonNone, ""},
		{"ruby exclusive from sapphire", func() *pk3.Record { return record(t, 335) }, dex.Sapphire, XD, false, ReasonSourceExclusive, "RP-GCN-001"},
		{"ruby exclusive from emerald", func() *pk3.Record { return record(t, 273) }, dex.Emerald, Colosseum, true, ReasonNone, ""},
		{"sapphire exclusive from emerald", func() *pk3.Record { return record(t, 302) }, dex.Emerald, XD, true, ReasonNone, ""},
		{"ruby exclusive from firered", func() *pk3.Record { return record(t, 335) }, dex.FireRed, XD, true, ReasonNone, ""},
		{"firered exclusive from leafgreen", func() *pk3.Record { return record(t, 58) }, dex.LeafGreen, Colosseum, false, ReasonSourceExclusive, "RP-GCN-001"},
		{"leafgreen exclusive from firered", func() *pk3.Record { return record(t, 37) }, dex.FireRed, XD, false, ReasonSourceExclusive, "RP-GCN-001"},
		{"kanto starter from leafgreen", func() *pk3.Record { return record(t, 1) }, dex.LeafGreen, Colosseum, true, ReasonNone, ""},
		{"snorlax from leafgreen", func() *pk3.Record { return record(t, 143) }, dex.LeafGreen, Colosseum, true, ReasonNone, ""},
		{"legendary bird from leafgreen", func() *pk3.Record { return record(t, 144) }, dex.LeafGreen, Colosseum, true, ReasonNone, ""},
		{"undeclared source", func() *pk3.Record { return record(t, 37) }, "", Colosseum, false, ReasonSourceExclusive, "RP-GCN-001"},
		{"undeclared source without exclusive", func() *pk3.Record { return record(t, 7) }, "", Colosseum, true, ReasonNone, ""},
		{"egg", func() *pk3.Record { return withEgg(t, record(t, 25)) }, dex.Emerald, Colosseum, false, ReasonEgg, "RP-GCN-002"},
		{"purified shadow", func() *pk3.Record {
			r := record(t, 25)
			r.SetShadowProgress(pk3.ShadowPurified)
			return r
		}, dex.Emerald, XD, true, ReasonNone, ""},
		{"effort total", func() *pk3.Record {
			r := record(t, 25)
			r.Effort.Defense = 1
			return r
		}, dex.Emerald, XD, false, ReasonStructural, "RP-GCN-004"},
		{"placeholder species", func() *pk3.Record {
			r := record(t, 25)
			r.Growth.Species = 260
			return r
		}, dex.Emerald, XD, false, ReasonStructural, "RP-GCN-004"},
		{"bad egg", func() *pk3.Record {
			r := record(t, 25)
			r.Flags |= 0x01
			return r
		}, dex.Emerald, XD, false, ReasonStructural, "RP-GCN-004"},
		{"party level zero", func() *pk3.Record {
			r := record(t, 25)
			r.Party = &pk3.PartyStats{Level: 0}
			return r
		}, dex.Emerald, XD, false, ReasonStructural, "RP-GCN-004"},
		{"party level 100", func() *pk3.Record {
			r := record(t, 25)
			r.Party = &pk3.PartyStats{Level: 100}
			return r
		}, dex.Emerald, XD, true, ReasonNone, ""},
		{"shadow back to gba", func() *pk3.Record {
			r := record(t, 25)
			r.SetShadowProgress(40)
			return r
		}, dex.Emerald, GBA, false, ReasonShadow, "RP-GCN-003"},
		{"purified back to gba", func() *pk3.Record {
			r := record(t, 249)
			r.SetShadowProgress(pk3.ShadowPurified)
			return r
		}, "", GBA, true, ReasonNone, ""},
		{"egg back to gba", func() *pk3.Record { return withEgg(t, record(t, 25)) }, dex.Emerald, GBA, false, ReasonEgg, "RP-GCN-002"},
		{"exclusive back to gba", func() *pk3.Record { return record(t, 58) }, dex.LeafGreen, GBA, true, ReasonNone, ""},
		{"placeholder species to gba", func() *pk3.Record {
			r := record(t, 25)
			r.Growth.Species = 260
			return r
		}, dex.Emerald, GBA, false, ReasonStructural, "RP-GCN-004"},
		{"egg before shadow", func() *pk3.Record {
			r := withEgg(t, record(t, 25))
			r.SetShadowProgress(40)
			return r
		}, dex.Emerald, XD, false, ReasonEgg, "RP-GCN-002"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := eng.Validate(NewRequest(tc.rec(), tc.source, tc.dest))
			if d.Allowed != tc.allow || d.Reason != tc.reason || d.RuleId != tc.ruleID {
				t.Fatalf("decision = %+v, want allowed=%v reason=%q rule=%q", d, tc.allow, tc.reason, tc.ruleID)
			}
			if d.RequestId == "" || d.Message == "" {
				t.Fatalf("decision missing request id or message: %+v", d)
			}
		})
	}
}

func TestShadowDeniedRegardlessOfLaterFields(t *testing.T) {
	eng := newTestEngine(t)
	for _, progress := range []uint8{1, 0x7F, 0xFE} {
		variants := []func(r *pk3.Record){
			func(r *pk3.Record) {},
			func(r *pk3.Record) { r.Effort = pk3.Effort{HP: 255, Attack: 255, Defense: 255} },
			func(r *pk3.Record) { r.Party = &pk3.PartyStats{Level: 0} },
			func(r *pk3.Record) { r.Flags |= 0x01 },
		}
		for i, mutate := range variants {
			r := record(t, 249)
			r.SetShadowProgress(progress)
			mutate(r)
			d := eng.Validate(NewRequest(r, dex.Emerald, XD))
			if d.Allowed || d.Reason != ReasonShadow {
				t.Fatalf("progress %d variant %d: decision = %+v", progress, i, d)
			}
		}
	}
}

func TestDestinationAvailabilityIsAdvisory(t *testing.T) {
	eng := newTestEngine(t)
	// Lugia is only listed for XD.
	d := eng.Validate(NewRequest(record(t, 249), dex.Emerald, Colosseum))
	if !d.Allowed {
		t.Fatalf("advisory rule must not deny: %+v", d)
	}
	var warned bool
	for _, diag := range eng.Diagnostics() {
		if diag.RequestId == d.RequestId && diag.RuleId == "RP-GCN-101" && diag.Severity == WARN {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected availability warning")
	}
}

func TestNewRequestCopiesRecord(t *testing.T) {
	r := record(t, 25)
	req := NewRequest(r, dex.Ruby, PokemonBox)
	r.Growth.Species = 0
	if req.Record.Growth.Species == 0 {
		t.Fatalf("request aliases the caller's record")
	}
	other := NewRequest(r, dex.Ruby, PokemonBox)
	if req.ID == other.ID {
		t.Fatalf("request ids must be unique")
	}
}

func TestParsePlatform(t *testing.T) {
	for in, want := range map[string]Platform{"Colosseum": Colosseum, "xd_gale": XD, " box ": PokemonBox, "GBA": GBA, "handheld": GBA} {
		got, err := ParsePlatform(in)
		if err != nil || got != want {
			t.Fatalf("ParsePlatform(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePlatform("stadium"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParamIntConversions(t *testing.T) {
	rule := Rule{Params: map[string]any{"a": float64(7), "b": "9", "c": int64(3), "d": true}}
	if paramInt(rule, "a", 0) != 7 || paramInt(rule, "b", 0) != 9 || paramInt(rule, "c", 0) != 3 {
		t.Fatalf("unexpected conversions")
	}
	if paramInt(rule, "d", 5) != 5 || paramInt(rule, "missing", 6) != 6 {
		t.Fatalf("defaults not applied")
	}
}
