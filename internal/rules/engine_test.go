package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"example.com/gbalink/internal/dex"
)

func TestWriteDiagnosticsNDJSON(t *testing.T) {
	eng := newTestEngine(t)
	allowed := eng.Validate(NewRequest(record(t, 252), dex.Emerald, Colosseum))
	denied := eng.Validate(NewRequest(withEgg(t, record(t, 25)), dex.Emerald, XD))

	outPath := filepath.Join(t.TempDir(), "diagnostics.jsonl")
	if err := eng.WriteDiagnosticsNDJSON(outPath); err != nil {
		t.Fatalf("WriteDiagnosticsNDJSON failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := bytesTrimSplit(data)
	// egg denial stops evaluation before the advisory rule
	if len(lines) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("unmarshal first line failed: %v", err)
	}
	if first["requestId"] != allowed.RequestId || first["severity"] != "INFO" {
		t.Fatalf("first diagnostic = %v", first)
	}
	if first["species"] != float64(252) || first["file"] != "test.sav" {
		t.Fatalf("first diagnostic context = %v", first)
	}

	var last map[string]any
	if err := json.Unmarshal(lines[1], &last); err != nil {
		t.Fatalf("unmarshal last line failed: %v", err)
	}
	if last["requestId"] != denied.RequestId || last["reason"] != "egg" || last["ruleId"] != "RP-GCN-002" {
		t.Fatalf("last diagnostic = %v", last)
	}
}

func TestMakeAcceptance(t *testing.T) {
	eng := newTestEngine(t)
	eng.Validate(NewRequest(record(t, 252), dex.Emerald, Colosseum))
	rep := eng.MakeAcceptance()
	if !rep.Summary.Pass || rep.Summary.Total != 1 || rep.Summary.Allowed != 1 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	if len(rep.GateMatrix) != len(eng.RulePack().Rules) {
		t.Fatalf("gate matrix rows = %d", len(rep.GateMatrix))
	}

	eng.Validate(NewRequest(record(t, 336), dex.Ruby, Colosseum))
	rep = eng.MakeAcceptance()
	if rep.Summary.Pass || rep.Summary.Denied != 1 || rep.Summary.Total != 2 {
		t.Fatalf("summary after denial = %+v", rep.Summary)
	}
	if rep.GateMatrix[0]["hits"] != 1 {
		t.Fatalf("exclusive gate hits = %v", rep.GateMatrix[0]["hits"])
	}
}

func TestMissingFunctionIsWarned(t *testing.T) {
	eng := NewEngine(RulePack{Rules: []Rule{{RuleId: "RP-X", Severity: ERROR, Func: "Nope"}}}, nil)
	d := eng.Validate(NewRequest(record(t, 25), dex.Emerald, XD))
	if !d.Allowed {
		t.Fatalf("unregistered rule must not deny: %+v", d)
	}
	diags := eng.Diagnostics()
	if len(diags) != 2 || diags[0].Severity != WARN || diags[0].Message != "no function for rule" {
		t.Fatalf("diagnostics = %+v", diags)
	}
}

func TestValidateConcurrent(t *testing.T) {
	eng := newTestEngine(t)
	var wg sync.WaitGroup
	reqs := make([]Request, 64)
	for i := range reqs {
		reqs[i] = NewRequest(record(t, uint16(1+i)), dex.FireRed, XD)
	}
	ids := make([]string, len(reqs))
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = eng.Validate(reqs[i]).RequestId
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if _, ok := eng.Decision(id); !ok {
			t.Fatalf("decision %s not recorded", id)
		}
	}
}

func TestLoadRulePack(t *testing.T) {
	rp, err := DefaultRulePack()
	if err != nil {
		t.Fatalf("DefaultRulePack: %v", err)
	}
	want := []Reason{ReasonSourceExclusive, ReasonEgg, ReasonShadow, ReasonStructural}
	for i, r := range want {
		if rp.Rules[i].Reason != r {
			t.Fatalf("rule %d reason = %q, want %q", i, rp.Rules[i].Reason, r)
		}
	}

	dir := t.TempDir()
	cases := map[string]string{
		"empty.json": `{"rulePackId":"x","rules":[]}`,
		"dup.json":   `{"rules":[{"ruleId":"A","severity":"ERROR"},{"ruleId":"A","severity":"ERROR"}]}`,
		"sev.json":   `{"rules":[{"ruleId":"A","severity":"FATAL"}]}`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadRulePack(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadRulePack(filepath.Join(dir, "empty.json")); !errors.Is(err, ErrEmptyRulePack) {
		t.Fatalf("empty pack err = %v", err)
	}
}

func TestNilRecordIsStructural(t *testing.T) {
	eng := newTestEngine(t)
	d := eng.Validate(Request{Source: dex.Emerald, Destination: XD})
	if d.Allowed || d.Reason != ReasonStructural || d.RequestId == "" {
		t.Fatalf("decision = %+v", d)
	}
}

func bytesTrimSplit(in []byte) [][]byte {
	in = bytes.TrimSpace(in)
	if len(in) == 0 {
		return nil
	}
	parts := bytes.Split(in, []byte{'\n'})
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		p = bytes.TrimSpace(p)
		if len(p) == 0 {
			continue
		}
		cp := make([]byte, len(p))
		copy(cp, p)
		out = append(out, cp)
	}
	return out
}
