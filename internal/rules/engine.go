package rules

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"example.com/gbalink/internal/dex"
	"example.com/gbalink/internal/pk3"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

// Reason tags a denial.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonSourceExclusive Reason = "source_exclusive"
	ReasonEgg             Reason = "egg"
	ReasonShadow          Reason = "shadow"
	ReasonStructural      Reason = "structural"
)

// Platform is a destination of a transfer.
type Platform string

const (
	Colosseum  Platform = "colosseum"
	XD         Platform = "xd"
	PokemonBox Platform = "box"
	// GBA is a handheld save receiving a record back from the GameCube.
	GBA Platform = "gba"
)

func ParsePlatform(s string) (Platform, error) {
	switch key := strings.ToLower(strings.TrimSpace(s)); key {
	case "colosseum", "col":
		return Colosseum, nil
	case "xd", "gale", "xd_gale":
		return XD, nil
	case "box", "pokemonbox", "pokemon box":
		return PokemonBox, nil
	case "gba", "handheld", "cartridge":
		return GBA, nil
	}
	return "", fmt.Errorf("unknown destination platform %q", s)
}

// Rule is one entry of a rule pack. Severity ERROR denies the transfer when
// the check fires; WARN only records a diagnostic.
type Rule struct {
	RuleId   string         `json:"ruleId"`
	Name     string         `json:"name,omitempty"`
	Severity Severity       `json:"severity"`
	Func     string         `json:"function"`
	Reason   Reason         `json:"reason,omitempty"`
	Refs     []string       `json:"refs"`
	Params   map[string]any `json:"params,omitempty"`
	Message  string         `json:"message"`
}

type RulePack struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
	Profile    string `json:"profile"`
	Rules      []Rule `json:"rules"`
}

// Request asks whether one record may move to a destination platform. It is
// consumed once by Validate and never mutated.
type Request struct {
	ID          string
	Record      *pk3.Record
	Source      dex.Game
	Destination Platform
	// Location is informational, e.g. "box 3 slot 9".
	Location string
}

// NewRequest copies rec so later edits by the caller cannot leak in.
func NewRequest(rec *pk3.Record, source dex.Game, dest Platform) Request {
	return Request{
		ID:          uuid.NewString(),
		Record:      rec.Clone(),
		Source:      source,
		Destination: dest,
	}
}

// Decision is the outcome of Validate. Denial is data, not an error.
type Decision struct {
	RequestId string `json:"requestId"`
	Allowed   bool   `json:"allowed"`
	Reason    Reason `json:"reason,omitempty"`
	RuleId    string `json:"ruleId,omitempty"`
	Message   string `json:"message"`
}

type Diagnostic struct {
	Ts          time.Time `json:"ts"`
	File        string    `json:"file,omitempty"`
	RequestId   string    `json:"requestId"`
	Location    string    `json:"location,omitempty"`
	Species     uint16    `json:"species,omitempty"`
	Source      dex.Game  `json:"source,omitempty"`
	Destination Platform  `json:"destination,omitempty"`
	RuleId      string    `json:"ruleId"`
	Severity    Severity  `json:"severity"`
	Reason      Reason    `json:"reason,omitempty"`
	Message     string    `json:"message"`
	Refs        []string  `json:"refs"`
}

type AcceptanceReport struct {
	Summary struct {
		Total    int  `json:"total"`
		Allowed  int  `json:"allowed"`
		Denied   int  `json:"denied"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	GateMatrix []map[string]any `json:"gateMatrix"`
	Findings   []Diagnostic     `json:"findings,omitempty"`
}

// Context carries the read-only resources checks may consult.
type Context struct {
	InputFile string
	Dex       *dex.Store
}

// CheckFunc inspects a request. It returns a message and whether the rule
// fired.
type CheckFunc func(ctx *Context, req Request, rule Rule) (string, bool)

type Engine struct {
	rulePack RulePack
	registry map[string]CheckFunc
	ctx      *Context

	mu          sync.Mutex
	diagnostics []Diagnostic
	decisions   map[string]Decision
}

func NewEngine(rp RulePack, ctx *Context) *Engine {
	if ctx == nil {
		ctx = &Context{}
	}
	return &Engine{
		rulePack:  rp,
		registry:  make(map[string]CheckFunc),
		ctx:       ctx,
		decisions: make(map[string]Decision),
	}
}

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

func (e *Engine) RulePack() RulePack {
	return e.rulePack
}

// Validate runs the pack's rules in order. The first ERROR rule that fires
// decides the denial; WARN rules are recorded and evaluation continues.
// Safe for concurrent use once all checks are registered.
func (e *Engine) Validate(req Request) Decision {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	var diags []Diagnostic
	decision := Decision{RequestId: req.ID, Allowed: true, Message: "transfer allowed"}
	for _, r := range e.rulePack.Rules {
		fn, ok := e.registry[r.Func]
		if !ok {
			diags = append(diags, e.diag(req, r, WARN, ReasonNone, "no function for rule"))
			continue
		}
		msg, fired := fn(e.ctx, req, r)
		if !fired {
			continue
		}
		if msg == "" {
			msg = r.Message
		}
		if r.Severity != ERROR {
			diags = append(diags, e.diag(req, r, r.Severity, ReasonNone, msg))
			continue
		}
		decision = Decision{RequestId: req.ID, Allowed: false, Reason: r.Reason, RuleId: r.RuleId, Message: msg}
		diags = append(diags, e.diag(req, r, ERROR, r.Reason, msg))
		break
	}
	if decision.Allowed {
		diags = append(diags, e.diag(req, Rule{RuleId: "ALLOW"}, INFO, ReasonNone, decision.Message))
	}

	e.mu.Lock()
	e.diagnostics = append(e.diagnostics, diags...)
	e.decisions[req.ID] = decision
	e.mu.Unlock()
	return decision
}

func (e *Engine) diag(req Request, r Rule, sev Severity, reason Reason, msg string) Diagnostic {
	d := Diagnostic{
		Ts:          time.Now(),
		File:        e.ctx.InputFile,
		RequestId:   req.ID,
		Location:    req.Location,
		Source:      req.Source,
		Destination: req.Destination,
		RuleId:      r.RuleId,
		Severity:    sev,
		Reason:      reason,
		Message:     msg,
		Refs:        r.Refs,
	}
	if req.Record != nil {
		if n, ok := req.Record.NationalDex(); ok {
			d.Species = n
		}
	}
	return d
}

// Diagnostics returns a copy of everything recorded so far.
func (e *Engine) Diagnostics() []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Diagnostic(nil), e.diagnostics...)
}

// Decision looks up an earlier outcome by request id.
func (e *Engine) Decision(requestID string) (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.decisions[requestID]
	return d, ok
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, d := range e.Diagnostics() {
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteString("\n")
	}
	return w.Flush()
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	diags := e.Diagnostics()
	counts := make(map[string]int)
	var errs, warns, allowed int
	for _, d := range diags {
		switch d.Severity {
		case ERROR:
			errs++
			counts[d.RuleId]++
		case WARN:
			warns++
			counts[d.RuleId]++
		case INFO:
			allowed++
		}
	}
	for _, r := range e.rulePack.Rules {
		rep.GateMatrix = append(rep.GateMatrix, map[string]any{
			"ruleId":   r.RuleId,
			"name":     r.Name,
			"severity": r.Severity,
			"reason":   r.Reason,
			"hits":     counts[r.RuleId],
		})
	}
	e.mu.Lock()
	rep.Summary.Total = len(e.decisions)
	e.mu.Unlock()
	rep.Summary.Allowed = allowed
	rep.Summary.Denied = errs
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Pass = errs == 0
	rep.Findings = diags
	return rep
}

//go:embed packs/gcn-transfer.json
var defaultPack []byte

// DefaultRulePack is the built-in GameCube transfer pack.
func DefaultRulePack() (RulePack, error) {
	return parseRulePack(defaultPack)
}

func LoadRulePack(path string) (RulePack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RulePack{}, err
	}
	return parseRulePack(b)
}

var ErrEmptyRulePack = errors.New("rule pack defines no rules")

func parseRulePack(b []byte) (RulePack, error) {
	var rp RulePack
	if err := json.Unmarshal(b, &rp); err != nil {
		return rp, err
	}
	if len(rp.Rules) == 0 {
		return rp, ErrEmptyRulePack
	}
	seen := make(map[string]bool)
	for i, r := range rp.Rules {
		if r.RuleId == "" {
			return rp, fmt.Errorf("rules[%d]: missing ruleId", i)
		}
		if seen[r.RuleId] {
			return rp, fmt.Errorf("rules[%d]: duplicate ruleId %s", i, r.RuleId)
		}
		seen[r.RuleId] = true
		switch r.Severity {
		case ERROR, WARN, INFO:
		default:
			return rp, fmt.Errorf("rules[%d]: unknown severity %q", i, r.Severity)
		}
	}
	return rp, nil
}
