package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckSourceExclusive", CheckSourceExclusive)
	e.Register("CheckEgg", CheckEgg)
	e.Register("CheckShadow", CheckShadow)
	e.Register("CheckStructural", CheckStructural)
	e.Register("WarnDestinationAvailability", WarnDestinationAvailability)
}

// NewDefaultEngine loads the built-in pack and registers the builtins.
func NewDefaultEngine(ctx *Context) (*Engine, error) {
	rp, err := DefaultRulePack()
	if err != nil {
		return nil, err
	}
	eng := NewEngine(rp, ctx)
	eng.RegisterBuiltins()
	return eng, nil
}

// CheckSourceExclusive fires when the declared source game cannot obtain
// the species because it belongs to the other version of the pair. An
// undeclared source fails for every version exclusive. Records returning to
// a cartridge are not checked.
func CheckSourceExclusive(ctx *Context, req Request, rule Rule) (string, bool) {
	if req.Record == nil || ctx.Dex == nil || req.Destination == GBA {
		return "", false
	}
	national, ok := req.Record.NationalDex()
	if !ok {
		return "", false
	}
	games := ctx.Dex.ExclusiveTo(national)
	if len(games) == 0 {
		return "", false
	}
	names := make([]string, len(games))
	for i, g := range games {
		names[i] = string(g)
	}
	if req.Source == "" {
		return fmt.Sprintf("%s is exclusive to %s, source undeclared",
			ctx.Dex.SpeciesName(national), strings.Join(names, "/")), true
	}
	if ctx.Dex.ObtainableIn(req.Source, national) {
		return "", false
	}
	return fmt.Sprintf("%s is exclusive to %s, not obtainable in %s",
		ctx.Dex.SpeciesName(national), strings.Join(names, "/"), req.Source), true
}

func CheckEgg(ctx *Context, req Request, rule Rule) (string, bool) {
	if req.Record == nil || !req.Record.IsEgg() {
		return "", false
	}
	return rule.Message, true
}

// CheckShadow fires while purification is in progress. Zero (never shadow)
// and 0xFF (purified) pass.
func CheckShadow(ctx *Context, req Request, rule Rule) (string, bool) {
	if req.Record == nil || !req.Record.IsShadow() {
		return "", false
	}
	return fmt.Sprintf("%s (progress %d)", rule.Message, req.Record.ShadowProgress()), true
}

func CheckStructural(ctx *Context, req Request, rule Rule) (string, bool) {
	rec := req.Record
	if rec == nil {
		return "no record", true
	}
	if rec.IsBadEgg() {
		return "bad egg flag set", true
	}
	maxNational := paramInt(rule, "maxNational", 386)
	national, ok := rec.NationalDex()
	if !ok || int(national) > maxNational {
		return fmt.Sprintf("species index %d outside national 1..%d", rec.Growth.Species, maxNational), true
	}
	if total, limit := rec.Effort.Total(), paramInt(rule, "maxEvTotal", 510); total > limit {
		return fmt.Sprintf("effort total %d exceeds %d", total, limit), true
	}
	if rec.Party != nil {
		lo, hi := paramInt(rule, "minLevel", 1), paramInt(rule, "maxLevel", 100)
		if lvl := int(rec.Party.Level); lvl < lo || lvl > hi {
			return fmt.Sprintf("level %d outside %d..%d", lvl, lo, hi), true
		}
	}
	return "", false
}

// WarnDestinationAvailability is advisory: a species the destination cannot
// normally obtain is still transferable.
func WarnDestinationAvailability(ctx *Context, req Request, rule Rule) (string, bool) {
	if req.Record == nil || ctx.Dex == nil {
		return "", false
	}
	national, ok := req.Record.NationalDex()
	if !ok {
		return "", false
	}
	available, known := ctx.Dex.Available(string(req.Destination), national)
	if !known || available {
		return "", false
	}
	return fmt.Sprintf("%s is not obtainable in %s", ctx.Dex.SpeciesName(national), req.Destination), true
}

func paramInt(rule Rule, key string, def int) int {
	v, ok := rule.Params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		if n > math.MaxInt32 {
			return def
		}
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}
