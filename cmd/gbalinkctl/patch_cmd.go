package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/config"
	"example.com/gbalink/internal/gba"
	"example.com/gbalink/internal/pk3"
	"example.com/gbalink/internal/rules"
)

// auditImage is the key patches are logged under.
func auditImage(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// commit writes the patched image and appends the audit entries. Writing in
// place only touches the edited bytes.
func commit(in, out string, patched []byte, edits []gba.PatchEdit, log *common.PatchLog, op, ref string) string {
	target := in
	if out != "" && out != in {
		target = out
		exitOn("write image", common.WriteFileAtomic(out, patched))
	} else {
		exitOn("apply patch", gba.ApplyPatch(in, edits))
	}
	id := uuid.NewString()
	exitOn("audit", log.Append(gba.AuditEntries(id, op, ref, auditImage(target), edits)...))
	return id
}

func injectCmd(args []string) {
	fs := flag.NewFlagSet("inject", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	in := fs.String("in", "", "save image to modify")
	recPath := fs.String("pk3", "", "80 or 100 byte record file")
	at := fs.String("at", "", `target slot: "box N slot M", N:M or party[i]`)
	out := fs.String("out", "", "write the result here instead of modifying --in")
	audit := fs.String("audit", "", "patch audit log (jsonl)")
	source := fs.String("source", "", "source cartridge of the record")
	target := fs.String("target", string(rules.GBA), "destination platform for the transfer check")
	force := fs.Bool("force", false, "inject even when the transfer check denies the record")
	fs.Parse(args)

	if *in == "" || *recPath == "" || *at == "" {
		required("--in", "--pk3", "--at")
	}
	cfg, closer := setup(*cfgPath, "inject")
	defer closer.Close()

	loc, err := gba.ParseLocation(*at)
	exitOn("location", err)
	raw, err := os.ReadFile(*recPath)
	exitOn("read record", err)
	rec, err := pk3.Decode(raw)
	exitOn("decode record", err)
	save, img, err := gba.ParseFile(*in, gba.Options{Concurrency: cfg.Concurrency})
	exitOn("parse", err)

	store, err := loadDex(cfg.Dex)
	exitOn("dex", err)
	dest, err := rules.ParsePlatform(*target)
	exitOn("target", err)
	engine, err := newEngine(cfg.RulePack, *recPath, store)
	exitOn("rule pack", err)
	src, err := resolveSource(*source, save)
	exitOn("source", err)
	req := rules.NewRequest(rec, src, dest)
	req.Location = loc.String()
	decision := engine.Validate(req)
	if !decision.Allowed {
		if !*force {
			fmt.Printf("denied (%s): %s\n", decision.RuleId, decision.Message)
			os.Exit(1)
		}
		fmt.Printf("WARNING: injecting despite denial (%s): %s\n", decision.RuleId, decision.Message)
	}

	var (
		patched []byte
		edits   []gba.PatchEdit
	)
	if loc.Party {
		if rec.Party == nil {
			exitOn("inject", errors.New("party slots need a 100 byte record"))
		}
		var layout gba.Layout
		layout, err = save.PartyLayout()
		exitOn("inject", err)
		patched, edits, err = gba.WritePartyRecord(img, &save.Selection, layout, loc.Slot, rec)
	} else {
		patched, edits, err = gba.WriteBoxRecord(img, &save.Selection, loc.Box, loc.Slot, rec)
	}
	exitOn("inject", err)

	log := common.NewPatchLog(pick(*audit, cfg.AuditLog))
	id := commit(*in, *out, patched, edits, log, common.OpInject, loc.String())
	common.Logf("inject %s into %s: patch %s, %d edits", *recPath, loc, id, len(edits))
	fmt.Printf("Injected %s into %s (patch %s, %d edits)\n", filepath.Base(*recPath), loc, id, len(edits))
	fmt.Println("Audit log:", log.Path())
}

func clearCmd(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	in := fs.String("in", "", "save image to modify")
	at := fs.String("at", "", `box slot: "box N slot M" or N:M`)
	out := fs.String("out", "", "write the result here instead of modifying --in")
	audit := fs.String("audit", "", "patch audit log (jsonl)")
	fs.Parse(args)

	if *in == "" || *at == "" {
		required("--in", "--at")
	}
	cfg, closer := setup(*cfgPath, "clear")
	defer closer.Close()

	loc, err := gba.ParseLocation(*at)
	exitOn("location", err)
	if loc.Party {
		exitOn("location", errors.New("party slots cannot be cleared"))
	}
	save, img, err := gba.ParseFile(*in, gba.Options{Concurrency: cfg.Concurrency})
	exitOn("parse", err)
	patched, edits, err := gba.WriteBoxRecord(img, &save.Selection, loc.Box, loc.Slot, nil)
	exitOn("clear", err)
	log := common.NewPatchLog(pick(*audit, cfg.AuditLog))
	id := commit(*in, *out, patched, edits, log, common.OpClear, loc.String())
	fmt.Printf("Cleared %s (patch %s)\n", loc, id)
}

func undoCmd(args []string) {
	fs := flag.NewFlagSet("undo", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	in := fs.String("in", "", "patched save image")
	audit := fs.String("audit", "", "patch audit log (jsonl)")
	fs.Parse(args)

	if *in == "" {
		required("--in")
	}
	cfg, closer := setup(*cfgPath, "undo")
	defer closer.Close()

	log := common.NewPatchLog(pick(*audit, cfg.AuditLog))
	entries, err := common.ReadPatchLog(log.Path())
	exitOn("read audit", err)
	image := auditImage(*in)
	p, ok := common.LastUndoable(entries, image)
	if !ok {
		fmt.Println("nothing to undo for", *in)
		os.Exit(1)
	}
	edits, err := gba.UndoEdits(p)
	exitOn("undo", err)

	patchedHash, _, err := common.Sha256OfFile(*in)
	exitOn("hash input", err)
	img, err := os.ReadFile(*in)
	exitOn("read image", err)
	exitOn("verify image", gba.CheckBefore(img, edits))
	exitOn("apply patch", gba.ApplyPatch(*in, edits))

	undoEntries := gba.AuditEntries(uuid.NewString(), common.OpUndo, p.Ref, image, edits)
	for i := range undoEntries {
		undoEntries[i].Undoes = p.ID
	}
	exitOn("audit", log.Append(undoEntries...))

	restoredHash, _, err := common.Sha256OfFile(*in)
	exitOn("hash restored", err)
	fmt.Printf("Reverted patch %s (%s %s, %d edits)\n", p.ID, p.Op, p.Ref, len(edits))
	fmt.Printf("Patched SHA256: %s\n", patchedHash)
	fmt.Printf("Restored SHA256: %s\n", restoredHash)
}
