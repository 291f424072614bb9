package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/config"
	"example.com/gbalink/internal/dex"
	"example.com/gbalink/internal/gba"
	"example.com/gbalink/internal/manifest"
	"example.com/gbalink/internal/report"
	"example.com/gbalink/internal/rules"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "inspect":
		inspectCmd(os.Args[2:])
	case "validate":
		validateCmd(os.Args[2:])
	case "export":
		exportCmd(os.Args[2:])
	case "verify":
		verifyCmd(os.Args[2:])
	case "inject":
		injectCmd(os.Args[2:])
	case "clear":
		clearCmd(os.Args[2:])
	case "undo":
		undoCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`gbalinkctl %s (built %s) <command> [options]

Commands:
  inspect   --in <save.sav> [--dex <dex.json>] [--json]
  validate  --in <save.sav> [--source <game>] [--target colosseum|xd|box] [--rules <pack.json>] --out <diagnostics.ndjson> --acceptance <acceptance.json>
  export    --in <save.sav> --out-dir <dir> [--manifest <manifest.json>] [--sign-key <key.pem> [--jws-out <file>]]
  verify    --manifest <manifest.json> [--dir <dir>] [--jws <manifest.jws> --key <cert.pem>]
  inject    --in <save.sav> --pk3 <record.pk3> --at <"box N slot M"|N:M|party[i]> [--out <file>] [--audit <patches.jsonl>] [--force]
  clear     --in <save.sav> --at <"box N slot M"|N:M> [--out <file>] [--audit <patches.jsonl>]
  undo      --in <save.sav> [--audit <patches.jsonl>]
  report    --in <save.sav> --out <report.json|report.pdf> [--lang en|tr] | --acceptance <acceptance.json> --pdf <out.pdf>
  batch     --in <dir> --out-dir <dir> [--target colosseum|xd|box]

Every command accepts --config <gbalink.yaml>.
`, version, buildDate)
}

// exitOn prints "<step>: <err>" and exits when err is set.
func exitOn(step string, err error) {
	if err == nil {
		return
	}
	fmt.Println(step+":", err)
	os.Exit(1)
}

func required(names ...string) {
	fmt.Println("required: " + strings.Join(names, ", "))
	os.Exit(1)
}

// setup loads the configuration and starts logging. The returned closer
// flushes the rotating log file.
func setup(path, name string) (config.Config, io.Closer) {
	cfg, err := config.Load(path)
	exitOn("load config", err)
	closer, err := common.SetupLogging(cfg.Logs, name+".log")
	exitOn("setup logging", err)
	return cfg, closer
}

func pick(flagValue, cfgValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return cfgValue
}

func loadDex(path string) (*dex.Store, error) {
	store, err := dex.EnsureLoaded(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("load dex %s: %w", path, err)
	}
	return store, nil
}

func newEngine(rulesPath, input string, store *dex.Store) (*rules.Engine, error) {
	var (
		rp  rules.RulePack
		err error
	)
	if rulesPath != "" {
		rp, err = rules.LoadRulePack(rulesPath)
	} else {
		rp, err = rules.DefaultRulePack()
	}
	if err != nil {
		return nil, err
	}
	engine := rules.NewEngine(rp, &rules.Context{InputFile: input, Dex: store})
	engine.RegisterBuiltins()
	return engine, nil
}

// resolveSource uses the flag when given. Without it only Emerald saves
// identify their cartridge; the other families are left undeclared.
func resolveSource(flagValue string, save *gba.Save) (dex.Game, error) {
	if strings.TrimSpace(flagValue) != "" {
		return dex.ParseGame(flagValue)
	}
	if save.Trainer != nil && save.Trainer.Game == gba.Emerald {
		return dex.Emerald, nil
	}
	return "", nil
}

// evaluate runs every record of save through engine, keyed by location.
func evaluate(engine *rules.Engine, save *gba.Save, source dex.Game, target rules.Platform) map[string]rules.Decision {
	out := make(map[string]rules.Decision)
	for _, loc := range save.Records() {
		req := rules.NewRequest(loc.Record, source, target)
		req.Location = loc.Location.String()
		out[req.Location] = engine.Validate(req)
	}
	return out
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	in := fs.String("in", "", "input save image")
	dexPath := fs.String("dex", "", "name tables JSON")
	asJSON := fs.Bool("json", false, "print the import report as JSON")
	fs.Parse(args)

	if *in == "" {
		required("--in")
	}
	cfg, closer := setup(*cfgPath, "inspect")
	defer closer.Close()
	store, err := loadDex(pick(*dexPath, cfg.Dex))
	exitOn("dex", err)
	save, img, err := gba.ParseFile(*in, gba.Options{Concurrency: cfg.Concurrency})
	exitOn("parse", err)

	rep := report.BuildImport(save, report.Options{Image: *in, Data: img, Dex: store})
	if *asJSON {
		b, err := json.MarshalIndent(rep, "", "  ")
		exitOn("marshal", err)
		fmt.Println(string(b))
		return
	}
	printInspect(os.Stdout, rep)
}

func printInspect(w io.Writer, rep report.ImportReport) {
	fmt.Fprintf(w, "Image:   %s\nSHA256:  %s\n", rep.Image, rep.SHA256)
	fmt.Fprintf(w, "Slot:    %s (save index %d, %d/%d sections valid, %s)\n",
		rep.Slot.Active, rep.Slot.Generation, rep.Slot.Valid, gba.NumSections, rep.Slot.Reason)
	if t := rep.Trainer; t != nil {
		fmt.Fprintf(w, "Trainer: %s (%s) TID %05d SID %05d, %s, played %s, money %d\n",
			t.Name, t.Gender, t.ID, t.SecretID, t.Game, t.PlayTime, t.Money)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tSPECIES\tNICKNAME\tLV\tNATURE\tGENDER\tOT\tFLAGS\tDECISION")
	for _, r := range rep.Records {
		var flags []string
		if r.Shiny {
			flags = append(flags, "shiny")
		}
		if r.Egg {
			flags = append(flags, "egg")
		}
		if r.Shadow {
			flags = append(flags, "shadow")
		}
		if r.Purified {
			flags = append(flags, "purified")
		}
		decision := "-"
		if r.Decision != nil {
			if r.Decision.Allowed {
				decision = "allowed"
			} else {
				decision = "denied: " + string(r.Decision.Reason)
			}
		}
		lv := "-"
		if r.Level > 0 {
			lv = fmt.Sprint(r.Level)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s/%05d\t%s\t%s\n",
			r.Location, r.Species, r.Nickname, lv, r.Nature, r.Gender, r.OTName, r.TrainerID, strings.Join(flags, ","), decision)
	}
	tw.Flush()
	for _, b := range rep.Boxes {
		if b.Occupied > 0 {
			fmt.Fprintf(w, "Box %2d %-8s %2d/%d\n", b.Index, b.Name, b.Occupied, gba.SlotsPerBox)
		}
	}
	for _, warn := range rep.Warnings {
		fmt.Fprintln(w, "WARNING:", warn)
	}
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	in := fs.String("in", "", "input save image")
	source := fs.String("source", "", "source cartridge (ruby, sapphire, emerald, firered, leafgreen)")
	target := fs.String("target", "", "destination platform (colosseum, xd, box, gba)")
	rulesPath := fs.String("rules", "", "rule pack JSON")
	dexPath := fs.String("dex", "", "name tables JSON")
	outDiag := fs.String("out", "diagnostics.ndjson", "diagnostics output")
	outAcc := fs.String("acceptance", "acceptance.json", "acceptance json")
	metricsFlag := fs.Bool("metrics", false, "print decode metrics")
	fs.Parse(args)

	if *in == "" {
		required("--in")
	}
	cfg, closer := setup(*cfgPath, "validate")
	defer closer.Close()

	var metrics *common.Metrics
	if *metricsFlag {
		metrics = common.NewMetrics()
		metrics.Start()
	}
	store, err := loadDex(pick(*dexPath, cfg.Dex))
	exitOn("dex", err)
	dest, err := rules.ParsePlatform(pick(*target, cfg.DefaultTarget))
	exitOn("target", err)
	engine, err := newEngine(pick(*rulesPath, cfg.RulePack), *in, store)
	exitOn("rule pack", err)
	stopProgress := func() {}
	if metrics != nil {
		if info, err := os.Stat(*in); err == nil {
			metrics.SetTotalBytes(info.Size())
		}
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 250*time.Millisecond)
	}
	save, _, err := gba.ParseFile(*in, gba.Options{Concurrency: cfg.Concurrency, Metrics: metrics})
	stopProgress()
	exitOn("parse", err)
	src, err := resolveSource(*source, save)
	exitOn("source", err)
	if src == "" {
		fmt.Println("WARNING: source cartridge not declared; version exclusives will be denied")
	}
	decisions := evaluate(engine, save, src, dest)
	metrics.Stop()

	exitOn("write diags", engine.WriteDiagnosticsNDJSON(*outDiag))
	rep := engine.MakeAcceptance()
	exitOn("write report", report.SaveAcceptanceJSON(rep, *outAcc))
	fmt.Printf("PASS=%v, records=%d, allowed=%d, denied=%d, warnings=%d\n",
		rep.Summary.Pass, len(decisions), rep.Summary.Allowed, rep.Summary.Denied, rep.Summary.Warnings)
	if metrics != nil {
		snap := metrics.Snapshot()
		fmt.Printf("Metrics: duration=%s records=%d dropped=%d untrusted sections=%d processed=%s\n",
			snap.Duration.Round(time.Millisecond), snap.Records, snap.Dropped, snap.UntrustedSections, common.FormatBytes(snap.Bytes))
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	in := fs.String("in", "", "input save image")
	outDir := fs.String("out-dir", "", "directory for .pk3 files")
	manifestPath := fs.String("manifest", "", "manifest output (defaults to <out-dir>/manifest.json)")
	signKey := fs.String("sign-key", "", "PEM RSA private key; writes a detached JWS next to the manifest")
	jwsOut := fs.String("jws-out", "", "signature output (defaults to the manifest path with .jws)")
	fs.Parse(args)

	if *in == "" || *outDir == "" {
		required("--in", "--out-dir")
	}
	cfg, closer := setup(*cfgPath, "export")
	defer closer.Close()
	save, img, err := gba.ParseFile(*in, gba.Options{Concurrency: cfg.Concurrency})
	exitOn("parse", err)
	m, err := manifest.Export(save, img, *in, *outDir)
	exitOn("export", err)
	out := *manifestPath
	if out == "" {
		out = filepath.Join(*outDir, "manifest.json")
	}
	fmt.Printf("Exported %d record(s) to %s\n", len(m.Items), *outDir)
	if *signKey == "" {
		exitOn("manifest save", manifest.Save(m, out))
		fmt.Println("Wrote", out)
		return
	}
	keyBytes, err := os.ReadFile(*signKey)
	exitOn("read key", err)
	sigPath := *jwsOut
	if sigPath == "" {
		sigPath = manifest.SignaturePath(out)
	}
	_, err = manifest.SaveSigned(m, keyBytes, out, sigPath)
	exitOn("manifest sign", err)
	fmt.Println("Wrote", out)
	fmt.Println("Wrote signature", sigPath)
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "manifest JSON file")
	dir := fs.String("dir", "", "artifact directory (defaults to the manifest's directory)")
	jwsPath := fs.String("jws", "", "detached manifest signature")
	keyPath := fs.String("key", "", "signer certificate or public key (PEM)")
	fs.Parse(args)

	if *manifestPath == "" {
		required("--manifest")
	}
	if *jwsPath != "" || *keyPath != "" {
		if *jwsPath == "" || *keyPath == "" {
			required("--jws", "--key")
		}
		keyBytes, err := os.ReadFile(*keyPath)
		exitOn("read key", err)
		exitOn("verify signature", manifest.VerifySignature(*manifestPath, *jwsPath, keyBytes))
		fmt.Println("Signature OK")
	}
	m, err := manifest.Load(*manifestPath)
	exitOn("load manifest", err)
	base := *dir
	if base == "" {
		base = filepath.Dir(*manifestPath)
	}
	mismatches, err := manifest.Verify(m, base)
	exitOn("verify", err)
	if len(mismatches) > 0 {
		for _, mm := range mismatches {
			fmt.Println("MISMATCH", mm)
		}
		os.Exit(1)
	}
	fmt.Printf("Manifest OK (%d items)\n", len(m.Items))
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	in := fs.String("in", "", "input save image")
	out := fs.String("out", "", "import report output (.json or .pdf)")
	source := fs.String("source", "", "source cartridge")
	target := fs.String("target", "", "destination platform")
	rulesPath := fs.String("rules", "", "rule pack JSON")
	dexPath := fs.String("dex", "", "name tables JSON")
	lang := fs.String("lang", "", "report language (en, tr)")
	accPath := fs.String("acceptance", "", "acceptance.json to render")
	pdfPath := fs.String("pdf", "", "output acceptance report PDF")
	fs.Parse(args)

	cfg, closer := setup(*cfgPath, "report")
	defer closer.Close()
	language, err := report.ParseLanguage(pick(*lang, cfg.Lang))
	exitOn("lang", err)
	tr := report.NewTranslator(language)

	if *pdfPath != "" {
		if *accPath == "" {
			fmt.Println("--pdf requires --acceptance")
			os.Exit(1)
		}
		rep, err := report.LoadAcceptanceJSON(*accPath)
		exitOn("load acceptance", err)
		exitOn("write pdf", report.SaveAcceptancePDF(rep, tr, *pdfPath))
		fmt.Println("Wrote PDF:", *pdfPath)
		return
	}
	if *in == "" || *out == "" {
		required("--in", "--out")
	}

	store, err := loadDex(pick(*dexPath, cfg.Dex))
	exitOn("dex", err)
	dest, err := rules.ParsePlatform(pick(*target, cfg.DefaultTarget))
	exitOn("target", err)
	engine, err := newEngine(pick(*rulesPath, cfg.RulePack), *in, store)
	exitOn("rule pack", err)
	save, img, err := gba.ParseFile(*in, gba.Options{Concurrency: cfg.Concurrency})
	exitOn("parse", err)
	src, err := resolveSource(*source, save)
	exitOn("source", err)
	decisions := evaluate(engine, save, src, dest)
	acc := engine.MakeAcceptance()
	rep := report.BuildImport(save, report.Options{
		Image:       *in,
		Data:        img,
		Dex:         store,
		Source:      src,
		Destination: dest,
		Decisions:   decisions,
		Acceptance:  &acc,
	})
	switch strings.ToLower(filepath.Ext(*out)) {
	case ".pdf":
		exitOn("write pdf", report.SaveImportPDF(rep, tr, *out))
	case ".json":
		exitOn("write json", report.SaveImportJSON(rep, *out))
	default:
		fmt.Println("--out must end in .json or .pdf")
		os.Exit(1)
	}
	fmt.Println("Wrote", *out)
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath, "configuration file")
	inDir := fs.String("in", ".", "input directory")
	outDir := fs.String("out-dir", "out", "results directory")
	target := fs.String("target", "", "destination platform")
	rulesPath := fs.String("rules", "", "rule pack JSON")
	progress := fs.Bool("progress", false, "draw a progress line on stderr")
	fs.Parse(args)

	cfg, closer := setup(*cfgPath, "batch")
	defer closer.Close()
	store, err := loadDex(cfg.Dex)
	exitOn("dex", err)
	dest, err := rules.ParsePlatform(pick(*target, cfg.DefaultTarget))
	exitOn("target", err)

	var inputs []string
	err = filepath.WalkDir(*inDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".sav") {
			inputs = append(inputs, path)
		}
		return nil
	})
	exitOn("scan inputs", err)
	sort.Strings(inputs)

	metrics := common.NewMetrics()
	var total int64
	for _, in := range inputs {
		if info, err := os.Stat(in); err == nil {
			total += info.Size()
		}
	}
	metrics.SetTotalBytes(total)
	metrics.Start()
	stopProgress := func() {}
	if *progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 250*time.Millisecond)
	}

	failed := 0
	for _, in := range inputs {
		name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		dir := filepath.Join(*outDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			exitOn("out dir", err)
		}
		save, _, err := gba.ParseFile(in, gba.Options{Concurrency: cfg.Concurrency, Metrics: metrics})
		if err != nil {
			common.Logf("batch: %v", err)
			fmt.Printf("%s: %v\n", name, err)
			failed++
			continue
		}
		engine, err := newEngine(pick(*rulesPath, cfg.RulePack), in, store)
		exitOn("rule pack", err)
		src, _ := resolveSource("", save)
		evaluate(engine, save, src, dest)
		exitOn("write diags", engine.WriteDiagnosticsNDJSON(filepath.Join(dir, "diagnostics.ndjson")))
		rep := engine.MakeAcceptance()
		exitOn("write report", report.SaveAcceptanceJSON(rep, filepath.Join(dir, "acceptance.json")))
		fmt.Printf("%s: PASS=%v allowed=%d denied=%d\n", name, rep.Summary.Pass, rep.Summary.Allowed, rep.Summary.Denied)
	}
	metrics.Stop()
	stopProgress()
	snap := metrics.Snapshot()
	fmt.Printf("Processed %d image(s), %d unreadable, %d records, %d dropped in %s\n",
		len(inputs), failed, snap.Records, snap.Dropped, snap.Duration.Round(time.Millisecond))
}
