package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/unicode/norm"

	"example.com/gbalink/internal/rules"
)

// pdfDoc pairs the document with the encoder for its core fonts.
type pdfDoc struct {
	*gofpdf.Fpdf
	tr  Translator
	enc func(string) string
}

func newPDF(title string, tr Translator) *pdfDoc {
	pdf := gofpdf.New("P", "mm", "A4", "")
	doc := &pdfDoc{Fpdf: pdf, tr: tr, enc: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetTitle(title, true)
	pdf.SetAuthor("gbalinkctl", false)
	pdf.SetCreator("gbalinkctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	return doc
}

// text maps s onto the cp1252 core fonts. Runes outside Latin-1 lose their
// diacritics first so Turkish labels stay legible.
func (d *pdfDoc) text(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 0x100:
			b.WriteRune(r)
		case r == 'ı':
			b.WriteByte('i')
		case r == 'İ':
			b.WriteByte('I')
		default:
			base, _ := utf8.DecodeRuneInString(norm.NFD.String(string(r)))
			if base < 0x100 {
				b.WriteRune(base)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return d.enc(b.String())
}

// SaveImportPDF renders an import report, with a QR code of the image
// digest next to the image summary.
func SaveImportPDF(rep ImportReport, tr Translator, out string) error {
	doc := newPDF(tr.T("title.import"), tr)
	doc.title(tr.T("title.import"))

	doc.heading(tr.T("section.image"))
	top := doc.GetY()
	doc.keyValues([][2]string{
		{tr.T("label.file"), emptyFallback(rep.Image, "-")},
		{tr.T("label.sha256"), emptyFallback(rep.SHA256, "-")},
		{tr.T("label.slot"), rep.Slot.Active},
		{tr.T("label.generation"), strconv.FormatUint(uint64(rep.Slot.Generation), 10)},
		{tr.T("label.valid"), fmt.Sprintf("%d / 14", rep.Slot.Valid)},
		{tr.T("label.reason"), tr.T("selection." + rep.Slot.Reason)},
	})
	if rep.SHA256 != "" {
		if err := doc.qr(rep.SHA256, top); err != nil {
			return err
		}
	}

	if t := rep.Trainer; t != nil {
		doc.heading(tr.T("section.trainer"))
		doc.keyValues([][2]string{
			{tr.T("label.name"), t.Name},
			{tr.T("label.gender"), t.Gender},
			{tr.T("label.tid"), fmt.Sprintf("%05d", t.ID)},
			{tr.T("label.sid"), fmt.Sprintf("%05d", t.SecretID)},
			{tr.T("label.game"), t.Game},
			{tr.T("label.playtime"), t.PlayTime},
			{tr.T("label.money"), strconv.FormatUint(uint64(t.Money), 10)},
		})
	}
	if rep.Destination != "" {
		doc.keyValues([][2]string{{tr.T("label.route"), fmt.Sprintf("%s -> %s", emptyFallback(string(rep.Source), "?"), rep.Destination)}})
	}

	doc.recordTable(rep.Records)
	doc.boxTable(rep.Boxes)

	doc.heading(tr.T("section.warnings"))
	doc.SetFont("Helvetica", "", 10)
	if len(rep.Warnings) == 0 {
		doc.MultiCell(0, 5, doc.text(tr.T("none.warnings")), "", "L", false)
	}
	for _, w := range rep.Warnings {
		doc.MultiCell(0, 5, doc.text("- "+w), "", "L", false)
	}

	if doc.Err() {
		return doc.Error()
	}
	return doc.OutputFileAndClose(out)
}

// SaveAcceptancePDF renders the validator's acceptance report.
func SaveAcceptancePDF(rep rules.AcceptanceReport, tr Translator, out string) error {
	doc := newPDF(tr.T("title.acceptance"), tr)
	doc.title(tr.T("title.acceptance"))

	doc.heading(tr.T("section.summary"))
	doc.keyValues([][2]string{
		{tr.T("label.total"), strconv.Itoa(rep.Summary.Total)},
		{tr.T("label.allowed"), strconv.Itoa(rep.Summary.Allowed)},
		{tr.T("label.denied"), strconv.Itoa(rep.Summary.Denied)},
		{tr.T("label.warnings"), strconv.Itoa(rep.Summary.Warnings)},
		{tr.T("label.overall"), passLabel(tr, rep.Summary.Pass)},
	})

	doc.heading(tr.T("section.gate"))
	widths := []float64{32, 22, 100, 26}
	doc.header([]string{tr.T("col.rule"), tr.T("col.severity"), tr.T("label.name"), tr.T("col.hits")}, widths)
	doc.SetFont("Helvetica", "", 9)
	for _, row := range rep.GateMatrix {
		doc.row(widths, []string{
			fmt.Sprint(row["ruleId"]),
			fmt.Sprint(row["severity"]),
			emptyFallback(fmt.Sprint(row["name"]), "-"),
			fmt.Sprint(row["hits"]),
		})
	}
	doc.Ln(4)

	doc.heading(tr.T("section.findings"))
	if len(rep.Findings) == 0 {
		doc.SetFont("Helvetica", "", 11)
		doc.MultiCell(0, 6, doc.text(tr.T("none.findings")), "", "L", false)
	}
	for i, d := range rep.Findings {
		doc.SetFont("Helvetica", "B", 10)
		doc.MultiCell(0, 5, doc.text(fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d.Severity))), "", "L", false)
		if msg := strings.TrimSpace(d.Message); msg != "" {
			doc.SetFont("Helvetica", "", 10)
			doc.MultiCell(0, 5, doc.text(msg), "", "L", false)
		}
		if meta := findingMetadata(d); meta != "" {
			doc.SetFont("Helvetica", "", 9)
			doc.MultiCell(0, 4, doc.text(meta), "", "L", false)
		}
		doc.Ln(2)
	}

	if doc.Err() {
		return doc.Error()
	}
	return doc.OutputFileAndClose(out)
}

func (d *pdfDoc) title(title string) {
	d.SetFont("Helvetica", "B", 18)
	d.Cell(0, 10, d.text(title))
	d.Ln(12)
}

func (d *pdfDoc) heading(s string) {
	d.SetFont("Helvetica", "B", 12)
	d.Cell(0, 8, d.text(s))
	d.Ln(8)
}

func (d *pdfDoc) keyValues(items [][2]string) {
	d.SetFont("Helvetica", "", 10)
	for _, item := range items {
		d.CellFormat(40, 6, d.text(item[0]), "", 0, "L", false, 0, "")
		d.CellFormat(100, 6, d.text(item[1]), "", 1, "L", false, 0, "")
	}
	d.Ln(3)
}

func (d *pdfDoc) qr(hash string, top float64) error {
	png, err := ImageHashToQR(hash, 256)
	if err != nil {
		return err
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	d.RegisterImageOptionsReader("image-sha256", opt, bytes.NewReader(png))
	pageW, _ := d.GetPageSize()
	_, _, right, _ := d.GetMargins()
	const side = 32.0
	y := d.GetY()
	d.ImageOptions("image-sha256", pageW-right-side, top, side, side, false, opt, 0, "")
	if floor := top + side + 2; y < floor {
		d.SetY(floor)
	}
	return nil
}

func (d *pdfDoc) header(cols []string, widths []float64) {
	d.SetFillColor(240, 240, 240)
	d.SetFont("Helvetica", "B", 9)
	for i, h := range cols {
		d.CellFormat(widths[i], 7, d.text(h), "1", 0, "L", true, 0, "")
	}
	d.Ln(-1)
}

func (d *pdfDoc) recordTable(rows []RecordRow) {
	tr := d.tr
	d.heading(tr.T("section.records"))
	if len(rows) == 0 {
		d.SetFont("Helvetica", "", 10)
		d.MultiCell(0, 5, d.text(tr.T("none.records")), "", "L", false)
		d.Ln(3)
		return
	}
	widths := []float64{28, 28, 26, 10, 20, 26, 42}
	d.header([]string{
		tr.T("col.location"), tr.T("col.species"), tr.T("col.nickname"), tr.T("col.level"),
		tr.T("col.nature"), tr.T("col.flags"), tr.T("col.decision"),
	}, widths)
	d.SetFont("Helvetica", "", 8)
	for _, r := range rows {
		level := "-"
		if r.Level > 0 {
			level = strconv.Itoa(int(r.Level))
		}
		d.row(widths, []string{r.Location, r.Species, r.Nickname, level, r.Nature, flagLabel(tr, r), decisionLabel(tr, r.Decision)})
	}
	d.Ln(4)
}

func (d *pdfDoc) boxTable(boxes []BoxSummary) {
	tr := d.tr
	d.heading(tr.T("section.boxes"))
	widths := []float64{14, 40, 24}
	d.header([]string{"#", tr.T("col.box"), tr.T("col.occupied")}, widths)
	d.SetFont("Helvetica", "", 8)
	for _, b := range boxes {
		d.row(widths, []string{strconv.Itoa(b.Index), b.Name, fmt.Sprintf("%d / 30", b.Occupied)})
	}
	d.Ln(4)
}

func (d *pdfDoc) row(widths []float64, values []string) {
	const lineHeight = 5.0
	xStart := d.GetX()
	yStart := d.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := d.text(emptyFallback(strings.TrimSpace(val), "-"))
		lines := d.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		d.SetXY(x, yStart)
		d.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	d.SetXY(xStart, yStart+rowHeight)
}

func flagLabel(tr Translator, r RecordRow) string {
	var flags []string
	if r.Shiny {
		flags = append(flags, tr.T("flag.shiny"))
	}
	if r.Egg {
		flags = append(flags, tr.T("flag.egg"))
	}
	if r.Shadow {
		flags = append(flags, tr.T("flag.shadow"))
	}
	if r.Purified {
		flags = append(flags, tr.T("flag.purified"))
	}
	return strings.Join(flags, ", ")
}

func decisionLabel(tr Translator, d *rules.Decision) string {
	if d == nil {
		return "-"
	}
	if d.Allowed {
		return tr.T("decision.allowed")
	}
	return tr.Format("decision.denied", tr.T("reason."+string(d.Reason)))
}

func passLabel(tr Translator, pass bool) string {
	if pass {
		return tr.T("pass")
	}
	return tr.T("fail")
}

func severityLabel(sev rules.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func findingMetadata(d rules.Diagnostic) string {
	parts := make([]string, 0, 5)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	if d.File != "" {
		parts = append(parts, d.File)
	}
	if d.Location != "" {
		parts = append(parts, d.Location)
	}
	if d.Source != "" || d.Destination != "" {
		parts = append(parts, fmt.Sprintf("%s -> %s", d.Source, d.Destination))
	}
	if d.Species != 0 {
		parts = append(parts, fmt.Sprintf("#%03d", d.Species))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " | ")
}
