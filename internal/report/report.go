package report

import (
	"os"
	"time"

	"github.com/goccy/go-json"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/dex"
	"example.com/gbalink/internal/gba"
	"example.com/gbalink/internal/pk3"
	"example.com/gbalink/internal/rules"
)

// ImportReport summarises one parsed save image and, optionally, the
// transfer decision for every record in it.
type ImportReport struct {
	GeneratedAt time.Time               `json:"generatedAt"`
	Image       string                  `json:"image"`
	SHA256      string                  `json:"sha256"`
	Slot        SlotSummary             `json:"slot"`
	Trainer     *TrainerSummary         `json:"trainer,omitempty"`
	Destination rules.Platform          `json:"destination,omitempty"`
	Source      dex.Game                `json:"source,omitempty"`
	Records     []RecordRow             `json:"records"`
	Boxes       []BoxSummary            `json:"boxes"`
	Warnings    []string                `json:"warnings,omitempty"`
	Acceptance  *rules.AcceptanceReport `json:"acceptance,omitempty"`
}

type SlotSummary struct {
	Active     string `json:"active"`
	Generation uint32 `json:"generation"`
	Valid      int    `json:"validSections"`
	Reason     string `json:"reason"`
}

type TrainerSummary struct {
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	ID       uint16 `json:"tid"`
	SecretID uint16 `json:"sid"`
	Game     string `json:"game"`
	PlayTime string `json:"playTime"`
	Money    uint32 `json:"money"`
}

type BoxSummary struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Wallpaper uint8  `json:"wallpaper"`
	Occupied  int    `json:"occupied"`
}

// RecordRow is the display form of one decoded record.
type RecordRow struct {
	Location    string          `json:"location"`
	National    uint16          `json:"national,omitempty"`
	Species     string          `json:"species"`
	Nickname    string          `json:"nickname"`
	Level       uint8           `json:"level,omitempty"`
	Nature      string          `json:"nature"`
	Gender      string          `json:"gender"`
	Shiny       bool            `json:"shiny,omitempty"`
	Egg         bool            `json:"egg,omitempty"`
	Shadow      bool            `json:"shadow,omitempty"`
	Purified    bool            `json:"purified,omitempty"`
	OTName      string          `json:"ot"`
	TrainerID   uint16          `json:"otTid"`
	Item        string          `json:"item,omitempty"`
	Moves       []string        `json:"moves"`
	MetGame     string          `json:"metGame"`
	MetLocation string          `json:"metLocation"`
	EVTotal     int             `json:"evTotal"`
	Decision    *rules.Decision `json:"decision,omitempty"`
}

// Options feed BuildImport. Decisions are keyed by location string.
type Options struct {
	Image       string
	Data        []byte
	Dex         *dex.Store
	Source      dex.Game
	Destination rules.Platform
	Decisions   map[string]rules.Decision
	Acceptance  *rules.AcceptanceReport
}

func BuildImport(save *gba.Save, opts Options) ImportReport {
	rep := ImportReport{
		GeneratedAt: time.Now().UTC(),
		Image:       opts.Image,
		Source:      opts.Source,
		Destination: opts.Destination,
		Acceptance:  opts.Acceptance,
		Records:     []RecordRow{},
	}
	if len(opts.Data) > 0 {
		rep.SHA256 = common.Sha256Hex(opts.Data)
	}
	sel := save.Selection
	rep.Slot = SlotSummary{
		Active:     sel.Active.Name(),
		Generation: sel.Active.Generation,
		Valid:      sel.Active.Valid,
		Reason:     string(sel.Reason),
	}
	if t := save.Trainer; t != nil {
		gender := "male"
		if t.Female {
			gender = "female"
		}
		rep.Trainer = &TrainerSummary{
			Name:     t.Name,
			Gender:   gender,
			ID:       t.TrainerID,
			SecretID: t.SecretID,
			Game:     t.Game.String(),
			PlayTime: t.PlayTime.String(),
			Money:    t.Money,
		}
	}
	for _, loc := range save.Records() {
		row := Row(loc.Location.String(), loc.Record, opts.Dex)
		if d, ok := opts.Decisions[row.Location]; ok {
			d := d
			row.Decision = &d
		}
		rep.Records = append(rep.Records, row)
	}
	for i := range save.Boxes.Boxes {
		b := &save.Boxes.Boxes[i]
		rep.Boxes = append(rep.Boxes, BoxSummary{Index: i + 1, Name: b.Name, Wallpaper: b.Wallpaper, Occupied: b.Occupied()})
	}
	for _, w := range save.Warnings {
		rep.Warnings = append(rep.Warnings, w.String())
	}
	return rep
}

// Row renders one record. A nil store falls back to numeric names.
func Row(location string, r *pk3.Record, store *dex.Store) RecordRow {
	row := RecordRow{
		Location:  location,
		Nickname:  r.NicknameText(),
		Level:     r.Level(),
		Nature:    store.NatureName(r.Nature()),
		Shiny:     r.Shiny(),
		Egg:       r.IsEgg(),
		Shadow:    r.IsShadow(),
		Purified:  r.IsPurified(),
		OTName:    r.OTNameText(),
		TrainerID: r.TrainerID(),
		EVTotal:   r.Effort.Total(),
		Moves:     []string{},
	}
	if n, ok := r.NationalDex(); ok {
		row.National = n
		row.Species = store.SpeciesName(n)
	} else {
		row.Species = "?"
	}
	if store != nil {
		row.Gender = r.Gender(store).String()
	} else {
		row.Gender = r.Gender(nil).String()
	}
	if r.Growth.Item != 0 {
		row.Item = store.ItemName(r.Growth.Item)
	}
	for _, m := range r.Attacks.Moves {
		if m != 0 {
			row.Moves = append(row.Moves, store.MoveName(m))
		}
	}
	origin := r.Origin()
	row.MetGame = store.GameName(origin.Game)
	row.MetLocation = store.LocationName(uint16(r.Misc.MetLocation))
	return row
}

func SaveImportJSON(rep ImportReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadImportJSON(path string) (ImportReport, error) {
	var rep ImportReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}

func SaveAcceptanceJSON(rep rules.AcceptanceReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadAcceptanceJSON(path string) (rules.AcceptanceReport, error) {
	var rep rules.AcceptanceReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
