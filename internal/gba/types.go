// Package gba reads and rewrites Generation 3 save images: two rotating
// slots of fourteen checksummed sections each.
package gba

import (
	"fmt"
	"strings"

	"example.com/gbalink/internal/pk3"
)

const (
	ImageSize   = 0x20000
	SlotSize    = 0xE000
	SectionSize = 0x1000
	NumSections = 14

	footerID        = 0xFF4
	footerChecksum  = 0xFF6
	footerSignature = 0xFF8
	footerSaveIndex = 0xFFC

	Signature = 0x08012025

	BoxCount     = 14
	SlotsPerBox  = 30
	BoxSlotTotal = BoxCount * SlotsPerBox
	PartyMax     = 6

	firstPCSection = 5
	lastPCSection  = 13

	pcCurrentBox    = 0x0000
	pcFirstSlot     = 0x0004
	pcBoxNames      = 0x8344
	pcBoxNameLen    = 9
	pcWallpapers    = 0x83C2
	PCBufferSize    = 8*3968 + 2000
	trainerNameLen  = 7
	trainerGender   = 0x08
	trainerIDs      = 0x0A
	trainerPlayTime = 0x0E
	trainerGameCode = 0xAC
	frlgKeyOffset   = 0xF20
)

// dataSizes is the checksummed payload length of each section id.
var dataSizes = [NumSections]int{3884, 3968, 3968, 3968, 3848, 3968, 3968, 3968, 3968, 3968, 3968, 3968, 3968, 2000}

// DataSize returns the checksummed payload length for a section id.
func DataSize(id uint16) int {
	if int(id) >= NumSections {
		return 0
	}
	return dataSizes[id]
}

// Section is a copy of one 4 KiB section and its footer.
type Section struct {
	ID        uint16
	Checksum  uint16
	Signature uint32
	SaveIndex uint32
	// Offset is the absolute position of the section in the image.
	Offset  int64
	Data    []byte
	Trusted bool
}

// Payload returns the checksummed part of the section.
func (s *Section) Payload() []byte {
	return s.Data[:DataSize(s.ID)]
}

// Slot is one of the two save copies.
type Slot struct {
	Index  int
	Offset int64
	// Sections is indexed by section id; nil entries are missing or duplicated.
	Sections   [NumSections]*Section
	Recognized bool
	Generation uint32
	Present    int
	Valid      int
}

func (s Slot) Name() string {
	if s.Index == 0 {
		return "A"
	}
	return "B"
}

// SelectionReason records why a slot was chosen.
type SelectionReason string

const (
	ReasonOnlySlot  SelectionReason = "only-recognized"
	ReasonNewest    SelectionReason = "newest"
	ReasonFallback  SelectionReason = "fallback-older"
	ReasonMostValid SelectionReason = "most-valid"
)

// Selection is the active slot chosen by SelectActive.
type Selection struct {
	Active Slot
	Other  *Slot
	Reason SelectionReason
}

// Section returns the active section with id, or nil.
func (s *Selection) Section(id uint16) *Section {
	if s == nil || int(id) >= NumSections {
		return nil
	}
	return s.Active.Sections[id]
}

// GameFamily is the cartridge family detected from section 0.
type GameFamily int

const (
	RubySapphire GameFamily = iota
	FireRedLeafGreen
	Emerald
)

func (g GameFamily) String() string {
	switch g {
	case RubySapphire:
		return "Ruby/Sapphire"
	case FireRedLeafGreen:
		return "FireRed/LeafGreen"
	case Emerald:
		return "Emerald"
	}
	return "unknown"
}

// Layout holds the family-specific offsets inside section 1.
type Layout struct {
	PartyCount int
	Party      int
	Money      int
}

// LayoutFor returns the section 1 layout of a family.
func LayoutFor(g GameFamily) Layout {
	if g == FireRedLeafGreen {
		return Layout{PartyCount: 0x34, Party: 0x38, Money: 0x290}
	}
	return Layout{PartyCount: 0x234, Party: 0x238, Money: 0x490}
}

// PlayTime as stored in section 0.
type PlayTime struct {
	Hours   uint16
	Minutes uint8
	Seconds uint8
	Frames  uint8
}

func (p PlayTime) String() string {
	return fmt.Sprintf("%d:%02d:%02d", p.Hours, p.Minutes, p.Seconds)
}

// Trainer is the player summary from sections 0 and 1.
type Trainer struct {
	Name        string
	Female      bool
	TrainerID   uint16
	SecretID    uint16
	PlayTime    PlayTime
	Game        GameFamily
	SecurityKey uint32
	Money       uint32
}

// Member is a decoded party record and the slot it came from.
type Member struct {
	Slot   int
	Record *pk3.Record
}

// Box is one PC box. Empty slots are nil.
type Box struct {
	Name      string
	Wallpaper uint8
	Slots     [SlotsPerBox]*pk3.Record
}

// Occupied counts non-empty slots.
func (b *Box) Occupied() int {
	n := 0
	for _, r := range b.Slots {
		if r != nil {
			n++
		}
	}
	return n
}

// BoxMatrix is the whole PC storage.
type BoxMatrix struct {
	CurrentBox uint32
	Boxes      [BoxCount]Box
}

// Location names a record position for warnings and write-back.
type Location struct {
	Party bool
	Box   int
	Slot  int
}

func PartyLocation(slot int) Location { return Location{Party: true, Slot: slot} }
func BoxLocation(box, slot int) Location {
	return Location{Box: box, Slot: slot}
}

func (l Location) String() string {
	if l.Party {
		if l.Slot < 0 {
			return "party"
		}
		return fmt.Sprintf("party[%d]", l.Slot)
	}
	if l.Box < 0 {
		return "pc metadata"
	}
	return fmt.Sprintf("box %d slot %d", l.Box+1, l.Slot+1)
}

// ParseLocation accepts the String form ("box 3 slot 9", "party[2]") and
// the short form "3:9". Box and slot numbers are 1-based, party slots are not.
func ParseLocation(s string) (Location, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	var a, b int
	switch {
	case strings.HasPrefix(in, "party"):
		if _, err := fmt.Sscanf(in, "party[%d]", &a); err != nil {
			return Location{}, fmt.Errorf("location %q: want party[n]", s)
		}
		if a < 0 || a >= PartyMax {
			return Location{}, fmt.Errorf("%w: %s", ErrSlotRange, s)
		}
		return PartyLocation(a), nil
	case strings.HasPrefix(in, "box"):
		if _, err := fmt.Sscanf(in, "box %d slot %d", &a, &b); err != nil {
			return Location{}, fmt.Errorf("location %q: want box N slot M", s)
		}
	default:
		if _, err := fmt.Sscanf(in, "%d:%d", &a, &b); err != nil {
			return Location{}, fmt.Errorf("location %q: want box:slot", s)
		}
	}
	if a < 1 || a > BoxCount || b < 1 || b > SlotsPerBox {
		return Location{}, fmt.Errorf("%w: %s", ErrSlotRange, s)
	}
	return BoxLocation(a-1, b-1), nil
}

// Warning reports data left out of a parse.
type Warning struct {
	Location Location
	Err      error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Location, w.Err)
}

// Save is the decoded view of an image. It shares no memory with the input.
type Save struct {
	Selection Selection
	Trainer   *Trainer
	Party     []Member
	Boxes     BoxMatrix
	Warnings  []Warning
}

// PartyLayout returns the section 1 layout of the detected family.
func (s *Save) PartyLayout() (Layout, error) {
	if s.Trainer == nil {
		return Layout{}, ErrUnknownGame
	}
	return LayoutFor(s.Trainer.Game), nil
}

// Records lists every decoded record with its location, party first.
func (s *Save) Records() []Located {
	var out []Located
	for _, m := range s.Party {
		out = append(out, Located{Location: PartyLocation(m.Slot), Record: m.Record})
	}
	for b := range s.Boxes.Boxes {
		for i, r := range s.Boxes.Boxes[b].Slots {
			if r != nil {
				out = append(out, Located{Location: BoxLocation(b, i), Record: r})
			}
		}
	}
	return out
}

// Located pairs a record with its position.
type Located struct {
	Location Location
	Record   *pk3.Record
}
