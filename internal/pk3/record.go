// Package pk3 encodes and decodes the encrypted 80/100-byte creature records
// stored in Generation 3 save images.
package pk3

import (
	"example.com/gbalink/internal/gen3text"
)

const (
	BoxSize   = 80
	PartySize = 100

	NicknameLen = 10
	OTNameLen   = 7

	blockLen  = 12
	dataStart = 0x20
	dataLen   = 4 * blockLen

	// MaxEVTotal is the highest legal sum of the six effort values.
	MaxEVTotal = 510
)

// SeedContext holds everything the cipher and the derived values depend on.
type SeedContext struct {
	PID       uint32
	TrainerID uint16
	SecretID  uint16
}

// OTID packs the trainer and secret ids the way the record stores them.
func (s SeedContext) OTID() uint32 {
	return uint32(s.TrainerID) | uint32(s.SecretID)<<16
}

// Key is the 32-bit XOR key of the data blocks.
func (s SeedContext) Key() uint32 {
	return s.PID ^ s.OTID()
}

// Growth block.
type Growth struct {
	Species    uint16
	Item       uint16
	Experience uint32
	PPBonuses  uint8
	Friendship uint8
	Filler     uint16
}

// Attacks block.
type Attacks struct {
	Moves [4]uint16
	PP    [4]uint8
}

// Effort block: effort values followed by contest condition.
type Effort struct {
	HP, Attack, Defense, Speed, SpAttack, SpDefense uint8
	Cool, Beauty, Cute, Smart, Tough, Sheen         uint8
}

// Total is the sum of the six battle effort values.
func (e Effort) Total() int {
	return int(e.HP) + int(e.Attack) + int(e.Defense) + int(e.Speed) + int(e.SpAttack) + int(e.SpDefense)
}

// Misc block. Origins, IVWord and RibbonWord keep the packed words so that
// re-encoding is byte exact; use the accessor methods for unpacked values.
type Misc struct {
	Pokerus     uint8
	MetLocation uint8
	Origins     uint16
	IVWord      uint32
	RibbonWord  uint32
}

// PartyStats is the unencrypted tail carried by party records only.
type PartyStats struct {
	Status           uint32
	Level            uint8
	PokerusRemaining uint8
	HP               uint16
	MaxHP            uint16
	Attack           uint16
	Defense          uint16
	Speed            uint16
	SpAttack         uint16
	SpDefense        uint16
}

// Record is a decoded creature record.
type Record struct {
	PID        uint32
	OTID       uint32
	Nickname   [NicknameLen]byte
	Language   uint8
	Flags      uint8
	OTName     [OTNameLen]byte
	Markings   uint8
	Checksum   uint16
	ShadowWord uint16

	Growth  Growth
	Attacks Attacks
	Effort  Effort
	Misc    Misc

	// Party is nil for box records.
	Party *PartyStats
}

func (r *Record) TrainerID() uint16 { return uint16(r.OTID) }
func (r *Record) SecretID() uint16  { return uint16(r.OTID >> 16) }

// Seed returns the seed context stored in the record header.
func (r *Record) Seed() SeedContext {
	return SeedContext{PID: r.PID, TrainerID: r.TrainerID(), SecretID: r.SecretID()}
}

// Shiny reports whether the trainer ids and personality value produce a
// shiny record.
func (r *Record) Shiny() bool {
	x := uint32(r.TrainerID()) ^ uint32(r.SecretID()) ^ (r.PID >> 16) ^ (r.PID & 0xFFFF)
	return x < 8
}

// Nature is the nature index, PID mod 25.
func (r *Record) Nature() uint8 {
	return uint8(r.PID % 25)
}

func (r *Record) NatureName() string {
	return NatureName(r.Nature())
}

// NicknameText decodes the stored nickname.
func (r *Record) NicknameText() string {
	return gen3text.Decode(r.Nickname[:])
}

func (r *Record) SetNickname(s string) {
	copy(r.Nickname[:], gen3text.Encode(s, NicknameLen))
}

// OTNameText decodes the stored original trainer name.
func (r *Record) OTNameText() string {
	return gen3text.Decode(r.OTName[:])
}

func (r *Record) SetOTName(s string) {
	copy(r.OTName[:], gen3text.Encode(s, OTNameLen))
}

// IsEmpty reports an unused slot.
func (r *Record) IsEmpty() bool {
	return r.Growth.Species == 0
}

func (r *Record) IsBadEgg() bool {
	return flagsLayout.Get(uint32(r.Flags), "badEgg") == 1
}

// IsEgg reports the egg bit of the IV word.
func (r *Record) IsEgg() bool {
	return r.IVs().Egg
}

// NationalDex maps the stored species to its national number.
func (r *Record) NationalDex() (uint16, bool) {
	return NationalFromInternal(r.Growth.Species)
}

func (r *Record) Origin() Origin {
	return unpackOrigin(r.Misc.Origins)
}

func (r *Record) SetOrigin(o Origin) error {
	w, err := packOrigin(o)
	if err != nil {
		return err
	}
	r.Misc.Origins = w
	return nil
}

func (r *Record) IVs() IVs {
	return unpackIVs(r.Misc.IVWord)
}

func (r *Record) SetIVs(iv IVs) error {
	w, err := packIVs(iv)
	if err != nil {
		return err
	}
	r.Misc.IVWord = w
	return nil
}

func (r *Record) Ribbons() Ribbons {
	return unpackRibbons(r.Misc.RibbonWord)
}

func (r *Record) SetRibbons(rb Ribbons) error {
	w, err := packRibbons(rb)
	if err != nil {
		return err
	}
	r.Misc.RibbonWord = w
	return nil
}

// ShadowProgress is 0 for ordinary records, ShadowPurified once purified, and
// anything in between while the record is still a shadow.
func (r *Record) ShadowProgress() uint8 {
	return uint8(shadowLayout.Get(uint32(r.ShadowWord), "progress"))
}

func (r *Record) SetShadowProgress(p uint8) {
	w, _ := shadowLayout.Set(uint32(r.ShadowWord), "progress", uint32(p))
	r.ShadowWord = uint16(w)
}

func (r *Record) IsShadow() bool {
	p := r.ShadowProgress()
	return p != 0 && p != ShadowPurified
}

func (r *Record) IsPurified() bool {
	return r.ShadowProgress() == ShadowPurified
}

// Level is only stored for party records; box records report 0.
func (r *Record) Level() uint8 {
	if r.Party == nil {
		return 0
	}
	return r.Party.Level
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Party != nil {
		p := *r.Party
		c.Party = &p
	}
	return &c
}

var natureNames = [25]string{
	"Hardy", "Lonely", "Brave", "Adamant", "Naughty",
	"Bold", "Docile", "Relaxed", "Impish", "Lax",
	"Timid", "Hasty", "Serious", "Jolly", "Naive",
	"Modest", "Mild", "Quiet", "Bashful", "Rash",
	"Calm", "Gentle", "Sassy", "Careful", "Quirky",
}

func NatureName(n uint8) string {
	if int(n) >= len(natureNames) {
		return ""
	}
	return natureNames[n]
}
