package dex

import (
	"fmt"
	"sort"
	"strings"

	"example.com/gbalink/internal/pk3"
)

// Game is a source game of a record.
type Game string

const (
	Ruby      Game = "ruby"
	Sapphire  Game = "sapphire"
	Emerald   Game = "emerald"
	FireRed   Game = "firered"
	LeafGreen Game = "leafgreen"
)

var gameAliases = map[string]Game{
	"r":  Ruby,
	"s":  Sapphire,
	"e":  Emerald,
	"fr": FireRed,
	"lg": LeafGreen,
}

// Counterpart returns the other half of a version pair. Emerald stands alone.
func Counterpart(g Game) (Game, bool) {
	switch g {
	case Ruby:
		return Sapphire, true
	case Sapphire:
		return Ruby, true
	case FireRed:
		return LeafGreen, true
	case LeafGreen:
		return FireRed, true
	}
	return "", false
}

// ParseGame accepts the canonical key ("firered") or a short alias ("fr").
func ParseGame(s string) (Game, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	switch g := Game(key); g {
	case Ruby, Sapphire, Emerald, FireRed, LeafGreen:
		return g, nil
	}
	if g, ok := gameAliases[key]; ok {
		return g, nil
	}
	return "", fmt.Errorf("unknown source game %q", s)
}

type SpeciesEntry struct {
	National    uint16
	Name        string
	GenderRatio uint8
}

type GameEntry struct {
	ID   uint8
	Key  string
	Name string
}

// Store is the read-only reference table set. Build it once and pass the
// handle to consumers; nothing mutates it after FromJSON returns.
type Store struct {
	species      map[uint16]SpeciesEntry
	moves        map[uint16]string
	items        map[uint16]string
	locations    map[uint16]string
	natures      []string
	games        map[uint8]GameEntry
	exclusives   map[Game]map[uint16]struct{}
	availability map[string]map[uint16]struct{}
}

type JSONFile struct {
	Species      []JSONSpecies    `json:"species"`
	Moves        []JSONName       `json:"moves"`
	Items        []JSONName       `json:"items"`
	Locations    []JSONName       `json:"locations"`
	Natures      []string         `json:"natures"`
	Games        []JSONGame       `json:"games"`
	Exclusives   map[string][]int `json:"exclusives"`
	Availability map[string][]int `json:"availability"`
}

type JSONSpecies struct {
	National    int    `json:"national"`
	Name        string `json:"name"`
	GenderRatio *int   `json:"genderRatio,omitempty"`
}

type JSONName struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type JSONGame struct {
	ID   int    `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

func FromJSON(file JSONFile) (*Store, error) {
	store := &Store{
		species:      make(map[uint16]SpeciesEntry),
		games:        make(map[uint8]GameEntry),
		exclusives:   make(map[Game]map[uint16]struct{}),
		availability: make(map[string]map[uint16]struct{}),
	}
	for i, entry := range file.Species {
		if entry.National < 1 || entry.National > pk3.MaxNational {
			return nil, fmt.Errorf("species[%d]: national number out of range", i)
		}
		ratio := pk3.RatioEven
		if entry.GenderRatio != nil {
			if *entry.GenderRatio < 0 || *entry.GenderRatio > 0xFF {
				return nil, fmt.Errorf("species[%d]: gender ratio out of range", i)
			}
			ratio = *entry.GenderRatio
		}
		key := uint16(entry.National)
		if _, exists := store.species[key]; exists {
			return nil, fmt.Errorf("species[%d]: duplicate national number", i)
		}
		store.species[key] = SpeciesEntry{
			National:    key,
			Name:        strings.TrimSpace(entry.Name),
			GenderRatio: uint8(ratio),
		}
	}
	var err error
	if store.moves, err = nameTable("moves", file.Moves, 0xFFFF); err != nil {
		return nil, err
	}
	if store.items, err = nameTable("items", file.Items, 0xFFFF); err != nil {
		return nil, err
	}
	if store.locations, err = nameTable("locations", file.Locations, 0xFF); err != nil {
		return nil, err
	}
	if len(file.Natures) != 0 && len(file.Natures) != 25 {
		return nil, fmt.Errorf("natures: want 25 entries, got %d", len(file.Natures))
	}
	store.natures = append([]string(nil), file.Natures...)
	for i, entry := range file.Games {
		if entry.ID < 0 || entry.ID > 0xF {
			return nil, fmt.Errorf("games[%d]: id out of range", i)
		}
		key := uint8(entry.ID)
		if _, exists := store.games[key]; exists {
			return nil, fmt.Errorf("games[%d]: duplicate id", i)
		}
		store.games[key] = GameEntry{ID: key, Key: entry.Key, Name: strings.TrimSpace(entry.Name)}
	}
	for name, list := range file.Exclusives {
		game, err := ParseGame(name)
		if err != nil {
			return nil, fmt.Errorf("exclusives: %w", err)
		}
		if _, paired := Counterpart(game); !paired {
			return nil, fmt.Errorf("exclusives: %s has no version counterpart", game)
		}
		set, err := nationalSet("exclusives."+name, list)
		if err != nil {
			return nil, err
		}
		store.exclusives[game] = set
	}
	for name, list := range file.Availability {
		set, err := nationalSet("availability."+name, list)
		if err != nil {
			return nil, err
		}
		store.availability[strings.ToLower(name)] = set
	}
	return store, nil
}

func nameTable(field string, entries []JSONName, limit int) (map[uint16]string, error) {
	out := make(map[uint16]string, len(entries))
	for i, entry := range entries {
		if entry.ID < 0 || entry.ID > limit {
			return nil, fmt.Errorf("%s[%d]: id out of range", field, i)
		}
		if _, exists := out[uint16(entry.ID)]; exists {
			return nil, fmt.Errorf("%s[%d]: duplicate id", field, i)
		}
		out[uint16(entry.ID)] = strings.TrimSpace(entry.Name)
	}
	return out, nil
}

func nationalSet(field string, list []int) (map[uint16]struct{}, error) {
	set := make(map[uint16]struct{}, len(list))
	for i, n := range list {
		// availability lists may name later generations; exclusives may not
		if n < 1 || (n > pk3.MaxNational && strings.HasPrefix(field, "exclusives")) {
			return nil, fmt.Errorf("%s[%d]: national number out of range", field, i)
		}
		if n > 0xFFFF {
			return nil, fmt.Errorf("%s[%d]: national number out of range", field, i)
		}
		set[uint16(n)] = struct{}{}
	}
	return set, nil
}

func (s *Store) Species(national uint16) (SpeciesEntry, bool) {
	if s == nil {
		return SpeciesEntry{}, false
	}
	entry, ok := s.species[national]
	return entry, ok
}

// SpeciesName falls back to "#<national>" for numbers outside the table.
func (s *Store) SpeciesName(national uint16) string {
	if entry, ok := s.Species(national); ok && entry.Name != "" {
		return entry.Name
	}
	return fmt.Sprintf("#%d", national)
}

// GenderRatio implements pk3.GenderRatios. Unknown species are even.
func (s *Store) GenderRatio(national uint16) uint8 {
	if entry, ok := s.Species(national); ok {
		return entry.GenderRatio
	}
	return pk3.RatioEven
}

func (s *Store) MoveName(id uint16) string {
	if s == nil {
		return lookupName(nil, id, "Move")
	}
	return lookupName(s.moves, id, "Move")
}

func (s *Store) ItemName(id uint16) string {
	if s == nil {
		return lookupName(nil, id, "Item")
	}
	return lookupName(s.items, id, "Item")
}

func (s *Store) LocationName(id uint16) string {
	if s == nil {
		return lookupName(nil, id, "Location")
	}
	return lookupName(s.locations, id, "Location")
}

func lookupName(table map[uint16]string, id uint16, kind string) string {
	if name, ok := table[id]; ok {
		return name
	}
	return fmt.Sprintf("%s %d", kind, id)
}

// NatureName prefers the table and falls back to the built-in names.
func (s *Store) NatureName(n uint8) string {
	if s != nil && int(n) < len(s.natures) {
		return s.natures[n]
	}
	return pk3.NatureName(n)
}

// GameName names the origin game id stored in a record.
func (s *Store) GameName(id uint8) string {
	if s != nil {
		if g, ok := s.games[id]; ok {
			return g.Name
		}
	}
	return fmt.Sprintf("Game %d", id)
}

// ExclusiveTo lists the source games a species is exclusive to, sorted.
// An empty result means the species is not version exclusive.
func (s *Store) ExclusiveTo(national uint16) []Game {
	if s == nil {
		return nil
	}
	var out []Game
	for game, set := range s.exclusives {
		if _, ok := set[national]; ok {
			out = append(out, game)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ObtainableIn reports whether national can be caught or bred in game
// without trading. Exclusives are relative to the version pair: a Ruby
// exclusive is missing from Sapphire only, and Emerald lacks none.
func (s *Store) ObtainableIn(game Game, national uint16) bool {
	if s == nil {
		return true
	}
	other, ok := Counterpart(game)
	if !ok {
		return true
	}
	_, missing := s.exclusives[other][national]
	return !missing
}

// Exclusives returns the sorted national numbers exclusive to game.
func (s *Store) Exclusives(game Game) []uint16 {
	if s == nil {
		return nil
	}
	out := make([]uint16, 0, len(s.exclusives[game]))
	for n := range s.exclusives[game] {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Available reports whether national appears in the availability list of
// platform. known is false when the table has no list for platform.
func (s *Store) Available(platform string, national uint16) (available, known bool) {
	if s == nil {
		return false, false
	}
	set, ok := s.availability[strings.ToLower(platform)]
	if !ok {
		return false, false
	}
	_, available = set[national]
	return available, true
}

func (s *Store) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.species) == 0 && len(s.moves) == 0 && len(s.items) == 0
}
