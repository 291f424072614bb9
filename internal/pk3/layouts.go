package pk3

import "example.com/gbalink/internal/bitfield"

var (
	originsLayout = bitfield.NewLayout("origins", 16,
		bitfield.Field{Name: "metLevel", Offset: 0, Width: 7},
		bitfield.Field{Name: "game", Offset: 7, Width: 4},
		bitfield.Field{Name: "ball", Offset: 11, Width: 4},
		bitfield.Field{Name: "otGender", Offset: 15, Width: 1},
	)

	ivLayout = bitfield.NewLayout("ivs", 32,
		bitfield.Field{Name: "hp", Offset: 0, Width: 5},
		bitfield.Field{Name: "attack", Offset: 5, Width: 5},
		bitfield.Field{Name: "defense", Offset: 10, Width: 5},
		bitfield.Field{Name: "speed", Offset: 15, Width: 5},
		bitfield.Field{Name: "spAttack", Offset: 20, Width: 5},
		bitfield.Field{Name: "spDefense", Offset: 25, Width: 5},
		bitfield.Field{Name: "egg", Offset: 30, Width: 1},
		bitfield.Field{Name: "ability", Offset: 31, Width: 1},
	)

	ribbonLayout = bitfield.NewLayout("ribbons", 32,
		bitfield.Field{Name: "cool", Offset: 0, Width: 3},
		bitfield.Field{Name: "beauty", Offset: 3, Width: 3},
		bitfield.Field{Name: "cute", Offset: 6, Width: 3},
		bitfield.Field{Name: "smart", Offset: 9, Width: 3},
		bitfield.Field{Name: "tough", Offset: 12, Width: 3},
		bitfield.Field{Name: "champion", Offset: 15, Width: 1},
		bitfield.Field{Name: "winning", Offset: 16, Width: 1},
		bitfield.Field{Name: "victory", Offset: 17, Width: 1},
		bitfield.Field{Name: "artist", Offset: 18, Width: 1},
		bitfield.Field{Name: "effort", Offset: 19, Width: 1},
		bitfield.Field{Name: "marine", Offset: 20, Width: 1},
		bitfield.Field{Name: "land", Offset: 21, Width: 1},
		bitfield.Field{Name: "sky", Offset: 22, Width: 1},
		bitfield.Field{Name: "country", Offset: 23, Width: 1},
		bitfield.Field{Name: "national", Offset: 24, Width: 1},
		bitfield.Field{Name: "earth", Offset: 25, Width: 1},
		bitfield.Field{Name: "world", Offset: 26, Width: 1},
		bitfield.Field{Name: "reserved", Offset: 27, Width: 4},
		bitfield.Field{Name: "fateful", Offset: 31, Width: 1},
	)

	shadowLayout = bitfield.NewLayout("shadow", 16,
		bitfield.Field{Name: "progress", Offset: 0, Width: 8},
		bitfield.Field{Name: "reserved", Offset: 8, Width: 8},
	)

	flagsLayout = bitfield.NewLayout("flags", 8,
		bitfield.Field{Name: "badEgg", Offset: 0, Width: 1},
		bitfield.Field{Name: "hasSpecies", Offset: 1, Width: 1},
		bitfield.Field{Name: "useEggName", Offset: 2, Width: 1},
		bitfield.Field{Name: "reserved", Offset: 3, Width: 5},
	)
)

// ShadowPurified is the progress value of a fully purified record.
const ShadowPurified = 0xFF

// Origin is the unpacked origins word.
type Origin struct {
	MetLevel uint8
	Game     uint8
	Ball     uint8
	OTFemale bool
}

// IVs are the six individual values plus the egg and ability bits.
type IVs struct {
	HP, Attack, Defense, Speed, SpAttack, SpDefense uint8
	Egg                                             bool
	Ability                                         uint8
}

// Ribbons is the unpacked ribbon word. Contest ranks run 0..4.
type Ribbons struct {
	Cool, Beauty, Cute, Smart, Tough uint8

	Champion, Winning, Victory, Artist, Effort bool
	Marine, Land, Sky, Country, National       bool
	Earth, World                               bool

	Reserved uint8
	Fateful  bool
}

// Count returns the number of ribbons earned, counting each contest rank.
func (r Ribbons) Count() int {
	n := int(r.Cool) + int(r.Beauty) + int(r.Cute) + int(r.Smart) + int(r.Tough)
	for _, b := range []bool{r.Champion, r.Winning, r.Victory, r.Artist, r.Effort,
		r.Marine, r.Land, r.Sky, r.Country, r.National, r.Earth, r.World} {
		if b {
			n++
		}
	}
	return n
}

func unpackOrigin(word uint16) Origin {
	v := originsLayout.Unpack(uint32(word))
	return Origin{
		MetLevel: uint8(v["metLevel"]),
		Game:     uint8(v["game"]),
		Ball:     uint8(v["ball"]),
		OTFemale: v["otGender"] == 1,
	}
}

func packOrigin(o Origin) (uint16, error) {
	w, err := originsLayout.Pack(map[string]uint32{
		"metLevel": uint32(o.MetLevel),
		"game":     uint32(o.Game),
		"ball":     uint32(o.Ball),
		"otGender": b2u(o.OTFemale),
	})
	return uint16(w), err
}

func unpackIVs(word uint32) IVs {
	v := ivLayout.Unpack(word)
	return IVs{
		HP:        uint8(v["hp"]),
		Attack:    uint8(v["attack"]),
		Defense:   uint8(v["defense"]),
		Speed:     uint8(v["speed"]),
		SpAttack:  uint8(v["spAttack"]),
		SpDefense: uint8(v["spDefense"]),
		Egg:       v["egg"] == 1,
		Ability:   uint8(v["ability"]),
	}
}

func packIVs(iv IVs) (uint32, error) {
	return ivLayout.Pack(map[string]uint32{
		"hp":        uint32(iv.HP),
		"attack":    uint32(iv.Attack),
		"defense":   uint32(iv.Defense),
		"speed":     uint32(iv.Speed),
		"spAttack":  uint32(iv.SpAttack),
		"spDefense": uint32(iv.SpDefense),
		"egg":       b2u(iv.Egg),
		"ability":   uint32(iv.Ability),
	})
}

func unpackRibbons(word uint32) Ribbons {
	v := ribbonLayout.Unpack(word)
	return Ribbons{
		Cool:     uint8(v["cool"]),
		Beauty:   uint8(v["beauty"]),
		Cute:     uint8(v["cute"]),
		Smart:    uint8(v["smart"]),
		Tough:    uint8(v["tough"]),
		Champion: v["champion"] == 1,
		Winning:  v["winning"] == 1,
		Victory:  v["victory"] == 1,
		Artist:   v["artist"] == 1,
		Effort:   v["effort"] == 1,
		Marine:   v["marine"] == 1,
		Land:     v["land"] == 1,
		Sky:      v["sky"] == 1,
		Country:  v["country"] == 1,
		National: v["national"] == 1,
		Earth:    v["earth"] == 1,
		World:    v["world"] == 1,
		Reserved: uint8(v["reserved"]),
		Fateful:  v["fateful"] == 1,
	}
}

func packRibbons(r Ribbons) (uint32, error) {
	return ribbonLayout.Pack(map[string]uint32{
		"cool":     uint32(r.Cool),
		"beauty":   uint32(r.Beauty),
		"cute":     uint32(r.Cute),
		"smart":    uint32(r.Smart),
		"tough":    uint32(r.Tough),
		"champion": b2u(r.Champion),
		"winning":  b2u(r.Winning),
		"victory":  b2u(r.Victory),
		"artist":   b2u(r.Artist),
		"effort":   b2u(r.Effort),
		"marine":   b2u(r.Marine),
		"land":     b2u(r.Land),
		"sky":      b2u(r.Sky),
		"country":  b2u(r.Country),
		"national": b2u(r.National),
		"earth":    b2u(r.Earth),
		"world":    b2u(r.World),
		"reserved": uint32(r.Reserved),
		"fateful":  b2u(r.Fateful),
	})
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
