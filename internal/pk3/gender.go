package pk3

// Gender derived from the personality value.
type Gender uint8

const (
	Male Gender = iota
	Female
	Genderless
)

func (g Gender) String() string {
	switch g {
	case Male:
		return "male"
	case Female:
		return "female"
	}
	return "genderless"
}

// Thresholds of the species gender ratio byte.
const (
	RatioAlwaysMale   = 0
	RatioMale87       = 31
	RatioMale75       = 63
	RatioEven         = 127
	RatioFemale75     = 191
	RatioAlwaysFemale = 254
	RatioGenderless   = 255
)

// GenderRatios resolves the ratio byte of a national species.
type GenderRatios interface {
	GenderRatio(national uint16) uint8
}

// GenderFor applies a ratio byte to a personality value.
func GenderFor(pid uint32, ratio uint8) Gender {
	switch ratio {
	case RatioGenderless:
		return Genderless
	case RatioAlwaysFemale:
		return Female
	case RatioAlwaysMale:
		return Male
	}
	if uint8(pid&0xFF) < ratio {
		return Female
	}
	return Male
}

// Gender resolves the record's gender. A nil table assumes an even ratio.
func (r *Record) Gender(ratios GenderRatios) Gender {
	ratio := uint8(RatioEven)
	if ratios != nil {
		if n, ok := r.NationalDex(); ok {
			ratio = ratios.GenderRatio(n)
		}
	}
	return GenderFor(r.PID, ratio)
}
