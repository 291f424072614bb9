package pk3

const (
	// MaxSpeciesIndex is the last internal species index used by the games.
	MaxSpeciesIndex = 411
	// MaxNational is the last national dex number representable in Gen 3.
	MaxNational = 386

	firstHoennIndex       = 277
	firstPlaceholderIndex = 252
)

// Internal indices 277..411 in national order.
var hoennNational = [...]uint16{
	252, 253, 254, 255, 256, 257, 258, 259, 260, 261, 262, 263, 264, 265, 266,
	267, 268, 269, 270, 271, 272, 273, 274, 275, 290, 291, 292, 276, 277, 285,
	286, 327, 278, 279, 283, 284, 320, 321, 300, 301, 352, 343, 344, 299, 324,
	302, 339, 340, 370, 341, 342, 349, 350, 318, 319, 328, 329, 330, 296, 297,
	309, 310, 322, 323, 363, 364, 365, 331, 332, 361, 362, 337, 338, 298, 325,
	326, 311, 312, 303, 307, 308, 333, 334, 360, 355, 356, 315, 287, 288, 289,
	316, 317, 357, 293, 294, 295, 366, 367, 368, 359, 353, 354, 336, 335, 369,
	304, 305, 306, 351, 313, 314, 345, 346, 347, 348, 280, 281, 282, 371, 372,
	373, 374, 375, 376, 377, 378, 379, 382, 383, 384, 380, 381, 385, 386, 358,
}

var nationalToInternal [MaxNational + 1]uint16

func init() {
	for i := uint16(1); i < firstPlaceholderIndex; i++ {
		nationalToInternal[i] = i
	}
	for i, n := range hoennNational {
		nationalToInternal[n] = uint16(firstHoennIndex + i)
	}
}

// NationalFromInternal maps a stored species index to its national number.
// Index 0, the placeholder block 252..276 and anything past 411 have none.
func NationalFromInternal(index uint16) (uint16, bool) {
	switch {
	case index == 0:
		return 0, false
	case index < firstPlaceholderIndex:
		return index, true
	case index < firstHoennIndex:
		return 0, false
	case index <= MaxSpeciesIndex:
		return hoennNational[index-firstHoennIndex], true
	}
	return 0, false
}

// InternalFromNational is the inverse of NationalFromInternal.
func InternalFromNational(national uint16) (uint16, bool) {
	if national == 0 || national > MaxNational {
		return 0, false
	}
	return nationalToInternal[national], true
}
