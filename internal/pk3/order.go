package pk3

// BlockKind names one of the four 12-byte substructures.
type BlockKind uint8

const (
	BlockGrowth BlockKind = iota
	BlockAttacks
	BlockEffort
	BlockMisc
)

func (k BlockKind) String() string {
	switch k {
	case BlockGrowth:
		return "G"
	case BlockAttacks:
		return "A"
	case BlockEffort:
		return "E"
	case BlockMisc:
		return "M"
	}
	return "?"
}

// Order lists the kind stored at each of the four block positions.
type Order [4]BlockKind

const (
	bG = BlockGrowth
	bA = BlockAttacks
	bE = BlockEffort
	bM = BlockMisc
)

var orderTable = [24]Order{
	{bG, bA, bE, bM}, {bG, bA, bM, bE}, {bG, bE, bA, bM}, {bG, bE, bM, bA}, {bG, bM, bA, bE}, {bG, bM, bE, bA},
	{bA, bG, bE, bM}, {bA, bG, bM, bE}, {bA, bE, bG, bM}, {bA, bE, bM, bG}, {bA, bM, bG, bE}, {bA, bM, bE, bG},
	{bE, bG, bA, bM}, {bE, bG, bM, bA}, {bE, bA, bG, bM}, {bE, bA, bM, bG}, {bE, bM, bG, bA}, {bE, bM, bA, bG},
	{bM, bG, bA, bE}, {bM, bG, bE, bA}, {bM, bA, bG, bE}, {bM, bA, bE, bG}, {bM, bE, bG, bA}, {bM, bE, bA, bG},
}

// OrderFor returns the block order selected by a personality value.
func OrderFor(pid uint32) Order {
	return orderTable[pid%24]
}

// Position returns the block slot holding kind.
func (o Order) Position(kind BlockKind) int {
	for i, k := range o {
		if k == kind {
			return i
		}
	}
	return -1
}

func (o Order) String() string {
	b := make([]byte, 0, 4)
	for _, k := range o {
		b = append(b, k.String()[0])
	}
	return string(b)
}
