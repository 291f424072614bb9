package pk3

import (
	"encoding/binary"
)

// HeaderSeed reads the seed context from the clear header of b.
func HeaderSeed(b []byte) SeedContext {
	if len(b) < 8 {
		return SeedContext{}
	}
	otid := binary.LittleEndian.Uint32(b[4:8])
	return SeedContext{
		PID:       binary.LittleEndian.Uint32(b[0:4]),
		TrainerID: uint16(otid),
		SecretID:  uint16(otid >> 16),
	}
}

// Decode decrypts b using the seed stored in its own header.
func Decode(b []byte) (*Record, error) {
	return Decrypt(b, HeaderSeed(b))
}

// Decrypt decodes an 80-byte box record or a 100-byte party record. The
// data blocks are deciphered with ctx; the header fields are copied as stored.
func Decrypt(b []byte, ctx SeedContext) (*Record, error) {
	if len(b) != BoxSize && len(b) != PartySize {
		return nil, corrupt(StructuralRange, "length %d, want %d or %d", len(b), BoxSize, PartySize)
	}
	r := &Record{
		PID:        binary.LittleEndian.Uint32(b[0x00:0x04]),
		OTID:       binary.LittleEndian.Uint32(b[0x04:0x08]),
		Language:   b[0x12],
		Flags:      b[0x13],
		Markings:   b[0x1B],
		Checksum:   binary.LittleEndian.Uint16(b[0x1C:0x1E]),
		ShadowWord: binary.LittleEndian.Uint16(b[0x1E:0x20]),
	}
	copy(r.Nickname[:], b[0x08:0x08+NicknameLen])
	copy(r.OTName[:], b[0x14:0x14+OTNameLen])

	plain := make([]byte, dataLen)
	xorBlocks(plain, b[dataStart:dataStart+dataLen], ctx.Key())
	if sum := dataChecksum(plain); sum != r.Checksum {
		return nil, corrupt(ChecksumMismatch, "stored 0x%04X, computed 0x%04X", r.Checksum, sum)
	}

	order := OrderFor(ctx.PID)
	block := func(kind BlockKind) []byte {
		pos := order.Position(kind)
		return plain[pos*blockLen : (pos+1)*blockLen]
	}
	r.Growth = decodeGrowth(block(BlockGrowth))
	r.Attacks = decodeAttacks(block(BlockAttacks))
	r.Effort = decodeEffort(block(BlockEffort))
	r.Misc = decodeMisc(block(BlockMisc))

	if r.Growth.Species > MaxSpeciesIndex {
		return nil, corrupt(StructuralRange, "species index %d", r.Growth.Species)
	}
	if len(b) == PartySize {
		r.Party = decodePartyStats(b[BoxSize:PartySize])
	}
	return r, nil
}

// Encrypt is the inverse of Decode. The checksum field is recomputed.
func Encrypt(r *Record) ([]byte, error) {
	if r == nil {
		return nil, corrupt(StructuralRange, "nil record")
	}
	if r.Growth.Species > MaxSpeciesIndex {
		return nil, corrupt(StructuralRange, "species index %d", r.Growth.Species)
	}
	size := BoxSize
	if r.Party != nil {
		size = PartySize
	}
	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out[0x00:0x04], r.PID)
	binary.LittleEndian.PutUint32(out[0x04:0x08], r.OTID)
	copy(out[0x08:0x08+NicknameLen], r.Nickname[:])
	out[0x12] = r.Language
	out[0x13] = r.Flags
	copy(out[0x14:0x14+OTNameLen], r.OTName[:])
	out[0x1B] = r.Markings
	binary.LittleEndian.PutUint16(out[0x1E:0x20], r.ShadowWord)

	plain := make([]byte, dataLen)
	order := OrderFor(r.PID)
	put := func(kind BlockKind, enc func([]byte)) {
		pos := order.Position(kind)
		enc(plain[pos*blockLen : (pos+1)*blockLen])
	}
	put(BlockGrowth, r.Growth.encode)
	put(BlockAttacks, r.Attacks.encode)
	put(BlockEffort, r.Effort.encode)
	put(BlockMisc, r.Misc.encode)

	binary.LittleEndian.PutUint16(out[0x1C:0x1E], dataChecksum(plain))
	xorBlocks(out[dataStart:dataStart+dataLen], plain, r.Seed().Key())

	if r.Party != nil {
		r.Party.encode(out[BoxSize:PartySize])
	}
	return out, nil
}

func xorBlocks(dst, src []byte, key uint32) {
	for i := 0; i+4 <= len(src); i += 4 {
		binary.LittleEndian.PutUint32(dst[i:], binary.LittleEndian.Uint32(src[i:])^key)
	}
}

// dataChecksum sums the 24 halfwords of the deciphered blocks.
func dataChecksum(plain []byte) uint16 {
	var sum uint16
	for i := 0; i+2 <= len(plain); i += 2 {
		sum += binary.LittleEndian.Uint16(plain[i:])
	}
	return sum
}

func decodeGrowth(b []byte) Growth {
	return Growth{
		Species:    binary.LittleEndian.Uint16(b[0:2]),
		Item:       binary.LittleEndian.Uint16(b[2:4]),
		Experience: binary.LittleEndian.Uint32(b[4:8]),
		PPBonuses:  b[8],
		Friendship: b[9],
		Filler:     binary.LittleEndian.Uint16(b[10:12]),
	}
}

func (g Growth) encode(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], g.Species)
	binary.LittleEndian.PutUint16(b[2:4], g.Item)
	binary.LittleEndian.PutUint32(b[4:8], g.Experience)
	b[8] = g.PPBonuses
	b[9] = g.Friendship
	binary.LittleEndian.PutUint16(b[10:12], g.Filler)
}

func decodeAttacks(b []byte) Attacks {
	var a Attacks
	for i := 0; i < 4; i++ {
		a.Moves[i] = binary.LittleEndian.Uint16(b[i*2:])
		a.PP[i] = b[8+i]
	}
	return a
}

func (a Attacks) encode(b []byte) {
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], a.Moves[i])
		b[8+i] = a.PP[i]
	}
}

func decodeEffort(b []byte) Effort {
	return Effort{
		HP: b[0], Attack: b[1], Defense: b[2], Speed: b[3], SpAttack: b[4], SpDefense: b[5],
		Cool: b[6], Beauty: b[7], Cute: b[8], Smart: b[9], Tough: b[10], Sheen: b[11],
	}
}

func (e Effort) encode(b []byte) {
	copy(b, []byte{
		e.HP, e.Attack, e.Defense, e.Speed, e.SpAttack, e.SpDefense,
		e.Cool, e.Beauty, e.Cute, e.Smart, e.Tough, e.Sheen,
	})
}

func decodeMisc(b []byte) Misc {
	return Misc{
		Pokerus:     b[0],
		MetLocation: b[1],
		Origins:     binary.LittleEndian.Uint16(b[2:4]),
		IVWord:      binary.LittleEndian.Uint32(b[4:8]),
		RibbonWord:  binary.LittleEndian.Uint32(b[8:12]),
	}
}

func (m Misc) encode(b []byte) {
	b[0] = m.Pokerus
	b[1] = m.MetLocation
	binary.LittleEndian.PutUint16(b[2:4], m.Origins)
	binary.LittleEndian.PutUint32(b[4:8], m.IVWord)
	binary.LittleEndian.PutUint32(b[8:12], m.RibbonWord)
}

func decodePartyStats(b []byte) *PartyStats {
	return &PartyStats{
		Status:           binary.LittleEndian.Uint32(b[0:4]),
		Level:            b[4],
		PokerusRemaining: b[5],
		HP:               binary.LittleEndian.Uint16(b[6:8]),
		MaxHP:            binary.LittleEndian.Uint16(b[8:10]),
		Attack:           binary.LittleEndian.Uint16(b[10:12]),
		Defense:          binary.LittleEndian.Uint16(b[12:14]),
		Speed:            binary.LittleEndian.Uint16(b[14:16]),
		SpAttack:         binary.LittleEndian.Uint16(b[16:18]),
		SpDefense:        binary.LittleEndian.Uint16(b[18:20]),
	}
}

func (p *PartyStats) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], p.Status)
	b[4] = p.Level
	b[5] = p.PokerusRemaining
	binary.LittleEndian.PutUint16(b[6:8], p.HP)
	binary.LittleEndian.PutUint16(b[8:10], p.MaxHP)
	binary.LittleEndian.PutUint16(b[10:12], p.Attack)
	binary.LittleEndian.PutUint16(b[12:14], p.Defense)
	binary.LittleEndian.PutUint16(b[14:16], p.Speed)
	binary.LittleEndian.PutUint16(b[16:18], p.SpAttack)
	binary.LittleEndian.PutUint16(b[18:20], p.SpDefense)
}
