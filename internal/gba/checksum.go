package gba

import "encoding/binary"

// Checksum sums the payload as little-endian 32-bit words and folds the
// result to 16 bits once. A trailing partial word is ignored; every payload
// size in the format is a multiple of four.
func Checksum(payload []byte) uint16 {
	var sum uint32
	for i := 0; i+4 <= len(payload); i += 4 {
		sum += binary.LittleEndian.Uint32(payload[i:])
	}
	return uint16(sum>>16) + uint16(sum)
}

// Verify reports whether the stored checksum matches the payload.
func (s *Section) Verify() bool {
	if s == nil || int(s.ID) >= NumSections {
		return false
	}
	return Checksum(s.Payload()) == s.Checksum
}

// Reseal recomputes the checksum and rewrites the footer in Data.
func (s *Section) Reseal() {
	s.Checksum = Checksum(s.Payload())
	binary.LittleEndian.PutUint16(s.Data[footerChecksum:], s.Checksum)
	s.Trusted = true
}
