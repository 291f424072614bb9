package pk3

import (
	"errors"
	"fmt"
)

// CorruptKind classifies why a record could not be decoded.
type CorruptKind int

const (
	ChecksumMismatch CorruptKind = iota + 1
	StructuralRange
)

func (k CorruptKind) String() string {
	switch k {
	case ChecksumMismatch:
		return "checksum mismatch"
	case StructuralRange:
		return "structural range"
	}
	return "unknown"
}

var (
	ErrChecksumMismatch = errors.New("pk3: record checksum mismatch")
	ErrStructuralRange  = errors.New("pk3: record out of structural range")
)

// CorruptRecordError reports a record that failed validation.
type CorruptRecordError struct {
	Kind   CorruptKind
	Detail string
}

func (e *CorruptRecordError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("pk3: corrupt record (%s)", e.Kind)
	}
	return fmt.Sprintf("pk3: corrupt record (%s): %s", e.Kind, e.Detail)
}

// Is lets callers match with the kind sentinels.
func (e *CorruptRecordError) Is(target error) bool {
	switch target {
	case ErrChecksumMismatch:
		return e.Kind == ChecksumMismatch
	case ErrStructuralRange:
		return e.Kind == StructuralRange
	}
	return false
}

func corrupt(kind CorruptKind, format string, args ...interface{}) error {
	return &CorruptRecordError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
