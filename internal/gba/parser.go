package gba

import (
	"errors"
	"fmt"
	"os"

	"example.com/gbalink/internal/common"
)

// Options tunes Parse.
type Options struct {
	// Concurrency bounds the box decoding workers; <= 0 uses NumCPU.
	Concurrency int
	Metrics     *common.Metrics
}

// Parse decodes a save image. The image is not retained or modified. It
// fails only when no slot can be selected; everything else degrades into
// Save.Warnings.
func Parse(img []byte, opts Options) (*Save, error) {
	a, b, err := LocateSlots(img)
	if err != nil {
		return nil, err
	}
	sel, err := SelectActive(a, b)
	if err != nil {
		return nil, err
	}
	save := &Save{Selection: sel}
	opts.Metrics.AddUntrustedSections(NumSections - sel.Active.Valid)

	trainer, warns, err := ExtractTrainer(&sel)
	if err != nil {
		save.Warnings = append(save.Warnings, Warning{Location: PartyLocation(-1), Err: fmt.Errorf("trainer: %w", err)})
	} else {
		save.Trainer = trainer
	}
	save.Warnings = append(save.Warnings, warns...)

	// Party offsets differ per family; guessing them would read garbage.
	if layout, err := save.PartyLayout(); err != nil {
		save.Warnings = append(save.Warnings, Warning{Location: PartyLocation(-1), Err: fmt.Errorf("party skipped: %w", err)})
	} else {
		party, warns := ExtractParty(&sel, layout, opts.Metrics)
		save.Party = party
		save.Warnings = append(save.Warnings, warns...)
	}

	boxes, warns := ExtractBoxes(&sel, opts.Concurrency, opts.Metrics)
	save.Boxes = boxes
	save.Warnings = append(save.Warnings, warns...)

	for _, w := range save.Warnings {
		common.Logf("slot %s: %s", sel.Active.Name(), w)
	}
	return save, nil
}

// ParseFile reads and parses the save image at path.
func ParseFile(path string, opts Options) (*Save, []byte, error) {
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(img) != ImageSize {
		common.Logf("%s: unexpected image size %d (want %d)", path, len(img), ImageSize)
	}
	opts.Metrics.AddImage(int64(len(img)))
	save, err := Parse(img, opts)
	if err != nil {
		return nil, img, fmt.Errorf("%s: %w", path, err)
	}
	return save, img, nil
}

// IsCorrupt reports whether err means the image had no usable slot.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptImage)
}
