package common

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Patch operations recorded in the audit log.
const (
	OpInject = "inject"
	OpClear  = "clear"
	OpUndo   = "undo"
)

// PatchEntry captures a single in-place modification to a save image. One
// write-back produces several entries sharing a PatchID.
type PatchEntry struct {
	PatchID   string    `json:"patchId"`
	Op        string    `json:"op"`
	Ref       string    `json:"ref,omitempty"`
	Undoes    string    `json:"undoes,omitempty"`
	Image     string    `json:"image,omitempty"`
	Offset    int64     `json:"offset"`
	Note      string    `json:"note,omitempty"`
	BeforeHex string    `json:"beforeHex"`
	AfterHex  string    `json:"afterHex"`
	Ts        time.Time `json:"ts"`
}

// BeforeBytes decodes the hexadecimal representation of the bytes present
// before the write.
func (p PatchEntry) BeforeBytes() ([]byte, error) {
	if strings.TrimSpace(p.BeforeHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.BeforeHex)
}

// AfterBytes decodes the hexadecimal representation of the bytes written.
func (p PatchEntry) AfterBytes() ([]byte, error) {
	if strings.TrimSpace(p.AfterHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.AfterHex)
}

// PatchLog provides append-only access to a JSONL audit log.
type PatchLog struct {
	path string
	mu   sync.Mutex
}

// NewPatchLog returns a PatchLog that writes to the provided path.
func NewPatchLog(path string) *PatchLog {
	return &PatchLog{path: path}
}

// Path returns the backing file path for the log.
func (p *PatchLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Append writes entries to the audit log in one write, one JSON object per
// line.
func (p *PatchLog) Append(entries ...PatchEntry) error {
	if p == nil {
		return errors.New("nil patch log")
	}
	var buf []byte
	now := time.Now().UTC()
	for _, entry := range entries {
		if entry.PatchID == "" {
			return errors.New("patch entry missing patchId")
		}
		if entry.Op == "" {
			return errors.New("patch entry missing op")
		}
		if entry.Ts.IsZero() {
			entry.Ts = now
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	if len(buf) == 0 {
		return nil
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// ReadPatchLog loads every entry from the supplied JSONL file.
func ReadPatchLog(path string) ([]PatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []PatchEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry PatchEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode patch entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Patch groups the entries of one write-back in log order.
type Patch struct {
	ID      string
	Op      string
	Ref     string
	Image   string
	Entries []PatchEntry
}

// GroupPatches folds entries into patches, ordered by first appearance.
func GroupPatches(entries []PatchEntry) []Patch {
	var out []Patch
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.PatchID]
		if !ok {
			i = len(out)
			index[e.PatchID] = i
			out = append(out, Patch{ID: e.PatchID, Op: e.Op, Ref: e.Ref, Image: e.Image})
		}
		out[i].Entries = append(out[i].Entries, e)
	}
	return out
}

// LastUndoable returns the newest non-undo patch for image that has not
// already been undone.
func LastUndoable(entries []PatchEntry, image string) (Patch, bool) {
	undone := make(map[string]bool)
	for _, e := range entries {
		if e.Op == OpUndo && e.Undoes != "" {
			undone[e.Undoes] = true
		}
	}
	patches := GroupPatches(entries)
	for i := len(patches) - 1; i >= 0; i-- {
		p := patches[i]
		if p.Op == OpUndo || undone[p.ID] {
			continue
		}
		if image != "" && p.Image != image {
			continue
		}
		return p, true
	}
	return Patch{}, false
}
