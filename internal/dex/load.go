package dex

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

//go:embed data/gen3.json
var defaultTables []byte

var (
	defaultOnce  sync.Once
	defaultStore *Store
	defaultErr   error
)

// Default returns the embedded tables, decoded on first use.
func Default() (*Store, error) {
	defaultOnce.Do(func() {
		defaultStore, defaultErr = Parse(defaultTables)
	})
	return defaultStore, defaultErr
}

func Parse(data []byte) (*Store, error) {
	var file JSONFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return FromJSON(file)
}

func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// EnsureLoaded loads path, or the embedded tables when path is empty.
func EnsureLoaded(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("dex path %s is a directory", path)
	}
	store, err := Load(path)
	if err != nil {
		return nil, err
	}
	if store.IsEmpty() {
		return nil, errors.New("dex file defines no species, moves or items")
	}
	return store, nil
}
