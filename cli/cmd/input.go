package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pithecene-io/runledger/iox"
	"github.com/pithecene-io/runledger/types"
)

// readJSONFile decodes the JSON file at path into v. "-" reads stdin.
func readJSONFile(path, what string, v any) error {
	data, err := iox.ReadInput(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", what, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s JSON in %s: %w", what, path, err)
	}
	return nil
}

// loadCatalog returns an empty catalog when path is empty.
func loadCatalog(path string) (types.Catalog, error) {
	var catalog types.Catalog
	if path == "" {
		return catalog, nil
	}
	err := readJSONFile(path, "catalog", &catalog)
	return catalog, err
}

// loadState returns nil when path is empty.
func loadState(path string) (*types.PersistedState, error) {
	if path == "" {
		return nil, nil
	}
	var state types.PersistedState
	if err := readJSONFile(path, "state", &state); err != nil {
		return nil, err
	}
	switch state.Type {
	case types.StateTypeStream, types.StateTypeGlobal, types.StateTypeLegacy:
		return &state, nil
	default:
		return nil, fmt.Errorf("invalid state in %s: unknown type %q", path, state.Type)
	}
}

// loadDiff returns nil when path is empty.
func loadDiff(path string) (*types.SchemaDiff, error) {
	if path == "" {
		return nil, nil
	}
	var diff types.SchemaDiff
	if err := readJSONFile(path, "diff", &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

// stdinCount counts how many of paths read stdin.
func stdinCount(paths ...string) int {
	n := 0
	for _, p := range paths {
		if p == "-" {
			n++
		}
	}
	return n
}
