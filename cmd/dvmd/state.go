package main

import (
	"encoding/json"
	"os"

	"github.com/dfinance/dvm-sub000/address"
	"github.com/dfinance/dvm-sub000/core"
)

// codeEntry and resourceEntry are the on-disk shapes a MemoryState's
// Export round-trips through: core.ModuleID and core.AccessPath don't
// marshal as JSON map keys on their own, so the CLI flattens both maps
// into slices before writing them out.
type codeEntry struct {
	Addr string `json:"addr"`
	Name string `json:"name"`
	Blob []byte `json:"blob"`
}

type resourceEntry struct {
	Key  string `json:"key"`
	Blob []byte `json:"blob"`
}

type stateSnapshot struct {
	Code      []codeEntry     `json:"code"`
	Resources []resourceEntry `json:"resources"`
}

// loadState reads path (if it exists) into a fresh MemoryState; a
// missing file is not an error, it just means an empty starting state
// (the first `dvmd publish-module` run against a brand-new workspace).
func loadState(path string) (*core.MemoryState, error) {
	view := core.NewMemoryState()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	code := make(map[core.ModuleID][]byte, len(snap.Code))
	for _, e := range snap.Code {
		addr, err := address.ParseHex(e.Addr)
		if err != nil {
			return nil, err
		}
		code[core.ModuleID{Addr: addr, Name: e.Name}] = e.Blob
	}
	resources := make(map[string][]byte, len(snap.Resources))
	for _, e := range snap.Resources {
		resources[e.Key] = e.Blob
	}
	view.Import(code, resources)
	return view, nil
}

// saveState writes view's full contents back to path as JSON, the
// caller-applies-the-write-set step every dvmd subcommand that mutates
// state performs before exiting (§5: the VM core never persists on its
// own behalf).
func saveState(path string, view *core.MemoryState) error {
	code, resources := view.Export()
	snap := stateSnapshot{}
	for id, blob := range code {
		snap.Code = append(snap.Code, codeEntry{Addr: id.Addr.Hex(), Name: id.Name, Blob: blob})
	}
	for key, blob := range resources {
		snap.Resources = append(snap.Resources, resourceEntry{Key: key, Blob: blob})
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
