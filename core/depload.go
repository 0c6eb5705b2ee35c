package core

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LoadDependencies is the compiler driver's dependency loader (§4.5 step
// 4): starting from the module ids the import extractor found in source,
// it walks the transitive closure of compiled-module handle tables,
// fetching and decoding each one exactly once. Every fetch goes through
// limiter, the same throttling pattern the teacher applies to its own
// remote calls (core/virtual_machine.go's limiter field) — here guarding
// against a pathological dependency graph hammering the state view.
func LoadDependencies(ctx context.Context, view StateView, roots []ModuleID, limiter *rate.Limiter) (map[ModuleID]*CompiledModule, error) {
	loaded := map[ModuleID]*CompiledModule{}
	queue := append([]ModuleID(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := loaded[id]; ok {
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("core: depload: rate limit wait for %s: %w", id, err)
			}
		}
		blob, ok, err := view.GetCode(id)
		if err != nil {
			return nil, fmt.Errorf("core: depload: fetch %s: %w", id, err)
		}
		if !ok {
			return nil, fmt.Errorf("core: depload: module %s not found", id)
		}
		mod := &CompiledModule{}
		if err := mod.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("core: depload: decode %s: %w", id, err)
		}
		loaded[id] = mod
		if len(mod.ModuleHandles) > 1 {
			queue = append(queue, mod.ModuleHandles[1:]...)
		}
	}
	return loaded, nil
}
