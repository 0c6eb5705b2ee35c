package core

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/dfinance/dvm-sub000/internal/metrics"
	"github.com/dfinance/dvm-sub000/internal/workspace"
	"github.com/dfinance/dvm-sub000/preprocess"
)

// CompileResult is the outcome of one compile request: exactly one of
// Module or Script is populated, matching the one-module-or-script-per-unit
// shape the parser accepts.
type CompileResult struct {
	Module *CompiledModule
	Script *CompiledScript
}

// CompileUnit runs the full compiler driver pipeline (§4.5): preprocess,
// parse, extract imports, load the dependency closure from view, emit an
// interface-mode disassembly stub for every dependency into a scoped
// workspace, invoke the bytecode compiler, then verify the result.
//
// ws may be nil, in which case a throwaway workspace is created and
// removed before returning — a caller that wants to inspect the staged
// stub files (e.g. a golden-file test) should pass its own.
func CompileUnit(ctx context.Context, view StateView, ws *workspace.Workspace, hrp, src string, limiter *rate.Limiter) (CompileResult, error) {
	if ws == nil {
		var result CompileResult
		err := workspace.Run("", "adhoc", func(w *workspace.Workspace) error {
			r, err := compileUnit(ctx, view, w, hrp, src, limiter)
			result = r
			return err
		})
		return result, err
	}
	return compileUnit(ctx, view, ws, hrp, src, limiter)
}

func compileUnit(ctx context.Context, view StateView, ws *workspace.Workspace, hrp, src string, limiter *rate.Limiter) (CompileResult, error) {
	pp := preprocess.New(hrp)
	processed := pp.Process(src)

	prog, err := Parse(processed)
	if err != nil {
		return CompileResult{}, fmt.Errorf("core: driver: parse: %w", err)
	}

	roots, err := ExtractImports(prog)
	if err != nil {
		return CompileResult{}, fmt.Errorf("core: driver: extract imports: %w", err)
	}

	deps, err := LoadDependencies(ctx, view, roots, limiter)
	if err != nil {
		return CompileResult{}, fmt.Errorf("core: driver: load dependencies: %w", err)
	}

	for id, dep := range deps {
		stub, err := Disassemble(dep, ModeInterface)
		if err != nil {
			return CompileResult{}, fmt.Errorf("core: driver: disassemble dependency %s: %w", id, err)
		}
		if err := ws.WriteSource(id.Name+".source", []byte(stub)); err != nil {
			return CompileResult{}, fmt.Errorf("core: driver: stage dependency stub %s: %w", id, err)
		}
	}

	switch {
	case prog.Module != nil:
		if err := CheckModuleIdentifier(prog.Module.Addr, prog.Module.Name); err != nil {
			return CompileResult{}, fmt.Errorf("core: driver: %w", err)
		}
		mod, err := CompileModule(prog.Module, deps)
		if err != nil {
			return CompileResult{}, fmt.Errorf("core: driver: compile module: %w", err)
		}
		if err := Verify(mod); err != nil {
			return CompileResult{}, fmt.Errorf("core: driver: verify module: %w", err)
		}
		metrics.Global().RecordCompile()
		return CompileResult{Module: mod}, nil
	case prog.Script != nil:
		script, err := CompileScript(prog.Script, deps)
		if err != nil {
			return CompileResult{}, fmt.Errorf("core: driver: compile script: %w", err)
		}
		metrics.Global().RecordCompile()
		return CompileResult{Script: script}, nil
	default:
		return CompileResult{}, fmt.Errorf("core: driver: source produced neither a module nor a script")
	}
}
