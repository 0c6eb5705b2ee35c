package core

import (
	"fmt"

	"github.com/dfinance/dvm-sub000/address"
)

// ExtractImports walks a parsed program's use clauses and returns the
// module ids it declares as dependencies, in source order. This is the
// "import extractor" pipeline stage: it runs on the AST, before any
// bytecode exists, so the dependency loader knows what to fetch.
func ExtractImports(prog *Program) ([]ModuleID, error) {
	var uses []UseAST
	switch {
	case prog.Module != nil:
		uses = prog.Module.Uses
	case prog.Script != nil:
		uses = prog.Script.Uses
	default:
		return nil, fmt.Errorf("core: importscan: program has neither module nor script")
	}
	ids := make([]ModuleID, 0, len(uses))
	for _, u := range uses {
		addr, err := address.ParseHex(u.Addr)
		if err != nil {
			return nil, fmt.Errorf("core: importscan: %w", err)
		}
		ids = append(ids, ModuleID{Addr: addr, Name: u.Name})
	}
	return ids, nil
}
