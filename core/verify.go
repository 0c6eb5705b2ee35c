package core

import "fmt"

// Verify is the stand-in for "Verify each produced unit (dependent
// bytecode verifier, external)" (§4.5 step 7). A real Move bytecode
// verifier checks far more than this — stack balance, borrow/linearity
// rules for resource types, generic instantiation soundness — all of
// which live in the externally supplied verifier this spec assumes
// fixed. What's implemented here are the two checks a compiled unit must
// pass for the rest of this module's pipeline (in particular the
// interpreter in interp.go) to have well-defined behavior: no duplicate
// declarations, and every global-storage access to a resource type is
// covered by that function's declared `acquires` clause.
func Verify(mod *CompiledModule) error {
	seenStructs := map[string]bool{}
	for _, s := range mod.Structs {
		if seenStructs[s.Name] {
			return fmt.Errorf("core: verify: duplicate struct declaration %q", s.Name)
		}
		seenStructs[s.Name] = true
	}
	seenFuncs := map[string]bool{}
	for _, f := range mod.Functions {
		if seenFuncs[f.Name] {
			return fmt.Errorf("core: verify: duplicate function declaration %q", f.Name)
		}
		seenFuncs[f.Name] = true
		if f.IsNative {
			continue
		}
		if err := verifyAcquires(f); err != nil {
			return fmt.Errorf("core: verify: function %q: %w", f.Name, err)
		}
	}
	return nil
}

func verifyAcquires(f FunctionDecl) error {
	acquired := map[string]bool{}
	for _, t := range f.Acquires {
		acquired[t.String()] = true
	}
	for _, in := range f.Code {
		if in.Op != OpBorrowGlobal && in.Op != OpMoveFrom {
			continue
		}
		if in.Type == nil {
			continue
		}
		key := in.Type.String()
		if !acquired[key] {
			return fmt.Errorf("accesses global resource %s without declaring it in acquires", key)
		}
	}
	return nil
}
