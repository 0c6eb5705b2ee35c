package core

import (
	"fmt"
	"unicode"

	"github.com/dfinance/dvm-sub000/address"
)

// CheckModuleIdentifier validates a parsed module declaration's address and
// name before compilation proceeds: addr must be a well-formed address
// literal and name must be a legal Move-style identifier (an ASCII letter
// or underscore, followed by letters, digits, or underscores). The parser
// already constrains the token shapes that reach here, but a dependency
// stub disassembled from a corrupt or hand-edited module blob has no such
// guarantee, so the driver checks again at the compile boundary.
func CheckModuleIdentifier(addr, name string) error {
	if _, err := address.ParseHex(addr); err != nil {
		return fmt.Errorf("core: modulecheck: invalid module address %q: %w", addr, err)
	}
	if name == "" {
		return fmt.Errorf("core: modulecheck: module name must not be empty")
	}
	for i, r := range name {
		switch {
		case r > unicode.MaxASCII:
			return fmt.Errorf("core: modulecheck: invalid module name %q", name)
		case unicode.IsLetter(r) || r == '_':
		case i > 0 && unicode.IsDigit(r):
		default:
			return fmt.Errorf("core: modulecheck: invalid module name %q", name)
		}
	}
	return nil
}

// CheckNotDuplicate is the single-module publish precondition, grounded
// directly on move_vm.rs's publish_module: "if context.exists_module(&module_id)
// { Err(Error::msg("Duplicate module name"))? }". A module may be
// published under its own address exactly once; republishing requires the
// privileged core address (checked by the caller, not here — this check
// only knows about name collision, not who's allowed to override one).
func CheckNotDuplicate(view StateView, id ModuleID) error {
	_, exists, err := view.GetCode(id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("core: modulecheck: duplicate module name: %s already exists", id)
	}
	return nil
}

// CheckNoDuplicateNames extends the single-module rule to a batch of
// modules being published or loaded together: two distinct addresses may
// not both claim the same module name within one request, since the
// name collision would make `use <addr>.<Name>` ambiguous within the
// batch's own dependency closure.
func CheckNoDuplicateNames(mods []*CompiledModule) error {
	seen := map[string]ModuleID{}
	for _, m := range mods {
		id := m.SelfID()
		if prev, ok := seen[id.Name]; ok && prev.Addr != id.Addr {
			return fmt.Errorf("core: modulecheck: duplicate module name %q: %s and %s", id.Name, prev, id)
		}
		seen[id.Name] = id
	}
	return nil
}
