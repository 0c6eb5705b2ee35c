package core

import (
	"errors"
	"fmt"
	"strings"
)

// DisasmMode selects how much of a compiled module's bodies the
// disassembler reconstructs.
type DisasmMode int

const (
	// ModeInterface emits signatures only: struct and function
	// declarations with minimal, type-correct-but-meaningless bodies
	// (native functions keep their declared-native `;`, everything else
	// becomes a single `abort 0;`). This is the only mode this package
	// implements (§4.15).
	ModeInterface DisasmMode = iota
	// ModeFullBody would reconstruct real control flow. Not implemented.
	ModeFullBody
)

// ErrFullBodyUnsupported is returned by Disassemble when asked for
// ModeFullBody. Reconstructing if/else, while and loop from a flat
// instruction stream needs a control-flow-graph pass this module does not
// build; rather than emit a stub that silently produces wrong bodies,
// the gap is surfaced as an error.
var ErrFullBodyUnsupported = errors.New("core: disasm: full-body disassembly is not implemented")

// genNamer invents non-colliding type-parameter names for disassembly.
// The disassembler ignores the names TypeParamDecl carries and assigns a
// fresh name to each type parameter position encountered; state is
// shared across the whole disassemble call so the overflow generator
// keeps counting rather than restarting per declaration (design note
// "Disassembler naming": a module-level property, not a per-type-formal
// choice).
type genNamer struct {
	pref     []string
	overflow int
}

func newGenNamer() *genNamer {
	return &genNamer{pref: []string{"T", "G", "V", "A", "B", "C"}}
}

func (g *genNamer) Next(taken map[string]bool) string {
	for _, p := range g.pref {
		if !taken[p] {
			return p
		}
	}
	for {
		name := fmt.Sprintf("%s%d", g.pref[0], g.overflow)
		g.overflow++
		if !taken[name] {
			return name
		}
	}
}

// disasmCtx threads the module being disassembled and its invented
// type-parameter names through struct and function printing.
type disasmCtx struct {
	mod   *CompiledModule
	names *genNamer
}

// Disassemble reconstructs a textually valid stub from a compiled
// module's interface: its struct and function signatures, minus bodies.
// It is a right-inverse of CompileModule for everything interface mode
// observes — recompiling the output yields a module whose handles,
// structs and function signatures match the original bit-for-bit
// (function bodies excepted) when the original's type parameters of each
// declaration are named in genNamer's preference order (T, G, V, ...);
// otherwise the recompiled type-parameter names differ.
func Disassemble(mod *CompiledModule, mode DisasmMode) (string, error) {
	if mode == ModeFullBody {
		return "", ErrFullBodyUnsupported
	}
	d := &disasmCtx{mod: mod, names: newGenNamer()}
	selfID := mod.SelfID()

	var b strings.Builder
	fmt.Fprintf(&b, "module %s.%s {\n", selfID.Addr.Hex(), selfID.Name)
	if len(mod.ModuleHandles) > 1 {
		for _, dep := range mod.ModuleHandles[1:] {
			fmt.Fprintf(&b, "    use %s.%s;\n", dep.Addr.Hex(), dep.Name)
		}
	}
	for _, s := range mod.Structs {
		d.writeStruct(&b, selfID, s)
	}
	for _, f := range mod.Functions {
		d.writeFunction(&b, selfID, f)
	}
	b.WriteString("}\n")
	return b.String(), nil
}

func (d *disasmCtx) writeStruct(b *strings.Builder, selfID ModuleID, s StructDecl) {
	rename := map[string]string{}
	taken := map[string]bool{}
	params := make([]string, len(s.TypeParams))
	for i, tp := range s.TypeParams {
		n := d.names.Next(taken)
		taken[n] = true
		rename[tp.Name] = n
		if tp.ResourceConstraint {
			params[i] = n + ": resource"
		} else {
			params[i] = n
		}
	}

	switch s.Kind {
	case StructResource:
		b.WriteString("    resource struct ")
	case StructNative:
		b.WriteString("    native struct ")
	default:
		b.WriteString("    struct ")
	}
	b.WriteString(s.Name)
	if len(params) > 0 {
		b.WriteString("<" + strings.Join(params, ", ") + ">")
	}
	if s.Kind == StructNative {
		b.WriteString(";\n")
		return
	}
	b.WriteString(" {\n")
	for _, f := range s.Fields {
		fmt.Fprintf(b, "        %s: %s,\n", f.Name, typeToSource(f.Type, selfID, rename))
	}
	b.WriteString("    }\n")
}

func (d *disasmCtx) writeFunction(b *strings.Builder, selfID ModuleID, f FunctionDecl) {
	rename := map[string]string{}
	taken := map[string]bool{}
	params := make([]string, len(f.TypeParams))
	for i, tp := range f.TypeParams {
		n := d.names.Next(taken)
		taken[n] = true
		rename[tp.Name] = n
		if tp.ResourceConstraint {
			params[i] = n + ": resource"
		} else {
			params[i] = n
		}
	}

	if f.Visibility == VisPublic {
		b.WriteString("    public ")
	} else {
		b.WriteString("    ")
	}
	if f.IsNative {
		b.WriteString("native ")
	}
	b.WriteString("fun ")
	b.WriteString(f.Name)
	if len(params) > 0 {
		b.WriteString("<" + strings.Join(params, ", ") + ">")
	}
	b.WriteString("(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "arg%d: %s", i, typeToSource(p, selfID, rename))
	}
	b.WriteString(")")
	if len(f.Returns) > 0 {
		b.WriteString(": ")
		if len(f.Returns) == 1 {
			b.WriteString(typeToSource(f.Returns[0], selfID, rename))
		} else {
			parts := make([]string, len(f.Returns))
			for i, r := range f.Returns {
				parts[i] = typeToSource(r, selfID, rename)
			}
			b.WriteString("(" + strings.Join(parts, ", ") + ")")
		}
	}
	if len(f.Acquires) > 0 {
		b.WriteString(" acquires ")
		for i, a := range f.Acquires {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(typeToSource(a, selfID, rename))
		}
	}
	if f.IsNative {
		b.WriteString(";\n")
		return
	}
	b.WriteString(" {\n        abort 0;\n    }\n")
}

// typeToSource renders a structured TypeTag as surface syntax, mapping
// self-module struct references whose name matches a type parameter in
// scope back to the invented type-parameter identifier (see rename), and
// qualifying every other struct reference by its declaring module's name
// (this toy front-end has no `use ... as` renaming, so a module's use
// name always equals its own declared name).
func typeToSource(t TypeTag, selfID ModuleID, rename map[string]string) string {
	switch t.Kind {
	case TVector:
		return "vector<" + typeToSource(*t.Elem, selfID, rename) + ">"
	case TStruct:
		if t.StructAddr == selfID.Addr && t.StructModule == selfID.Name {
			if n, ok := rename[t.StructName]; ok {
				return n
			}
		}
		var s string
		if t.StructAddr == selfID.Addr && t.StructModule == selfID.Name {
			s = t.StructName
		} else {
			s = t.StructModule + "." + t.StructName
		}
		if len(t.TypeParams) == 0 {
			return s
		}
		parts := make([]string, len(t.TypeParams))
		for i, tp := range t.TypeParams {
			parts[i] = typeToSource(tp, selfID, rename)
		}
		return s + "<" + strings.Join(parts, ", ") + ">"
	default:
		return t.Kind.String()
	}
}
