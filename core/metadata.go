package core

import "fmt"

// ScriptMetadata is the disassembly-adjacent summary of a compiled
// script's entrypoint: its type parameters, its signer arity (the number
// of leading &signer parameters, reported separately from the value
// argument tags per §4.6), and the type tags of its remaining value
// arguments.
type ScriptMetadata struct {
	TypeParams  []TypeParamDecl
	SignerArity int
	ArgTypes    []TypeTag
}

// FunctionMetadata summarizes one module function's signature for the
// bytecode-metadata endpoint: no bodies, just what a caller needs to build
// a well-typed call.
type FunctionMetadata struct {
	Name       string
	Visibility Visibility
	IsNative   bool
	TypeParams []TypeParamDecl
	Args       []string
	Returns    []string
}

// StructMetadata summarizes one module struct's signature.
type StructMetadata struct {
	Name       string
	IsResource bool
	TypeParams []TypeParamDecl
	Fields     []FieldDecl
}

// ModuleMetadata is the module-shaped result of the bytecode-metadata
// endpoint (§4.6): the module's own name plus every function and struct
// it declares.
type ModuleMetadata struct {
	Name      string
	Functions []FunctionMetadata
	Structs   []StructMetadata
}

// isAllowedScriptArgKind reports the value-argument shapes a script may
// declare, per §3 "Compiled script": bool, u8, u64, u128, address,
// vector<u8>. Any other shape — a bare reference, a vector of anything
// but u8, a struct — is rejected at metadata extraction, not merely at
// execution, so a caller building a call can fail fast.
func isAllowedScriptArgKind(t TypeTag) bool {
	switch t.Kind {
	case TBool, TU8, TU64, TU128, TAddress:
		return true
	case TVector:
		return t.Elem != nil && t.Elem.Kind == TU8
	default:
		return false
	}
}

// ExtractScriptMetadata builds a ScriptMetadata from a compiled script,
// rejecting any argument shape outside {bool, u8, u64, u128, address,
// vector<u8>} per §3/§4.6. Leading &signer parameters are counted as
// SignerArity and excluded from ArgTypes; a &signer appearing after a
// value argument is a malformed script (signers are always a prefix) and
// is rejected.
func ExtractScriptMetadata(s *CompiledScript) (ScriptMetadata, error) {
	md := ScriptMetadata{TypeParams: s.TypeParams}
	seenValue := false
	for i, p := range s.Params {
		if p.IsSigner {
			if seenValue {
				return ScriptMetadata{}, fmt.Errorf("core: metadata: script: &signer parameter %d follows a value argument; signers must be a leading prefix", i)
			}
			md.SignerArity++
			continue
		}
		seenValue = true
		if !isAllowedScriptArgKind(p.Type) {
			return ScriptMetadata{}, fmt.Errorf("core: metadata: script: argument %d has disallowed type %s", i, p.Type)
		}
		md.ArgTypes = append(md.ArgTypes, p.Type)
	}
	return md, nil
}

// ExtractModuleMetadata builds a ModuleMetadata from a compiled module:
// every function's name, visibility, native-ness, type-parameter names,
// argument-type strings and return-type strings, and every struct's name,
// resource-ness, type-parameter names and fields.
func ExtractModuleMetadata(m *CompiledModule) ModuleMetadata {
	selfID := m.SelfID()
	md := ModuleMetadata{Name: selfID.Name}
	for _, f := range m.Functions {
		fm := FunctionMetadata{
			Name:       f.Name,
			Visibility: f.Visibility,
			IsNative:   f.IsNative,
			TypeParams: f.TypeParams,
		}
		for _, p := range f.Params {
			fm.Args = append(fm.Args, p.String())
		}
		for _, r := range f.Returns {
			fm.Returns = append(fm.Returns, r.String())
		}
		md.Functions = append(md.Functions, fm)
	}
	for _, s := range m.Structs {
		md.Structs = append(md.Structs, StructMetadata{
			Name:       s.Name,
			IsResource: s.Kind == StructResource,
			TypeParams: s.TypeParams,
			Fields:     s.Fields,
		})
	}
	return md
}

// BytecodeKind is ProbeBytecodeKind's verdict on whether a blob decodes
// as a module or a script (§4.6):
// try script first since a script's shape (no ModuleHandles[0] self-entry
// required, a flat Params list) is the narrower one; on ambiguity or
// decode failure of both, the caller should treat the blob as a module,
// matching the spec's tie-break ("On ambiguity or failure, treat as
// module").
type BytecodeKind int

const (
	KindModule BytecodeKind = iota
	KindScript
)

// ProbeBytecodeKind decides whether blob is a module or a script by
// attempting to decode it as each in turn. A script's executable entry
// point (a Code body with no enclosing function declaration) is the
// distinguishing shape; if decoding as a script fails, or both succeed
// ambiguously, the blob is treated as a module.
func ProbeBytecodeKind(blob []byte) (BytecodeKind, error) {
	var script CompiledScript
	if err := script.UnmarshalBinary(blob); err == nil {
		var mod CompiledModule
		if err := mod.UnmarshalBinary(blob); err == nil {
			// Decodes as both: ambiguous, default to module per §4.6.
			return KindModule, nil
		}
		return KindScript, nil
	}
	var mod CompiledModule
	if err := mod.UnmarshalBinary(blob); err == nil {
		return KindModule, nil
	}
	return KindModule, fmt.Errorf("core: metadata: probe: blob decodes as neither module nor script")
}
