package core

import (
	"fmt"
	"sort"

	"github.com/dfinance/dvm-sub000/address"
)

// compileCtx carries the per-unit state the AST-to-bytecode pass threads
// through expression and statement compilation: the module handle table
// being built, the resolved identity of the unit being compiled, the
// use-alias table, and the already-loaded dependency modules needed to
// resolve foreign struct field order and callee arity.
type compileCtx struct {
	selfID  ModuleID
	uses    map[string]ModuleID
	deps    map[ModuleID]*CompiledModule
	handles []ModuleID
	locals  map[string]uint64
	nextLoc uint64
}

// newCompileCtx seeds handles with the unit's canonical module handle
// table (computed once by the caller) so that every function in the same
// unit emits ModuleIdx values against the same table.
func newCompileCtx(selfID ModuleID, uses map[string]ModuleID, deps map[ModuleID]*CompiledModule, handles []ModuleID) *compileCtx {
	h := make([]ModuleID, len(handles))
	copy(h, handles)
	return &compileCtx{selfID: selfID, uses: uses, deps: deps, handles: h, locals: map[string]uint64{}}
}

// canonicalHandles returns the deterministic module handle table for a
// compilation unit: self at index 0, followed by every used module sorted
// by name so the table does not depend on Go's randomized map iteration.
func canonicalHandles(selfID ModuleID, uses map[string]ModuleID) []ModuleID {
	names := make([]string, 0, len(uses))
	for name := range uses {
		names = append(names, name)
	}
	sort.Strings(names)
	handles := make([]ModuleID, 0, len(uses)+1)
	if selfID != (ModuleID{}) {
		handles = append(handles, selfID)
	}
	for _, name := range names {
		handles = append(handles, uses[name])
	}
	return handles
}

func (c *compileCtx) handleIndex(id ModuleID) uint16 {
	for i, h := range c.handles {
		if h == id {
			return uint16(i)
		}
	}
	c.handles = append(c.handles, id)
	return uint16(len(c.handles) - 1)
}

func (c *compileCtx) declareLocal(name string) uint64 {
	idx := c.nextLoc
	c.nextLoc++
	c.locals[name] = idx
	return idx
}

func (c *compileCtx) resolveModule(alias string) (ModuleID, error) {
	if alias == "" {
		return c.selfID, nil
	}
	id, ok := c.uses[alias]
	if !ok {
		return ModuleID{}, fmt.Errorf("core: compile: undeclared module alias %q", alias)
	}
	return id, nil
}

func (c *compileCtx) resolveType(t TypeExprAST) (TypeTag, error) {
	switch t.Kind {
	case "bool":
		return Bool(), nil
	case "u8":
		return U8(), nil
	case "u64":
		return U64(), nil
	case "u128":
		return U128(), nil
	case "address":
		return AddressT(), nil
	case "signer":
		return Signer(), nil
	case "vector":
		elem, err := c.resolveType(*t.Elem)
		if err != nil {
			return TypeTag{}, err
		}
		return Vector(elem), nil
	case "struct":
		id, err := c.resolveModule(t.ModuleAlias)
		if err != nil {
			return TypeTag{}, err
		}
		var args []TypeTag
		for _, a := range t.TypeArgs {
			at, err := c.resolveType(a)
			if err != nil {
				return TypeTag{}, err
			}
			args = append(args, at)
		}
		return Struct(id.Addr, id.Name, t.Name, args...), nil
	default:
		return TypeTag{}, fmt.Errorf("core: compile: unknown type kind %q", t.Kind)
	}
}

// functionInfo reports the declared (params, returns, isNative) of a
// function in the self module or an already-loaded dependency.
func (c *compileCtx) functionInfo(modAlias, name string) (params, returns []TypeTag, isNative bool, err error) {
	id, err := c.resolveModule(modAlias)
	if err != nil {
		return nil, nil, false, err
	}
	if id == c.selfID {
		return nil, nil, false, fmt.Errorf("core: compile: self-module function info requested via dep path")
	}
	dep, ok := c.deps[id]
	if !ok {
		return nil, nil, false, fmt.Errorf("core: compile: dependency %s not loaded", id)
	}
	fn, ok := dep.Function(name)
	if !ok {
		return nil, nil, false, fmt.Errorf("core: compile: function %s::%s not found", id, name)
	}
	return fn.Params, fn.Returns, fn.IsNative, nil
}

// CompileModule is the concrete stand-in for "invoke the underlying
// bytecode compiler" (§4.5 step 6) applied to a parsed module: it lowers
// the module's structs and function bodies into the flat instruction set
// in bytecode.go. deps must contain every module the source's use clauses
// name, already produced by the dependency loader.
func CompileModule(m *ModuleAST, deps map[ModuleID]*CompiledModule) (*CompiledModule, error) {
	selfAddr, err := address.ParseHex(m.Addr)
	if err != nil {
		return nil, fmt.Errorf("core: compile: module address: %w", err)
	}
	selfID := ModuleID{Addr: selfAddr, Name: m.Name}
	uses := map[string]ModuleID{}
	for _, u := range m.Uses {
		a, err := address.ParseHex(u.Addr)
		if err != nil {
			return nil, fmt.Errorf("core: compile: use clause address: %w", err)
		}
		uses[u.Name] = ModuleID{Addr: a, Name: u.Name}
	}

	handles := canonicalHandles(selfID, uses)

	out := &CompiledModule{}
	structsByName := map[string]*StructAST{}
	for _, s := range m.Structs {
		structsByName[s.Name] = s
		ctx := newCompileCtx(selfID, uses, deps, handles)
		kind := StructPlain
		if s.IsNative {
			kind = StructNative
		} else if s.IsResource {
			kind = StructResource
		}
		decl := StructDecl{Name: s.Name, Kind: kind}
		for _, tp := range s.TypeParams {
			decl.TypeParams = append(decl.TypeParams, TypeParamDecl{Name: tp.Name, ResourceConstraint: tp.IsResource})
		}
		for _, f := range s.Fields {
			ft, err := ctx.resolveType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("core: compile: struct %s field %s: %w", s.Name, f.Name, err)
			}
			decl.Fields = append(decl.Fields, FieldDecl{Name: f.Name, Type: ft})
		}
		out.Structs = append(out.Structs, decl)
	}

	selfFunctions := map[string]*FunctionAST{}
	for _, f := range m.Functions {
		selfFunctions[f.Name] = f
	}

	for _, f := range m.Functions {
		fn, err := compileFunction(selfID, uses, deps, handles, structsByName, selfFunctions, f.Name, f.IsPublic, f.IsNative,
			f.TypeParams, f.Params, f.Returns, f.Acquires, f.Body)
		if err != nil {
			return nil, fmt.Errorf("core: compile: function %s: %w", f.Name, err)
		}
		out.Functions = append(out.Functions, *fn)
	}

	out.ModuleHandles = handles
	return out, nil
}

func compileFunction(selfID ModuleID, uses map[string]ModuleID, deps map[ModuleID]*CompiledModule, handles []ModuleID,
	structsByName map[string]*StructAST, selfFunctions map[string]*FunctionAST, name string, isPublic, isNative bool,
	typeParams []TypeParamAST, params []ParamAST, returns []TypeExprAST, acquires []TypeExprAST, body []StmtAST) (*FunctionDecl, error) {

	vis := VisPrivate
	if isPublic {
		vis = VisPublic
	}
	decl := &FunctionDecl{Name: name, Visibility: vis, IsNative: isNative}
	for _, tp := range typeParams {
		decl.TypeParams = append(decl.TypeParams, TypeParamDecl{Name: tp.Name, ResourceConstraint: tp.IsResource})
	}

	ctx := newCompileCtx(selfID, uses, deps, handles)
	for _, p := range params {
		if p.IsSigner {
			decl.Params = append(decl.Params, Signer())
		} else {
			pt, err := ctx.resolveType(p.Type)
			if err != nil {
				return nil, err
			}
			decl.Params = append(decl.Params, pt)
		}
		ctx.declareLocal(p.Name)
	}
	for _, r := range returns {
		rt, err := ctx.resolveType(r)
		if err != nil {
			return nil, err
		}
		decl.Returns = append(decl.Returns, rt)
	}
	for _, a := range acquires {
		at, err := ctx.resolveType(a)
		if err != nil {
			return nil, err
		}
		decl.Acquires = append(decl.Acquires, at)
	}
	if isNative {
		return decl, nil
	}

	comp := &funcCompiler{ctx: ctx, structsByName: structsByName, selfFunctions: selfFunctions}
	for _, st := range body {
		if err := comp.stmt(st); err != nil {
			return nil, err
		}
	}
	decl.Code = comp.code
	return decl, nil
}

type funcCompiler struct {
	ctx           *compileCtx
	structsByName map[string]*StructAST
	selfFunctions map[string]*FunctionAST
	code          []Instruction
}

func (c *funcCompiler) emit(in Instruction) { c.code = append(c.code, in) }

func (c *funcCompiler) stmt(st StmtAST) error {
	switch s := st.(type) {
	case LetStmt:
		if err := c.expr(s.Value); err != nil {
			return err
		}
		idx := c.ctx.declareLocal(s.Name)
		c.emit(Instruction{Op: OpStLoc, Imm: idx})
		return nil
	case ExprStmt:
		arity, err := c.exprArity(s.Value)
		if err != nil {
			return err
		}
		if err := c.expr(s.Value); err != nil {
			return err
		}
		for i := 0; i < arity; i++ {
			c.emit(Instruction{Op: OpPop})
		}
		return nil
	case ReturnStmt:
		for _, v := range s.Values {
			if err := c.expr(v); err != nil {
				return err
			}
		}
		c.emit(Instruction{Op: OpRet, Imm: uint64(len(s.Values))})
		return nil
	case AbortStmt:
		if err := c.expr(s.Code); err != nil {
			return err
		}
		c.emit(Instruction{Op: OpAbort})
		return nil
	case IfStmt:
		if err := c.expr(s.Cond); err != nil {
			return err
		}
		brFalse := len(c.code)
		c.emit(Instruction{Op: OpBrFalse})
		for _, t := range s.Then {
			if err := c.stmt(t); err != nil {
				return err
			}
		}
		brEnd := len(c.code)
		c.emit(Instruction{Op: OpBranch})
		c.code[brFalse].Imm = uint64(len(c.code))
		for _, e := range s.Else {
			if err := c.stmt(e); err != nil {
				return err
			}
		}
		c.code[brEnd].Imm = uint64(len(c.code))
		return nil
	default:
		return fmt.Errorf("core: compile: unknown statement %T", st)
	}
}

// exprArity reports how many values an expression, used as a statement,
// leaves on the stack (so the statement compiler knows how many OpPop to
// emit). A call leaves as many values as its callee declares returns
// (possibly zero or several), move_to leaves none, and every other
// expression kind leaves exactly one value.
func (c *funcCompiler) exprArity(e ExprAST) (int, error) {
	call, ok := e.(CallExpr)
	if !ok {
		if _, ok := e.(MoveToExpr); ok {
			return 0, nil
		}
		return 1, nil
	}
	if call.ModuleAlias == "" {
		fn, ok := c.selfFunctions[call.Name]
		if !ok {
			return 0, fmt.Errorf("core: compile: undeclared function %q", call.Name)
		}
		return len(fn.Returns), nil
	}
	_, returns, _, err := c.ctx.functionInfo(call.ModuleAlias, call.Name)
	if err != nil {
		return 0, err
	}
	return len(returns), nil
}

func (c *funcCompiler) expr(e ExprAST) error {
	switch v := e.(type) {
	case IntLit:
		op := OpLdU64
		switch v.Width {
		case "u8":
			op = OpLdU8
		case "u128":
			op = OpLdU128
		}
		c.emit(Instruction{Op: op, Imm: v.Value})
		return nil
	case BoolLit:
		if v.Value {
			c.emit(Instruction{Op: OpLdTrue})
		} else {
			c.emit(Instruction{Op: OpLdFalse})
		}
		return nil
	case AddrLit:
		a, err := address.ParseHex(v.Text)
		if err != nil {
			return fmt.Errorf("core: compile: address literal %q: %w", v.Text, err)
		}
		c.emit(Instruction{Op: OpLdAddr, Addr: &a})
		return nil
	case VarExpr:
		idx, ok := c.ctx.locals[v.Name]
		if !ok {
			return fmt.Errorf("core: compile: undeclared local %q", v.Name)
		}
		op := OpCopyLoc
		if v.Move {
			op = OpMoveLoc
		}
		c.emit(Instruction{Op: op, Imm: idx})
		return nil
	case BinaryExpr:
		if err := c.expr(v.Lhs); err != nil {
			return err
		}
		if err := c.expr(v.Rhs); err != nil {
			return err
		}
		switch v.Op {
		case "+":
			c.emit(Instruction{Op: OpAdd})
		case "-":
			c.emit(Instruction{Op: OpSub})
		case "==":
			c.emit(Instruction{Op: OpEq})
		default:
			return fmt.Errorf("core: compile: unsupported operator %q", v.Op)
		}
		return nil
	case CallExpr:
		for _, a := range v.Args {
			if err := c.expr(a); err != nil {
				return err
			}
		}
		id, err := c.ctx.resolveModule(v.ModuleAlias)
		if err != nil {
			return err
		}
		isNative := false
		if v.ModuleAlias == "" {
			fn, ok := c.selfFunctions[v.Name]
			if !ok {
				return fmt.Errorf("core: compile: undeclared function %q", v.Name)
			}
			isNative = fn.IsNative
		} else {
			_, _, native, err := c.ctx.functionInfo(v.ModuleAlias, v.Name)
			if err != nil {
				return err
			}
			isNative = native
		}
		op := OpCall
		if isNative {
			op = OpCallNative
		}
		in := Instruction{Op: op, ModuleIdx: c.ctx.handleIndex(id), Name: v.Name}
		if len(v.TypeArgs) == 1 {
			t, err := c.ctx.resolveType(v.TypeArgs[0])
			if err != nil {
				return err
			}
			in.Type = &t
		}
		c.emit(in)
		return nil
	case PackExpr:
		sd, ok := c.structsByName[v.StructName]
		order := v.Fields
		if ok {
			order = reorderFields(sd.Fields, v.Fields)
		}
		for _, f := range order {
			if err := c.expr(f.Value); err != nil {
				return err
			}
		}
		t, err := c.ctx.resolveType(TypeExprAST{Kind: "struct", Name: v.StructName, TypeArgs: v.TypeArgs})
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OpPack, Name: v.StructName, Imm: uint64(len(order)), Type: &t})
		return nil
	case BorrowGlobalExpr:
		if err := c.expr(v.Addr); err != nil {
			return err
		}
		t, err := c.ctx.resolveType(v.TypeArg)
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OpBorrowGlobal, Type: &t})
		return nil
	case MoveToExpr:
		if err := c.expr(v.Signer); err != nil {
			return err
		}
		if err := c.expr(v.Value); err != nil {
			return err
		}
		t, err := c.ctx.resolveType(v.TypeArg)
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OpMoveTo, Type: &t})
		return nil
	case MoveFromExpr:
		if err := c.expr(v.Addr); err != nil {
			return err
		}
		t, err := c.ctx.resolveType(v.TypeArg)
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OpMoveFrom, Type: &t})
		return nil
	case ExistsExpr:
		if err := c.expr(v.Addr); err != nil {
			return err
		}
		t, err := c.ctx.resolveType(v.TypeArg)
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OpExists, Type: &t})
		return nil
	default:
		return fmt.Errorf("core: compile: unknown expression %T", e)
	}
}

func reorderFields(declOrder []FieldAST, inits []FieldInit) []FieldInit {
	byName := map[string]FieldInit{}
	for _, fi := range inits {
		byName[fi.Name] = fi
	}
	out := make([]FieldInit, 0, len(declOrder))
	for _, fd := range declOrder {
		if fi, ok := byName[fd.Name]; ok {
			out = append(out, fi)
		}
	}
	return out
}

// CompileScript lowers a parsed script block the same way CompileModule
// lowers a module, producing the script's single entrypoint bytecode body.
func CompileScript(s *ScriptAST, deps map[ModuleID]*CompiledModule) (*CompiledScript, error) {
	selfID := ModuleID{} // scripts have no identity of their own
	uses := map[string]ModuleID{}
	for _, u := range s.Uses {
		a, err := address.ParseHex(u.Addr)
		if err != nil {
			return nil, fmt.Errorf("core: compile script: use clause address: %w", err)
		}
		uses[u.Name] = ModuleID{Addr: a, Name: u.Name}
	}
	handles := canonicalHandles(selfID, uses) // selfID is zero, so canonicalHandles omits it
	ctx := newCompileCtx(selfID, uses, deps, handles)

	out := &CompiledScript{}
	for _, tp := range s.TypeParams {
		out.TypeParams = append(out.TypeParams, TypeParamDecl{Name: tp.Name, ResourceConstraint: tp.IsResource})
	}
	for _, p := range s.Params {
		if p.IsSigner {
			out.Params = append(out.Params, ScriptParam{IsSigner: true})
		} else {
			pt, err := ctx.resolveType(p.Type)
			if err != nil {
				return nil, err
			}
			out.Params = append(out.Params, ScriptParam{Type: pt})
		}
		ctx.declareLocal(p.Name)
	}

	comp := &funcCompiler{ctx: ctx, structsByName: map[string]*StructAST{}}
	for _, st := range s.Body {
		if err := comp.stmt(st); err != nil {
			return nil, fmt.Errorf("core: compile script: %w", err)
		}
	}
	out.Code = comp.code
	out.ModuleHandles = ctx.handles
	return out, nil
}
