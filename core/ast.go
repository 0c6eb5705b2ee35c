package core

// This file defines the surface-syntax AST the parser produces. It is the
// concrete stand-in for the "Parser + AST" component the specification
// treats as an externally supplied, assumed-fixed dependency: something
// upstream of the compiler driver must turn source text into a tree before
// the driver can invoke the underlying bytecode compiler on it.

// Program is the parse result of one preprocessed source unit: at most one
// module declaration (a module source file) or exactly one script block (a
// script source file), matching how each compilation request names exactly
// one module or one script in its manifest.
type Program struct {
	Module *ModuleAST
	Script *ScriptAST
}

// UseAST is a `use <addr>.<Name>;` import declaration.
type UseAST struct {
	Addr string
	Name string
}

// ModuleAST is a parsed `module <addr>.<Name> { ... }` declaration.
type ModuleAST struct {
	Addr      string
	Name      string
	Uses      []UseAST
	Structs   []*StructAST
	Functions []*FunctionAST
}

// TypeParamAST declares one generic type parameter.
type TypeParamAST struct {
	Name       string
	IsResource bool
}

// TypeExprAST is the surface-syntax form of a type: a primitive keyword, a
// vector<T>, or a (possibly qualified, possibly generic) struct reference.
type TypeExprAST struct {
	Kind        string // "bool","u8","u64","u128","address","signer","vector","struct"
	Elem        *TypeExprAST
	ModuleAlias string
	Name        string
	TypeArgs    []TypeExprAST
}

// FieldAST is one declared struct field.
type FieldAST struct {
	Name string
	Type TypeExprAST
}

// StructAST is a parsed struct declaration.
type StructAST struct {
	Name       string
	IsResource bool
	IsNative   bool
	TypeParams []TypeParamAST
	Fields     []FieldAST
}

// ParamAST is one formal function or script parameter.
type ParamAST struct {
	Name     string
	IsSigner bool
	Type     TypeExprAST
}

// FunctionAST is a parsed function declaration.
type FunctionAST struct {
	Name       string
	IsPublic   bool
	IsNative   bool
	TypeParams []TypeParamAST
	Params     []ParamAST
	Returns    []TypeExprAST
	Acquires   []TypeExprAST
	Body       []StmtAST
}

// ScriptAST is a parsed `script { ... }` block: a use list and a single
// `main` entrypoint function.
type ScriptAST struct {
	Uses       []UseAST
	TypeParams []TypeParamAST
	Params     []ParamAST
	Body       []StmtAST
}

// StmtAST is implemented by every statement node.
type StmtAST interface{ stmtNode() }

type LetStmt struct {
	Name  string
	Value ExprAST
}

type ExprStmt struct{ Value ExprAST }

type ReturnStmt struct{ Values []ExprAST }

type AbortStmt struct{ Code ExprAST }

type IfStmt struct {
	Cond ExprAST
	Then []StmtAST
	Else []StmtAST
}

func (LetStmt) stmtNode()    {}
func (ExprStmt) stmtNode()   {}
func (ReturnStmt) stmtNode() {}
func (AbortStmt) stmtNode()  {}
func (IfStmt) stmtNode()     {}

// ExprAST is implemented by every expression node.
type ExprAST interface{ exprNode() }

type IntLit struct {
	Value uint64
	Width string // "u8","u64","u128"
}

type BoolLit struct{ Value bool }

type AddrLit struct{ Text string }

type VarExpr struct {
	Name string
	Move bool
}

type BinaryExpr struct {
	Op       string
	Lhs, Rhs ExprAST
}

type CallExpr struct {
	ModuleAlias string
	Name        string
	TypeArgs    []TypeExprAST
	Args        []ExprAST
}

type FieldInit struct {
	Name  string
	Value ExprAST
}

type PackExpr struct {
	StructName string
	TypeArgs   []TypeExprAST
	Fields     []FieldInit
}

type BorrowGlobalExpr struct {
	TypeArg TypeExprAST
	Addr    ExprAST
}

type MoveToExpr struct {
	TypeArg TypeExprAST
	Signer  ExprAST
	Value   ExprAST
}

type MoveFromExpr struct {
	TypeArg TypeExprAST
	Addr    ExprAST
}

type ExistsExpr struct {
	TypeArg TypeExprAST
	Addr    ExprAST
}

func (IntLit) exprNode()           {}
func (BoolLit) exprNode()          {}
func (AddrLit) exprNode()          {}
func (VarExpr) exprNode()          {}
func (BinaryExpr) exprNode()       {}
func (CallExpr) exprNode()         {}
func (PackExpr) exprNode()         {}
func (BorrowGlobalExpr) exprNode() {}
func (MoveToExpr) exprNode()       {}
func (MoveFromExpr) exprNode()     {}
func (ExistsExpr) exprNode()       {}
