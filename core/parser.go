package core

import (
	"fmt"
	"strconv"
)

// Parser is a small recursive-descent parser over the token stream
// produced by the lexer. It accepts one module declaration or one script
// block per source unit, matching the one-module-or-script-per-request
// shape the compiler driver expects.
type Parser struct {
	toks []token
	pos  int
}

// Parse preprocesses-and-lexes src is assumed already done by the caller
// (preprocess.Process); Parse only tokenizes and parses.
func Parse(src string) (*Program, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	return p.parseProgram()
}

func (p *Parser) cur() token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *Parser) advance() token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expectSymbol(s string) error {
	if p.cur().kind == tokSymbol && p.cur().text == s {
		p.advance()
		return nil
	}
	return p.errf("expected %q", s)
}

func (p *Parser) expectKeyword(k string) error {
	if p.cur().kind == tokKeyword && p.cur().text == k {
		p.advance()
		return nil
	}
	return p.errf("expected keyword %q", k)
}

func (p *Parser) isSymbol(s string) bool { return p.cur().kind == tokSymbol && p.cur().text == s }
func (p *Parser) isKeyword(k string) bool { return p.cur().kind == tokKeyword && p.cur().text == k }

func (p *Parser) expectIdent() (string, error) {
	if p.cur().kind == tokIdent {
		t := p.advance()
		return t.text, nil
	}
	return "", p.errf("expected identifier")
}

func (p *Parser) errf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("core: parse error at line %d: %s (got %q)", p.cur().line, msg, p.cur().text)
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}
	if p.isKeyword("module") {
		mod, err := p.parseModule()
		if err != nil {
			return nil, err
		}
		prog.Module = mod
	} else if p.isKeyword("script") {
		s, err := p.parseScript()
		if err != nil {
			return nil, err
		}
		prog.Script = s
	} else {
		return nil, p.errf("expected 'module' or 'script'")
	}
	if !p.atEOF() {
		return nil, p.errf("unexpected trailing input")
	}
	return prog, nil
}

func (p *Parser) parseModuleID() (addr, name string, err error) {
	if p.cur().kind != tokAddrLit {
		return "", "", p.errf("expected address literal")
	}
	addr = p.advance().text
	if err := p.expectSymbol("."); err != nil {
		return "", "", err
	}
	name, err = p.expectIdent()
	return addr, name, err
}

func (p *Parser) parseModule() (*ModuleAST, error) {
	if err := p.expectKeyword("module"); err != nil {
		return nil, err
	}
	addr, name, err := p.parseModuleID()
	if err != nil {
		return nil, err
	}
	m := &ModuleAST{Addr: addr, Name: name}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	for !p.isSymbol("}") {
		switch {
		case p.isKeyword("use"):
			u, err := p.parseUse()
			if err != nil {
				return nil, err
			}
			m.Uses = append(m.Uses, u)
		case p.isKeyword("resource") || p.isKeyword("native") && p.peekKeyword(1, "struct") || p.isKeyword("struct"):
			s, err := p.parseStruct()
			if err != nil {
				return nil, err
			}
			m.Structs = append(m.Structs, s)
		case p.isKeyword("public") || p.isKeyword("native") || p.isKeyword("fun"):
			f, err := p.parseFunction()
			if err != nil {
				return nil, err
			}
			m.Functions = append(m.Functions, f)
		default:
			return nil, p.errf("unexpected module member")
		}
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Parser) peekKeyword(offset int, k string) bool {
	i := p.pos + offset
	if i >= len(p.toks) {
		return false
	}
	return p.toks[i].kind == tokKeyword && p.toks[i].text == k
}

func (p *Parser) parseUse() (UseAST, error) {
	if err := p.expectKeyword("use"); err != nil {
		return UseAST{}, err
	}
	addr, name, err := p.parseModuleID()
	if err != nil {
		return UseAST{}, err
	}
	if err := p.expectSymbol(";"); err != nil {
		return UseAST{}, err
	}
	return UseAST{Addr: addr, Name: name}, nil
}

func (p *Parser) parseStruct() (*StructAST, error) {
	s := &StructAST{}
	if p.isKeyword("resource") {
		p.advance()
		s.IsResource = true
	}
	if p.isKeyword("native") {
		p.advance()
		s.IsNative = true
	}
	if err := p.expectKeyword("struct"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	s.Name = name
	if p.isSymbol("<") {
		tps, err := p.parseTypeParamList()
		if err != nil {
			return nil, err
		}
		s.TypeParams = tps
	}
	if s.IsNative {
		return s, p.expectSymbol(";")
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	for !p.isSymbol("}") {
		fname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		ty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, FieldAST{Name: fname, Type: ty})
		if p.isSymbol(",") {
			p.advance()
		}
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Parser) parseTypeParamList() ([]TypeParamAST, error) {
	if err := p.expectSymbol("<"); err != nil {
		return nil, err
	}
	var tps []TypeParamAST
	for !p.isSymbol(">") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		tp := TypeParamAST{Name: name}
		if p.isSymbol(":") {
			p.advance()
			if err := p.expectKeyword("resource"); err != nil {
				return nil, err
			}
			tp.IsResource = true
		}
		tps = append(tps, tp)
		if p.isSymbol(",") {
			p.advance()
		}
	}
	if err := p.expectSymbol(">"); err != nil {
		return nil, err
	}
	return tps, nil
}

func (p *Parser) parseType() (TypeExprAST, error) {
	switch {
	case p.isKeyword("bool"):
		p.advance()
		return TypeExprAST{Kind: "bool"}, nil
	case p.isKeyword("u8"):
		p.advance()
		return TypeExprAST{Kind: "u8"}, nil
	case p.isKeyword("u64"):
		p.advance()
		return TypeExprAST{Kind: "u64"}, nil
	case p.isKeyword("u128"):
		p.advance()
		return TypeExprAST{Kind: "u128"}, nil
	case p.isKeyword("address"):
		p.advance()
		return TypeExprAST{Kind: "address"}, nil
	case p.isKeyword("signer"):
		p.advance()
		return TypeExprAST{Kind: "signer"}, nil
	case p.isKeyword("vector"):
		p.advance()
		if err := p.expectSymbol("<"); err != nil {
			return TypeExprAST{}, err
		}
		elem, err := p.parseType()
		if err != nil {
			return TypeExprAST{}, err
		}
		if err := p.expectSymbol(">"); err != nil {
			return TypeExprAST{}, err
		}
		return TypeExprAST{Kind: "vector", Elem: &elem}, nil
	case p.cur().kind == tokIdent:
		alias, err := p.expectIdent()
		if err != nil {
			return TypeExprAST{}, err
		}
		name := alias
		if p.isSymbol(".") {
			p.advance()
			name, err = p.expectIdent()
			if err != nil {
				return TypeExprAST{}, err
			}
		} else {
			alias = ""
		}
		t := TypeExprAST{Kind: "struct", ModuleAlias: alias, Name: name}
		if p.isSymbol("<") {
			args, err := p.parseTypeArgList()
			if err != nil {
				return TypeExprAST{}, err
			}
			t.TypeArgs = args
		}
		return t, nil
	default:
		return TypeExprAST{}, p.errf("expected type")
	}
}

func (p *Parser) parseTypeArgList() ([]TypeExprAST, error) {
	if err := p.expectSymbol("<"); err != nil {
		return nil, err
	}
	var args []TypeExprAST
	for !p.isSymbol(">") {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		args = append(args, t)
		if p.isSymbol(",") {
			p.advance()
		}
	}
	if err := p.expectSymbol(">"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseFunction() (*FunctionAST, error) {
	f := &FunctionAST{}
	if p.isKeyword("public") {
		p.advance()
		f.IsPublic = true
	}
	if p.isKeyword("native") {
		p.advance()
		f.IsNative = true
	}
	if err := p.expectKeyword("fun"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	f.Name = name
	if p.isSymbol("<") {
		tps, err := p.parseTypeParamList()
		if err != nil {
			return nil, err
		}
		f.TypeParams = tps
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	f.Params = params
	if p.isSymbol(":") {
		p.advance()
		rets, err := p.parseReturnTypes()
		if err != nil {
			return nil, err
		}
		f.Returns = rets
	}
	if p.isKeyword("acquires") {
		p.advance()
		for {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			f.Acquires = append(f.Acquires, t)
			if p.isSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if f.IsNative {
		return f, p.expectSymbol(";")
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	f.Body = body
	return f, nil
}

func (p *Parser) parseReturnTypes() ([]TypeExprAST, error) {
	if p.isSymbol("(") {
		p.advance()
		var rets []TypeExprAST
		for !p.isSymbol(")") {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			rets = append(rets, t)
			if p.isSymbol(",") {
				p.advance()
			}
		}
		return rets, p.expectSymbol(")")
	}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	return []TypeExprAST{t}, nil
}

func (p *Parser) parseParamList() ([]ParamAST, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var params []ParamAST
	for !p.isSymbol(")") {
		param := ParamAST{}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		param.Name = name
		if err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		if p.isSymbol("&") {
			p.advance()
			if err := p.expectKeyword("signer"); err != nil {
				return nil, err
			}
			param.IsSigner = true
		} else {
			ty, err := p.parseType()
			if err != nil {
				return nil, err
			}
			param.Type = ty
		}
		params = append(params, param)
		if p.isSymbol(",") {
			p.advance()
		}
	}
	return params, p.expectSymbol(")")
}

func (p *Parser) parseScript() (*ScriptAST, error) {
	if err := p.expectKeyword("script"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	s := &ScriptAST{}
	for p.isKeyword("use") {
		u, err := p.parseUse()
		if err != nil {
			return nil, err
		}
		s.Uses = append(s.Uses, u)
	}
	if err := p.expectKeyword("fun"); err != nil {
		return nil, err
	}
	if _, err := p.expectIdent(); err != nil { // "main"
		return nil, err
	}
	if p.isSymbol("<") {
		tps, err := p.parseTypeParamList()
		if err != nil {
			return nil, err
		}
		s.TypeParams = tps
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	s.Params = params
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	s.Body = body
	return s, p.expectSymbol("}")
}

func (p *Parser) parseBlock() ([]StmtAST, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	var stmts []StmtAST
	for !p.isSymbol("}") {
		st, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	return stmts, p.expectSymbol("}")
}

func (p *Parser) parseStmt() (StmtAST, error) {
	switch {
	case p.isKeyword("let"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return LetStmt{Name: name, Value: val}, p.expectSymbol(";")
	case p.isKeyword("return"):
		p.advance()
		var vals []ExprAST
		if !p.isSymbol(";") {
			for {
				v, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
				if p.isSymbol(",") {
					p.advance()
					continue
				}
				break
			}
		}
		return ReturnStmt{Values: vals}, p.expectSymbol(";")
	case p.isKeyword("abort"):
		p.advance()
		code, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return AbortStmt{Code: code}, p.expectSymbol(";")
	case p.isKeyword("if"):
		return p.parseIf()
	default:
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ExprStmt{Value: val}, p.expectSymbol(";")
	}
}

func (p *Parser) parseIf() (StmtAST, error) {
	if err := p.expectKeyword("if"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := IfStmt{Cond: cond, Then: then}
	if p.isKeyword("else") {
		p.advance()
		els, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	if p.isSymbol(";") {
		p.advance()
	}
	return stmt, nil
}

// parseExpr parses additive/equality expressions: primary ((+|-|==) primary)*
func (p *Parser) parseExpr() (ExprAST, error) {
	lhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("+") || p.isSymbol("-") || p.isSymbol("==") {
		op := p.advance().text
		rhs, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Op: op, Lhs: lhs, Rhs: rhs}
	}
	return lhs, nil
}

func (p *Parser) parsePrimary() (ExprAST, error) {
	switch {
	case p.cur().kind == tokIntLit:
		txt := p.advance().text
		v, err := strconv.ParseUint(txt, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal %q", txt)
		}
		return IntLit{Value: v, Width: "u64"}, nil
	case p.cur().kind == tokAddrLit:
		return AddrLit{Text: p.advance().text}, nil
	case p.isKeyword("true"):
		p.advance()
		return BoolLit{Value: true}, nil
	case p.isKeyword("false"):
		p.advance()
		return BoolLit{Value: false}, nil
	case p.isKeyword("move"):
		p.advance()
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return VarExpr{Name: name, Move: true}, p.expectSymbol(")")
	case p.isKeyword("borrow_global"):
		p.advance()
		ta, err := p.parseTypeArgList()
		if err != nil {
			return nil, err
		}
		if len(ta) != 1 {
			return nil, p.errf("borrow_global requires exactly one type argument")
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		addr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return BorrowGlobalExpr{TypeArg: ta[0], Addr: addr}, p.expectSymbol(")")
	case p.isKeyword("move_to"):
		p.advance()
		ta, err := p.parseTypeArgList()
		if err != nil {
			return nil, err
		}
		if len(ta) != 1 {
			return nil, p.errf("move_to requires exactly one type argument")
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		signer, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(","); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return MoveToExpr{TypeArg: ta[0], Signer: signer, Value: val}, p.expectSymbol(")")
	case p.isKeyword("move_from"):
		p.advance()
		ta, err := p.parseTypeArgList()
		if err != nil {
			return nil, err
		}
		if len(ta) != 1 {
			return nil, p.errf("move_from requires exactly one type argument")
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		addr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return MoveFromExpr{TypeArg: ta[0], Addr: addr}, p.expectSymbol(")")
	case p.isKeyword("exists"):
		p.advance()
		ta, err := p.parseTypeArgList()
		if err != nil {
			return nil, err
		}
		if len(ta) != 1 {
			return nil, p.errf("exists requires exactly one type argument")
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		addr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ExistsExpr{TypeArg: ta[0], Addr: addr}, p.expectSymbol(")")
	case p.cur().kind == tokIdent:
		return p.parseIdentExpr()
	default:
		return nil, p.errf("expected expression")
	}
}

func (p *Parser) parseIdentExpr() (ExprAST, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	alias := ""
	if p.isSymbol(".") {
		p.advance()
		alias = name
		name, err = p.expectIdent()
		if err != nil {
			return nil, err
		}
	}
	var typeArgs []TypeExprAST
	if p.isSymbol("<") {
		typeArgs, err = p.parseTypeArgList()
		if err != nil {
			return nil, err
		}
	}
	if p.isSymbol("(") {
		p.advance()
		var args []ExprAST
		for !p.isSymbol(")") {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.isSymbol(",") {
				p.advance()
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		if len(typeArgs) > 0 || alias != "" || name[0] < 'A' || name[0] > 'Z' {
			return CallExpr{ModuleAlias: alias, Name: name, TypeArgs: typeArgs, Args: args}, nil
		}
		// A parenthesized argument list is always a call, capitalized name
		// or not; struct literals use the brace form handled below.
		return CallExpr{ModuleAlias: alias, Name: name, TypeArgs: typeArgs, Args: args}, nil
	}
	if p.isSymbol("{") {
		p.advance()
		var fields []FieldInit
		for !p.isSymbol("}") {
			fname, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(":"); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fields = append(fields, FieldInit{Name: fname, Value: v})
			if p.isSymbol(",") {
				p.advance()
			}
		}
		if err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
		return PackExpr{StructName: name, TypeArgs: typeArgs, Fields: fields}, nil
	}
	if alias != "" {
		return nil, p.errf("qualified name %s.%s used as neither call nor struct literal", alias, name)
	}
	return VarExpr{Name: name}, nil
}
