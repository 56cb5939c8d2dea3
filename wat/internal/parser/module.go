package parser

import (
	"fmt"
	"strings"

	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/wat/internal/token"
)

// prescanNames walks the token stream once and records the module-level
// $names of functions and globals in index order, so later fields can
// reference earlier-unseen ones. Imported functions share the function
// index space in order of appearance.
func (p *Parser) prescanNames() {
	saved := p.pos
	depth := 0
	var funcIdx, globalIdx uint32

	for p.pos < len(p.tokens) {
		t := &p.tokens[p.pos]
		switch t.Type {
		case token.LParen:
			depth++
			p.pos++
			if depth != 2 { // module fields only
				continue
			}
			if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != token.Ident {
				continue
			}
			keyword := p.tokens[p.pos].Value
			p.pos++
			switch keyword {
			case "func":
				if name := p.prescanName(); name != "" {
					p.funcMap[name] = funcIdx
				}
				funcIdx++
			case "global":
				if name := p.prescanName(); name != "" {
					p.globalMap[name] = globalIdx
				}
				globalIdx++
			case "import":
				kind, name := p.prescanImport()
				switch kind {
				case "func":
					if name != "" {
						p.funcMap[name] = funcIdx
					}
					funcIdx++
				case "global":
					if name != "" {
						p.globalMap[name] = globalIdx
					}
					globalIdx++
				}
			}
		case token.RParen:
			depth--
			p.pos++
		default:
			p.pos++
		}
	}

	p.pos = saved
}

func (p *Parser) prescanName() string {
	if p.pos < len(p.tokens) {
		t := &p.tokens[p.pos]
		if t.Type == token.Ident && strings.HasPrefix(t.Value, "$") {
			return t.Value
		}
	}
	return ""
}

// prescanImport peeks past the two name strings of an import field to its
// descriptor, returning the descriptor kind and optional $name. The field
// itself is left for the main pass.
func (p *Parser) prescanImport() (kind, name string) {
	pos := p.pos
	// two strings, then '(' kind
	for i := 0; i < 2; i++ {
		if pos >= len(p.tokens) || p.tokens[pos].Type != token.String {
			return "", ""
		}
		pos++
	}
	if pos+1 >= len(p.tokens) || p.tokens[pos].Type != token.LParen {
		return "", ""
	}
	pos++
	if p.tokens[pos].Type != token.Ident {
		return "", ""
	}
	kind = p.tokens[pos].Value
	pos++
	if pos < len(p.tokens) && p.tokens[pos].Type == token.Ident && strings.HasPrefix(p.tokens[pos].Value, "$") {
		name = p.tokens[pos].Value
	}
	return kind, name
}

// prescanTypes parses all (type ...) fields into the module's type table
// before the main pass, so type uses can reference declared types by name
// or index regardless of field order. Implicit types added by inline
// signatures always follow the declared ones.
func (p *Parser) prescanTypes() error {
	saved := p.pos
	depth := 0

	for p.pos < len(p.tokens) {
		t := &p.tokens[p.pos]
		switch t.Type {
		case token.LParen:
			depth++
			p.pos++
			if depth == 2 && p.peekIs("type") {
				kw := p.next()
				if err := p.parseTypeField(kw); err != nil {
					return err
				}
				depth--
			}
		case token.RParen:
			depth--
			p.pos++
		default:
			p.pos++
		}
	}

	p.pos = saved
	return nil
}

// parseTypeField parses 'type' $name? '(' 'func' sig ')' ')' with the
// leading '(' and keyword already consumed.
func (p *Parser) parseTypeField(kw *token.Token) error {
	name := p.takeName()
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	if _, err := p.expectKeyword("func"); err != nil {
		return err
	}
	params, _, results, err := p.parseSig()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	if name != "" {
		p.typeMap[name] = uint32(len(p.mod.Types))
	}
	p.mod.Types = append(p.mod.Types, ast.FuncType{Start: kw.Offset, Params: params, Results: results})
	return nil
}

func (p *Parser) parseModule() error {
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	if _, err := p.expectKeyword("module"); err != nil {
		return err
	}

	for {
		t := p.next()
		if t == nil {
			return fmt.Errorf("unexpected end of input in module")
		}
		if t.Type == token.RParen {
			return nil
		}
		if t.Type != token.LParen {
			return fmt.Errorf("line %d: expected module field, got %q", t.Line, t.Value)
		}
		kw, err := p.expect(token.Ident)
		if err != nil {
			return err
		}

		switch kw.Value {
		case "type":
			// Parsed by the prescan; skip.
			if err := p.skipBalanced(); err != nil {
				return err
			}
		case "import":
			err = p.parseImport(kw)
		case "func":
			err = p.parseFunc(kw)
		case "table":
			err = p.parseTable(kw)
		case "memory":
			err = p.parseMemory(kw)
		case "global":
			err = p.parseGlobal(kw)
		case "export":
			err = p.parseExport(kw)
		case "start":
			err = p.parseStart(kw)
		default:
			return fmt.Errorf("line %d: unsupported module field %q", kw.Line, kw.Value)
		}
		if err != nil {
			return err
		}
	}
}

// parseImport parses 'import' STR STR '(' 'func' $name? typeuse ')' ')'.
// Only function imports are supported.
func (p *Parser) parseImport(kw *token.Token) error {
	mod, err := p.expect(token.String)
	if err != nil {
		return err
	}
	name, err := p.expect(token.String)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	desc, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	if desc.Value != "func" {
		return fmt.Errorf("line %d: unsupported import kind %q", desc.Line, desc.Value)
	}
	p.takeName() // registered by the prescan
	typeIdx, _, _, err := p.parseTypeUse(kw)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Funcs = append(p.mod.Funcs, ast.Func{
		Start:   kw.Offset,
		TypeIdx: typeIdx,
		Kind:    &ast.ImportKind{Module: mod.Value, Name: name.Value},
	})
	return nil
}

// parseTable parses 'table' min max? 'funcref' ')'.
func (p *Parser) parseTable(kw *token.Token) error {
	min, max, err := p.parseLimits()
	if err != nil {
		return err
	}
	if _, err := p.expectKeyword("funcref"); err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Tables = append(p.mod.Tables, ast.Table{Start: kw.Offset, Min: min, Max: max})
	return nil
}

// parseMemory parses 'memory' min max? ')'.
func (p *Parser) parseMemory(kw *token.Token) error {
	min, max, err := p.parseLimits()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Mems = append(p.mod.Mems, ast.Memory{Start: kw.Offset, MinPages: min, MaxPages: max})
	return nil
}

func (p *Parser) parseLimits() (min uint32, max *uint32, err error) {
	t, err := p.expect(token.Number)
	if err != nil {
		return 0, nil, err
	}
	if min, err = parseU32(t); err != nil {
		return 0, nil, err
	}
	if n := p.peek(); n != nil && n.Type == token.Number {
		p.pos++
		m, err := parseU32(n)
		if err != nil {
			return 0, nil, err
		}
		max = &m
	}
	return min, max, nil
}

// parseGlobal parses 'global' $name? ('(' 'mut' valtype ')' | valtype)
// instr* ')'.
func (p *Parser) parseGlobal(kw *token.Token) error {
	p.takeName() // registered by the prescan
	g := ast.Global{Start: kw.Offset}

	if p.peekSection("mut") {
		p.pos += 2
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
		g.Type = vt
		g.Mutable = true
	} else {
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		g.Type = vt
	}

	init, err := p.parseInstrSeq()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	g.Init = init
	p.mod.Globals = append(p.mod.Globals, g)
	return nil
}

// parseExport parses 'export' STR '(' 'func' idx ')' ')'.
func (p *Parser) parseExport(kw *token.Token) error {
	name, err := p.expect(token.String)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	if _, err := p.expectKeyword("func"); err != nil {
		return err
	}
	idx, err := p.parseIdx(p.funcMap, "function")
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Exports = append(p.mod.Exports, ast.Export{Start: kw.Offset, Name: name.Value, FuncIdx: idx})
	return nil
}

// parseStart parses 'start' idx ')'.
func (p *Parser) parseStart(kw *token.Token) error {
	idx, err := p.parseIdx(p.funcMap, "function")
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Start = &idx
	return nil
}
