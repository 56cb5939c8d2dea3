package parser

import (
	"fmt"

	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/wat/internal/token"
)

// parseFunc parses 'func' $name? inline-export* inline-import? typeuse
// local* instr* ')' with the leading '(' and keyword already consumed.
func (p *Parser) parseFunc(kw *token.Token) error {
	p.takeName() // registered by the prescan
	fnIdx := uint32(len(p.mod.Funcs))

	for p.peekSection("export") {
		p.pos += 2
		name, err := p.expect(token.String)
		if err != nil {
			return err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
		p.mod.Exports = append(p.mod.Exports, ast.Export{Start: name.Offset, Name: name.Value, FuncIdx: fnIdx})
	}

	if p.peekSection("import") {
		p.pos += 2
		mod, err := p.expect(token.String)
		if err != nil {
			return err
		}
		name, err := p.expect(token.String)
		if err != nil {
			return err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
		typeIdx, _, _, err := p.parseTypeUse(kw)
		if err != nil {
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

	typeIdx, paramNames, ft, err := p.parseTypeUse(kw)
	if err != nil {
		return err
	}

	// Local index space covers parameters first, then declared locals.
	p.localMap = make(map[string]uint32)
	for i, n := range paramNames {
		if n != "" {
			p.localMap[n] = uint32(i)
		}
	}
	locals := append([]ast.ValType(nil), ft.Params...)
	for p.peekSection("local") {
		p.pos += 2
		if name := p.takeName(); name != "" {
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			p.localMap[name] = uint32(len(locals))
			locals = append(locals, vt)
		} else {
			for {
				t := p.peek()
				if t == nil || t.Type == token.RParen {
					break
				}
				vt, err := p.parseValType()
				if err != nil {
					return err
				}
				locals = append(locals, vt)
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return err
		}
	}

	body, err := p.parseInstrSeq()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}

	p.mod.Funcs = append(p.mod.Funcs, ast.Func{
		Start:   kw.Offset,
		TypeIdx: typeIdx,
		Kind:    &ast.BodyKind{Locals: locals, Expr: body},
	})
	return nil
}

// parseTypeUse parses '(' 'type' idx ')' and/or an inline signature. An
// inline signature without an explicit type reference is deduplicated
// against the module's type table, appending a new entry when no match
// exists. With an explicit reference the inline parts only contribute
// parameter names.
func (p *Parser) parseTypeUse(at *token.Token) (uint32, []string, ast.FuncType, error) {
	if p.peekSection("type") {
		p.pos += 2
		idx, err := p.parseIdx(p.typeMap, "type")
		if err != nil {
			return 0, nil, ast.FuncType{}, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return 0, nil, ast.FuncType{}, err
		}
		var names []string
		var ft ast.FuncType
		if p.peekSection("param") || p.peekSection("result") {
			if _, names, _, err = p.parseSig(); err != nil {
				return 0, nil, ast.FuncType{}, err
			}
		}
		if int(idx) < len(p.mod.Types) {
			ft = p.mod.Types[idx]
		}
		return idx, names, ft, nil
	}

	params, names, results, err := p.parseSig()
	if err != nil {
		return 0, nil, ast.FuncType{}, err
	}
	ft := ast.FuncType{Start: at.Offset, Params: params, Results: results}
	for i, t := range p.mod.Types {
		if sameTypes(t.Params, params) && sameTypes(t.Results, results) {
			return uint32(i), names, ft, nil
		}
	}
	idx := uint32(len(p.mod.Types))
	p.mod.Types = append(p.mod.Types, ft)
	return idx, names, ft, nil
}

// parseSig parses '(' 'param' ... ')'* '(' 'result' ... ')'* forms. A
// named parameter form declares exactly one parameter. Returned names
// align with params, empty for unnamed ones.
func (p *Parser) parseSig() (params []ast.ValType, names []string, results []ast.ValType, err error) {
	for p.peekSection("param") {
		p.pos += 2
		if name := p.takeName(); name != "" {
			vt, err := p.parseValType()
			if err != nil {
				return nil, nil, nil, err
			}
			params = append(params, vt)
			names = append(names, name)
		} else {
			for {
				t := p.peek()
				if t == nil || t.Type == token.RParen {
					break
				}
				vt, err := p.parseValType()
				if err != nil {
					return nil, nil, nil, err
				}
				params = append(params, vt)
				names = append(names, "")
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, nil, nil, err
		}
	}
	for p.peekSection("result") {
		p.pos += 2
		for {
			t := p.peek()
			if t == nil || t.Type == token.RParen {
				break
			}
			vt, err := p.parseValType()
			if err != nil {
				return nil, nil, nil, err
			}
			results = append(results, vt)
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, nil, nil, err
		}
	}
	if p.peekSection("param") {
		t := p.peek()
		return nil, nil, nil, fmt.Errorf("line %d: params must precede results", t.Line)
	}
	return params, names, results, nil
}

func sameTypes(a, b []ast.ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
