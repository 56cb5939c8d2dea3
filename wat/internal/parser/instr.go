package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/wat/internal/opcode"
	"github.com/wippyai/wat-validator/wat/internal/token"
)

// parseInstrSeq parses instructions until the enclosing ')' or a bare
// 'else'/'end' keyword. The terminator is left unconsumed. Both the flat
// and the folded form are accepted and may be mixed.
func (p *Parser) parseInstrSeq() ([]ast.Instruction, error) {
	var seq []ast.Instruction
	for {
		t := p.peek()
		if t == nil {
			return nil, fmt.Errorf("unexpected end of input in instruction sequence")
		}
		if t.Type == token.RParen {
			return seq, nil
		}
		if t.Type == token.Ident && (t.Value == "else" || t.Value == "end") {
			return seq, nil
		}
		instrs, err := p.parseInstr()
		if err != nil {
			return nil, err
		}
		seq = append(seq, instrs...)
	}
}

// parseInstr parses one instruction. Folded plain instructions unfold to
// their operands followed by the operator, so more than one instruction
// may come back.
func (p *Parser) parseInstr() ([]ast.Instruction, error) {
	t := p.peek()
	if t.Type == token.LParen {
		return p.parseFoldedInstr()
	}
	if t.Type != token.Ident {
		return nil, fmt.Errorf("line %d: expected instruction, got %q", t.Line, t.Value)
	}
	p.pos++

	switch t.Value {
	case "block", "loop":
		return p.parseFlatBlock(t)
	case "if":
		return p.parseFlatIf(t)
	}

	insn, err := p.parsePlainInstr(t)
	if err != nil {
		return nil, err
	}
	return []ast.Instruction{insn}, nil
}

func (p *Parser) parseFoldedInstr() ([]ast.Instruction, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	t, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}

	switch t.Value {
	case "block", "loop":
		p.pushLabel(p.takeName())
		result, err := p.parseBlockResult()
		if err != nil {
			return nil, err
		}
		body, err := p.parseInstrSeq()
		if err != nil {
			return nil, err
		}
		p.popLabel()
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		imm := ast.BlockImm{Result: result, Body: body}
		op := ast.OpBlock
		if t.Value == "loop" {
			op = ast.OpLoop
		}
		return []ast.Instruction{{Start: t.Offset, Op: op, Imm: imm}}, nil

	case "if":
		return p.parseFoldedIf(t)
	}

	// Folded plain instruction: operator, immediates, then operand
	// subexpressions. Unfolds to operands first.
	insn, err := p.parsePlainInstr(t)
	if err != nil {
		return nil, err
	}
	operands, err := p.parseInstrSeq()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return append(operands, insn), nil
}

// parseFoldedIf parses '(' 'if' $label? blockresult? cond* '(' 'then'
// instr* ')' ('(' 'else' instr* ')')? ')' with '(' 'if' consumed.
func (p *Parser) parseFoldedIf(t *token.Token) ([]ast.Instruction, error) {
	label := p.takeName()
	result, err := p.parseBlockResult()
	if err != nil {
		return nil, err
	}

	var cond []ast.Instruction
	for !p.peekSection("then") {
		n := p.peek()
		if n == nil || n.Type != token.LParen {
			return nil, fmt.Errorf("line %d: expected (then ...) in if", t.Line)
		}
		instrs, err := p.parseFoldedInstr()
		if err != nil {
			return nil, err
		}
		cond = append(cond, instrs...)
	}

	p.pushLabel(label)
	p.pos += 2 // ( then
	then, err := p.parseInstrSeq()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}

	var els []ast.Instruction
	if p.peekSection("else") {
		p.pos += 2
		if els, err = p.parseInstrSeq(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		if els == nil {
			els = []ast.Instruction{}
		}
	}
	p.popLabel()

	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	imm := ast.IfImm{Result: result, Then: then, Else: els}
	return append(cond, ast.Instruction{Start: t.Offset, Op: ast.OpIf, Imm: imm}), nil
}

// parseFlatBlock parses 'block'/'loop' $label? blockresult? instr* 'end'
// $label? with the keyword consumed.
func (p *Parser) parseFlatBlock(t *token.Token) ([]ast.Instruction, error) {
	p.pushLabel(p.takeName())
	result, err := p.parseBlockResult()
	if err != nil {
		return nil, err
	}
	body, err := p.parseInstrSeq()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	p.takeName()
	p.popLabel()
	imm := ast.BlockImm{Result: result, Body: body}
	op := ast.OpBlock
	if t.Value == "loop" {
		op = ast.OpLoop
	}
	return []ast.Instruction{{Start: t.Offset, Op: op, Imm: imm}}, nil
}

// parseFlatIf parses 'if' $label? blockresult? instr* ('else' $label?
// instr*)? 'end' $label? with the keyword consumed. The condition comes
// from preceding instructions.
func (p *Parser) parseFlatIf(t *token.Token) ([]ast.Instruction, error) {
	p.pushLabel(p.takeName())
	result, err := p.parseBlockResult()
	if err != nil {
		return nil, err
	}
	then, err := p.parseInstrSeq()
	if err != nil {
		return nil, err
	}
	var els []ast.Instruction
	if p.peekIs("else") {
		p.pos++
		p.takeName()
		if els, err = p.parseInstrSeq(); err != nil {
			return nil, err
		}
		if els == nil {
			els = []ast.Instruction{}
		}
	}
	if _, err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	p.takeName()
	p.popLabel()
	imm := ast.IfImm{Result: result, Then: then, Else: els}
	return []ast.Instruction{{Start: t.Offset, Op: ast.OpIf, Imm: imm}}, nil
}

// parseBlockResult parses an optional '(' 'result' valtype ')'.
func (p *Parser) parseBlockResult() (*ast.ValType, error) {
	if !p.peekSection("result") {
		return nil, nil
	}
	p.pos += 2
	vt, err := p.parseValType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return &vt, nil
}

// parsePlainInstr parses the immediates of a non-structured instruction
// whose mnemonic token was already consumed.
func (p *Parser) parsePlainInstr(t *token.Token) (ast.Instruction, error) {
	info, ok := opcode.Lookup(t.Value)
	if !ok {
		return ast.Instruction{}, fmt.Errorf("line %d: unknown instruction %q", t.Line, t.Value)
	}
	insn := ast.Instruction{Start: t.Offset, Op: info.Op}

	switch info.Imm {
	case opcode.ImmNone:

	case opcode.ImmLabel:
		depth, err := p.parseLabelIdx()
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.BrImm{Depth: depth}

	case opcode.ImmBrTable:
		var labels []uint32
		for {
			n := p.peek()
			if n == nil {
				return ast.Instruction{}, fmt.Errorf("unexpected end of input in br_table")
			}
			if n.Type != token.Number && !(n.Type == token.Ident && strings.HasPrefix(n.Value, "$")) {
				break
			}
			depth, err := p.parseLabelIdx()
			if err != nil {
				return ast.Instruction{}, err
			}
			labels = append(labels, depth)
		}
		if len(labels) == 0 {
			return ast.Instruction{}, fmt.Errorf("line %d: br_table needs a default label", t.Line)
		}
		insn.Imm = ast.BrTableImm{Labels: labels[:len(labels)-1], Default: labels[len(labels)-1]}

	case opcode.ImmFunc:
		idx, err := p.parseIdx(p.funcMap, "function")
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.CallImm{FuncIdx: idx}

	case opcode.ImmTypeUse:
		typeIdx, _, _, err := p.parseTypeUse(t)
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.CallIndirectImm{TypeIdx: typeIdx}

	case opcode.ImmLocal:
		idx, err := p.parseIdx(p.localMap, "local")
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.LocalImm{Idx: idx}

	case opcode.ImmGlobal:
		idx, err := p.parseIdx(p.globalMap, "global")
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.GlobalImm{Idx: idx}

	case opcode.ImmMemarg:
		imm := ast.MemImm{Align: info.NaturalAlign}
		if v, ok, err := p.takeMemargField("offset="); err != nil {
			return ast.Instruction{}, err
		} else if ok {
			if v > math.MaxUint32 {
				return ast.Instruction{}, fmt.Errorf("line %d: offset %d does not fit in 32 bits", t.Line, v)
			}
			imm.Offset = uint32(v)
		}
		if v, ok, err := p.takeMemargField("align="); err != nil {
			return ast.Instruction{}, err
		} else if ok {
			l, ok := alignLog2(v)
			if !ok {
				return ast.Instruction{}, fmt.Errorf("line %d: alignment must be a power of two", t.Line)
			}
			imm.Align = l
		}
		insn.Imm = imm

	case opcode.ImmI32:
		n, err := p.expect(token.Number)
		if err != nil {
			return ast.Instruction{}, err
		}
		v, err := parseI32(n)
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.I32Imm{Value: v}

	case opcode.ImmI64:
		n, err := p.expect(token.Number)
		if err != nil {
			return ast.Instruction{}, err
		}
		v, err := parseI64(n)
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.I64Imm{Value: v}

	case opcode.ImmF32:
		n, err := p.expect(token.Number)
		if err != nil {
			return ast.Instruction{}, err
		}
		v, err := parseF32(n)
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.F32Imm{Value: v}

	case opcode.ImmF64:
		n, err := p.expect(token.Number)
		if err != nil {
			return ast.Instruction{}, err
		}
		v, err := parseF64(n)
		if err != nil {
			return ast.Instruction{}, err
		}
		insn.Imm = ast.F64Imm{Value: v}
	}

	return insn, nil
}

// parseLabelIdx resolves a branch target, either a relative depth number
// or a $label bound by an enclosing block.
func (p *Parser) parseLabelIdx() (uint32, error) {
	t := p.next()
	if t == nil {
		return 0, fmt.Errorf("unexpected end of input")
	}
	switch t.Type {
	case token.Number:
		return parseU32(t)
	case token.Ident:
		if depth, ok := p.resolveLabel(t.Value); ok {
			return depth, nil
		}
		return 0, fmt.Errorf("line %d: unknown label %q", t.Line, t.Value)
	}
	return 0, fmt.Errorf("line %d: expected label, got %q", t.Line, t.Value)
}

// takeMemargField consumes an optional 'name=N' token.
func (p *Parser) takeMemargField(prefix string) (uint64, bool, error) {
	t := p.peek()
	if t == nil || t.Type != token.Ident || !strings.HasPrefix(t.Value, prefix) {
		return 0, false, nil
	}
	p.pos++
	v, err := strconv.ParseUint(clean(strings.TrimPrefix(t.Value, prefix)), 0, 64)
	if err != nil {
		return 0, false, fmt.Errorf("line %d: invalid %s in %q", t.Line, strings.TrimSuffix(prefix, "="), t.Value)
	}
	return v, true, nil
}
