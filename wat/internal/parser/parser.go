package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/wat/internal/token"
)

type Parser struct {
	mod       *ast.Module
	typeMap   map[string]uint32
	funcMap   map[string]uint32
	globalMap map[string]uint32
	localMap  map[string]uint32 // reset per function
	tokens    []token.Token
	labels    []string
	pos       int
}

func New(tokens []token.Token) *Parser {
	return &Parser{
		mod:       &ast.Module{},
		typeMap:   make(map[string]uint32),
		funcMap:   make(map[string]uint32),
		globalMap: make(map[string]uint32),
		tokens:    tokens,
	}
}

func (p *Parser) Parse() (*ast.Module, error) {
	p.prescanNames()
	if err := p.prescanTypes(); err != nil {
		return nil, err
	}
	if err := p.parseModule(); err != nil {
		return nil, err
	}
	return p.mod, nil
}

func (p *Parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *Parser) expect(typ token.Type) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input")
	}
	if t.Type != typ {
		return nil, fmt.Errorf("line %d: expected %v, got %q", t.Line, typ, t.Value)
	}
	return t, nil
}

func (p *Parser) expectKeyword(kw string) (*token.Token, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if t.Value != kw {
		return nil, fmt.Errorf("line %d: expected %q, got %q", t.Line, kw, t.Value)
	}
	return t, nil
}

// peekIs reports whether the next token is an Ident with the given value.
func (p *Parser) peekIs(kw string) bool {
	t := p.peek()
	return t != nil && t.Type == token.Ident && t.Value == kw
}

// peekSection reports whether the next two tokens open the given keyword
// form, i.e. '(' kw.
func (p *Parser) peekSection(kw string) bool {
	if p.pos+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.pos].Type == token.LParen &&
		p.tokens[p.pos+1].Type == token.Ident && p.tokens[p.pos+1].Value == kw
}

// takeName consumes an optional $name token and returns it, or "".
func (p *Parser) takeName() string {
	t := p.peek()
	if t != nil && t.Type == token.Ident && strings.HasPrefix(t.Value, "$") {
		p.pos++
		return t.Value
	}
	return ""
}

// skipBalanced consumes tokens until the current form's closing paren.
// It assumes the opening paren was already consumed.
func (p *Parser) skipBalanced() error {
	depth := 1
	for depth > 0 {
		t := p.next()
		if t == nil {
			return fmt.Errorf("unexpected end of input")
		}
		switch t.Type {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		}
	}
	return nil
}

func (p *Parser) pushLabel(name string) {
	p.labels = append(p.labels, name)
}

func (p *Parser) popLabel() {
	if len(p.labels) > 0 {
		p.labels = p.labels[:len(p.labels)-1]
	}
}

func (p *Parser) resolveLabel(name string) (uint32, bool) {
	for i := len(p.labels) - 1; i >= 0; i-- {
		if p.labels[i] == name {
			return uint32(len(p.labels) - 1 - i), true
		}
	}
	return 0, false
}

func (p *Parser) parseValType() (ast.ValType, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return 0, err
	}
	vt, ok := valType(t.Value)
	if !ok {
		return 0, fmt.Errorf("line %d: unknown value type %q", t.Line, t.Value)
	}
	return vt, nil
}

func valType(s string) (ast.ValType, bool) {
	switch s {
	case "i32":
		return ast.I32, true
	case "i64":
		return ast.I64, true
	case "f32":
		return ast.F32, true
	case "f64":
		return ast.F64, true
	}
	return 0, false
}

// Index references are either a bare number or a $name resolved through
// the given map.
func (p *Parser) parseIdx(m map[string]uint32, what string) (uint32, error) {
	t := p.next()
	if t == nil {
		return 0, fmt.Errorf("unexpected end of input")
	}
	switch t.Type {
	case token.Number:
		return parseU32(t)
	case token.Ident:
		if idx, ok := m[t.Value]; ok {
			return idx, nil
		}
		return 0, fmt.Errorf("line %d: unknown %s %q", t.Line, what, t.Value)
	}
	return 0, fmt.Errorf("line %d: expected %s index, got %q", t.Line, what, t.Value)
}

func parseU32(t *token.Token) (uint32, error) {
	v, err := strconv.ParseUint(clean(t.Value), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid index %q", t.Line, t.Value)
	}
	return uint32(v), nil
}

func parseI32(t *token.Token) (int32, error) {
	s := clean(t.Value)
	if v, err := strconv.ParseInt(s, 0, 32); err == nil {
		return int32(v), nil
	}
	// Large unsigned literals wrap to their two's-complement value.
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid i32 literal %q", t.Line, t.Value)
	}
	return int32(v), nil
}

func parseI64(t *token.Token) (int64, error) {
	s := clean(t.Value)
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid i64 literal %q", t.Line, t.Value)
	}
	return int64(v), nil
}

func parseF32(t *token.Token) (float32, error) {
	v, err := strconv.ParseFloat(clean(t.Value), 32)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid f32 literal %q", t.Line, t.Value)
	}
	return float32(v), nil
}

func parseF64(t *token.Token) (float64, error) {
	v, err := strconv.ParseFloat(clean(t.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid f64 literal %q", t.Line, t.Value)
	}
	return v, nil
}

// clean strips digit separators.
func clean(s string) string {
	return strings.ReplaceAll(s, "_", "")
}

// log2 of a power-of-two byte alignment.
func alignLog2(n uint64) (uint32, bool) {
	if n == 0 || n&(n-1) != 0 || n > math.MaxUint32 {
		return 0, false
	}
	l := uint32(0)
	for n > 1 {
		n >>= 1
		l++
	}
	return l, true
}
