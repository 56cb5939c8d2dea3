package token

import "unicode"

type Type int

const (
	LParen Type = iota
	RParen
	Ident
	String
	Number
)

func (t Type) String() string {
	switch t {
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Ident:
		return "identifier"
	case String:
		return "string"
	case Number:
		return "number"
	}
	return "unknown"
}

// Token is one lexical item. Offset is the byte offset of the token's
// first byte in the input; downstream code threads it into the tree so
// validation diagnostics can point back into the text.
type Token struct {
	Value  string
	Type   Type
	Line   int
	Offset int
}

func Tokenize(input string) []Token {
	var tokens []Token
	line := 1

	for i := 0; i < len(input); i++ {
		c := input[i]

		if c == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(rune(c)) {
			continue
		}

		// Line comment
		if c == ';' && i+1 < len(input) && input[i+1] == ';' {
			for i < len(input) && input[i] != '\n' {
				i++
			}
			line++
			continue
		}

		// Block comment or left paren
		if c == '(' {
			if i+1 < len(input) && input[i+1] == ';' {
				depth := 1
				i += 2
				for i < len(input) && depth > 0 {
					if input[i] == '(' && i+1 < len(input) && input[i+1] == ';' {
						depth++
						i++
					} else if input[i] == ';' && i+1 < len(input) && input[i+1] == ')' {
						depth--
						i++
					} else if input[i] == '\n' {
						line++
					}
					i++
				}
				i--
				continue
			}
			tokens = append(tokens, Token{"(", LParen, line, i})
			continue
		}

		if c == ')' {
			tokens = append(tokens, Token{")", RParen, line, i})
			continue
		}

		// String literal; Offset points at the opening quote
		if c == '"' {
			start := i + 1
			i++
			for i < len(input) && input[i] != '"' {
				if input[i] == '\\' {
					i++
				}
				i++
			}
			tokens = append(tokens, Token{input[start:i], String, line, start - 1})
			continue
		}

		// Number (including sign and hex/float forms)
		if c == '-' || c == '+' || isDigit(c) {
			start := i
			if c == '-' || c == '+' {
				i++
			}
			for i < len(input) && isNumByte(input[i]) {
				i++
			}
			tokens = append(tokens, Token{input[start:i], Number, line, start})
			i--
			continue
		}

		// Identifier: keywords, mnemonics, $names and offset=/align= forms
		start := i
		for i < len(input) && isIdentByte(input[i]) {
			i++
		}
		if i == start {
			i++ // skip a byte the grammar has no use for
			continue
		}
		tokens = append(tokens, Token{input[start:i], Ident, line, start})
		i--
	}

	return tokens
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNumByte(c byte) bool {
	switch {
	case isDigit(c), c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		return true
	}
	switch c {
	case '.', 'x', 'X', '_', 'p', 'P', '+', '-':
		return true
	}
	return false
}

func isIdentByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', isDigit(c):
		return true
	}
	switch c {
	case '$', '.', '_', '=', '-':
		return true
	}
	return false
}
