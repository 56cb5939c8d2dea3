package wat

import (
	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/wat/internal/parser"
	"github.com/wippyai/wat-validator/wat/internal/token"
)

// Parse parses WebAssembly text format source into a module tree. The
// tree is not validated; pass it to the validate package before encoding
// or running it.
func Parse(source string) (*ast.Module, error) {
	tokens := token.Tokenize(source)
	p := parser.New(tokens)
	return p.Parse()
}
