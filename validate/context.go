package validate

import "github.com/wippyai/wat-validator/ast"

// Context threads the module under validation and its source text through
// one validation call. Both are borrowed read-only; the context never
// copies or mutates the tree.
type Context struct {
	module *ast.Module
	source string
}

// fail attaches the source text to a constructed error and returns it.
func (c *Context) fail(e *Error) error {
	e.source = c.source
	return e
}

// resolveIdx is the bounds-checked lookup behind every numeric index
// dereference. what is the human-readable index kind used in diagnostics.
func resolveIdx[T any](c *Context, s []T, idx uint32, what string, offset int) (*T, error) {
	if int(idx) >= len(s) {
		return nil, c.fail(errIndexOutOfBounds(idx, len(s), what, offset))
	}
	return &s[idx], nil
}

func (c *Context) typeFromIdx(idx uint32, offset int) (*ast.FuncType, error) {
	return resolveIdx(c, c.module.Types, idx, "type", offset)
}

func (c *Context) funcFromIdx(idx uint32, offset int) (*ast.Func, error) {
	return resolveIdx(c, c.module.Funcs, idx, "function", offset)
}

func (c *Context) tableFromIdx(idx uint32, offset int) (*ast.Table, error) {
	return resolveIdx(c, c.module.Tables, idx, "table", offset)
}

func (c *Context) globalFromIdx(idx uint32, offset int) (*ast.Global, error) {
	return resolveIdx(c, c.module.Globals, idx, "global variable", offset)
}
