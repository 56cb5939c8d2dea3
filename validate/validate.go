package validate

import (
	"go.uber.org/zap"

	"github.com/wippyai/wat-validator/ast"
)

// Validate checks the whole module for well-formedness and type safety.
// It returns nil on success or the first *Error found; later declarations
// are not examined after a failure.
//
// Declaration order matters: types are checked before functions because
// every function resolves its signature through the type table.
//
// Tables[0], the memory section and the start function are currently not
// checked (see the package comment).
func Validate(m *ast.Module, source string) error {
	c := &Context{module: m, source: source}

	Logger().Debug("validating module",
		zap.Int("types", len(m.Types)),
		zap.Int("funcs", len(m.Funcs)),
		zap.Int("globals", len(m.Globals)),
	)

	if err := each(m.Types, c.validateFuncType); err != nil {
		return err
	}
	return each(m.Funcs, c.validateFunc)
}

// each validates an ordered declaration list, stopping at the first
// failure. Every sibling list in the module goes through this one helper
// so the short-circuit behavior stays uniform.
func each[T any](items []T, fn func(*T) error) error {
	for i := range items {
		if err := fn(&items[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateFuncType enforces the single-return restriction.
func (c *Context) validateFuncType(ft *ast.FuncType) error {
	if len(ft.Results) > 1 {
		return c.fail(errMultipleReturnTypes(ft.Results, ft.Start))
	}
	return nil
}

// validateImport applies the import admissibility policy: an import is
// accepted when its module is "env" or its item is "print", each condition
// sufficient on its own.
//
// TODO: confirm with the format owners whether admissibility should
// instead require module "env" and item "print" together.
func (c *Context) validateImport(imp *ast.ImportKind, offset int) error {
	if imp.Module != "env" && imp.Name != "print" {
		return c.fail(errUnknownImport(imp.Module, imp.Name, offset))
	}
	return nil
}

// validateFunc resolves the function's declared type, then checks the
// import binding or the body against it.
func (c *Context) validateFunc(f *ast.Func) error {
	ft, err := c.typeFromIdx(f.TypeIdx, f.Start)
	if err != nil {
		return err
	}

	if imp, ok := f.Kind.(*ast.ImportKind); ok {
		return c.validateImport(imp, f.Start)
	}
	body := f.Kind.(*ast.BodyKind)

	// The first len(params) locals alias the parameters and must carry
	// exactly the parameter types.
	if len(body.Locals) < len(ft.Params) {
		return c.fail(errTooFewFuncLocals(len(ft.Params), len(body.Locals), f.Start))
	}
	for i, param := range ft.Params {
		if body.Locals[i] != param {
			return c.fail(errParamLocalMismatch(i, param, body.Locals[i], f.Start))
		}
	}

	// validateFuncType already capped results at one.
	var ret *ast.ValType
	if len(ft.Results) == 1 {
		ret = &ft.Results[0]
	}
	return c.validateFuncBody(body.Expr, body.Locals, ret, f.Start)
}
