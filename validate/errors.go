package validate

import (
	"fmt"
	"strings"

	"github.com/wippyai/wat-validator/ast"
)

// Kind categorizes a validation failure. The set is closed: every failure
// the validator can produce is one of these.
type Kind string

const (
	KindIndexOutOfBounds    Kind = "index_out_of_bounds"
	KindMultipleReturnTypes Kind = "multiple_return_types"
	KindUnknownImport       Kind = "unknown_import"
	KindTooFewFuncLocals    Kind = "too_few_func_locals"
	KindParamLocalMismatch  Kind = "param_local_mismatch"
	KindTypeMismatch        Kind = "type_mismatch"
	KindStackUnderflow      Kind = "stack_underflow"
	KindLabelOutOfRange     Kind = "label_out_of_range"
	KindReturnTypeMismatch  Kind = "return_type_mismatch"
	KindSetImmutableGlobal  Kind = "set_immutable_global"
)

// Error is the structured validation error. Offset is a byte offset into
// the source text the module was parsed from; rendering turns it into a
// line/column location with the offending source line.
type Error struct {
	Kind   Kind
	Offset int
	Detail string

	// Structured data, populated per Kind.
	What     string // index kind label ("type", "function", ...)
	Idx      int
	Upper    int
	Op       string // mnemonic of the offending instruction
	Expected string
	Actual   string
	Module   string // import module name
	Name     string // import item name

	source string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("[validate] ")
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Detail)

	line, col := e.Position()
	fmt.Fprintf(&b, " at line %d, column %d", line, col)

	if src := e.sourceLine(); src != "" {
		b.WriteString("\n\n  ")
		b.WriteString(src)
		b.WriteString("\n  ")
		b.WriteString(strings.Repeat(" ", col-1))
		b.WriteByte('^')
	}

	return b.String()
}

// Is reports whether target matches this error by Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Position returns the 1-based line and column of the error offset.
func (e *Error) Position() (line, col int) {
	line, col = 1, 1
	for i, r := range e.source {
		if i >= e.Offset {
			break
		}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// sourceLine returns the source line containing the error offset, or ""
// when no source text is attached.
func (e *Error) sourceLine() string {
	if e.source == "" {
		return ""
	}
	off := e.Offset
	if off > len(e.source) {
		off = len(e.source)
	}
	start := strings.LastIndexByte(e.source[:off], '\n') + 1
	end := strings.IndexByte(e.source[off:], '\n')
	if end < 0 {
		end = len(e.source)
	} else {
		end += off
	}
	return e.source[start:end]
}

// Constructors, one per Kind. The source text is attached by the
// validation context when the error is raised.

func errIndexOutOfBounds(idx uint32, upper int, what string, offset int) *Error {
	return &Error{
		Kind:   KindIndexOutOfBounds,
		Offset: offset,
		What:   what,
		Idx:    int(idx),
		Upper:  upper,
		Detail: fmt.Sprintf("%s index %d out of bounds (must be less than %d)", what, idx, upper),
	}
}

func errMultipleReturnTypes(results []ast.ValType, offset int) *Error {
	return &Error{
		Kind:   KindMultipleReturnTypes,
		Offset: offset,
		Actual: typesString(results),
		Detail: fmt.Sprintf("function type declares %d return types %s, at most one is allowed", len(results), typesString(results)),
	}
}

func errUnknownImport(module, name string, offset int) *Error {
	return &Error{
		Kind:   KindUnknownImport,
		Offset: offset,
		Module: module,
		Name:   name,
		Detail: fmt.Sprintf("unknown import %q from module %q", name, module),
	}
}

func errTooFewFuncLocals(params, locals, offset int) *Error {
	return &Error{
		Kind:   KindTooFewFuncLocals,
		Offset: offset,
		Idx:    locals,
		Upper:  params,
		Detail: fmt.Sprintf("function declares %d locals but its type has %d parameters", locals, params),
	}
}

func errParamLocalMismatch(idx int, param, local ast.ValType, offset int) *Error {
	return &Error{
		Kind:     KindParamLocalMismatch,
		Offset:   offset,
		Idx:      idx,
		Expected: param.String(),
		Actual:   local.String(),
		Detail:   fmt.Sprintf("local %d must have parameter type %s but has %s", idx, param, local),
	}
}

func errTypeMismatch(op, expected, actual string, offset int) *Error {
	return &Error{
		Kind:     KindTypeMismatch,
		Offset:   offset,
		Op:       op,
		Expected: expected,
		Actual:   actual,
		Detail:   fmt.Sprintf("type mismatch at %s: expected %s but got %s", op, expected, actual),
	}
}

func errStackUnderflow(op string, needed, height, offset int) *Error {
	return &Error{
		Kind:   KindStackUnderflow,
		Offset: offset,
		Op:     op,
		Idx:    height,
		Upper:  needed,
		Detail: fmt.Sprintf("operand stack underflow at %s: needs %d operands but %d available in this frame", op, needed, height),
	}
}

func errLabelOutOfRange(depth uint32, upper, offset int) *Error {
	return &Error{
		Kind:   KindLabelOutOfRange,
		Offset: offset,
		Idx:    int(depth),
		Upper:  upper,
		Detail: fmt.Sprintf("branch depth %d exceeds current nesting of %d labels", depth, upper),
	}
}

func errReturnTypeMismatch(expected, actual string, offset int) *Error {
	return &Error{
		Kind:     KindReturnTypeMismatch,
		Offset:   offset,
		Expected: expected,
		Actual:   actual,
		Detail:   fmt.Sprintf("function body leaves %s on the stack but its type declares %s", actual, expected),
	}
}

func errSetImmutableGlobal(idx uint32, offset int) *Error {
	return &Error{
		Kind:   KindSetImmutableGlobal,
		Offset: offset,
		Idx:    int(idx),
		Detail: fmt.Sprintf("global variable %d is immutable and cannot be set", idx),
	}
}

// typesString renders a value type list as "(i32, f64)"; empty lists
// render as "()".
func typesString(types []ast.ValType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
