package ast

// Module is the root declaration set of one parsed module.
type Module struct {
	Types   []FuncType
	Funcs   []Func
	Tables  []Table
	Mems    []Memory
	Globals []Global
	Exports []Export
	Start   *uint32 // entry function index, nil when absent
}

// FuncType is a function signature: ordered parameter types and ordered
// result types. The validator enforces len(Results) <= 1.
type FuncType struct {
	Start   int
	Params  []ValType
	Results []ValType
}

// Func is one function declaration: a type index into Module.Types and
// either an import binding or a body.
type Func struct {
	Start   int
	TypeIdx uint32
	Kind    FuncKind
}

// FuncKind is the closed two-variant kind of a function: *ImportKind or
// *BodyKind. Validation dispatches on the concrete type.
type FuncKind interface {
	funcKind()
}

// ImportKind binds a function to an external module item.
type ImportKind struct {
	Module string
	Name   string
}

// BodyKind holds a defined function's locals and code.
//
// Locals follows the wat convention: the first len(params) entries alias
// the function's parameters and must carry exactly the parameter types in
// order; extra locals follow.
type BodyKind struct {
	Locals []ValType
	Expr   []Instruction
}

func (*ImportKind) funcKind() {}
func (*BodyKind) funcKind()   {}

// Table declares a funcref table with size limits.
type Table struct {
	Start int
	Min   uint32
	Max   *uint32
}

// Memory declares a linear memory with page limits.
type Memory struct {
	Start    int
	MinPages uint32
	MaxPages *uint32
}

// Global declares a global variable with its type, mutability and
// constant initializer expression.
type Global struct {
	Start   int
	Type    ValType
	Mutable bool
	Init    []Instruction
}

// Export names a function for external callers.
type Export struct {
	Start   int
	Name    string
	FuncIdx uint32
}
