package opcode

import "github.com/wippyai/wat-validator/ast"

// ImmKind tells the parser what immediate a plain instruction takes.
type ImmKind int

const (
	ImmNone    ImmKind = iota
	ImmLabel           // br, br_if
	ImmBrTable         // br_table
	ImmFunc            // call
	ImmTypeUse         // call_indirect
	ImmLocal           // local.get, local.set, local.tee
	ImmGlobal          // global.get, global.set
	ImmMemarg          // loads and stores
	ImmI32             // i32.const
	ImmI64             // i64.const
	ImmF32             // f32.const
	ImmF64             // f64.const
)

type Info struct {
	Op           ast.Opcode
	Imm          ImmKind
	NaturalAlign uint32 // log2 of the access width, memarg opcodes only
}

// Lookup resolves a plain-instruction mnemonic. Structured mnemonics
// (block, loop, if) are not in the table; the parser handles them itself.
func Lookup(name string) (Info, bool) {
	info, ok := table[name]
	return info, ok
}

var table = buildTable()

func buildTable() map[string]Info {
	t := make(map[string]Info)
	for op, name := range ast.Mnemonics() {
		switch op {
		case ast.OpBlock, ast.OpLoop, ast.OpIf:
			continue
		}
		t[name] = Info{Op: op, Imm: immKind(op), NaturalAlign: naturalAlign(op)}
	}
	return t
}

func immKind(op ast.Opcode) ImmKind {
	switch op {
	case ast.OpBr, ast.OpBrIf:
		return ImmLabel
	case ast.OpBrTable:
		return ImmBrTable
	case ast.OpCall:
		return ImmFunc
	case ast.OpCallIndirect:
		return ImmTypeUse
	case ast.OpLocalGet, ast.OpLocalSet, ast.OpLocalTee:
		return ImmLocal
	case ast.OpGlobalGet, ast.OpGlobalSet:
		return ImmGlobal
	case ast.OpI32Const:
		return ImmI32
	case ast.OpI64Const:
		return ImmI64
	case ast.OpF32Const:
		return ImmF32
	case ast.OpF64Const:
		return ImmF64
	}
	if op >= ast.OpI32Load && op <= ast.OpI64Store32 {
		return ImmMemarg
	}
	return ImmNone
}

func naturalAlign(op ast.Opcode) uint32 {
	switch op {
	case ast.OpI32Load8S, ast.OpI32Load8U, ast.OpI64Load8S, ast.OpI64Load8U,
		ast.OpI32Store8, ast.OpI64Store8:
		return 0
	case ast.OpI32Load16S, ast.OpI32Load16U, ast.OpI64Load16S, ast.OpI64Load16U,
		ast.OpI32Store16, ast.OpI64Store16:
		return 1
	case ast.OpI32Load, ast.OpF32Load, ast.OpI64Load32S, ast.OpI64Load32U,
		ast.OpI32Store, ast.OpF32Store, ast.OpI64Store32:
		return 2
	case ast.OpI64Load, ast.OpF64Load, ast.OpI64Store, ast.OpF64Store:
		return 3
	}
	return 0
}
