package validate_test

import (
	"strings"
	"testing"

	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/validate"
)

func retType(t ast.ValType) *ast.ValType {
	return &t
}

// singleFunc builds a module with one function whose type is Types[0].
// Extra locals follow the parameter locals.
func singleFunc(ft ast.FuncType, locals []ast.ValType, body ...ast.Instruction) *ast.Module {
	all := append(append([]ast.ValType(nil), ft.Params...), locals...)
	return &ast.Module{
		Types: []ast.FuncType{ft},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{Locals: all, Expr: body}},
		},
	}
}

func wantKind(t *testing.T, m *ast.Module, kind validate.Kind) error {
	t.Helper()
	err := validate.Validate(m, "")
	if err == nil {
		t.Fatalf("expected %v error", kind)
	}
	if got := kindOf(t, err); got != kind {
		t.Fatalf("kind = %v, want %v (%v)", got, kind, err)
	}
	return err
}

func wantValid(t *testing.T, m *ast.Module) {
	t.Helper()
	if err := validate.Validate(m, ""); err != nil {
		t.Fatalf("expected valid body: %v", err)
	}
}

func TestBody_Arithmetic(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 2}},
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 3}},
		ast.Instruction{Op: ast.OpI32Add},
	))
}

func TestBody_BinopTypeMismatch(t *testing.T) {
	err := wantKind(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpF64Const, Imm: ast.F64Imm{Value: 1.5}},
		ast.Instruction{Op: ast.OpI32Add, Start: 40},
	), validate.KindTypeMismatch)
	if !strings.Contains(err.Error(), "i32.add") {
		t.Errorf("message %q does not name the instruction", err.Error())
	}
}

func TestBody_StackUnderflow(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpI32Add},
	), validate.KindStackUnderflow)
}

func TestBody_ReturnTypeMismatch(t *testing.T) {
	err := wantKind(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpI64Const, Imm: ast.I64Imm{Value: 1}},
	), validate.KindReturnTypeMismatch)
	if !strings.Contains(err.Error(), "(i64)") || !strings.Contains(err.Error(), "(i32)") {
		t.Errorf("message %q does not show both types", err.Error())
	}
}

func TestBody_LeftoverOperand(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpI32Const},
	), validate.KindReturnTypeMismatch)
}

// Dead code is polymorphic: after unreachable, any operand shape
// type-checks through to the end of the frame.
func TestBody_UnreachablePolymorphism(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpUnreachable},
		ast.Instruction{Op: ast.OpF64Const, Imm: ast.F64Imm{Value: 1.5}},
	))

	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpUnreachable},
		ast.Instruction{Op: ast.OpI32Add},
	))
}

func TestBody_CodeAfterReturn(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpReturn},
		ast.Instruction{Op: ast.OpF64Const, Imm: ast.F64Imm{Value: 1.5}},
	))
}

func TestBody_ReturnWrongType(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpF32Const},
		ast.Instruction{Op: ast.OpReturn},
	), validate.KindTypeMismatch)
}

func TestBody_BlockResult(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpBlock, Imm: ast.BlockImm{
			Result: retType(ast.I32),
			Body: []ast.Instruction{
				{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}},
			},
		}},
	))
}

func TestBody_BlockFallThroughMismatch(t *testing.T) {
	err := wantKind(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpBlock, Imm: ast.BlockImm{
			Result: retType(ast.I32),
			Body: []ast.Instruction{
				{Op: ast.OpF32Const},
			},
		}},
	), validate.KindTypeMismatch)
	if !strings.Contains(err.Error(), "block") {
		t.Errorf("message %q does not name the block", err.Error())
	}
}

func TestBody_BranchDepthOutOfRange(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpBr, Imm: ast.BrImm{Depth: 1}},
	), validate.KindLabelOutOfRange)
}

func TestBody_BranchNeedsLabelOperand(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpBlock, Imm: ast.BlockImm{
			Result: retType(ast.I32),
			Body: []ast.Instruction{
				{Op: ast.OpBr, Imm: ast.BrImm{Depth: 0}},
			},
		}},
	), validate.KindStackUnderflow)
}

// Branching to a loop jumps to its start, so the branch carries no
// operand even when the loop declares a result.
func TestBody_LoopLabelIsEmpty(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpLoop, Imm: ast.BlockImm{
			Result: retType(ast.I32),
			Body: []ast.Instruction{
				{Op: ast.OpBr, Imm: ast.BrImm{Depth: 0}},
			},
		}},
	))
}

func TestBody_BrIf(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpBlock, Imm: ast.BlockImm{
			Result: retType(ast.I32),
			Body: []ast.Instruction{
				{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 7}},
				{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}},
				{Op: ast.OpBrIf, Imm: ast.BrImm{Depth: 0}},
			},
		}},
	))
}

func TestBody_BrTableLabelMismatch(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpBlock, Imm: ast.BlockImm{
			Result: retType(ast.I32),
			Body: []ast.Instruction{
				{Op: ast.OpBlock, Imm: ast.BlockImm{
					Body: []ast.Instruction{
						{Op: ast.OpI32Const},
						{Op: ast.OpBrTable, Imm: ast.BrTableImm{Labels: []uint32{1}, Default: 0}},
					},
				}},
			},
		}},
	), validate.KindTypeMismatch)
}

func TestBody_Call(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{
			{Params: []ast.ValType{ast.I32}, Results: []ast.ValType{ast.I32}},
		},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{
				Locals: []ast.ValType{ast.I32},
				Expr: []ast.Instruction{
					{Op: ast.OpLocalGet, Imm: ast.LocalImm{Idx: 0}},
					{Op: ast.OpCall, Imm: ast.CallImm{FuncIdx: 0}},
				},
			}},
		},
	}
	wantValid(t, m)
}

func TestBody_CallArgMismatch(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{
			{Params: []ast.ValType{ast.I32}},
		},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{
				Locals: []ast.ValType{ast.I32},
				Expr: []ast.Instruction{
					{Op: ast.OpF64Const, Imm: ast.F64Imm{Value: 1}},
					{Op: ast.OpCall, Imm: ast.CallImm{FuncIdx: 0}},
				},
			}},
		},
	}
	wantKind(t, m, validate.KindTypeMismatch)
}

func TestBody_CallIndexOutOfBounds(t *testing.T) {
	err := wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpCall, Imm: ast.CallImm{FuncIdx: 7}},
	), validate.KindIndexOutOfBounds)
	if !strings.Contains(err.Error(), "function index 7") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBody_CallIndirect(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{
			{Params: []ast.ValType{ast.I32}, Results: []ast.ValType{ast.I32}},
		},
		Tables: []ast.Table{{Min: 1}},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{
				Locals: []ast.ValType{ast.I32},
				Expr: []ast.Instruction{
					{Op: ast.OpLocalGet, Imm: ast.LocalImm{Idx: 0}},
					{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 0}},
					{Op: ast.OpCallIndirect, Imm: ast.CallIndirectImm{TypeIdx: 0}},
				},
			}},
		},
	}
	wantValid(t, m)
}

func TestBody_CallIndirectWithoutTable(t *testing.T) {
	err := wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpCallIndirect, Imm: ast.CallIndirectImm{TypeIdx: 0}},
	), validate.KindIndexOutOfBounds)
	if !strings.Contains(err.Error(), "table index 0") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBody_LocalIndexOutOfBounds(t *testing.T) {
	err := wantKind(t, singleFunc(
		ast.FuncType{}, []ast.ValType{ast.I32},
		ast.Instruction{Op: ast.OpLocalGet, Imm: ast.LocalImm{Idx: 5}},
	), validate.KindIndexOutOfBounds)
	if !strings.Contains(err.Error(), "local variable index 5") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBody_LocalSetMismatch(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, []ast.ValType{ast.F32},
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpLocalSet, Imm: ast.LocalImm{Idx: 0}},
	), validate.KindTypeMismatch)
}

func TestBody_LocalTee(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, []ast.ValType{ast.I32},
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}},
		ast.Instruction{Op: ast.OpLocalTee, Imm: ast.LocalImm{Idx: 0}},
	))
}

func TestBody_GlobalGet(t *testing.T) {
	m := singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.F64}}, nil,
		ast.Instruction{Op: ast.OpGlobalGet, Imm: ast.GlobalImm{Idx: 0}},
	)
	m.Globals = []ast.Global{{Type: ast.F64}}
	wantValid(t, m)
}

func TestBody_SetImmutableGlobal(t *testing.T) {
	m := singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpGlobalSet, Imm: ast.GlobalImm{Idx: 0}},
	)
	m.Globals = []ast.Global{{Type: ast.I32}}
	err := wantKind(t, m, validate.KindSetImmutableGlobal)
	if !strings.Contains(err.Error(), "immutable") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBody_SetMutableGlobal(t *testing.T) {
	m := singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpGlobalSet, Imm: ast.GlobalImm{Idx: 0}},
	)
	m.Globals = []ast.Global{{Type: ast.I32, Mutable: true}}
	wantValid(t, m)
}

func TestBody_GlobalIndexOutOfBounds(t *testing.T) {
	err := wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpGlobalGet, Imm: ast.GlobalImm{Idx: 2}},
	), validate.KindIndexOutOfBounds)
	if !strings.Contains(err.Error(), "global variable index 2") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBody_IfBothArms(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}},
		ast.Instruction{Op: ast.OpIf, Imm: ast.IfImm{
			Result: retType(ast.I32),
			Then:   []ast.Instruction{{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 2}}},
			Else:   []ast.Instruction{{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 3}}},
		}},
	))
}

// An if with a result but no else arm cannot produce the result on the
// false path.
func TestBody_IfMissingElseWithResult(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}},
		ast.Instruction{Op: ast.OpIf, Imm: ast.IfImm{
			Result: retType(ast.I32),
			Then:   []ast.Instruction{{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 2}}},
		}},
	), validate.KindTypeMismatch)
}

func TestBody_IfConditionNotI32(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpF64Const, Imm: ast.F64Imm{Value: 1}},
		ast.Instruction{Op: ast.OpIf, Imm: ast.IfImm{}},
	), validate.KindTypeMismatch)
}

func TestBody_Select(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I64}}, nil,
		ast.Instruction{Op: ast.OpI64Const, Imm: ast.I64Imm{Value: 1}},
		ast.Instruction{Op: ast.OpI64Const, Imm: ast.I64Imm{Value: 2}},
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 0}},
		ast.Instruction{Op: ast.OpSelect},
	))
}

func TestBody_SelectArmMismatch(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpF64Const, Imm: ast.F64Imm{Value: 1}},
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpSelect},
	), validate.KindTypeMismatch)
}

func TestBody_DropOnEmptyStack(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpDrop},
	), validate.KindStackUnderflow)
}

func TestBody_MemoryOps(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 8}},
		ast.Instruction{Op: ast.OpF32Const, Imm: ast.F32Imm{Value: 1}},
		ast.Instruction{Op: ast.OpF32Store, Imm: ast.MemImm{Align: 2}},
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 8}},
		ast.Instruction{Op: ast.OpI32Load, Imm: ast.MemImm{Align: 2}},
	))
}

func TestBody_StoreValueMismatch(t *testing.T) {
	wantKind(t, singleFunc(
		ast.FuncType{}, nil,
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpI32Const},
		ast.Instruction{Op: ast.OpF32Store, Imm: ast.MemImm{Align: 2}},
	), validate.KindTypeMismatch)
}

func TestBody_Conversions(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.F64}}, nil,
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 3}},
		ast.Instruction{Op: ast.OpI64ExtendI32S},
		ast.Instruction{Op: ast.OpF64ConvertI64S},
	))
}

func TestBody_Reinterpret(t *testing.T) {
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.F64}}, nil,
		ast.Instruction{Op: ast.OpI64Const, Imm: ast.I64Imm{Value: 1}},
		ast.Instruction{Op: ast.OpF64ReinterpretI64},
	))
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I64}}, nil,
		ast.Instruction{Op: ast.OpF64Const, Imm: ast.F64Imm{Value: 1.5}},
		ast.Instruction{Op: ast.OpI64ReinterpretF64},
	))
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.F32}}, nil,
		ast.Instruction{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}},
		ast.Instruction{Op: ast.OpF32ReinterpretI32},
	))
	wantValid(t, singleFunc(
		ast.FuncType{Results: []ast.ValType{ast.I32}}, nil,
		ast.Instruction{Op: ast.OpF32Const, Imm: ast.F32Imm{Value: 1}},
		ast.Instruction{Op: ast.OpI32ReinterpretF32},
	))
}

func immFor(op ast.Opcode) any {
	switch op {
	case ast.OpBlock, ast.OpLoop:
		return ast.BlockImm{}
	case ast.OpIf:
		return ast.IfImm{}
	case ast.OpBr, ast.OpBrIf:
		return ast.BrImm{}
	case ast.OpBrTable:
		return ast.BrTableImm{}
	case ast.OpCall:
		return ast.CallImm{}
	case ast.OpCallIndirect:
		return ast.CallIndirectImm{}
	case ast.OpLocalGet, ast.OpLocalSet, ast.OpLocalTee:
		return ast.LocalImm{}
	case ast.OpGlobalGet, ast.OpGlobalSet:
		return ast.GlobalImm{}
	}
	return nil
}

// Every opcode must have a typing arm. Dead code is polymorphic, so any
// opcode placed after unreachable checks without a type error; an opcode
// the checker does not know would panic instead.
func TestBody_EveryOpcodeChecks(t *testing.T) {
	for op, name := range ast.Mnemonics() {
		t.Run(name, func(t *testing.T) {
			m := singleFunc(
				ast.FuncType{}, []ast.ValType{ast.I32},
				ast.Instruction{Op: ast.OpUnreachable},
				ast.Instruction{Op: op, Imm: immFor(op)},
			)
			m.Globals = []ast.Global{{Type: ast.I32, Mutable: true}}
			m.Tables = []ast.Table{{Min: 1}}
			if err := validate.Validate(m, ""); err != nil {
				t.Errorf("%s failed in dead code: %v", name, err)
			}
		})
	}
}
