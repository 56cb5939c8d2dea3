package validate

import "github.com/wippyai/wat-validator/ast"

// anyType marks an operand manufactured under unreachable polymorphism.
// It satisfies any expected type and never survives past its frame.
const anyType ast.ValType = 0

// ctrlFrame is the bookkeeping for one enclosing block, loop or if arm.
type ctrlFrame struct {
	// result is what falls through the frame's end.
	result *ast.ValType
	// label is what a branch targeting this frame must provide. A loop's
	// label is empty regardless of its result: branching to a loop jumps
	// to its start.
	label *ast.ValType
	// base is the operand stack height at frame entry. Pops inside the
	// frame never go below it.
	base int
	// unreachable marks the rest of the frame as dead code. Pops then
	// manufacture any required type on demand and the fall-through
	// result rule is vacuous.
	unreachable bool
}

// funcBodyChecker simulates the type effects of one function body without
// executing it: an operand type stack plus a control frame stack, walked
// instruction by instruction.
type funcBodyChecker struct {
	ctx    *Context
	locals []ast.ValType
	ret    *ast.ValType
	stack  []ast.ValType
	frames []ctrlFrame
}

// validateFuncBody type-checks one function body against its optional
// result type. offset anchors errors raised at the implicit outer frame.
func (c *Context) validateFuncBody(expr []ast.Instruction, locals []ast.ValType, ret *ast.ValType, offset int) error {
	ch := &funcBodyChecker{ctx: c, locals: locals, ret: ret}
	ch.frames = append(ch.frames, ctrlFrame{result: ret, label: ret})

	if err := ch.checkSeq(expr); err != nil {
		return err
	}

	// At function end the stack must hold exactly the declared result.
	if ch.frames[0].unreachable {
		return nil
	}
	ok := (ret == nil && len(ch.stack) == 0) ||
		(ret != nil && len(ch.stack) == 1 && ch.stack[0] == *ret)
	if !ok {
		want := "()"
		if ret != nil {
			want = typesString([]ast.ValType{*ret})
		}
		return c.fail(errReturnTypeMismatch(want, typesString(ch.stack), offset))
	}
	return nil
}

func (ch *funcBodyChecker) checkSeq(seq []ast.Instruction) error {
	for i := range seq {
		if err := ch.checkInsn(&seq[i]); err != nil {
			return err
		}
	}
	return nil
}

func (ch *funcBodyChecker) cur() *ctrlFrame {
	return &ch.frames[len(ch.frames)-1]
}

func (ch *funcBodyChecker) push(t ast.ValType) {
	ch.stack = append(ch.stack, t)
}

// popAny pops one operand of any type. In an unreachable frame the pop is
// always satisfied: a present entry is discarded unexamined, an absent one
// is manufactured.
func (ch *funcBodyChecker) popAny(op string, offset int) (ast.ValType, error) {
	f := ch.cur()
	if len(ch.stack) <= f.base {
		if f.unreachable {
			return anyType, nil
		}
		return 0, ch.ctx.fail(errStackUnderflow(op, 1, 0, offset))
	}
	if f.unreachable {
		ch.stack = ch.stack[:len(ch.stack)-1]
		return anyType, nil
	}
	t := ch.stack[len(ch.stack)-1]
	ch.stack = ch.stack[:len(ch.stack)-1]
	return t, nil
}

func (ch *funcBodyChecker) popExpect(op string, want ast.ValType, offset int) error {
	got, err := ch.popAny(op, offset)
	if err != nil {
		return err
	}
	if got != anyType && got != want {
		return ch.ctx.fail(errTypeMismatch(op, want.String(), got.String(), offset))
	}
	return nil
}

func (ch *funcBodyChecker) pushFrame(result, label *ast.ValType) {
	ch.frames = append(ch.frames, ctrlFrame{result: result, label: label, base: len(ch.stack)})
}

// exitFrame applies the fall-through rule: unless the frame went
// unreachable, the stack above its base must hold exactly the frame's
// result. The frame is then popped and its result becomes an operand of
// the enclosing frame.
func (ch *funcBodyChecker) exitFrame(op string, offset int) error {
	f := ch.cur()
	if !f.unreachable {
		got := ch.stack[f.base:]
		ok := (f.result == nil && len(got) == 0) ||
			(f.result != nil && len(got) == 1 && got[0] == *f.result)
		if !ok {
			want := "()"
			if f.result != nil {
				want = typesString([]ast.ValType{*f.result})
			}
			return ch.ctx.fail(errTypeMismatch(op, want, typesString(got), offset))
		}
	}
	result := f.result
	ch.stack = ch.stack[:f.base]
	ch.frames = ch.frames[:len(ch.frames)-1]
	if result != nil {
		ch.push(*result)
	}
	return nil
}

// setUnreachable switches the current frame into polymorphic mode,
// discarding its dead operands.
func (ch *funcBodyChecker) setUnreachable() {
	f := ch.cur()
	ch.stack = ch.stack[:f.base]
	f.unreachable = true
}

func (ch *funcBodyChecker) frameAt(depth uint32, offset int) (*ctrlFrame, error) {
	if int(depth) >= len(ch.frames) {
		return nil, ch.ctx.fail(errLabelOutOfRange(depth, len(ch.frames), offset))
	}
	return &ch.frames[len(ch.frames)-1-int(depth)], nil
}

// Typing helper shapes shared by the numeric opcode groups.

func (ch *funcBodyChecker) unop(in *ast.Instruction, t ast.ValType) error {
	if err := ch.popExpect(in.Op.String(), t, in.Start); err != nil {
		return err
	}
	ch.push(t)
	return nil
}

func (ch *funcBodyChecker) binop(in *ast.Instruction, t ast.ValType) error {
	op := in.Op.String()
	if err := ch.popExpect(op, t, in.Start); err != nil {
		return err
	}
	if err := ch.popExpect(op, t, in.Start); err != nil {
		return err
	}
	ch.push(t)
	return nil
}

func (ch *funcBodyChecker) testop(in *ast.Instruction, t ast.ValType) error {
	if err := ch.popExpect(in.Op.String(), t, in.Start); err != nil {
		return err
	}
	ch.push(ast.I32)
	return nil
}

func (ch *funcBodyChecker) relop(in *ast.Instruction, t ast.ValType) error {
	op := in.Op.String()
	if err := ch.popExpect(op, t, in.Start); err != nil {
		return err
	}
	if err := ch.popExpect(op, t, in.Start); err != nil {
		return err
	}
	ch.push(ast.I32)
	return nil
}

func (ch *funcBodyChecker) cvtop(in *ast.Instruction, from, to ast.ValType) error {
	if err := ch.popExpect(in.Op.String(), from, in.Start); err != nil {
		return err
	}
	ch.push(to)
	return nil
}

func (ch *funcBodyChecker) load(in *ast.Instruction, t ast.ValType) error {
	if err := ch.popExpect(in.Op.String(), ast.I32, in.Start); err != nil {
		return err
	}
	ch.push(t)
	return nil
}

func (ch *funcBodyChecker) store(in *ast.Instruction, t ast.ValType) error {
	op := in.Op.String()
	if err := ch.popExpect(op, t, in.Start); err != nil {
		return err
	}
	return ch.popExpect(op, ast.I32, in.Start)
}

// applyType pops a signature's parameters (top of stack is the last
// parameter) and pushes its results.
func (ch *funcBodyChecker) applyType(in *ast.Instruction, ft *ast.FuncType) error {
	op := in.Op.String()
	for i := len(ft.Params) - 1; i >= 0; i-- {
		if err := ch.popExpect(op, ft.Params[i], in.Start); err != nil {
			return err
		}
	}
	for _, r := range ft.Results {
		ch.push(r)
	}
	return nil
}

// checkBlock validates a nested block or loop body in its own frame.
func (ch *funcBodyChecker) checkBlock(in *ast.Instruction, result *ast.ValType, body []ast.Instruction, isLoop bool) error {
	label := result
	if isLoop {
		label = nil
	}
	ch.pushFrame(result, label)
	if err := ch.checkSeq(body); err != nil {
		return err
	}
	return ch.exitFrame(in.Op.String(), in.Start)
}

// checkInsn dispatches on the opcode. Every opcode in ast has an arm.
func (ch *funcBodyChecker) checkInsn(in *ast.Instruction) error {
	op := in.Op.String()

	switch in.Op {
	// Control
	case ast.OpUnreachable:
		ch.setUnreachable()
		return nil
	case ast.OpNop:
		return nil

	case ast.OpBlock:
		imm := in.Imm.(ast.BlockImm)
		return ch.checkBlock(in, imm.Result, imm.Body, false)
	case ast.OpLoop:
		imm := in.Imm.(ast.BlockImm)
		return ch.checkBlock(in, imm.Result, imm.Body, true)

	case ast.OpIf:
		imm := in.Imm.(ast.IfImm)
		if err := ch.popExpect(op, ast.I32, in.Start); err != nil {
			return err
		}
		// Both arms check independently against the shared block type.
		ch.pushFrame(imm.Result, imm.Result)
		if err := ch.checkSeq(imm.Then); err != nil {
			return err
		}
		if err := ch.exitFrame(op, in.Start); err != nil {
			return err
		}
		if imm.Result != nil || imm.Else != nil {
			// Without an else arm an empty frame stands in for it, so a
			// result-carrying if still demands both arms produce it.
			if imm.Result != nil {
				// Re-consume the then-arm result for the else check.
				ch.stack = ch.stack[:len(ch.stack)-1]
			}
			ch.pushFrame(imm.Result, imm.Result)
			if err := ch.checkSeq(imm.Else); err != nil {
				return err
			}
			return ch.exitFrame(op, in.Start)
		}
		return nil

	case ast.OpBr:
		imm := in.Imm.(ast.BrImm)
		target, err := ch.frameAt(imm.Depth, in.Start)
		if err != nil {
			return err
		}
		if target.label != nil {
			if err := ch.popExpect(op, *target.label, in.Start); err != nil {
				return err
			}
		}
		ch.setUnreachable()
		return nil

	case ast.OpBrIf:
		imm := in.Imm.(ast.BrImm)
		target, err := ch.frameAt(imm.Depth, in.Start)
		if err != nil {
			return err
		}
		if err := ch.popExpect(op, ast.I32, in.Start); err != nil {
			return err
		}
		// Conditional: the branch operands stay for the fall-through.
		if target.label != nil {
			if err := ch.popExpect(op, *target.label, in.Start); err != nil {
				return err
			}
			ch.push(*target.label)
		}
		return nil

	case ast.OpBrTable:
		imm := in.Imm.(ast.BrTableImm)
		def, err := ch.frameAt(imm.Default, in.Start)
		if err != nil {
			return err
		}
		want := def.label
		for _, depth := range imm.Labels {
			target, err := ch.frameAt(depth, in.Start)
			if err != nil {
				return err
			}
			if !sameLabel(want, target.label) {
				return ch.ctx.fail(errTypeMismatch(op, labelString(want), labelString(target.label), in.Start))
			}
		}
		if err := ch.popExpect(op, ast.I32, in.Start); err != nil {
			return err
		}
		if want != nil {
			if err := ch.popExpect(op, *want, in.Start); err != nil {
				return err
			}
		}
		ch.setUnreachable()
		return nil

	case ast.OpReturn:
		if ch.ret != nil {
			if err := ch.popExpect(op, *ch.ret, in.Start); err != nil {
				return err
			}
		}
		ch.setUnreachable()
		return nil

	case ast.OpCall:
		imm := in.Imm.(ast.CallImm)
		fn, err := ch.ctx.funcFromIdx(imm.FuncIdx, in.Start)
		if err != nil {
			return err
		}
		ft, err := ch.ctx.typeFromIdx(fn.TypeIdx, in.Start)
		if err != nil {
			return err
		}
		return ch.applyType(in, ft)

	case ast.OpCallIndirect:
		imm := in.Imm.(ast.CallIndirectImm)
		// The callee comes out of table 0, which must be declared.
		if _, err := ch.ctx.tableFromIdx(0, in.Start); err != nil {
			return err
		}
		ft, err := ch.ctx.typeFromIdx(imm.TypeIdx, in.Start)
		if err != nil {
			return err
		}
		if err := ch.popExpect(op, ast.I32, in.Start); err != nil {
			return err
		}
		return ch.applyType(in, ft)

	// Parametric
	case ast.OpDrop:
		_, err := ch.popAny(op, in.Start)
		return err

	case ast.OpSelect:
		if err := ch.popExpect(op, ast.I32, in.Start); err != nil {
			return err
		}
		t1, err := ch.popAny(op, in.Start)
		if err != nil {
			return err
		}
		t2, err := ch.popAny(op, in.Start)
		if err != nil {
			return err
		}
		if t1 != anyType && t2 != anyType && t1 != t2 {
			return ch.ctx.fail(errTypeMismatch(op, t2.String(), t1.String(), in.Start))
		}
		if t1 != anyType {
			ch.push(t1)
		} else if t2 != anyType {
			ch.push(t2)
		} else {
			ch.push(anyType)
		}
		return nil

	// Variables
	case ast.OpLocalGet:
		imm := in.Imm.(ast.LocalImm)
		t, err := resolveIdx(ch.ctx, ch.locals, imm.Idx, "local variable", in.Start)
		if err != nil {
			return err
		}
		ch.push(*t)
		return nil

	case ast.OpLocalSet:
		imm := in.Imm.(ast.LocalImm)
		t, err := resolveIdx(ch.ctx, ch.locals, imm.Idx, "local variable", in.Start)
		if err != nil {
			return err
		}
		return ch.popExpect(op, *t, in.Start)

	case ast.OpLocalTee:
		imm := in.Imm.(ast.LocalImm)
		t, err := resolveIdx(ch.ctx, ch.locals, imm.Idx, "local variable", in.Start)
		if err != nil {
			return err
		}
		if err := ch.popExpect(op, *t, in.Start); err != nil {
			return err
		}
		ch.push(*t)
		return nil

	case ast.OpGlobalGet:
		imm := in.Imm.(ast.GlobalImm)
		g, err := ch.ctx.globalFromIdx(imm.Idx, in.Start)
		if err != nil {
			return err
		}
		ch.push(g.Type)
		return nil

	case ast.OpGlobalSet:
		imm := in.Imm.(ast.GlobalImm)
		g, err := ch.ctx.globalFromIdx(imm.Idx, in.Start)
		if err != nil {
			return err
		}
		if !g.Mutable {
			return ch.ctx.fail(errSetImmutableGlobal(imm.Idx, in.Start))
		}
		return ch.popExpect(op, g.Type, in.Start)

	// Memory
	case ast.OpI32Load, ast.OpI32Load8S, ast.OpI32Load8U, ast.OpI32Load16S, ast.OpI32Load16U:
		return ch.load(in, ast.I32)
	case ast.OpI64Load, ast.OpI64Load8S, ast.OpI64Load8U, ast.OpI64Load16S,
		ast.OpI64Load16U, ast.OpI64Load32S, ast.OpI64Load32U:
		return ch.load(in, ast.I64)
	case ast.OpF32Load:
		return ch.load(in, ast.F32)
	case ast.OpF64Load:
		return ch.load(in, ast.F64)

	case ast.OpI32Store, ast.OpI32Store8, ast.OpI32Store16:
		return ch.store(in, ast.I32)
	case ast.OpI64Store, ast.OpI64Store8, ast.OpI64Store16, ast.OpI64Store32:
		return ch.store(in, ast.I64)
	case ast.OpF32Store:
		return ch.store(in, ast.F32)
	case ast.OpF64Store:
		return ch.store(in, ast.F64)

	case ast.OpMemorySize:
		ch.push(ast.I32)
		return nil
	case ast.OpMemoryGrow:
		return ch.unop(in, ast.I32)

	// Constants
	case ast.OpI32Const:
		ch.push(ast.I32)
		return nil
	case ast.OpI64Const:
		ch.push(ast.I64)
		return nil
	case ast.OpF32Const:
		ch.push(ast.F32)
		return nil
	case ast.OpF64Const:
		ch.push(ast.F64)
		return nil

	// Tests and comparisons
	case ast.OpI32Eqz:
		return ch.testop(in, ast.I32)
	case ast.OpI64Eqz:
		return ch.testop(in, ast.I64)
	case ast.OpI32Eq, ast.OpI32Ne, ast.OpI32LtS, ast.OpI32LtU, ast.OpI32GtS,
		ast.OpI32GtU, ast.OpI32LeS, ast.OpI32LeU, ast.OpI32GeS, ast.OpI32GeU:
		return ch.relop(in, ast.I32)
	case ast.OpI64Eq, ast.OpI64Ne, ast.OpI64LtS, ast.OpI64LtU, ast.OpI64GtS,
		ast.OpI64GtU, ast.OpI64LeS, ast.OpI64LeU, ast.OpI64GeS, ast.OpI64GeU:
		return ch.relop(in, ast.I64)
	case ast.OpF32Eq, ast.OpF32Ne, ast.OpF32Lt, ast.OpF32Gt, ast.OpF32Le, ast.OpF32Ge:
		return ch.relop(in, ast.F32)
	case ast.OpF64Eq, ast.OpF64Ne, ast.OpF64Lt, ast.OpF64Gt, ast.OpF64Le, ast.OpF64Ge:
		return ch.relop(in, ast.F64)

	// Integer numeric
	case ast.OpI32Clz, ast.OpI32Ctz, ast.OpI32Popcnt:
		return ch.unop(in, ast.I32)
	case ast.OpI32Add, ast.OpI32Sub, ast.OpI32Mul, ast.OpI32DivS, ast.OpI32DivU,
		ast.OpI32RemS, ast.OpI32RemU, ast.OpI32And, ast.OpI32Or, ast.OpI32Xor,
		ast.OpI32Shl, ast.OpI32ShrS, ast.OpI32ShrU, ast.OpI32Rotl, ast.OpI32Rotr:
		return ch.binop(in, ast.I32)
	case ast.OpI64Clz, ast.OpI64Ctz, ast.OpI64Popcnt:
		return ch.unop(in, ast.I64)
	case ast.OpI64Add, ast.OpI64Sub, ast.OpI64Mul, ast.OpI64DivS, ast.OpI64DivU,
		ast.OpI64RemS, ast.OpI64RemU, ast.OpI64And, ast.OpI64Or, ast.OpI64Xor,
		ast.OpI64Shl, ast.OpI64ShrS, ast.OpI64ShrU, ast.OpI64Rotl, ast.OpI64Rotr:
		return ch.binop(in, ast.I64)

	// Float numeric
	case ast.OpF32Abs, ast.OpF32Neg, ast.OpF32Ceil, ast.OpF32Floor, ast.OpF32Trunc,
		ast.OpF32Nearest, ast.OpF32Sqrt:
		return ch.unop(in, ast.F32)
	case ast.OpF32Add, ast.OpF32Sub, ast.OpF32Mul, ast.OpF32Div, ast.OpF32Min,
		ast.OpF32Max, ast.OpF32Copysign:
		return ch.binop(in, ast.F32)
	case ast.OpF64Abs, ast.OpF64Neg, ast.OpF64Ceil, ast.OpF64Floor, ast.OpF64Trunc,
		ast.OpF64Nearest, ast.OpF64Sqrt:
		return ch.unop(in, ast.F64)
	case ast.OpF64Add, ast.OpF64Sub, ast.OpF64Mul, ast.OpF64Div, ast.OpF64Min,
		ast.OpF64Max, ast.OpF64Copysign:
		return ch.binop(in, ast.F64)

	// Conversions
	case ast.OpI32WrapI64:
		return ch.cvtop(in, ast.I64, ast.I32)
	case ast.OpI32TruncF32S, ast.OpI32TruncF32U, ast.OpI32ReinterpretF32:
		return ch.cvtop(in, ast.F32, ast.I32)
	case ast.OpI32TruncF64S, ast.OpI32TruncF64U:
		return ch.cvtop(in, ast.F64, ast.I32)
	case ast.OpI64ExtendI32S, ast.OpI64ExtendI32U:
		return ch.cvtop(in, ast.I32, ast.I64)
	case ast.OpI64TruncF32S, ast.OpI64TruncF32U:
		return ch.cvtop(in, ast.F32, ast.I64)
	case ast.OpI64TruncF64S, ast.OpI64TruncF64U, ast.OpI64ReinterpretF64:
		return ch.cvtop(in, ast.F64, ast.I64)
	case ast.OpF32ConvertI32S, ast.OpF32ConvertI32U, ast.OpF32ReinterpretI32:
		return ch.cvtop(in, ast.I32, ast.F32)
	case ast.OpF32ConvertI64S, ast.OpF32ConvertI64U:
		return ch.cvtop(in, ast.I64, ast.F32)
	case ast.OpF32DemoteF64:
		return ch.cvtop(in, ast.F64, ast.F32)
	case ast.OpF64ConvertI32S, ast.OpF64ConvertI32U:
		return ch.cvtop(in, ast.I32, ast.F64)
	case ast.OpF64ConvertI64S, ast.OpF64ConvertI64U, ast.OpF64ReinterpretI64:
		return ch.cvtop(in, ast.I64, ast.F64)
	case ast.OpF64PromoteF32:
		return ch.cvtop(in, ast.F32, ast.F64)

	default:
		panic("unhandled opcode " + op)
	}
}

func sameLabel(a, b *ast.ValType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func labelString(l *ast.ValType) string {
	if l == nil {
		return "()"
	}
	return typesString([]ast.ValType{*l})
}
