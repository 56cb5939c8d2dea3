// Package encode lowers ast module trees to the WebAssembly binary
// format. Structured instructions are flattened with explicit end and
// else opcodes. Encoding assumes a well-formed tree; run the validate
// package first to get proper diagnostics instead of encoder errors.
package encode

import (
	"fmt"

	"github.com/wippyai/wat-validator/ast"
)

const (
	sectionType   = 0x01
	sectionImport = 0x02
	sectionFunc   = 0x03
	sectionTable  = 0x04
	sectionMemory = 0x05
	sectionGlobal = 0x06
	sectionExport = 0x07
	sectionStart  = 0x08
	sectionCode   = 0x0A

	funcTypeMarker = 0x60
	funcrefType    = 0x70
	emptyBlockType = 0x40
	exportKindFunc = 0x00

	opElse = 0x05
	opEnd  = 0x0B
)

// Encode writes a module tree as a binary module. The function index
// space requires all imported functions to precede functions with
// bodies; a mixed order cannot be represented and returns an error.
func Encode(m *ast.Module) ([]byte, error) {
	imports, bodies, err := splitFuncs(m)
	if err != nil {
		return nil, err
	}

	buf := &buffer{}
	buf.write([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}) // magic + version

	if len(m.Types) > 0 {
		encodeTypeSection(buf, m)
	}
	if len(imports) > 0 {
		encodeImportSection(buf, imports)
	}
	if len(bodies) > 0 {
		encodeFuncSection(buf, bodies)
	}
	if len(m.Tables) > 0 {
		encodeTableSection(buf, m)
	}
	if len(m.Mems) > 0 {
		encodeMemorySection(buf, m)
	}
	if len(m.Globals) > 0 {
		encodeGlobalSection(buf, m)
	}
	if len(m.Exports) > 0 {
		encodeExportSection(buf, m)
	}
	if m.Start != nil {
		encodeStartSection(buf, *m.Start)
	}
	if len(bodies) > 0 {
		if err := encodeCodeSection(buf, m, bodies); err != nil {
			return nil, err
		}
	}

	return buf.bytes, nil
}

// splitFuncs separates the mixed function list into its import and body
// halves, keeping index order.
func splitFuncs(m *ast.Module) (imports, bodies []*ast.Func, err error) {
	for i := range m.Funcs {
		f := &m.Funcs[i]
		switch f.Kind.(type) {
		case *ast.ImportKind:
			if len(bodies) > 0 {
				return nil, nil, fmt.Errorf("encode: imported function at index %d follows a function with a body", i)
			}
			imports = append(imports, f)
		case *ast.BodyKind:
			bodies = append(bodies, f)
		}
	}
	return imports, bodies, nil
}

func writeSection(buf *buffer, id byte, content *buffer) {
	buf.writeByte(id)
	buf.writeU32(uint32(len(content.bytes)))
	buf.write(content.bytes)
}

func encodeTypeSection(buf *buffer, m *ast.Module) {
	sec := &buffer{}
	sec.writeU32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		sec.writeByte(funcTypeMarker)
		sec.writeU32(uint32(len(ft.Params)))
		for _, p := range ft.Params {
			sec.writeByte(byte(p))
		}
		sec.writeU32(uint32(len(ft.Results)))
		for _, r := range ft.Results {
			sec.writeByte(byte(r))
		}
	}
	writeSection(buf, sectionType, sec)
}

func encodeImportSection(buf *buffer, imports []*ast.Func) {
	sec := &buffer{}
	sec.writeU32(uint32(len(imports)))
	for _, f := range imports {
		kind := f.Kind.(*ast.ImportKind)
		sec.writeString(kind.Module)
		sec.writeString(kind.Name)
		sec.writeByte(exportKindFunc)
		sec.writeU32(f.TypeIdx)
	}
	writeSection(buf, sectionImport, sec)
}

func encodeFuncSection(buf *buffer, bodies []*ast.Func) {
	sec := &buffer{}
	sec.writeU32(uint32(len(bodies)))
	for _, f := range bodies {
		sec.writeU32(f.TypeIdx)
	}
	writeSection(buf, sectionFunc, sec)
}

func encodeTableSection(buf *buffer, m *ast.Module) {
	sec := &buffer{}
	sec.writeU32(uint32(len(m.Tables)))
	for _, t := range m.Tables {
		sec.writeByte(funcrefType)
		sec.writeLimits(t.Min, t.Max)
	}
	writeSection(buf, sectionTable, sec)
}

func encodeMemorySection(buf *buffer, m *ast.Module) {
	sec := &buffer{}
	sec.writeU32(uint32(len(m.Mems)))
	for _, mem := range m.Mems {
		sec.writeLimits(mem.MinPages, mem.MaxPages)
	}
	writeSection(buf, sectionMemory, sec)
}

func encodeGlobalSection(buf *buffer, m *ast.Module) {
	sec := &buffer{}
	sec.writeU32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		sec.writeByte(byte(g.Type))
		if g.Mutable {
			sec.writeByte(0x01)
		} else {
			sec.writeByte(0x00)
		}
		encodeExpr(sec, g.Init)
	}
	writeSection(buf, sectionGlobal, sec)
}

func encodeExportSection(buf *buffer, m *ast.Module) {
	sec := &buffer{}
	sec.writeU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		sec.writeString(e.Name)
		sec.writeByte(exportKindFunc)
		sec.writeU32(e.FuncIdx)
	}
	writeSection(buf, sectionExport, sec)
}

func encodeStartSection(buf *buffer, idx uint32) {
	sec := &buffer{}
	sec.writeU32(idx)
	writeSection(buf, sectionStart, sec)
}

func encodeCodeSection(buf *buffer, m *ast.Module, bodies []*ast.Func) error {
	sec := &buffer{}
	sec.writeU32(uint32(len(bodies)))
	for _, f := range bodies {
		if int(f.TypeIdx) >= len(m.Types) {
			return fmt.Errorf("encode: function type index %d out of range", f.TypeIdx)
		}
		kind := f.Kind.(*ast.BodyKind)
		params := len(m.Types[f.TypeIdx].Params)
		if len(kind.Locals) < params {
			return fmt.Errorf("encode: function has fewer locals than parameters")
		}

		code := &buffer{}
		encodeLocals(code, kind.Locals[params:])
		encodeExpr(code, kind.Expr)

		sec.writeU32(uint32(len(code.bytes)))
		sec.write(code.bytes)
	}
	writeSection(buf, sectionCode, sec)
	return nil
}

// encodeLocals writes run-length groups of consecutive equal local types.
func encodeLocals(buf *buffer, locals []ast.ValType) {
	type group struct {
		count uint32
		vt    ast.ValType
	}
	var groups []group
	for _, l := range locals {
		if len(groups) > 0 && groups[len(groups)-1].vt == l {
			groups[len(groups)-1].count++
		} else {
			groups = append(groups, group{1, l})
		}
	}
	buf.writeU32(uint32(len(groups)))
	for _, g := range groups {
		buf.writeU32(g.count)
		buf.writeByte(byte(g.vt))
	}
}

// encodeExpr writes an instruction sequence terminated by end.
func encodeExpr(buf *buffer, instrs []ast.Instruction) {
	for _, in := range instrs {
		encodeInstr(buf, in)
	}
	buf.writeByte(opEnd)
}

func encodeBlockType(buf *buffer, result *ast.ValType) {
	if result == nil {
		buf.writeByte(emptyBlockType)
	} else {
		buf.writeByte(byte(*result))
	}
}

func encodeInstr(buf *buffer, in ast.Instruction) {
	buf.writeByte(byte(in.Op))

	switch in.Op {
	case ast.OpBlock, ast.OpLoop:
		imm := in.Imm.(ast.BlockImm)
		encodeBlockType(buf, imm.Result)
		encodeExpr(buf, imm.Body)

	case ast.OpIf:
		imm := in.Imm.(ast.IfImm)
		encodeBlockType(buf, imm.Result)
		for _, t := range imm.Then {
			encodeInstr(buf, t)
		}
		if imm.Else != nil {
			buf.writeByte(opElse)
			for _, e := range imm.Else {
				encodeInstr(buf, e)
			}
		}
		buf.writeByte(opEnd)

	case ast.OpBr, ast.OpBrIf:
		buf.writeU32(in.Imm.(ast.BrImm).Depth)

	case ast.OpBrTable:
		imm := in.Imm.(ast.BrTableImm)
		buf.writeU32(uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			buf.writeU32(l)
		}
		buf.writeU32(imm.Default)

	case ast.OpCall:
		buf.writeU32(in.Imm.(ast.CallImm).FuncIdx)

	case ast.OpCallIndirect:
		buf.writeU32(in.Imm.(ast.CallIndirectImm).TypeIdx)
		buf.writeByte(0x00) // table index

	case ast.OpLocalGet, ast.OpLocalSet, ast.OpLocalTee:
		buf.writeU32(in.Imm.(ast.LocalImm).Idx)

	case ast.OpGlobalGet, ast.OpGlobalSet:
		buf.writeU32(in.Imm.(ast.GlobalImm).Idx)

	case ast.OpI32Load, ast.OpI64Load, ast.OpF32Load, ast.OpF64Load,
		ast.OpI32Load8S, ast.OpI32Load8U, ast.OpI32Load16S, ast.OpI32Load16U,
		ast.OpI64Load8S, ast.OpI64Load8U, ast.OpI64Load16S, ast.OpI64Load16U,
		ast.OpI64Load32S, ast.OpI64Load32U,
		ast.OpI32Store, ast.OpI64Store, ast.OpF32Store, ast.OpF64Store,
		ast.OpI32Store8, ast.OpI32Store16,
		ast.OpI64Store8, ast.OpI64Store16, ast.OpI64Store32:
		imm := in.Imm.(ast.MemImm)
		buf.writeU32(imm.Align)
		buf.writeU32(imm.Offset)

	case ast.OpMemorySize, ast.OpMemoryGrow:
		buf.writeByte(0x00) // memory index

	case ast.OpI32Const:
		buf.writeI32(in.Imm.(ast.I32Imm).Value)

	case ast.OpI64Const:
		buf.writeI64(in.Imm.(ast.I64Imm).Value)

	case ast.OpF32Const:
		buf.writeF32(in.Imm.(ast.F32Imm).Value)

	case ast.OpF64Const:
		buf.writeF64(in.Imm.(ast.F64Imm).Value)
	}
}
