package encode_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/encode"
)

func retType(t ast.ValType) *ast.ValType {
	return &t
}

func TestEncode_EmptyModule(t *testing.T) {
	bin, err := encode.Encode(&ast.Module{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(bin, want) {
		t.Errorf("empty module = % x, want magic and version only", bin)
	}
}

func TestEncode_SimpleFunction(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{
			{Results: []ast.ValType{ast.I32}},
		},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{
				Expr: []ast.Instruction{
					{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}},
				},
			}},
		},
		Exports: []ast.Export{{Name: "f", FuncIdx: 0}},
	}

	bin, err := encode.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // magic + version
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7F, // type ()->i32
		0x03, 0x02, 0x01, 0x00, // function
		0x07, 0x05, 0x01, 0x01, 'f', 0x00, 0x00, // export "f"
		0x0A, 0x06, 0x01, 0x04, 0x00, 0x41, 0x01, 0x0B, // code
	}
	if !bytes.Equal(bin, want) {
		t.Errorf("got  % x\nwant % x", bin, want)
	}
}

func TestEncode_LocalsGrouping(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{{}},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{
				Locals: []ast.ValType{ast.I32, ast.I32, ast.F64},
			}},
		},
	}

	bin, err := encode.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Two run-length groups: 2 x i32, 1 x f64.
	groups := []byte{0x02, 0x02, 0x7F, 0x01, 0x7C}
	if !bytes.Contains(bin, groups) {
		t.Errorf("binary % x does not carry local groups % x", bin, groups)
	}
}

func TestEncode_StructuredInstructions(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{
			{Params: []ast.ValType{ast.I32}, Results: []ast.ValType{ast.I32}},
		},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{
				Locals: []ast.ValType{ast.I32},
				Expr: []ast.Instruction{
					{Op: ast.OpLocalGet, Imm: ast.LocalImm{Idx: 0}},
					{Op: ast.OpIf, Imm: ast.IfImm{
						Result: retType(ast.I32),
						Then:   []ast.Instruction{{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 1}}},
						Else:   []ast.Instruction{{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 2}}},
					}},
				},
			}},
		},
	}

	bin, err := encode.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// if (result i32) ... else ... end, then the body's own end.
	flat := []byte{0x04, 0x7F, 0x41, 0x01, 0x05, 0x41, 0x02, 0x0B, 0x0B}
	if !bytes.Contains(bin, flat) {
		t.Errorf("binary % x does not carry flattened if/else % x", bin, flat)
	}
}

func TestEncode_ImportsAndSections(t *testing.T) {
	one := uint32(1)
	start := uint32(1)
	m := &ast.Module{
		Types: []ast.FuncType{
			{Params: []ast.ValType{ast.I32}},
			{},
		},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.ImportKind{Module: "env", Name: "print"}},
			{TypeIdx: 1, Kind: &ast.BodyKind{
				Expr: []ast.Instruction{
					{Op: ast.OpI32Const, Imm: ast.I32Imm{Value: 7}},
					{Op: ast.OpCall, Imm: ast.CallImm{FuncIdx: 0}},
				},
			}},
		},
		Tables:  []ast.Table{{Min: 1, Max: &one}},
		Mems:    []ast.Memory{{MinPages: 1}},
		Globals: []ast.Global{{Type: ast.I64, Mutable: true, Init: []ast.Instruction{{Op: ast.OpI64Const, Imm: ast.I64Imm{Value: 0}}}}},
		Start:   &start,
	}

	bin, err := encode.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	imp := []byte{0x02, 0x0D, 0x01, 0x03, 'e', 'n', 'v', 0x05, 'p', 'r', 'i', 'n', 't', 0x00, 0x00}
	if !bytes.Contains(bin, imp) {
		t.Errorf("binary % x does not carry the import section % x", bin, imp)
	}
	table := []byte{0x04, 0x05, 0x01, 0x70, 0x01, 0x01, 0x01}
	if !bytes.Contains(bin, table) {
		t.Errorf("binary % x does not carry the table section % x", bin, table)
	}
	global := []byte{0x06, 0x06, 0x01, 0x7E, 0x01, 0x42, 0x00, 0x0B}
	if !bytes.Contains(bin, global) {
		t.Errorf("binary % x does not carry the global section % x", bin, global)
	}
	startSec := []byte{0x08, 0x01, 0x01}
	if !bytes.Contains(bin, startSec) {
		t.Errorf("binary % x does not carry the start section % x", bin, startSec)
	}
}

func TestEncode_ImportAfterBody(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{{}},
		Funcs: []ast.Func{
			{TypeIdx: 0, Kind: &ast.BodyKind{}},
			{TypeIdx: 0, Kind: &ast.ImportKind{Module: "env", Name: "print"}},
		},
	}

	_, err := encode.Encode(m)
	if err == nil {
		t.Fatal("expected error for import after body")
	}
	if !strings.Contains(err.Error(), "follows a function with a body") {
		t.Errorf("unexpected error: %v", err)
	}
}
