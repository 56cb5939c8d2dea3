package wat

import (
	"strings"
	"testing"

	"github.com/wippyai/wat-validator/ast"
)

// Integration tests for the public Parse() API.
// Unit tests are in internal packages.

func TestParse_EmptyModule(t *testing.T) {
	mod, err := Parse("(module)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(mod.Types) != 0 || len(mod.Funcs) != 0 {
		t.Errorf("empty module has declarations: %+v", mod)
	}
}

func TestParse_Function(t *testing.T) {
	mod, err := Parse(`(module
		(func (export "add") (param $a i32) (param $b i32) (result i32)
			(i32.add (local.get $a) (local.get $b))))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(mod.Types) != 1 {
		t.Fatalf("types = %d, want 1", len(mod.Types))
	}
	ft := mod.Types[0]
	if len(ft.Params) != 2 || ft.Params[0] != ast.I32 || ft.Params[1] != ast.I32 {
		t.Errorf("params = %v, want [i32 i32]", ft.Params)
	}
	if len(ft.Results) != 1 || ft.Results[0] != ast.I32 {
		t.Errorf("results = %v, want [i32]", ft.Results)
	}

	if len(mod.Funcs) != 1 {
		t.Fatalf("funcs = %d, want 1", len(mod.Funcs))
	}
	body, ok := mod.Funcs[0].Kind.(*ast.BodyKind)
	if !ok {
		t.Fatalf("func kind is %T, want *ast.BodyKind", mod.Funcs[0].Kind)
	}
	// Parameter locals precede declared locals.
	if len(body.Locals) != 2 {
		t.Errorf("locals = %v, want the two parameters", body.Locals)
	}
	// Folded form unfolds operands before the operator.
	ops := []ast.Opcode{ast.OpLocalGet, ast.OpLocalGet, ast.OpI32Add}
	if len(body.Expr) != len(ops) {
		t.Fatalf("body has %d instructions, want %d", len(body.Expr), len(ops))
	}
	for i, want := range ops {
		if body.Expr[i].Op != want {
			t.Errorf("instruction %d = %v, want %v", i, body.Expr[i].Op, want)
		}
	}

	if len(mod.Exports) != 1 || mod.Exports[0].Name != "add" || mod.Exports[0].FuncIdx != 0 {
		t.Errorf("exports = %+v, want add -> func 0", mod.Exports)
	}
}

func TestParse_ImportAndNames(t *testing.T) {
	mod, err := Parse(`(module
		(import "env" "print" (func $print (param i32)))
		(func $main
			i32.const 42
			call $print)
		(export "main" (func $main)))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(mod.Funcs) != 2 {
		t.Fatalf("funcs = %d, want 2", len(mod.Funcs))
	}
	imp, ok := mod.Funcs[0].Kind.(*ast.ImportKind)
	if !ok {
		t.Fatalf("func 0 kind is %T, want *ast.ImportKind", mod.Funcs[0].Kind)
	}
	if imp.Module != "env" || imp.Name != "print" {
		t.Errorf("import = %q.%q, want env.print", imp.Module, imp.Name)
	}

	body := mod.Funcs[1].Kind.(*ast.BodyKind)
	call := body.Expr[1]
	if call.Op != ast.OpCall {
		t.Fatalf("instruction 1 = %v, want call", call.Op)
	}
	if call.Imm.(ast.CallImm).FuncIdx != 0 {
		t.Errorf("$print resolved to %d, want 0", call.Imm.(ast.CallImm).FuncIdx)
	}
	if mod.Exports[0].FuncIdx != 1 {
		t.Errorf("$main resolved to %d, want 1", mod.Exports[0].FuncIdx)
	}
}

func TestParse_DeclaredTypeUse(t *testing.T) {
	mod, err := Parse(`(module
		(type $binop (func (param i32 i32) (result i32)))
		(func (type $binop)
			local.get 0
			local.get 1
			i32.sub))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(mod.Types) != 1 {
		t.Errorf("types = %d, want the one declared type", len(mod.Types))
	}
	if mod.Funcs[0].TypeIdx != 0 {
		t.Errorf("type use = %d, want 0", mod.Funcs[0].TypeIdx)
	}
	body := mod.Funcs[0].Kind.(*ast.BodyKind)
	if len(body.Locals) != 2 {
		t.Errorf("locals = %v, want the two parameters from the declared type", body.Locals)
	}
}

func TestParse_InlineTypeDeduplication(t *testing.T) {
	mod, err := Parse(`(module
		(func (param i32) (result i32) local.get 0)
		(func (param i32) (result i32) local.get 0)
		(func (param f64)))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(mod.Types) != 2 {
		t.Errorf("types = %d, want 2 after deduplication", len(mod.Types))
	}
	if mod.Funcs[0].TypeIdx != mod.Funcs[1].TypeIdx {
		t.Errorf("equal signatures map to types %d and %d", mod.Funcs[0].TypeIdx, mod.Funcs[1].TypeIdx)
	}
}

func TestParse_Labels(t *testing.T) {
	mod, err := Parse(`(module
		(func (param $n i32)
			(block $outer
				(loop $top
					local.get $n
					br_if $outer
					br $top))))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	body := mod.Funcs[0].Kind.(*ast.BodyKind)
	block := body.Expr[0].Imm.(ast.BlockImm)
	loop := block.Body[0].Imm.(ast.BlockImm)
	brIf := loop.Body[1].Imm.(ast.BrImm)
	br := loop.Body[2].Imm.(ast.BrImm)
	if brIf.Depth != 1 {
		t.Errorf("br_if $outer depth = %d, want 1", brIf.Depth)
	}
	if br.Depth != 0 {
		t.Errorf("br $top depth = %d, want 0", br.Depth)
	}
}

func TestParse_FlatControlFlow(t *testing.T) {
	mod, err := Parse(`(module
		(func (param i32) (result i32)
			local.get 0
			if (result i32)
				i32.const 1
			else
				i32.const 2
			end))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	body := mod.Funcs[0].Kind.(*ast.BodyKind)
	if body.Expr[1].Op != ast.OpIf {
		t.Fatalf("instruction 1 = %v, want if", body.Expr[1].Op)
	}
	imm := body.Expr[1].Imm.(ast.IfImm)
	if imm.Result == nil || *imm.Result != ast.I32 {
		t.Errorf("if result = %v, want i32", imm.Result)
	}
	if len(imm.Then) != 1 || len(imm.Else) != 1 {
		t.Errorf("arms = %d/%d instructions, want 1/1", len(imm.Then), len(imm.Else))
	}
}

func TestParse_MemargAndSections(t *testing.T) {
	mod, err := Parse(`(module
		(table 2 8 funcref)
		(memory 1 4)
		(global $g (mut i64) (i64.const 9))
		(func $store
			i32.const 0
			i32.const 1
			i32.store offset=16 align=2)
		(start $store))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(mod.Tables) != 1 || mod.Tables[0].Min != 2 || mod.Tables[0].Max == nil || *mod.Tables[0].Max != 8 {
		t.Errorf("tables = %+v, want min 2 max 8", mod.Tables)
	}
	if len(mod.Mems) != 1 || mod.Mems[0].MinPages != 1 {
		t.Errorf("memories = %+v, want min 1", mod.Mems)
	}
	g := mod.Globals[0]
	if g.Type != ast.I64 || !g.Mutable || len(g.Init) != 1 {
		t.Errorf("global = %+v, want mutable i64 with one init instruction", g)
	}

	body := mod.Funcs[0].Kind.(*ast.BodyKind)
	store := body.Expr[2].Imm.(ast.MemImm)
	if store.Offset != 16 {
		t.Errorf("store offset = %d, want 16", store.Offset)
	}
	if store.Align != 1 {
		t.Errorf("store align = %d (log2), want 1 for align=2", store.Align)
	}
	if mod.Start == nil || *mod.Start != 0 {
		t.Errorf("start = %v, want func 0", mod.Start)
	}
}

func TestParse_NaturalAlignment(t *testing.T) {
	mod, err := Parse(`(module
		(func
			i32.const 0
			i64.load
			drop))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	body := mod.Funcs[0].Kind.(*ast.BodyKind)
	load := body.Expr[1].Imm.(ast.MemImm)
	if load.Align != 3 {
		t.Errorf("i64.load default align = %d (log2), want 3", load.Align)
	}
}

func TestParse_ForwardReference(t *testing.T) {
	mod, err := Parse(`(module
		(func $a call $b)
		(func $b))`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	body := mod.Funcs[0].Kind.(*ast.BodyKind)
	if body.Expr[0].Imm.(ast.CallImm).FuncIdx != 1 {
		t.Errorf("forward $b resolved to %d, want 1", body.Expr[0].Imm.(ast.CallImm).FuncIdx)
	}
}

func TestParse_Offsets(t *testing.T) {
	source := "(module\n  (func\n    nop))"
	mod, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	body := mod.Funcs[0].Kind.(*ast.BodyKind)
	nop := body.Expr[0]
	if source[nop.Start:nop.Start+3] != "nop" {
		t.Errorf("instruction offset %d does not point at the mnemonic", nop.Start)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, wat, wantErr string
	}{
		{"missing_module", "(func)", `expected "module"`},
		{"unclosed", "(module", "unexpected end"},
		{"unknown_instr", "(module (func (bogus)))", "unknown instruction"},
		{"unknown_type", "(module (func (param bogus)))", "unknown value type"},
		{"unknown_label", "(module (func (block (br $x))))", "unknown label"},
		{"unknown_func", "(module (func (call $missing)))", "unknown function"},
		{"bad_align", "(module (func (i32.load align=3 (i32.const 0))))", "power of two"},
		{"huge_offset", "(module (func (i32.load offset=4294967296 (i32.const 0))))", "fit in 32 bits"},
		{"empty_br_table", "(module (func (br_table)))", "default label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.wat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}
