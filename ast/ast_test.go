package ast

import "testing"

func TestValTypeString(t *testing.T) {
	tests := []struct {
		vt   ValType
		want string
	}{
		{I32, "i32"},
		{I64, "i64"},
		{F32, "f32"},
		{F64, "f64"},
	}
	for _, tt := range tests {
		if got := tt.vt.String(); got != tt.want {
			t.Errorf("%#x.String() = %q, want %q", byte(tt.vt), got, tt.want)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpUnreachable, "unreachable"},
		{OpI32Add, "i32.add"},
		{OpLocalGet, "local.get"},
		{OpF64ReinterpretI64, "f64.reinterpret_i64"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(%#x).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestOpcodeBinaryValues(t *testing.T) {
	// Opcode values are the binary encodings, so the encoder can emit
	// them directly.
	tests := []struct {
		op   Opcode
		want byte
	}{
		{OpUnreachable, 0x00},
		{OpBlock, 0x02},
		{OpCallIndirect, 0x11},
		{OpI32Const, 0x41},
		{OpI32Add, 0x6A},
		{OpF64ReinterpretI64, 0xBF},
	}
	for _, tt := range tests {
		if byte(tt.op) != tt.want {
			t.Errorf("%v = %#x, want %#x", tt.op, byte(tt.op), tt.want)
		}
	}
}

func TestMnemonicsIsACopy(t *testing.T) {
	m := Mnemonics()
	m[OpNop] = "tampered"
	if got := OpNop.String(); got != "nop" {
		t.Errorf("OpNop.String() = %q after mutating the returned map", got)
	}
	if len(Mnemonics()) != len(m) {
		t.Error("Mnemonics() length changed between calls")
	}
}
