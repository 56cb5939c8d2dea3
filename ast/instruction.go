package ast

// Instruction is one instruction: an opcode plus its static immediate.
// Plain numeric instructions have a nil Imm; the Imm types below form a
// closed set, one per immediate shape.
type Instruction struct {
	Start int
	Op    Opcode
	Imm   any
}

// BlockImm holds the block type and nested body for block and loop.
// Result is nil for an empty block type.
type BlockImm struct {
	Result *ValType
	Body   []Instruction
}

// IfImm holds the shared block type and both arms of an if. Else is nil
// when no else arm was written.
type IfImm struct {
	Result *ValType
	Then   []Instruction
	Else   []Instruction
}

// BrImm holds the relative label depth for br and br_if.
type BrImm struct {
	Depth uint32
}

// BrTableImm holds the label vector and default label for br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the callee function index for call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds the signature type index for call_indirect.
type CallIndirectImm struct {
	TypeIdx uint32
}

// LocalImm holds the local index for local.get, local.set and local.tee.
type LocalImm struct {
	Idx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	Idx uint32
}

// MemImm holds alignment and offset for loads and stores.
type MemImm struct {
	Align  uint32
	Offset uint32
}

// I32Imm holds the value for i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm holds the value for i64.const.
type I64Imm struct {
	Value int64
}

// F32Imm holds the value for f32.const.
type F32Imm struct {
	Value float32
}

// F64Imm holds the value for f64.const.
type F64Imm struct {
	Value float64
}
