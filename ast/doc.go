// Package ast defines the module tree consumed by the validator.
//
// A Module is produced once by a frontend (for example the wat package's
// text parser) and is read-only afterwards: the validator and the encoder
// never mutate it. Every node carries Start, the byte offset of the token
// that introduced it in the original source text, so diagnostics can point
// back into that text.
//
// The instruction set is the WebAssembly 1.0 (MVP) core set. Structured
// control instructions (block, loop, if) carry their nested bodies directly
// in their immediates rather than as flat bytecode, which is the shape the
// type-checker walks.
package ast
