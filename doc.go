// Package watvalidator provides a static validator for WebAssembly MVP
// modules, together with a text-format front end and a binary back end.
//
// The validator works on a parsed module tree and never executes code:
// it resolves every index against its declaration space and type-checks
// each function body with an abstract operand stack. Errors are
// structured and point back at the source text the tree was parsed from.
//
// # Architecture Overview
//
// The library is organized into small packages with distinct
// responsibilities:
//
//	wat-validator/
//	├── ast/        Module tree: declarations, instructions, immediates
//	├── validate/   Static validation over the tree
//	├── wat/        Text format parser producing ast trees
//	├── encode/     Binary encoder for validated trees
//	└── cmd/watcheck/  CLI that checks and runs text modules
//
// # Quick Start
//
// Parse, validate and encode a text module:
//
//	mod, err := wat.Parse(source)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := validate.Validate(mod, source); err != nil {
//	    log.Fatal(err) // points at the offending source line
//	}
//
//	binary, err := encode.Encode(mod)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The binary output runs on any engine; the tests and the CLI use
// wazero's interpreter.
//
// # Validation Model
//
// Validation is opt-in and side-effect-free: the tree is never mutated,
// and an unvalidated tree can still be encoded. Running a module that
// failed validation is the caller's responsibility; engines will reject
// it at instantiation.
package watvalidator
