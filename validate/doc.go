// Package validate proves a parsed module tree well-formed and type-safe
// before an execution engine touches it.
//
// Validation is a single synchronous pass with no side effects: it reads
// the module and the source text it was parsed from and returns nil or the
// first error found. The module is never mutated, so validating the same
// tree repeatedly, or concurrently from several goroutines, is safe.
//
// Validation is opt-in. A caller that established validity out of band (for
// example through a conformance suite) may skip Validate and hand the tree
// straight to an engine; nothing in this package enforces that it runs.
//
// Every error is a *Error carrying a closed Kind, the structured data
// behind the failure, and the byte offset of the offending node, rendered
// as a line/column diagnostic against the original source text.
//
// Known gaps, kept deliberately: the structural rules for tables[0], the
// memory section and the start function are not yet checked here.
package validate
