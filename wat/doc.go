// Package wat parses the WebAssembly text format into ast module trees.
//
// The supported grammar covers the MVP surface the rest of the module
// works with: types, function imports, functions with named params and
// locals, tables, memories, globals, exports and start, plus the full
// MVP instruction set in both flat and folded form. Instructions and
// module fields record their byte offset in the source so diagnostics
// can point back at the offending text.
package wat
