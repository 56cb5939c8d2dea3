package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wat-validator/ast"
	"github.com/wippyai/wat-validator/encode"
	"github.com/wippyai/wat-validator/validate"
	"github.com/wippyai/wat-validator/wat"
)

func main() {
	var (
		watFile     = flag.String("wat", "", "Path to WebAssembly text file")
		funcName    = flag.String("invoke", "", "Exported function to invoke (optional)")
		argsStr     = flag.String("args", "", "Arguments for -invoke (comma-separated)")
		noValidate  = flag.Bool("no-validate", false, "Skip validation before running")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose validation logging")
	)
	flag.Parse()

	if *watFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: watcheck -wat <file.wat> [-invoke name] [-args 1,2,...]")
		fmt.Fprintln(os.Stderr, "       watcheck -wat <file.wat> -list")
		fmt.Fprintln(os.Stderr, "       watcheck -wat <file.wat> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		validate.SetLogger(logger)
	}

	if *interactive {
		if err := runInteractive(*watFile, !*noValidate); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*watFile, *funcName, *argsStr, *noValidate, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type exportInfo struct {
	name   string
	params []ast.ValType
	result *ast.ValType
}

// loadedModule is a parsed, optionally validated and encoded wat file.
type loadedModule struct {
	source  string
	tree    *ast.Module
	binary  []byte
	exports []exportInfo
}

func load(watFile string, validated bool) (*loadedModule, error) {
	data, err := os.ReadFile(watFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	source := string(data)

	tree, err := wat.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if validated {
		if err := validate.Validate(tree, source); err != nil {
			return nil, err
		}
	}

	binary, err := encode.Encode(tree)
	if err != nil {
		return nil, err
	}

	return &loadedModule{
		source:  source,
		tree:    tree,
		binary:  binary,
		exports: exportInfos(tree),
	}, nil
}

func exportInfos(m *ast.Module) []exportInfo {
	var infos []exportInfo
	for _, e := range m.Exports {
		info := exportInfo{name: e.Name}
		if int(e.FuncIdx) < len(m.Funcs) {
			typeIdx := m.Funcs[e.FuncIdx].TypeIdx
			if int(typeIdx) < len(m.Types) {
				ft := m.Types[typeIdx]
				info.params = ft.Params
				if len(ft.Results) == 1 {
					info.result = &ft.Results[0]
				}
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func (lm *loadedModule) signature(info exportInfo) string {
	var params []string
	for _, p := range info.params {
		params = append(params, p.String())
	}
	result := ""
	if info.result != nil {
		result = " -> " + info.result.String()
	}
	return info.name + "(" + strings.Join(params, ", ") + ")" + result
}

func run(watFile, funcName, argsStr string, noValidate, listOnly bool) error {
	ctx := context.Background()

	lm, err := load(watFile, !noValidate)
	if err != nil {
		return err
	}

	okStyle := lipgloss.NewStyle()
	if term.IsTerminal(int(os.Stdout.Fd())) {
		okStyle = okStyle.Foreground(lipgloss.Color("#90EE90"))
	}

	fmt.Printf("Module: %s\n", watFile)
	if !noValidate {
		fmt.Println(okStyle.Render("Validation: ok"))
	}
	fmt.Printf("Functions: %d, globals: %d, exports: %d\n",
		len(lm.tree.Funcs), len(lm.tree.Globals), len(lm.tree.Exports))

	fmt.Printf("\nExported functions:\n")
	for _, info := range lm.exports {
		fmt.Printf("  %s\n", lm.signature(info))
	}

	if listOnly {
		return nil
	}
	if funcName == "" {
		return nil
	}

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	instance, err := instantiate(ctx, r, lm)
	if err != nil {
		return err
	}

	var info *exportInfo
	for i := range lm.exports {
		if lm.exports[i].name == funcName {
			info = &lm.exports[i]
			break
		}
	}
	if info == nil {
		return fmt.Errorf("no exported function %q", funcName)
	}

	var args []string
	if argsStr != "" {
		args = strings.Split(argsStr, ",")
	}
	stack, err := encodeArgs(args, info.params)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, strings.Join(args, ", "))
	results, err := instance.ExportedFunction(funcName).Call(ctx, stack...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}

	if info.result != nil && len(results) > 0 {
		fmt.Printf("Result: %s\n", okStyle.Render(decodeResult(results[0], *info.result)))
	} else {
		fmt.Println("Result: (no value)")
	}
	return nil
}

// instantiate registers a host stub for every imported function, then
// instantiates the encoded module on the given runtime.
func instantiate(ctx context.Context, r wazero.Runtime, lm *loadedModule) (api.Module, error) {
	type hostFunc struct {
		name string
		ft   ast.FuncType
	}
	hosts := make(map[string][]hostFunc)
	var order []string
	for _, f := range lm.tree.Funcs {
		kind, ok := f.Kind.(*ast.ImportKind)
		if !ok {
			continue
		}
		var ft ast.FuncType
		if int(f.TypeIdx) < len(lm.tree.Types) {
			ft = lm.tree.Types[f.TypeIdx]
		}
		if _, seen := hosts[kind.Module]; !seen {
			order = append(order, kind.Module)
		}
		hosts[kind.Module] = append(hosts[kind.Module], hostFunc{name: kind.Name, ft: ft})
	}

	for _, modName := range order {
		builder := r.NewHostModuleBuilder(modName)
		for _, hf := range hosts[modName] {
			params := valueTypes(hf.ft.Params)
			results := valueTypes(hf.ft.Results)
			resultTypes := hf.ft.Results
			fn := func(_ context.Context, _ api.Module, stack []uint64) {
				var vals []string
				for _, v := range stack {
					vals = append(vals, strconv.FormatUint(v, 10))
				}
				fmt.Printf("(host) %s.%s(%s)\n", modName, hf.name, strings.Join(vals, ", "))
				for i := range resultTypes {
					stack[i] = 0
				}
			}
			builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(fn), params, results).
				Export(hf.name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return nil, fmt.Errorf("host module %s: %w", modName, err)
		}
	}

	instance, err := r.Instantiate(ctx, lm.binary)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	return instance, nil
}

func valueTypes(types []ast.ValType) []api.ValueType {
	var out []api.ValueType
	for _, t := range types {
		switch t {
		case ast.I32:
			out = append(out, api.ValueTypeI32)
		case ast.I64:
			out = append(out, api.ValueTypeI64)
		case ast.F32:
			out = append(out, api.ValueTypeF32)
		case ast.F64:
			out = append(out, api.ValueTypeF64)
		}
	}
	return out
}

func encodeArgs(args []string, params []ast.ValType) ([]uint64, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(args))
	}
	stack := make([]uint64, len(args))
	for i, a := range args {
		a = strings.TrimSpace(a)
		switch params[i] {
		case ast.I32:
			v, err := strconv.ParseInt(a, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: invalid i32 %q", i, a)
			}
			stack[i] = api.EncodeI32(int32(v))
		case ast.I64:
			v, err := strconv.ParseInt(a, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: invalid i64 %q", i, a)
			}
			stack[i] = api.EncodeI64(v)
		case ast.F32:
			v, err := strconv.ParseFloat(a, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: invalid f32 %q", i, a)
			}
			stack[i] = api.EncodeF32(float32(v))
		case ast.F64:
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: invalid f64 %q", i, a)
			}
			stack[i] = api.EncodeF64(v)
		}
	}
	return stack, nil
}

func decodeResult(raw uint64, t ast.ValType) string {
	switch t {
	case ast.I32:
		return strconv.FormatInt(int64(api.DecodeI32(raw)), 10)
	case ast.I64:
		return strconv.FormatInt(int64(raw), 10)
	case ast.F32:
		return strconv.FormatFloat(float64(api.DecodeF32(raw)), 'g', -1, 32)
	case ast.F64:
		return strconv.FormatFloat(api.DecodeF64(raw), 'g', -1, 64)
	}
	return strconv.FormatUint(raw, 10)
}
