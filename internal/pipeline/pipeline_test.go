package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dtsbundle/internal/diag"
	"dtsbundle/pkg/contract"
	"dtsbundle/plugins/assembler/declare"
	"dtsbundle/plugins/compiler/memory"
)

// stubWriter 读取全部内容；err 非空时在读完后返回该错误。
type stubWriter struct {
	mu     sync.Mutex
	calls  int
	ids    []contract.ArtifactID
	buf    bytes.Buffer
	rerr   error // 读取过程中观察到的错误
	err    error
	noRead bool
}

func (w *stubWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.ids = append(w.ids, id)
	if w.noRead {
		return w.err
	}
	if _, err := io.Copy(&w.buf, r); err != nil {
		w.rerr = err
		return err
	}
	return w.err
}

type excludeSet map[string]bool

func (e excludeSet) Excluded(f string) bool { return e[f] }

func newComponents(t *testing.T, w contract.Writer, ex contract.Excluder, files ...memory.File) (Components, *memory.Compiler) {
	t.Helper()
	c, err := memory.NewFromFiles(files...)
	if err != nil {
		t.Fatalf("compiler: %v", err)
	}
	a, err := declare.New(contract.Layout{BaseDir: "/p/src", Name: "lib", EOL: "\n", Indent: "\t"}, ex, nil)
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	return Components{Compiler: c, Assembler: a, Writer: w}, c
}

func baseSettings(files ...string) Settings {
	return Settings{BaseDir: "/p/src", Name: "lib", Files: files, Out: "out.d.ts", EOL: "\n", Indent: "\t"}
}

func TestRunBundlesInOrderWithMainAlias(t *testing.T) {
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil,
		memory.File{Name: "/p/src/util.ts", Declaration: "export declare const a: number;\n"},
		memory.File{Name: "/p/src/index.ts", Declaration: "export { a } from './util';\n"},
	)
	set := baseSettings("/p/src/index.ts", "/p/src/util.ts")
	set.Main = "lib/index"
	if err := Run(context.Background(), comp, set, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "declare module 'lib/util' {\n\texport const a: number;\n\n}\n" +
		"declare module 'lib/index' {\n\texport { a } from 'lib/util';\n\n}\n" +
		"declare module 'lib' {\n\timport main = require('lib/index');\n\texport = main;\n}\n"
	if diff := cmp.Diff(want, w.buf.String()); diff != "" {
		t.Fatalf("输出不符 (-want +got):\n%s", diff)
	}
	if w.calls != 1 || w.ids[0] != "out.d.ts" {
		t.Fatalf("writer calls=%d ids=%v", w.calls, w.ids)
	}
}

func TestRunHeaderDirectives(t *testing.T) {
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil)
	set := baseSettings()
	set.References = []string{"../node_modules/x/index.d.ts"}
	set.Types = []string{"node", "jest"}
	set.EOL = "\r\n"
	if err := Run(context.Background(), comp, set, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "/// <reference path=\"../node_modules/x/index.d.ts\" />\r\n" +
		"/// <reference types=\"node\" />\r\n" +
		"/// <reference types=\"jest\" />\r\n"
	if got := w.buf.String(); got != want {
		t.Fatalf("header=%q", got)
	}
}

func TestRunFailFastOnDiagnostic(t *testing.T) {
	w := &stubWriter{}
	comp, c := newComponents(t, w, nil,
		memory.File{Name: "/p/src/a.ts", Declaration: "export declare const a: 1;\n"},
		memory.File{Name: "/p/src/b.ts", Diagnostics: []memory.Diagnostic{
			{Category: "semantic", Line: 3, Column: 5, Code: 2322, Message: "Type 'string' is not assignable to type 'number'."},
		}},
		memory.File{Name: "/p/src/c.ts", Declaration: "export declare const c: 3;\n"},
	)
	err := Run(context.Background(), comp, baseSettings("/p/src/a.ts", "/p/src/b.ts", "/p/src/c.ts"), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, contract.ErrEmit) {
		t.Fatalf("not ErrEmit: %v", err)
	}
	var ee *contract.EmitError
	if !errors.As(err, &ee) || ee.FileName != "/p/src/b.ts" {
		t.Fatalf("emit error=%v", err)
	}
	if !strings.Contains(err.Error(), "/p/src/b.ts(3,5): error TS2322") {
		t.Fatalf("message=%q", err.Error())
	}
	if diff := cmp.Diff([]string{"/p/src/a.ts", "/p/src/b.ts"}, c.Emitted()); diff != "" {
		t.Fatalf("emitted (-want +got):\n%s", diff)
	}
	// 已写部分交给 Writer 处理，Writer 观察到的是同一错误
	if !strings.HasPrefix(w.buf.String(), "declare module 'lib/a' {") {
		t.Fatalf("partial=%q", w.buf.String())
	}
	if !errors.Is(w.rerr, contract.ErrEmit) || w.calls != 1 {
		t.Fatalf("writer rerr=%v calls=%d", w.rerr, w.calls)
	}
	if diag.ExitCode(err) != diag.ExitFailure {
		t.Fatalf("exit=%d", diag.ExitCode(err))
	}
}

func TestRunDiagnosticOrder(t *testing.T) {
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil,
		memory.File{Name: "/p/src/a.ts", Diagnostics: []memory.Diagnostic{
			{Category: "declaration", Code: 4025, Message: "d"},
			{Category: "syntactic", Code: 1005, Message: "s"},
			{Category: "semantic", Code: 2304, Message: "m"},
			{Category: "emit", Code: 5055, Message: "e"},
		}},
	)
	err := Run(context.Background(), comp, baseSettings("/p/src/a.ts"), nil, nil)
	var ee *contract.EmitError
	if !errors.As(err, &ee) {
		t.Fatalf("err=%v", err)
	}
	var codes []int
	for _, d := range ee.Diagnostics {
		codes = append(codes, d.Code)
	}
	if diff := cmp.Diff([]int{5055, 2304, 1005, 4025}, codes); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestRunSkippedEmission(t *testing.T) {
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil, memory.File{Name: "/p/src/a.ts", Skip: true})
	err := Run(context.Background(), comp, baseSettings("/p/src/a.ts"), nil, nil)
	var ee *contract.EmitError
	if !errors.As(err, &ee) || !ee.Skipped {
		t.Fatalf("err=%v", err)
	}
}

func TestRunSkipsOutsideBaseAndExcluded(t *testing.T) {
	w := &stubWriter{}
	ex := excludeSet{"/p/src/gen.d.ts": true, "/p/src/skip.ts": true}
	comp, c := newComponents(t, w, ex,
		memory.File{Name: "/usr/lib/typescript/lib.d.ts", Text: "interface Array<T> {}\n"},
		memory.File{Name: "/p/src/gen.d.ts", Text: "export declare const g: 1;\n"},
		memory.File{Name: "/p/src/skip.ts", Declaration: "export declare const s: 1;\n"},
		memory.File{Name: "/p/src/kept.d.ts", Text: "export declare const k: 1;\n"},
	)
	if err := Run(context.Background(), comp, baseSettings("/p/src/kept.d.ts"), nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got, want := w.buf.String(), "declare module 'lib/kept' {\n\texport const k: 1;\n\n}\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if len(c.Emitted()) != 0 {
		t.Fatalf("emitted=%v", c.Emitted())
	}
}

func TestRunAmbientDeclarationVerbatim(t *testing.T) {
	w := &stubWriter{}
	text := "declare module 'other' {\n  export const x: number;\n}\n"
	comp, _ := newComponents(t, w, nil, memory.File{Name: "/p/src/ambient.d.ts", Text: text})
	if err := Run(context.Background(), comp, baseSettings("/p/src/ambient.d.ts"), nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if w.buf.String() != text {
		t.Fatalf("got %q", w.buf.String())
	}
}

func TestRunSinkErrorOverridesSuccess(t *testing.T) {
	werr := errors.New("disk full")
	w := &stubWriter{err: werr}
	comp, _ := newComponents(t, w, nil, memory.File{Name: "/p/src/a.d.ts", Text: "export declare const a: 1;\n"})
	err := Run(context.Background(), comp, baseSettings("/p/src/a.d.ts"), nil, nil)
	if !errors.Is(err, werr) {
		t.Fatalf("err=%v", err)
	}
}

func TestRunSinkRejectsEarly(t *testing.T) {
	werr := errors.New("permission denied")
	w := &stubWriter{err: werr, noRead: true}
	files := make([]memory.File, 0, 64)
	for i := 0; i < 64; i++ {
		files = append(files, memory.File{
			Name: "/p/src/m" + string(rune('a'+i%26)) + strings.Repeat("x", i) + ".d.ts",
			Text: strings.Repeat("export declare const v: string;\n", 64),
		})
	}
	comp, _ := newComponents(t, w, nil, files...)
	err := Run(context.Background(), comp, baseSettings(), nil, nil)
	if !errors.Is(err, werr) {
		t.Fatalf("err=%v", err)
	}
	if w.calls != 1 {
		t.Fatalf("calls=%d", w.calls)
	}
}

func TestRunCompileError(t *testing.T) {
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil)
	err := Run(context.Background(), comp, baseSettings("/p/src/missing.ts"), nil, nil)
	if !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("err=%v", err)
	}
	if w.calls != 0 {
		t.Fatalf("writer opened before compile: calls=%d", w.calls)
	}
}

func TestRunCanceled(t *testing.T) {
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil, memory.File{Name: "/p/src/a.d.ts", Text: "export {};\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, comp, baseSettings(), nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

type closingCompiler struct {
	contract.Compiler
	closed *int
}

type closingProgram struct {
	contract.Program
	closed *int
}

func (c closingCompiler) Compile(ctx context.Context, files []string, opts contract.CompileOptions) (contract.Program, error) {
	p, err := c.Compiler.Compile(ctx, files, opts)
	if err != nil {
		return nil, err
	}
	return closingProgram{Program: p, closed: c.closed}, nil
}

func (p closingProgram) Close() error { *p.closed++; return nil }

func TestRunClosesProgram(t *testing.T) {
	for _, fail := range []bool{false, true} {
		w := &stubWriter{}
		f := memory.File{Name: "/p/src/a.ts", Declaration: "export {};\n"}
		if fail {
			f.Skip = true
		}
		comp, _ := newComponents(t, w, nil, f)
		closed := 0
		comp.Compiler = closingCompiler{Compiler: comp.Compiler, closed: &closed}
		_ = Run(context.Background(), comp, baseSettings("/p/src/a.ts"), nil, nil)
		if closed != 1 || w.calls != 1 {
			t.Fatalf("fail=%v closed=%d calls=%d", fail, closed, w.calls)
		}
	}
}

func TestRunSanity(t *testing.T) {
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil)
	cases := map[string]func(*Settings){
		"empty name":    func(s *Settings) { s.Name = "" },
		"relative base": func(s *Settings) { s.BaseDir = "src" },
		"empty out":     func(s *Settings) { s.Out = "" },
		"relative main": func(s *Settings) { s.Main = "./index" },
	}
	for name, mut := range cases {
		set := baseSettings()
		mut(&set)
		if err := Run(context.Background(), comp, set, nil, nil); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
	if err := Run(context.Background(), Components{}, baseSettings(), nil, nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("missing components: err=%v", err)
	}
}

func TestRunLogsAndTerminal(t *testing.T) {
	var logs, term bytes.Buffer
	w := &stubWriter{}
	comp, _ := newComponents(t, w, nil, memory.File{Name: "/p/src/a.ts", Declaration: "export {};\n"})
	set := baseSettings("/p/src/a.ts")
	set.CompilerName = "memory"
	lg := diag.NewLoggerTo(&logs, "c1", "info")
	if err := Run(context.Background(), comp, set, lg, diag.NewTerminal(&term, true)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(logs.String(), `"comp":"pipeline"`) || !strings.Contains(logs.String(), `"corr_id":"c1"`) {
		t.Fatalf("logs=%s", logs.String())
	}
	if !strings.Contains(term.String(), "compiler=memory") || !strings.Contains(term.String(), "[done]") {
		t.Fatalf("terminal=%q", term.String())
	}
}

func TestHeaderAndMainAlias(t *testing.T) {
	if got := Header(nil, nil, "\n"); got != "" {
		t.Fatalf("empty header=%q", got)
	}
	got := MainAlias("pkg", "pkg/main", "\r\n", "  ")
	want := "declare module 'pkg' {\r\n  import main = require('pkg/main');\r\n  export = main;\r\n}\r\n"
	if got != want {
		t.Fatalf("alias=%q", got)
	}
}
