package declare

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dtsbundle/pkg/contract"
)

var testLayout = contract.Layout{BaseDir: "/p/src", Name: "lib", EOL: "\n", Indent: "\t"}

type excludeSet map[string]bool

func (e excludeSet) Excluded(f string) bool { return e[f] }

func assemble(t *testing.T, a contract.Assembler, name, text string) string {
	t.Helper()
	r, err := a.Assemble(context.Background(), contract.SourceFile{FileName: name, Text: text, IsDeclaration: true})
	if err != nil {
		t.Fatalf("assemble %s: %v", name, err)
	}
	b, _ := io.ReadAll(r)
	return string(b)
}

func TestAssembleExternalModule(t *testing.T) {
	a, err := New(testLayout, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	src := `import { x, y as z } from './c';
import D from "../d";
import * as ns from './ns';
export declare function f(a: typeof x): void;

export * from './e.js';
import fs = require('./fs');
export type T = import('./t').T;
`
	want := "declare module 'lib/a/b' {\n" +
		"\timport {x, y as z} from 'lib/a/c';\n" +
		"\timport D from 'lib/d';\n" +
		"\timport * as ns from 'lib/a/ns';\n" +
		"\texport function f(a: typeof x): void;\n" +
		"\n" +
		"\texport * from 'lib/a/e';\n" +
		"\timport fs = require('lib/a/fs');\n" +
		"\texport type T = import('lib/a/t').T;\n" +
		"\n}\n"
	got := assemble(t, a, "/p/src/a/b.d.ts", src)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("输出不符 (-want +got):\n%s", diff)
	}
}

func TestAssembleKeepsPackageSpecifiers(t *testing.T) {
	a, _ := New(testLayout, nil, nil)
	src := "import { a } from 'pkg';\nimport type T, { u } from './u';\nexport { b } from \"other\";\nimport r = require('node:fs');\n"
	want := "declare module 'lib/m' {\n" +
		"\timport {a} from 'pkg';\n" +
		"\timport type T, {u} from 'lib/u';\n" +
		"\texport { b } from \"other\";\n" +
		"\timport r = require('node:fs');\n" +
		"\n}\n"
	if diff := cmp.Diff(want, assemble(t, a, "/p/src/m.d.ts", src)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestAssembleImportsWithoutSemicolons(t *testing.T) {
	a, _ := New(testLayout, nil, nil)
	cases := []struct {
		name, src, want string
	}{
		{
			"named",
			"import x from './x'\nimport {y} from './y'\nexport const z: 1\n",
			"declare module 'lib/a/b' {\n" +
				"\timport x from 'lib/a/x';\n" +
				"\timport {y} from 'lib/a/y';\n" +
				"\texport const z: 1\n" +
				"\n}\n",
		},
		{
			"require",
			"import x = require('./x')\nimport y = require('./y')\n",
			"declare module 'lib/a/b' {\n" +
				"\timport x = require('lib/a/x')\n" +
				"\timport y = require('lib/a/y')\n" +
				"\n}\n",
		},
		{
			"side effect",
			"import './a'\nimport './b'\n",
			"declare module 'lib/a/b' {\n" +
				"\timport 'lib/a/a'\n" +
				"\timport 'lib/a/b'\n" +
				"\n}\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, assemble(t, a, "/p/src/a/b.d.ts", tc.src)); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssembleStripsMemberDeclare(t *testing.T) {
	a, _ := New(testLayout, nil, nil)
	src := "export declare class A {\n    declare x: string;\n    private declare y: number;\n    declare(): void;\n}\n"
	want := "declare module 'lib/a' {\n" +
		"\texport class A {\n" +
		"\t    x: string;\n" +
		"\t    private y: number;\n" +
		"\t    declare(): void;\n" +
		"\t}\n" +
		"\n}\n"
	if diff := cmp.Diff(want, assemble(t, a, "/p/src/a.d.ts", src)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestAssembleAmbientPassthrough(t *testing.T) {
	a, _ := New(testLayout, nil, nil)
	src := "declare const VERSION: string;\n  interface Window {\n    x: 1\n}\n// trailing"
	if got := assemble(t, a, "/p/src/globals.d.ts", src); got != src {
		t.Fatalf("环境声明应逐字节输出，got %q", got)
	}
}

func TestAssembleExcluded(t *testing.T) {
	a, _ := New(testLayout, excludeSet{"/p/src/skip.d.ts": true}, nil)
	if got := assemble(t, a, "/p/src/skip.d.ts", "export declare const a: 1;\n"); got != "" {
		t.Fatalf("排除文件应产出 0 字节，got %q", got)
	}
}

func TestAssembleOutsideBase(t *testing.T) {
	a, _ := New(testLayout, nil, nil)
	_, err := a.Assemble(context.Background(), contract.SourceFile{FileName: "/other/x.d.ts", Text: "export {};"})
	if !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect ErrPathInvalid, got %v", err)
	}
}

func TestAssembleCRLFAndQuote(t *testing.T) {
	layout := testLayout
	layout.EOL = "\r\n"
	layout.Indent = "  "
	a, err := New(layout, nil, json.RawMessage(`{"quote":"\""}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	src := "export declare const a: 1;\r\nexport { b } from './b';\r\n"
	want := "declare module \"lib/x\" {\r\n" +
		"  export const a: 1;\r\n" +
		"  export { b } from \"lib/b\";\r\n" +
		"\r\n}\r\n"
	if diff := cmp.Diff(want, assemble(t, a, "/p/src/x.d.ts", src)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	for _, raw := range []string{`{"quote":"x"}`, `{"unknown":1}`, `[`} {
		if _, err := New(testLayout, nil, json.RawMessage(raw)); !errors.Is(err, contract.ErrConfig) {
			t.Errorf("%s: expect ErrConfig, got %v", raw, err)
		}
	}
	if _, err := New(contract.Layout{}, nil, nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("缺少 BaseDir 应报 ErrInvalidInput, got %v", err)
	}
}

func TestAssembleCanceled(t *testing.T) {
	a, _ := New(testLayout, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Assemble(ctx, contract.SourceFile{FileName: "/p/src/a.d.ts"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
}

func TestIndentLines(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a", "a"},
		{"a\nb", "a\n\tb"},
		{"a\n\nb\n", "a\n\n\tb\n"},
		{"a\r\n\r\nb", "a\r\n\r\n\tb"},
		{"\n", "\n"},
	}
	for _, c := range cases {
		if got := IndentLines(c.in, "\t"); got != c.want {
			t.Errorf("IndentLines(%q)=%q want %q", c.in, got, c.want)
		}
	}
}
