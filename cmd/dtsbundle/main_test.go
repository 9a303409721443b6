package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	cfgpkg "dtsbundle/internal/config"
	"dtsbundle/internal/diag"
	"dtsbundle/internal/pipeline"
)

func writeFile(t *testing.T, name, text string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(name, []byte(text), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// workdir 切换到临时目录并返回其（解析后的）路径。
func workdir(t *testing.T) string {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return wd
}

func TestInitWritesTemplateOnce(t *testing.T) {
	wd := workdir(t)
	var out, errb bytes.Buffer
	if code := run([]string{"init", "cfg"}, &out, &errb); code != diag.ExitOK {
		t.Fatalf("init 返回 %d: %s", code, errb.String())
	}
	path := filepath.Join(wd, "cfg", "dtsbundle.json")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("模板未生成: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m["name"] != "my-package" {
		t.Fatalf("模板内容错误: %v %v", err, m["name"])
	}
	writeFile(t, path, "{}\n")
	out.Reset()
	if code := run([]string{"init", "cfg"}, &out, &errb); code != diag.ExitOK {
		t.Fatalf("再次 init 返回 %d", code)
	}
	if b, _ := os.ReadFile(path); string(b) != "{}\n" {
		t.Fatalf("已存在的配置被覆盖: %q", b)
	}
	if !strings.Contains(out.String(), "已存在") {
		t.Fatalf("stdout=%q", out.String())
	}
}

func TestRunBundlesDeclarationDir(t *testing.T) {
	wd := workdir(t)
	writeFile(t, filepath.Join(wd, "src", "a.d.ts"), "export declare const a: 1;\n")
	writeFile(t, filepath.Join(wd, "src", "index.d.ts"), "export * from './a';\n")
	var out, errb bytes.Buffer
	args := []string{"--name", "lib", "--base-dir", "src", "--compiler", "dts", "--out", "dist/lib.d.ts", "--main", "lib/index", "--status=false"}
	if code := run(args, &out, &errb); code != diag.ExitOK {
		t.Fatalf("run 返回 %d: %s", code, errb.String())
	}
	got, err := os.ReadFile(filepath.Join(wd, "dist", "lib.d.ts"))
	if err != nil {
		t.Fatalf("读取输出: %v", err)
	}
	want := "declare module 'lib/a' {\n\texport const a: 1;\n\n}\n" +
		"declare module 'lib/index' {\n\texport * from 'lib/a';\n\n}\n" +
		"declare module 'lib' {\n\timport main = require('lib/index');\n\texport = main;\n}\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("输出不符 (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(wd, "logs", "dtsbundle-current.log")); err != nil {
		t.Fatalf("日志未写出: %v", err)
	}
}

func TestRunToStdout(t *testing.T) {
	wd := workdir(t)
	writeFile(t, filepath.Join(wd, "dtsbundle.yaml"), "name: lib\nout: \"-\"\ncomponents:\n  compiler: dts\n")
	writeFile(t, filepath.Join(wd, "globals.d.ts"), "declare const VERSION: string;\n")
	var out, errb bytes.Buffer
	if code := run([]string{"--status=false"}, &out, &errb); code != diag.ExitOK {
		t.Fatalf("run 返回 %d: %s", code, errb.String())
	}
	if out.String() != "declare const VERSION: string;\n" {
		t.Fatalf("stdout=%q", out.String())
	}
}

func TestRunEmitFailureExitsOne(t *testing.T) {
	wd := workdir(t)
	a := filepath.Join(wd, "src", "a.ts")
	b := filepath.Join(wd, "src", "b.ts")
	writeFile(t, a, "export const a = 1;\n")
	writeFile(t, b, "export const b: number = x;\n")
	cfg := map[string]any{
		"name":       "lib",
		"base_dir":   "src",
		"out":        "out.d.ts",
		"components": map[string]any{"compiler": "memory"},
		"options": map[string]any{"compiler": map[string]any{"files": []any{
			map[string]any{"name": a, "declaration": "export declare const a = 1;\n"},
			map[string]any{"name": b, "diagnostics": []any{
				map[string]any{"category": "semantic", "line": 1, "column": 26, "code": 2304, "message": "Cannot find name 'x'."},
			}},
		}}},
	}
	raw, _ := json.Marshal(cfg)
	writeFile(t, filepath.Join(wd, "dtsbundle.json"), string(raw))
	var out, errb bytes.Buffer
	if code := run([]string{"--status=false"}, &out, &errb); code != diag.ExitFailure {
		t.Fatalf("期望退出码 1，实得 %d: %s", code, errb.String())
	}
	if !strings.Contains(errb.String(), "b.ts(1,26): error TS2304: Cannot find name 'x'.") {
		t.Fatalf("stderr=%q", errb.String())
	}
	// 原子写入：失败时不产生输出文件
	if _, err := os.Stat(filepath.Join(wd, "out.d.ts")); !os.IsNotExist(err) {
		t.Fatalf("失败时不应留下输出: %v", err)
	}
}

func TestRunConfigErrors(t *testing.T) {
	workdir(t)
	cases := map[string][]string{
		"missing name":   {"--out", "x.d.ts"},
		"unknown flag":   {"--bogus"},
		"bad compiler":   {"--name", "lib", "--out", "x.d.ts", "--compiler", "babel"},
		"missing input":  {"--name", "lib", "--out", "x.d.ts", "nope.ts"},
		"missing config": {"--config", "nope.json"},
	}
	for name, args := range cases {
		var out, errb bytes.Buffer
		if code := run(args, &out, &errb); code != diag.ExitConfig {
			t.Fatalf("%s: 期望退出码 3，实得 %d: %s", name, code, errb.String())
		}
	}
}

func TestRunPassesSettings(t *testing.T) {
	wd := workdir(t)
	var got pipeline.Settings
	old := pipelineRun
	pipelineRun = func(_ context.Context, _ pipeline.Components, set pipeline.Settings, _ *diag.Logger, _ *diag.Terminal) error {
		got = set
		return nil
	}
	t.Cleanup(func() { pipelineRun = old })

	args := []string{"--name", "lib", "--out", "lib.d.ts", "--compiler", "memory", "--eol", "crlf",
		"--indent", "  ", "--types", "node", "--types", "jest", "--reference", "../x.d.ts", "--exclude", "**/*.spec.ts"}
	var out, errb bytes.Buffer
	if code := run(args, &out, &errb); code != diag.ExitOK {
		t.Fatalf("run 返回 %d: %s", code, errb.String())
	}
	if got.Name != "lib" || got.BaseDir != filepath.ToSlash(wd) || got.EOL != "\r\n" || got.Indent != "  " {
		t.Fatalf("settings=%+v", got)
	}
	if string(got.Out) != filepath.ToSlash(filepath.Join(wd, "lib.d.ts")) || got.CompilerName != "memory" {
		t.Fatalf("out=%q compiler=%q", got.Out, got.CompilerName)
	}
	if diff := cmp.Diff([]string{"node", "jest"}, got.Types); diff != "" {
		t.Fatalf("types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"../x.d.ts"}, got.References); diff != "" {
		t.Fatalf("references (-want +got):\n%s", diff)
	}
	if !got.Exclude.Excluded(filepath.ToSlash(filepath.Join(wd, "a", "b.spec.ts"))) {
		t.Fatal("exclude 未生效")
	}
}

func TestWriteConfigNoOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	created, err := writeConfig(path, cfgpkg.DefaultTemplateConfig())
	if err != nil || !created {
		t.Fatalf("首次写入: created=%v err=%v", created, err)
	}
	created, err = writeConfig(path, cfgpkg.DefaultTemplateConfig())
	if err != nil || created {
		t.Fatalf("再次写入: created=%v err=%v", created, err)
	}
}

func TestGenCorrID(t *testing.T) {
	a, b := genCorrID(), genCorrID()
	if len(a) != 32 || a == b {
		t.Fatalf("corr id: %q %q", a, b)
	}
}
