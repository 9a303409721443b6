// Package tsc 通过外部 tsc 可执行文件编译并发射声明。
//
// 调用形如：
//
//	tsc --declaration --emitDeclarationOnly --listFiles --pretty false --outDir <tmp> --rootDir <base> [files...]
//
// --listFiles 的输出给出编译器的遍历顺序；诊断按 `file(line,col): error TSnnnn: msg` 解析。
package tsc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"dtsbundle/pkg/contract"
	"dtsbundle/pkg/moduleid"
)

// Options 为 tsc 编译器配置。
type Options struct {
	// Binary: 可执行文件，默认 "tsc"（可为 node_modules/.bin/tsc）。
	Binary string `json:"binary,omitempty"`
	// Project: tsconfig 路径；设置后不再在命令行传递文件列表。
	Project string `json:"project,omitempty"`
	// Args: 追加到固定参数之后的额外参数。
	Args []string `json:"args,omitempty"`
	// Dir: tsc 进程的工作目录；相对路径基于构造时给定的目录。
	// --pretty false 下诊断中的文件名相对该目录输出。
	Dir string `json:"dir,omitempty"`
}

// Runner 在 dir 下执行命令并返回合并输出与退出码；error 仅表示进程无法启动。
type Runner func(ctx context.Context, dir, name string, args ...string) (out []byte, code int, err error)

// Compiler 实现 contract.Compiler。
type Compiler struct {
	fs  afero.Fs
	opt Options
	run Runner
}

// New 创建 tsc 编译器。fs 为 nil 时使用操作系统文件系统；run 为 nil 时使用 os/exec。
// workDir 为默认工作目录（通常是调用方的当前目录），为空时退回 BaseDir。
func New(fs afero.Fs, run Runner, workDir string, raw json.RawMessage) (*Compiler, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("%w: tsc options: %v", contract.ErrConfig, err)
		}
	}
	if strings.TrimSpace(o.Binary) == "" {
		o.Binary = "tsc"
	}
	if o.Dir == "" {
		o.Dir = workDir
	} else if !filepath.IsAbs(o.Dir) && workDir != "" {
		o.Dir = filepath.Join(workDir, o.Dir)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if run == nil {
		run = execRunner
	}
	return &Compiler{fs: fs, opt: o, run: run}, nil
}

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}
	if err != nil {
		return out, -1, err
	}
	return out, 0, nil
}

// Args 返回一次编译的完整参数列表。
func (c *Compiler) Args(outDir, baseDir string, files []string) []string {
	args := []string{
		"--declaration", "--emitDeclarationOnly", "--listFiles",
		"--pretty", "false",
		"--outDir", outDir,
		"--rootDir", baseDir,
	}
	if c.opt.Project != "" {
		args = append(args, "--project", c.opt.Project)
	}
	args = append(args, c.opt.Args...)
	if c.opt.Project == "" {
		args = append(args, files...)
	}
	return args
}

// Compile 运行 tsc。诊断挂在 Program 上；只有进程无法运行、
// 或非零退出却没有任何可解析诊断时才返回 error。
// 返回的 Program 实现 io.Closer，用于清理临时输出目录。
func (c *Compiler) Compile(ctx context.Context, files []string, opts contract.CompileOptions) (contract.Program, error) {
	base := string(contract.NormalizeFileID(opts.BaseDir))
	outDir, err := afero.TempDir(c.fs, "", "dtsbundle-tsc-")
	if err != nil {
		return nil, err
	}
	outDir = string(contract.NormalizeFileID(outDir))
	dir := c.opt.Dir
	if dir == "" {
		dir = base
	}
	dir = string(contract.NormalizeFileID(dir))
	out, code, err := c.run(ctx, dir, c.opt.Binary, c.Args(outDir, base, files)...)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("run %s: %w", c.opt.Binary, err), c.fs.RemoveAll(outDir))
	}
	res := ParseOutput(out)
	if code != 0 && len(res.Diagnostics) == 0 {
		return nil, multierr.Append(
			fmt.Errorf("%s exited with code %d: %s", c.opt.Binary, code, strings.TrimSpace(string(out))),
			c.fs.RemoveAll(outDir),
		)
	}
	listed := res.Files
	if len(listed) == 0 {
		listed = files
	}

	p := &program{fs: c.fs, base: base, outDir: outDir, byFile: make(map[contract.FileID][]contract.Diagnostic)}
	var readErr error
	for _, f := range listed {
		name := resolveIn(dir, f)
		sf := contract.SourceFile{FileName: name, IsDeclaration: moduleid.IsDeclaration(name)}
		if sf.IsDeclaration && contract.Within(base, name) {
			b, err := afero.ReadFile(c.fs, name)
			readErr = multierr.Append(readErr, err)
			sf.Text = string(b)
		}
		p.files = append(p.files, sf)
	}
	if readErr != nil {
		return nil, multierr.Append(readErr, c.fs.RemoveAll(outDir))
	}
	for _, d := range res.Diagnostics {
		if d.FileName == "" {
			p.global = append(p.global, d)
			continue
		}
		d.FileName = resolveIn(dir, d.FileName)
		id := contract.FileID(d.FileName)
		p.byFile[id] = append(p.byFile[id], d)
	}
	return p, nil
}

// resolveIn 把 tsc 输出的文件名（可能相对于进程工作目录）规范为绝对形式。
func resolveIn(dir, name string) string {
	n := string(contract.NormalizeFileID(name))
	if path.IsAbs(n) || filepath.IsAbs(name) || dir == "" {
		return n
	}
	return string(contract.NormalizeFileID(path.Join(dir, n)))
}

// Output: 解析后的 tsc 输出。
type Output struct {
	Files       []string
	Diagnostics []contract.Diagnostic
}

var (
	fileDiag   = regexp.MustCompile(`^(.+)\((\d+),(\d+)\): error TS(\d+): (.*)$`)
	globalDiag = regexp.MustCompile(`^error TS(\d+): (.*)$`)
)

// ParseOutput 解析 --pretty false 与 --listFiles 的混合输出。
// 缩进行视为上一条诊断的续行。
func ParseOutput(out []byte) Output {
	var res Output
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := fileDiag.FindStringSubmatch(line); m != nil {
			l, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			code, _ := strconv.Atoi(m[4])
			res.Diagnostics = append(res.Diagnostics, contract.Diagnostic{
				Category: CategoryOf(code), FileName: string(contract.NormalizeFileID(m[1])),
				Line: l, Column: col, Code: code, Message: m[5],
			})
			continue
		}
		if m := globalDiag.FindStringSubmatch(line); m != nil {
			code, _ := strconv.Atoi(m[1])
			res.Diagnostics = append(res.Diagnostics, contract.Diagnostic{Category: CategoryOf(code), Code: code, Message: m[2]})
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(res.Diagnostics) > 0 {
			last := &res.Diagnostics[len(res.Diagnostics)-1]
			last.Message += "\n" + strings.TrimSpace(line)
			continue
		}
		if f := strings.TrimSpace(line); strings.ContainsAny(f, "/\\") {
			res.Files = append(res.Files, f)
		}
	}
	return res
}

// CategoryOf 按错误码区间归类：1xxx 语法、4xxx 声明、5xxx/6xxx 选项与发射，其余为语义。
func CategoryOf(code int) contract.DiagnosticCategory {
	switch {
	case code >= 1000 && code < 2000:
		return contract.CategorySyntactic
	case code >= 4000 && code < 5000:
		return contract.CategoryDeclaration
	case code >= 5000 && code < 7000:
		return contract.CategoryEmit
	default:
		return contract.CategorySemantic
	}
}

type program struct {
	fs     afero.Fs
	base   string
	outDir string
	files  []contract.SourceFile
	byFile map[contract.FileID][]contract.Diagnostic
	global []contract.Diagnostic
}

func (p *program) SourceFiles() []contract.SourceFile {
	return append([]contract.SourceFile(nil), p.files...)
}

// Emit 读取 outDir 下对应的声明输出；缺失即视为跳过发射。
// 全局诊断（无文件）随每次发射报告。
func (p *program) Emit(ctx context.Context, file contract.SourceFile) (contract.Emission, error) {
	if err := ctx.Err(); err != nil {
		return contract.Emission{}, err
	}
	em := contract.Emission{Diagnostics: append([]contract.Diagnostic(nil), p.global...)}
	for _, d := range p.byFile[contract.NormalizeFileID(file.FileName)] {
		if d.Category == contract.CategoryEmit {
			em.Diagnostics = append(em.Diagnostics, d)
		}
	}
	decl := moduleid.DeclarationName(string(contract.NormalizeFileID(file.FileName)))
	if !contract.Within(p.base, decl) {
		em.Skipped = true
		return em, nil
	}
	rel := strings.TrimPrefix(decl, strings.TrimSuffix(p.base, "/")+"/")
	b, err := afero.ReadFile(p.fs, path.Join(p.outDir, rel))
	if err != nil {
		if ok, exErr := afero.Exists(p.fs, path.Join(p.outDir, rel)); exErr == nil && !ok {
			em.Skipped = true
			return em, nil
		}
		return contract.Emission{}, err
	}
	em.Declarations = []contract.SourceFile{{FileName: decl, Text: string(b), IsDeclaration: true}}
	return em, nil
}

// Diagnostics 返回 semantic、syntactic、declaration 三类诊断（依此顺序）。
func (p *program) Diagnostics(file contract.SourceFile) []contract.Diagnostic {
	ds := p.byFile[contract.NormalizeFileID(file.FileName)]
	var out []contract.Diagnostic
	for _, cat := range []contract.DiagnosticCategory{contract.CategorySemantic, contract.CategorySyntactic, contract.CategoryDeclaration} {
		for _, d := range ds {
			if d.Category == cat {
				out = append(out, d)
			}
		}
	}
	return out
}

// Close 删除临时输出目录。
func (p *program) Close() error { return p.fs.RemoveAll(p.outDir) }

var _ contract.Compiler = (*Compiler)(nil)
