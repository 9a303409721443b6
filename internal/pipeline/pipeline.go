package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dtsbundle/internal/diag"
	"dtsbundle/pkg/contract"
	"dtsbundle/pkg/moduleid"
)

// - 单线程：逐文件、按编译器报告的顺序处理；输出文档只追加。
// - 唯一异步边界：Writer 在独立 goroutine 中消费管道；无论成功失败都关闭管道并等待其返回。
// - 首错即停：任一文件出现诊断或跳过发射，立即终止，不再处理后续文件；已写部分不回滚
//  （是否落盘由 Writer 决定，见 filesystem.Options.Atomic）。

// Components 聚合运行所需的组件。
type Components struct {
	Compiler  contract.Compiler
	Assembler contract.Assembler
	Writer    contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	// BaseDir: 绝对路径；其外的文件（标准库、外部项目）被整体跳过。
	BaseDir string
	// Name: 包名，主模块别名块的模块名。
	Name string
	// Files: 交给编译器的绝对文件列表（已去重）。
	Files []string
	// Exclude: 排除集合；命中的文件参与编译但不产出输出。
	Exclude contract.Excluder
	// Main: 非空时在末尾追加主模块别名块。
	Main string
	// Out: 输出工件标识，交给 Writer。
	Out contract.ArtifactID
	// References/Types: 文档开头的 /// <reference path|types="..." /> 指令。
	References []string
	Types      []string
	EOL        string
	Indent     string
	// CompilerName: 仅用于终端提示。
	CompilerName string
}

// Run 执行一次打包：Compiler → (逐文件) Emit → Assembler → Writer。
// 返回 nil 当且仅当所有文件处理完毕且 Writer 确认输出完整落地。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger, term *diag.Terminal) (err error) {
	if err := sanity(comp, &set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	runStart := time.Now()
	rtimer := logger.Start("pipeline", "run")

	ctimer := logger.Start("compiler", "compile")
	prog, err := comp.Compiler.Compile(ctx, set.Files, contract.CompileOptions{BaseDir: set.BaseDir})
	if err != nil {
		logger.ErrorWith("compiler", diag.Classify(err), "compile failed", ctimer.Since(), "", err)
		return fmt.Errorf("compile: %w", err)
	}
	sources := prog.SourceFiles()
	ctimer.Finish("compiled", int64(len(sources)))
	if c, ok := prog.(io.Closer); ok {
		defer func() { err = multierr.Append(err, c.Close()) }()
	}

	// 打开输出：单次 Writer.Write，以管道流式写出
	pr, pw := io.Pipe()
	wdone := make(chan error, 1)
	wtimer := logger.StartWith("writer", "write", string(set.Out))
	go func() {
		werr := comp.Writer.Write(ctx, set.Out, pr)
		// Writer 提前返回时，后续写入立即失败而不是阻塞
		if werr != nil {
			_ = pr.CloseWithError(werr)
		} else {
			_ = pr.CloseWithError(io.ErrClosedPipe)
		}
		wdone <- werr
	}()
	out := bufio.NewWriter(pw)

	included := filterIncluded(set, sources, logger)
	term.RunStart(len(included), set.CompilerName)
	written, runErr := emitAll(ctx, comp, set, prog, included, out, logger, term)

	// 无论成功失败都先冲刷已生成的字节，再结束管道并等待 Writer
	if ferr := out.Flush(); runErr == nil {
		runErr = ferr
	}
	if runErr != nil {
		_ = pw.CloseWithError(runErr)
	} else {
		_ = pw.Close()
	}
	werr := <-wdone
	if werr != nil && !errors.Is(runErr, werr) {
		logger.ErrorWith("writer", diag.Classify(werr), "write failed", wtimer.Since(), string(set.Out), werr)
		runErr = multierr.Append(runErr, fmt.Errorf("writer write: %w", werr))
	} else if werr == nil {
		wtimer.Finish("written", written)
	}
	term.RunFinish(runErr == nil, time.Since(runStart))
	if runErr != nil {
		logger.ErrorWith("pipeline", diag.Classify(runErr), "run failed", &runStart, "", runErr)
		return runErr
	}
	rtimer.Finish("run", int64(len(included)))
	return nil
}

// filterIncluded 保留 BaseDir 之下且未被排除的文件，保持编译器顺序。
func filterIncluded(set Settings, sources []contract.SourceFile, logger *diag.Logger) []contract.SourceFile {
	out := make([]contract.SourceFile, 0, len(sources))
	for _, file := range sources {
		if !contract.Within(set.BaseDir, file.FileName) {
			logger.Debug("pipeline", "outside base dir", zap.String("file_id", file.FileName))
			continue
		}
		if set.Exclude.Excluded(file.FileName) {
			logger.Debug("pipeline", "excluded", zap.String("file_id", file.FileName))
			continue
		}
		out = append(out, file)
	}
	return out
}

// emitAll 依次写出头部指令、逐文件块与主模块别名块，返回写出的字节数。
func emitAll(ctx context.Context, comp Components, set Settings, prog contract.Program, files []contract.SourceFile,
	out io.Writer, logger *diag.Logger, term *diag.Terminal) (int64, error) {
	cw := &countingWriter{w: out}
	if _, err := io.WriteString(cw, Header(set.References, set.Types, set.EOL)); err != nil {
		return cw.n, err
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return cw.n, err
		}
		term.FileStart(file.FileName)
		if err := emitOne(ctx, comp, prog, file, cw, logger); err != nil {
			term.FileFinish(false)
			return cw.n, err
		}
		term.FileFinish(true)
	}
	if set.Main != "" {
		if _, err := io.WriteString(cw, MainAlias(set.Name, set.Main, set.EOL, set.Indent)); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

func emitOne(ctx context.Context, comp Components, prog contract.Program, file contract.SourceFile, out io.Writer, logger *diag.Logger) error {
	decls := []contract.SourceFile{file}
	if !file.IsDeclaration {
		etimer := logger.StartWith("compiler", "emit", file.FileName)
		em, err := prog.Emit(ctx, file)
		if err != nil {
			logger.ErrorWith("compiler", diag.Classify(err), "emit failed", etimer.Since(), file.FileName, err)
			return fmt.Errorf("emit %s: %w", file.FileName, err)
		}
		diags := append(append([]contract.Diagnostic(nil), em.Diagnostics...), prog.Diagnostics(file)...)
		if em.Skipped || len(diags) > 0 {
			eerr := &contract.EmitError{FileName: file.FileName, Skipped: em.Skipped, Diagnostics: diags}
			logger.ErrorWith("compiler", diag.CodeEmit, "diagnostics reported", etimer.Since(), file.FileName, eerr)
			return eerr
		}
		etimer.Finish("emitted", int64(len(em.Declarations)))
		decls = em.Declarations
	}
	for _, d := range decls {
		atimer := logger.StartWith("assembler", "assemble", d.FileName)
		r, err := comp.Assembler.Assemble(ctx, d)
		if err != nil {
			logger.ErrorWith("assembler", diag.Classify(err), "assemble failed", atimer.Since(), d.FileName, err)
			return fmt.Errorf("assemble %s: %w", d.FileName, err)
		}
		n, err := io.Copy(out, r)
		if err != nil {
			return err
		}
		atimer.Finish("assembled", n)
	}
	return nil
}

// Header 生成开头的引用指令：先 path，后 types。
func Header(references, types []string, eol string) string {
	var b strings.Builder
	for _, r := range references {
		b.WriteString(`/// <reference path="` + r + `" />` + eol)
	}
	for _, t := range types {
		b.WriteString(`/// <reference types="` + t + `" />` + eol)
	}
	return b.String()
}

// MainAlias 生成把包名指向主模块的别名块。
func MainAlias(name, main, eol, indent string) string {
	return "declare module '" + name + "' {" + eol +
		indent + "import main = require('" + main + "');" + eol +
		indent + "export = main;" + eol +
		"}" + eol
}

func sanity(comp Components, set *Settings) error {
	if comp.Compiler == nil || comp.Assembler == nil || comp.Writer == nil {
		return fmt.Errorf("%w: missing component", contract.ErrInvalidInput)
	}
	if strings.TrimSpace(set.Name) == "" {
		return fmt.Errorf("%w: package name is empty", contract.ErrInvalidInput)
	}
	set.BaseDir = string(contract.NormalizeFileID(set.BaseDir))
	if !path.IsAbs(set.BaseDir) {
		return fmt.Errorf("%w: base dir must be absolute: %q", contract.ErrInvalidInput, set.BaseDir)
	}
	if strings.TrimSpace(string(set.Out)) == "" {
		return fmt.Errorf("%w: output is empty", contract.ErrInvalidInput)
	}
	if set.EOL == "" {
		set.EOL = "\n"
	}
	if set.Exclude == nil {
		set.Exclude = contract.ExcludeNone{}
	}
	if set.Main != "" && moduleid.IsRelative(set.Main) {
		return fmt.Errorf("%w: main must be a module id, got %q", contract.ErrInvalidInput, set.Main)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
