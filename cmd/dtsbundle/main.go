package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	cfgpkg "dtsbundle/internal/config"
	"dtsbundle/internal/diag"
	"dtsbundle/internal/pipeline"
	"dtsbundle/pkg/contract"
)

var pipelineRun = pipeline.Run

// logDir: 日志目录（相对工作目录），按大小轮转。
const logDir = "logs"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行 CLI 并返回退出码：0 成功，1 运行失败，3 配置错误。
func run(args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := gotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return diag.ExitOK
	}
	// cobra 自身的用法错误（未知标志、参数个数）视为配置错误
	if !isRunError(err) {
		fprintf(stderr, "参数错误: %v\n", err)
		return diag.ExitConfig
	}
	code := diag.ExitCode(err)
	switch {
	case errors.Is(err, context.Canceled):
	case code == diag.ExitConfig:
		fprintf(stderr, "配置错误: %v\n", err)
	default:
		fprintf(stderr, "运行失败: %v\n", err)
	}
	return code
}

// runError 标记已进入运行阶段的错误，以区别于 cobra 的用法错误。
type runError struct{ err error }

func (e runError) Error() string { return e.err.Error() }
func (e runError) Unwrap() error { return e.err }

func isRunError(err error) bool {
	var re runError
	return errors.As(err, &re)
}

type rootFlags struct {
	config string
	status bool
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:   "dtsbundle [files...]",
		Short: "Bundle TypeScript declaration files into a single .d.ts",
		Long: `Bundle the declaration output of a TypeScript project into one file.

Every external module becomes a "declare module '<name>/<path>'" block with
relative specifiers rewritten to module ids; ambient files are copied verbatim.

Configuration layers: defaults < dtsbundle.{json,yaml,toml} < DTS_BUNDLE_* env < flags.

Examples:
  dtsbundle --name lib --base-dir src --out dist/lib.d.ts
  dtsbundle --config build/dtsbundle.json src/index.ts
  dtsbundle --compiler dts --out - > lib.d.ts`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runBundle(cmd, args, f, stdout, stderr)
			if err != nil {
				return runError{err: err}
			}
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（json/yaml/toml）；缺省读取 ./dtsbundle.*（若存在）")
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 逐行输出")
	fl.String("name", "", "包名，所有模块标识的根")
	fl.String("base-dir", "", "模块标识的基准目录")
	fl.StringSlice("exclude", nil, "排除的文件或 glob（可重复）")
	fl.String("main", "", "主模块标识，例如 lib/index")
	fl.String("out", "", "输出文件；- 表示标准输出")
	fl.String("eol", "", "换行：lf | crlf")
	fl.String("indent", "", "缩进串（默认制表符）")
	fl.StringSlice("reference", nil, "/// <reference path> 指令（可重复）")
	fl.StringSlice("types", nil, "/// <reference types> 指令（可重复）")
	fl.String("log-level", "", "日志等级：debug | info | warn | error")
	fl.String("compiler", "", "编译器实现：tsc | dts | memory")
	fl.String("assembler", "", "装配器实现：declare")
	fl.String("writer", "", "输出实现：fs | stdout")

	cmd.AddCommand(newInitCommand(stdout))
	return cmd
}

func runBundle(cmd *cobra.Command, args []string, f rootFlags, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, used, err := cfgpkg.Load(cfgpkg.LoadOptions{ConfigFile: f.config, Dir: cwd, Flags: cmd.Flags(), Files: args})
	if err != nil {
		return err
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		// 打印有效配置，便于诊断
		_ = dumpConfig(stderr, cfg)
		return err
	}

	rot := diag.NewRotatingFile(nil, filepath.Join(cwd, logDir), 0)
	defer rot.Close()
	logger := diag.NewLoggerTo(rot, genCorrID(), cfg.Logging.Level)
	defer func() { _ = logger.Sync() }()
	logger.Debug("config", "effective",
		zap.String("config_file", used),
		zap.String("name", cfg.Name),
		zap.String("base_dir", cfg.BaseDir),
		zap.Int("files", len(cfg.Files)),
		zap.Strings("exclude", cfg.Exclude),
		zap.String("out", cfg.Out),
		zap.String("compiler", cfg.Components.Compiler),
		zap.String("assembler", cfg.Components.Assembler),
		zap.String("writer", cfg.Components.Writer),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	comp, set, err := cfgpkg.Assemble(ctx, cfg, cfgpkg.Env{Dir: cwd, Stdout: stdout})
	if err != nil {
		logger.ErrorWith("config", diag.Classify(err), "assemble failed", nil, "", err)
		if !errors.Is(err, contract.ErrConfig) {
			err = fmt.Errorf("%w: %w", contract.ErrConfig, err)
		}
		return err
	}

	term := diag.NewTerminal(stderr, f.status)
	return pipelineRun(ctx, comp, set, logger, term)
}

func newInitCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a template dtsbundle.json (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return runError{err: fmt.Errorf("%w: %w", contract.ErrConfig, err)}
			}
			path := filepath.Join(dir, cfgpkg.FileName+".json")
			created, err := writeConfig(path, cfgpkg.DefaultTemplateConfig())
			if err != nil {
				return runError{err: fmt.Errorf("%w: %w", contract.ErrConfig, err)}
			}
			if created {
				fprintf(stdout, "已生成 %s\n", path)
			} else {
				fprintf(stdout, "已存在，跳过 %s\n", path)
			}
			return nil
		},
	}
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = w.Write(append([]byte("有效配置:\n"), b...))
	_, _ = w.Write([]byte("\n"))
	return nil
}

// writeConfig 写出模板；文件已存在时不覆盖并返回 created=false。
func writeConfig(path string, c cfgpkg.Config) (bool, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return false, err
	}
	return true, nil
}

func genCorrID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}
