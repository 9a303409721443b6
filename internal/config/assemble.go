package config

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"dtsbundle/internal/pipeline"
	"dtsbundle/internal/sources"
	"dtsbundle/pkg/contract"
	"dtsbundle/pkg/exclude"
	"dtsbundle/pkg/moduleid"
	"dtsbundle/pkg/registry"
)

// Validate 对最小必要边界做静态校验；错误均归类为 ErrConfig。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: name not set", contract.ErrConfig)
	}
	if strings.TrimSpace(cfg.Out) == "" {
		return fmt.Errorf("%w: out not set", contract.ErrConfig)
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return fmt.Errorf("%w: base_dir cannot be empty", contract.ErrConfig)
	}
	if cfg.Main != "" && moduleid.IsRelative(cfg.Main) {
		return fmt.Errorf("%w: main must be a module id such as %s/index, got %q", contract.ErrConfig, cfg.Name, cfg.Main)
	}
	if _, err := ResolveEOL(cfg.EOL); err != nil {
		return err
	}
	for _, f := range cfg.Files {
		if f == "-" {
			return fmt.Errorf("%w: files cannot read from stdin", contract.ErrConfig)
		}
	}
	d := Defaults()
	if name := effName(cfg.Components.Compiler, d.Components.Compiler); registry.Compiler[name] == nil {
		return fmt.Errorf("%w: compiler %q not registered", contract.ErrConfig, name)
	}
	if name := effName(cfg.Components.Assembler, d.Components.Assembler); registry.Assembler[name] == nil {
		return fmt.Errorf("%w: assembler %q not registered", contract.ErrConfig, name)
	}
	if name := writerName(cfg); registry.Writer[name] == nil {
		return fmt.Errorf("%w: writer %q not registered", contract.ErrConfig, name)
	}
	return nil
}

// Env: 装配期依赖（文件系统、工作目录、标准输出）。
type Env struct {
	Fs afero.Fs
	// Dir: 解析相对路径（base_dir、out）的工作目录，必须为绝对路径。
	Dir    string
	Stdout io.Writer
}

// Assemble 构造 Components 与 Settings：解析输入文件、编译排除集合并按名称实例化组件。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(ctx context.Context, cfg Config, env Env) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	if env.Fs == nil {
		env.Fs = afero.NewOsFs()
	}
	eol, _ := ResolveEOL(cfg.EOL)
	base := AbsPath(env.Dir, cfg.BaseDir)

	ex, err := exclude.New(base, cfg.Exclude)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	files, err := sources.New(env.Fs, nil).Resolve(ctx, base, cfg.Files)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	renv := registry.Env{
		Fs:      env.Fs,
		Layout:  contract.Layout{BaseDir: base, Name: cfg.Name, EOL: eol, Indent: cfg.Indent},
		Exclude: ex,
		Stdout:  env.Stdout,
		Dir:     env.Dir,
	}
	d := Defaults()
	cn := effName(cfg.Components.Compiler, d.Components.Compiler)
	an := effName(cfg.Components.Assembler, d.Components.Assembler)
	wn := writerName(cfg)

	raw, err := Raw(cfg.Options.Compiler)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("%w: options.compiler: %v", contract.ErrConfig, err)
	}
	c, err := registry.Compiler[cn](renv, raw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	if raw, err = Raw(cfg.Options.Assembler); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("%w: options.assembler: %v", contract.ErrConfig, err)
	}
	a, err := registry.Assembler[an](renv, raw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	if raw, err = Raw(cfg.Options.Writer); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("%w: options.writer: %v", contract.ErrConfig, err)
	}
	w, err := registry.Writer[wn](renv, raw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 配置了 output_dir 时 out 相对于该目录，由 Writer 负责越界检查
	out := cfg.Out
	if dir, _ := cfg.Options.Writer["output_dir"].(string); out != "-" && dir == "" {
		out = AbsPath(env.Dir, out)
	}
	set := pipeline.Settings{
		BaseDir:      base,
		Name:         cfg.Name,
		Files:        files,
		Exclude:      ex,
		Main:         cfg.Main,
		Out:          contract.ArtifactID(out),
		References:   append([]string(nil), cfg.References...),
		Types:        append([]string(nil), cfg.Types...),
		EOL:          eol,
		Indent:       cfg.Indent,
		CompilerName: cn,
	}
	return pipeline.Components{Compiler: c, Assembler: a, Writer: w}, set, nil
}

// writerName: out 为 "-" 时总是使用 stdout。
func writerName(cfg Config) string {
	if cfg.Out == "-" {
		return "stdout"
	}
	return effName(cfg.Components.Writer, Defaults().Components.Writer)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
