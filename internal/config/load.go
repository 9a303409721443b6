package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dtsbundle/pkg/contract"
)

// FileName: 默认配置文件名（不含扩展名，支持 json/yaml/toml）。
const FileName = "dtsbundle"

// EnvPrefix: 环境变量前缀；嵌套键中的 '.' 映射为 '_'（例如 DTS_BUNDLE_LOGGING_LEVEL）。
const EnvPrefix = "DTS_BUNDLE"

// FlagKeys: CLI 标志名 → 配置键。
var FlagKeys = map[string]string{
	"name":      "name",
	"base-dir":  "base_dir",
	"exclude":   "exclude",
	"main":      "main",
	"out":       "out",
	"eol":       "eol",
	"indent":    "indent",
	"reference": "references",
	"types":     "types",
	"log-level": "logging.level",
	"compiler":  "components.compiler",
	"assembler": "components.assembler",
	"writer":    "components.writer",
}

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		BaseDir: ".",
		EOL:     "lf",
		Indent:  "\t",
		Logging: Logging{Level: "info"},
		Components: Components{
			Compiler:  "tsc",
			Assembler: "declare",
			Writer:    "fs",
		},
	}
}

// LoadOptions 控制配置来源。
type LoadOptions struct {
	// Fs: 读取配置文件的文件系统；nil 表示操作系统文件系统。
	Fs afero.Fs
	// ConfigFile: 显式配置文件；非空时必须存在。
	ConfigFile string
	// Dir: 未显式指定时搜索 dtsbundle.{json,yaml,toml} 的目录。
	Dir string
	// Flags: 绑定到配置键的 CLI 标志（仅显式设置的标志覆盖）。
	Flags *pflag.FlagSet
	// Files: 位置参数；非空时覆盖 files。
	Files []string
}

// Load 按 defaults < 配置文件 < 环境变量 < CLI 标志 分层解析配置。
// 返回实际使用的配置文件路径（未找到时为空）。所有错误均归类为 ErrConfig。
func Load(opts LoadOptions) (Config, string, error) {
	v := viper.New()
	if opts.Fs != nil {
		v.SetFs(opts.Fs)
	}

	d := Defaults()
	v.SetDefault("name", d.Name)
	v.SetDefault("base_dir", d.BaseDir)
	v.SetDefault("files", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("main", d.Main)
	v.SetDefault("out", d.Out)
	v.SetDefault("eol", d.EOL)
	v.SetDefault("indent", d.Indent)
	v.SetDefault("references", []string{})
	v.SetDefault("types", []string{})
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("components.compiler", d.Components.Compiler)
	v.SetDefault("components.assembler", d.Components.Assembler)
	v.SetDefault("components.writer", d.Components.Writer)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := ""
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("%w: read %s: %v", contract.ErrConfig, opts.ConfigFile, err)
		}
		resolved = opts.ConfigFile
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		v.SetConfigName(FileName)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return Config{}, "", fmt.Errorf("%w: read config: %v", contract.ErrConfig, err)
			}
		} else {
			resolved = v.ConfigFileUsed()
		}
	}

	if opts.Flags != nil {
		for flag, key := range FlagKeys {
			if f := opts.Flags.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, "", fmt.Errorf("%w: bind flag %s: %v", contract.ErrConfig, flag, err)
				}
			}
		}
	}
	if len(opts.Files) > 0 {
		v.Set("files", opts.Files)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("%w: parse config: %v", contract.ErrConfig, err)
	}
	cfg.Files = splitList(cfg.Files)
	cfg.Exclude = splitList(cfg.Exclude)
	cfg.References = splitList(cfg.References)
	cfg.Types = splitList(cfg.Types)
	return cfg, resolved, nil
}

// ResolveEOL 将 lf/crlf 映射为换行串；其余非空值按字面量使用。
func ResolveEOL(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", "lf":
		return "\n", nil
	case "crlf":
		return "\r\n", nil
	}
	if strings.Trim(s, "\r\n") != "" {
		return "", fmt.Errorf("%w: eol must be lf, crlf or a line terminator, got %q", contract.ErrConfig, s)
	}
	return s, nil
}

// AbsPath 将相对路径按 dir 解析为规范化的绝对路径。
func AbsPath(dir, p string) string {
	if !filepath.IsAbs(p) && !strings.HasPrefix(strings.ReplaceAll(p, "\\", "/"), "/") {
		p = filepath.Join(dir, p)
	}
	return string(contract.NormalizeFileID(p))
}

// splitList 去除空白项。环境变量中的逗号分隔串已由 viper 的解码钩子展开。
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
