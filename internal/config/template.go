package config

// DefaultTemplateConfig 返回一个可直接编辑的默认配置模板：
// - 编译器使用 tsc，输出写入 dist/index.d.ts；
// - 组件名采用仓库内置实现；
// - 选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Name:       "my-package",
		BaseDir:    "src",
		Files:      []string{},
		Exclude:    []string{"**/*.spec.ts", "**/*.test.ts"},
		Main:       "my-package/index",
		Out:        "dist/index.d.ts",
		EOL:        d.EOL,
		Indent:     d.Indent,
		References: []string{},
		Types:      []string{},
		Logging:    d.Logging,
		Components: d.Components,
	}
	cfg.Options.Compiler = map[string]any{
		"binary":  "tsc",
		"project": "",
		"args":    []string{},
	}
	cfg.Options.Assembler = map[string]any{
		"quote": "'",
	}
	cfg.Options.Writer = map[string]any{
		"output_dir": "",
		"atomic":     true,
		"perm_file":  0,
		"perm_dir":   0,
		"buf_size":   65536,
	}
	return cfg
}
