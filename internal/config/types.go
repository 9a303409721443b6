package config

import "encoding/json"

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知顶层键在解析期失败。
type Config struct {
	// Name: 包名，所有模块标识的根（必填）。
	Name string `json:"name" mapstructure:"name"`
	// BaseDir: 模块标识的计算基准；相对路径按工作目录解析。
	BaseDir string `json:"base_dir" mapstructure:"base_dir"`
	// Files: 输入文件/目录/glob；为空时遍历 BaseDir。
	Files   []string `json:"files" mapstructure:"files"`
	Exclude []string `json:"exclude" mapstructure:"exclude"`
	// Main: 主模块标识；非空时在末尾追加别名块。
	Main string `json:"main" mapstructure:"main"`
	// Out: 输出文件；"-" 表示标准输出。
	Out string `json:"out" mapstructure:"out"`
	// EOL: lf | crlf | 字面量换行串。
	EOL        string   `json:"eol" mapstructure:"eol"`
	Indent     string   `json:"indent" mapstructure:"indent"`
	References []string `json:"references" mapstructure:"references"`
	Types      []string `json:"types" mapstructure:"types"`

	Logging Logging `json:"logging" mapstructure:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components" mapstructure:"components"`

	// 各组件 Options 子树，转为原样 JSON 传入工厂（严格解码在工厂层）。
	Options Options `json:"options" mapstructure:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" mapstructure:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Compiler  string `json:"compiler" mapstructure:"compiler"`
	Assembler string `json:"assembler" mapstructure:"assembler"`
	Writer    string `json:"writer" mapstructure:"writer"`
}

// Options: 各组件的 Options 子树。
type Options struct {
	Compiler  map[string]any `json:"compiler,omitempty" mapstructure:"compiler"`
	Assembler map[string]any `json:"assembler,omitempty" mapstructure:"assembler"`
	Writer    map[string]any `json:"writer,omitempty" mapstructure:"writer"`
}

// Raw 将 Options 子树转为原样 JSON；空子树返回 nil（工厂使用默认选项）。
func Raw(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}
