package contract

import (
	"fmt"
	"strings"
)

// FileID: 逻辑文件ID（规范化路径，跨平台一致，正斜杠分隔）。
type FileID string

// SourceFile: 编译器产出的单个源文件记录。
// 约束：
// - FileName 为绝对路径；
// - Text 为原始声明文本（对 IsDeclaration=false 的源文件可为空，仅用于触发发射）；
// - 获取后只读，单次运行内消费一次。
type SourceFile struct {
	FileName      string
	Text          string
	IsDeclaration bool
}

// DiagnosticCategory: 诊断来源的四个类别。
type DiagnosticCategory int

const (
	CategoryEmit DiagnosticCategory = iota
	CategorySemantic
	CategorySyntactic
	CategoryDeclaration
)

func (c DiagnosticCategory) String() string {
	switch c {
	case CategoryEmit:
		return "emit"
	case CategorySemantic:
		return "semantic"
	case CategorySyntactic:
		return "syntactic"
	case CategoryDeclaration:
		return "declaration"
	default:
		return "unknown"
	}
}

// ParseCategory 解析类别名（大小写不敏感）。
func ParseCategory(s string) (DiagnosticCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emit":
		return CategoryEmit, true
	case "semantic", "":
		return CategorySemantic, true
	case "syntactic":
		return CategorySyntactic, true
	case "declaration":
		return CategoryDeclaration, true
	}
	return 0, false
}

// Diagnostic: 编译器报告的结构化诊断。Line/Column 为 1 起始；0 表示无位置。
type Diagnostic struct {
	Category DiagnosticCategory
	FileName string
	Line     int
	Column   int
	Code     int
	Message  string
}

// Error 输出 `file(line,col): error TS<code>: message`。
func (d Diagnostic) Error() string {
	var b strings.Builder
	if d.FileName != "" {
		b.WriteString(d.FileName)
		if d.Line > 0 {
			fmt.Fprintf(&b, "(%d,%d)", d.Line, d.Column)
		}
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "error TS%d: %s", d.Code, d.Message)
	return b.String()
}

// Emission: 单个源文件的发射结果。
type Emission struct {
	// Declarations: 发射得到的声明文件（按编译器写出顺序）。
	Declarations []SourceFile
	// Diagnostics: 仅发射阶段（emit 类别）的诊断。
	Diagnostics []Diagnostic
	// Skipped: 编译器跳过了该文件的发射。
	Skipped bool
}

// Layout: 装配期的只读排版参数，显式传递而非全局状态。
type Layout struct {
	// BaseDir: 绝对路径；模块标识相对于它计算。
	BaseDir string
	// Name: 包名，所有模块标识的根。
	Name string
	// EOL/Indent: 行终止符与缩进串。
	EOL    string
	Indent string
}

// Excluder: 排除集合。命中的文件仍参与编译，但不产出任何输出字节。
type Excluder interface {
	Excluded(fileName string) bool
}

// ExcludeNone: 空排除集合。
type ExcludeNone struct{}

func (ExcludeNone) Excluded(string) bool { return false }
