package contract

import "context"

// CompileOptions: 交给外部编译器的最小参数；其余构建配置由编译器实现自行解析。
type CompileOptions struct {
	BaseDir string
}

// Compiler: 外部类型检查编译器（黑盒）。
// 约束：
//  1. 不在内部起并发；
//  2. 解析/类型检查失败之外的诊断不以 error 返回，而是挂在 Program 上；
//  3. error 仅表示编译器本身无法运行（如可执行文件缺失）。
type Compiler interface {
	Compile(ctx context.Context, files []string, opts CompileOptions) (Program, error)
}

// Program: 一次编译的结果视图。
type Program interface {
	// SourceFiles 按编译器报告的顺序返回全部源文件（含 BaseDir 之外的库文件）。
	SourceFiles() []SourceFile
	// Emit 为单个非声明源文件发射声明文本。
	Emit(ctx context.Context, file SourceFile) (Emission, error)
	// Diagnostics 返回该文件的 semantic、syntactic、declaration 诊断（依此顺序）。
	Diagnostics(file SourceFile) []Diagnostic
}
