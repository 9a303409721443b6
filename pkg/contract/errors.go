package contract

import (
	"errors"
	"strings"
)

// 最小错误分类（用于退出码与日志归类）。
var (
	// ErrConfig: 构建配置缺失或非法；运行不会开始。
	ErrConfig = errors.New("configuration error")
	// ErrEmit: 编译器报告诊断或跳过发射。
	ErrEmit = errors.New("emission error")
	// ErrPathInvalid: 路径越界或无法映射（例如文件不在 BaseDir 下、'..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用方传入非法参数。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// EmitError: 单个失败文件的聚合诊断（四类诊断依次为 emit、semantic、syntactic、declaration）。
type EmitError struct {
	FileName    string
	Skipped     bool
	Diagnostics []Diagnostic
}

func (e *EmitError) Error() string {
	if len(e.Diagnostics) == 0 {
		if e.Skipped {
			return e.FileName + ": emit skipped"
		}
		return e.FileName + ": emit failed"
	}
	lines := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		lines = append(lines, d.Error())
	}
	return strings.Join(lines, "\n")
}

// Unwrap 使 errors.Is(err, ErrEmit) 成立，并暴露每条诊断。
func (e *EmitError) Unwrap() []error {
	out := make([]error, 0, len(e.Diagnostics)+1)
	out = append(out, ErrEmit)
	for _, d := range e.Diagnostics {
		out = append(out, d)
	}
	return out
}
