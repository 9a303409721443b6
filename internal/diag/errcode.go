package diag

import (
	"context"
	"errors"
	"io/fs"

	"dtsbundle/pkg/contract"
)

// Code 是最小错误分类代码。
// 用于日志归类；退出码由 ExitCode 单独决定。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeConfig    Code = "config"
	CodeEmit      Code = "emit"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrConfig) {
		return CodeConfig
	}
	if errors.Is(err, contract.ErrEmit) {
		return CodeEmit
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// 进程退出码。
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 3
)

// ExitCode 映射错误到退出码：配置错误为 3，其余失败为 1。
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Classify(err) == CodeConfig:
		return ExitConfig
	default:
		return ExitFailure
	}
}
