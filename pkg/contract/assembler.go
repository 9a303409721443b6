package contract

import (
	"context"
	"io"
)

// Assembler: 将单个声明文件转换为零或一个输出块。
// 约束：
//  1. 排除集合命中时返回空 Reader；
//  2. 不引入跨文件状态；
//  3. 不直接写共享输出，由驱动按顺序拷贝。
type Assembler interface {
	Assemble(ctx context.Context, file SourceFile) (io.Reader, error)
}
