// Package stdout 把输出文档流式写到标准输出（out 为 "-" 时使用）。
package stdout

import (
	"bufio"
	"context"
	"io"
	"os"

	"dtsbundle/pkg/contract"
)

// Writer 忽略 ArtifactID，按字节透传到目标流。
type Writer struct {
	w io.Writer
}

// New 创建写往 w 的 Writer；w 为 nil 时使用 os.Stdout。
func New(w io.Writer) *Writer {
	if w == nil {
		w = os.Stdout
	}
	return &Writer{w: w}
}

// Write 实现 contract.Writer。流式输出无法回滚，出错时已写部分保留。
func (s *Writer) Write(ctx context.Context, _ contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bw := bufio.NewWriter(s.w)
	if _, err := io.Copy(bw, r); err != nil {
		_ = bw.Flush()
		return err
	}
	return bw.Flush()
}

var _ contract.Writer = (*Writer)(nil)
