package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识（通常为输出文件名）。
type ArtifactID = FileID

// Writer: 将整份输出文档以流式方式持久化到目标介质。
// 约束：
//  1. 单写者；
//  2. 流式写入，按字节透传，不读取/修改内容；
//  3. r 以错误结束时必须返回该错误（由实现决定是否保留已写部分）；
//  4. ctx 取消/超时需尽快返回；错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
