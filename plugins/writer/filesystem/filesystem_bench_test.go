package filesystem

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"dtsbundle/pkg/contract"
)

// 以重复的 declare module 块模拟产物，对比原子与非原子写出。
func BenchmarkWriteBundle(b *testing.B) {
	block := "declare module 'lib/m' {\n\texport const x: number;\n}\n"
	for _, blocks := range []int{100, 10000} {
		for _, atomic := range []bool{true, false} {
			name := fmt.Sprintf("blocks=%d/atomic=%v", blocks, atomic)
			b.Run(name, func(b *testing.B) {
				doc := strings.Repeat(block, blocks)
				at := atomic
				w, err := New(afero.NewMemMapFs(), &Options{OutputDir: "/dist", Atomic: &at})
				if err != nil {
					b.Fatalf("创建 Writer 失败: %v", err)
				}
				id := contract.ArtifactID("index.d.ts")
				ctx := context.Background()
				b.SetBytes(int64(len(doc)))
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := w.Write(ctx, id, strings.NewReader(doc)); err != nil {
						b.Fatalf("写入失败: %v", err)
					}
				}
			})
		}
	}
}
