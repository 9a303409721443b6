// Package rewrite 提供保留原文的语法树改写组合子。
//
// 输出与原文逐字节一致，只有规则返回替换文本的节点被整体替换；
// 被替换节点的子孙不会再被访问。组合子本身不携带任何领域知识。
package rewrite

import "strings"

// Node: 可改写的语法节点。Span 返回 [pos, end) 字节区间（pos 不含前导空白/注释）。
type Node[T any] interface {
	Span() (pos, end int)
	Children() []T
}

// Rule: 返回 (替换文本, true) 表示消费整个节点；返回 false 表示递归进入子节点。
type Rule[T any] func(n T) (string, bool)

// Rewrite 以前序深度优先遍历 root，拼接 读透片段 + 替换文本 + 尾部剩余原文。
// 不变量：所有片段恰好覆盖 src，无缺口、无重叠。
func Rewrite[T Node[T]](src string, root T, rule Rule[T]) string {
	w := walker[T]{src: src, rule: rule}
	w.b.Grow(len(src))
	w.visit(root)
	w.readThrough(len(src))
	return w.b.String()
}

type walker[T Node[T]] struct {
	src    string
	rule   Rule[T]
	cursor int
	b      strings.Builder
}

func (w *walker[T]) visit(n T) {
	pos, end := n.Span()
	w.readThrough(pos)
	if repl, ok := w.rule(n); ok {
		w.b.WriteString(repl)
		w.skipTo(end)
		return
	}
	for _, c := range n.Children() {
		w.visit(c)
	}
}

// readThrough 拷贝 [cursor, to) 的原文并推进游标；to 落后于游标时不做任何事。
func (w *walker[T]) readThrough(to int) {
	to = clamp(to, len(w.src))
	if to <= w.cursor {
		return
	}
	w.b.WriteString(w.src[w.cursor:to])
	w.cursor = to
}

func (w *walker[T]) skipTo(end int) {
	end = clamp(end, len(w.src))
	if end > w.cursor {
		w.cursor = end
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
