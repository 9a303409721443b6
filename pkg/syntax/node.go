// Package syntax 为声明文件（.d.ts）构建一棵只包含模块语义相关节点的语法树。
//
// 树只对外暴露封闭的节点种类集合（见 Kind）；其余语法作为普通语句整体跳过，
// 由改写器的读透步骤原样保留。每个节点记录原文字节区间 [Pos, End)，
// Pos 指向首个 token（不含前导空白与注释）。
package syntax

// Kind: 节点种类（封闭集合）。
type Kind int

const (
	KindSourceFile Kind = iota
	// KindStatement: 其余声明语句（interface/class/type/function/const 等）。
	KindStatement
	KindImportDeclaration
	// KindImportEquals: import x = require('...') / import x = A.B
	KindImportEquals
	// KindExportDeclaration: export * from '...' / export {..} [from '...']
	KindExportDeclaration
	// KindExportAssignment: export = x
	KindExportAssignment
	// KindModuleDeclaration: module/namespace/global 块。
	KindModuleDeclaration
	// KindDeclareKeyword: declare 修饰符（区间含其后的同行空白）。
	KindDeclareKeyword
	// KindExternalModuleReference: require('...')
	KindExternalModuleReference
	// KindImportType: 类型位置上的 import('...')
	KindImportType
	// KindModuleSpecifier: 作为模块说明符的字符串字面量。
	KindModuleSpecifier
)

var kindNames = [...]string{
	KindSourceFile:              "SourceFile",
	KindStatement:               "Statement",
	KindImportDeclaration:       "ImportDeclaration",
	KindImportEquals:            "ImportEquals",
	KindExportDeclaration:       "ExportDeclaration",
	KindExportAssignment:        "ExportAssignment",
	KindModuleDeclaration:       "ModuleDeclaration",
	KindDeclareKeyword:          "DeclareKeyword",
	KindExternalModuleReference: "ExternalModuleReference",
	KindImportType:              "ImportType",
	KindModuleSpecifier:         "ModuleSpecifier",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Node: 语法树节点。
type Node struct {
	Kind   Kind
	Pos    int
	End    int
	Parent *Node
	Nodes  []*Node

	// Exported: 语句带 export 修饰（含 export default）。
	Exported bool
	// Import: 仅 KindImportDeclaration 且存在导入子句时非空。
	Import *ImportClause
	// Value: 仅 KindModuleSpecifier，去引号后的说明符。
	Value string
}

// Span 实现 rewrite.Node。
func (n *Node) Span() (int, int) { return n.Pos, n.End }

// Children 实现 rewrite.Node。
func (n *Node) Children() []*Node { return n.Nodes }

// Specifier 返回直接子节点中的模块说明符；没有则为 nil。
func (n *Node) Specifier() *Node {
	for _, c := range n.Nodes {
		if c.Kind == KindModuleSpecifier {
			return c
		}
	}
	return nil
}

// ImportClause: import 声明的绑定部分。
type ImportClause struct {
	TypeOnly bool
	// Name: 默认绑定名，可为空。
	Name string
	// Namespace: `* as ns` 中的 ns，可为空。
	Namespace string
	// HasNamed: 出现了 `{...}`（即便为空）。
	HasNamed bool
	Named    []ImportSpecifier
}

// ImportSpecifier: `{ type? property as name }` 中的一项。
type ImportSpecifier struct {
	TypeOnly     bool
	PropertyName string
	Name         string
}

// String 还原绑定文本：`a`、`a as b`、`type a`。
func (s ImportSpecifier) String() string {
	out := s.Name
	if s.PropertyName != "" {
		out = s.PropertyName + " as " + s.Name
	}
	if s.TypeOnly {
		out = "type " + out
	}
	return out
}

// File: 单个声明文件的语法树。
type File struct {
	Name string
	Text string
	Root *Node
}

// Source 返回节点对应的原文。
func (f *File) Source(n *Node) string { return f.Text[n.Pos:n.End] }

// IsExternalModule 判断文件是否具有模块级 import/export 语义；
// 否则为环境（全局）声明文件，应原样输出。
func (f *File) IsExternalModule() bool {
	for _, s := range f.Root.Nodes {
		switch s.Kind {
		case KindImportDeclaration, KindExportDeclaration, KindExportAssignment:
			return true
		case KindImportEquals:
			if s.Exported {
				return true
			}
			for _, c := range s.Nodes {
				if c.Kind == KindExternalModuleReference {
					return true
				}
			}
		}
		if s.Exported {
			return true
		}
	}
	return false
}

// Walk 以前序遍历节点；fn 返回 false 时不进入其子节点。
func Walk(n *Node, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Nodes {
		Walk(c, fn)
	}
}
