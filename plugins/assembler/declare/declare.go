// Package declare 把单个声明文件包装为 `declare module '<id>' { ... }` 块。
//
// 外部模块文件经规则集改写（相对说明符解析为打包内模块标识、去除 declare 修饰符），
// 再整体缩进一层；环境（全局）声明文件原样输出。
package declare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"dtsbundle/pkg/contract"
	"dtsbundle/pkg/moduleid"
	"dtsbundle/pkg/rewrite"
	"dtsbundle/pkg/syntax"
)

// Options: 装配器选项。
type Options struct {
	// Quote: 改写后说明符使用的引号，' 或 "，默认 '。
	Quote string `json:"quote,omitempty"`
}

type assembler struct {
	layout contract.Layout
	ex     contract.Excluder
	quote  string
}

// New 创建装配器。layout 显式传入排版参数；ex 为 nil 时不排除任何文件。
func New(layout contract.Layout, ex contract.Excluder, raw json.RawMessage) (contract.Assembler, error) {
	var opt Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opt); err != nil {
			return nil, fmt.Errorf("%w: assembler options: %v", contract.ErrConfig, err)
		}
	}
	switch opt.Quote {
	case "":
		opt.Quote = "'"
	case "'", `"`:
	default:
		return nil, fmt.Errorf("%w: assembler quote must be ' or \", got %q", contract.ErrConfig, opt.Quote)
	}
	if layout.BaseDir == "" {
		return nil, fmt.Errorf("%w: assembler requires base dir", contract.ErrInvalidInput)
	}
	if layout.EOL == "" {
		layout.EOL = "\n"
	}
	if ex == nil {
		ex = contract.ExcludeNone{}
	}
	return &assembler{layout: layout, ex: ex, quote: opt.Quote}, nil
}

// Assemble 产出单个文件的输出块；排除命中时返回空 Reader。
func (a *assembler) Assemble(ctx context.Context, file contract.SourceFile) (io.Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if a.ex.Excluded(file.FileName) {
		return strings.NewReader(""), nil
	}
	id, err := moduleid.ID(a.layout.BaseDir, a.layout.Name, file.FileName)
	if err != nil {
		return nil, err
	}
	tree := syntax.Parse(file.FileName, file.Text)
	if !tree.IsExternalModule() {
		return strings.NewReader(file.Text), nil
	}
	content := rewrite.Rewrite(tree.Text, tree.Root, a.rules(id))

	var b strings.Builder
	b.Grow(len(content) + len(id) + 32)
	b.WriteString("declare module " + a.quoted(id) + " {")
	b.WriteString(a.layout.EOL)
	b.WriteString(a.layout.Indent)
	b.WriteString(IndentLines(content, a.layout.Indent))
	b.WriteString(a.layout.EOL)
	b.WriteString("}")
	b.WriteString(a.layout.EOL)
	return strings.NewReader(b.String()), nil
}

// rules 构造针对模块 id 的改写规则；按节点种类分派，默认递归。
func (a *assembler) rules(id string) rewrite.Rule[*syntax.Node] {
	return func(n *syntax.Node) (string, bool) {
		switch n.Kind {
		case syntax.KindExternalModuleReference:
			if sp := n.Specifier(); sp != nil && moduleid.IsRelative(sp.Value) {
				return "require(" + a.quoted(moduleid.Resolve(id, sp.Value)) + ")", true
			}
		case syntax.KindDeclareKeyword:
			return "", true
		case syntax.KindImportDeclaration:
			if s, ok := a.importDecl(id, n); ok {
				return s, true
			}
		case syntax.KindModuleSpecifier:
			if !moduleid.IsRelative(n.Value) || n.Parent == nil {
				return "", false
			}
			switch n.Parent.Kind {
			case syntax.KindImportDeclaration, syntax.KindExportDeclaration, syntax.KindImportType:
				return a.quoted(moduleid.Resolve(id, n.Value)), true
			}
		}
		return "", false
	}
}

// importDecl 以规范形式重写带绑定的 import 声明。
// 命名空间导入与无绑定导入不在此处理（递归后由说明符规则改写）。
func (a *assembler) importDecl(id string, n *syntax.Node) (string, bool) {
	c := n.Import
	sp := n.Specifier()
	if c == nil || sp == nil || n.Exported || c.Namespace != "" {
		return "", false
	}
	if c.Name == "" && !c.HasNamed {
		return "", false
	}
	var b strings.Builder
	b.WriteString("import ")
	if c.TypeOnly {
		b.WriteString("type ")
	}
	if c.Name != "" {
		b.WriteString(c.Name)
		if c.HasNamed {
			b.WriteString(", ")
		}
	}
	if c.HasNamed {
		names := make([]string, 0, len(c.Named))
		for _, s := range c.Named {
			names = append(names, s.String())
		}
		b.WriteString("{" + strings.Join(names, ", ") + "}")
	}
	b.WriteString(" from " + a.quoted(moduleid.Resolve(id, sp.Value)) + ";")
	return b.String(), true
}

func (a *assembler) quoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, a.quote, `\`+a.quote)
	return a.quote + s + a.quote
}

// IndentLines 在每个换行之后插入 indent，但跳过空行与文本末尾，避免产生行尾空白。
// 首行由调用方负责。
func IndentLines(s, indent string) string {
	if indent == "" || !strings.Contains(s, "\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + strings.Count(s, "\n")*len(indent))
	for i := 0; i < len(s); i++ {
		b.WriteByte(s[i])
		if s[i] != '\n' {
			continue
		}
		if next := i + 1; next < len(s) && s[next] != '\n' && s[next] != '\r' {
			b.WriteString(indent)
		}
	}
	return b.String()
}

var _ contract.Assembler = (*assembler)(nil)
