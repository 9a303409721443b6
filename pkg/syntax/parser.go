package syntax

import "strings"

// Parse 解析声明文本。输入视为已由上游编译器校验；
// 遇到无法识别的语法时按语句整体跳过，不返回错误。
func Parse(name, text string) *File {
	p := &parser{src: text, toks: scan(text)}
	root := &Node{Kind: KindSourceFile, Pos: 0, End: len(text)}
	p.parseStatements(root, false)
	return &File{Name: name, Text: text, Root: root}
}

type parser struct {
	src     string
	toks    []token
	i       int
	lastEnd int
	prev    token
}

func (p *parser) peek(k int) token {
	if p.i+k < len(p.toks) {
		return p.toks[p.i+k]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) tok() token { return p.peek(0) }

func (p *parser) advance() token {
	t := p.tok()
	if t.kind != tokEOF {
		p.i++
		p.lastEnd = t.end
		p.prev = t
	}
	return t
}

// is 判断当前 token 是否为给定文本的标识符或标点（字符串字面量不算）。
func (p *parser) is(text string) bool { return isText(p.tok(), text) }

func isText(t token, text string) bool {
	return (t.kind == tokIdent || t.kind == tokPunct) && t.text == text
}

func (p *parser) eof() bool { return p.tok().kind == tokEOF }

// parseStatements 解析语句序列；inBlock 时止于（不消费）'}'。
func (p *parser) parseStatements(parent *Node, inBlock bool) {
	for !p.eof() {
		if p.is("}") {
			if inBlock {
				return
			}
			p.advance()
			continue
		}
		if p.is(";") {
			p.advance()
			continue
		}
		at := p.i
		n := p.parseStatement(parent)
		parent.Nodes = append(parent.Nodes, n)
		if p.i == at {
			p.advance()
		}
	}
}

func (p *parser) parseStatement(parent *Node) *Node {
	n := &Node{Kind: KindStatement, Pos: p.tok().pos, Parent: parent}
	defer func() { n.End = p.lastEnd }()

	if p.is("export") {
		next := p.peek(1)
		switch {
		case isText(next, "="):
			p.advance()
			n.Kind = KindExportAssignment
			p.skipRest(n, "")
			return n
		case isText(next, "*") || isText(next, "{"):
			p.advance()
			n.Kind = KindExportDeclaration
			p.skipRest(n, "")
			return n
		case isText(next, "type") && (isText(p.peek(2), "*") || isText(p.peek(2), "{")):
			p.advance()
			p.advance()
			n.Kind = KindExportDeclaration
			p.skipRest(n, "")
			return n
		case isText(next, "as"):
			// export as namespace X; 仅为 UMD 全局名，不构成模块语义
			p.skipRest(n, "")
			return n
		case isText(next, "import"):
			p.advance()
			n.Exported = true
			p.parseImport(n)
			return n
		case isText(next, "default"):
			p.advance()
			p.advance()
			n.Exported = true
		default:
			p.advance()
			n.Exported = true
		}
	}

	for p.atDeclareModifier() {
		p.declareKeyword(n)
	}

	switch {
	case p.is("import") && !isText(p.peek(1), "(") && !isText(p.peek(1), "."):
		p.parseImport(n)
	case p.atModuleKeyword():
		p.parseModule(n)
	default:
		p.skipRest(n, p.headKeyword())
	}
	return n
}

// atDeclareModifier: `declare` 后紧跟同行标识符时才是修饰符。
func (p *parser) atDeclareModifier() bool {
	next := p.peek(1)
	return p.is("declare") && next.kind == tokIdent && !next.nl
}

// declareKeyword 消费 declare 修饰符并挂到 n 下；区间吞掉其后的同行空白。
func (p *parser) declareKeyword(n *Node) {
	kw := p.advance()
	end := kw.end
	if next := p.tok(); strings.Trim(p.src[kw.end:next.pos], " \t") == "" {
		end = next.pos
	}
	n.Nodes = append(n.Nodes, &Node{Kind: KindDeclareKeyword, Pos: kw.pos, End: end, Parent: n})
}

var memberModifiers = map[string]bool{
	"public": true, "private": true, "protected": true, "static": true,
	"readonly": true, "override": true, "abstract": true,
}

// atMemberStart: 当前 token 位于类成员开头（或仅跟在访问修饰符之后）。
func (p *parser) atMemberStart() bool {
	if p.tok().nl {
		return true
	}
	prev := p.prev
	return isText(prev, "{") || isText(prev, ";") || isText(prev, "}") ||
		(prev.kind == tokIdent && memberModifiers[prev.text])
}

func (p *parser) atModuleKeyword() bool {
	next := p.peek(1)
	if next.nl {
		return false
	}
	switch {
	case p.is("module"):
		return next.kind == tokString || next.kind == tokIdent
	case p.is("namespace"):
		return next.kind == tokIdent
	case p.is("global"):
		return isText(next, "{")
	}
	return false
}

// headKeyword 跳过 abstract/default/async/const 等前缀，返回决定语句形态的关键字。
func (p *parser) headKeyword() string {
	for k := 0; ; k++ {
		t := p.peek(k)
		if t.kind != tokIdent {
			return ""
		}
		switch t.text {
		case "abstract", "default", "async", "const":
			continue
		}
		return t.text
	}
}

func (p *parser) parseModule(n *Node) {
	n.Kind = KindModuleDeclaration
	p.advance()
	for !p.eof() && !p.is("{") && !p.is(";") && !p.is("}") {
		p.advance()
	}
	switch {
	case p.is("{"):
		p.advance()
		p.parseStatements(n, true)
		if p.is("}") {
			p.advance()
		}
	case p.is(";"):
		p.advance()
	}
}

func (p *parser) parseImport(n *Node) {
	p.advance()
	n.Kind = KindImportDeclaration

	if p.tok().kind == tokString {
		n.Nodes = append(n.Nodes, p.specifier(n))
		p.skipRest(n, "")
		return
	}

	clause := &ImportClause{}
	if p.is("type") {
		next := p.peek(1)
		if isText(next, "{") || isText(next, "*") || (next.kind == tokIdent && next.text != "from") {
			clause.TypeOnly = true
			p.advance()
		}
	}

	if p.tok().kind == tokIdent && isText(p.peek(1), "=") {
		p.advance()
		p.advance()
		n.Kind = KindImportEquals
		if p.is("require") && isText(p.peek(1), "(") {
			n.Nodes = append(n.Nodes, p.externalReference(n))
		}
		p.skipRest(n, "")
		return
	}

	if p.tok().kind == tokIdent && !p.is("from") {
		clause.Name = p.advance().text
		if p.is(",") {
			p.advance()
		}
	}
	switch {
	case p.is("*"):
		p.advance()
		if p.is("as") {
			p.advance()
		}
		if p.tok().kind == tokIdent {
			clause.Namespace = p.advance().text
		}
	case p.is("{"):
		clause.HasNamed = true
		p.advance()
		clause.Named = p.importSpecifiers()
	}
	if p.is("from") {
		p.advance()
	}
	if p.tok().kind == tokString {
		n.Nodes = append(n.Nodes, p.specifier(n))
	}
	n.Import = clause
	p.skipRest(n, "")
}

// importSpecifiers 解析 `{ ... }` 内的绑定；无法得到名字的绑定被跳过。
func (p *parser) importSpecifiers() []ImportSpecifier {
	var out []ImportSpecifier
	for !p.eof() && !p.is("}") && !p.is(";") {
		if p.is(",") {
			p.advance()
			continue
		}
		var spec ImportSpecifier
		if p.is("type") {
			next := p.peek(1)
			if (next.kind == tokIdent || next.kind == tokString) && !isText(next, "as") {
				spec.TypeOnly = true
				p.advance()
			}
		}
		first := p.tok()
		if first.kind != tokIdent && first.kind != tokString {
			p.advance()
			continue
		}
		p.advance()
		spec.Name = first.text
		if p.is("as") {
			p.advance()
			if p.tok().kind != tokIdent {
				continue
			}
			spec.PropertyName = first.text
			spec.Name = p.advance().text
		}
		if first.kind == tokString && spec.PropertyName == "" {
			continue
		}
		out = append(out, spec)
	}
	if p.is("}") {
		p.advance()
	}
	return out
}

func (p *parser) specifier(parent *Node) *Node {
	t := p.advance()
	return &Node{Kind: KindModuleSpecifier, Pos: t.pos, End: t.end, Parent: parent, Value: t.value()}
}

// externalReference 解析 require('...')，当前 token 为 require。
func (p *parser) externalReference(parent *Node) *Node {
	ref := &Node{Kind: KindExternalModuleReference, Pos: p.tok().pos, Parent: parent}
	p.advance()
	p.advance()
	if p.tok().kind == tokString {
		ref.Nodes = append(ref.Nodes, p.specifier(ref))
	}
	p.closeParen()
	ref.End = p.lastEnd
	return ref
}

// importType 解析类型位置上的 import('...')，当前 token 为 import。
func (p *parser) importType(parent *Node) *Node {
	it := &Node{Kind: KindImportType, Pos: p.tok().pos, Parent: parent}
	p.advance()
	p.advance()
	it.Nodes = append(it.Nodes, p.specifier(it))
	p.closeParen()
	it.End = p.lastEnd
	return it
}

// closeParen 消费到与已消费的 '(' 匹配的 ')'。
func (p *parser) closeParen() {
	depth := 1
	for !p.eof() {
		switch {
		case p.is("(") || p.is("[") || p.is("{"):
			depth++
		case p.is(")") || p.is("]") || p.is("}"):
			depth--
		}
		p.advance()
		if depth == 0 {
			return
		}
	}
}

var blockHeads = map[string]bool{"interface": true, "class": true, "enum": true}

var statementStarts = map[string]bool{
	"import": true, "export": true, "declare": true, "interface": true, "class": true,
	"enum": true, "namespace": true, "module": true, "function": true, "const": true,
	"let": true, "var": true, "type": true, "abstract": true,
}

var continuations = map[string]bool{
	"=": true, "|": true, "&": true, ",": true, ":": true, "=>": true, ".": true,
	"?": true, "(": true, "[": true, "{": true, "<": true, "extends": true,
	"keyof": true, "typeof": true, "is": true, "as": true, "implements": true,
	"new": true, "readonly": true, "unique": true, "infer": true, "declare": true,
	"export": true, "default": true, "abstract": true, "async": true, "const": true,
}

// skipRest 消费语句剩余部分，同时收集其中的 import('...') 与 from '...'。
// 终止条件（深度 0）：';'（消费）、外层 '}'（不消费）、块型声明的主体闭合、
// 或换行后出现新语句起始关键字（自动分号插入的近似）。
// 类主体内成员级的 declare 修饰符同样产出 DeclareKeyword 节点。
func (p *parser) skipRest(n *Node, head string) {
	depth, angle := 0, 0
	bodied := blockHeads[head]
	inBody := false
	for !p.eof() {
		t := p.tok()
		if depth == 0 {
			if isText(t, ";") {
				p.advance()
				return
			}
			if isText(t, "}") {
				return
			}
			// 语句头（含 import 子句、require(...)）可能已在调用方消费
			if p.lastEnd > n.Pos && t.nl && p.startsStatement() && !continuations[p.prev.text] {
				return
			}
		}
		switch {
		case head == "class" && inBody && depth == 1 && p.atDeclareModifier() && p.atMemberStart():
			p.declareKeyword(n)
			continue
		case t.kind == tokIdent && t.text == "import" && isText(p.peek(1), "(") && p.peek(2).kind == tokString:
			n.Nodes = append(n.Nodes, p.importType(n))
			continue
		case t.kind == tokIdent && t.text == "from" && depth == 0 && p.peek(1).kind == tokString &&
			(n.Kind == KindExportDeclaration || n.Kind == KindImportDeclaration) && n.Specifier() == nil:
			p.advance()
			n.Nodes = append(n.Nodes, p.specifier(n))
			continue
		case isText(t, "{"):
			if depth == 0 && bodied && angle == 0 {
				inBody = true
			}
			depth++
		case isText(t, "(") || isText(t, "["):
			depth++
		case isText(t, ")") || isText(t, "]") || isText(t, "}"):
			if depth > 0 {
				depth--
			}
			if depth == 0 && inBody && isText(t, "}") {
				p.advance()
				return
			}
		case isText(t, "<") && bodied && !inBody && depth == 0:
			angle++
		case isText(t, ">") && angle > 0:
			angle--
		}
		p.advance()
	}
}

func (p *parser) startsStatement() bool {
	t := p.tok()
	if t.kind != tokIdent || !statementStarts[t.text] {
		return false
	}
	if t.text == "type" {
		return p.peek(1).kind == tokIdent
	}
	return true
}
