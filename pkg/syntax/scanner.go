package syntax

import (
	"unicode"
	"unicode/utf8"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokTemplate
	tokNumber
	tokPunct
)

// token: 词法单元。pos/end 为原文字节区间；nl 表示与前一个 token 之间存在换行。
type token struct {
	kind tokKind
	pos  int
	end  int
	text string
	nl   bool
}

// value 返回字符串字面量去引号后的内容（不处理转义以外的语义）。
func (t token) value() string {
	if t.kind != tokString || len(t.text) < 2 {
		return t.text
	}
	return unescape(t.text[1 : len(t.text)-1])
}

// scan 将声明文本切分为 token 序列（跳过空白与注释），末尾追加 EOF。
// 声明文件不含正则字面量，'/' 一律按标点处理。
func scan(src string) []token {
	s := scanner{src: src}
	var out []token
	for {
		t := s.next()
		out = append(out, t)
		if t.kind == tokEOF {
			return out
		}
	}
}

type scanner struct {
	src string
	i   int
}

func (s *scanner) next() token {
	nl := s.skipTrivia()
	start := s.i
	if s.i >= len(s.src) {
		return token{kind: tokEOF, pos: len(s.src), end: len(s.src), nl: nl}
	}
	c := s.src[s.i]
	kind := tokPunct
	switch {
	case c == '"' || c == '\'':
		s.scanQuoted(c)
		kind = tokString
	case c == '`':
		s.scanTemplate()
		kind = tokTemplate
	case c >= '0' && c <= '9':
		s.scanNumber()
		kind = tokNumber
	case isIdentStart(s.peekRune()):
		s.scanIdent()
		kind = tokIdent
	case c == '=' && s.at(1) == '>':
		s.i += 2
	case c == '.' && s.at(1) == '.' && s.at(2) == '.':
		s.i += 3
	default:
		_, w := utf8.DecodeRuneInString(s.src[s.i:])
		s.i += w
	}
	return token{kind: kind, pos: start, end: s.i, text: s.src[start:s.i], nl: nl}
}

func (s *scanner) at(off int) byte {
	if s.i+off < len(s.src) {
		return s.src[s.i+off]
	}
	return 0
}

func (s *scanner) peekRune() rune {
	r, _ := utf8.DecodeRuneInString(s.src[s.i:])
	return r
}

// skipTrivia 跳过空白与注释，返回其间是否出现换行。
func (s *scanner) skipTrivia() bool {
	nl := false
	for s.i < len(s.src) {
		c := s.src[s.i]
		switch {
		case c == '\n' || c == '\r':
			nl = true
			s.i++
		case c == ' ' || c == '\t' || c == '\f' || c == '\v':
			s.i++
		case c == '/' && s.at(1) == '/':
			for s.i < len(s.src) && s.src[s.i] != '\n' && s.src[s.i] != '\r' {
				s.i++
			}
		case c == '/' && s.at(1) == '*':
			s.i += 2
			for s.i < len(s.src) && !(s.src[s.i] == '*' && s.at(1) == '/') {
				if s.src[s.i] == '\n' || s.src[s.i] == '\r' {
					nl = true
				}
				s.i++
			}
			s.i += 2
			if s.i > len(s.src) {
				s.i = len(s.src)
			}
		case c >= utf8.RuneSelf:
			r, w := utf8.DecodeRuneInString(s.src[s.i:])
			if r == '\u2028' || r == '\u2029' {
				nl = true
			} else if !unicode.IsSpace(r) && r != '\uFEFF' {
				return nl
			}
			s.i += w
		default:
			return nl
		}
	}
	return nl
}

func (s *scanner) scanQuoted(q byte) {
	s.i++
	for s.i < len(s.src) {
		c := s.src[s.i]
		switch {
		case c == '\\':
			s.i += 2
		case c == q:
			s.i++
			return
		case c == '\n':
			// 未闭合字符串：止于行尾
			return
		default:
			s.i++
		}
	}
	if s.i > len(s.src) {
		s.i = len(s.src)
	}
}

// scanTemplate 扫描模板字面量（含 ${ } 嵌套与其中的字符串/模板）。
func (s *scanner) scanTemplate() {
	s.i++
	for s.i < len(s.src) {
		c := s.src[s.i]
		switch {
		case c == '\\':
			s.i += 2
		case c == '`':
			s.i++
			return
		case c == '$' && s.at(1) == '{':
			s.i += 2
			s.skipBalanced()
		default:
			s.i++
		}
	}
	if s.i > len(s.src) {
		s.i = len(s.src)
	}
}

// skipBalanced 跳到与已消费的 '{' 匹配的 '}' 之后。
func (s *scanner) skipBalanced() {
	depth := 1
	for s.i < len(s.src) && depth > 0 {
		c := s.src[s.i]
		switch c {
		case '{':
			depth++
			s.i++
		case '}':
			depth--
			s.i++
		case '"', '\'':
			s.scanQuoted(c)
		case '`':
			s.scanTemplate()
		default:
			s.i++
		}
	}
}

func (s *scanner) scanNumber() {
	for s.i < len(s.src) {
		c := s.src[s.i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '.' {
			s.i++
			continue
		}
		return
	}
}

func (s *scanner) scanIdent() {
	for s.i < len(s.src) {
		r, w := utf8.DecodeRuneInString(s.src[s.i:])
		if !isIdentPart(r) {
			return
		}
		s.i += w
	}
}

func isIdentStart(r rune) bool {
	return r == '$' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= utf8.RuneSelf && unicode.IsLetter(r))
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9') ||
		(r >= utf8.RuneSelf && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)))
}

func unescape(s string) string {
	if !containsByte(s, '\\') {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b = append(b, c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b = append(b, '\n')
		case 't':
			b = append(b, '\t')
		case 'r':
			b = append(b, '\r')
		case '0':
			b = append(b, 0)
		default:
			b = append(b, s[i])
		}
	}
	return string(b)
}

func containsByte(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}
