// Package exclude 实现排除集合：显式文件路径与 glob 模式（相对 BaseDir）。
package exclude

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"

	"dtsbundle/pkg/contract"
)

// Set: 排除集合。构造后只读，可并发查询。
type Set struct {
	base     string
	explicit map[contract.FileID]struct{}
	patterns []glob.Glob
	sources  []string
}

// New 编译排除模式。含通配元字符（* ? [ {）的条目按 glob 处理，
// 相对模式匹配 BaseDir 下的相对路径，绝对模式匹配绝对路径；
// 其余条目视为文件路径（相对路径以 BaseDir 为根）。
func New(baseDir string, patterns []string) (*Set, error) {
	s := &Set{
		base:     string(contract.NormalizeFileID(baseDir)),
		explicit: make(map[contract.FileID]struct{}),
	}
	for _, p := range patterns {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
		if p == "" {
			continue
		}
		if !IsPattern(p) {
			s.Add(s.abs(p))
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: exclude pattern %q: %v", contract.ErrConfig, p, err)
		}
		s.patterns = append(s.patterns, g)
		s.sources = append(s.sources, p)
	}
	return s, nil
}

// IsPattern 判断条目是否含 glob 元字符。
func IsPattern(p string) bool { return strings.ContainsAny(p, "*?[{") }

// Add 追加一个显式排除文件（调用方已展开的绝对路径）。
func (s *Set) Add(fileName string) {
	s.explicit[contract.NormalizeFileID(fileName)] = struct{}{}
}

// Patterns 返回已编译的模式原文（用于日志）。
func (s *Set) Patterns() []string { return append([]string(nil), s.sources...) }

// Excluded 实现 contract.Excluder。
func (s *Set) Excluded(fileName string) bool {
	if s == nil {
		return false
	}
	id := contract.NormalizeFileID(s.abs(fileName))
	if _, ok := s.explicit[id]; ok {
		return true
	}
	if len(s.patterns) == 0 {
		return false
	}
	rel := ""
	if contract.Within(s.base, string(id)) {
		rel = strings.TrimPrefix(string(id), strings.TrimSuffix(s.base, "/")+"/")
	}
	for i, g := range s.patterns {
		if path.IsAbs(s.sources[i]) {
			if g.Match(string(id)) {
				return true
			}
			continue
		}
		if rel != "" && g.Match(rel) {
			return true
		}
	}
	return false
}

func (s *Set) abs(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if path.IsAbs(p) || s.base == "" {
		return p
	}
	return path.Join(s.base, p)
}

var _ contract.Excluder = (*Set)(nil)
