// Package sources 把配置中的输入条目解析为去重、顺序稳定的绝对文件列表。
//
// 条目可以是文件、目录或 glob 模式（相对 BaseDir）。未给出条目时扫描整个 BaseDir。
// 排除集合不在此处应用：被排除的文件仍需参与编译。
package sources

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"dtsbundle/pkg/contract"
	"dtsbundle/pkg/exclude"
)

// DefaultSkipDirs: 目录递归时跳过的目录名（基名完全匹配，大小写不敏感）。
var DefaultSkipDirs = []string{"node_modules", ".git"}

var sourceSuffixes = []string{".d.ts", ".d.mts", ".d.cts", ".ts", ".tsx", ".mts", ".cts"}

// IsSource 判断文件名是否为可编译的 TypeScript 输入。
func IsSource(name string) bool {
	for _, s := range sourceSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// Resolver 在给定文件系统上解析输入。
type Resolver struct {
	fs   afero.Fs
	skip map[string]struct{}
}

// New 创建 Resolver；skipDirs 为 nil 时使用 DefaultSkipDirs。
func New(fs afero.Fs, skipDirs []string) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if skipDirs == nil {
		skipDirs = DefaultSkipDirs
	}
	skip := make(map[string]struct{}, len(skipDirs))
	for _, d := range skipDirs {
		if d = strings.TrimSpace(d); d != "" {
			skip[strings.ToLower(d)] = struct{}{}
		}
	}
	return &Resolver{fs: fs, skip: skip}
}

// Resolve 返回绝对、规范化、去重后的文件列表（保持首次出现的顺序）。
// 显式文件不存在时返回 ErrPathInvalid；glob 无匹配不算错误。
func (r *Resolver) Resolve(ctx context.Context, baseDir string, entries []string) ([]string, error) {
	base := string(contract.NormalizeFileID(baseDir))
	if !path.IsAbs(base) {
		return nil, fmt.Errorf("%w: base dir must be absolute: %s", contract.ErrInvalidInput, baseDir)
	}
	if len(entries) == 0 {
		entries = []string{base}
	}
	var out []string
	seen := make(map[string]bool)
	add := func(name string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		return nil
	}

	for _, e := range entries {
		e = strings.TrimSpace(strings.ReplaceAll(e, "\\", "/"))
		if e == "" {
			continue
		}
		if exclude.IsPattern(e) {
			if err := r.expand(ctx, base, e, add); err != nil {
				return nil, err
			}
			continue
		}
		name := e
		if !path.IsAbs(name) {
			name = path.Join(base, name)
		}
		name = string(contract.NormalizeFileID(name))
		info, err := r.fs.Stat(name)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: input not found: %s", contract.ErrPathInvalid, e)
		}
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			if err := r.walkDir(ctx, name, add); err != nil {
				return nil, err
			}
			continue
		}
		if err := add(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// expand 在 BaseDir 下查找与模式匹配的源文件；绝对模式按绝对路径匹配。
func (r *Resolver) expand(ctx context.Context, base, pattern string, add func(string) error) error {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return fmt.Errorf("%w: file pattern %q: %v", contract.ErrConfig, pattern, err)
	}
	abs := path.IsAbs(pattern)
	prefix := strings.TrimSuffix(base, "/") + "/"
	return r.walkDir(ctx, base, func(name string) error {
		subject := name
		if !abs {
			subject = strings.TrimPrefix(name, prefix)
		}
		if g.Match(subject) {
			return add(name)
		}
		return nil
	})
}

// walkDir 以稳定顺序递归目录：先子目录、再文件，各自按字典序。
func (r *Resolver) walkDir(ctx context.Context, dir string, yield func(string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.skip[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, path.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.IsDir() || !e.Mode().IsRegular() || !IsSource(e.Name()) {
			continue
		}
		if err := yield(path.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
