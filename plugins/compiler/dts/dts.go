// Package dts 是面向已有声明产物的编译器：直接读取 .d.ts 文件，
// 非声明源文件（.ts/.tsx/.mts/.cts）的"发射"即读取声明目录中对应的 .d.ts。
//
// 在 dependency 顺序下沿相对模块引用补全文件集合，并以后序（依赖在前）报告，
// 与类型检查编译器的遍历顺序保持一致。
package dts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/afero"

	"dtsbundle/pkg/contract"
	"dtsbundle/pkg/moduleid"
	"dtsbundle/pkg/syntax"
)

// Options 为 dts 编译器的可选配置。
type Options struct {
	// DeclarationDir: 预生成声明的根目录（相对 BaseDir 或绝对路径）；默认即 BaseDir（与源文件同目录）。
	DeclarationDir string `json:"declaration_dir,omitempty"`
	// Order: "dependency"（默认，沿相对引用补全并依赖在前）或 "input"（保持输入顺序）。
	Order string `json:"order,omitempty"`
}

// Compiler 实现 contract.Compiler。
type Compiler struct {
	fs      afero.Fs
	declDir string
	follow  bool
}

// New 创建 dts 编译器；fs 为 nil 时使用操作系统文件系统。
func New(fs afero.Fs, raw json.RawMessage) (*Compiler, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("%w: dts compiler options: %v", contract.ErrConfig, err)
		}
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	c := &Compiler{fs: fs, declDir: o.DeclarationDir}
	switch o.Order {
	case "", "dependency":
		c.follow = true
	case "input":
	default:
		return nil, fmt.Errorf("%w: dts compiler order must be dependency or input, got %q", contract.ErrConfig, o.Order)
	}
	return c, nil
}

// Compile 读取输入文件（及 dependency 模式下经相对引用可达的文件）。
// 输入文件不存在时返回 ErrPathInvalid。
func (c *Compiler) Compile(ctx context.Context, files []string, opts contract.CompileOptions) (contract.Program, error) {
	base := string(contract.NormalizeFileID(opts.BaseDir))
	declDir := base
	if c.declDir != "" {
		declDir = string(contract.NormalizeFileID(c.declDir))
		if !path.IsAbs(declDir) {
			declDir = path.Join(base, declDir)
		}
	}
	p := &program{c: c, base: base, declDir: declDir, seen: make(map[contract.FileID]bool)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := string(contract.NormalizeFileID(f))
		ok, err := afero.Exists(c.fs, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: file not found: %s", contract.ErrPathInvalid, f)
		}
		if err := p.visit(ctx, name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

type program struct {
	c       *Compiler
	base    string
	declDir string
	seen    map[contract.FileID]bool
	files   []contract.SourceFile
}

// visit 按后序收集文件：依赖先于引用者。
func (p *program) visit(ctx context.Context, name string) error {
	id := contract.NormalizeFileID(name)
	if p.seen[id] {
		return nil
	}
	p.seen[id] = true
	b, err := afero.ReadFile(p.c.fs, name)
	if err != nil {
		return err
	}
	sf := contract.SourceFile{FileName: name, Text: string(b), IsDeclaration: moduleid.IsDeclaration(name)}
	if p.c.follow {
		text := sf.Text
		if !sf.IsDeclaration {
			if decl, err := afero.ReadFile(p.c.fs, p.declPath(name)); err == nil {
				text = string(decl)
			}
		}
		for _, spec := range references(name, text) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if dep := p.locate(name, spec); dep != "" {
				if err := p.visit(ctx, dep); err != nil {
					return err
				}
			}
		}
	}
	p.files = append(p.files, sf)
	return nil
}

// references 收集文件中全部相对模块说明符（import/export/import 类型/require）。
func references(name, text string) []string {
	var out []string
	syntax.Walk(syntax.Parse(name, text).Root, func(n *syntax.Node) bool {
		if n.Kind == syntax.KindModuleSpecifier && moduleid.IsRelative(n.Value) {
			out = append(out, n.Value)
		}
		return true
	})
	return out
}

var candidateSuffixes = []string{".ts", ".tsx", ".d.ts", ".mts", ".d.mts", ".cts", ".d.cts", "/index.ts", "/index.tsx", "/index.d.ts"}

// locate 把相对说明符映射为存在的文件；找不到时返回空串（交由真正的编译器报告）。
func (p *program) locate(from, spec string) string {
	target := path.Join(path.Dir(from), strings.ReplaceAll(spec, "\\", "/"))
	for _, s := range []string{".js", ".mjs", ".cjs"} {
		if strings.HasSuffix(target, s) {
			target = strings.TrimSuffix(target, s)
			break
		}
	}
	for _, s := range candidateSuffixes {
		cand := target + s
		if ok, _ := afero.Exists(p.c.fs, cand); ok {
			if isDir, _ := afero.IsDir(p.c.fs, cand); !isDir {
				return cand
			}
		}
	}
	return ""
}

// declPath 返回源文件对应的预生成声明路径。
func (p *program) declPath(source string) string {
	decl := moduleid.DeclarationName(string(contract.NormalizeFileID(source)))
	if p.declDir == p.base || !contract.Within(p.base, decl) {
		return decl
	}
	return path.Join(p.declDir, strings.TrimPrefix(decl, strings.TrimSuffix(p.base, "/")+"/"))
}

func (p *program) SourceFiles() []contract.SourceFile {
	return append([]contract.SourceFile(nil), p.files...)
}

// Emit 读取预生成声明；缺失时报告跳过发射并附带 TS6053 诊断。
func (p *program) Emit(ctx context.Context, file contract.SourceFile) (contract.Emission, error) {
	if err := ctx.Err(); err != nil {
		return contract.Emission{}, err
	}
	if file.IsDeclaration {
		return contract.Emission{Declarations: []contract.SourceFile{file}}, nil
	}
	src := p.declPath(file.FileName)
	b, err := afero.ReadFile(p.c.fs, src)
	if err != nil {
		ok, exErr := afero.Exists(p.c.fs, src)
		if exErr != nil || ok {
			return contract.Emission{}, err
		}
		return contract.Emission{
			Skipped: true,
			Diagnostics: []contract.Diagnostic{{
				Category: contract.CategoryEmit,
				FileName: file.FileName,
				Code:     6053,
				Message:  fmt.Sprintf("File '%s' not found.", src),
			}},
		}, nil
	}
	return contract.Emission{Declarations: []contract.SourceFile{{
		FileName:      moduleid.DeclarationName(string(contract.NormalizeFileID(file.FileName))),
		Text:          string(b),
		IsDeclaration: true,
	}}}, nil
}

// Diagnostics: 预生成声明视为已通过类型检查。
func (p *program) Diagnostics(contract.SourceFile) []contract.Diagnostic { return nil }

var _ contract.Compiler = (*Compiler)(nil)
