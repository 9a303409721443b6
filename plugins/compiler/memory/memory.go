// Package memory 提供内存编译器：源文件、发射结果与诊断均由选项脚本化，
// 用于离线联调与驱动测试，不接触文件系统。
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"dtsbundle/pkg/contract"
	"dtsbundle/pkg/moduleid"
)

// Options: 脚本化的编译结果。
type Options struct {
	Files []File `json:"files"`
}

// File: 单个源文件脚本。
type File struct {
	Name string `json:"name"`
	// Text: 源文本；声明文件即为声明本身。
	Text string `json:"text"`
	// Declaration: 非声明文件 Emit 时产出的声明文本。
	Declaration string `json:"declaration,omitempty"`
	// Skip: Emit 时报告跳过发射。
	Skip        bool         `json:"skip,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Diagnostic: 脚本化诊断；Category 为 emit|semantic|syntactic|declaration。
type Diagnostic struct {
	Category string `json:"category"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
}

// Compiler: 内存编译器。
type Compiler struct {
	files []File

	mu      sync.Mutex
	emitted []string
}

// New 从原样 JSON 选项创建内存编译器（严格解码）。
func New(raw json.RawMessage) (*Compiler, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("%w: memory compiler options: %v", contract.ErrConfig, err)
		}
	}
	return NewFromFiles(o.Files...)
}

// NewFromFiles 直接以文件脚本创建（测试用）。
func NewFromFiles(files ...File) (*Compiler, error) {
	for _, f := range files {
		for _, d := range f.Diagnostics {
			if _, ok := contract.ParseCategory(d.Category); !ok {
				return nil, fmt.Errorf("%w: %s: unknown diagnostic category %q", contract.ErrConfig, f.Name, d.Category)
			}
		}
	}
	return &Compiler{files: files}, nil
}

// Emitted 返回按调用顺序记录的 Emit 文件名。
func (c *Compiler) Emitted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.emitted...)
}

// Compile 实现 contract.Compiler。请求的文件必须均已脚本化；
// 返回的源文件顺序即脚本顺序（模拟编译器的遍历顺序）。
func (c *Compiler) Compile(ctx context.Context, files []string, _ contract.CompileOptions) (contract.Program, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	known := make(map[contract.FileID]bool, len(c.files))
	for _, f := range c.files {
		known[contract.NormalizeFileID(f.Name)] = true
	}
	for _, f := range files {
		if !known[contract.NormalizeFileID(f)] {
			return nil, fmt.Errorf("%w: memory compiler has no file %s", contract.ErrInvalidInput, f)
		}
	}
	return &program{c: c}, nil
}

type program struct{ c *Compiler }

func (p *program) find(name string) (File, bool) {
	id := contract.NormalizeFileID(name)
	for _, f := range p.c.files {
		if contract.NormalizeFileID(f.Name) == id {
			return f, true
		}
	}
	return File{}, false
}

func (p *program) SourceFiles() []contract.SourceFile {
	out := make([]contract.SourceFile, 0, len(p.c.files))
	for _, f := range p.c.files {
		out = append(out, contract.SourceFile{FileName: f.Name, Text: f.Text, IsDeclaration: moduleid.IsDeclaration(f.Name)})
	}
	return out
}

func (p *program) Emit(ctx context.Context, file contract.SourceFile) (contract.Emission, error) {
	if err := ctx.Err(); err != nil {
		return contract.Emission{}, err
	}
	p.c.mu.Lock()
	p.c.emitted = append(p.c.emitted, file.FileName)
	p.c.mu.Unlock()

	f, ok := p.find(file.FileName)
	if !ok {
		return contract.Emission{}, fmt.Errorf("%w: memory compiler has no file %s", contract.ErrInvalidInput, file.FileName)
	}
	em := contract.Emission{Skipped: f.Skip, Diagnostics: p.diagnostics(f, true)}
	if !f.Skip {
		em.Declarations = []contract.SourceFile{{
			FileName:      moduleid.DeclarationName(f.Name),
			Text:          f.Declaration,
			IsDeclaration: true,
		}}
	}
	return em, nil
}

func (p *program) Diagnostics(file contract.SourceFile) []contract.Diagnostic {
	f, ok := p.find(file.FileName)
	if !ok {
		return nil
	}
	return p.diagnostics(f, false)
}

// diagnostics 按类别筛选：emit 为真时仅返回 emit 类别，否则按 semantic、syntactic、declaration 排序。
func (p *program) diagnostics(f File, emit bool) []contract.Diagnostic {
	var order []contract.DiagnosticCategory
	if emit {
		order = []contract.DiagnosticCategory{contract.CategoryEmit}
	} else {
		order = []contract.DiagnosticCategory{contract.CategorySemantic, contract.CategorySyntactic, contract.CategoryDeclaration}
	}
	var out []contract.Diagnostic
	for _, cat := range order {
		for _, d := range f.Diagnostics {
			if c, _ := contract.ParseCategory(d.Category); c == cat {
				out = append(out, contract.Diagnostic{
					Category: c, FileName: f.Name, Line: d.Line, Column: d.Column, Code: d.Code, Message: d.Message,
				})
			}
		}
	}
	return out
}

var _ contract.Compiler = (*Compiler)(nil)
