// Package moduleid 计算打包后的模块标识，并解析相对模块说明符。
//
// 模块标识格式（下游工具依赖的线协议）：
//
//	<包名>/<相对 BaseDir 的路径，去掉声明后缀>
//
// 无论宿主路径分隔符为何，始终以正斜杠分隔。
package moduleid

import (
	"fmt"
	"path"
	"strings"

	"dtsbundle/pkg/contract"
)

// declSuffixes 按匹配优先级排列；只剥离命中的第一个（且仅一次）。
var declSuffixes = []string{".d.ts", ".d.mts", ".d.cts", ".tsx", ".ts"}

// runtimeSuffixes: 相对说明符上允许出现的运行时扩展名（NodeNext 风格）。
var runtimeSuffixes = []string{".js", ".mjs", ".cjs"}

// ID 计算 fileName 的模块标识。fileName 必须是 baseDir 下的绝对路径，
// 否则返回 ErrPathInvalid（调用方保证，属编程错误）。
func ID(baseDir, pkg, fileName string) (string, error) {
	base := string(contract.NormalizeFileID(baseDir))
	file := string(contract.NormalizeFileID(fileName))
	if !contract.Within(base, file) {
		return "", fmt.Errorf("%w: %s not under %s", contract.ErrPathInvalid, fileName, baseDir)
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(file, base), "/")
	rel = TrimDeclSuffix(rel)
	if pkg == "" {
		return rel, nil
	}
	return strings.TrimSuffix(pkg, "/") + "/" + rel, nil
}

// TrimDeclSuffix 剥离恰好一个声明后缀。
func TrimDeclSuffix(name string) string {
	for _, s := range declSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSuffix(name, s)
		}
	}
	return name
}

// IsDeclaration 判断文件名是否为声明文件。
func IsDeclaration(name string) bool {
	for _, s := range declSuffixes[:3] {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// DeclarationName 返回源文件对应的声明文件名（同目录）；已是声明文件时原样返回。
func DeclarationName(source string) string {
	if IsDeclaration(source) {
		return source
	}
	for _, m := range [][2]string{{".tsx", ".d.ts"}, {".mts", ".d.mts"}, {".cts", ".d.cts"}, {".ts", ".d.ts"}} {
		if strings.HasSuffix(source, m[0]) {
			return strings.TrimSuffix(source, m[0]) + m[1]
		}
	}
	return source + ".d.ts"
}

// IsRelative 是"本包模块 vs 外部依赖"的唯一分派点：以 '.' 开头即为本包模块。
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, ".")
}

// Resolve 将 specifier 相对 containingID 的目录部分解析为打包内模块标识。
// 非相对说明符原样返回。
func Resolve(containingID, specifier string) string {
	if !IsRelative(specifier) {
		return specifier
	}
	spec := strings.ReplaceAll(specifier, "\\", "/")
	for _, s := range runtimeSuffixes {
		if strings.HasSuffix(spec, s) {
			spec = strings.TrimSuffix(spec, s)
			break
		}
	}
	return path.Join(path.Dir(containingID), spec)
}
