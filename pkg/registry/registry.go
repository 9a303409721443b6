package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"dtsbundle/pkg/contract"
	"dtsbundle/plugins/assembler/declare"
	"dtsbundle/plugins/compiler/dts"
	"dtsbundle/plugins/compiler/memory"
	"dtsbundle/plugins/compiler/tsc"
	wfs "dtsbundle/plugins/writer/filesystem"
	"dtsbundle/plugins/writer/stdout"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrConfig, err)
	}
	return nil
}

// Env: 组件构造时共享的只读环境，显式传递而非全局状态。
type Env struct {
	// Fs: 文件系统；nil 表示操作系统文件系统。
	Fs afero.Fs
	// Layout/Exclude: 装配器所需的排版参数与排除集合。
	Layout  contract.Layout
	Exclude contract.Excluder
	// Stdout: stdout Writer 的目标；nil 表示 os.Stdout。
	Stdout io.Writer
	// Dir: 调用方工作目录，外部进程（tsc）在此运行。
	Dir string
}

// NewCompiler 工厂签名：接收环境与原样 JSON Options。
type NewCompiler func(env Env, raw json.RawMessage) (contract.Compiler, error)

// NewAssembler 工厂签名：接收环境与原样 JSON Options。
type NewAssembler func(env Env, raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收环境与原样 JSON Options。
type NewWriter func(env Env, raw json.RawMessage) (contract.Writer, error)

// Compiler 工厂注册表（显式、零反射）。
var Compiler = map[string]NewCompiler{
	// tsc: 调用外部 tsc 发射声明
	"tsc": func(env Env, raw json.RawMessage) (contract.Compiler, error) {
		return tsc.New(env.Fs, nil, env.Dir, raw)
	},
	// dts: 读取已有声明产物
	"dts": func(env Env, raw json.RawMessage) (contract.Compiler, error) { return dts.New(env.Fs, raw) },
	// memory: 脚本化内存编译器（联调/测试）
	"memory": func(_ Env, raw json.RawMessage) (contract.Compiler, error) { return memory.New(raw) },
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// declare: 包装为 declare module 块并改写相对引用
	"declare": func(env Env, raw json.RawMessage) (contract.Assembler, error) {
		return declare.New(env.Layout, env.Exclude, raw)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(env Env, raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(env.Fs, &opts)
	},
	// stdout: 标准输出
	"stdout": func(env Env, raw json.RawMessage) (contract.Writer, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return stdout.New(env.Stdout), nil
	},
}
