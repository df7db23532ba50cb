package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// 默认语言执行器：解释器/工具链子进程 + stdin喂入 + stdout捕获。
// 内存上限属于尽力而为：支持上限参数的运行时传递参数，
// 实际峰值占用统一通过rusage回报

const outputLimit = 64 * 1024

// defaultRunner 返回某语言的内置执行器
func defaultRunner(language string) (Runner, bool) {
	switch strings.ToLower(language) {
	case "python":
		return &processRunner{
			fileName: "main.py",
			argv: func(dir string, memMB int) []string {
				return []string{"python3", filepath.Join(dir, "main.py")}
			},
		}, true
	case "javascript":
		return &processRunner{
			fileName: "main.js",
			argv: func(dir string, memMB int) []string {
				return []string{"node", fmt.Sprintf("--max-old-space-size=%d", memMB),
					filepath.Join(dir, "main.js")}
			},
		}, true
	case "go":
		return &processRunner{
			fileName: "main.go",
			argv: func(dir string, memMB int) []string {
				return []string{"go", "run", filepath.Join(dir, "main.go")}
			},
		}, true
	default:
		return nil, false
	}
}

// processRunner 子进程执行器
type processRunner struct {
	fileName string
	argv     func(dir string, memMB int) []string
}

// Prepare 把提交的代码写入沙箱目录
func (r *processRunner) Prepare(dir, code string) error {
	return os.WriteFile(filepath.Join(dir, r.fileName), []byte(code), 0o600)
}

// Run 执行一次，stdin喂入用例输入
func (r *processRunner) Run(ctx context.Context, dir, input string, memoryLimitMB int) (*RunResult, error) {
	argv := r.argv(dir, memoryLimitMB)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &RunResult{
		Stdout:   trimOutput(&stdout, outputLimit),
		Stderr:   trimOutput(&stderr, outputLimit),
		MaxRSSKB: maxRSS(cmd.ProcessState),
	}

	if err != nil {
		return result, fmt.Errorf("run %s: %w", argv[0], err)
	}
	return result, nil
}
