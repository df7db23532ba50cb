package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"InterviewStream/internal/config"
	"InterviewStream/internal/logger"
	"InterviewStream/internal/protocol"
)

// RunResult 单次进程执行的原始结果
type RunResult struct {
	Stdout   string
	Stderr   string
	MaxRSSKB int64
}

// Runner 单一语言的执行器
// Prepare写出源文件（编译型语言可在此编译），Run执行一次并喂入stdin
type Runner interface {
	Prepare(dir, code string) error
	Run(ctx context.Context, dir, input string, memoryLimitMB int) (*RunResult, error)
}

// Executor 代码执行网关
// 在墙钟超时和内存上限约束下隔离执行提交的代码，逐个测试用例比对输出。
// 执行失败不会泄漏到流式层：所有失败模式都落在结构化结果里
type Executor struct {
	timeout       time.Duration
	memoryLimitMB int
	workDir       string

	mu      sync.RWMutex
	runners map[string]Runner
}

// NewExecutor 根据配置创建执行网关并注册允许语言的默认执行器
func NewExecutor(cfg config.SandboxConfig) *Executor {
	e := &Executor{
		timeout:       cfg.Timeout,
		memoryLimitMB: cfg.MemoryLimitMB,
		workDir:       cfg.WorkDir,
		runners:       make(map[string]Runner),
	}

	for _, lang := range cfg.AllowedLanguages {
		if r, ok := defaultRunner(lang); ok {
			e.runners[strings.ToLower(lang)] = r
		} else {
			logger.Module("sandbox").Warnf("语言 %q 在允许列表中但没有可用执行器", lang)
		}
	}
	return e
}

// RegisterRunner 注册或替换某语言的执行器（测试注入桩用）
func (e *Executor) RegisterRunner(language string, r Runner) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runners[strings.ToLower(language)] = r
}

// runner 查找语言执行器，不在闭集内返回错误
func (e *Executor) runner(language string) (Runner, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.runners[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("language %q is not allowed", language)
	}
	return r, nil
}

// Execute 执行一份代码提交
// 状态映射：全部用例通过→success；任一用例输出不符→failed；
// 超出墙钟上限→timeout；编译/启动/运行时错误→error。
// 所有非success结果都带非空的人类可读detail
func (e *Executor) Execute(ctx context.Context, req *protocol.CodeExecutionRequest, tests []protocol.TestCase) *protocol.CodeExecutionResult {
	log := logger.Session("sandbox", req.SessionID)
	result := &protocol.CodeExecutionResult{
		Language:       req.Language,
		TotalTestCases: len(tests),
	}

	started := time.Now()
	finish := func() *protocol.CodeExecutionResult {
		result.ExecutionTimeMs = time.Since(started).Milliseconds()
		return result
	}

	runner, err := e.runner(req.Language)
	if err != nil {
		result.Status = protocol.ExecError
		result.Error = err.Error()
		return finish()
	}

	dir, err := os.MkdirTemp(e.workDir, "sandbox-*")
	if err != nil {
		result.Status = protocol.ExecError
		result.Error = fmt.Sprintf("create sandbox dir: %v", err)
		return finish()
	}
	defer os.RemoveAll(dir)

	if err := runner.Prepare(dir, req.Code); err != nil {
		// 写源/编译阶段失败
		result.Status = protocol.ExecError
		result.Error = fmt.Sprintf("prepare failed: %v", err)
		return finish()
	}

	// 执行整体受一个墙钟超时约束，独立于流式层的闲置超时
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if len(tests) == 0 {
		// 没有用例时做一次冒烟运行
		run, err := runner.Run(runCtx, dir, "", e.memoryLimitMB)
		if run != nil {
			result.Output = run.Stdout
			result.MemoryUsedMB = float64(run.MaxRSSKB) / 1024
		}
		if err != nil {
			e.classifyRunError(runCtx, result, err, run)
			return finish()
		}
		result.Status = protocol.ExecSuccess
		return finish()
	}

	var lastOutput string
	for i, tc := range tests {
		run, err := runner.Run(runCtx, dir, tc.Input, e.memoryLimitMB)
		if run != nil {
			lastOutput = run.Stdout
			if mb := float64(run.MaxRSSKB) / 1024; mb > result.MemoryUsedMB {
				result.MemoryUsedMB = mb
			}
		}
		if err != nil {
			e.classifyRunError(runCtx, result, err, run)
			result.Output = lastOutput
			log.Warnf("代码执行中止于用例 %d: %s", i+1, result.Error)
			return finish()
		}

		if strings.TrimSpace(run.Stdout) == strings.TrimSpace(tc.Expected) {
			result.TestCasesPassed++
		} else if result.Error == "" {
			name := tc.Name
			if name == "" {
				name = fmt.Sprintf("case %d", i+1)
			}
			result.Error = fmt.Sprintf("test %s failed: expected %q, got %q",
				name, strings.TrimSpace(tc.Expected), strings.TrimSpace(run.Stdout))
		}
	}

	result.Output = lastOutput
	if result.TestCasesPassed == len(tests) {
		result.Status = protocol.ExecSuccess
		result.Error = ""
	} else {
		result.Status = protocol.ExecFailed
	}

	log.Infof("代码执行完成: status=%s passed=%d/%d elapsed=%dms",
		result.Status, result.TestCasesPassed, result.TotalTestCases, time.Since(started).Milliseconds())
	return finish()
}

// classifyRunError 把进程级失败归类为 timeout 或 error
func (e *Executor) classifyRunError(ctx context.Context, result *protocol.CodeExecutionResult, err error, run *RunResult) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Status = protocol.ExecTimeout
		result.Error = fmt.Sprintf("execution exceeded %s wall-clock limit", e.timeout)
		return
	}

	result.Status = protocol.ExecError
	detail := err.Error()
	if run != nil && strings.TrimSpace(run.Stderr) != "" {
		detail = fmt.Sprintf("%s: %s", detail, strings.TrimSpace(run.Stderr))
	}
	result.Error = detail
}

// maxRSS 从进程状态里提取峰值驻留集（KB）
func maxRSS(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok && usage != nil {
		return usage.Maxrss
	}
	return 0
}

// trimOutput 限制保留的输出长度，防止恶意代码刷爆结果消息
func trimOutput(buf *bytes.Buffer, limit int) string {
	s := buf.String()
	if len(s) > limit {
		return s[:limit] + "... (truncated)"
	}
	return s
}
