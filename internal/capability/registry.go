package capability

import (
	"fmt"
	"sync"

	"InterviewStream/internal/logger"
)

// Registry 进程级能力单例
// 重量级模型资源全进程只构建一次，首个触发分析的会话惰性初始化，
// 并发触发由 sync.Once 保证只执行一次。初始化失败是粘性的：
// 之后的所有调用直接拿到同一个错误，服务器据此拒绝新连接。
type Registry struct {
	build func() (*Set, error)

	once sync.Once
	set  *Set
	err  error

	mu     sync.Mutex
	closed bool
}

// NewRegistry 创建能力注册表，build在首次Get时执行
func NewRegistry(build func() (*Set, error)) *Registry {
	return &Registry{build: build}
}

// NewStaticRegistry 创建使用静态能力的注册表（演示/测试）
func NewStaticRegistry() *Registry {
	return NewRegistry(func() (*Set, error) {
		return StaticSet(), nil
	})
}

// Get 获取能力集合，必要时惰性初始化
func (r *Registry) Get() (*Set, error) {
	r.once.Do(func() {
		log := logger.Module("capability")
		log.Info("初始化分析能力...")
		set, err := r.build()
		if err != nil {
			err = fmt.Errorf("capability initialization failed: %w", err)
			log.Errorf("能力初始化失败: %v", err)
		} else {
			log.Info("分析能力就绪")
		}
		r.mu.Lock()
		r.set, r.err = set, err
		r.mu.Unlock()
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set, r.err
}

// Err 返回粘性初始化错误，未初始化或成功时为nil
func (r *Registry) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("capability registry is shut down")
	}
	return r.err
}

// Shutdown 显式释放能力资源，之后的Get/Err报错
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.set != nil {
		r.set.Close()
	}
	logger.Module("capability").Info("分析能力已释放")
}
