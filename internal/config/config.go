package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"InterviewStream/internal/logger"
)

// Config 引擎配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Sandbox      SandboxConfig      `mapstructure:"sandbox"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	MaxConnections    int           `mapstructure:"max_connections"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// AnalysisConfig 实时分析配置
type AnalysisConfig struct {
	// 同一会话两次完整分析之间的最小间隔，用于限制模型调用频率
	Interval time.Duration `mapstructure:"interval"`
	// 超过该字节数的载荷按视频帧处理，否则按音频块处理
	VideoFrameThreshold int `mapstructure:"video_frame_threshold"`
	SampleRate          int `mapstructure:"sample_rate"`
	MinAudioSamples     int `mapstructure:"min_audio_samples"`
}

// SandboxConfig 代码执行沙箱配置
type SandboxConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MemoryLimitMB    int           `mapstructure:"memory_limit_mb"`
	AllowedLanguages []string      `mapstructure:"allowed_languages"`
	WorkDir          string        `mapstructure:"work_dir"`
}

// CapabilityEndpoint 单个能力服务端点
type CapabilityEndpoint struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CapabilitiesConfig 能力服务配置
type CapabilitiesConfig struct {
	ASR       CapabilityEndpoint `mapstructure:"asr"`
	Face      CapabilityEndpoint `mapstructure:"face"`
	Pose      CapabilityEndpoint `mapstructure:"pose"`
	Sentiment CapabilityEndpoint `mapstructure:"sentiment"`
	Emotion   CapabilityEndpoint `mapstructure:"emotion"`
	// 最大重试次数，0表示不重试
	MaxRetries uint64 `mapstructure:"max_retries"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Manager 配置管理器
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	v          *viper.Viper
	configPath string
	watch      bool
}

// ManagerOption 配置管理器选项
type ManagerOption func(*Manager)

// WithConfigPath 设置配置文件路径
func WithConfigPath(path string) ManagerOption {
	return func(m *Manager) {
		m.configPath = path
	}
}

// WithWatchEnabled 启用配置文件监控
func WithWatchEnabled(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.watch = enabled
	}
}

// NewManager 创建配置管理器
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load 加载配置（文件缺失时使用默认值+环境变量）
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config != nil {
		return m.config, nil
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if m.configPath != "" {
		v.SetConfigFile(m.configPath)
	} else {
		v.SetConfigName("interview")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		// 没有配置文件不是错误，全部走默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && m.configPath != "" {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	m.config = config
	m.v = v

	if m.watch && v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			logger.Module("config").Infof("配置文件变化: %s, 重新加载", e.Name)
			if err := m.Reload(); err != nil {
				logger.Module("config").Errorf("重新加载配置失败: %v", err)
			}
		})
	}

	return config, nil
}

// Reload 重新加载配置
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.v == nil {
		return fmt.Errorf("配置尚未加载")
	}

	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("重新读取配置失败: %w", err)
	}

	config := &Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validate(config); err != nil {
		return err
	}

	m.config = config
	return nil
}

// Get 获取当前配置（未加载时自动加载）
func (m *Manager) Get() (*Config, error) {
	m.mu.RLock()
	if m.config != nil {
		defer m.mu.RUnlock()
		return m.config, nil
	}
	m.mu.RUnlock()

	return m.Load()
}

// setDefaults 设置默认值（与参考系统保持一致）
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_buffer_size", 1024)
	v.SetDefault("server.write_buffer_size", 1024)
	v.SetDefault("server.enable_compression", true)
	v.SetDefault("server.max_connections", 1000)
	v.SetDefault("server.inactivity_timeout", "300s")
	v.SetDefault("server.sweep_interval", "60s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("analysis.interval", "2s")
	v.SetDefault("analysis.video_frame_threshold", 10000)
	v.SetDefault("analysis.sample_rate", 16000)
	v.SetDefault("analysis.min_audio_samples", 1000)

	v.SetDefault("sandbox.timeout", "30s")
	v.SetDefault("sandbox.memory_limit_mb", 128)
	v.SetDefault("sandbox.allowed_languages", []string{"python", "javascript", "go"})
	v.SetDefault("sandbox.work_dir", "")

	v.SetDefault("capabilities.asr.url", "http://127.0.0.1:9001")
	v.SetDefault("capabilities.asr.timeout", "60s")
	v.SetDefault("capabilities.face.url", "http://127.0.0.1:9002")
	v.SetDefault("capabilities.face.timeout", "10s")
	v.SetDefault("capabilities.pose.url", "http://127.0.0.1:9003")
	v.SetDefault("capabilities.pose.timeout", "10s")
	v.SetDefault("capabilities.sentiment.url", "http://127.0.0.1:9004")
	v.SetDefault("capabilities.sentiment.timeout", "10s")
	v.SetDefault("capabilities.emotion.url", "http://127.0.0.1:9005")
	v.SetDefault("capabilities.emotion.timeout", "10s")
	v.SetDefault("capabilities.max_retries", 2)

	v.SetDefault("log.level", "info")
}

// validate 验证配置
func validate(c *Config) error {
	if c.Server.InactivityTimeout <= 0 {
		return fmt.Errorf("配置无效: server.inactivity_timeout 必须大于0")
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("配置无效: sandbox.timeout 必须大于0")
	}
	if c.Analysis.VideoFrameThreshold <= 0 {
		return fmt.Errorf("配置无效: analysis.video_frame_threshold 必须大于0")
	}
	if len(c.Sandbox.AllowedLanguages) == 0 {
		return fmt.Errorf("配置无效: sandbox.allowed_languages 不能为空")
	}
	return nil
}

// 全局配置管理器实例
var (
	globalManager *Manager
	managerOnce   sync.Once
)

// Global 获取全局配置管理器
func Global() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(WithWatchEnabled(true))
	})
	return globalManager
}

// Default 返回一份默认配置（测试和演示用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	c := &Config{}
	// 默认值集合总是可解析的
	_ = v.Unmarshal(c)
	return c
}
