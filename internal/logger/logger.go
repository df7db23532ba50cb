package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	root *logrus.Logger
	once sync.Once
)

// Init 初始化全局日志器
func Init(level string) {
	once.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stdout)
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
		root.SetLevel(parseLevel(level))
	})
}

// L 返回全局日志器（未初始化时使用info级别）
func L() *logrus.Logger {
	Init("info")
	return root
}

// Module 返回带模块字段的日志入口
// 各包统一通过 logger.Module("hub") 这种方式打日志
func Module(name string) *logrus.Entry {
	return L().WithField("module", name)
}

// Session 返回带会话字段的日志入口
func Session(module, sessionID string) *logrus.Entry {
	return L().WithFields(logrus.Fields{
		"module":     module,
		"session_id": sessionID,
	})
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
