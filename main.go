package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"InterviewStream/internal/capability"
	"InterviewStream/internal/config"
	"InterviewStream/internal/logger"
	"InterviewStream/internal/protocol"
	"InterviewStream/internal/wsclient"
	"InterviewStream/internal/wsserver"
)

func main() {
	// .env 存在时先载入，配置层再按环境变量覆盖
	godotenv.Load()

	var (
		mode       = flag.String("mode", "server", "运行模式: server, client")
		configPath = flag.String("config", "", "配置文件路径 (默认 ./interview.yaml)")
		url        = flag.String("url", "ws://localhost:8000/ws/interview/demo-session", "WebSocket连接URL")
		static     = flag.Bool("static", false, "使用静态能力（无模型服务的本地演示）")
		duration   = flag.Duration("duration", 30*time.Second, "客户端运行时长")
	)
	flag.Parse()

	switch *mode {
	case "server":
		runServer(*configPath, *static)
	case "client":
		runClient(*url, *duration)
	default:
		fmt.Printf("未知模式: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runServer 启动面试遥测服务器
func runServer(configPath string, static bool) {
	manager := config.NewManager(
		config.WithConfigPath(configPath),
		config.WithWatchEnabled(true),
	)
	cfg, err := manager.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level)
	log := logger.Module("main")

	var caps *capability.Registry
	if static {
		log.Info("使用静态分析能力")
		caps = capability.NewStaticRegistry()
	} else {
		caps = capability.NewRegistry(func() (*capability.Set, error) {
			return capability.NewHTTPSet(cfg.Capabilities), nil
		})
	}
	defer caps.Shutdown()

	server := wsserver.New(cfg, caps)
	if err := server.Start(); err != nil {
		log.Fatalf("启动服务器失败: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("收到信号 %s，开始关闭", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("关闭服务器出错: %v", err)
	}
}

// runClient 演示客户端：周期性发送合成音频块并打印实时反馈
func runClient(url string, duration time.Duration) {
	logger.Init("info")
	log := logger.Module("client")

	client := wsclient.New(wsclient.DefaultClientConfig(url))
	client.SetFeedbackHandler(func(msg *protocol.FeedbackMessage) {
		switch msg.Type {
		case protocol.TypeConnectionEstablished:
			log.Infof("已连接: %s", msg.Message)
		case protocol.TypeRealTimeFeedback:
			if msg.Feedback != nil && msg.Feedback.Confidence != nil {
				log.Infof("反馈[%s]: confidence=%.2f %v",
					msg.Feedback.Modality, msg.Feedback.Confidence.Score,
					msg.Feedback.Confidence.Indicators)
			} else {
				log.Infof("反馈[%s]", msg.Feedback.Modality)
			}
		case protocol.TypeInterviewQuestion:
			log.Infof("面试问题: %s", msg.Question.Text)
		case protocol.TypeError:
			log.Warnf("服务端错误: %s", msg.Error)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("连接失败: %v", err)
	}
	defer client.Close()

	deadline := time.After(duration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			log.Info("演示结束")
			return
		case <-ticker.C:
			if err := client.SendTelemetry(syntheticAudioChunk()); err != nil {
				log.Errorf("发送遥测失败: %v", err)
				return
			}
		}
	}
}

// syntheticAudioChunk 生成1秒440Hz正弦波，16kHz float32小端
func syntheticAudioChunk() []byte {
	const sampleRate = 16000
	samples := make([]byte, 4*sampleRate/8) // 125ms，保持在音频阈值以下
	for i := 0; i < len(samples)/4; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
		binary.LittleEndian.PutUint32(samples[4*i:], math.Float32bits(v))
	}
	return samples
}
