package analyzer

import (
	"context"
	"errors"
	"fmt"

	"InterviewStream/internal/protocol"
)

// ErrDecode 载荷解码失败（坏帧）
// 解码失败不会中断会话，调用方把它转成 error 类型的反馈消息下发
var ErrDecode = errors.New("telemetry decode failed")

// FrameAnalyzer 帧分析器的统一契约
// 路由和聚合逻辑只依赖这个接口，占位实现和真实模型可以互换
type FrameAnalyzer interface {
	Analyze(ctx context.Context, payload []byte) (*protocol.RealTimeFeedback, error)
}

// Router 遥测路由器
// 按载荷大小推断模态并分发到对应的分析器
type Router struct {
	video     FrameAnalyzer
	audio     FrameAnalyzer
	threshold int
}

// NewRouter 创建遥测路由器
func NewRouter(video, audio FrameAnalyzer, videoFrameThreshold int) *Router {
	if videoFrameThreshold <= 0 {
		videoFrameThreshold = protocol.DefaultVideoFrameThreshold
	}
	return &Router{
		video:     video,
		audio:     audio,
		threshold: videoFrameThreshold,
	}
}

// Classify 推断载荷模态
func (r *Router) Classify(payload []byte) protocol.Modality {
	return protocol.Classify(payload, r.threshold)
}

// Process 处理一个遥测帧
// 返回的错误只会是解码类错误；能力失败在分析器内部降级处理
func (r *Router) Process(ctx context.Context, frame *protocol.TelemetryFrame) (*protocol.RealTimeFeedback, error) {
	switch r.Classify(frame.Payload) {
	case protocol.ModalityVideo:
		feedback, err := r.video.Analyze(ctx, frame.Payload)
		if err != nil {
			return nil, fmt.Errorf("video frame: %w", err)
		}
		return feedback, nil
	default:
		feedback, err := r.audio.Analyze(ctx, frame.Payload)
		if err != nil {
			return nil, fmt.Errorf("audio chunk: %w", err)
		}
		return feedback, nil
	}
}
