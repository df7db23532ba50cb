package capability

import (
	"context"

	"InterviewStream/internal/protocol"
)

// 静态能力实现：返回参考系统的占位评分常量。
// 模型服务不可用的环境（本地演示、单元测试）用它代替HTTP适配器，
// 路由和聚合逻辑完全不感知差异。

const (
	staticEyeContactScore = 0.8
	staticConfidence      = 0.7
	staticNervousness     = 0.3
	staticEngagement      = 0.8
	staticPostureScore    = 0.75
)

// StaticSet 返回一组静态能力
func StaticSet() *Set {
	return &Set{
		Transcriber: StaticTranscriber{},
		Face:        StaticFace{},
		Pose:        StaticPose{},
		Sentiment:   StaticSentiment{},
		Emotion:     StaticEmotion{},
	}
}

// StaticTranscriber 返回空转写
type StaticTranscriber struct{ Text string }

func (s StaticTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	return s.Text, nil
}

// StaticFace 返回固定表情评分
type StaticFace struct{}

func (StaticFace) AnalyzeFace(ctx context.Context, image []byte) (*FaceReading, error) {
	return &FaceReading{
		EyeContactScore: staticEyeContactScore,
		Expression: protocol.ExpressionScores{
			Confidence:  staticConfidence,
			Nervousness: staticNervousness,
			Engagement:  staticEngagement,
		},
	}, nil
}

// StaticPose 返回固定体态评分
type StaticPose struct{}

func (StaticPose) DetectPose(ctx context.Context, image []byte) (*PoseReading, error) {
	return &PoseReading{
		PostureScore:      staticPostureScore,
		ShoulderAlignment: "good",
		HeadPosition:      "centered",
		BodyLanguage:      "confident",
	}, nil
}

// StaticSentiment 返回中性情感
type StaticSentiment struct{}

func (StaticSentiment) ClassifySentiment(ctx context.Context, text string) (*protocol.LabelScore, error) {
	return &protocol.LabelScore{Label: "neutral", Score: 0.5}, nil
}

// StaticEmotion 返回中性情绪
type StaticEmotion struct{}

func (StaticEmotion) ClassifyEmotion(ctx context.Context, text string) (*protocol.LabelScore, error) {
	return &protocol.LabelScore{Label: "neutral", Score: 0.5}, nil
}
