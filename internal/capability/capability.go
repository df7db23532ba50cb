package capability

import (
	"context"
	"errors"

	"InterviewStream/internal/protocol"
)

// 能力适配器：语音转写、人脸网格、姿态检测、情感/情绪分类。
// 全部视为外部黑盒服务，只约定"原始输入 → 带标签评分"的调用契约，
// 模型内部实现不在本仓库范围内。

var (
	// ErrNoFace 图像中未检测到人脸
	ErrNoFace = errors.New("no face detected")
	// ErrNoBody 图像中未检测到人体
	ErrNoBody = errors.New("no body detected")
)

// FaceReading 人脸网格能力的输出
type FaceReading struct {
	EyeContactScore float64
	Expression      protocol.ExpressionScores
}

// PoseReading 姿态检测能力的输出
type PoseReading struct {
	PostureScore      float64
	ShoulderAlignment string
	HeadPosition      string
	BodyLanguage      string
}

// Transcriber 语音转写能力
type Transcriber interface {
	// Transcribe 转写一段16kHz单声道float32采样，返回文本（可能为空串）
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// FaceAnalyzer 人脸网格能力
type FaceAnalyzer interface {
	// AnalyzeFace 未检测到人脸时返回 ErrNoFace
	AnalyzeFace(ctx context.Context, image []byte) (*FaceReading, error)
}

// PoseDetector 姿态检测能力
type PoseDetector interface {
	// DetectPose 未检测到人体时返回 ErrNoBody
	DetectPose(ctx context.Context, image []byte) (*PoseReading, error)
}

// SentimentClassifier 情感分类能力
type SentimentClassifier interface {
	ClassifySentiment(ctx context.Context, text string) (*protocol.LabelScore, error)
}

// EmotionClassifier 情绪分类能力
type EmotionClassifier interface {
	ClassifyEmotion(ctx context.Context, text string) (*protocol.LabelScore, error)
}

// Set 一组完整的分析能力
type Set struct {
	Transcriber Transcriber
	Face        FaceAnalyzer
	Pose        PoseDetector
	Sentiment   SentimentClassifier
	Emotion     EmotionClassifier
}

// Close 释放能力资源（实现了io.Closer的适配器逐个关闭）
func (s *Set) Close() {
	for _, c := range []interface{}{s.Transcriber, s.Face, s.Pose, s.Sentiment, s.Emotion} {
		if closer, ok := c.(interface{ Close() error }); ok {
			closer.Close()
		}
	}
}
