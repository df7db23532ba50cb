package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"InterviewStream/internal/capability"
	"InterviewStream/internal/logger"
	"InterviewStream/internal/protocol"
)

// VideoAnalyzer 视频帧分析器：面部表情 + 视线接触 + 体态
type VideoAnalyzer struct {
	caps *capability.Registry
}

// NewVideoAnalyzer 创建视频帧分析器
func NewVideoAnalyzer(caps *capability.Registry) *VideoAnalyzer {
	return &VideoAnalyzer{caps: caps}
}

// Analyze 分析一个视频帧
// 图像解码失败返回 ErrDecode；单项能力失败只丢弃该子结果
func (va *VideoAnalyzer) Analyze(ctx context.Context, payload []byte) (*protocol.RealTimeFeedback, error) {
	if _, _, err := image.Decode(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: invalid video frame: %v", ErrDecode, err)
	}

	set, err := va.caps.Get()
	if err != nil {
		return nil, err
	}

	log := logger.Module("analyzer.video")
	result := &protocol.VideoResult{}

	// 人脸网格：视线接触 + 表情评分
	face, err := set.Face.AnalyzeFace(ctx, payload)
	switch {
	case err == nil:
		result.EyeContact = &protocol.EyeContact{
			Score:           clamp01(face.EyeContactScore),
			LookingAtCamera: face.EyeContactScore > 0.7,
		}
		expr := face.Expression
		expr.Confidence = clamp01(expr.Confidence)
		expr.Nervousness = clamp01(expr.Nervousness)
		expr.Engagement = clamp01(expr.Engagement)
		result.Expression = &expr
	case errors.Is(err, capability.ErrNoFace):
		// 帧里没有人脸，视线接触和表情字段整体省略
	default:
		log.Warnf("人脸分析失败，丢弃该子结果: %v", err)
	}

	// 姿态检测：体态评分 + 定性标签
	pose, err := set.Pose.DetectPose(ctx, payload)
	switch {
	case err == nil:
		result.Posture = &protocol.PostureResult{
			Score:             clamp01(pose.PostureScore),
			ShoulderAlignment: pose.ShoulderAlignment,
			HeadPosition:      pose.HeadPosition,
			BodyLanguage:      pose.BodyLanguage,
		}
	case errors.Is(err, capability.ErrNoBody):
	default:
		log.Warnf("姿态分析失败，丢弃该子结果: %v", err)
	}

	return &protocol.RealTimeFeedback{
		Modality:   protocol.ModalityVideo,
		Video:      result,
		Confidence: AggregateConfidence(result),
	}, nil
}
