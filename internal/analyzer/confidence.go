package analyzer

import (
	"InterviewStream/internal/protocol"
)

// 信心指标聚合：eye_contact、posture、facial_confidence 三路信号的加权和。
// 权重固定，缺失的信号按0计入而不做重新归一化，
// 所以缺模态时得分会整体偏低——低分+零视线接触应当被调用方
// 理解为"信号缺失"而不是真实测量值。

const (
	weightEyeContact = 0.3
	weightPosture    = 0.3
	weightFacial     = 0.4
)

// AggregateConfidence 聚合视频帧各子项评分为单一信心指标
func AggregateConfidence(video *protocol.VideoResult) *protocol.ConfidenceIndicator {
	score := 0.0
	indicators := []string{}

	if video != nil && video.EyeContact != nil {
		score += video.EyeContact.Score * weightEyeContact
		if video.EyeContact.Score > 0.7 {
			indicators = append(indicators, "Good eye contact")
		} else {
			indicators = append(indicators, "Improve eye contact")
		}
	}

	if video != nil && video.Posture != nil {
		score += video.Posture.Score * weightPosture
		if video.Posture.Score > 0.7 {
			indicators = append(indicators, "Good posture")
		} else {
			indicators = append(indicators, "Improve posture")
		}
	}

	if video != nil && video.Expression != nil {
		score += video.Expression.Confidence * weightFacial
	}

	score = clamp01(score)

	return &protocol.ConfidenceIndicator{
		Score:           score,
		Indicators:      indicators,
		Recommendations: confidenceRecommendations(score),
	}
}

// confidenceRecommendations 按信心分段生成实时建议
func confidenceRecommendations(score float64) []string {
	switch {
	case score < 0.5:
		return []string{
			"Take a deep breath and relax",
			"Maintain eye contact with the camera",
			"Sit up straight and keep shoulders back",
		}
	case score < 0.7:
		return []string{
			"You're doing well, keep it up!",
			"Try to speak a bit more clearly",
		}
	default:
		return []string{"Excellent confidence! Keep going!"}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
