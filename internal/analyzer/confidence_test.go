package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"InterviewStream/internal/protocol"
)

// TestAggregateConfidenceAllSignals 三路信号齐全时的加权和
func TestAggregateConfidenceAllSignals(t *testing.T) {
	video := &protocol.VideoResult{
		EyeContact: &protocol.EyeContact{Score: 0.8},
		Posture:    &protocol.PostureResult{Score: 0.75},
		Expression: &protocol.ExpressionScores{Confidence: 0.7},
	}

	ind := AggregateConfidence(video)

	assert.InDelta(t, 0.3*0.8+0.3*0.75+0.4*0.7, ind.Score, 1e-9)
	assert.Contains(t, ind.Indicators, "Good eye contact")
	assert.Contains(t, ind.Indicators, "Good posture")
	assert.Equal(t, []string{"Excellent confidence! Keep going!"}, ind.Recommendations)
}

// TestAggregateConfidenceBounds 任意存在/缺失组合下得分都在[0,1]内
func TestAggregateConfidenceBounds(t *testing.T) {
	scores := []float64{0, 0.3, 0.7, 1}

	build := func(eye, posture, facial int) *protocol.VideoResult {
		v := &protocol.VideoResult{}
		if eye >= 0 {
			v.EyeContact = &protocol.EyeContact{Score: scores[eye]}
		}
		if posture >= 0 {
			v.Posture = &protocol.PostureResult{Score: scores[posture]}
		}
		if facial >= 0 {
			v.Expression = &protocol.ExpressionScores{Confidence: scores[facial]}
		}
		return v
	}

	// -1 表示该信号缺失
	for eye := -1; eye < len(scores); eye++ {
		for posture := -1; posture < len(scores); posture++ {
			for facial := -1; facial < len(scores); facial++ {
				ind := AggregateConfidence(build(eye, posture, facial))
				assert.GreaterOrEqual(t, ind.Score, 0.0,
					"eye=%d posture=%d facial=%d", eye, posture, facial)
				assert.LessOrEqual(t, ind.Score, 1.0,
					"eye=%d posture=%d facial=%d", eye, posture, facial)
				assert.NotEmpty(t, ind.Recommendations)
			}
		}
	}
}

// TestAggregateConfidenceMissingSignalsBiasDown 缺失信号按0计入，不重新归一化
func TestAggregateConfidenceMissingSignalsBiasDown(t *testing.T) {
	onlyEye := &protocol.VideoResult{
		EyeContact: &protocol.EyeContact{Score: 1.0},
	}

	ind := AggregateConfidence(onlyEye)

	// 满分视线接触在缺失其他模态时最多只有0.3
	assert.InDelta(t, 0.3, ind.Score, 1e-9)
	assert.Equal(t, []string{"Good eye contact"}, ind.Indicators)
}

// TestAggregateConfidenceNilVideo 空输入得到零分和兜底建议
func TestAggregateConfidenceNilVideo(t *testing.T) {
	ind := AggregateConfidence(nil)

	assert.Zero(t, ind.Score)
	assert.Empty(t, ind.Indicators)
	assert.Len(t, ind.Recommendations, 3, "低信心应给出三条建议")
}

// TestRecommendationTiers 三档建议边界
func TestRecommendationTiers(t *testing.T) {
	assert.Len(t, confidenceRecommendations(0.49), 3)
	assert.Len(t, confidenceRecommendations(0.5), 2)
	assert.Len(t, confidenceRecommendations(0.69), 2)
	assert.Len(t, confidenceRecommendations(0.7), 1)
}

// TestIndicatorThresholds 指标提示在0.7分界
func TestIndicatorThresholds(t *testing.T) {
	low := AggregateConfidence(&protocol.VideoResult{
		EyeContact: &protocol.EyeContact{Score: 0.7},
		Posture:    &protocol.PostureResult{Score: 0.71},
	})
	assert.Contains(t, low.Indicators, "Improve eye contact")
	assert.Contains(t, low.Indicators, "Good posture")
}
