package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip 各消息类型的编解码往返
func TestEncodeDecodeRoundTrip(t *testing.T) {
	messages := []*FeedbackMessage{
		{
			Type:      TypeConnectionEstablished,
			SessionID: "s1",
			Message:   "Connected to interview analysis service",
		},
		{
			Type:      TypeRealTimeFeedback,
			SessionID: "s1",
			Feedback: &RealTimeFeedback{
				Modality: ModalityAudio,
				Audio: &AudioResult{
					Transcript: "hello",
					Content:    &ContentAnalysis{WordCount: 1, ClarityScore: 1},
				},
			},
		},
		{
			Type:      TypeCodingResult,
			SessionID: "s1",
			Result: &CodeExecutionResult{
				Status:          ExecFailed,
				Language:        "python",
				TestCasesPassed: 1,
				TotalTestCases:  2,
				Error:           "test case 2 failed",
			},
		},
		{
			Type:      TypeInterviewQuestion,
			SessionID: "s1",
			Question:  &InterviewQuestion{Text: "Tell me about yourself", Type: "behavioral"},
		},
		{
			Type:      TypeError,
			SessionID: "s1",
			Error:     "Invalid message format",
		},
	}

	for _, msg := range messages {
		raw, err := Encode(msg)
		require.NoError(t, err, "type=%s", msg.Type)

		decoded, err := Decode(raw)
		require.NoError(t, err, "type=%s", msg.Type)
		assert.Equal(t, msg.Type, decoded.Type)
		assert.Equal(t, "s1", decoded.SessionID)
		assert.NotZero(t, decoded.Timestamp, "Encode应补时间戳")
	}
}

// TestEncodeMissingPayload 类型与载荷不匹配时拒绝编码
func TestEncodeMissingPayload(t *testing.T) {
	cases := []*FeedbackMessage{
		{Type: TypeConnectionEstablished},
		{Type: TypeRealTimeFeedback},
		{Type: TypeCodingResult},
		{Type: TypeInterviewQuestion},
		{Type: TypeError},
	}

	for _, msg := range cases {
		_, err := Encode(msg)
		assert.ErrorIs(t, err, ErrMissingPayload, "type=%s", msg.Type)
	}
}

// TestEncodeUnknownType 未知类型不能上线
func TestEncodeUnknownType(t *testing.T) {
	_, err := Encode(&FeedbackMessage{Type: "metrics_snapshot"})
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

// TestDecodeRejectsGarbage 非JSON和未知类型都拒绝
func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"mystery"}`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

// TestClassifyThreshold 模态分类的严格大于语义
func TestClassifyThreshold(t *testing.T) {
	assert.Equal(t, ModalityAudio, Classify(make([]byte, 10000), DefaultVideoFrameThreshold))
	assert.Equal(t, ModalityVideo, Classify(make([]byte, 10001), DefaultVideoFrameThreshold))
	assert.Equal(t, ModalityAudio, Classify(nil, DefaultVideoFrameThreshold))

	// 非法阈值回退到默认值
	assert.Equal(t, ModalityVideo, Classify(make([]byte, 10001), 0))
}

// TestAudioResultEmpty 空结果判定
func TestAudioResultEmpty(t *testing.T) {
	assert.True(t, (&AudioResult{}).Empty())
	assert.False(t, (&AudioResult{Transcript: "hi"}).Empty())
	assert.False(t, (&AudioResult{Volume: &VolumeStats{}}).Empty())
}
