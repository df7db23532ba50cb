package analyzer

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InterviewStream/internal/capability"
	"InterviewStream/internal/protocol"
)

// failingClassifier 总是失败的分类能力
type failingClassifier struct{}

func (failingClassifier) ClassifySentiment(ctx context.Context, text string) (*protocol.LabelScore, error) {
	return nil, errors.New("sentiment service down")
}

func (failingClassifier) ClassifyEmotion(ctx context.Context, text string) (*protocol.LabelScore, error) {
	return nil, errors.New("emotion service down")
}

func registryWithTranscript(text string) *capability.Registry {
	return capability.NewRegistry(func() (*capability.Set, error) {
		set := capability.StaticSet()
		set.Transcriber = capability.StaticTranscriber{Text: text}
		return set, nil
	})
}

// sineChunk 生成frequency赫兹正弦波的float32小端载荷
func sineChunk(samples int, frequency float64, sampleRate int) []byte {
	payload := make([]byte, 4*samples)
	for i := 0; i < samples; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(v))
	}
	return payload
}

// TestScoreTranscriptClarity 口头禅统计与清晰度公式
func TestScoreTranscriptClarity(t *testing.T) {
	fillers, words, clarity := ScoreTranscript("um so basically I like did the thing")

	assert.Equal(t, 3, fillers)
	assert.Equal(t, 8, words)
	assert.InDelta(t, 0.625, clarity, 1e-9)
}

// TestScoreTranscriptEdgeCases 清晰度下限和空转写
func TestScoreTranscriptEdgeCases(t *testing.T) {
	// 口头禅数量超过词数时清晰度钳在0
	fillers, _, clarity := ScoreTranscript("um uh like")
	assert.Equal(t, 3, fillers)
	assert.Zero(t, clarity)

	// 大小写不敏感
	fillers, _, _ = ScoreTranscript("UM, Actually... BASICALLY")
	assert.Equal(t, 3, fillers)

	_, words, clarity := ScoreTranscript("")
	assert.Zero(t, words)
	assert.InDelta(t, 1.0, clarity, 1e-9)
}

// TestAudioShortBufferEmptyResult 样本不足返回空结果而不是错误
func TestAudioShortBufferEmptyResult(t *testing.T) {
	aa := NewAudioAnalyzer(capability.NewStaticRegistry(), 16000, 1000)

	fb, err := aa.Analyze(context.Background(), sineChunk(100, 440, 16000))
	require.NoError(t, err)
	require.NotNil(t, fb.Audio)
	assert.True(t, fb.Audio.Empty())
	assert.Equal(t, protocol.ModalityAudio, fb.Modality)
}

// TestAudioMalformedBuffer 字节错位是坏帧
func TestAudioMalformedBuffer(t *testing.T) {
	aa := NewAudioAnalyzer(capability.NewStaticRegistry(), 16000, 1000)

	_, err := aa.Analyze(context.Background(), []byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrDecode)
}

// TestAudioVocalPatterns 足量样本产生声学特征
func TestAudioVocalPatterns(t *testing.T) {
	aa := NewAudioAnalyzer(registryWithTranscript(""), 16000, 1000)

	fb, err := aa.Analyze(context.Background(), sineChunk(16000, 440, 16000))
	require.NoError(t, err)

	audio := fb.Audio
	require.NotNil(t, audio.Volume)
	// 0.5振幅正弦波的RMS约等于0.5/sqrt(2)
	assert.InDelta(t, 0.5/math.Sqrt2, audio.Volume.AverageVolume, 0.01)

	require.NotNil(t, audio.Pitch)
	// 过零率估计应接近基频
	assert.InDelta(t, 440, audio.Pitch.AveragePitch, 30)

	// 空转写时不做内容分析
	assert.Empty(t, audio.Transcript)
	assert.Nil(t, audio.Content)
}

// TestAudioContentAnalysis 非空转写触发内容分析
func TestAudioContentAnalysis(t *testing.T) {
	aa := NewAudioAnalyzer(registryWithTranscript("um so basically I like did the thing"), 16000, 1000)

	fb, err := aa.Analyze(context.Background(), sineChunk(2000, 200, 16000))
	require.NoError(t, err)

	audio := fb.Audio
	assert.Equal(t, "um so basically I like did the thing", audio.Transcript)
	require.NotNil(t, audio.Content)
	assert.Equal(t, 3, audio.Content.FillerWordCount)
	assert.Equal(t, 8, audio.Content.WordCount)
	assert.InDelta(t, 0.625, audio.Content.ClarityScore, 1e-9)
	assert.NotNil(t, audio.Content.Sentiment)
	assert.NotNil(t, audio.Content.Emotion)
}

// TestAudioDegradesOnClassifierFailure 分类能力失败只省略子结果
func TestAudioDegradesOnClassifierFailure(t *testing.T) {
	reg := capability.NewRegistry(func() (*capability.Set, error) {
		set := capability.StaticSet()
		set.Transcriber = capability.StaticTranscriber{Text: "hello world"}
		set.Sentiment = failingClassifier{}
		set.Emotion = failingClassifier{}
		return set, nil
	})
	aa := NewAudioAnalyzer(reg, 16000, 1000)

	fb, err := aa.Analyze(context.Background(), sineChunk(2000, 200, 16000))
	require.NoError(t, err)

	content := fb.Audio.Content
	require.NotNil(t, content)
	assert.Nil(t, content.Sentiment)
	assert.Nil(t, content.Emotion)
	assert.Equal(t, 2, content.WordCount)
}
