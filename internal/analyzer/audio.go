package analyzer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"InterviewStream/internal/capability"
	"InterviewStream/internal/logger"
	"InterviewStream/internal/protocol"
)

// fillerWords 口头禅词表（大小写不敏感的子串计数）
var fillerWords = []string{"um", "uh", "like", "you know", "actually", "basically"}

const (
	// 参考实现的音量一致性占位值，真实估计器可直接替换
	placeholderVolumeConsistency = 0.8
	// 语速估计：按平均每词1.5个音节折算
	syllablesPerWord = 1.5
)

// AudioAnalyzer 音频块分析器：声学特征 + 转写 + 内容评分
type AudioAnalyzer struct {
	caps       *capability.Registry
	sampleRate int
	minSamples int
}

// NewAudioAnalyzer 创建音频块分析器
func NewAudioAnalyzer(caps *capability.Registry, sampleRate, minSamples int) *AudioAnalyzer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if minSamples <= 0 {
		minSamples = 1000
	}
	return &AudioAnalyzer{caps: caps, sampleRate: sampleRate, minSamples: minSamples}
}

// Analyze 分析一个音频块
// 载荷是float32小端裸采样；长度不足最小样本数时返回空结果而不是错误。
// 转写、情感、情绪任一能力失败只记日志并省略对应子结果。
func (aa *AudioAnalyzer) Analyze(ctx context.Context, payload []byte) (*protocol.RealTimeFeedback, error) {
	samples, err := decodeSamples(payload)
	if err != nil {
		return nil, err
	}

	result := &protocol.AudioResult{}
	feedback := &protocol.RealTimeFeedback{
		Modality: protocol.ModalityAudio,
		Audio:    result,
	}

	if len(samples) < aa.minSamples {
		// 块太短不值得分析，空结果
		return feedback, nil
	}

	result.SpeakingRate = estimateSpeakingRate(samples, aa.sampleRate)
	result.Volume = &protocol.VolumeStats{
		AverageVolume:     rms(samples),
		VolumeConsistency: placeholderVolumeConsistency,
	}
	mean, variation := estimatePitch(samples, aa.sampleRate)
	result.Pitch = &protocol.PitchStats{
		AveragePitch:   mean,
		PitchVariation: variation,
	}

	set, err := aa.caps.Get()
	if err != nil {
		return nil, err
	}

	log := logger.Module("analyzer.audio")

	transcript, err := set.Transcriber.Transcribe(ctx, samples, aa.sampleRate)
	if err != nil {
		log.Warnf("语音转写失败，跳过内容分析: %v", err)
		return feedback, nil
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return feedback, nil
	}

	result.Transcript = transcript
	result.Content = aa.analyzeContent(ctx, set, transcript)

	return feedback, nil
}

// analyzeContent 对转写文本做情感/情绪分类和口头禅统计
func (aa *AudioAnalyzer) analyzeContent(ctx context.Context, set *capability.Set, transcript string) *protocol.ContentAnalysis {
	log := logger.Module("analyzer.audio")
	content := &protocol.ContentAnalysis{}

	content.FillerWordCount, content.WordCount, content.ClarityScore = ScoreTranscript(transcript)

	sentiment, err := set.Sentiment.ClassifySentiment(ctx, transcript)
	if err != nil {
		log.Warnf("情感分类失败，省略该子结果: %v", err)
	} else {
		content.Sentiment = sentiment
	}

	emotion, err := set.Emotion.ClassifyEmotion(ctx, transcript)
	if err != nil {
		log.Warnf("情绪分类失败，省略该子结果: %v", err)
	} else {
		content.Emotion = emotion
	}

	return content
}

// ScoreTranscript 统计口头禅并计算清晰度
// clarity = max(0, 1 - fillers/max(words, 1))
func ScoreTranscript(transcript string) (fillerCount, wordCount int, clarity float64) {
	lower := strings.ToLower(transcript)
	for _, word := range fillerWords {
		fillerCount += strings.Count(lower, word)
	}
	wordCount = len(strings.Fields(transcript))

	denom := wordCount
	if denom < 1 {
		denom = 1
	}
	clarity = 1 - float64(fillerCount)/float64(denom)
	if clarity < 0 {
		clarity = 0
	}
	return fillerCount, wordCount, clarity
}

// decodeSamples 把裸字节解析为float32采样，长度错位视为坏帧
func decodeSamples(payload []byte) ([]float32, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("%w: audio buffer length %d is not float32-aligned", ErrDecode, len(payload))
	}

	samples := make([]float32, len(payload)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(payload[4*i:])
		s := math.Float32frombits(bits)
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, fmt.Errorf("%w: audio buffer contains non-finite sample at %d", ErrDecode, i)
		}
		samples[i] = s
	}
	return samples, nil
}

// rms 均方根振幅
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// estimatePitch 基于过零率的粗略基频估计
// 返回平均音高(Hz)和分窗音高的变异系数
func estimatePitch(samples []float32, sampleRate int) (mean, variation float64) {
	const windows = 8
	winSize := len(samples) / windows
	if winSize < 2 {
		return 0, 0
	}

	pitches := make([]float64, 0, windows)
	for w := 0; w < windows; w++ {
		win := samples[w*winSize : (w+1)*winSize]
		crossings := 0
		for i := 1; i < len(win); i++ {
			if (win[i-1] < 0) != (win[i] < 0) {
				crossings++
			}
		}
		// 每个完整周期两次过零
		pitch := float64(crossings) * float64(sampleRate) / (2 * float64(len(win)))
		pitches = append(pitches, pitch)
	}

	for _, p := range pitches {
		mean += p
	}
	mean /= float64(len(pitches))

	if mean == 0 {
		return 0, 0
	}
	var varSum float64
	for _, p := range pitches {
		varSum += (p - mean) * (p - mean)
	}
	variation = math.Sqrt(varSum/float64(len(pitches))) / mean
	return mean, variation
}

// estimateSpeakingRate 语速估计（词/分钟）
// 用短窗能量包络数音节突峰，再按音节词比折算
func estimateSpeakingRate(samples []float32, sampleRate int) float64 {
	winSize := sampleRate / 50 // 20ms窗
	if winSize < 1 || len(samples) < winSize {
		return 0
	}

	var energies []float64
	var total float64
	for i := 0; i+winSize <= len(samples); i += winSize {
		e := rms(samples[i : i+winSize])
		energies = append(energies, e)
		total += e
	}
	if len(energies) == 0 || total == 0 {
		return 0
	}

	threshold := total / float64(len(energies)) // 高于均值的包络段算作音节
	peaks := 0
	above := false
	for _, e := range energies {
		if e > threshold && !above {
			peaks++
			above = true
		} else if e <= threshold {
			above = false
		}
	}

	durationMin := float64(len(samples)) / float64(sampleRate) / 60
	if durationMin == 0 {
		return 0
	}
	return float64(peaks) / syllablesPerWord / durationMin
}
