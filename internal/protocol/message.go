package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType 反馈消息类型
type MessageType string

const (
	TypeConnectionEstablished MessageType = "connection_established"
	TypeRealTimeFeedback      MessageType = "real_time_feedback"
	TypeCodingResult          MessageType = "coding_execution_result"
	TypeInterviewQuestion     MessageType = "interview_question"
	TypeError                 MessageType = "error"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingPayload     = errors.New("message payload missing")
)

// FeedbackMessage 服务端下行消息信封
// 每种类型恰好携带一个对应的载荷字段，Encode会做穷尽校验，
// 避免新增消息类型时被静默丢弃
type FeedbackMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Timestamp int64       `json:"timestamp"`

	Message  string               `json:"message,omitempty"`  // connection_established
	Feedback *RealTimeFeedback    `json:"feedback,omitempty"` // real_time_feedback
	Result   *CodeExecutionResult `json:"result,omitempty"`   // coding_execution_result
	Question *InterviewQuestion   `json:"question,omitempty"` // interview_question
	Error    string               `json:"error,omitempty"`    // error
}

// Encode 序列化反馈消息
func Encode(msg *FeedbackMessage) ([]byte, error) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	switch msg.Type {
	case TypeConnectionEstablished:
		if msg.Message == "" {
			return nil, fmt.Errorf("%w: connection_established 需要 message", ErrMissingPayload)
		}
	case TypeRealTimeFeedback:
		if msg.Feedback == nil {
			return nil, fmt.Errorf("%w: real_time_feedback 需要 feedback", ErrMissingPayload)
		}
	case TypeCodingResult:
		if msg.Result == nil {
			return nil, fmt.Errorf("%w: coding_execution_result 需要 result", ErrMissingPayload)
		}
	case TypeInterviewQuestion:
		if msg.Question == nil {
			return nil, fmt.Errorf("%w: interview_question 需要 question", ErrMissingPayload)
		}
	case TypeError:
		if msg.Error == "" {
			return nil, fmt.Errorf("%w: error 需要 error 描述", ErrMissingPayload)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}

	return json.Marshal(msg)
}

// Decode 反序列化反馈消息
func Decode(raw []byte) (*FeedbackMessage, error) {
	msg := &FeedbackMessage{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("decode feedback message: %w", err)
	}

	switch msg.Type {
	case TypeConnectionEstablished, TypeRealTimeFeedback, TypeCodingResult,
		TypeInterviewQuestion, TypeError:
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

// RealTimeFeedback 实时分析反馈载荷
type RealTimeFeedback struct {
	Modality   Modality             `json:"modality"`
	Video      *VideoResult         `json:"video,omitempty"`
	Audio      *AudioResult         `json:"audio,omitempty"`
	Confidence *ConfidenceIndicator `json:"confidence_indicators,omitempty"`
}

// EyeContact 视线接触评估
type EyeContact struct {
	Score           float64 `json:"score"`
	LookingAtCamera bool    `json:"looking_at_camera"`
}

// MicroExpressions 微表情标记
type MicroExpressions struct {
	SmileDetected bool `json:"smile_detected"`
	FrownDetected bool `json:"frown_detected"`
	EyebrowRaise  bool `json:"eyebrow_raise"`
}

// ExpressionScores 面部表情评分，取值范围[0,1]
type ExpressionScores struct {
	Confidence  float64          `json:"confidence"`
	Nervousness float64          `json:"nervousness"`
	Engagement  float64          `json:"engagement"`
	Micro       MicroExpressions `json:"micro_expressions"`
}

// PostureResult 体态评估结果
type PostureResult struct {
	Score             float64 `json:"posture_score"`
	ShoulderAlignment string  `json:"shoulder_alignment"`
	HeadPosition      string  `json:"head_position"`
	BodyLanguage      string  `json:"overall_body_language"`
}

// VideoResult 视频帧分析结果
// 未检测到人脸时 EyeContact/Expression 为 nil，未检测到人体时 Posture 为 nil
type VideoResult struct {
	EyeContact *EyeContact       `json:"eye_contact,omitempty"`
	Expression *ExpressionScores `json:"facial_analysis,omitempty"`
	Posture    *PostureResult    `json:"pose_analysis,omitempty"`
}

// VolumeStats 音量统计
type VolumeStats struct {
	AverageVolume     float64 `json:"average_volume"`
	VolumeConsistency float64 `json:"volume_consistency"`
}

// PitchStats 音高统计
type PitchStats struct {
	AveragePitch   float64 `json:"average_pitch"`
	PitchVariation float64 `json:"pitch_variation"`
}

// LabelScore 分类能力返回的标签+置信度
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ContentAnalysis 语音内容分析结果
type ContentAnalysis struct {
	Sentiment       *LabelScore `json:"sentiment,omitempty"`
	Emotion         *LabelScore `json:"emotion,omitempty"`
	FillerWordCount int         `json:"filler_words_count"`
	WordCount       int         `json:"word_count"`
	ClarityScore    float64     `json:"clarity_score"`
}

// AudioResult 音频块分析结果
// 样本数不足时所有子字段为零值（空结果而非错误）
type AudioResult struct {
	SpeakingRate float64          `json:"speaking_rate,omitempty"`
	Volume       *VolumeStats     `json:"volume,omitempty"`
	Pitch        *PitchStats      `json:"pitch,omitempty"`
	Transcript   string           `json:"transcript,omitempty"`
	Content      *ContentAnalysis `json:"content_analysis,omitempty"`
}

// Empty 判断是否为空结果（短音频）
func (a *AudioResult) Empty() bool {
	return a.Volume == nil && a.Pitch == nil && a.Transcript == "" && a.Content == nil
}

// ConfidenceIndicator 聚合后的信心指标
type ConfidenceIndicator struct {
	Score           float64  `json:"overall_confidence_score"`
	Indicators      []string `json:"indicators"`
	Recommendations []string `json:"recommendations"`
}

// ExecutionStatus 代码执行状态
type ExecutionStatus string

const (
	ExecSuccess ExecutionStatus = "success"
	ExecFailed  ExecutionStatus = "failed"
	ExecTimeout ExecutionStatus = "timeout"
	ExecError   ExecutionStatus = "error"
)

// TestCase 一个代码测试用例：stdin输入与期望stdout（首尾空白不参与比较）
type TestCase struct {
	Name     string `json:"name,omitempty"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// CodeExecutionRequest 代码执行请求（编码通道上行消息）
// 不带测试用例时网关只做一次冒烟运行
type CodeExecutionRequest struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	SessionID string     `json:"session_id,omitempty"`
	TestCases []TestCase `json:"test_cases,omitempty"`
}

// CodeExecutionResult 代码执行结果
type CodeExecutionResult struct {
	Status          ExecutionStatus `json:"execution_status"`
	Language        string          `json:"language"`
	Output          string          `json:"output,omitempty"`
	TestCasesPassed int             `json:"test_cases_passed"`
	TotalTestCases  int             `json:"total_test_cases"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	MemoryUsedMB    float64         `json:"memory_used_mb"`
	Error           string          `json:"error,omitempty"`
}

// InterviewQuestion 面试问题推送载荷
type InterviewQuestion struct {
	Text       string `json:"question_text"`
	Type       string `json:"question_type"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty_level"`
}
