package protocol

import (
	"time"
)

// Modality 遥测数据模态
type Modality string

const (
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

const (
	// DefaultVideoFrameThreshold 视频帧判定阈值（字节）
	// 单一通道同时复用音视频数据且没有显式类型标记，
	// 按载荷大小区分：严格大于阈值的按视频帧处理
	DefaultVideoFrameThreshold = 10000
)

// TelemetryFrame 一个遥测数据块
// 瞬态数据，只在单次分析过程中存活，不做任何持久化
type TelemetryFrame struct {
	SessionID  string
	Payload    []byte
	Modality   Modality
	ReceivedAt time.Time
}

// Classify 根据载荷大小推断模态
func Classify(payload []byte, threshold int) Modality {
	if threshold <= 0 {
		threshold = DefaultVideoFrameThreshold
	}
	if len(payload) > threshold {
		return ModalityVideo
	}
	return ModalityAudio
}

// NewTelemetryFrame 构造遥测帧并完成模态分类
func NewTelemetryFrame(sessionID string, payload []byte, threshold int) *TelemetryFrame {
	return &TelemetryFrame{
		SessionID:  sessionID,
		Payload:    payload,
		Modality:   Classify(payload, threshold),
		ReceivedAt: time.Now(),
	}
}
