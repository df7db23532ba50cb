package wsserver

import (
	"InterviewStream/internal/hub"
	"InterviewStream/internal/protocol"
)

// Emitter 反馈发射器
// 把各组件的结果包装成信封并通过注册表下发，
// 每种消息类型一个辅助方法，信封编码处的穷尽校验兜底
type Emitter struct {
	hub *hub.Hub
}

// NewEmitter 创建反馈发射器
func NewEmitter(h *hub.Hub) *Emitter {
	return &Emitter{hub: h}
}

// SendRealTimeFeedback 下发实时分析反馈
func (e *Emitter) SendRealTimeFeedback(sessionID string, feedback *protocol.RealTimeFeedback) {
	e.hub.SendPersonal(sessionID, &protocol.FeedbackMessage{
		Type:      protocol.TypeRealTimeFeedback,
		SessionID: sessionID,
		Feedback:  feedback,
	})
}

// SendCodingResult 下发代码执行结果
func (e *Emitter) SendCodingResult(sessionID string, result *protocol.CodeExecutionResult) {
	e.hub.SendPersonal(sessionID, &protocol.FeedbackMessage{
		Type:      protocol.TypeCodingResult,
		SessionID: sessionID,
		Result:    result,
	})
}

// SendInterviewQuestion 下发一道面试问题
func (e *Emitter) SendInterviewQuestion(sessionID string, q *protocol.InterviewQuestion) {
	e.hub.SendPersonal(sessionID, &protocol.FeedbackMessage{
		Type:      protocol.TypeInterviewQuestion,
		SessionID: sessionID,
		Question:  q,
	})
}

// BroadcastQuestion 向所有会话广播同一道问题
func (e *Emitter) BroadcastQuestion(q *protocol.InterviewQuestion) {
	e.hub.Broadcast(&protocol.FeedbackMessage{
		Type:     protocol.TypeInterviewQuestion,
		Question: q,
	})
}

// SendError 下发错误反馈，会话保持打开
func (e *Emitter) SendError(sessionID, detail string) {
	e.hub.SendPersonal(sessionID, &protocol.FeedbackMessage{
		Type:      protocol.TypeError,
		SessionID: sessionID,
		Error:     detail,
	})
}
