package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"InterviewStream/internal/logger"
	"InterviewStream/internal/protocol"
)

// SessionState 会话生命周期状态
type SessionState int32

const (
	StateOpen SessionState = iota
	StateIdle
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateIdle:
		return "IDLE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session 一个活跃会话的注册表条目
// 仅由注册表操作修改；被驱逐后不会复活，同id重连产生全新条目
type Session struct {
	ID          string
	ConnectedAt time.Time

	channel      Channel
	messageCount atomic.Uint64
	lastActivity atomic.Int64 // unix nano
	state        atomic.Int32
}

// MessageCount 已下发消息数
func (s *Session) MessageCount() uint64 { return s.messageCount.Load() }

// LastActivity 最近活动时间
func (s *Session) LastActivity() time.Time { return time.Unix(0, s.lastActivity.Load()) }

// State 当前状态
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Touch 刷新最近活动时间（注册表内部及上行帧到达时调用）
func (s *Session) Touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// SessionInfo 会话元数据快照（/stats用）
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount uint64    `json:"message_count"`
	State        string    `json:"state"`
}

// Hub 连接注册表
// 持有 session id → 双工通道 的唯一映射。map的全部变更都在短临界区内完成，
// 实际的网络写操作在锁外执行（通道自带写锁）
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	welcome string

	sweepWg sync.WaitGroup
	stopCh  chan struct{}
	stopped atomic.Bool

	totalConnections atomic.Uint64
	totalMessages    atomic.Uint64
}

// New 创建连接注册表
func New(welcome string) *Hub {
	if welcome == "" {
		welcome = "Connected to interview analysis engine"
	}
	return &Hub{
		sessions: make(map[string]*Session),
		welcome:  welcome,
		stopCh:   make(chan struct{}),
	}
}

// Connect 注册一个新会话通道并立即下发 connection_established
// 同id已有通道时先驱逐旧通道（后写者胜）
func (h *Hub) Connect(sessionID string, ch Channel) *Session {
	now := time.Now()
	sess := &Session{
		ID:          sessionID,
		ConnectedAt: now,
		channel:     ch,
	}
	sess.lastActivity.Store(now.UnixNano())

	h.mu.Lock()
	old, exists := h.sessions[sessionID]
	h.sessions[sessionID] = sess
	h.mu.Unlock()

	if exists {
		old.state.Store(int32(StateClosed))
		old.channel.Close()
		logger.Session("hub", sessionID).Warn("同id重复连接，旧通道已驱逐")
	}

	h.totalConnections.Add(1)
	logger.Session("hub", sessionID).Info("会话已连接")

	h.SendPersonal(sessionID, &protocol.FeedbackMessage{
		Type:      protocol.TypeConnectionEstablished,
		SessionID: sessionID,
		Message:   h.welcome,
	})

	return sess
}

// Disconnect 移除会话及其元数据，幂等
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	sess, exists := h.sessions[sessionID]
	if exists {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if !exists {
		return
	}

	sess.state.Store(int32(StateClosed))
	sess.channel.Close()
	logger.Session("hub", sessionID).Info("会话已断开")
}

// DisconnectSession 断开某个具体会话实例
// 同id重连驱逐旧通道后，旧的读循环退出时用它收尾，不会误伤新会话
func (h *Hub) DisconnectSession(sess *Session) {
	h.evict(sess)
}

// evict 仅当map里仍然是这一个会话实例时才移除
// 避免广播快照里的旧实例写失败时误删同id的新会话
func (h *Hub) evict(sess *Session) {
	h.mu.Lock()
	if cur, ok := h.sessions[sess.ID]; ok && cur == sess {
		delete(h.sessions, sess.ID)
	}
	h.mu.Unlock()

	// 已进入终态的会话保持原状态（闲置清理标记的Idle不被覆盖）
	sess.state.CompareAndSwap(int32(StateOpen), int32(StateClosed))
	sess.channel.Close()
}

// SendPersonal 向指定会话下发一条消息
// 会话不存在时为无操作；写失败视为隐式断连，会话被静默驱逐。
// 任何情况下都不向调用方抛错
func (h *Hub) SendPersonal(sessionID string, msg *protocol.FeedbackMessage) {
	h.mu.RLock()
	sess, exists := h.sessions[sessionID]
	h.mu.RUnlock()

	if !exists {
		return
	}

	h.deliver(sess, msg)
}

// deliver 编码并写出，成功则更新计数，失败则驱逐
// 在副本上补会话id和时间戳，调用方的消息不被修改
func (h *Hub) deliver(sess *Session, msg *protocol.FeedbackMessage) bool {
	clone := *msg
	if clone.SessionID == "" {
		clone.SessionID = sess.ID
	}

	data, err := protocol.Encode(&clone)
	if err != nil {
		logger.Session("hub", sess.ID).Errorf("消息编码失败: %v", err)
		return false
	}

	if err := sess.channel.WriteText(data); err != nil {
		logger.Session("hub", sess.ID).Warnf("写通道失败，驱逐会话: %v", err)
		h.evict(sess)
		return false
	}

	sess.messageCount.Add(1)
	sess.Touch()
	h.totalMessages.Add(1)
	return true
}

// Broadcast 并发地向所有已注册会话下发消息
// 单个通道的失败不影响其余会话（部分成功），失败者被逐个驱逐
func (h *Hub) Broadcast(msg *protocol.FeedbackMessage) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sess := range targets {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			// deliver在各自的副本上补会话id
			h.deliver(s, msg)
		}(sess)
	}
	wg.Wait()
}

// CleanupInactive 驱逐所有超过timeout没有活动的会话，返回驱逐数量
func (h *Hub) CleanupInactive(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	h.mu.RLock()
	var stale []*Session
	for _, sess := range h.sessions {
		if sess.LastActivity().Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range stale {
		sess.state.Store(int32(StateIdle))
		logger.Session("hub", sess.ID).Infof("会话闲置超过 %s，清理", timeout)
		h.evict(sess)
	}
	return len(stale)
}

// StartSweeper 启动后台闲置清扫，独立于任何收发路径
func (h *Hub) StartSweeper(interval, timeout time.Duration) {
	h.sweepWg.Add(1)
	go func() {
		defer h.sweepWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				if n := h.CleanupInactive(timeout); n > 0 {
					logger.Module("hub").Infof("清扫器驱逐了 %d 个闲置会话", n)
				}
			}
		}
	}()
}

// Shutdown 停止清扫并断开所有会话
func (h *Hub) Shutdown() {
	if !h.stopped.CompareAndSwap(false, true) {
		return
	}
	close(h.stopCh)
	h.sweepWg.Wait()

	for _, id := range h.ActiveSessions() {
		h.Disconnect(id)
	}
}

// Get 查找会话
func (h *Hub) Get(sessionID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[sessionID]
	return sess, ok
}

// ActiveSessions 当前注册的会话id列表
func (h *Hub) ActiveSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count 当前会话数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Info 会话元数据快照
func (h *Hub) Info(sessionID string) (SessionInfo, bool) {
	sess, ok := h.Get(sessionID)
	if !ok {
		return SessionInfo{}, false
	}
	return SessionInfo{
		SessionID:    sess.ID,
		ConnectedAt:  sess.ConnectedAt,
		LastActivity: sess.LastActivity(),
		MessageCount: sess.MessageCount(),
		State:        sess.State().String(),
	}, true
}

// Stats 注册表累计统计
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"current_connections": h.Count(),
		"total_connections":   h.totalConnections.Load(),
		"total_messages":      h.totalMessages.Load(),
	}
}
