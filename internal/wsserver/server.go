package wsserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"InterviewStream/internal/analyzer"
	"InterviewStream/internal/capability"
	"InterviewStream/internal/config"
	"InterviewStream/internal/hub"
	"InterviewStream/internal/logger"
	"InterviewStream/internal/protocol"
	"InterviewStream/internal/sandbox"
)

const maxFrameSize = 4 * 1024 * 1024 // 4MB上行帧上限

// Server 面试遥测服务器
// 两个逻辑通道端点：/ws/interview/{session_id} 走遥测分析，
// /ws/coding/{session_id} 走代码执行。每个会话一个独立的读循环goroutine，
// 慢分析只阻塞自己的会话
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	emitter  *Emitter
	router   *analyzer.Router
	executor *sandbox.Executor
	caps     *capability.Registry

	upgrader websocket.Upgrader
	server   *http.Server
	handler  http.Handler

	ctx    context.Context
	cancel context.CancelFunc

	connWg     sync.WaitGroup
	isRunning  atomic.Bool
	initNotify sync.Once
	startTime  time.Time
}

// New 创建服务器
func New(cfg *config.Config, caps *capability.Registry) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	h := hub.New("Connected to interview analysis engine")
	s := &Server{
		cfg:     cfg,
		hub:     h,
		emitter: NewEmitter(h),
		router: analyzer.NewRouter(
			analyzer.NewVideoAnalyzer(caps),
			analyzer.NewAudioAnalyzer(caps, cfg.Analysis.SampleRate, cfg.Analysis.MinAudioSamples),
			cfg.Analysis.VideoFrameThreshold,
		),
		executor: sandbox.NewExecutor(cfg.Sandbox),
		caps:     caps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.Server.ReadBufferSize,
			WriteBufferSize:   cfg.Server.WriteBufferSize,
			EnableCompression: cfg.Server.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	r := mux.NewRouter()
	// 不带会话id的端点由服务端分配uuid，欢迎消息里带回
	r.HandleFunc("/ws/interview/{session_id}", s.handleInterviewWS)
	r.HandleFunc("/ws/interview", s.handleInterviewWS)
	r.HandleFunc("/ws/coding/{session_id}", s.handleCodingWS)
	r.HandleFunc("/ws/coding", s.handleCodingWS)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{session_id}/question", s.handleSendQuestion).Methods(http.MethodPost)
	r.HandleFunc("/questions/broadcast", s.handleBroadcastQuestion).Methods(http.MethodPost)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(r)

	s.server = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: s.handler,
	}

	return s
}

// Handler 返回完整的HTTP处理器（e2e测试挂到httptest上用）
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub 返回连接注册表
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Executor 返回代码执行网关
func (s *Server) Executor() *sandbox.Executor {
	return s.executor
}

// Start 启动服务器和后台清扫
func (s *Server) Start() error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("server is already running")
	}

	logger.Module("wsserver").Infof("Starting interview stream server on %s", s.cfg.Server.Addr)

	s.hub.StartSweeper(s.cfg.Server.SweepInterval, s.cfg.Server.InactivityTimeout)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Module("wsserver").Errorf("Server error: %v", err)
		}
	}()

	return nil
}

// Shutdown 关闭服务器：停收新连接，断开全部会话，等读循环退出
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(true, false) {
		return nil
	}

	logger.Module("wsserver").Info("Shutting down interview stream server...")

	s.cancel()
	s.hub.Shutdown()
	s.connWg.Wait()

	return s.server.Shutdown(ctx)
}

// sessionID 从路径取会话id，缺失时生成一个
func sessionID(r *http.Request) string {
	if id := mux.Vars(r)["session_id"]; id != "" {
		return id
	}
	return uuid.NewString()
}

// acceptWS 公共的升级前检查 + 升级 + 注册
func (s *Server) acceptWS(w http.ResponseWriter, r *http.Request) (*hub.Session, *websocket.Conn, bool) {
	// 能力初始化失败是进程级故障：恢复前拒绝一切新连接
	if err := s.caps.Err(); err != nil {
		http.Error(w, "analysis capabilities unavailable", http.StatusServiceUnavailable)
		return nil, nil, false
	}

	if s.hub.Count() >= s.cfg.Server.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return nil, nil, false
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Module("wsserver").Warnf("WebSocket upgrade failed: %v", err)
		return nil, nil, false
	}

	conn.SetReadLimit(maxFrameSize)

	id := sessionID(r)
	sess := s.hub.Connect(id, hub.NewWebSocketChannel(conn, 5*time.Second))
	return sess, conn, true
}

// handleInterviewWS 面试遥测通道
func (s *Server) handleInterviewWS(w http.ResponseWriter, r *http.Request) {
	sess, conn, ok := s.acceptWS(w, r)
	if !ok {
		return
	}

	s.connWg.Add(1)
	defer func() {
		s.hub.DisconnectSession(sess)
		s.connWg.Done()
	}()

	log := logger.Session("wsserver", sess.ID)
	log.Infof("interview session connected from %s", r.RemoteAddr)

	var lastAnalysis time.Time

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("interview channel read error: %v", err)
			}
			return
		}

		sess.Touch()

		payload, err := decodeChunk(messageType, raw)
		if err != nil {
			s.emitter.SendError(sess.ID, err.Error())
			continue
		}

		// 分析节流：同一会话两次完整分析之间保持最小间隔
		if !lastAnalysis.IsZero() && time.Since(lastAnalysis) < s.cfg.Analysis.Interval {
			continue
		}
		lastAnalysis = time.Now()

		// 一块处理完才读下一块：慢分析只对本会话形成背压
		frame := protocol.NewTelemetryFrame(sess.ID, payload, s.cfg.Analysis.VideoFrameThreshold)
		feedback, err := s.router.Process(s.ctx, frame)
		if err != nil {
			s.handleProcessError(sess.ID, err)
			continue
		}

		s.emitter.SendRealTimeFeedback(sess.ID, feedback)
	}
}

// handleCodingWS 编码通道
func (s *Server) handleCodingWS(w http.ResponseWriter, r *http.Request) {
	sess, conn, ok := s.acceptWS(w, r)
	if !ok {
		return
	}

	s.connWg.Add(1)
	defer func() {
		s.hub.DisconnectSession(sess)
		s.connWg.Done()
	}()

	log := logger.Session("wsserver", sess.ID)
	log.Infof("coding session connected from %s", r.RemoteAddr)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("coding channel read error: %v", err)
			}
			return
		}

		sess.Touch()

		req := &protocol.CodeExecutionRequest{}
		if err := json.Unmarshal(raw, req); err != nil {
			s.emitter.SendError(sess.ID, fmt.Sprintf("invalid code submission: %v", err))
			continue
		}
		if req.Code == "" {
			s.emitter.SendError(sess.ID, "invalid code submission: code is empty")
			continue
		}
		req.SessionID = sess.ID

		// 沙箱自带墙钟超时，独立于流式层
		result := s.executor.Execute(s.ctx, req, req.TestCases)
		s.emitter.SendCodingResult(sess.ID, result)
	}
}

// handleProcessError 区分坏帧和能力初始化故障
func (s *Server) handleProcessError(sessionID string, err error) {
	if errors.Is(err, analyzer.ErrDecode) {
		// 坏帧：下发错误反馈，会话保持打开
		s.emitter.SendError(sessionID, err.Error())
		return
	}

	if initErr := s.caps.Err(); initErr != nil {
		// 初始化失败对进程是致命的：通知所有在场会话，之后的连接在升级前被拒
		s.initNotify.Do(func() {
			logger.Module("wsserver").Errorf("能力初始化失败，通知全部会话: %v", initErr)
			s.hub.Broadcast(&protocol.FeedbackMessage{
				Type:  protocol.TypeError,
				Error: initErr.Error(),
			})
		})
		return
	}

	s.emitter.SendError(sessionID, err.Error())
}

// decodeChunk 解出原始遥测载荷
// 二进制帧直接透传；文本帧按应用层base64约定解码
func decodeChunk(messageType int, raw []byte) ([]byte, error) {
	switch messageType {
	case websocket.BinaryMessage:
		return raw, nil
	case websocket.TextMessage:
		payload, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 telemetry chunk: %v", err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unsupported websocket message type %d", messageType)
	}
}

// --- HTTP管理端点 ---

// apiResponse 管理接口统一响应结构
type apiResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	resp.Timestamp = time.Now().UnixMilli()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.caps.Err(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, apiResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.hub.Stats()
	stats["running"] = s.isRunning.Load()
	stats["uptime_seconds"] = time.Since(s.startTime).Seconds()
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: stats})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := make([]hub.SessionInfo, 0)
	for _, id := range s.hub.ActiveSessions() {
		if info, ok := s.hub.Info(id); ok {
			infos = append(infos, info)
		}
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: infos})
}

func (s *Server) handleSendQuestion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	if _, ok := s.hub.Get(id); !ok {
		writeJSON(w, http.StatusNotFound, apiResponse{Success: false, Message: "session not found"})
		return
	}

	q := pickQuestion(r.URL.Query().Get("type"))
	s.emitter.SendInterviewQuestion(id, q)
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: q})
}

func (s *Server) handleBroadcastQuestion(w http.ResponseWriter, r *http.Request) {
	q := pickQuestion(r.URL.Query().Get("type"))
	s.emitter.BroadcastQuestion(q)
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: q})
}
