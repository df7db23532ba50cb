package test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InterviewStream/internal/capability"
	"InterviewStream/internal/config"
	"InterviewStream/internal/protocol"
	"InterviewStream/internal/sandbox"
	"InterviewStream/internal/wsclient"
	"InterviewStream/internal/wsserver"
)

// 端到端测试：服务器挂在httptest上，客户端走真实的WebSocket握手和收发。

// testEnv 一套端到端测试环境
type testEnv struct {
	server *wsserver.Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Analysis.Interval = 10 * time.Millisecond // 测试里不需要节流间隔
	cfg.Sandbox.WorkDir = t.TempDir()

	srv := wsserver.New(cfg, capability.NewStaticRegistry())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Hub().Shutdown()
	})

	return &testEnv{server: srv, http: ts}
}

// wsURL 把httptest的http地址转成对应通道端点的ws地址
func (e *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + path
}

// dialChannel 建立客户端连接并把下行消息汇入通道
func dialChannel(t *testing.T, url string) (*wsclient.Client, chan *protocol.FeedbackMessage) {
	t.Helper()

	messages := make(chan *protocol.FeedbackMessage, 16)
	client := wsclient.New(wsclient.DefaultClientConfig(url))
	client.SetFeedbackHandler(func(msg *protocol.FeedbackMessage) {
		messages <- msg
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Close)

	return client, messages
}

// waitMessage 等待下一条下行消息
func waitMessage(t *testing.T, messages chan *protocol.FeedbackMessage) *protocol.FeedbackMessage {
	t.Helper()
	select {
	case msg := <-messages:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("等待下行消息超时")
		return nil
	}
}

// audioChunk 生成samples个采样的440Hz正弦波载荷
func audioChunk(samples int) []byte {
	payload := make([]byte, 4*samples)
	for i := 0; i < samples; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(v))
	}
	return payload
}

// echoRunner 端到端用的回显执行器桩
type echoRunner struct{}

func (echoRunner) Prepare(dir, code string) error {
	return os.WriteFile(filepath.Join(dir, "main.txt"), []byte(code), 0o644)
}

func (echoRunner) Run(ctx context.Context, dir, input string, memoryLimitMB int) (*sandbox.RunResult, error) {
	return &sandbox.RunResult{Stdout: input + "\n", MaxRSSKB: 1024}, nil
}

// TestInterviewChannelFeedbackFlow 遥测通道：欢迎消息 + 音频块实时反馈
func TestInterviewChannelFeedbackFlow(t *testing.T) {
	env := newTestEnv(t)
	client, messages := dialChannel(t, env.wsURL("/ws/interview/e2e-interview"))

	welcome := waitMessage(t, messages)
	require.Equal(t, protocol.TypeConnectionEstablished, welcome.Type)
	assert.Equal(t, "e2e-interview", welcome.SessionID)
	assert.NotEmpty(t, welcome.Message)

	// 2000采样 = 8000字节，低于视频帧阈值按音频处理
	require.NoError(t, client.SendTelemetry(audioChunk(2000)))

	feedback := waitMessage(t, messages)
	require.Equal(t, protocol.TypeRealTimeFeedback, feedback.Type)
	require.NotNil(t, feedback.Feedback)
	assert.Equal(t, protocol.ModalityAudio, feedback.Feedback.Modality)
	require.NotNil(t, feedback.Feedback.Audio)
	assert.False(t, feedback.Feedback.Audio.Empty())
}

// TestInterviewChannelBase64Telemetry 文本帧按base64约定解码
func TestInterviewChannelBase64Telemetry(t *testing.T) {
	env := newTestEnv(t)
	client, messages := dialChannel(t, env.wsURL("/ws/interview/e2e-base64"))

	waitMessage(t, messages) // 欢迎消息

	require.NoError(t, client.SendTelemetryBase64(audioChunk(2000)))

	feedback := waitMessage(t, messages)
	require.Equal(t, protocol.TypeRealTimeFeedback, feedback.Type)
	assert.Equal(t, protocol.ModalityAudio, feedback.Feedback.Modality)
}

// TestInterviewChannelBadFrameKeepsSessionOpen 坏帧只产生错误反馈，会话继续可用
func TestInterviewChannelBadFrameKeepsSessionOpen(t *testing.T) {
	env := newTestEnv(t)
	client, messages := dialChannel(t, env.wsURL("/ws/interview/e2e-badframe"))

	waitMessage(t, messages) // 欢迎消息

	// 长度错位的音频缓冲是坏帧
	require.NoError(t, client.SendTelemetry([]byte{1, 2, 3, 4, 5}))

	errMsg := waitMessage(t, messages)
	require.Equal(t, protocol.TypeError, errMsg.Type)
	assert.NotEmpty(t, errMsg.Error)

	// 等过节流间隔再发一块好的
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.SendTelemetry(audioChunk(2000)))

	feedback := waitMessage(t, messages)
	assert.Equal(t, protocol.TypeRealTimeFeedback, feedback.Type)
}

// TestCodingChannelExecution 编码通道：提交代码并取回结构化结果
func TestCodingChannelExecution(t *testing.T) {
	env := newTestEnv(t)
	env.server.Executor().RegisterRunner("python", echoRunner{})

	client, messages := dialChannel(t, env.wsURL("/ws/coding/e2e-coding"))
	waitMessage(t, messages) // 欢迎消息

	require.NoError(t, client.SendCode("print(input())", "python", []protocol.TestCase{
		{Input: "hello", Expected: "hello"},
		{Input: "world", Expected: "world"},
	}))

	result := waitMessage(t, messages)
	require.Equal(t, protocol.TypeCodingResult, result.Type)
	require.NotNil(t, result.Result)
	assert.Equal(t, protocol.ExecSuccess, result.Result.Status)
	assert.Equal(t, 2, result.Result.TestCasesPassed)
	assert.Equal(t, 2, result.Result.TotalTestCases)
}

// TestCodingChannelRejectsEmptyCode 空代码直接回错误消息
func TestCodingChannelRejectsEmptyCode(t *testing.T) {
	env := newTestEnv(t)
	client, messages := dialChannel(t, env.wsURL("/ws/coding/e2e-empty"))
	waitMessage(t, messages) // 欢迎消息

	require.NoError(t, client.SendCode("", "python", nil))

	errMsg := waitMessage(t, messages)
	require.Equal(t, protocol.TypeError, errMsg.Type)
	assert.Contains(t, errMsg.Error, "code is empty")
}

// TestQuestionPushEndpoint 管理接口向指定会话推送面试问题
func TestQuestionPushEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, messages := dialChannel(t, env.wsURL("/ws/interview/e2e-question"))
	waitMessage(t, messages) // 欢迎消息

	resp, err := http.Post(env.http.URL+"/sessions/e2e-question/question?type=behavioral", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	question := waitMessage(t, messages)
	require.Equal(t, protocol.TypeInterviewQuestion, question.Type)
	require.NotNil(t, question.Question)
	assert.NotEmpty(t, question.Question.Text)
	assert.Equal(t, "behavioral", question.Question.Type)

	// 不存在的会话返回404
	resp, err = http.Post(env.http.URL+"/sessions/no-such-session/question", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestAutoGeneratedSessionID 不带会话id的端点由服务端分配uuid
func TestAutoGeneratedSessionID(t *testing.T) {
	env := newTestEnv(t)
	_, messages := dialChannel(t, env.wsURL("/ws/interview"))

	welcome := waitMessage(t, messages)
	require.Equal(t, protocol.TypeConnectionEstablished, welcome.Type)

	id, err := uuid.Parse(welcome.SessionID)
	require.NoError(t, err, "服务端分配的会话id应是合法uuid")
	assert.NotEqual(t, uuid.Nil, id)
}

// TestCapabilityInitFailureLocksOutSessions 能力初始化失败是粘性的：
// 在场会话收到一次错误广播，之后的握手在升级前被拒绝
func TestCapabilityInitFailureLocksOutSessions(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.Interval = 10 * time.Millisecond
	cfg.Sandbox.WorkDir = t.TempDir()

	caps := capability.NewRegistry(func() (*capability.Set, error) {
		return nil, errors.New("model weights missing")
	})
	srv := wsserver.New(cfg, caps)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Hub().Shutdown()
	})
	base := "ws" + strings.TrimPrefix(ts.URL, "http")

	// 初始化是惰性的：连接本身成功，首个遥测帧才触发构建
	client, messages := dialChannel(t, base+"/ws/interview/e2e-init")
	waitMessage(t, messages) // 欢迎消息

	require.NoError(t, client.SendTelemetry(audioChunk(2000)))

	errMsg := waitMessage(t, messages)
	require.Equal(t, protocol.TypeError, errMsg.Type)
	assert.Contains(t, errMsg.Error, "capability initialization failed")

	// 之后的新连接在升级前被503拒绝
	conn, resp, err := websocket.DefaultDialer.Dial(base+"/ws/interview/e2e-init-late", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	if conn != nil {
		conn.Close()
	}

	// 健康检查同步反映故障
	hres, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	hres.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, hres.StatusCode)
}

// TestReconnectEvictsPreviousConnection 同会话id重连顶掉旧连接
func TestReconnectEvictsPreviousConnection(t *testing.T) {
	env := newTestEnv(t)

	_, firstMsgs := dialChannel(t, env.wsURL("/ws/interview/e2e-dup"))
	waitMessage(t, firstMsgs)

	_, secondMsgs := dialChannel(t, env.wsURL("/ws/interview/e2e-dup"))
	waitMessage(t, secondMsgs)

	// 注册表里该id只有一条会话
	require.Eventually(t, func() bool {
		return env.server.Hub().Count() == 1
	}, 2*time.Second, 20*time.Millisecond)
}

// TestHealthAndStatsEndpoints 健康检查和运行统计
func TestHealthAndStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, messages := dialChannel(t, env.wsURL("/ws/interview/e2e-stats"))
	waitMessage(t, messages)

	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
