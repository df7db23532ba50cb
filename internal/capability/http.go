package capability

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/cenkalti/backoff/v4"

	"InterviewStream/internal/config"
	"InterviewStream/internal/protocol"
)

// HTTP实现：每个能力对应一个独立的模型服务端点，走JSON契约。
// 可恢复的网络错误通过指数退避重试，重试次数由配置控制。

// NewHTTPSet 根据配置构建一组HTTP能力适配器
func NewHTTPSet(cfg config.CapabilitiesConfig) *Set {
	return &Set{
		Transcriber: &httpTranscriber{newEndpoint(cfg.ASR, cfg.MaxRetries)},
		Face:        &httpFace{newEndpoint(cfg.Face, cfg.MaxRetries)},
		Pose:        &httpPose{newEndpoint(cfg.Pose, cfg.MaxRetries)},
		Sentiment:   &httpSentiment{newEndpoint(cfg.Sentiment, cfg.MaxRetries)},
		Emotion:     &httpEmotion{newEndpoint(cfg.Emotion, cfg.MaxRetries)},
	}
}

type endpoint struct {
	c       *http.Client
	url     string
	retries uint64
}

func newEndpoint(ep config.CapabilityEndpoint, retries uint64) endpoint {
	return endpoint{
		c:       &http.Client{Timeout: ep.Timeout},
		url:     ep.URL,
		retries: retries,
	}
}

// postJSON 发送JSON请求并解析JSON响应，失败时退避重试
func (e endpoint) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return e.do(req, path, out)
	}

	return backoff.Retry(op, e.backoff(ctx))
}

func (e endpoint) do(req *http.Request, path string, out interface{}) error {
	resp, err := e.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("capability %s: %s: %s", path, resp.Status, string(raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// 客户端错误重试没有意义
			return backoff.Permanent(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("capability %s decode: %w", path, err))
	}
	return nil
}

func (e endpoint) backoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.retries), ctx)
}

// --- 语音转写 (/transcribe) ---

type transSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcribeResp struct {
	Segments []transSegment `json:"segments"`
	Language string         `json:"language"`
}

type httpTranscriber struct{ endpoint }

func (t *httpTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	// 采样以float32小端裸流上传，采样率作为表单字段
	raw := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(s))
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", "chunk.f32le")
	if err != nil {
		return "", err
	}
	if _, err = fw.Write(raw); err != nil {
		return "", err
	}
	if err = w.WriteField("sample_rate", strconv.Itoa(sampleRate)); err != nil {
		return "", err
	}
	if err = w.Close(); err != nil {
		return "", err
	}
	body := b.Bytes()

	var out transcribeResp
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+"/transcribe", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return t.do(req, "/transcribe", &out)
	}
	if err := backoff.Retry(op, t.backoff(ctx)); err != nil {
		return "", err
	}

	var text bytes.Buffer
	for _, seg := range out.Segments {
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(seg.Text)
	}
	return text.String(), nil
}

// --- 人脸网格 (/face) ---

type faceResp struct {
	FaceDetected    bool                      `json:"face_detected"`
	EyeContactScore float64                   `json:"eye_contact_score"`
	Expression      protocol.ExpressionScores `json:"expression"`
}

type httpFace struct{ endpoint }

func (f *httpFace) AnalyzeFace(ctx context.Context, image []byte) (*FaceReading, error) {
	var out faceResp
	in := map[string]interface{}{"image": image} // []byte 经json编码为base64
	if err := f.postJSON(ctx, "/face", in, &out); err != nil {
		return nil, err
	}
	if !out.FaceDetected {
		return nil, ErrNoFace
	}
	return &FaceReading{
		EyeContactScore: out.EyeContactScore,
		Expression:      out.Expression,
	}, nil
}

// --- 姿态检测 (/pose) ---

type poseResp struct {
	BodyDetected      bool    `json:"body_detected"`
	PostureScore      float64 `json:"posture_score"`
	ShoulderAlignment string  `json:"shoulder_alignment"`
	HeadPosition      string  `json:"head_position"`
	BodyLanguage      string  `json:"overall_body_language"`
}

type httpPose struct{ endpoint }

func (p *httpPose) DetectPose(ctx context.Context, image []byte) (*PoseReading, error) {
	var out poseResp
	in := map[string]interface{}{"image": image}
	if err := p.postJSON(ctx, "/pose", in, &out); err != nil {
		return nil, err
	}
	if !out.BodyDetected {
		return nil, ErrNoBody
	}
	return &PoseReading{
		PostureScore:      out.PostureScore,
		ShoulderAlignment: out.ShoulderAlignment,
		HeadPosition:      out.HeadPosition,
		BodyLanguage:      out.BodyLanguage,
	}, nil
}

// --- 情感分类 (/sentiment) ---

type httpSentiment struct{ endpoint }

func (s *httpSentiment) ClassifySentiment(ctx context.Context, text string) (*protocol.LabelScore, error) {
	var out protocol.LabelScore
	if err := s.postJSON(ctx, "/sentiment", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- 情绪分类 (/detect) ---

type emotionResp struct {
	Emotions        []protocol.LabelScore `json:"emotions"`
	DominantEmotion string                `json:"dominant_emotion"`
}

type httpEmotion struct{ endpoint }

func (e *httpEmotion) ClassifyEmotion(ctx context.Context, text string) (*protocol.LabelScore, error) {
	var out emotionResp
	if err := e.postJSON(ctx, "/detect", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	if len(out.Emotions) == 0 {
		return nil, fmt.Errorf("emotion service returned no scores")
	}
	// 取主导情绪
	best := out.Emotions[0]
	for _, cand := range out.Emotions[1:] {
		if cand.Score > best.Score {
			best = cand
		}
	}
	return &best, nil
}
