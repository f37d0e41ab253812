package speech

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
)

// CaptureState 识别会话的生命周期状态
type CaptureState int32

const (
	CaptureOpen CaptureState = iota
	CaptureStreaming
	CaptureClosed
)

func (s CaptureState) String() string {
	switch s {
	case CaptureOpen:
		return "open"
	case CaptureStreaming:
		return "streaming"
	case CaptureClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CaptureStats 帧计数
type CaptureStats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
}

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

// CaptureSession 一次监听会话，持有到 Deepgram 的连接。
// 状态只会 open -> streaming -> closed 单向推进，非 streaming 状态下的帧直接丢弃。
type CaptureSession struct {
	id           string
	conn         *websocket.Conn
	log          *logrus.Logger
	writeTimeout time.Duration
	closeWait    time.Duration
	onTranscript func(speechmodel.Transcript)
	onClose      func()

	state   atomic.Int32
	sent    atomic.Int64
	dropped atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	finals  []string
	readErr error

	done      chan struct{}
	closeOnce sync.Once
}

func newCaptureSession(id string, conn *websocket.Conn, opts *ConnectionPoolOptions, onTranscript func(speechmodel.Transcript), log *logrus.Logger) *CaptureSession {
	s := &CaptureSession{
		id:           id,
		conn:         conn,
		log:          log,
		writeTimeout: opts.WriteTimeout,
		closeWait:    opts.CloseWait,
		onTranscript: onTranscript,
		done:         make(chan struct{}),
	}
	s.state.Store(int32(CaptureOpen))
	go s.readLoop(opts.ReadTimeout)
	return s
}

// ID 会话 ID
func (s *CaptureSession) ID() string { return s.id }

// State 当前状态
func (s *CaptureSession) State() CaptureState {
	return CaptureState(s.state.Load())
}

// Start 开始转发音频帧，只能从 open 进入 streaming。
func (s *CaptureSession) Start() bool {
	return s.state.CompareAndSwap(int32(CaptureOpen), int32(CaptureStreaming))
}

// Stats 返回已发送与已丢弃的帧数。
func (s *CaptureSession) Stats() CaptureStats {
	return CaptureStats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
}

// SendFrame 编码浮点采样并转发，返回是否真正发出。
func (s *CaptureSession) SendFrame(samples []float32) bool {
	if s.State() != CaptureStreaming {
		s.dropped.Add(1)
		return false
	}
	return s.SendPCM(Float32ToInt16LE(samples))
}

// SendPCM 转发已编码的 PCM16 帧。
func (s *CaptureSession) SendPCM(frame []byte) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.State() != CaptureStreaming {
		s.dropped.Add(1)
		return false
	}

	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.dropped.Add(1)
		s.log.WithField("session_id", s.id).WithError(err).Debug("audio frame write failed")
		return false
	}
	s.sent.Add(1)
	return true
}

// Transcript 目前为止所有最终结果的拼接。
func (s *CaptureSession) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.finals, " ")
}

// Err 读取循环遇到的非正常关闭错误。
func (s *CaptureSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Done 在连接断开后关闭。
func (s *CaptureSession) Done() <-chan struct{} { return s.done }

// Close 发送 CloseStream，等待对端收尾后关闭连接，返回最终文本。
func (s *CaptureSession) Close(ctx context.Context) string {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.state.Store(int32(CaptureClosed))
		if s.writeTimeout > 0 {
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		err := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage)
		s.writeMu.Unlock()

		if err == nil {
			wait := s.closeWait
			if wait <= 0 {
				wait = 5 * time.Second
			}
			timer := time.NewTimer(wait)
			select {
			case <-s.done:
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
		}
		s.teardown()
	})
	return s.Transcript()
}

// abort 不等待对端，直接断开。
func (s *CaptureSession) abort() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(CaptureClosed))
		s.teardown()
	})
}

func (s *CaptureSession) teardown() {
	s.conn.Close()
	<-s.done
	if s.onClose != nil {
		s.onClose()
	}
}

// deepgramMessage Deepgram 流式识别返回的结果消息
type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

func (s *CaptureSession) readLoop(readTimeout time.Duration) {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() != CaptureClosed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
				s.log.WithField("session_id", s.id).WithError(err).Warn("deepgram stream ended unexpectedly")
			}
			s.state.Store(int32(CaptureClosed))
			return
		}
		if readTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		s.handleMessage(data)
	}
}

func (s *CaptureSession) handleMessage(data []byte) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.WithField("session_id", s.id).WithError(err).Debug("ignoring non-json deepgram message")
		return
	}
	if msg.Type != "" && msg.Type != "Results" {
		return
	}
	if len(msg.Channel.Alternatives) == 0 {
		return
	}

	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" {
		return
	}

	if msg.IsFinal {
		s.mu.Lock()
		s.finals = append(s.finals, text)
		s.mu.Unlock()
	}
	if s.onTranscript != nil {
		s.onTranscript(speechmodel.Transcript{Text: text, IsFinal: msg.IsFinal})
	}
}
