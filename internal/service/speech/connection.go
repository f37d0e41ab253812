package speech

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
)

// ConnectionManager 按会话 ID 管理活跃的识别会话
type ConnectionManager struct {
	sessions map[string]*CaptureSession
	mu       sync.RWMutex
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		sessions: make(map[string]*CaptureSession),
	}
}

// Add 登记会话，同一 ID 的旧会话会被中止。
func (cm *ConnectionManager) Add(sessionID string, session *CaptureSession) {
	cm.mu.Lock()
	old, exists := cm.sessions[sessionID]
	cm.sessions[sessionID] = session
	cm.mu.Unlock()

	if exists && old != session {
		old.abort()
	}
}

// Get 获取会话
func (cm *ConnectionManager) Get(sessionID string) (*CaptureSession, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	session, exists := cm.sessions[sessionID]
	return session, exists
}

// Remove 仅当登记的仍是 session 时才移除。
func (cm *ConnectionManager) Remove(sessionID string, session *CaptureSession) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if current, exists := cm.sessions[sessionID]; exists && current == session {
		delete(cm.sessions, sessionID)
	}
}

// Len 当前活跃会话数
func (cm *ConnectionManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.sessions)
}

// CloseAll 中止所有会话
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	sessions := make([]*CaptureSession, 0, len(cm.sessions))
	for id, s := range cm.sessions {
		sessions = append(sessions, s)
		delete(cm.sessions, id)
	}
	cm.mu.Unlock()

	for _, s := range sessions {
		s.abort()
	}
}

// ConnectionPoolOptions 连接池配置选项
type ConnectionPoolOptions struct {
	ConnectionTimeout time.Duration // 握手超时
	ReadTimeout       time.Duration // 无任何消息（含 pong）时断开
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	CloseWait         time.Duration // 发送 CloseStream 后等待对端关闭的上限
	Retry             RetryPolicy
}

// DefaultConnectionPoolOptions 默认连接池选项
func DefaultConnectionPoolOptions() *ConnectionPoolOptions {
	return &ConnectionPoolOptions{
		ConnectionTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      20 * time.Second,
		CloseWait:         5 * time.Second,
		Retry:             DefaultRetryPolicy(),
	}
}

// ConnectionPool 建立到 Deepgram 的流式连接并跟踪其生命周期
type ConnectionPool struct {
	manager *ConnectionManager
	options *ConnectionPoolOptions
	log     *logrus.Logger
}

// NewConnectionPool 创建连接池
func NewConnectionPool(options *ConnectionPoolOptions, log *logrus.Logger) *ConnectionPool {
	if options == nil {
		options = DefaultConnectionPoolOptions()
	}

	return &ConnectionPool{
		manager: NewConnectionManager(),
		options: options,
		log:     log,
	}
}

// GetManager 获取连接管理器
func (cp *ConnectionPool) GetManager() *ConnectionManager {
	return cp.manager
}

// OpenCapture 建立连接并返回处于 open 状态的识别会话。
func (cp *ConnectionPool) OpenCapture(ctx context.Context, url string, header map[string]string, sessionID string, onTranscript func(speechmodel.Transcript)) (*CaptureSession, error) {
	conn, err := cp.ConnectWithRetry(ctx, url, header, sessionID)
	if err != nil {
		return nil, err
	}

	session := newCaptureSession(sessionID, conn, cp.options, onTranscript, cp.log)
	session.onClose = func() { cp.manager.Remove(sessionID, session) }
	cp.manager.Add(sessionID, session)

	go cp.pingLoop(session)

	return session, nil
}

// ConnectWithRetry 带重试的连接建立，握手被拒（4xx）不重试。
func (cp *ConnectionPool) ConnectWithRetry(ctx context.Context, url string, header map[string]string, sessionID string) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := cp.options.Retry.Do(ctx, func(attempt int) error {
		c, err := cp.connect(ctx, url, header)
		if err != nil {
			cp.log.WithFields(logrus.Fields{
				"session_id": sessionID,
				"attempt":    attempt,
			}).WithError(err).Warn("deepgram dial failed")
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect deepgram: %w", err)
	}
	return conn, nil
}

// connect 建立单次连接
func (cp *ConnectionPool) connect(ctx context.Context, url string, header map[string]string) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: cp.options.ConnectionTimeout,
	}

	// 转换header格式
	wsHeader := make(http.Header)
	for k, v := range header {
		wsHeader.Set(k, v)
	}

	conn, resp, err := dialer.DialContext(ctx, url, wsHeader)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, Permanent(fmt.Errorf("websocket handshake rejected: status %d", resp.StatusCode))
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(cp.options.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(cp.options.ReadTimeout))
		return nil
	})

	return conn, nil
}

// pingLoop 定期发送ping消息
func (cp *ConnectionPool) pingLoop(session *CaptureSession) {
	if cp.options.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cp.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(cp.options.WriteTimeout)
			if err := session.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				cp.log.WithField("session_id", session.id).WithError(err).Debug("deepgram ping failed")
				session.abort()
				return
			}
		}
	}
}

// Cleanup 清理连接池
func (cp *ConnectionPool) Cleanup() {
	cp.manager.CloseAll()
}

// IsRetryableError 判断连接中断是否值得重新建立
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway)
}
