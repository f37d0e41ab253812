package speech

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func boolPtr(v bool) *bool { return &v }

func TestApplyConfigUpdatesState(t *testing.T) {
	state := newConnectionState("session")
	handler := &WebSocketHandler{}

	handler.applyConfig(state, ConfigMessage{Voice: "en-GB-RyanNeural", TTSEnabled: boolPtr(false)})

	if state.voice != "en-GB-RyanNeural" {
		t.Fatalf("expected voice en-GB-RyanNeural, got %s", state.voice)
	}
	if state.ttsEnabled {
		t.Fatalf("expected TTS disabled")
	}

	handler.applyConfig(state, ConfigMessage{})
	if state.voice != "en-GB-RyanNeural" || state.ttsEnabled {
		t.Fatalf("empty config should not change state")
	}
}

func dialVoice(t *testing.T, env testEnv, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil 读取服务端消息直到 match 返回 true。
func readUntil(t *testing.T, conn *websocket.Conn, match func(kind string, data map[string]any) bool) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg.Type, msg.Data) {
			return msg.Data
		}
	}
}

func resultOf(kind string) func(string, map[string]any) bool {
	return func(t string, data map[string]any) bool {
		return t == "result" && data["type"] == kind
	}
}

func TestVoiceWebSocketTextTurn(t *testing.T) {
	env := setupEnv(t, &fakeSynth{audio: []byte("mp3")}, false, Options{})
	conn := dialVoice(t, env, "ws-1")

	readUntil(t, conn, resultOf("connected"))

	msg, _ := json.Marshal(map[string]any{"type": "text", "data": map[string]string{"text": "hello"}})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	turn := readUntil(t, conn, resultOf("turn"))
	if turn["intent"] != "greeting" || turn["handoffNeeded"] != false {
		t.Fatalf("unexpected turn %+v", turn)
	}

	tts := readUntil(t, conn, resultOf("tts"))
	if tts["audioData"] != "bXAz" {
		t.Fatalf("expected base64 audio, got %+v", tts)
	}
}

func TestVoiceWebSocketClientTTSFallback(t *testing.T) {
	env := setupEnv(t, nil, false, Options{})
	conn := dialVoice(t, env, "ws-2")

	conn.WriteJSON(map[string]any{"type": "config", "data": map[string]string{"voice": "English_Trustworth_Man"}})
	cfg := readUntil(t, conn, resultOf("config"))
	if cfg["voice"] != "English_Trustworth_Man" {
		t.Fatalf("unexpected config ack %+v", cfg)
	}

	conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "thanks, bye"}})
	tts := readUntil(t, conn, resultOf("tts"))
	if tts["useClientTTS"] != true || tts["voiceId"] != "English_Trustworth_Man" {
		t.Fatalf("expected client tts fallback, got %+v", tts)
	}
}

func TestVoiceWebSocketStreamingTurn(t *testing.T) {
	env := setupEnv(t, &fakeSynth{audio: []byte("mp3")}, true, Options{})
	conn := dialVoice(t, env, "ws-3")

	conn.WriteJSON(map[string]any{"type": "start"})
	readUntil(t, conn, resultOf("listening"))

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 8192)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	conn.WriteJSON(map[string]any{"type": "stop"})

	asr := readUntil(t, conn, func(kind string, data map[string]any) bool {
		return kind == "result" && data["type"] == "asr" && data["stats"] != nil
	})
	if asr["text"] != "I need help with my account" || asr["isFinal"] != true {
		t.Fatalf("unexpected final transcript %+v", asr)
	}

	turn := readUntil(t, conn, resultOf("turn"))
	if turn["intent"] != "help" {
		t.Fatalf("expected help intent, got %+v", turn)
	}
}

func TestVoiceWebSocketStopWithoutStart(t *testing.T) {
	env := setupEnv(t, nil, false, Options{})
	conn := dialVoice(t, env, "ws-4")

	conn.WriteJSON(map[string]any{"type": "stop"})
	data := readUntil(t, conn, func(kind string, _ map[string]any) bool { return kind == "error" })
	if data["message"] != "not listening" {
		t.Fatalf("unexpected error %+v", data)
	}
}

func TestVoiceWebSocketRejectsInsecureRequest(t *testing.T) {
	env := setupEnv(t, nil, false, Options{RequireSecure: true})

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/voice/ws/s1", nil))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "requires a secure connection (HTTPS)") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}
