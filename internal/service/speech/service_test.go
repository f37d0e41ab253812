package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/echo-voice/backend/internal/logger"
	"github.com/zhouzirui/echo-voice/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

type fakeSynth struct {
	audio []byte
	err   error
	voice string
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string, voice string) ([]byte, error) {
	f.voice = voice
	return f.audio, f.err
}

type fakeUploader struct {
	name string
	data []byte
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, objectName, _ string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.name = objectName
	f.data, _ = io.ReadAll(r)
	return "https://cdn.example.com/" + objectName, nil
}

type fakeMetrics struct {
	mu   sync.Mutex
	rows []chat.AnalyticsMetric
}

func (f *fakeMetrics) RecordMetrics(_ context.Context, _ string, rows ...chat.AnalyticsMetric) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
}

func newTestService(synth Synthesizer, up *fakeUploader, m *fakeMetrics) *Service {
	opts := Options{Synthesizer: synth}
	if m != nil {
		opts.Metrics = m
	}
	if up != nil {
		opts.Uploader = up
	}
	svc := NewService(&speechmodel.SpeechConfig{DefaultVoice: DefaultVoice}, opts, logger.Discard())
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc
}

func TestSynthesizeUploadsAndRecords(t *testing.T) {
	synth := &fakeSynth{audio: []byte("mp3")}
	up := &fakeUploader{}
	m := &fakeMetrics{}
	svc := newTestService(synth, up, m)

	resp, fallback, err := svc.Synthesize(context.Background(), speechmodel.TTSRequest{
		Text:           "Hello",
		ConversationID: "sess-1",
		VoiceID:        "English_Trustworth_Man",
	})
	if err != nil || fallback != nil {
		t.Fatalf("expected audio response, got fallback=%v err=%v", fallback, err)
	}
	if synth.voice != "en-US-GuyNeural" {
		t.Fatalf("voice alias not resolved: %s", synth.voice)
	}
	if up.name != "conversation_sess-1_1700000000000.mp3" {
		t.Fatalf("unexpected object name %s", up.name)
	}
	if resp.AudioURL != "https://cdn.example.com/conversation_sess-1_1700000000000.mp3" {
		t.Fatalf("unexpected audio url %s", resp.AudioURL)
	}
	if string(resp.AudioData) != "mp3" || resp.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if len(m.rows) != 1 || m.rows[0].MetricName != chat.MetricAudioGenerated {
		t.Fatalf("expected audio_generated metric, got %+v", m.rows)
	}
	var meta map[string]string
	if err := json.Unmarshal(m.rows[0].Metadata, &meta); err != nil || meta["value"] != resp.AudioURL {
		t.Fatalf("unexpected metadata %s", m.rows[0].Metadata)
	}
}

func TestSynthesizeFallsBackOnProviderError(t *testing.T) {
	svc := newTestService(&fakeSynth{err: errors.New("boom")}, nil, &fakeMetrics{})

	resp, fallback, err := svc.Synthesize(context.Background(), speechmodel.TTSRequest{Text: "Hi", VoiceID: "v1"})
	if err != nil || resp != nil {
		t.Fatalf("expected fallback, got resp=%v err=%v", resp, err)
	}
	want := speechmodel.TTSFallback{Success: true, Text: "Hi", UseClientTTS: true, VoiceID: "v1"}
	if *fallback != want {
		t.Fatalf("unexpected fallback %+v", fallback)
	}
}

func TestSynthesizeFallsBackWithoutProvider(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	_, fallback, err := svc.Synthesize(context.Background(), speechmodel.TTSRequest{Text: "Hi"})
	if err != nil || fallback == nil || !fallback.UseClientTTS {
		t.Fatalf("expected client tts fallback, got %v %v", fallback, err)
	}
}

func TestSynthesizeUploadFailureKeepsAudio(t *testing.T) {
	svc := newTestService(&fakeSynth{audio: []byte("mp3")}, &fakeUploader{err: errors.New("denied")}, &fakeMetrics{})

	resp, fallback, err := svc.Synthesize(context.Background(), speechmodel.TTSRequest{Text: "Hi", ConversationID: "c"})
	if err != nil || fallback != nil {
		t.Fatalf("unexpected fallback=%v err=%v", fallback, err)
	}
	if resp.AudioURL != "" || len(resp.AudioData) == 0 {
		t.Fatalf("expected audio without url, got %+v", resp)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	svc := newTestService(&fakeSynth{}, nil, nil)
	_, _, err := svc.Synthesize(context.Background(), speechmodel.TTSRequest{Text: "   "})
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestIssueCredentialWithoutIssuer(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	_, err := svc.IssueCredential(context.Background())
	if err == nil || !strings.Contains(err.Error(), "DEEPGRAM_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
