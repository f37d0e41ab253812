package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
)

func TestBuildSSMLEscapesInput(t *testing.T) {
	ssml := BuildSSML(`Tom & "Jerry" <3`, "en-US-GuyNeural")

	if !strings.Contains(ssml, `<voice name="en-US-GuyNeural">`) {
		t.Fatalf("voice element missing: %s", ssml)
	}
	if !strings.Contains(ssml, `<prosody rate="0.9">`) {
		t.Fatalf("prosody rate missing: %s", ssml)
	}
	if !strings.Contains(ssml, "Tom &amp; &#34;Jerry&#34; &lt;3") {
		t.Fatalf("text not escaped: %s", ssml)
	}
}

func TestAzureTTSClientSynthesize(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cognitiveservices/v1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "azure-key" {
			t.Errorf("missing subscription key")
		}
		if r.Header.Get("Content-Type") != "application/ssml+xml" {
			t.Errorf("unexpected content type %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Microsoft-OutputFormat") != "audio-24khz-48kbitrate-mono-mp3" {
			t.Errorf("unexpected output format %s", r.Header.Get("X-Microsoft-OutputFormat"))
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	client := NewAzureTTSClient(&speechmodel.SpeechConfig{
		AzureKey:     "azure-key",
		AzureBaseURL: srv.URL,
		OutputFormat: "audio-24khz-48kbitrate-mono-mp3",
		Timeout:      5 * time.Second,
	})

	audio, err := client.Synthesize(context.Background(), "Hello there", "en-US-AriaNeural")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if string(audio) != "ID3fake" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if !strings.Contains(gotBody, "Hello there") || !strings.Contains(gotBody, "en-US-AriaNeural") {
		t.Fatalf("unexpected ssml body %s", gotBody)
	}
}

func TestAzureTTSClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewAzureTTSClient(&speechmodel.SpeechConfig{AzureKey: "k", AzureBaseURL: srv.URL})
	if _, err := client.Synthesize(context.Background(), "hi", DefaultVoice); err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestResolveVoice(t *testing.T) {
	cases := []struct {
		requested, fallback, want string
	}{
		{"English_Trustworth_Man", "", "en-US-GuyNeural"},
		{"", "", "en-US-AriaNeural"},
		{"  ", "en-GB-SoniaNeural", "en-GB-SoniaNeural"},
		{"en-US-JennyNeural", "", "en-US-JennyNeural"},
	}
	for _, c := range cases {
		if got := ResolveVoice(c.requested, c.fallback); got != c.want {
			t.Fatalf("ResolveVoice(%q, %q) = %q, want %q", c.requested, c.fallback, got, c.want)
		}
	}
}

func TestVoicesReturnsCopy(t *testing.T) {
	v := Voices()
	v[0].ID = "changed"
	if Voices()[0].ID == "changed" {
		t.Fatalf("catalog should not be mutable through Voices")
	}
}
