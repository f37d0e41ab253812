package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_ANON_KEY", "STORAGE_BACKEND", "DEEPGRAM_KEY_TTL", "TTS_DEFAULT_VOICE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Deepgram.KeyTTL != 60 {
		t.Fatalf("expected key ttl 60, got %d", cfg.Deepgram.KeyTTL)
	}
	if cfg.Deepgram.MaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.Deepgram.MaxRetries)
	}
	if cfg.TTS.DefaultVoice != "en-US-AriaNeural" {
		t.Fatalf("unexpected default voice %s", cfg.TTS.DefaultVoice)
	}
	if cfg.Storage.Backend != StorageNone {
		t.Fatalf("expected no storage backend without supabase, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Bucket != "audio-recordings" {
		t.Fatalf("unexpected bucket %s", cfg.Storage.Bucket)
	}
	if cfg.Turn.PersistTimeout != 10*time.Second {
		t.Fatalf("unexpected persist timeout %s", cfg.Turn.PersistTimeout)
	}
}

func TestLoadServerConfigPortForms(t *testing.T) {
	cases := map[string]string{
		"9000":           ":9000",
		":7000":          ":7000",
		"127.0.0.1:6000": "127.0.0.1:6000",
	}
	for port, want := range cases {
		t.Setenv("PORT", port)
		cfg, err := loadServerConfig()
		if err != nil {
			t.Fatalf("port %q: %v", port, err)
		}
		if cfg.Addr != want {
			t.Fatalf("port %q: expected %s, got %s", port, want, cfg.Addr)
		}
	}

	t.Setenv("PORT", "80 80")
	if _, err := loadServerConfig(); err == nil {
		t.Fatalf("expected error for port with spaces")
	}
}

func TestStorageDefaultsToSupabaseWhenConfigured(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	cfg, err := loadStorageConfig(SupabaseConfig{URL: "https://x.supabase.co", ServiceRoleKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != StorageSupabase {
		t.Fatalf("expected supabase backend, got %s", cfg.Backend)
	}
}

func TestStorageRejectsGCSWithoutBucket(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "")
	if _, err := loadStorageConfig(SupabaseConfig{}); err == nil {
		t.Fatalf("expected error when gcs bucket missing")
	}
}

func TestInvalidIntEnv(t *testing.T) {
	t.Setenv("DEEPGRAM_KEY_TTL", "soon")
	if _, err := loadDeepgramConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSpeechConfigMapping(t *testing.T) {
	cfg := &Config{
		Deepgram: DeepgramConfig{APIKey: "dg", KeyTTL: 30, MaxRetries: 2},
		TTS:      TTSConfig{AzureKey: "az", AzureRegion: "westus", DefaultVoice: "en-US-GuyNeural"},
	}
	sc := cfg.SpeechConfig()
	if sc.DeepgramAPIKey != "dg" || sc.EphemeralKeyTTL != 30 || sc.MaxRetries != 2 {
		t.Fatalf("deepgram settings not mapped: %+v", sc)
	}
	if sc.AzureKey != "az" || sc.AzureRegion != "westus" || sc.DefaultVoice != "en-US-GuyNeural" {
		t.Fatalf("tts settings not mapped: %+v", sc)
	}
	if sc.ProjectIDCacheTTL != time.Hour {
		t.Fatalf("unexpected project id cache ttl %s", sc.ProjectIDCacheTTL)
	}
}
