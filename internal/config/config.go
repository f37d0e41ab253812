package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Supabase  SupabaseConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Deepgram  DeepgramConfig
	TTS       TTSConfig
	Storage   StorageConfig
	Turn      TurnConfig
	Analytics AnalyticsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	deepgram, err := loadDeepgramConfig()
	if err != nil {
		return nil, err
	}

	tts, err := loadTTSConfig()
	if err != nil {
		return nil, err
	}

	turn, err := loadTurnConfig()
	if err != nil {
		return nil, err
	}

	analytics, err := loadAnalyticsConfig()
	if err != nil {
		return nil, err
	}

	supabase := loadSupabaseConfig()
	database := DatabaseConfig{URL: firstEnv("DATABASE_URL", "POSTGRES_URI")}
	redis := RedisConfig{Addr: firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL")}

	storage, err := loadStorageConfig(supabase)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Supabase:  supabase,
		Database:  database,
		Redis:     redis,
		Deepgram:  deepgram,
		TTS:       tts,
		Storage:   storage,
		Turn:      turn,
		Analytics: analytics,
	}, nil
}

// SpeechConfig 组装语音服务所需的配置。
func (c *Config) SpeechConfig() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		DeepgramAPIKey:    c.Deepgram.APIKey,
		DeepgramBaseURL:   c.Deepgram.BaseURL,
		DeepgramListenURL: c.Deepgram.ListenURL,
		DeepgramModel:     c.Deepgram.Model,
		EphemeralKeyTTL:   c.Deepgram.KeyTTL,
		SampleRate:        c.Deepgram.SampleRate,
		MaxRetries:        c.Deepgram.MaxRetries,
		RetryDelay:        c.Deepgram.RetryDelay,
		ProjectIDCacheTTL: time.Hour,
		AzureKey:          c.TTS.AzureKey,
		AzureRegion:       c.TTS.AzureRegion,
		DefaultVoice:      c.TTS.DefaultVoice,
		OutputFormat:      c.TTS.OutputFormat,
		Timeout:           c.TTS.Timeout,
	}
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// RequireSecureVoice 为 true 时拒绝非 HTTPS 的语音连接。
	RequireSecureVoice bool
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	secure, err := parseBoolEnv("VOICE_REQUIRE_SECURE", false)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, RequireSecureVoice: secure}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, RequireSecureVoice: secure}, nil
}

// SupabaseConfig 描述 Supabase 项目凭证。
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
}

// Enabled 表示是否可以访问 Supabase REST/Storage。
func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.ServiceRoleKey != ""
}

func loadSupabaseConfig() SupabaseConfig {
	return SupabaseConfig{
		URL:            strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		ServiceRoleKey: firstEnv("SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_ANON_KEY"),
		JWTSecret:      strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET")),
		JWTIssuer:      strings.TrimSpace(os.Getenv("SUPABASE_JWT_ISSUER")),
		JWTAudience:    strings.TrimSpace(os.Getenv("SUPABASE_JWT_AUDIENCE")),
	}
}

// DatabaseConfig 直连 Postgres 的配置，优先于 Supabase REST。
type DatabaseConfig struct {
	URL string
}

// RedisConfig 缓存配置，Addr 可以是 host:port 或 redis:// URL。
type RedisConfig struct {
	Addr string
}

// DeepgramConfig 描述语音识别服务配置。
type DeepgramConfig struct {
	APIKey     string
	BaseURL    string
	ListenURL  string
	Model      string
	KeyTTL     int // seconds
	SampleRate int
	MaxRetries int
	RetryDelay time.Duration
}

// Enabled 表示是否配置了 Deepgram 密钥。
func (c DeepgramConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadDeepgramConfig() (DeepgramConfig, error) {
	ttl, err := parseIntEnvOrDefault("DEEPGRAM_KEY_TTL", 60)
	if err != nil {
		return DeepgramConfig{}, err
	}
	sampleRate, err := parseIntEnvOrDefault("DEEPGRAM_SAMPLE_RATE", 16000)
	if err != nil {
		return DeepgramConfig{}, err
	}
	retries, err := parseIntEnvOrDefault("DEEPGRAM_MAX_RETRIES", 3)
	if err != nil {
		return DeepgramConfig{}, err
	}
	if retries < 1 {
		retries = 1
	}
	delayMs, err := parseIntEnvOrDefault("DEEPGRAM_RETRY_DELAY_MS", 1000)
	if err != nil {
		return DeepgramConfig{}, err
	}

	return DeepgramConfig{
		APIKey:     strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		BaseURL:    strings.TrimRight(getEnvOrDefault("DEEPGRAM_BASE_URL", "https://api.deepgram.com"), "/"),
		ListenURL:  getEnvOrDefault("DEEPGRAM_LISTEN_URL", "wss://api.deepgram.com/v1/listen"),
		Model:      getEnvOrDefault("DEEPGRAM_MODEL", "nova-2"),
		KeyTTL:     ttl,
		SampleRate: sampleRate,
		MaxRetries: retries,
		RetryDelay: time.Duration(delayMs) * time.Millisecond,
	}, nil
}

// TTSConfig 描述 Azure 语音合成配置。
type TTSConfig struct {
	AzureKey     string
	AzureRegion  string
	DefaultVoice string
	OutputFormat string
	Timeout      time.Duration
}

// Enabled 表示是否可以调用 Azure TTS。
func (c TTSConfig) Enabled() bool {
	return c.AzureKey != ""
}

func loadTTSConfig() (TTSConfig, error) {
	// 解析超时设置
	timeout, err := parseIntEnvOrDefault("TTS_TIMEOUT", 30)
	if err != nil {
		return TTSConfig{}, err
	}

	return TTSConfig{
		AzureKey:     firstEnv("AZURE_TTS_KEY", "AZURE_SPEECH_KEY"),
		AzureRegion:  getEnvOrDefault("AZURE_TTS_REGION", "eastus"),
		DefaultVoice: getEnvOrDefault("TTS_DEFAULT_VOICE", "en-US-AriaNeural"),
		OutputFormat: getEnvOrDefault("TTS_OUTPUT_FORMAT", "audio-24khz-48kbitrate-mono-mp3"),
		Timeout:      time.Duration(timeout) * time.Second,
	}, nil
}

// StorageBackend 合成音频的存储后端。
type StorageBackend string

const (
	StorageNone     StorageBackend = "none"
	StorageSupabase StorageBackend = "supabase"
	StorageGCS      StorageBackend = "gcs"
)

// StorageConfig 描述音频上传配置。
type StorageConfig struct {
	Backend   StorageBackend
	Bucket    string
	GCSBucket string
}

func loadStorageConfig(supabase SupabaseConfig) (StorageConfig, error) {
	backend := StorageBackend(strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_BACKEND"))))
	switch backend {
	case "":
		backend = StorageNone
		if supabase.Enabled() {
			backend = StorageSupabase
		}
	case StorageNone, StorageSupabase, StorageGCS:
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_BACKEND value: %q", backend)
	}

	cfg := StorageConfig{
		Backend:   backend,
		Bucket:    getEnvOrDefault("STORAGE_BUCKET", "audio-recordings"),
		GCSBucket: strings.TrimSpace(os.Getenv("GCS_BUCKET")),
	}
	if backend == StorageGCS && cfg.GCSBucket == "" {
		return StorageConfig{}, fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND=gcs")
	}
	return cfg, nil
}

// TurnConfig 控制对话回合的持久化行为。
type TurnConfig struct {
	PersistTimeout time.Duration
	HistoryLimit   int
}

func loadTurnConfig() (TurnConfig, error) {
	timeout, err := parseIntEnvOrDefault("TURN_PERSIST_TIMEOUT", 10)
	if err != nil {
		return TurnConfig{}, err
	}
	limit, err := parseIntEnvOrDefault("TURN_HISTORY_LIMIT", 50)
	if err != nil {
		return TurnConfig{}, err
	}
	if limit < 1 {
		limit = 1
	}
	return TurnConfig{
		PersistTimeout: time.Duration(timeout) * time.Second,
		HistoryLimit:   limit,
	}, nil
}

// AnalyticsConfig 控制统计汇总的缓存与推送频率。
type AnalyticsConfig struct {
	CacheTTL       time.Duration
	StreamInterval time.Duration
}

func loadAnalyticsConfig() (AnalyticsConfig, error) {
	ttl, err := parseIntEnvOrDefault("ANALYTICS_CACHE_TTL", 15)
	if err != nil {
		return AnalyticsConfig{}, err
	}
	interval, err := parseIntEnvOrDefault("ANALYTICS_STREAM_INTERVAL", 10)
	if err != nil {
		return AnalyticsConfig{}, err
	}
	if interval < 1 {
		interval = 1
	}
	return AnalyticsConfig{
		CacheTTL:       time.Duration(ttl) * time.Second,
		StreamInterval: time.Duration(interval) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseIntEnvOrDefault(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}
