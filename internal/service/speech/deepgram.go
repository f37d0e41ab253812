package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/echo-voice/backend/internal/cache"
	speechmodel "github.com/zhouzirui/echo-voice/backend/internal/model/speech"
)

const projectIDCacheKey = "deepgram:project_id"

// CredentialError 临时凭证签发失败，Details 为服务端原始响应。
type CredentialError struct {
	Message string
	Details string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CredentialError) Unwrap() error { return e.Err }

// CredentialIssuer 用长期密钥向 Deepgram 换取短期浏览器密钥。
type CredentialIssuer struct {
	client *resty.Client
	cfg    *speechmodel.SpeechConfig
	cache  cache.Cache
	retry  RetryPolicy
	log    *logrus.Logger
}

// NewCredentialIssuer 创建凭证签发器，c 可以为 nil。
func NewCredentialIssuer(cfg *speechmodel.SpeechConfig, c cache.Cache, log *logrus.Logger) *CredentialIssuer {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.DeepgramBaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Authorization", "Token "+cfg.DeepgramAPIKey)

	retry := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		retry.Attempts = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retry.Delay = cfg.RetryDelay
	}

	return &CredentialIssuer{client: client, cfg: cfg, cache: c, retry: retry, log: log}
}

// Issue 签发一个临时凭证以及对应的流式识别地址。
func (i *CredentialIssuer) Issue(ctx context.Context) (speechmodel.Credential, error) {
	if i.cfg.DeepgramAPIKey == "" {
		return speechmodel.Credential{}, &CredentialError{Message: "DEEPGRAM_API_KEY environment variable not configured"}
	}

	projectID, err := i.projectID(ctx)
	if err != nil {
		return speechmodel.Credential{}, err
	}

	key, expiresAt, err := i.createKey(ctx, projectID)
	if err != nil {
		return speechmodel.Credential{}, err
	}

	wsURL, err := i.ListenURL()
	if err != nil {
		return speechmodel.Credential{}, &CredentialError{Message: "invalid Deepgram listen URL", Err: err}
	}

	return speechmodel.Credential{
		WSURL:     wsURL,
		Token:     key,
		ExpiresAt: expiresAt,
		Success:   true,
	}, nil
}

// ListenURL 返回带识别参数的 WebSocket 地址。
func (i *CredentialIssuer) ListenURL() (string, error) {
	u, err := url.Parse(i.cfg.DeepgramListenURL)
	if err != nil {
		return "", err
	}

	model := i.cfg.DeepgramModel
	if model == "" {
		model = "nova-2"
	}
	sampleRate := i.cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// MasterHeader 服务端直连 Deepgram 时使用的鉴权头。
func (i *CredentialIssuer) MasterHeader() map[string]string {
	return map[string]string{"Authorization": "Token " + i.cfg.DeepgramAPIKey}
}

type projectsResponse struct {
	Projects []struct {
		ProjectID string `json:"project_id"`
		ID        string `json:"id"`
	} `json:"projects"`
	ProjectID string `json:"project_id"`
	ID        string `json:"id"`
}

func (p projectsResponse) first() string {
	if len(p.Projects) > 0 {
		if p.Projects[0].ProjectID != "" {
			return p.Projects[0].ProjectID
		}
		if p.Projects[0].ID != "" {
			return p.Projects[0].ID
		}
	}
	if p.ProjectID != "" {
		return p.ProjectID
	}
	return p.ID
}

func (i *CredentialIssuer) projectID(ctx context.Context) (string, error) {
	if i.cache != nil {
		var cached string
		if hit, err := i.cache.GetJSON(ctx, projectIDCacheKey, &cached); err == nil && hit && cached != "" {
			return cached, nil
		}
	}

	var body []byte
	err := i.retry.Do(ctx, func(attempt int) error {
		resp, err := i.client.R().SetContext(ctx).Get("/v1/projects")
		if err != nil {
			i.logAttempt("project lookup", attempt, err)
			return err
		}
		if resp.StatusCode() >= 500 {
			err := fmt.Errorf("status %d", resp.StatusCode())
			i.logAttempt("project lookup", attempt, err)
			return &CredentialError{Message: "Failed to fetch Deepgram project metadata", Details: resp.String(), Err: err}
		}
		if resp.IsError() {
			return Permanent(&CredentialError{Message: "Failed to fetch Deepgram project metadata", Details: resp.String()})
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return "", asCredentialError(err, "Failed to fetch Deepgram project metadata")
	}

	var parsed projectsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &CredentialError{Message: "Deepgram project metadata missing project_id", Details: string(body), Err: err}
	}
	id := parsed.first()
	if id == "" {
		return "", &CredentialError{Message: "Deepgram project metadata missing project_id", Details: string(body)}
	}

	if i.cache != nil && i.cfg.ProjectIDCacheTTL > 0 {
		if err := i.cache.SetJSON(ctx, projectIDCacheKey, id, i.cfg.ProjectIDCacheTTL); err != nil {
			i.log.WithError(err).Warn("cache deepgram project id failed")
		}
	}
	return id, nil
}

type keyRequest struct {
	Comment string   `json:"comment"`
	Type    string   `json:"type"`
	TTL     int      `json:"ttl"`
	Scopes  []string `json:"scopes"`
}

// keyResponse 兼容 Deepgram 不同版本的字段命名。
type keyResponse struct {
	Key        string          `json:"key"`
	APIKey     json.RawMessage `json:"api_key"`
	Secret     string          `json:"secret"`
	ExpiresAt  *string         `json:"expires_at"`
	ExpiresAt2 *string         `json:"expiresAt"`
	Expiration *string         `json:"expiration"`
}

func (k keyResponse) key() string {
	if k.Key != "" {
		return k.Key
	}
	if len(k.APIKey) > 0 {
		var s string
		if err := json.Unmarshal(k.APIKey, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(k.APIKey, &nested); err == nil && nested.Key != "" {
			return nested.Key
		}
	}
	return k.Secret
}

func (k keyResponse) expiry() *string {
	switch {
	case k.ExpiresAt != nil:
		return k.ExpiresAt
	case k.ExpiresAt2 != nil:
		return k.ExpiresAt2
	default:
		return k.Expiration
	}
}

func (i *CredentialIssuer) createKey(ctx context.Context, projectID string) (string, *string, error) {
	ttl := i.cfg.EphemeralKeyTTL
	if ttl <= 0 {
		ttl = 60
	}
	payload := keyRequest{
		Comment: "Echo browser session",
		Type:    "temporary",
		TTL:     ttl,
		Scopes:  []string{"usage:write"},
	}

	var body []byte
	err := i.retry.Do(ctx, func(attempt int) error {
		resp, err := i.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post("/v1/projects/" + url.PathEscape(projectID) + "/keys")
		if err != nil {
			i.logAttempt("key creation", attempt, err)
			return err
		}
		if resp.StatusCode() >= 500 {
			err := fmt.Errorf("status %d", resp.StatusCode())
			i.logAttempt("key creation", attempt, err)
			return &CredentialError{Message: "Failed to generate Deepgram token", Details: resp.String(), Err: err}
		}
		if resp.IsError() {
			return Permanent(&CredentialError{Message: "Failed to generate Deepgram token", Details: resp.String()})
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return "", nil, asCredentialError(err, "Failed to generate Deepgram token")
	}

	var parsed keyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil, &CredentialError{Message: "Deepgram token generation returned no key", Err: err}
	}
	key := parsed.key()
	if key == "" {
		return "", nil, &CredentialError{Message: "Deepgram token generation returned no key"}
	}
	return key, parsed.expiry(), nil
}

func (i *CredentialIssuer) logAttempt(stage string, attempt int, err error) {
	i.log.WithFields(logrus.Fields{
		"stage":   stage,
		"attempt": attempt,
	}).WithError(err).Warn("deepgram request failed")
}

func asCredentialError(err error, message string) error {
	var ce *CredentialError
	if errors.As(err, &ce) {
		return ce
	}
	return &CredentialError{Message: message, Err: err}
}
