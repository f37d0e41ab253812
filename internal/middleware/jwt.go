package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhouzirui/echo-voice/backend/pkg/utils"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
)

type supabaseClaims struct {
	jwt.RegisteredClaims
	Role         string         `json:"role"` // "authenticated" / "anon"
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// JWTConfig Supabase 访问令牌校验参数，Issuer 与 Audience 为空时不校验。
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// JWTAuth 校验 Supabase 签发的 HS256 令牌。
// 浏览器 WebSocket 无法设置请求头，因此也接受 access_token 查询参数。
func JWTAuth(cfg JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			claims := &supabaseClaims{}
			tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				return []byte(cfg.Secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || tok == nil || !tok.Valid {
				unauthorized(w, "invalid token")
				return
			}

			if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
				unauthorized(w, "invalid token issuer")
				return
			}
			if cfg.Audience != "" && !hasAudience(claims.Audience, cfg.Audience) {
				unauthorized(w, "invalid token audience")
				return
			}
			if claims.Subject == "" {
				unauthorized(w, "missing subject")
				return
			}

			role := "user"
			if v, ok := claims.AppMetadata["role"].(string); ok && v != "" {
				role = v
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID 返回已认证用户的 ID，未认证时为空。
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// Role 返回应用层角色。
func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func hasAudience(auds jwt.ClaimStrings, want string) bool {
	for _, aud := range auds {
		if aud == want {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, msg string) {
	utils.RespondJSON(w, http.StatusUnauthorized, map[string]utils.ErrorBody{
		"error": {Code: utils.CodeUnauthorized, Message: msg},
	})
}
