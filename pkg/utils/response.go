package utils

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrorBody 错误响应体 {"error": {"code": ..., "message": ...}}
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

// RespondData 以 {"data": ...} 包裹成功响应
func RespondData(w http.ResponseWriter, status int, data interface{}) {
	RespondJSON(w, status, map[string]interface{}{"data": data})
}

// RespondError 发送简单错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondAppError 根据 AppError 输出结构化错误，fallback 用于非 AppError 的错误码。
func RespondAppError(w http.ResponseWriter, err error, fallback Code) {
	RespondJSON(w, HTTPStatus(err), map[string]ErrorBody{
		"error": {Code: CodeOf(err, fallback), Message: MessageOf(err)},
	})
}
