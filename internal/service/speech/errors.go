package speech

import (
	"errors"
	"io/fs"
	"strings"
)

// CaptureErrorKind 用户环境导致的采集失败类型
type CaptureErrorKind string

const (
	NoInputDevice    CaptureErrorKind = "no_input_device"
	PermissionDenied CaptureErrorKind = "permission_denied"
	DeviceBusy       CaptureErrorKind = "device_busy"
	InsecureContext  CaptureErrorKind = "insecure_context"
)

var captureMessages = map[CaptureErrorKind]string{
	NoInputDevice:    "No microphone found. Please check your microphone connection and browser permissions.",
	PermissionDenied: "Microphone access denied. Please click the microphone icon again to grant permissions.",
	DeviceBusy:       "Microphone is being used by another application. Please close other apps and try again.",
	InsecureContext:  "Voice recognition requires a secure connection (HTTPS). Please use a secure URL.",
}

// CaptureError 面向终端用户的采集错误，Error() 即可直接展示。
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

// NewCaptureError 构造指定类型的采集错误。
func NewCaptureError(kind CaptureErrorKind, err error) *CaptureError {
	return &CaptureError{Kind: kind, Err: err}
}

func (e *CaptureError) Error() string {
	if msg, ok := captureMessages[e.Kind]; ok {
		return msg
	}
	return "Voice capture failed."
}

func (e *CaptureError) Unwrap() error { return e.Err }

// ClassifyCaptureError 将浏览器 DOMException 名称或本地文件错误映射为采集错误。
// 无法识别时返回 nil。
func ClassifyCaptureError(name string, err error) *CaptureError {
	switch strings.TrimSpace(name) {
	case "NotFoundError", "DevicesNotFoundError", "OverconstrainedError":
		return NewCaptureError(NoInputDevice, err)
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return NewCaptureError(PermissionDenied, err)
	case "NotReadableError", "TrackStartError", "AbortError":
		return NewCaptureError(DeviceBusy, err)
	case "InsecureContext":
		return NewCaptureError(InsecureContext, err)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return NewCaptureError(NoInputDevice, err)
	case errors.Is(err, fs.ErrPermission):
		return NewCaptureError(PermissionDenied, err)
	}
	return nil
}
