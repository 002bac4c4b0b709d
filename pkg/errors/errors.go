// Package errors 提供快取服務的應用程式錯誤
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 鍵不存在
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeInvalidInput 無效輸入（容量、設定、請求內容）
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeTimeout 超時錯誤
	ErrCodeTimeout = "TIMEOUT"
	// ErrCodeUnavailable 後端不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is
//
// 以錯誤碼與訊息比對，讓 WithDetails / Wrap 產生的副本
// 仍然等同於預定義錯誤。
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶有詳細資訊的副本
//
// 預定義錯誤是共用的變數，不能直接修改。
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause 返回包裝了底層錯誤的副本
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// 預定義錯誤
var (
	// ErrKeyNotFound 鍵不存在於快取或後端儲存
	ErrKeyNotFound = New(ErrCodeNotFound, "key not found")

	// ErrInvalidCapacity 快取容量必須為正整數
	ErrInvalidCapacity = New(ErrCodeInvalidInput, "capacity must be positive")

	// ErrInvalidConfig 設定無效
	ErrInvalidConfig = New(ErrCodeInvalidInput, "invalid configuration")

	// ErrInvalidKey 鍵為空或過長
	ErrInvalidKey = New(ErrCodeInvalidInput, "invalid key")

	// ErrBackendUnavailable 後端儲存不可用
	ErrBackendUnavailable = New(ErrCodeUnavailable, "backend unavailable")
)

// CodeOf 取得錯誤碼，非 AppError 時返回 ErrCodeInternal
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeNotFound
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeInvalidInput
}

// IsUnavailable 檢查是否為後端不可用錯誤
func IsUnavailable(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeUnavailable
}

// IsTimeout 檢查是否為超時錯誤
func IsTimeout(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeTimeout
}
