package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// APIError 携带HTTP状态码的错误
type APIError struct {
	Code    int    // HTTP 状态码
	Message string // 错误消息
	Err     error  // 原始错误
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(message string, err error) *APIError {
	return &APIError{Code: http.StatusBadRequest, Message: message, Err: err}
}

func NewPatternError(pattern string, err error) *APIError {
	return &APIError{
		Code:    http.StatusBadRequest,
		Message: fmt.Sprintf("接口匹配模式 %q 无效", pattern),
		Err:     err,
	}
}

func NewInternalServerError(err error) *APIError {
	return &APIError{Code: http.StatusInternalServerError, Message: "服务器内部错误", Err: err}
}

// HandleError 统一错误处理函数
func HandleError(c echo.Context, err error) error {
	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Request().URL.Path,
		"method": c.Request().Method,
	}).Error("API 错误")

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		resp := Response{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		}
		if apiErr.Err != nil {
			resp.Data = map[string]string{"error_detail": apiErr.Err.Error()}
		}
		return c.JSON(apiErr.Code, resp)
	}

	return c.JSON(http.StatusInternalServerError, Response{
		Code:    http.StatusInternalServerError,
		Message: "服务器内部错误",
	})
}
