package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Kind 划分了API错误的类别，决定HTTP状态码和响应结构
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthorized
	KindNotFound
	KindConflict
	KindRateLimited
	KindUpstream
	KindUnavailable
	KindInternal
)

// APIError 是所有路由处理函数向上返回的错误类型。
// 所有错误最终都经过 Error() 统一翻译为HTTP响应。
type APIError struct {
	Kind    Kind
	Code    string            // 机器可读的错误码，例如 "GAME_NOT_FOUND"
	Message string            // 人类可读的说明
	Fields  map[string]string // 校验错误时的字段级信息
	RetryAt time.Time         // 限流错误时的下次可用时间
	Err     error             // 被包装的原始错误，只记日志不外泄
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// --- 构造函数 ---

// Validation 构造一个带字段级信息的400错误
func Validation(fields map[string]string) *APIError {
	return &APIError{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: "请求参数无效", Fields: fields}
}

// Binding 将gin绑定失败的错误翻译为字段级的400错误
func Binding(err error) *APIError {
	fields := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fmt.Sprintf("不满足校验规则: %s", fe.Tag())
		}
	} else {
		fields["body"] = "请求格式错误"
	}
	return Validation(fields)
}

// Unauthorized 构造一个401错误。出于安全考虑，不说明是哪个凭证出了问题。
func Unauthorized() *APIError {
	return &APIError{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: "认证失败"}
}

// NotFound 构造一个带错误码的404错误
func NotFound(code, message string) *APIError {
	return &APIError{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict 构造一个409错误
func Conflict(code, message string) *APIError {
	return &APIError{Kind: KindConflict, Code: code, Message: message}
}

// RateLimited 构造一个带重试时间的429错误
func RateLimited(retryAt time.Time) *APIError {
	return &APIError{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: "请求过于频繁", RetryAt: retryAt}
}

// Upstream 构造一个上游服务失败的错误
func Upstream(message string, err error) *APIError {
	return &APIError{Kind: KindUpstream, Code: "UPSTREAM_ERROR", Message: message, Err: err}
}

// Unavailable 构造一个依赖暂不可用的503错误
func Unavailable(message string) *APIError {
	return &APIError{Kind: KindUnavailable, Code: "SERVICE_UNAVAILABLE", Message: message}
}

// Internal 包装一个未预期的内部错误
func Internal(err error) *APIError {
	return &APIError{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "服务器内部错误", Err: err}
}

// --- 中央翻译器 ---

// Error 是所有处理函数错误出口的统一翻译器。
// 它先带请求上下文记录原始错误，再按类别写出JSON响应。
func Error(c *gin.Context, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err)
	}

	fieldsForLog := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("code", apiErr.Code),
	}
	if userID, ok := c.Get("userID"); ok {
		fieldsForLog = append(fieldsForLog, zap.Any("userID", userID))
	}

	switch apiErr.Kind {
	case KindInternal, KindUpstream:
		logger.L().Error(apiErr.Error(), fieldsForLog...)
	default:
		logger.L().Info(apiErr.Error(), fieldsForLog...)
	}

	switch apiErr.Kind {
	case KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": apiErr.Message, "code": apiErr.Code, "fields": apiErr.Fields})
	case KindUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": apiErr.Message, "code": apiErr.Code})
	case KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": apiErr.Message, "code": apiErr.Code})
	case KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": apiErr.Message, "code": apiErr.Code})
	case KindRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": apiErr.Message, "code": apiErr.Code, "retryAt": apiErr.RetryAt})
	case KindUpstream:
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message, "code": apiErr.Code})
	case KindUnavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": apiErr.Message, "code": apiErr.Code})
	default:
		msg := apiErr.Message
		if gin.Mode() == gin.ReleaseMode {
			// 生产环境不暴露内部细节
			msg = "服务器内部错误"
		} else if apiErr.Err != nil {
			msg = apiErr.Err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "code": apiErr.Code})
	}
}
