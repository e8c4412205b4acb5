package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotFound       ErrorCode = 1002
	ErrTimeout        ErrorCode = 1003
	ErrCanceled       ErrorCode = 1004
	ErrNotImplemented ErrorCode = 1005

	// 测量执行错误 (2000-2999)
	ErrMissingParameter  ErrorCode = 2000
	ErrUnknownTestType   ErrorCode = 2001
	ErrUnknownInstrument ErrorCode = 2002
	ErrDriverExecution   ErrorCode = 2003
	ErrValueCoercion     ErrorCode = 2004
	ErrSessionAborted    ErrorCode = 2005

	// 仪器连接错误 (3000-3999)
	ErrConnectionOpen    ErrorCode = 3000
	ErrConnectionWrite   ErrorCode = 3001
	ErrConnectionRead    ErrorCode = 3002
	ErrConnectionTimeout ErrorCode = 3003
	ErrAddressParse      ErrorCode = 3004
	ErrUnsupportedBus    ErrorCode = 3005
	ErrConnectionClosed  ErrorCode = 3006

	// 编解码与帧错误 (4000-4999)
	ErrCodecSize       ErrorCode = 4000
	ErrCodecFieldType  ErrorCode = 4001
	ErrCodecFieldValue ErrorCode = 4002
	ErrFrameSync       ErrorCode = 4003
	ErrFrameLength     ErrorCode = 4004
	ErrCRCMismatch     ErrorCode = 4005
	ErrFixtureStatus   ErrorCode = 4006

	// 限值校验错误 (5000-5999)
	ErrLimitExceeded   ErrorCode = 5000
	ErrLimitType       ErrorCode = 5001
	ErrExpectedMissing ErrorCode = 5002

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:        "未知错误",
	ErrInvalidParam:   "无效的参数",
	ErrNotFound:       "资源未找到",
	ErrTimeout:        "操作超时",
	ErrCanceled:       "操作已取消",
	ErrNotImplemented: "功能未实现",

	// 测量执行错误
	ErrMissingParameter:  "缺少必需的测试参数",
	ErrUnknownTestType:   "未知的测试类型",
	ErrUnknownInstrument: "未知的仪器类型",
	ErrDriverExecution:   "仪器驱动执行失败",
	ErrValueCoercion:     "测量值类型转换失败",
	ErrSessionAborted:    "测试会话已中止",

	// 仪器连接错误
	ErrConnectionOpen:    "仪器连接打开失败",
	ErrConnectionWrite:   "仪器写入失败",
	ErrConnectionRead:    "仪器读取失败",
	ErrConnectionTimeout: "仪器通信超时",
	ErrAddressParse:      "仪器地址解析失败",
	ErrUnsupportedBus:    "不支持的总线类型",
	ErrConnectionClosed:  "仪器连接已关闭",

	// 编解码与帧错误
	ErrCodecSize:       "报文长度与结构定义不符",
	ErrCodecFieldType:  "报文字段类型不匹配",
	ErrCodecFieldValue: "报文字段值缺失或无效",
	ErrFrameSync:       "帧同步字错误",
	ErrFrameLength:     "帧长度字段错误",
	ErrCRCMismatch:     "CRC校验失败",
	ErrFixtureStatus:   "治具返回失败状态",

	// 限值校验错误
	ErrLimitExceeded:   "测量值超出限值",
	ErrLimitType:       "无效的限值类型",
	ErrExpectedMissing: "缺少期望值",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`    // 错误码
	Message string       `json:"message"` // 错误消息
	Details string       `json:"details"` // 详细信息
	Cause   error        `json:"-"`       // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"`
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// IsConnection 判断是否为仪器连接类错误（3000-3999）
// 连接类错误对该仪器在本次会话中是致命的，不做自动重试
func IsConnection(err error) bool {
	code := GetCode(err)
	return code >= 3000 && code < 4000
}

// IsCodec 判断是否为编解码/帧类错误（4000-4999）
func IsCodec(err error) bool {
	code := GetCode(err)
	return code >= 4000 && code < 5000
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/ate-station/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}
