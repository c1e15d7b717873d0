// Package errors 提供 eidos-ads 的业务错误类型
//
// 核心逻辑对外只返回结构化错误: 每个错误携带稳定的错误码、
// HTTP/gRPC 状态映射和可选的详情 (例如重复事件引用的原始事件 ID)。
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error 业务错误
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	GRPCCode   codes.Code        `json:"-"`
	Cause      error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails 添加详情
func (e *Error) WithDetails(details map[string]string) *Error {
	newErr := e.Copy()
	if newErr.Details == nil {
		newErr.Details = make(map[string]string)
	}
	for k, v := range details {
		newErr.Details[k] = v
	}
	return newErr
}

// WithDetail 添加单个详情
func (e *Error) WithDetail(key, value string) *Error {
	return e.WithDetails(map[string]string{key: value})
}

// WithMessage 替换错误消息
func (e *Error) WithMessage(message string) *Error {
	newErr := e.Copy()
	newErr.Message = message
	return newErr
}

// WithMessagef 格式化替换错误消息
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Copy 复制错误
func (e *Error) Copy() *Error {
	newErr := &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		GRPCCode:   e.GRPCCode,
		Cause:      e.Cause,
	}
	if e.Details != nil {
		newErr.Details = make(map[string]string)
		for k, v := range e.Details {
			newErr.Details[k] = v
		}
	}
	return newErr
}

// JSON 返回 JSON 格式
func (e *Error) JSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// New 创建新错误
func New(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		GRPCCode:   codes.Internal,
	}
}

// NewWithStatus 创建带状态码的错误
func NewWithStatus(code, message string, httpStatus int, grpcCode codes.Code) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		GRPCCode:   grpcCode,
	}
}

// Wrap 包装错误
func Wrap(err *Error, cause error) *Error {
	newErr := err.Copy()
	newErr.Cause = cause
	return newErr
}

// Wrapf 包装错误并添加信息
func Wrapf(err *Error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	return newErr
}

// FromError 从标准错误转换
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}

	return Wrap(ErrInternal, err)
}

// 通用错误码
var (
	ErrInternal       = NewWithStatus("INTERNAL_ERROR", "内部错误", http.StatusInternalServerError, codes.Internal)
	ErrInvalidRequest = NewWithStatus("INVALID_REQUEST", "请求参数无效", http.StatusBadRequest, codes.InvalidArgument)
	ErrNotFound       = NewWithStatus("NOT_FOUND", "资源不存在", http.StatusNotFound, codes.NotFound)
	ErrConflict       = NewWithStatus("CONFLICT", "资源冲突", http.StatusConflict, codes.AlreadyExists)
)

// 业务错误码
var (
	// 资源查找
	ErrAdNotFound        = NewWithStatus("AD_NOT_FOUND", "广告不存在", http.StatusNotFound, codes.NotFound)
	ErrCampaignNotFound  = NewWithStatus("CAMPAIGN_NOT_FOUND", "广告活动不存在", http.StatusNotFound, codes.NotFound)
	ErrEventNotFound     = NewWithStatus("EVENT_NOT_FOUND", "事件不存在", http.StatusNotFound, codes.NotFound)
	ErrDeveloperNotFound = NewWithStatus("DEVELOPER_NOT_FOUND", "开发者不存在", http.StatusNotFound, codes.NotFound)

	// 状态冲突
	ErrCampaignNotActive = NewWithStatus("CAMPAIGN_NOT_ACTIVE", "广告活动未激活", http.StatusPreconditionFailed, codes.FailedPrecondition)
	ErrBudgetExhausted   = NewWithStatus("BUDGET_EXHAUSTED", "广告预算已耗尽", http.StatusPaymentRequired, codes.FailedPrecondition)

	// 重复
	ErrDuplicateEvent  = NewWithStatus("DUPLICATE_EVENT", "重复的事件上报", http.StatusConflict, codes.AlreadyExists)
	ErrDuplicateTxHash = NewWithStatus("DUPLICATE_TX_HASH", "交易哈希已被使用", http.StatusConflict, codes.AlreadyExists)
	ErrDuplicateSwap   = NewWithStatus("DUPLICATE_SWAP", "该链上身份 24 小时内已有转化", http.StatusConflict, codes.AlreadyExists)

	// 参数校验
	ErrMissingTxProof     = NewWithStatus("MISSING_TX_PROOF", "链上转化必须携带 tx_hash 和 chain_id", http.StatusBadRequest, codes.InvalidArgument)
	ErrInvalidEventType   = NewWithStatus("INVALID_EVENT_TYPE", "事件类型无效", http.StatusBadRequest, codes.InvalidArgument)
	ErrInvalidAddress     = NewWithStatus("INVALID_ADDRESS", "钱包地址无效", http.StatusBadRequest, codes.InvalidArgument)
	ErrInvalidSignature   = NewWithStatus("INVALID_SIGNATURE", "签名无效", http.StatusBadRequest, codes.InvalidArgument)
	ErrWalletNotBound     = NewWithStatus("WALLET_NOT_REGISTERED", "开发者未注册钱包", http.StatusPreconditionFailed, codes.FailedPrecondition)
	ErrWalletAlreadyBound = NewWithStatus("WALLET_ALREADY_BOUND", "钱包已绑定其他开发者", http.StatusConflict, codes.AlreadyExists)

	// 链上验证
	ErrVerificationRejected = NewWithStatus("VERIFICATION_REJECTED", "链上验证未通过", http.StatusUnprocessableEntity, codes.FailedPrecondition)
	ErrUnsupportedChain     = NewWithStatus("UNSUPPORTED_CHAIN", "不支持的链 ID", http.StatusBadRequest, codes.InvalidArgument)
)

// ToGRPCError 转换为 gRPC 错误
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		return status.Error(bizErr.GRPCCode, bizErr.Error())
	}

	return status.Error(codes.Internal, err.Error())
}

// ToHTTPStatus 获取 HTTP 状态码
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		if bizErr.HTTPStatus != 0 {
			return bizErr.HTTPStatus
		}
	}

	return http.StatusInternalServerError
}

// Is 判断错误类型
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

// As 提取错误类型
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	return "UNKNOWN"
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound) || Is(err, ErrAdNotFound) || Is(err, ErrCampaignNotFound) ||
		Is(err, ErrEventNotFound) || Is(err, ErrDeveloperNotFound)
}

// IsDuplicate 判断是否为重复类错误
func IsDuplicate(err error) bool {
	return Is(err, ErrDuplicateEvent) || Is(err, ErrDuplicateTxHash) ||
		Is(err, ErrDuplicateSwap) || Is(err, ErrWalletAlreadyBound)
}
