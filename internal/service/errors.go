package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrTokenMissing         = errors.New("缺少登录凭据")
	ErrTokenExpired         = errors.New("登录凭据已过期")
	ErrTokenInvalid         = errors.New("登录凭据无效")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrReceiverInvalid      = errors.New("目标用户无效")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrNotParticipant       = errors.New("不是会话成员")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrStatusConflict       = errors.New("消息状态不可回退")
	ErrFileNotSupported     = errors.New("不支持的文件类型")
	ErrFileTooLarge         = errors.New("文件超过大小限制")
	ErrStoreUnavailable     = errors.New("存储暂不可用，请稍后重试")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrTokenMissing:         Unauthorized,
	ErrTokenExpired:         Unauthorized,
	ErrTokenInvalid:         Unauthorized,
	ErrUserNotFound:         NotFound,
	ErrReceiverInvalid:      BadRequest,
	ErrConversationNotFound: NotFound,
	ErrNotParticipant:       Forbidden,
	ErrMessageNotFound:      NotFound,
	ErrStatusConflict:       Conflict,
	ErrFileNotSupported:     BadRequest,
	ErrFileTooLarge:         BadRequest,
	ErrStoreUnavailable:     InternalServerError,
	UnExpectedError:         InternalServerError,
}

// KindMap 稳定的机器可读错误类别，随响应体与 WS 错误事件一起下发
// 客户端依赖类别做重试与提示决策，文案可变、类别不可变
var KindMap = map[error]string{
	ErrParamInvalid:         "VALIDATION",
	ErrTokenMissing:         "AUTH_MISSING",
	ErrTokenExpired:         "AUTH_EXPIRED",
	ErrTokenInvalid:         "AUTH_INVALID",
	ErrUserNotFound:         "NOT_FOUND",
	ErrReceiverInvalid:      "VALIDATION",
	ErrConversationNotFound: "NOT_FOUND",
	ErrNotParticipant:       "FORBIDDEN",
	ErrMessageNotFound:      "NOT_FOUND",
	ErrStatusConflict:       "CONFLICT",
	ErrFileNotSupported:     "VALIDATION",
	ErrFileTooLarge:         "VALIDATION",
	ErrStoreUnavailable:     "TRANSIENT_STORE",
	UnExpectedError:         "INTERNAL",
}

// Kind 返回错误的稳定类别，未登记的一律归入 INTERNAL
func Kind(err error) string {
	if kind, ok := KindMap[err]; ok {
		return kind
	}
	return "INTERNAL"
}
