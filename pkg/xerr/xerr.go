package xerr

import "fmt"

// 常用错误码定义
const (
	OK                 = 200
	ServerCommonError  = 500
	RequestParamsError = 400
	RecordNotFound     = 404
	DbError            = 501
	ChainRpcError      = 502 // 链上 RPC 不可用 / 网络抖动
	TxRevertedError    = 503 // 交易上链了但被 revert，对这笔操作是终态
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func Newf(code int, format string, args ...interface{}) error {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// IsCode 判断 err 是否是指定错误码
func IsCode(err error, code int) bool {
	if e, ok := err.(*CodeError); ok {
		return e.Code == code
	}
	return false
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case RecordNotFound:
		return "记录不存在"
	case DbError:
		return "数据库繁忙"
	case ChainRpcError:
		return "链上节点不可用"
	case TxRevertedError:
		return "链上交易被回滚"
	default:
		return "未知错误"
	}
}
