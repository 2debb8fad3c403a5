package moq

import "errors"

var (
	// ErrProtocolViolation 协议违规，对会话致命，发送终止码并关闭连接
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrNotFound 命名空间、订阅或缓存条目不存在，属预期内的非致命结果
	ErrNotFound = errors.New("not found")
	// ErrTruncated 字节不足，是"等待更多数据"的信号而非故障
	ErrTruncated = errors.New("truncated")
)
