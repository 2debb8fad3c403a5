package relation

import "errors"

// ErrAlreadyExists 命名空间已被宣告或订阅ID已被占用
var ErrAlreadyExists = errors.New("already exists")
