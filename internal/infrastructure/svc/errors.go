package svc

import "errors"

// ErrNoConnectorsEnabled 错误：没有任何可用的连接器
var ErrNoConnectorsEnabled = errors.New("no connectors enabled")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
