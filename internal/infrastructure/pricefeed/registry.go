// Package pricefeed 连接器工厂注册表。
// 各交易所包在 init() 中注册自己的工厂，注册不代表连接：
// 在 Registry.Start() 之前不会有任何网络请求。
package pricefeed

import (
	"sort"
	"sync"

	"xtick/internal/application/port"
	"xtick/internal/infrastructure/connector"

	"github.com/rs/zerolog/log"
)

// Settings 构造连接器所需的参数
type Settings struct {
	ID      string   // 连接器 ID，例如 upbit_krw
	WSURL   string   // 推送地址，空则使用内置默认值
	RESTURL string   // 轮询地址，空则使用内置默认值
	Coins   []string // 订阅币种（BTC、ETH...）
	Options connector.Options
}

// URL 返回 v，为空时返回 def
func URL(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Factory 创建一个连接器
type Factory func(s Settings) (port.Connector, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register 注册连接器工厂
// 这是由各个交易所包的init()函数调用来自注册的
func Register(id string, factory Factory) {
	if factory == nil {
		log.Warn().Str("connector", id).Msg("invalid connector factory")
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[id]; exists {
		log.Warn().Str("connector", id).Msg("connector factory already registered, overwriting")
	}
	registry[id] = factory
}

// Get 获取已注册的工厂
func Get(id string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[id]
	return factory, ok
}

// Names 已注册的连接器 ID，按字母序
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
