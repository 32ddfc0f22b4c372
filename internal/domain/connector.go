package domain

// ConnectorState 连接器状态，仅存在于内存
type ConnectorState int32

const (
	StateDisconnected ConnectorState = iota
	StateConnecting
	StateOpen
	StateBackoff
)

func (s ConnectorState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	default:
		return "disconnected"
	}
}

// Group 连接器分组
type Group string

const (
	GroupDomestic Group = "domestic" // 法币计价（KRW）
	GroupOverseas Group = "overseas" // 稳定币计价（USDT）现货与合约
)

// Market 市场类型
type Market string

const (
	MarketSpot    Market = "spot"
	MarketFutures Market = "futures"
)

// 连接器 ID（同时是 PriceKey 的交易所部分）
const (
	UpbitKRW   = "upbit_krw"
	BithumbKRW = "bithumb_krw"
	CoinoneKRW = "coinone_krw"

	BinanceUSDT        = "binance_usdt"
	BinanceUSDTFutures = "binance_usdt_futures"
	BybitUSDT          = "bybit_usdt"
	BybitUSDTFutures   = "bybit_usdt_futures"
	OKXUSDT            = "okx_usdt"
	OKXUSDTFutures     = "okx_usdt_futures"
	BitgetUSDT         = "bitget_usdt"
	BitgetUSDTFutures  = "bitget_usdt_futures"
	GateUSDT           = "gate_usdt"
	GateUSDTFutures    = "gate_usdt_futures"
)
