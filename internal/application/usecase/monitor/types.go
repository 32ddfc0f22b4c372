package monitor

import (
	"xtick/internal/application/port"
	"xtick/internal/application/usecase/consumer"
)

type Repository = port.Repository

// Connectors 报告所需的连接器视图（Registry 实现）
type Connectors interface {
	Domestic() []port.Connector
	Overseas() []port.Connector
	Stats() []port.ConnectorStats
}

// Report 周期性就绪度报告
type Report struct {
	TsMs       int64                 `json:"ts_ms"`
	Domestic   consumer.Tally        `json:"domestic"`
	Overseas   consumer.Tally        `json:"overseas"`
	Connectors []port.ConnectorStats `json:"connectors"`
}
