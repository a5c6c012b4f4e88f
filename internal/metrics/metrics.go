package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 路由引擎与传输层的运行指标，通过 /metrics 暴露
var (
	// OnlineUsers 当前在线用户数
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "minichat",
		Name:      "online_users",
		Help:      "Number of users with an active session.",
	})

	// MessagesRouted 按寻址类型统计的路由消息数
	MessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minichat",
		Name:      "messages_routed_total",
		Help:      "Messages accepted and persisted by the router, by addressing class.",
	}, []string{"class"})

	// MessagesRejected 被校验拒绝的消息数
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minichat",
		Name:      "messages_rejected_total",
		Help:      "Messages silently rejected by addressing validation, by reason.",
	}, []string{"reason"})

	// DeliveryFailures 单个接收方投递失败数
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "minichat",
		Name:      "delivery_failures_total",
		Help:      "Per-recipient push failures during fan-out.",
	})

	// EventsDispatched 按类型统计的入站事件数
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minichat",
		Name:      "events_dispatched_total",
		Help:      "Inbound websocket events dispatched to handlers, by type.",
	}, []string{"type"})
)

// 寻址类型标签值
const (
	ClassDirect       = "direct"
	ClassGlobalGroup  = "global_group"
	ClassPrivateGroup = "private_group"
)
