package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTransitions 报修单状态机成功执行的事件
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gerz",
		Name:      "request_transitions_total",
		Help:      "Maintenance request lifecycle events by type.",
	}, []string{"type"})

	// AuthorizationDenials 授权拒绝次数
	AuthorizationDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gerz",
		Name:      "authorization_denials_total",
		Help:      "Authorization denials by reason.",
	}, []string{"reason"})

	// InvitationRedemptions 邀请兑换结果
	InvitationRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gerz",
		Name:      "invitation_redemptions_total",
		Help:      "Invitation redemption attempts by result.",
	}, []string{"result"})

	// LimitDenials 套餐上限拒绝
	LimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gerz",
		Name:      "usage_limit_denials_total",
		Help:      "Usage limit denials by resource type.",
	}, []string{"resource"})

	// NotificationDeliveries 通知投递结果
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gerz",
		Name:      "notification_deliveries_total",
		Help:      "Notification deliveries by channel and result.",
	}, []string{"channel", "result"})

	// FanoutQueueDepth 通知分发队列长度
	FanoutQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gerz",
		Name:      "fanout_queue_depth",
		Help:      "Events waiting in the in-process fan-out queue.",
	})
)
