// Package kafka 提供广告结算的消息通知
package kafka

// 输出 topic
const (
	// TopicAdSettlements 事件完成计费后的结算通知
	TopicAdSettlements = "ad-settlements"
	// TopicAdVerifications 链上验证到达终态后的通知
	TopicAdVerifications = "ad-verifications"
)
