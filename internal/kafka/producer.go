package kafka

import (
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-ads/internal/model"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
)

// SettlementMessage 结算通知消息体
type SettlementMessage struct {
	EventID          string `json:"event_id"`
	AdID             string `json:"ad_id"`
	CampaignID       string `json:"campaign_id"`
	DeveloperID      string `json:"developer_id"`
	EventType        string `json:"event_type"`
	AmountCharged    string `json:"amount_charged"`
	DeveloperRevenue string `json:"developer_revenue"`
	PlatformRevenue  string `json:"platform_revenue"`
	Status           string `json:"status"`
	TxHash           string `json:"tx_hash,omitempty"`
	ChainID          int64  `json:"chain_id,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}

// Producer Kafka 生产者
//
// 结算通知走异步发送，投递失败只记日志，
// 绝不回压结算主路径。
type Producer struct {
	producer sarama.AsyncProducer
}

// NewProducer 创建 Kafka 生产者
func NewProducer(brokers []string, clientID string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.ClientID = clientID

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	p := &Producer{producer: producer}
	go p.drainErrors()
	return p, nil
}

// drainErrors 消费异步发送的错误通道
func (p *Producer) drainErrors() {
	for err := range p.producer.Errors() {
		logger.Error("kafka send failed",
			zap.String("topic", err.Msg.Topic),
			zap.Error(err.Err))
	}
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.producer.Close()
}

// NotifySettlement 发送结算通知
//
// 实现 service.SettlementNotifier。按活动 ID 做分区键，
// 同一活动的通知保序。
func (p *Producer) NotifySettlement(event *model.AdEvent) {
	msg := &SettlementMessage{
		EventID:          event.ID,
		AdID:             event.AdID,
		CampaignID:       event.CampaignID,
		DeveloperID:      event.DeveloperID,
		EventType:        string(event.EventType),
		AmountCharged:    event.AmountCharged.String(),
		DeveloperRevenue: event.DeveloperRevenue.String(),
		PlatformRevenue:  event.PlatformRevenue.String(),
		Status:           string(event.VerificationStatus),
		ChainID:          event.ChainID,
		Timestamp:        event.UpdatedAt,
	}
	if event.TxHash != nil {
		msg.TxHash = *event.TxHash
	}

	topic := TopicAdSettlements
	if event.VerificationStatus == model.VerificationStatusVerified ||
		event.VerificationStatus == model.VerificationStatusRejected {
		topic = TopicAdVerifications
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("marshal settlement message failed",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.CampaignID),
		Value: sarama.ByteEncoder(data),
	}
}
