package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

func newMockProducer(t *testing.T) (*Producer, *mocks.AsyncProducer) {
	t.Helper()

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	mp := mocks.NewAsyncProducer(t, cfg)
	return &Producer{producer: mp}, mp
}

func settledEvent() *model.AdEvent {
	txHash := "0xabc"
	return &model.AdEvent{
		ID:                 "event-1",
		AdID:               "ad-1",
		CampaignID:         "campaign-1",
		DeveloperID:        "dev-1",
		EventType:          model.EventTypeConversion,
		AmountCharged:      decimal.NewFromFloat(2.00),
		DeveloperRevenue:   decimal.NewFromFloat(1.40),
		PlatformRevenue:    decimal.NewFromFloat(0.60),
		TxHash:             &txHash,
		ChainID:            8453,
		VerificationStatus: model.VerificationStatusVerified,
		UpdatedAt:          1700000000000,
	}
}

func TestNotifySettlement_MessageShape(t *testing.T) {
	p, mp := newMockProducer(t)

	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		// 终态验证结果走 verifications 主题
		assert.Equal(t, TopicAdVerifications, pm.Topic)

		key, err := pm.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "campaign-1", string(key))

		value, err := pm.Value.Encode()
		require.NoError(t, err)

		var msg SettlementMessage
		require.NoError(t, json.Unmarshal(value, &msg))
		assert.Equal(t, "event-1", msg.EventID)
		assert.Equal(t, "conversion", msg.EventType)
		assert.Equal(t, "2", msg.AmountCharged)
		assert.Equal(t, "1.4", msg.DeveloperRevenue)
		assert.Equal(t, "0.6", msg.PlatformRevenue)
		assert.Equal(t, "verified", msg.Status)
		assert.Equal(t, "0xabc", msg.TxHash)
		assert.Equal(t, int64(8453), msg.ChainID)
		return nil
	})

	p.NotifySettlement(settledEvent())
	assert.NoError(t, mp.Close())
}

// 信任路径结算走 settlements 主题
func TestNotifySettlement_TrustedTopic(t *testing.T) {
	p, mp := newMockProducer(t)

	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		assert.Equal(t, TopicAdSettlements, pm.Topic)
		return nil
	})

	event := settledEvent()
	event.TxHash = nil
	event.VerificationStatus = model.VerificationStatusNone
	p.NotifySettlement(event)
	assert.NoError(t, mp.Close())
}

func TestNotifySettlement_RejectedTopic(t *testing.T) {
	p, mp := newMockProducer(t)

	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		assert.Equal(t, TopicAdVerifications, pm.Topic)

		value, err := pm.Value.Encode()
		require.NoError(t, err)
		var msg SettlementMessage
		require.NoError(t, json.Unmarshal(value, &msg))
		assert.Equal(t, "rejected", msg.Status)
		return nil
	})

	event := settledEvent()
	event.VerificationStatus = model.VerificationStatusRejected
	event.AmountCharged = decimal.Zero
	event.DeveloperRevenue = decimal.Zero
	event.PlatformRevenue = decimal.Zero
	p.NotifySettlement(event)
	assert.NoError(t, mp.Close())
}
