package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CampaignStatus 广告活动状态
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// PricingModel 计费模式
type PricingModel string

const (
	PricingCPM PricingModel = "CPM" // 每千次展示
	PricingCPC PricingModel = "CPC" // 每次点击
	PricingCPA PricingModel = "CPA" // 每次转化
)

// VerificationType 转化验证类型
type VerificationType string

const (
	VerificationNone    VerificationType = "none"
	VerificationOnChain VerificationType = "onchain"
)

// Campaign 广告活动
//
// 不变式: Spent 永远不超过 TotalBudget；当一次结算会触及上限时，
// 状态必须在同一事务内转为 paused。
type Campaign struct {
	ID              string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AdvertiserID    string              `gorm:"column:advertiser_id;type:varchar(36);index;not null" json:"advertiser_id"`
	AdvertiserName  string              `gorm:"column:advertiser_name;type:varchar(100);not null" json:"advertiser_name"`
	Name            string              `gorm:"column:name;type:varchar(200);not null" json:"name"`
	Status          CampaignStatus      `gorm:"column:status;type:varchar(20);index;not null;default:draft" json:"status"`
	PricingModel    PricingModel        `gorm:"column:pricing_model;type:varchar(10);not null" json:"pricing_model"`
	BidAmount       decimal.Decimal     `gorm:"column:bid_amount;type:decimal(18,6);not null" json:"bid_amount"`
	TotalBudget     decimal.Decimal     `gorm:"column:total_budget;type:decimal(18,6);not null" json:"total_budget"`
	DailyBudget     decimal.NullDecimal `gorm:"column:daily_budget;type:decimal(18,6)" json:"daily_budget"`
	Spent           decimal.Decimal     `gorm:"column:spent;type:decimal(18,6);not null;default:0" json:"spent"`
	Verification    VerificationType    `gorm:"column:verification_type;type:varchar(20);not null;default:none" json:"verification_type"`
	ContractAddress string              `gorm:"column:contract_address;type:varchar(42)" json:"contract_address"`
	ChainIDs        string              `gorm:"column:chain_ids;type:text" json:"chain_ids"` // JSON 数组
	CreatedAt       int64               `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt       int64               `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (Campaign) TableName() string {
	return "agentads_campaigns"
}

// IsActive 是否处于可投放状态
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignStatusActive
}

// RequiresVerification 转化是否需要链上验证
func (c *Campaign) RequiresVerification() bool {
	return c.Verification == VerificationOnChain
}

// RemainingBudget 剩余预算
func (c *Campaign) RemainingBudget() decimal.Decimal {
	remaining := c.TotalBudget.Sub(c.Spent)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// CostFor 按计费模式计算事件单价
//
// 每种模式只有一种事件计费: CPM 计展示 (bid/1000)，CPC 计点击，
// CPA 计转化；其余组合单价为零，这是有意为之。
func (c *Campaign) CostFor(eventType EventType) decimal.Decimal {
	switch {
	case c.PricingModel == PricingCPM && eventType == EventTypeImpression:
		return c.BidAmount.Div(decimal.NewFromInt(1000))
	case c.PricingModel == PricingCPC && eventType == EventTypeClick:
		return c.BidAmount
	case c.PricingModel == PricingCPA && eventType == EventTypeConversion:
		return c.BidAmount
	default:
		return decimal.Zero
	}
}

// GetChainIDList 解析 ChainIDs 为 int64 数组
func (c *Campaign) GetChainIDList() ([]int64, error) {
	if c.ChainIDs == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(c.ChainIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetChainIDList 设置 ChainIDs
func (c *Campaign) SetChainIDList(ids []int64) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	c.ChainIDs = string(data)
	return nil
}

// SupportsChain 判断活动是否接受指定链上的转化证明
//
// 未配置链列表视为接受任意链。
func (c *Campaign) SupportsChain(chainID int64) bool {
	ids, err := c.GetChainIDList()
	if err != nil || len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == chainID {
			return true
		}
	}
	return false
}
