package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// EventType 上报事件类型
type EventType string

const (
	EventTypeImpression EventType = "impression"
	EventTypeClick      EventType = "click"
	EventTypeConversion EventType = "conversion"
)

// Valid 校验事件类型
func (t EventType) Valid() bool {
	switch t {
	case EventTypeImpression, EventTypeClick, EventTypeConversion:
		return true
	default:
		return false
	}
}

// VerificationStatus 链上验证状态机: pending -> {verified, rejected}
type VerificationStatus string

const (
	VerificationStatusNone     VerificationStatus = "none"
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusVerified VerificationStatus = "verified"
	VerificationStatusRejected VerificationStatus = "rejected"
)

// IsTerminal 判断是否为终态
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationStatusNone || s == VerificationStatusVerified || s == VerificationStatusRejected
}

// 识别出的链上事件形态
const (
	SwapKindUniswapV2    = "uniswap_v2_swap"
	SwapKindUniswapV3    = "uniswap_v3_swap"
	SwapKindUnrecognized = "unrecognized"
)

// SwapDetails 链上验证细节 (按识别出的事件形态打标签)
//
// Kind 为 unrecognized 时各字段为尽力而为的部分信息，
// 解析失败不影响验证结果本身。
type SwapDetails struct {
	Kind        string `json:"kind"`
	Swapper     string `json:"swapper,omitempty"`
	TokenIn     string `json:"token_in,omitempty"`
	TokenOut    string `json:"token_out,omitempty"`
	AmountIn    string `json:"amount_in,omitempty"`
	AmountOut   string `json:"amount_out,omitempty"`
	BlockNumber int64  `json:"block_number,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// AdEvent 结算事件，每次上报一行
//
// 不变式: DeveloperRevenue + PlatformRevenue == AmountCharged。
// 不变式: TxHash 一经任何事件使用即全局唯一，由存储层唯一索引保证
// (应用层 check-then-insert 在并发上报下有竞态)。
// 事件创建后只有验证相关字段会变化，永不删除、永不重新计价。
type AdEvent struct {
	ID                  string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AdID                string             `gorm:"column:ad_id;type:varchar(36);index;not null" json:"ad_id"`
	CampaignID          string             `gorm:"column:campaign_id;type:varchar(36);index;not null" json:"campaign_id"`
	DeveloperID         string             `gorm:"column:developer_id;type:varchar(36);index;not null" json:"developer_id"`
	EventType           EventType          `gorm:"column:event_type;type:varchar(20);not null" json:"event_type"`
	AmountCharged       decimal.Decimal    `gorm:"column:amount_charged;type:decimal(18,6);not null;default:0" json:"amount_charged"`
	DeveloperRevenue    decimal.Decimal    `gorm:"column:developer_revenue;type:decimal(18,6);not null;default:0" json:"developer_revenue"`
	PlatformRevenue     decimal.Decimal    `gorm:"column:platform_revenue;type:decimal(18,6);not null;default:0" json:"platform_revenue"`
	TxHash              *string            `gorm:"column:tx_hash;type:varchar(66);uniqueIndex" json:"tx_hash,omitempty"`
	ChainID             int64              `gorm:"column:chain_id;type:bigint" json:"chain_id,omitempty"`
	VerificationStatus  VerificationStatus `gorm:"column:verification_status;type:varchar(20);index;not null;default:none" json:"verification_status"`
	VerificationDetails string             `gorm:"column:verification_details;type:text" json:"verification_details,omitempty"` // JSON SwapDetails
	SwapperAddress      string             `gorm:"column:swapper_address;type:varchar(42);index" json:"swapper_address,omitempty"`
	Metadata            string             `gorm:"column:metadata;type:text" json:"metadata,omitempty"` // JSON 对象
	CreatedAt           int64              `gorm:"column:created_at;type:bigint;index;not null" json:"created_at"`
	UpdatedAt           int64              `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
	VerifiedAt          int64              `gorm:"column:verified_at;type:bigint" json:"verified_at,omitempty"`
}

// TableName 返回表名
func (AdEvent) TableName() string {
	return "agentads_events"
}

// GetSwapDetails 解析验证细节
func (e *AdEvent) GetSwapDetails() (*SwapDetails, error) {
	if e.VerificationDetails == "" {
		return nil, nil
	}
	var d SwapDetails
	if err := json.Unmarshal([]byte(e.VerificationDetails), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetSwapDetails 设置验证细节
func (e *AdEvent) SetSwapDetails(d *SwapDetails) error {
	if d == nil {
		e.VerificationDetails = ""
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	e.VerificationDetails = string(data)
	return nil
}

// SetMetadata 设置上报附带的上下文
func (e *AdEvent) SetMetadata(meta map[string]string) error {
	if len(meta) == 0 {
		e.Metadata = ""
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	e.Metadata = string(data)
	return nil
}

// RevenueConsistent 校验分成不变式
func (e *AdEvent) RevenueConsistent() bool {
	return e.DeveloperRevenue.Add(e.PlatformRevenue).Equal(e.AmountCharged)
}
