package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// GeoAll 表示不限地域
const GeoAll = "ALL"

// Ad 广告
type Ad struct {
	ID           string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CampaignID   string  `gorm:"column:campaign_id;type:varchar(36);index;not null" json:"campaign_id"`
	Title        string  `gorm:"column:title;type:varchar(200);not null" json:"title"`
	Description  string  `gorm:"column:description;type:text" json:"description"`
	TargetURL    string  `gorm:"column:target_url;type:varchar(2048);not null" json:"target_url"`
	Keywords     string  `gorm:"column:keywords;type:text" json:"keywords"`     // JSON 数组
	Categories   string  `gorm:"column:categories;type:text" json:"categories"` // JSON 数组
	Geo          string  `gorm:"column:geo;type:varchar(10);not null;default:ALL" json:"geo"`
	Language     string  `gorm:"column:language;type:varchar(10);not null;default:en" json:"language"`
	QualityScore float64 `gorm:"column:quality_score;type:decimal(4,2);not null;default:1.0" json:"quality_score"`
	Impressions  int64   `gorm:"column:impressions;type:bigint;not null;default:0" json:"impressions"`
	Clicks       int64   `gorm:"column:clicks;type:bigint;not null;default:0" json:"clicks"`
	Conversions  int64   `gorm:"column:conversions;type:bigint;not null;default:0" json:"conversions"`
	CreatedAt    int64   `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt    int64   `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (Ad) TableName() string {
	return "agentads_ads"
}

// GetKeywordList 解析 Keywords 为字符串数组
func (a *Ad) GetKeywordList() ([]string, error) {
	if a.Keywords == "" {
		return nil, nil
	}
	var kws []string
	if err := json.Unmarshal([]byte(a.Keywords), &kws); err != nil {
		return nil, err
	}
	return kws, nil
}

// SetKeywordList 设置 Keywords
func (a *Ad) SetKeywordList(kws []string) error {
	data, err := json.Marshal(kws)
	if err != nil {
		return err
	}
	a.Keywords = string(data)
	return nil
}

// GetCategoryList 解析 Categories 为字符串数组
func (a *Ad) GetCategoryList() ([]string, error) {
	if a.Categories == "" {
		return nil, nil
	}
	var cats []string
	if err := json.Unmarshal([]byte(a.Categories), &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// SetCategoryList 设置 Categories
func (a *Ad) SetCategoryList(cats []string) error {
	data, err := json.Marshal(cats)
	if err != nil {
		return err
	}
	a.Categories = string(data)
	return nil
}

// AdCandidate 匹配/排序阶段使用的临时投影
//
// 由仓储层组装 (广告 + 所属活动的出价和广告主名称)，不落库。
type AdCandidate struct {
	AdID           string
	CampaignID     string
	Title          string
	Description    string
	TargetURL      string
	Keywords       []string
	Categories     []string
	Geo            string
	Language       string
	QualityScore   float64
	BidAmount      decimal.Decimal
	PricingModel   PricingModel
	AdvertiserName string
}

// MatchesGeo 候选地域是否覆盖查询地域 (ALL 永远匹配)
func (c *AdCandidate) MatchesGeo(geo string) bool {
	return c.Geo == GeoAll || (geo != "" && c.Geo == geo)
}
