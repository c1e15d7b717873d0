package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

var (
	ErrAdNotFound = errors.New("ad not found")
)

// AdRepository 广告仓储接口
type AdRepository interface {
	Create(ctx context.Context, ad *model.Ad) error
	GetByID(ctx context.Context, id string) (*model.Ad, error)
	// ListActiveCandidates 拉取激活活动下的广告并组装匹配候选投影
	ListActiveCandidates(ctx context.Context, geo, language string) ([]*model.AdCandidate, error)
	// IncrementCounter 按事件类型累加对应计数
	IncrementCounter(ctx context.Context, adID string, eventType model.EventType) error
}

// adRepository 广告仓储实现
type adRepository struct {
	*Repository
}

// NewAdRepository 创建广告仓储
func NewAdRepository(db *gorm.DB) AdRepository {
	return &adRepository{
		Repository: NewRepository(db),
	}
}

func (r *adRepository) Create(ctx context.Context, ad *model.Ad) error {
	now := time.Now().UnixMilli()
	ad.CreatedAt = now
	ad.UpdatedAt = now
	return r.DB(ctx).Create(ad).Error
}

func (r *adRepository) GetByID(ctx context.Context, id string) (*model.Ad, error) {
	var ad model.Ad
	err := r.DB(ctx).Where("id = ?", id).First(&ad).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAdNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ad, nil
}

// candidateRow 联表查询的扫描目标
type candidateRow struct {
	model.Ad
	BidAmount      decimal.Decimal    `gorm:"column:bid_amount"`
	PricingModel   model.PricingModel `gorm:"column:pricing_model"`
	AdvertiserName string             `gorm:"column:advertiser_name"`
}

func (r *adRepository) ListActiveCandidates(ctx context.Context, geo, language string) ([]*model.AdCandidate, error) {
	query := r.DB(ctx).
		Table("agentads_ads AS a").
		Select("a.*, c.bid_amount, c.pricing_model, c.advertiser_name").
		Joins("JOIN agentads_campaigns c ON c.id = a.campaign_id").
		Where("c.status = ?", model.CampaignStatusActive)

	if geo != "" {
		query = query.Where("a.geo = ? OR a.geo = ?", model.GeoAll, geo)
	}
	if language != "" {
		query = query.Where("a.language = ?", language)
	}

	var rows []candidateRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	candidates := make([]*model.AdCandidate, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		keywords, err := row.GetKeywordList()
		if err != nil {
			return nil, err
		}
		categories, err := row.GetCategoryList()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, &model.AdCandidate{
			AdID:           row.ID,
			CampaignID:     row.CampaignID,
			Title:          row.Title,
			Description:    row.Description,
			TargetURL:      row.TargetURL,
			Keywords:       keywords,
			Categories:     categories,
			Geo:            row.Geo,
			Language:       row.Language,
			QualityScore:   row.QualityScore,
			BidAmount:      row.BidAmount,
			PricingModel:   row.PricingModel,
			AdvertiserName: row.AdvertiserName,
		})
	}
	return candidates, nil
}

func (r *adRepository) IncrementCounter(ctx context.Context, adID string, eventType model.EventType) error {
	var column string
	switch eventType {
	case model.EventTypeImpression:
		column = "impressions"
	case model.EventTypeClick:
		column = "clicks"
	case model.EventTypeConversion:
		column = "conversions"
	default:
		return nil
	}

	result := r.DB(ctx).Model(&model.Ad{}).
		Where("id = ?", adID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + 1"),
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAdNotFound
	}
	return nil
}
