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
	ErrCampaignNotFound = errors.New("campaign not found")
)

// CampaignRepository 广告活动仓储接口
type CampaignRepository interface {
	Create(ctx context.Context, campaign *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	// GetByIDForUpdate 加行锁读取，必须在事务内调用
	GetByIDForUpdate(ctx context.Context, id string) (*model.Campaign, error)
	Update(ctx context.Context, campaign *model.Campaign) error
	// AddSpend 累加花费，pause 为真时同一条 UPDATE 里转为 paused
	AddSpend(ctx context.Context, id string, amount decimal.Decimal, pause bool) error
	Pause(ctx context.Context, id string) error
}

// campaignRepository 广告活动仓储实现
type campaignRepository struct {
	*Repository
}

// NewCampaignRepository 创建广告活动仓储
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{
		Repository: NewRepository(db),
	}
}

func (r *campaignRepository) Create(ctx context.Context, campaign *model.Campaign) error {
	now := time.Now().UnixMilli()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	return r.DB(ctx).Create(campaign).Error
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.DB(ctx).Where("id = ?", id).First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *campaignRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	var campaign model.Campaign
	opts := &QueryOptions{ForUpdate: true}
	err := opts.ApplyLock(r.DB(ctx)).Where("id = ?", id).First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *campaignRepository) Update(ctx context.Context, campaign *model.Campaign) error {
	campaign.UpdatedAt = time.Now().UnixMilli()
	return r.DB(ctx).Save(campaign).Error
}

func (r *campaignRepository) AddSpend(ctx context.Context, id string, amount decimal.Decimal, pause bool) error {
	updates := map[string]interface{}{
		"spent":      gorm.Expr("spent + ?", amount),
		"updated_at": time.Now().UnixMilli(),
	}
	if pause {
		updates["status"] = model.CampaignStatusPaused
	}

	result := r.DB(ctx).Model(&model.Campaign{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *campaignRepository) Pause(ctx context.Context, id string) error {
	result := r.DB(ctx).Model(&model.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.CampaignStatusPaused,
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}
