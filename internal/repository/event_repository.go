package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

var (
	ErrEventNotFound = errors.New("event not found")
	// ErrTxHashConflict 交易哈希唯一索引冲突
	ErrTxHashConflict = errors.New("transaction hash already used")
)

// EventRepository 结算事件仓储接口
type EventRepository interface {
	// Create 插入事件；tx_hash 唯一索引冲突返回 ErrTxHashConflict
	Create(ctx context.Context, event *model.AdEvent) error
	GetByID(ctx context.Context, id string) (*model.AdEvent, error)
	GetByTxHash(ctx context.Context, txHash string) (*model.AdEvent, error)
	// FindRecentByReporter 查 (开发者, 广告, 事件类型) 在 since 之后最近的一次上报
	FindRecentByReporter(ctx context.Context, developerID, adID string, eventType model.EventType, since int64) (*model.AdEvent, error)
	// FindRecentBySwapper 查同一活动下该链上身份在 since 之后 verified/pending 的转化
	FindRecentBySwapper(ctx context.Context, campaignID, swapper string, since int64) (*model.AdEvent, error)
	ListPending(ctx context.Context, limit int) ([]*model.AdEvent, error)
	// UpdateVerification 更新验证状态机字段 (金额/分成/状态/细节)
	UpdateVerification(ctx context.Context, event *model.AdEvent) error
}

// eventRepository 结算事件仓储实现
type eventRepository struct {
	*Repository
}

// NewEventRepository 创建结算事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{
		Repository: NewRepository(db),
	}
}

func (r *eventRepository) Create(ctx context.Context, event *model.AdEvent) error {
	now := time.Now().UnixMilli()
	event.CreatedAt = now
	event.UpdatedAt = now
	err := r.DB(ctx).Create(event).Error
	if IsUniqueViolation(err) {
		return ErrTxHashConflict
	}
	return err
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*model.AdEvent, error) {
	var event model.AdEvent
	err := r.DB(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) GetByTxHash(ctx context.Context, txHash string) (*model.AdEvent, error) {
	var event model.AdEvent
	err := r.DB(ctx).Where("tx_hash = ?", txHash).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) FindRecentByReporter(ctx context.Context, developerID, adID string, eventType model.EventType, since int64) (*model.AdEvent, error) {
	var event model.AdEvent
	err := r.DB(ctx).
		Where("developer_id = ? AND ad_id = ? AND event_type = ? AND created_at >= ?",
			developerID, adID, eventType, since).
		Order("created_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) FindRecentBySwapper(ctx context.Context, campaignID, swapper string, since int64) (*model.AdEvent, error) {
	var event model.AdEvent
	err := r.DB(ctx).
		Where("campaign_id = ? AND swapper_address = ? AND created_at >= ?", campaignID, swapper, since).
		Where("verification_status IN ?", []model.VerificationStatus{
			model.VerificationStatusPending,
			model.VerificationStatusVerified,
		}).
		Order("created_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) ListPending(ctx context.Context, limit int) ([]*model.AdEvent, error) {
	var events []*model.AdEvent
	err := r.DB(ctx).
		Where("verification_status = ?", model.VerificationStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *eventRepository) UpdateVerification(ctx context.Context, event *model.AdEvent) error {
	now := time.Now().UnixMilli()
	event.UpdatedAt = now

	result := r.DB(ctx).Model(&model.AdEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"amount_charged":       event.AmountCharged,
			"developer_revenue":    event.DeveloperRevenue,
			"platform_revenue":     event.PlatformRevenue,
			"verification_status":  event.VerificationStatus,
			"verification_details": event.VerificationDetails,
			"swapper_address":      event.SwapperAddress,
			"verified_at":          event.VerifiedAt,
			"updated_at":           now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}
