// Package service 提供广告结算的业务逻辑服务
package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-ads/internal/metrics"
	"github.com/eidos-exchange/eidos-ads/internal/model"
	"github.com/eidos-exchange/eidos-ads/internal/repository"
	"github.com/eidos-exchange/eidos-ads/internal/verifier"
	"github.com/eidos-exchange/eidos-ads/pkg/errors"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
)

// EventVerifier 链上验证能力
type EventVerifier interface {
	Verify(ctx context.Context, req *verifier.Request) *verifier.Result
}

// TxRunner 数据库事务执行器，由仓储基座提供
type TxRunner interface {
	TransactionWithRetry(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error
}

// SettlementNotifier 结算完成后的异步通知，实现必须不阻塞调用方
type SettlementNotifier interface {
	NotifySettlement(event *model.AdEvent)
}

// SettlementService 结算服务
//
// 唯一的强事务边界: 事件落库、广告计数、活动花费和可能的
// 自动暂停必须同进同退。其余读取不持锁。
type SettlementService struct {
	eventRepo    repository.EventRepository
	campaignRepo repository.CampaignRepository
	adRepo       repository.AdRepository
	devRepo      repository.DeveloperRepository
	txRunner     TxRunner
	verifier     EventVerifier
	notifier     SettlementNotifier

	// 配置
	developerShare  decimal.Decimal
	impressionDedup time.Duration
	clickDedup      time.Duration
	conversionDedup time.Duration
	swapperDedup    time.Duration
	maxTxRetries    int
}

// SettlementServiceConfig 配置
type SettlementServiceConfig struct {
	DeveloperSharePercent int
	ImpressionDedup       time.Duration
	ClickDedup            time.Duration
	ConversionDedup       time.Duration
	SwapperDedup          time.Duration
	MaxTxRetries          int
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	eventRepo repository.EventRepository,
	campaignRepo repository.CampaignRepository,
	adRepo repository.AdRepository,
	devRepo repository.DeveloperRepository,
	txRunner TxRunner,
	eventVerifier EventVerifier,
	notifier SettlementNotifier,
	cfg *SettlementServiceConfig,
) *SettlementService {
	sharePercent := cfg.DeveloperSharePercent
	if sharePercent == 0 {
		sharePercent = 70
	}

	impressionDedup := cfg.ImpressionDedup
	if impressionDedup == 0 {
		impressionDedup = time.Minute
	}
	clickDedup := cfg.ClickDedup
	if clickDedup == 0 {
		clickDedup = 5 * time.Minute
	}
	conversionDedup := cfg.ConversionDedup
	if conversionDedup == 0 {
		conversionDedup = time.Hour
	}
	swapperDedup := cfg.SwapperDedup
	if swapperDedup == 0 {
		swapperDedup = 24 * time.Hour
	}

	maxTxRetries := cfg.MaxTxRetries
	if maxTxRetries == 0 {
		maxTxRetries = 3
	}

	return &SettlementService{
		eventRepo:       eventRepo,
		campaignRepo:    campaignRepo,
		adRepo:          adRepo,
		devRepo:         devRepo,
		txRunner:        txRunner,
		verifier:        eventVerifier,
		notifier:        notifier,
		developerShare:  decimal.NewFromInt(int64(sharePercent)).Div(decimal.NewFromInt(100)),
		impressionDedup: impressionDedup,
		clickDedup:      clickDedup,
		conversionDedup: conversionDedup,
		swapperDedup:    swapperDedup,
		maxTxRetries:    maxTxRetries,
	}
}

// ReportEventRequest 事件上报请求
type ReportEventRequest struct {
	AdID        string
	DeveloperID string
	EventType   model.EventType
	TxHash      string
	ChainID     int64
	Metadata    map[string]string
}

// ReportEventResult 事件上报结果
//
// Status 只在事件已落库后承载验证状态机的走向；
// 落库前的拒绝通过带类型的 error 返回。
type ReportEventResult struct {
	EventID          string                   `json:"event_id"`
	Status           model.VerificationStatus `json:"status"`
	AmountCharged    decimal.Decimal          `json:"amount_charged"`
	DeveloperRevenue decimal.Decimal          `json:"developer_revenue"`
	PlatformRevenue  decimal.Decimal          `json:"platform_revenue"`
	RemainingBudget  decimal.Decimal          `json:"remaining_budget"`
	Reason           string                   `json:"reason,omitempty"`
	// Code 拒绝时携带的业务错误码，调用方据此归类
	Code string `json:"code,omitempty"`
}

// ReportEvent 上报一次广告事件并结算
//
// 信任路径 (展示/点击/无需验证的转化) 立即计价入账；
// 链上路径先落 pending 事件再同步验证一次，验证不通过
// 不计费，pending 交由对账任务重试。
func (s *SettlementService) ReportEvent(ctx context.Context, req *ReportEventRequest) (*ReportEventResult, error) {
	if !req.EventType.Valid() {
		return nil, errors.ErrInvalidEventType.WithDetail("event_type", string(req.EventType))
	}

	ad, err := s.adRepo.GetByID(ctx, req.AdID)
	if err != nil {
		if err == repository.ErrAdNotFound {
			return nil, errors.ErrAdNotFound
		}
		return nil, err
	}

	campaign, err := s.campaignRepo.GetByID(ctx, ad.CampaignID)
	if err != nil {
		if err == repository.ErrCampaignNotFound {
			return nil, errors.ErrCampaignNotFound
		}
		return nil, err
	}
	if !campaign.IsActive() {
		return nil, errors.ErrCampaignNotActive.WithDetail("status", string(campaign.Status))
	}

	if req.EventType == model.EventTypeConversion && campaign.RequiresVerification() {
		return s.reportOnChain(ctx, req, ad, campaign)
	}
	return s.reportTrusted(ctx, req, ad, campaign)
}

// reportTrusted 信任路径结算
func (s *SettlementService) reportTrusted(ctx context.Context, req *ReportEventRequest, ad *model.Ad, campaign *model.Campaign) (*ReportEventResult, error) {
	since := time.Now().Add(-s.dedupWindow(req.EventType)).UnixMilli()
	prior, err := s.eventRepo.FindRecentByReporter(ctx, req.DeveloperID, req.AdID, req.EventType, since)
	if err != nil && err != repository.ErrEventNotFound {
		return nil, err
	}
	if prior != nil {
		metrics.EventsReported.WithLabelValues(string(req.EventType), "duplicate").Inc()
		return nil, errors.ErrDuplicateEvent.WithDetail("prior_event_id", prior.ID)
	}

	cost := campaign.CostFor(req.EventType)

	event := &model.AdEvent{
		ID:                 uuid.NewString(),
		AdID:               ad.ID,
		CampaignID:         campaign.ID,
		DeveloperID:        req.DeveloperID,
		EventType:          req.EventType,
		VerificationStatus: model.VerificationStatusNone,
	}
	if err := event.SetMetadata(req.Metadata); err != nil {
		return nil, err
	}

	result, err := s.settle(ctx, event, campaign.ID, cost)
	if err != nil {
		return nil, err
	}

	metrics.EventsReported.WithLabelValues(string(req.EventType), "settled").Inc()
	amount, _ := result.AmountCharged.Float64()
	metrics.SettledAmount.Add(amount)
	s.notify(event)
	return result, nil
}

// reportOnChain 链上验证路径
func (s *SettlementService) reportOnChain(ctx context.Context, req *ReportEventRequest, ad *model.Ad, campaign *model.Campaign) (*ReportEventResult, error) {
	dev, err := s.devRepo.GetByID(ctx, req.DeveloperID)
	if err != nil {
		if err == repository.ErrDeveloperNotFound {
			return nil, errors.ErrDeveloperNotFound
		}
		return nil, err
	}
	if !dev.HasWallet() {
		return nil, errors.ErrWalletNotBound
	}

	if req.TxHash == "" || req.ChainID == 0 {
		return nil, errors.ErrMissingTxProof
	}
	if !campaign.SupportsChain(req.ChainID) {
		return nil, errors.ErrUnsupportedChain.WithDetail("chain_id", strconv.FormatInt(req.ChainID, 10))
	}

	// 友好预检，真正的唯一性由存储层索引保证
	if prior, err := s.eventRepo.GetByTxHash(ctx, req.TxHash); err == nil {
		return nil, errors.ErrDuplicateTxHash.WithDetail("prior_event_id", prior.ID)
	} else if err != repository.ErrEventNotFound {
		return nil, err
	}

	txHash := req.TxHash
	event := &model.AdEvent{
		ID:                 uuid.NewString(),
		AdID:               ad.ID,
		CampaignID:         campaign.ID,
		DeveloperID:        req.DeveloperID,
		EventType:          req.EventType,
		TxHash:             &txHash,
		ChainID:            req.ChainID,
		VerificationStatus: model.VerificationStatusPending,
	}
	if err := event.SetMetadata(req.Metadata); err != nil {
		return nil, err
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		if err == repository.ErrTxHashConflict {
			return nil, errors.ErrDuplicateTxHash
		}
		return nil, err
	}

	metrics.EventsReported.WithLabelValues(string(req.EventType), "pending").Inc()

	start := time.Now()
	verdict := s.verifier.Verify(ctx, &verifier.Request{
		TxHash:          req.TxHash,
		ChainID:         req.ChainID,
		Beneficiary:     dev.Wallet(),
		ContractAddress: campaign.ContractAddress,
	})
	metrics.VerificationDuration.Observe(time.Since(start).Seconds())

	return s.FinalizeVerification(ctx, event, verdict)
}

// FinalizeVerification 将验证结论落到事件上
//
// 同步路径和对账任务共用。verified 按验证时刻的活动状态与
// 预算重新计价，不使用上报时的旧值；rejected 终态不计费；
// pending 原样保留等待下一轮。
func (s *SettlementService) FinalizeVerification(ctx context.Context, event *model.AdEvent, verdict *verifier.Result) (*ReportEventResult, error) {
	switch verdict.Status {
	case model.VerificationStatusPending:
		metrics.VerificationResults.WithLabelValues("pending").Inc()
		return &ReportEventResult{
			EventID: event.ID,
			Status:  model.VerificationStatusPending,
			Reason:  verdict.Reason,
		}, nil

	case model.VerificationStatusRejected:
		return s.rejectEvent(ctx, event, errors.ErrVerificationRejected.Code, verdict.Reason, verdict.Details)

	case model.VerificationStatusVerified:
		// 同一链上身份 24 小时内只结算一次
		since := time.Now().Add(-s.swapperDedup).UnixMilli()
		prior, err := s.eventRepo.FindRecentBySwapper(ctx, event.CampaignID, verdict.Sender, since)
		if err != nil && err != repository.ErrEventNotFound {
			return nil, err
		}
		if prior != nil && prior.ID != event.ID {
			details := verdict.Details
			if details == nil {
				details = &model.SwapDetails{Kind: model.SwapKindUnrecognized}
			}
			details.Reason = "swapper already credited, prior event " + prior.ID
			event.SwapperAddress = verdict.Sender
			return s.rejectEvent(ctx, event, errors.ErrDuplicateSwap.Code, details.Reason, details)
		}
		return s.settleVerified(ctx, event, verdict)

	default:
		return nil, errors.ErrVerificationRejected.WithMessagef("unexpected verification status: %s", verdict.Status)
	}
}

// rejectEvent 将事件置为 rejected 终态，不产生任何计费
func (s *SettlementService) rejectEvent(ctx context.Context, event *model.AdEvent, code, reason string, details *model.SwapDetails) (*ReportEventResult, error) {
	if details == nil {
		details = &model.SwapDetails{Kind: model.SwapKindUnrecognized}
	}
	if details.Reason == "" {
		details.Reason = reason
	}

	event.VerificationStatus = model.VerificationStatusRejected
	if err := event.SetSwapDetails(details); err != nil {
		return nil, err
	}
	if err := s.eventRepo.UpdateVerification(ctx, event); err != nil {
		return nil, err
	}

	metrics.VerificationResults.WithLabelValues("rejected").Inc()
	logger.Info("conversion rejected",
		zap.String("event_id", event.ID),
		zap.String("reason", reason))
	s.notify(event)

	return &ReportEventResult{
		EventID: event.ID,
		Status:  model.VerificationStatusRejected,
		Reason:  reason,
		Code:    code,
	}, nil
}

// settleVerified 验证通过后的计价入账
func (s *SettlementService) settleVerified(ctx context.Context, event *model.AdEvent, verdict *verifier.Result) (*ReportEventResult, error) {
	event.SwapperAddress = verdict.Sender
	if err := event.SetSwapDetails(verdict.Details); err != nil {
		return nil, err
	}

	var result *ReportEventResult
	err := s.txRunner.TransactionWithRetry(ctx, s.maxTxRetries, func(txCtx context.Context) error {
		campaign, err := s.campaignRepo.GetByIDForUpdate(txCtx, event.CampaignID)
		if err != nil {
			return err
		}

		cost := campaign.CostFor(event.EventType)
		remaining := campaign.RemainingBudget()

		if !campaign.IsActive() || cost.GreaterThan(remaining) {
			// 预算在等待验证期间被耗尽，事件拒绝且活动落锁
			if campaign.IsActive() {
				if err := s.campaignRepo.Pause(txCtx, campaign.ID); err != nil {
					return err
				}
			}
			event.VerificationStatus = model.VerificationStatusRejected
			details, _ := event.GetSwapDetails()
			if details == nil {
				details = &model.SwapDetails{Kind: model.SwapKindUnrecognized}
			}
			details.Reason = "campaign budget exhausted before verification completed"
			if err := event.SetSwapDetails(details); err != nil {
				return err
			}
			if err := s.eventRepo.UpdateVerification(txCtx, event); err != nil {
				return err
			}
			result = &ReportEventResult{
				EventID: event.ID,
				Status:  model.VerificationStatusRejected,
				Reason:  details.Reason,
				Code:    errors.ErrBudgetExhausted.Code,
			}
			return nil
		}

		devRev := cost.Mul(s.developerShare).Round(6)
		platRev := cost.Sub(devRev)

		event.AmountCharged = cost
		event.DeveloperRevenue = devRev
		event.PlatformRevenue = platRev
		event.VerificationStatus = model.VerificationStatusVerified
		event.VerifiedAt = time.Now().UnixMilli()
		if err := s.eventRepo.UpdateVerification(txCtx, event); err != nil {
			return err
		}
		if err := s.adRepo.IncrementCounter(txCtx, event.AdID, event.EventType); err != nil {
			return err
		}

		newSpent := campaign.Spent.Add(cost)
		pause := newSpent.GreaterThanOrEqual(campaign.TotalBudget)
		if err := s.campaignRepo.AddSpend(txCtx, campaign.ID, cost, pause); err != nil {
			return err
		}

		result = &ReportEventResult{
			EventID:          event.ID,
			Status:           model.VerificationStatusVerified,
			AmountCharged:    cost,
			DeveloperRevenue: devRev,
			PlatformRevenue:  platRev,
			RemainingBudget:  campaign.TotalBudget.Sub(newSpent),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status == model.VerificationStatusVerified {
		metrics.VerificationResults.WithLabelValues("verified").Inc()
		amount, _ := result.AmountCharged.Float64()
		metrics.SettledAmount.Add(amount)
	} else {
		metrics.VerificationResults.WithLabelValues("rejected").Inc()
	}
	s.notify(event)
	return result, nil
}

// settle 信任路径的原子入账
//
// 单价为零的事件 (计费模式不覆盖的类型) 只记计数，
// 不触碰预算，也不会因预算耗尽被拒。
func (s *SettlementService) settle(ctx context.Context, event *model.AdEvent, campaignID string, cost decimal.Decimal) (*ReportEventResult, error) {
	var (
		result    *ReportEventResult
		exhausted bool
	)
	err := s.txRunner.TransactionWithRetry(ctx, s.maxTxRetries, func(txCtx context.Context) error {
		campaign, err := s.campaignRepo.GetByIDForUpdate(txCtx, campaignID)
		if err != nil {
			return err
		}
		if !campaign.IsActive() {
			return errors.ErrCampaignNotActive.WithDetail("status", string(campaign.Status))
		}

		if cost.IsPositive() {
			remaining := campaign.RemainingBudget()
			if cost.GreaterThan(remaining) {
				// 拒绝并单向锁定活动；返回 error 会连暂停一起
				// 回滚，所以这里正常提交，由外层转成拒绝
				if err := s.campaignRepo.Pause(txCtx, campaign.ID); err != nil {
					return err
				}
				exhausted = true
				return nil
			}

			devRev := cost.Mul(s.developerShare).Round(6)
			event.AmountCharged = cost
			event.DeveloperRevenue = devRev
			event.PlatformRevenue = cost.Sub(devRev)
		}

		if err := s.eventRepo.Create(txCtx, event); err != nil {
			return err
		}
		if err := s.adRepo.IncrementCounter(txCtx, event.AdID, event.EventType); err != nil {
			return err
		}

		remaining := campaign.RemainingBudget()
		if cost.IsPositive() {
			newSpent := campaign.Spent.Add(cost)
			pause := newSpent.GreaterThanOrEqual(campaign.TotalBudget)
			if err := s.campaignRepo.AddSpend(txCtx, campaign.ID, cost, pause); err != nil {
				return err
			}
			remaining = campaign.TotalBudget.Sub(newSpent)
		}

		result = &ReportEventResult{
			EventID:          event.ID,
			Status:           event.VerificationStatus,
			AmountCharged:    event.AmountCharged,
			DeveloperRevenue: event.DeveloperRevenue,
			PlatformRevenue:  event.PlatformRevenue,
			RemainingBudget:  remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if exhausted {
		metrics.EventsReported.WithLabelValues(string(event.EventType), "budget_exhausted").Inc()
		return nil, errors.ErrBudgetExhausted
	}
	return result, nil
}

// GetVerificationStatus 查询事件当前的验证状态
func (s *SettlementService) GetVerificationStatus(ctx context.Context, eventID string) (*model.AdEvent, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if err == repository.ErrEventNotFound {
			return nil, errors.ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

// dedupWindow 返回信任路径各事件类型的去重窗口
func (s *SettlementService) dedupWindow(eventType model.EventType) time.Duration {
	switch eventType {
	case model.EventTypeImpression:
		return s.impressionDedup
	case model.EventTypeClick:
		return s.clickDedup
	default:
		return s.conversionDedup
	}
}

func (s *SettlementService) notify(event *model.AdEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifySettlement(event)
}
