package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-ads/internal/metrics"
	"github.com/eidos-exchange/eidos-ads/internal/model"
	"github.com/eidos-exchange/eidos-ads/internal/repository"
	"github.com/eidos-exchange/eidos-ads/internal/verifier"
	"github.com/eidos-exchange/eidos-ads/pkg/lock"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
)

const reconciliationLockKey = "reconciliation"

// ReconciliationService 对账任务
//
// 定期把 pending 的转化事件重新送验，pending -> {verified, rejected}
// 的推进与同步路径共用同一套结算逻辑。多实例部署时通过
// Redis 锁保证同一时刻只有一个实例在跑。
type ReconciliationService struct {
	eventRepo    repository.EventRepository
	campaignRepo repository.CampaignRepository
	devRepo      repository.DeveloperRepository
	settlement   *SettlementService
	verifier     EventVerifier
	locker       *lock.RedisLocker

	// 配置
	interval  time.Duration
	batchSize int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ReconciliationConfig 配置
type ReconciliationConfig struct {
	Interval  time.Duration
	BatchSize int
}

// NewReconciliationService 创建对账任务
//
// locker 为 nil 时跳过分布式锁，单实例部署可以这样跑。
func NewReconciliationService(
	eventRepo repository.EventRepository,
	campaignRepo repository.CampaignRepository,
	devRepo repository.DeveloperRepository,
	settlement *SettlementService,
	eventVerifier EventVerifier,
	locker *lock.RedisLocker,
	cfg *ReconciliationConfig,
) *ReconciliationService {
	interval := cfg.Interval
	if interval == 0 {
		interval = time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 50
	}

	return &ReconciliationService{
		eventRepo:    eventRepo,
		campaignRepo: campaignRepo,
		devRepo:      devRepo,
		settlement:   settlement,
		verifier:     eventVerifier,
		locker:       locker,
		interval:     interval,
		batchSize:    batchSize,
		stopCh:       make(chan struct{}),
	}
}

// Start 启动周期任务
func (s *ReconciliationService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Info("reconciliation worker started",
			zap.Duration("interval", s.interval),
			zap.Int("batch_size", s.batchSize))

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop 停止任务并等待当前轮次结束
func (s *ReconciliationService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// runOnce 执行一轮对账
func (s *ReconciliationService) runOnce(ctx context.Context) {
	if s.locker == nil {
		s.processBatch(ctx)
		return
	}

	err := s.locker.WithLock(ctx, reconciliationLockKey, func(ctx context.Context) error {
		s.processBatch(ctx)
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockAcquireFailed) {
			// 别的实例正在跑
			return
		}
		logger.Error("reconciliation lock error", zap.Error(err))
	}
}

// processBatch 拉取一批 pending 事件逐个重验
//
// 单个事件的失败只记日志，不中断本批次其余事件。
func (s *ReconciliationService) processBatch(ctx context.Context) {
	metrics.ReconciliationRuns.Inc()

	events, err := s.eventRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		logger.Error("list pending events failed", zap.Error(err))
		return
	}
	metrics.PendingEvents.Set(float64(len(events)))
	if len(events) == 0 {
		return
	}

	logger.Info("reconciling pending events", zap.Int("count", len(events)))

	for _, event := range events {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.reprocess(ctx, event); err != nil {
			metrics.ReconciliationEvents.WithLabelValues("error").Inc()
			logger.Error("reconcile event failed",
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
}

// reprocess 用上报时的原始输入重新验证一个事件
func (s *ReconciliationService) reprocess(ctx context.Context, event *model.AdEvent) error {
	if event.TxHash == nil {
		// pending 事件必定带交易哈希，这里只是防御脏数据
		return nil
	}

	dev, err := s.devRepo.GetByID(ctx, event.DeveloperID)
	if err != nil {
		return err
	}
	campaign, err := s.campaignRepo.GetByID(ctx, event.CampaignID)
	if err != nil {
		return err
	}

	start := time.Now()
	verdict := s.verifier.Verify(ctx, &verifier.Request{
		TxHash:          *event.TxHash,
		ChainID:         event.ChainID,
		Beneficiary:     dev.Wallet(),
		ContractAddress: campaign.ContractAddress,
	})
	metrics.VerificationDuration.Observe(time.Since(start).Seconds())

	result, err := s.settlement.FinalizeVerification(ctx, event, verdict)
	if err != nil {
		return err
	}

	metrics.ReconciliationEvents.WithLabelValues(string(result.Status)).Inc()
	if result.Status != model.VerificationStatusPending {
		logger.Info("pending event resolved",
			zap.String("event_id", event.ID),
			zap.String("status", string(result.Status)),
			zap.String("reason", result.Reason))
	}
	return nil
}
