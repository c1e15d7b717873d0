package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/eidos-exchange/eidos-ads/internal/metrics"
	"github.com/eidos-exchange/eidos-ads/internal/model"
	"github.com/eidos-exchange/eidos-ads/internal/repository"
	"github.com/eidos-exchange/eidos-ads/internal/verifier"
	pkgerrors "github.com/eidos-exchange/eidos-ads/pkg/errors"
)

// ==================== Mocks ====================

type mockCampaignRepo struct {
	mock.Mock
}

func (m *mockCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCampaignRepo) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *mockCampaignRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *mockCampaignRepo) Update(ctx context.Context, c *model.Campaign) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCampaignRepo) AddSpend(ctx context.Context, id string, amount decimal.Decimal, pause bool) error {
	return m.Called(ctx, id, amount, pause).Error(0)
}

func (m *mockCampaignRepo) Pause(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockAdRepo struct {
	mock.Mock
}

func (m *mockAdRepo) Create(ctx context.Context, ad *model.Ad) error {
	return m.Called(ctx, ad).Error(0)
}

func (m *mockAdRepo) GetByID(ctx context.Context, id string) (*model.Ad, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ad), args.Error(1)
}

func (m *mockAdRepo) ListActiveCandidates(ctx context.Context, geo, language string) ([]*model.AdCandidate, error) {
	args := m.Called(ctx, geo, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AdCandidate), args.Error(1)
}

func (m *mockAdRepo) IncrementCounter(ctx context.Context, adID string, eventType model.EventType) error {
	return m.Called(ctx, adID, eventType).Error(0)
}

type mockEventRepo struct {
	mock.Mock
}

func (m *mockEventRepo) Create(ctx context.Context, event *model.AdEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockEventRepo) GetByID(ctx context.Context, id string) (*model.AdEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdEvent), args.Error(1)
}

func (m *mockEventRepo) GetByTxHash(ctx context.Context, txHash string) (*model.AdEvent, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdEvent), args.Error(1)
}

func (m *mockEventRepo) FindRecentByReporter(ctx context.Context, developerID, adID string, eventType model.EventType, since int64) (*model.AdEvent, error) {
	args := m.Called(ctx, developerID, adID, eventType, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdEvent), args.Error(1)
}

func (m *mockEventRepo) FindRecentBySwapper(ctx context.Context, campaignID, swapper string, since int64) (*model.AdEvent, error) {
	args := m.Called(ctx, campaignID, swapper, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdEvent), args.Error(1)
}

func (m *mockEventRepo) ListPending(ctx context.Context, limit int) ([]*model.AdEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AdEvent), args.Error(1)
}

func (m *mockEventRepo) UpdateVerification(ctx context.Context, event *model.AdEvent) error {
	return m.Called(ctx, event).Error(0)
}

type mockDeveloperRepo struct {
	mock.Mock
}

func (m *mockDeveloperRepo) Create(ctx context.Context, dev *model.Developer) error {
	return m.Called(ctx, dev).Error(0)
}

func (m *mockDeveloperRepo) GetByID(ctx context.Context, id string) (*model.Developer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Developer), args.Error(1)
}

func (m *mockDeveloperRepo) GetByWallet(ctx context.Context, wallet string) (*model.Developer, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Developer), args.Error(1)
}

func (m *mockDeveloperRepo) BindWallet(ctx context.Context, id, wallet, referralCode string) error {
	return m.Called(ctx, id, wallet, referralCode).Error(0)
}

// fakeTxRunner 直接执行，不开真实事务
type fakeTxRunner struct{}

func (fakeTxRunner) TransactionWithRetry(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeVerifier 返回预设结论
type fakeVerifier struct {
	result *verifier.Result
}

func (f *fakeVerifier) Verify(ctx context.Context, req *verifier.Request) *verifier.Result {
	return f.result
}

// ==================== Fixtures ====================

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testSender = "0x3333333333333333333333333333333333333333"
)

type testEnv struct {
	campaignRepo *mockCampaignRepo
	adRepo       *mockAdRepo
	eventRepo    *mockEventRepo
	devRepo      *mockDeveloperRepo
	verifier     *fakeVerifier
	svc          *SettlementService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		campaignRepo: new(mockCampaignRepo),
		adRepo:       new(mockAdRepo),
		eventRepo:    new(mockEventRepo),
		devRepo:      new(mockDeveloperRepo),
		verifier:     &fakeVerifier{},
	}
	env.svc = NewSettlementService(
		env.eventRepo,
		env.campaignRepo,
		env.adRepo,
		env.devRepo,
		fakeTxRunner{},
		env.verifier,
		nil,
		&SettlementServiceConfig{},
	)
	return env
}

func cpcCampaign(bid, totalBudget, spent float64) *model.Campaign {
	return &model.Campaign{
		ID:           "campaign-1",
		Status:       model.CampaignStatusActive,
		PricingModel: model.PricingCPC,
		BidAmount:    decimal.NewFromFloat(bid),
		TotalBudget:  decimal.NewFromFloat(totalBudget),
		Spent:        decimal.NewFromFloat(spent),
	}
}

func cpaOnChainCampaign(bid float64) *model.Campaign {
	return &model.Campaign{
		ID:           "campaign-1",
		Status:       model.CampaignStatusActive,
		PricingModel: model.PricingCPA,
		BidAmount:    decimal.NewFromFloat(bid),
		TotalBudget:  decimal.NewFromFloat(100),
		Verification: model.VerificationOnChain,
	}
}

func testAd() *model.Ad {
	return &model.Ad{ID: "ad-1", CampaignID: "campaign-1"}
}

func walletDeveloper() *model.Developer {
	w := testWallet
	return &model.Developer{ID: "dev-1", WalletAddress: &w}
}

func expectNoPrior(env *testEnv) {
	env.eventRepo.On("FindRecentByReporter", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, repository.ErrEventNotFound)
}

// ==================== Trusted path ====================

// CPC 出价 0.50: 点击收 0.50，按 70/30 分成
func TestReportEvent_CPCClick(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 0), nil)
	env.campaignRepo.On("GetByIDForUpdate", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 0), nil)
	expectNoPrior(env)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.adRepo.On("IncrementCounter", mock.Anything, "ad-1", model.EventTypeClick).Return(nil)
	env.campaignRepo.On("AddSpend", mock.Anything, "campaign-1", mock.Anything, false).Return(nil)

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeClick,
	})

	assert.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(0.50).Equal(result.AmountCharged))
	assert.True(t, decimal.NewFromFloat(0.35).Equal(result.DeveloperRevenue))
	assert.True(t, decimal.NewFromFloat(0.15).Equal(result.PlatformRevenue))
	assert.True(t, decimal.NewFromFloat(9.50).Equal(result.RemainingBudget))
	// 分成不变式
	assert.True(t, result.DeveloperRevenue.Add(result.PlatformRevenue).Equal(result.AmountCharged))
}

// CPC 活动上的展示收 0 元，但仍记录计数
func TestReportEvent_CPCImpressionChargesZero(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 0), nil)
	env.campaignRepo.On("GetByIDForUpdate", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 0), nil)
	expectNoPrior(env)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.adRepo.On("IncrementCounter", mock.Anything, "ad-1", model.EventTypeImpression).Return(nil)

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeImpression,
	})

	assert.NoError(t, err)
	assert.True(t, result.AmountCharged.IsZero())
	env.adRepo.AssertCalled(t, "IncrementCounter", mock.Anything, "ad-1", model.EventTypeImpression)
	env.campaignRepo.AssertNotCalled(t, "AddSpend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// 花费触及预算上限的那笔结算必须同时暂停活动
func TestReportEvent_LastClickPausesCampaign(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 9.50), nil)
	env.campaignRepo.On("GetByIDForUpdate", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 9.50), nil)
	expectNoPrior(env)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.adRepo.On("IncrementCounter", mock.Anything, "ad-1", model.EventTypeClick).Return(nil)
	env.campaignRepo.On("AddSpend", mock.Anything, "campaign-1", mock.Anything, true).Return(nil)

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeClick,
	})

	assert.NoError(t, err)
	assert.True(t, result.RemainingBudget.IsZero())
	env.campaignRepo.AssertCalled(t, "AddSpend", mock.Anything, "campaign-1", mock.Anything, true)
}

// 预算耗尽: 拒绝上报、不落事件、活动单向暂停
func TestReportEvent_BudgetExhausted(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 10), nil)
	env.campaignRepo.On("GetByIDForUpdate", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 10), nil)
	expectNoPrior(env)
	env.campaignRepo.On("Pause", mock.Anything, "campaign-1").Return(nil)

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeClick,
	})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, pkgerrors.ErrBudgetExhausted)
	env.campaignRepo.AssertCalled(t, "Pause", mock.Anything, "campaign-1")
	env.eventRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// 信任窗口内的重复上报被拒，并指向先前事件
func TestReportEvent_TrustedDedup(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpcCampaign(0.50, 10, 0), nil)
	env.eventRepo.On("FindRecentByReporter", mock.Anything, "dev-1", "ad-1", model.EventTypeClick, mock.Anything).
		Return(&model.AdEvent{ID: "event-prior"}, nil)

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeClick,
	})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateEvent)
	var bizErr *pkgerrors.Error
	assert.ErrorAs(t, err, &bizErr)
	assert.Equal(t, "event-prior", bizErr.Details["prior_event_id"])
	env.eventRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReportEvent_InvalidEventType(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:      "ad-1",
		EventType: "hover",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidEventType)
}

func TestReportEvent_CampaignNotActive(t *testing.T) {
	env := newTestEnv()
	campaign := cpcCampaign(0.50, 10, 0)
	campaign.Status = model.CampaignStatusPaused
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(campaign, nil)

	_, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeClick,
	})
	assert.ErrorIs(t, err, pkgerrors.ErrCampaignNotActive)
}

// ==================== On-chain path ====================

// 未注册钱包的开发者上报链上转化: 拒绝且零费用
func TestReportEvent_OnChainWithoutWallet(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(&model.Developer{ID: "dev-1"}, nil)

	_, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
		TxHash:      "0xabc",
		ChainID:     1,
	})

	assert.ErrorIs(t, err, pkgerrors.ErrWalletNotBound)
	env.eventRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// 链上转化缺少交易凭证: 校验错误，无副作用
func TestReportEvent_OnChainMissingProof(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(walletDeveloper(), nil)

	_, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
	})

	assert.ErrorIs(t, err, pkgerrors.ErrMissingTxProof)
	env.eventRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// 无法核实的交易落 pending，绝不计费
func TestReportEvent_OnChainPendingChargesNothing(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(walletDeveloper(), nil)
	env.eventRepo.On("GetByTxHash", mock.Anything, mock.Anything).Return(nil, repository.ErrEventNotFound)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.verifier.result = &verifier.Result{Status: model.VerificationStatusPending}

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
		TxHash:      "0xfabricated",
		ChainID:     1,
	})

	assert.NoError(t, err)
	assert.Equal(t, model.VerificationStatusPending, result.Status)
	assert.True(t, result.AmountCharged.IsZero())
	env.campaignRepo.AssertNotCalled(t, "AddSpend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// 每次链上验证的耗时都记入直方图
func TestReportEvent_OnChainRecordsVerificationDuration(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(walletDeveloper(), nil)
	env.eventRepo.On("GetByTxHash", mock.Anything, mock.Anything).Return(nil, repository.ErrEventNotFound)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.verifier.result = &verifier.Result{Status: model.VerificationStatusPending}

	before := histogramSampleCount(t, metrics.VerificationDuration)
	_, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
		TxHash:      "0xtimed",
		ChainID:     1,
	})

	assert.NoError(t, err)
	assert.Equal(t, before+1, histogramSampleCount(t, metrics.VerificationDuration))
}

func histogramSampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	assert.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

// 重复交易哈希被拒
func TestReportEvent_DuplicateTxHash(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(walletDeveloper(), nil)
	env.eventRepo.On("GetByTxHash", mock.Anything, "0xused").Return(&model.AdEvent{ID: "event-prior"}, nil)

	_, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
		TxHash:      "0xused",
		ChainID:     1,
	})

	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateTxHash)
}

// 并发竞态下插入撞唯一索引，转成干净的重复错误
func TestReportEvent_TxHashRaceOnInsert(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(walletDeveloper(), nil)
	env.eventRepo.On("GetByTxHash", mock.Anything, mock.Anything).Return(nil, repository.ErrEventNotFound)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrTxHashConflict)

	_, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
		TxHash:      "0xraced",
		ChainID:     1,
	})

	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateTxHash)
}

// 验证通过: 按验证时刻计价，CPA 2.00 分成 1.40/0.60
func TestReportEvent_OnChainVerified(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.campaignRepo.On("GetByIDForUpdate", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(walletDeveloper(), nil)
	env.eventRepo.On("GetByTxHash", mock.Anything, mock.Anything).Return(nil, repository.ErrEventNotFound)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.eventRepo.On("FindRecentBySwapper", mock.Anything, "campaign-1", testSender, mock.Anything).
		Return(nil, repository.ErrEventNotFound)
	env.eventRepo.On("UpdateVerification", mock.Anything, mock.Anything).Return(nil)
	env.adRepo.On("IncrementCounter", mock.Anything, "ad-1", model.EventTypeConversion).Return(nil)
	env.campaignRepo.On("AddSpend", mock.Anything, "campaign-1", mock.Anything, false).Return(nil)
	env.verifier.result = &verifier.Result{
		Status: model.VerificationStatusVerified,
		Sender: testSender,
		Details: &model.SwapDetails{
			Kind:     model.SwapKindUniswapV2,
			AmountIn: "1000",
		},
	}

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
		TxHash:      "0xgood",
		ChainID:     1,
	})

	assert.NoError(t, err)
	assert.Equal(t, model.VerificationStatusVerified, result.Status)
	assert.True(t, decimal.NewFromFloat(2.00).Equal(result.AmountCharged))
	assert.True(t, decimal.NewFromFloat(1.40).Equal(result.DeveloperRevenue))
	assert.True(t, decimal.NewFromFloat(0.60).Equal(result.PlatformRevenue))
	assert.True(t, result.DeveloperRevenue.Add(result.PlatformRevenue).Equal(result.AmountCharged))
}

// 验证被拒: 事件落 rejected 终态，不计费
func TestReportEvent_OnChainRejected(t *testing.T) {
	env := newTestEnv()
	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(cpaOnChainCampaign(2.00), nil)
	env.devRepo.On("GetByID", mock.Anything, "dev-1").Return(walletDeveloper(), nil)
	env.eventRepo.On("GetByTxHash", mock.Anything, mock.Anything).Return(nil, repository.ErrEventNotFound)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.eventRepo.On("UpdateVerification", mock.Anything, mock.MatchedBy(func(e *model.AdEvent) bool {
		return e.VerificationStatus == model.VerificationStatusRejected
	})).Return(nil)
	env.verifier.result = &verifier.Result{
		Status: model.VerificationStatusRejected,
		Reason: verifier.ReasonSelfDealing,
	}

	result, err := env.svc.ReportEvent(context.Background(), &ReportEventRequest{
		AdID:        "ad-1",
		DeveloperID: "dev-1",
		EventType:   model.EventTypeConversion,
		TxHash:      "0xself",
		ChainID:     1,
	})

	assert.NoError(t, err)
	assert.Equal(t, model.VerificationStatusRejected, result.Status)
	assert.Equal(t, verifier.ReasonSelfDealing, result.Reason)
	assert.Equal(t, pkgerrors.ErrVerificationRejected.Code, result.Code)
	assert.True(t, result.AmountCharged.IsZero())
	env.campaignRepo.AssertNotCalled(t, "AddSpend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// 同一链上身份 24 小时内第二次转化被拒
func TestFinalizeVerification_SwapperDedup(t *testing.T) {
	env := newTestEnv()
	env.eventRepo.On("FindRecentBySwapper", mock.Anything, "campaign-1", testSender, mock.Anything).
		Return(&model.AdEvent{ID: "event-prior"}, nil)
	env.eventRepo.On("UpdateVerification", mock.Anything, mock.MatchedBy(func(e *model.AdEvent) bool {
		return e.VerificationStatus == model.VerificationStatusRejected && e.SwapperAddress == testSender
	})).Return(nil)

	event := &model.AdEvent{
		ID:                 "event-1",
		AdID:               "ad-1",
		CampaignID:         "campaign-1",
		EventType:          model.EventTypeConversion,
		VerificationStatus: model.VerificationStatusPending,
	}
	result, err := env.svc.FinalizeVerification(context.Background(), event, &verifier.Result{
		Status: model.VerificationStatusVerified,
		Sender: testSender,
	})

	assert.NoError(t, err)
	assert.Equal(t, model.VerificationStatusRejected, result.Status)
	assert.Contains(t, result.Reason, "event-prior")
	assert.Equal(t, pkgerrors.ErrDuplicateSwap.Code, result.Code)
	env.campaignRepo.AssertNotCalled(t, "AddSpend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// 等待验证期间预算被耗尽: 事件拒绝，活动落锁
func TestFinalizeVerification_BudgetExhaustedWhilePending(t *testing.T) {
	env := newTestEnv()
	campaign := cpaOnChainCampaign(2.00)
	campaign.Spent = campaign.TotalBudget
	env.campaignRepo.On("GetByIDForUpdate", mock.Anything, "campaign-1").Return(campaign, nil)
	env.campaignRepo.On("Pause", mock.Anything, "campaign-1").Return(nil)
	env.eventRepo.On("FindRecentBySwapper", mock.Anything, "campaign-1", testSender, mock.Anything).
		Return(nil, repository.ErrEventNotFound)
	env.eventRepo.On("UpdateVerification", mock.Anything, mock.MatchedBy(func(e *model.AdEvent) bool {
		return e.VerificationStatus == model.VerificationStatusRejected
	})).Return(nil)

	event := &model.AdEvent{
		ID:                 "event-1",
		AdID:               "ad-1",
		CampaignID:         "campaign-1",
		EventType:          model.EventTypeConversion,
		VerificationStatus: model.VerificationStatusPending,
	}
	result, err := env.svc.FinalizeVerification(context.Background(), event, &verifier.Result{
		Status: model.VerificationStatusVerified,
		Sender: testSender,
	})

	assert.NoError(t, err)
	assert.Equal(t, model.VerificationStatusRejected, result.Status)
	env.campaignRepo.AssertCalled(t, "Pause", mock.Anything, "campaign-1")
	env.campaignRepo.AssertNotCalled(t, "AddSpend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// 模拟场景: 0.50 出价、10 预算，恰好 20 次点击后耗尽
//
// 两个查询桩返回同一个 campaign 指针，AddSpend 的 Run 回调
// 原地累加花费，模拟行级更新后的可见状态。
func TestReportEvent_TwentyClicksExhaustBudget(t *testing.T) {
	env := newTestEnv()
	campaign := cpcCampaign(0.50, 10, 0)
	bid := decimal.NewFromFloat(0.50)

	env.adRepo.On("GetByID", mock.Anything, "ad-1").Return(testAd(), nil)
	env.adRepo.On("IncrementCounter", mock.Anything, "ad-1", model.EventTypeClick).Return(nil)
	expectNoPrior(env)
	env.eventRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	env.campaignRepo.On("GetByID", mock.Anything, "campaign-1").Return(campaign, nil)
	env.campaignRepo.On("GetByIDForUpdate", mock.Anything, "campaign-1").Return(campaign, nil)
	env.campaignRepo.On("AddSpend", mock.Anything, "campaign-1", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			campaign.Spent = campaign.Spent.Add(args.Get(2).(decimal.Decimal))
			if args.Bool(3) {
				campaign.Status = model.CampaignStatusPaused
			}
		}).Return(nil)

	req := &ReportEventRequest{AdID: "ad-1", DeveloperID: "dev-1", EventType: model.EventTypeClick}

	for i := 0; i < 20; i++ {
		result, err := env.svc.ReportEvent(context.Background(), req)
		assert.NoError(t, err, "click %d", i+1)
		assert.True(t, bid.Equal(result.AmountCharged))
	}

	// 第 21 次: 活动已暂停
	_, err := env.svc.ReportEvent(context.Background(), req)
	assert.ErrorIs(t, err, pkgerrors.ErrCampaignNotActive)
	assert.True(t, campaign.TotalBudget.Equal(campaign.Spent))
	assert.Equal(t, model.CampaignStatusPaused, campaign.Status)
}
