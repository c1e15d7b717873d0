package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-ads/internal/matching"
	"github.com/eidos-exchange/eidos-ads/internal/metrics"
	"github.com/eidos-exchange/eidos-ads/internal/model"
	"github.com/eidos-exchange/eidos-ads/internal/repository"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
	"github.com/eidos-exchange/eidos-ads/pkg/wallet"
)

// SearchService 广告检索服务
type SearchService struct {
	adRepo  repository.AdRepository
	devRepo repository.DeveloperRepository

	maxResults int
}

// SearchServiceConfig 配置
type SearchServiceConfig struct {
	MaxResults int
}

// NewSearchService 创建检索服务
func NewSearchService(adRepo repository.AdRepository, devRepo repository.DeveloperRepository, cfg *SearchServiceConfig) *SearchService {
	maxResults := cfg.MaxResults
	if maxResults == 0 {
		maxResults = matching.DefaultMaxResults
	}
	return &SearchService{
		adRepo:     adRepo,
		devRepo:    devRepo,
		maxResults: maxResults,
	}
}

// SearchRequest 检索请求
type SearchRequest struct {
	Query       string
	Keywords    []string
	Category    string
	Geo         string
	Language    string
	MaxResults  int
	DeveloperID string
}

// SearchResult 单条检索结果
//
// 每条结果都携带 Disclosure 标识，付费属性对调用方始终可见。
type SearchResult struct {
	AdID           string             `json:"ad_id"`
	CampaignID     string             `json:"campaign_id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	TargetURL      string             `json:"target_url"`
	AdvertiserName string             `json:"advertiser_name"`
	PricingModel   model.PricingModel `json:"pricing_model"`
	Relevance      float64            `json:"relevance"`
	FinalScore     float64            `json:"final_score"`
	Disclosure     string             `json:"disclosure"`
	Breakdown      matching.Breakdown `json:"breakdown"`
}

// Search 匹配并排序广告
//
// 上报开发者已绑定钱包时，目标链接附加推荐参数，
// 让后续的链上转化能归因到该开发者。
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) ([]*SearchResult, error) {
	metrics.SearchRequests.Inc()

	candidates, err := s.adRepo.ListActiveCandidates(ctx, req.Geo, req.Language)
	if err != nil {
		return nil, err
	}

	matches := matching.MatchCandidates(&matching.Query{
		FreeText: req.Query,
		Keywords: req.Keywords,
		Category: req.Category,
		Geo:      req.Geo,
		Language: req.Language,
	}, candidates)

	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > s.maxResults {
		maxResults = s.maxResults
	}
	ranked := matching.Rank(matches, maxResults)

	referralWallet := s.referralWallet(ctx, req.DeveloperID)

	results := make([]*SearchResult, 0, len(ranked))
	for _, r := range ranked {
		targetURL := r.Candidate.TargetURL
		if referralWallet != "" {
			enriched, err := wallet.ReferralLink(targetURL, referralWallet)
			if err != nil {
				// 链接畸形时退回原始链接，不影响返回
				logger.Warn("referral link build failed",
					zap.String("ad_id", r.Candidate.AdID),
					zap.Error(err))
			} else {
				targetURL = enriched
			}
		}
		results = append(results, &SearchResult{
			AdID:           r.Candidate.AdID,
			CampaignID:     r.Candidate.CampaignID,
			Title:          r.Candidate.Title,
			Description:    r.Candidate.Description,
			TargetURL:      targetURL,
			AdvertiserName: r.Candidate.AdvertiserName,
			PricingModel:   r.Candidate.PricingModel,
			Relevance:      r.Relevance,
			FinalScore:     r.FinalScore,
			Disclosure:     r.Disclosure,
			Breakdown:      r.Breakdown,
		})
	}

	metrics.SearchResultsReturned.Observe(float64(len(results)))
	return results, nil
}

// referralWallet 返回开发者的钱包地址，未注册或查询失败返回空串
func (s *SearchService) referralWallet(ctx context.Context, developerID string) string {
	if developerID == "" {
		return ""
	}
	dev, err := s.devRepo.GetByID(ctx, developerID)
	if err != nil || !dev.HasWallet() {
		return ""
	}
	return dev.Wallet()
}
