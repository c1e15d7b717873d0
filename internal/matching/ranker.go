package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

// 排序参数
const (
	// 低于该相关性的匹配不进入最终结果
	rankMinRelevance = 0.10

	bidFactorFloor = 0.70
	bidFactorSpan  = 0.30

	// DefaultMaxResults 默认返回条数
	DefaultMaxResults = 3

	// DisclosureLabel 每条返回结果必须携带的披露标识
	DisclosureLabel = "Sponsored"
)

// RankedAd 排序后的广告结果
type RankedAd struct {
	Candidate  *model.AdCandidate
	Relevance  float64
	BidFactor  float64
	FinalScore float64
	Breakdown  Breakdown
	Disclosure string
}

// Rank 对匹配结果按最终得分降序排序并截断
//
// 最终得分 = relevance^2 * bidFactor * qualityScore。
// bidFactor 按出价在本批次内线性归一到 [0.70, 1.00]，
// 所有出价相同时取 1.0。排序是确定性的:
// 得分相同按出价降序，再相同按广告 ID 升序。
func Rank(matches []*Match, maxResults int) []*RankedAd {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var eligible []*Match
	for _, m := range matches {
		if m.Relevance < rankMinRelevance {
			continue
		}
		eligible = append(eligible, m)
	}
	if len(eligible) == 0 {
		return nil
	}

	minBid, maxBid := bidRange(eligible)
	spread := maxBid.Sub(minBid)

	ranked := make([]*RankedAd, 0, len(eligible))
	for _, m := range eligible {
		bf := 1.0
		if spread.IsPositive() {
			norm, _ := m.Candidate.BidAmount.Sub(minBid).Div(spread).Float64()
			bf = bidFactorFloor + bidFactorSpan*norm
		}
		quality := m.Candidate.QualityScore
		ranked = append(ranked, &RankedAd{
			Candidate:  m.Candidate,
			Relevance:  m.Relevance,
			BidFactor:  bf,
			FinalScore: m.Relevance * m.Relevance * bf * quality,
			Breakdown:  m.Breakdown,
			Disclosure: DisclosureLabel,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if !a.Candidate.BidAmount.Equal(b.Candidate.BidAmount) {
			return a.Candidate.BidAmount.GreaterThan(b.Candidate.BidAmount)
		}
		return a.Candidate.AdID < b.Candidate.AdID
	})

	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked
}

func bidRange(matches []*Match) (decimal.Decimal, decimal.Decimal) {
	minBid := matches[0].Candidate.BidAmount
	maxBid := minBid
	for _, m := range matches[1:] {
		bid := m.Candidate.BidAmount
		if bid.LessThan(minBid) {
			minBid = bid
		}
		if bid.GreaterThan(maxBid) {
			maxBid = bid
		}
	}
	return minBid, maxBid
}
