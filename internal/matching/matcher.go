// Package matching 提供广告候选的关键词匹配与排序
package matching

import (
	"strings"
	"unicode"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

// 相关性评分权重
const (
	scoreExactKeyword   = 0.30
	scorePartialKeyword = 0.15
	scoreCategory       = 0.20
	scoreGeo            = 0.10
	scoreLanguage       = 0.05

	maxRelevance = 1.0
	// 低于等于该分数的候选直接丢弃
	minRelevance = 0.05
)

// Query 搜索请求
type Query struct {
	FreeText string
	Keywords []string
	Category string
	Geo      string
	Language string
}

// Breakdown 匹配明细
type Breakdown struct {
	ExactKeywords   []string `json:"exact_keywords,omitempty"`
	PartialKeywords []string `json:"partial_keywords,omitempty"`
	CategoryMatched bool     `json:"category_matched"`
	GeoMatched      bool     `json:"geo_matched"`
	LanguageMatched bool     `json:"language_matched"`
}

// Match 匹配结果，顺序不保证 (排序是 Ranker 的职责)
type Match struct {
	Candidate *model.AdCandidate
	Relevance float64
	Breakdown Breakdown
}

// Tokenize 分词: 小写、去标点、按空白切分、去停用词和单字符词
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, lowered)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) <= 1 {
			continue
		}
		if isStopWord(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// queryTerms 合并自由文本分词、相邻词组与显式关键词并去重
func queryTerms(q *Query) []string {
	seen := make(map[string]struct{})
	var terms []string

	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	tokens := Tokenize(q.FreeText)
	for _, tok := range tokens {
		add(tok)
	}
	// 多词关键词只能在词组粒度上精确命中，补充相邻词对与完整短语
	for i := 0; i+1 < len(tokens); i++ {
		add(tokens[i] + " " + tokens[i+1])
	}
	if len(tokens) > 2 {
		add(strings.Join(tokens, " "))
	}
	for _, kw := range q.Keywords {
		add(kw)
	}
	return terms
}

// MatchCandidates 为每个候选累积相关性评分
//
// 合并后既无关键词也无类目时返回空结果，这是约定的空输入行为，
// 不是错误。
func MatchCandidates(q *Query, candidates []*model.AdCandidate) []*Match {
	terms := queryTerms(q)
	category := strings.ToLower(strings.TrimSpace(q.Category))

	if len(terms) == 0 && category == "" {
		return nil
	}

	var matches []*Match
	for _, cand := range candidates {
		m := scoreCandidate(terms, category, q, cand)
		if m.Relevance <= minRelevance {
			continue
		}
		matches = append(matches, m)
	}
	return matches
}

// scoreCandidate 对单个候选评分
func scoreCandidate(terms []string, category string, q *Query, cand *model.AdCandidate) *Match {
	m := &Match{Candidate: cand}

	termSet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		termSet[t] = struct{}{}
	}

	score := 0.0
	for _, kw := range cand.Keywords {
		kwLower := strings.ToLower(kw)
		if _, ok := termSet[kwLower]; ok {
			score += scoreExactKeyword
			m.Breakdown.ExactKeywords = append(m.Breakdown.ExactKeywords, kwLower)
			continue
		}
		// 部分匹配: 任一方向的子串，且未被精确匹配计入
		for _, term := range terms {
			if strings.Contains(kwLower, term) || strings.Contains(term, kwLower) {
				score += scorePartialKeyword
				m.Breakdown.PartialKeywords = append(m.Breakdown.PartialKeywords, kwLower)
				break
			}
		}
	}

	if category != "" {
		for _, cat := range cand.Categories {
			if strings.EqualFold(cat, category) {
				score += scoreCategory
				m.Breakdown.CategoryMatched = true
				break
			}
		}
	}

	if cand.MatchesGeo(q.Geo) {
		score += scoreGeo
		m.Breakdown.GeoMatched = true
	}

	if q.Language != "" && strings.EqualFold(cand.Language, q.Language) {
		score += scoreLanguage
		m.Breakdown.LanguageMatched = true
	}

	if score > maxRelevance {
		score = maxRelevance
	}
	m.Relevance = score
	return m
}
