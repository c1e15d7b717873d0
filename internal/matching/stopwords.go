package matching

// stopWords 分词时丢弃的多语言停用词
var stopWords = map[string]struct{}{
	// 英语
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {}, "this": {},
	"these": {}, "those": {}, "i": {}, "you": {}, "your": {}, "my": {},
	"me": {}, "we": {}, "our": {}, "they": {}, "their": {}, "what": {},
	"which": {}, "who": {}, "how": {}, "when": {}, "where": {}, "can": {},
	"do": {}, "does": {}, "have": {}, "had": {}, "not": {}, "no": {},
	"but": {}, "if": {}, "about": {}, "into": {}, "than": {}, "then": {},
	"so": {}, "some": {}, "any": {}, "all": {}, "best": {}, "get": {},
	"find": {}, "want": {}, "need": {}, "looking": {},

	// 西班牙语
	"el": {}, "la": {}, "los": {}, "las": {}, "un": {}, "una": {}, "y": {},
	"o": {}, "de": {}, "del": {}, "en": {}, "con": {}, "por": {}, "para": {},
	"que": {}, "es": {}, "su": {}, "se": {}, "al": {},

	// 法语
	"le": {}, "les": {}, "des": {}, "une": {}, "et": {}, "ou": {}, "du": {},
	"dans": {}, "sur": {}, "pour": {}, "avec": {}, "est": {}, "ce": {},
	"cette": {}, "qui": {}, "pas": {},

	// 德语
	"der": {}, "die": {}, "das": {}, "und": {}, "oder": {}, "ein": {},
	"eine": {}, "mit": {}, "von": {}, "zu": {}, "im": {}, "ist": {},
	"auf": {}, "den": {}, "fuer": {},

	// 中文常见虚词 (分词后以整词出现时)
	"的": {}, "了": {}, "和": {}, "是": {}, "在": {}, "我": {}, "有": {},
	"就": {}, "不": {}, "与": {}, "或": {}, "等": {},
}

// isStopWord 判断是否为停用词
func isStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
