// Package classify tags markets along semantic dimensions (niche, stock,
// excluded, long-dated) from their catalog text blobs.
package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/whaleflow/whaleflow/internal/config"
)

// Default keyword lists; overridable per list via configuration.
var (
	DefaultStockKeywords = []string{
		"earnings", "eps", "revenue", "guidance", "ipo", "stock", "shares",
		"share price", "dividend", "buyback", "split", "nasdaq", "s&p", "spx",
		"dow", "dow jones",
	}

	DefaultNicheKeywords = []string{
		"arrest", "indictment", "raid", "investigation", "whistleblower",
		"leak", "scandal", "coup", "assassination", "extradition", "sanction",
		"venezuela", "maduro", "bankruptcy", "default", "delist", "fraud",
		"subpoena", "sec", "doj",
	}

	DefaultExcludeKeywords = []string{
		"bitcoin", "btc", "ethereum", "eth", "solana", "crypto", "super bowl",
		"nfl", "nba", "mlb", "nhl", "world cup", "champion", "playoff",
		"season", "ufc", "f1", "formula 1", "olympics", "soccer",
	}
)

var yearPattern = regexp.MustCompile(`\b(20\d{2})\b`)

// Classification is the result of classifying one market's text.
type Classification struct {
	IsNiche     bool
	IsStock     bool
	IsExcluded  bool
	IsLongDated bool

	MatchedNiche   []string
	MatchedStock   []string
	MatchedExclude []string
}

// Classifier is stateless given its configuration and safe for concurrent
// use from multiple feeds.
type Classifier struct {
	nicheKeywords   []string
	stockKeywords   []string
	excludeKeywords []string
	maxYearsAhead   int
	nicheMaxVolume  *float64

	nowFunc func() time.Time // injectable clock for testing
}

// New builds a Classifier from configuration, substituting package defaults
// for unset keyword lists.
func New(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{
		nicheKeywords:   pickTerms(cfg.NicheKeywords, cfg.NicheDisabled, DefaultNicheKeywords),
		stockKeywords:   pickTerms(cfg.StockKeywords, cfg.StockDisabled, DefaultStockKeywords),
		excludeKeywords: pickTerms(cfg.ExcludeKeywords, cfg.ExcludeDisabled, DefaultExcludeKeywords),
		maxYearsAhead:   cfg.MaxYearsAhead,
		nicheMaxVolume:  cfg.NicheMaxVolume,
		nowFunc:         time.Now,
	}
}

func pickTerms(configured []string, disabled bool, defaults []string) []string {
	if disabled {
		return nil
	}
	if len(configured) > 0 {
		return normalizeTerms(configured)
	}
	return normalizeTerms(defaults)
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}

// Classify inspects the market text (and optional 24h volume) and returns
// the full classification. Exclusion, including long-dated exclusion,
// dominates: excluded markets are never niche or stock.
func (c *Classifier) Classify(text string, volume *float64) Classification {
	blob := strings.ToLower(text)

	matchedNiche := c.matchTerms(blob, c.nicheKeywords)
	matchedStock := c.matchTerms(blob, c.stockKeywords)
	matchedExclude := c.matchTerms(blob, c.excludeKeywords)
	longDated := c.isLongDated(blob)

	isNiche := len(matchedNiche) > 0
	if volume != nil && c.nicheMaxVolume != nil && *volume <= *c.nicheMaxVolume {
		isNiche = true
	}
	isStock := len(matchedStock) > 0
	isExcluded := len(matchedExclude) > 0 || longDated

	if isExcluded {
		isNiche = false
		isStock = false
	}

	return Classification{
		IsNiche:        isNiche,
		IsStock:        isStock,
		IsExcluded:     isExcluded,
		IsLongDated:    longDated,
		MatchedNiche:   matchedNiche,
		MatchedStock:   matchedStock,
		MatchedExclude: matchedExclude,
	}
}

func (c *Classifier) isLongDated(text string) bool {
	if c.maxYearsAhead <= 0 {
		return false
	}
	maxYear := c.nowFunc().UTC().Year() + c.maxYearsAhead
	for _, m := range yearPattern.FindAllString(text, -1) {
		year := int(m[0]-'0')*1000 + int(m[1]-'0')*100 + int(m[2]-'0')*10 + int(m[3]-'0')
		if year > maxYear {
			return true
		}
	}
	return false
}

func (c *Classifier) matchTerms(text string, terms []string) []string {
	var matches []string
	for _, term := range terms {
		if term == "" {
			continue
		}
		if termInText(term, text) {
			matches = append(matches, term)
		}
	}
	return matches
}

// termInText matches short alphanumeric terms ("sec", "f1") on word
// boundaries and everything else by substring.
func termInText(term, text string) bool {
	for _, r := range term {
		if !isAlnum(r) {
			return strings.Contains(text, term)
		}
	}
	if len(term) <= 3 {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
		return re.MatchString(text)
	}
	return strings.Contains(text, term)
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
