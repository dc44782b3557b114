package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// cardNumberPatterns are tried against every title; "/N" serial numbering is never a card number.
var cardNumberPatterns = []struct {
	tag string
	re  *regexp.Regexp
}{
	{"hash", regexp.MustCompile(`(?i)#\s*([a-z]{0,4}-?\d{1,4}[a-z]?)\b`)},
	{"no", regexp.MustCompile(`(?i)\bno\.?\s*(\d{1,4})\b`)},
	{"card", regexp.MustCompile(`(?i)\bcard\s+(\d{1,4})\b`)},
}

func isYearLike(s string) bool {
	if len(s) != 4 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 1900 && n <= 2099
}

// ExtractCardNumbers returns the distinct card numbers in a title in order of appearance.
func ExtractCardNumbers(title string) []string {
	type hit struct {
		pos int
		num string
	}
	var hits []hit
	for _, p := range cardNumberPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(title, -1) {
			num := strings.ToUpper(title[m[2]:m[3]])
			if isYearLike(num) {
				continue
			}
			hits = append(hits, hit{pos: m[0], num: num})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	var out []string
	seen := make(map[string]bool)
	for _, h := range hits {
		key := canonicalCardNumber(h.num)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h.num)
	}
	return out
}

// canonicalCardNumber drops leading zeros so "#007" and "No. 7" compare equal
func canonicalCardNumber(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

// CardNumbersEqual compares two card numbers ignoring case and leading zeros.
func CardNumbersEqual(a, b string) bool {
	return canonicalCardNumber(a) == canonicalCardNumber(b)
}

// ScoreWeights are the relevance point values. Only their relative order is load-bearing.
type ScoreWeights struct {
	CardNumberMatch  int `json:"card_number_match"`
	CardNumberAbsent int `json:"card_number_absent"` // subtracted
	ParallelMatch    int `json:"parallel_match"`
	GradeMatch       int `json:"grade_match"`
	PlayerToken      int `json:"player_token"`
	YearMatch        int `json:"year_match"`
	ProductToken     int `json:"product_token"`

	MinScore    int `json:"min_score"`
	LikelyScore int `json:"likely_score"`
	ExactScore  int `json:"exact_score"`
}

// DefaultScoreWeights are the weights used by the comps pipeline.
var DefaultScoreWeights = ScoreWeights{
	CardNumberMatch:  40,
	CardNumberAbsent: 15,
	ParallelMatch:    20,
	GradeMatch:       20,
	PlayerToken:      10,
	YearMatch:        10,
	ProductToken:     5,
	MinScore:         20,
	LikelyScore:      45,
	ExactScore:       70,
}

// ScoreSignals describe what the searcher asked for.
type ScoreSignals struct {
	CardNumber    string
	Parallel      string
	Grader        string
	Grade         string
	Year          string
	PlayerTokens  []string
	ProductTokens []string
}

// SignalsFromRequest derives scoring signals from a canonical card request.
func SignalsFromRequest(req models.CardRequest) ScoreSignals {
	intent := ParseQuery(req.SetName)
	return ScoreSignals{
		CardNumber:    NormalizeCardNumber(req.CardNumber),
		Parallel:      req.Parallel,
		Grader:        req.Grader,
		Grade:         req.Grade,
		Year:          NormalizeYear(req.Year),
		PlayerTokens:  strings.Fields(foldText(req.PlayerName)),
		ProductTokens: append(intent.ProductTokens, intent.InsertTokens...),
	}
}

func containsWords(foldedTitle, phrase string) bool {
	p := foldText(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+foldedTitle+" ", " "+p+" ")
}

// ScoreListingTitle adds and subtracts evidence points for one listing title.
func ScoreListingTitle(title string, signals ScoreSignals, w ScoreWeights) int {
	folded := foldText(title)
	score := 0

	if signals.CardNumber != "" {
		nums := ExtractCardNumbers(title)
		matched := false
		for _, n := range nums {
			if CardNumbersEqual(n, signals.CardNumber) {
				matched = true
				break
			}
		}
		switch {
		case matched:
			score += w.CardNumberMatch
		case len(nums) == 0:
			score -= w.CardNumberAbsent
		}
	}

	if signals.Parallel != "" && containsWords(folded, signals.Parallel) {
		score += w.ParallelMatch
	}

	if signals.Grader != "" && signals.Grade != "" {
		grader, grade := ExtractGrade(title)
		if strings.EqualFold(grader, normalizeGrader(signals.Grader)) && gradesEqual(grade, signals.Grade) {
			score += w.GradeMatch
		}
	}

	for _, tok := range signals.PlayerTokens {
		if containsWords(folded, tok) {
			score += w.PlayerToken
		}
	}

	if signals.Year != "" && containsWords(folded, signals.Year) {
		score += w.YearMatch
	}

	for _, tok := range signals.ProductTokens {
		if containsWords(folded, tok) {
			score += w.ProductToken
		}
	}

	return score
}

// Relevance tiers
const (
	TierExact  = "exact"
	TierLikely = "likely"
	TierClose  = "close"
)

// ScoredListing is a listing annotated with its relevance.
type ScoredListing struct {
	models.Listing
	Score int    `json:"score"`
	Tier  string `json:"tier"`
}

// TieredListings buckets scored listings. Hidden counts listings below the cutoff
// so that Total always equals the number of listings scored.
type TieredListings struct {
	Exact  []ScoredListing `json:"exact"`
	Likely []ScoredListing `json:"likely"`
	Close  []ScoredListing `json:"close"`
	Hidden int             `json:"hidden"`
	Total  int             `json:"total"`
}

// Visible returns exact, likely and close listings in tier order.
func (t TieredListings) Visible() []ScoredListing {
	out := make([]ScoredListing, 0, len(t.Exact)+len(t.Likely)+len(t.Close))
	out = append(out, t.Exact...)
	out = append(out, t.Likely...)
	return append(out, t.Close...)
}

// TierListings scores every listing and sorts each tier by score, highest first.
func TierListings(listings []models.Listing, signals ScoreSignals, w ScoreWeights) TieredListings {
	result := TieredListings{Total: len(listings)}
	for _, l := range listings {
		s := ScoredListing{Listing: l, Score: ScoreListingTitle(l.Title, signals, w)}
		switch {
		case s.Score >= w.ExactScore:
			s.Tier = TierExact
			result.Exact = append(result.Exact, s)
		case s.Score >= w.LikelyScore:
			s.Tier = TierLikely
			result.Likely = append(result.Likely, s)
		case s.Score >= w.MinScore:
			s.Tier = TierClose
			result.Close = append(result.Close, s)
		default:
			result.Hidden++
		}
	}

	for _, tier := range [][]ScoredListing{result.Exact, result.Likely, result.Close} {
		sort.SliceStable(tier, func(i, j int) bool { return tier[i].Score > tier[j].Score })
	}
	return result
}
