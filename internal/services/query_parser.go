package services

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// QueryIntent is the structured decomposition of free-text search input.
// Every token of the normalized text lands in exactly one bucket.
type QueryIntent struct {
	Raw              string   `json:"raw"`
	Normalized       string   `json:"normalized"`
	Year             string   `json:"year"`
	PlayerTokens     []string `json:"playerTokens"`
	ProductTokens    []string `json:"productTokens"`
	InsertTokens     []string `json:"insertTokens"`
	ParallelTokens   []string `json:"parallelTokens"`
	DraftTokens      []string `json:"draftTokens"`
	NoiseTokens      []string `json:"noiseTokens"`
	GenericTokens    []string `json:"genericTokens"`
	RookieSignal     bool     `json:"rookieSignal"`
	DraftSignal      bool     `json:"draftSignal"`
	ProductRequested bool     `json:"productRequested"`
}

// PlayerName joins the player tokens. The first generic words of a query are
// usually the player, but nothing guarantees it.
func (q QueryIntent) PlayerName() string {
	return strings.Join(q.PlayerTokens, " ")
}

// querySynonyms are applied in order as whole-word replacements on normalized text.
var querySynonyms = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`\brr\b`), "rated rookie"},
	{regexp.MustCompile(`\bupper deck\b`), "upperdeck"},
	{regexp.MustCompile(`\bautos?\b`), "autograph"},
	{regexp.MustCompile(`\bautographed\b`), "autograph"},
	{regexp.MustCompile(`\brefractors\b`), "refractor"},
	{regexp.MustCompile(`\bx fractor\b`), "xfractor"},
	{regexp.MustCompile(`\bsuper fractor\b`), "superfractor"},
	{regexp.MustCompile(`\bstadium club\b`), "stadiumclub"},
	{regexp.MustCompile(`\ballen (?:and )?ginter\b`), "allenginter"},
	{regexp.MustCompile(`\brookies\b`), "rookie"},
	{regexp.MustCompile(`\bprizms\b`), "prizm"},
	{regexp.MustCompile(`\bfirst bowman\b`), "1st bowman"},
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	draftPhrases = wordSet("bowman draft", "draft pick", "draft picks", "1st bowman", "college ticket")
	draftWords   = wordSet("draft", "college", "ncaa", "prospect", "prospects")

	insertPhrases = wordSet("rated rookie", "rookie ticket", "color blast", "stained glass", "rookie kings",
		"my house", "all kings", "future stars", "star gazing", "net marvels", "rookie debut")
	insertWords = wordSet("downtown", "kaboom", "fireworks", "genesis", "uptown", "manga", "aurora",
		"emergent", "courtside", "lightning", "marvels")

	productWords = wordSet("topps", "chrome", "prizm", "panini", "donruss", "optic", "select", "mosaic",
		"bowman", "upperdeck", "fleer", "score", "hoops", "heritage", "finest", "leaf", "contenders",
		"chronicles", "stadiumclub", "allenginter", "national", "treasures", "flawless", "immaculate",
		"spectra", "obsidian", "update")

	parallelWords = wordSet("silver", "gold", "green", "blue", "red", "orange", "purple", "black", "pink",
		"white", "bronze", "refractor", "xfractor", "superfractor", "holo", "wave", "shimmer", "mojo",
		"atomic", "cracked", "ice", "camo", "tiger", "zebra", "disco", "hyper", "scope", "velocity",
		"sapphire", "neon", "aqua", "teal", "yellow", "prizm")

	rookieWords = wordSet("rookie", "rc")

	noiseWords = wordSet("card", "cards", "psa", "bgs", "sgc", "cgc", "beckett", "graded", "gem", "mint",
		"autograph", "patch", "relic", "sp", "ssp", "lot", "the", "and", "of", "basketball", "football",
		"baseball", "hockey", "soccer", "nba", "nfl", "mlb", "nhl", "wnba", "raw", "mt", "new", "sealed",
		"base", "insert", "parallel", "numbered", "serial")

	queryYearPattern   = regexp.MustCompile(`^(19|20)\d{2}$`)
	serialTokenPattern = regexp.MustCompile(`^\d*/\d+$`)
	queryPunctuation   = regexp.MustCompile(`[^\p{L}\p{N}/\s]+`)
)

const maxPlayerTokens = 3

// normalizeQueryText lowercases, strips punctuation except "/", collapses whitespace
// and applies the synonym table.
func normalizeQueryText(text string) string {
	s := queryPunctuation.ReplaceAllString(strings.ToLower(text), " ")
	s = strings.Join(strings.Fields(s), " ")
	for _, syn := range querySynonyms {
		s = syn.re.ReplaceAllString(s, syn.with)
	}
	return strings.Join(strings.Fields(s), " ")
}

// isSeasonSuffix reports whether tok completes a split season such as "2023 24".
func isSeasonSuffix(year, tok string) bool {
	if len(tok) != 2 {
		return false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return false
	}
	return tok == fmt.Sprintf("%02d", (y+1)%100)
}

// ParseQuery classifies each token of text into intent buckets. Precedence per step:
// year, draft phrase, insert phrase, insert word, product, parallel, rookie, noise, generic.
func ParseQuery(text string) QueryIntent {
	intent := QueryIntent{Raw: text}
	intent.Normalized = normalizeQueryText(text)
	tokens := strings.Fields(intent.Normalized)

	for i := 0; i < len(tokens); {
		tok := tokens[i]
		next := ""
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}
		bigram := tok + " " + next

		switch {
		case queryYearPattern.MatchString(tok):
			if intent.Year == "" {
				intent.Year = tok
			}
			i++
			if next != "" && isSeasonSuffix(tok, next) {
				i++
			}
			continue
		case next != "" && draftPhrases[bigram]:
			intent.DraftTokens = append(intent.DraftTokens, bigram)
			intent.DraftSignal = true
			i += 2
			continue
		case draftWords[tok]:
			intent.DraftTokens = append(intent.DraftTokens, tok)
			intent.DraftSignal = true
		case next != "" && insertPhrases[bigram]:
			intent.InsertTokens = append(intent.InsertTokens, bigram)
			i += 2
			continue
		case insertWords[tok]:
			intent.InsertTokens = append(intent.InsertTokens, tok)
		case productWords[tok] && !(tok == "prizm" && slices.Contains(intent.ProductTokens, "prizm")):
			// a second "prizm" names the parallel, as in "prizm silver prizm"
			intent.ProductTokens = append(intent.ProductTokens, tok)
		case parallelWords[tok] || serialTokenPattern.MatchString(tok):
			intent.ParallelTokens = append(intent.ParallelTokens, tok)
		case rookieWords[tok]:
			intent.RookieSignal = true
		case noiseWords[tok]:
			intent.NoiseTokens = append(intent.NoiseTokens, tok)
		default:
			intent.GenericTokens = append(intent.GenericTokens, tok)
		}
		i++
	}

	intent.ProductTokens = dedupeOrdered(intent.ProductTokens)
	intent.InsertTokens = dedupeOrdered(intent.InsertTokens)
	intent.ParallelTokens = dedupeOrdered(intent.ParallelTokens)
	intent.DraftTokens = dedupeOrdered(intent.DraftTokens)
	intent.NoiseTokens = dedupeOrdered(intent.NoiseTokens)
	intent.GenericTokens = dedupeOrdered(intent.GenericTokens)
	intent.ProductRequested = len(intent.ProductTokens) > 0

	for _, tok := range intent.GenericTokens {
		if len(intent.PlayerTokens) == maxPlayerTokens {
			break
		}
		if strings.ContainsAny(tok, "0123456789") {
			continue
		}
		intent.PlayerTokens = append(intent.PlayerTokens, tok)
	}
	return intent
}

func dedupeOrdered(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
