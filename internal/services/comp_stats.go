package services

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// Reduction methods
const (
	MethodMedian      = "median"
	MethodTrimmedMean = "trimmedMean"
	MethodNone        = "none"
)

const (
	// DefaultCompWindow is how far back a sold listing may be and still count as current
	DefaultCompWindow = 90 * 24 * time.Hour
	// trimFraction is removed from each end before averaging small samples
	trimFraction = 0.15
	// minMedianSample is the smallest sample reduced with a median
	minMedianSample = 3
)

var gradePattern = regexp.MustCompile(`(?i)\b(PSA|BGS|SGC|CGC|BECKETT|HGA|CSG)\s*(\d{1,2}(?:\.\d)?)\b`)

// ExtractGrade returns the grading company and grade named in a title, or empty strings for a raw card.
func ExtractGrade(title string) (grader, grade string) {
	m := gradePattern.FindStringSubmatch(title)
	if m == nil {
		return "", ""
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil || v <= 0 || v > 10 {
		return "", ""
	}
	return normalizeGrader(m[1]), m[2]
}

func normalizeGrader(g string) string {
	g = strings.ToUpper(strings.TrimSpace(g))
	if g == "BECKETT" {
		return "BGS"
	}
	return g
}

func gradesEqual(a, b string) bool {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return fa == fb
}

// listingGrade prefers structured fields from the source over title parsing
func listingGrade(l models.Listing) (string, string) {
	if l.Grader != "" && l.Grade != "" {
		return normalizeGrader(l.Grader), l.Grade
	}
	return ExtractGrade(l.Title)
}

// GradeBucket selects raw cards (empty Grader) or one exact grader and grade.
type GradeBucket struct {
	Grader string `json:"grader"`
	Grade  string `json:"grade"`
}

// IsRaw reports whether the bucket selects ungraded cards.
func (b GradeBucket) IsRaw() bool {
	return b.Grader == ""
}

// Key renders the bucket as "raw" or e.g. "PSA 10".
func (b GradeBucket) Key() string {
	if b.IsRaw() {
		return "raw"
	}
	return normalizeGrader(b.Grader) + " " + b.Grade
}

// Matches reports whether a listing belongs to the bucket.
func (b GradeBucket) Matches(l models.Listing) bool {
	grader, grade := listingGrade(l)
	if b.IsRaw() {
		return grader == ""
	}
	return grader == normalizeGrader(b.Grader) && gradesEqual(grade, b.Grade)
}

// GradeCmv is the market value for one grade bucket. Price is nil when no sale qualified.
type GradeCmv struct {
	Price      *float64   `json:"price"`
	N          int        `json:"n"`
	Method     string     `json:"method"`
	LastSoldAt *time.Time `json:"lastSoldAt"`
}

// CompStats summarizes a set of comps. CMV uses the robust estimator while
// Avg, Low and High cover every valid price. In a comps result CMV and Method
// are taken from the grade CMV so sales outside the window never price the card.
type CompStats struct {
	CMV    *float64 `json:"cmv"`
	Avg    *float64 `json:"avg"`
	Low    *float64 `json:"low"`
	High   *float64 `json:"high"`
	Count  int      `json:"count"`
	Method string   `json:"method"`
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Median returns the middle value, averaging the two middle values on even counts.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// TrimmedMean drops fraction of the values from each end before averaging.
func TrimmedMean(values []float64, fraction float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	k := int(math.Floor(float64(len(sorted)) * fraction))
	kept := sorted[k : len(sorted)-k]
	sum := 0.0
	for _, v := range kept {
		sum += v
	}
	return sum / float64(len(kept))
}

// reducePrices picks the estimator by sample size. It returns nil for an empty sample.
func reducePrices(prices []float64) (*float64, string) {
	switch {
	case len(prices) == 0:
		return nil, MethodNone
	case len(prices) >= minMedianSample:
		v := roundCents(Median(prices))
		return &v, MethodMedian
	default:
		v := roundCents(TrimmedMean(prices, trimFraction))
		return &v, MethodTrimmedMean
	}
}

// BuildGradeCmv reduces the listings in one grade bucket sold within window of now.
// A non-positive window disables the recency filter.
func BuildGradeCmv(listings []models.Listing, bucket GradeBucket, now time.Time, window time.Duration) GradeCmv {
	var prices []float64
	var lastSold *time.Time
	cutoff := now.Add(-window)

	for _, l := range listings {
		if !bucket.Matches(l) || !validPrice(l.Price) {
			continue
		}
		if window > 0 && (l.SoldAt == nil || l.SoldAt.Before(cutoff)) {
			continue
		}
		prices = append(prices, l.Price)
		if l.SoldAt != nil && (lastSold == nil || l.SoldAt.After(*lastSold)) {
			t := *l.SoldAt
			lastSold = &t
		}
	}

	price, method := reducePrices(prices)
	metrics.GradeCmvMethodTotal.WithLabelValues(method).Inc()
	return GradeCmv{Price: price, N: len(prices), Method: method, LastSoldAt: lastSold}
}

// CalculateStats summarizes every valid price in the matched comps.
func CalculateStats(comps []models.Listing) CompStats {
	var prices []float64
	for _, l := range comps {
		if validPrice(l.Price) {
			prices = append(prices, l.Price)
		}
	}
	return statsFromPrices(prices)
}

func statsFromPrices(prices []float64) CompStats {
	stats := CompStats{Count: len(prices)}
	stats.CMV, stats.Method = reducePrices(prices)
	if len(prices) == 0 {
		return stats
	}

	low, high, sum := prices[0], prices[0], 0.0
	for _, p := range prices {
		low = math.Min(low, p)
		high = math.Max(high, p)
		sum += p
	}
	avg := roundCents(sum / float64(len(prices)))
	low, high = roundCents(low), roundCents(high)
	stats.Avg, stats.Low, stats.High = &avg, &low, &high
	return stats
}
