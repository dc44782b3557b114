package services

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
)

// Confidence is a coarse trust level for an identity or one of its fields.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CardStock is the physical material a card is printed on.
type CardStock string

const (
	StockPaper    CardStock = "paper"
	StockChromium CardStock = "chromium"
	StockUnknown  CardStock = "unknown"
)

// Identity warning tags
const (
	WarningParallelInvalid    = "parallel_invalid"
	WarningParseError         = "parse_error"
	WarningPlayerUnrecognized = "player_unrecognized"
	WarningYearFromContext    = "year_from_context"
)

// Identity field names used as FieldConfidence keys
const (
	FieldPlayer     = "player"
	FieldYear       = "year"
	FieldSetName    = "setName"
	FieldParallel   = "parallel"
	FieldCardNumber = "cardNumber"
)

var identityFields = []string{FieldPlayer, FieldYear, FieldSetName, FieldParallel, FieldCardNumber}

// CardIdentity is the canonical description of a physical card. Empty strings mean unknown.
type CardIdentity struct {
	Player          string                `json:"player"`
	Year            string                `json:"year"`
	SetName         string                `json:"setName"`
	Brand           string                `json:"brand"`
	Parallel        string                `json:"parallel"`
	CardNumber      string                `json:"cardNumber"`
	CardStock       CardStock             `json:"cardStock"`
	Confidence      Confidence            `json:"confidence"`
	FieldConfidence map[string]Confidence `json:"fieldConfidence"`
	Warnings        []string              `json:"warnings"`
}

// HasWarning reports whether the identity carries the given warning tag.
func (c CardIdentity) HasWarning(tag string) bool {
	for _, w := range c.Warnings {
		if w == tag {
			return true
		}
	}
	return false
}

// IdentitySignals are the raw inputs for one identification attempt.
type IdentitySignals struct {
	ModelOutput string // JSON produced by the vision model
	OCRText     string // optional raw OCR text from the same image
}

// modelIdentity is the JSON shape the vision model is asked to return.
type modelIdentity struct {
	Player          *string           `json:"player"`
	Year            *string           `json:"year"`
	Set             *string           `json:"set"`
	Brand           *string           `json:"brand"`
	Parallel        *string           `json:"parallel"`
	CardNumber      *string           `json:"card_number"`
	Confidence      string            `json:"confidence"`
	FieldConfidence map[string]string `json:"field_confidence"`
	Evidence        map[string]string `json:"evidence"`
}

func (m modelIdentity) hasShape() bool {
	return m.Player != nil || m.Year != nil || m.Set != nil || m.Brand != nil ||
		m.Parallel != nil || m.CardNumber != nil
}

type setFamily struct {
	Family  string    `yaml:"family"`
	Brand   string    `yaml:"brand"`
	Stock   CardStock `yaml:"stock"`
	Aliases []string  `yaml:"aliases"`
}

type identityRuleFile struct {
	SetFamilies       []setFamily       `yaml:"set_families"`
	ChromiumParallels []string          `yaml:"chromium_parallels"`
	PlayerAliases     map[string]string `yaml:"player_aliases"`
}

type setAlias struct {
	alias  string
	family *setFamily
}

type identityRules struct {
	setAliases        []setAlias // longest alias first
	chromiumParallels []string
	playerAliases     map[string]string
	canonicalPlayers  map[string]bool
}

//go:embed identity_rules.yaml
var identityRulesYAML []byte

var defaultIdentityRules = mustLoadIdentityRules(identityRulesYAML)

func mustLoadIdentityRules(data []byte) *identityRules {
	rules, err := loadIdentityRules(data)
	if err != nil {
		log.Fatalf("Failed to load identity rules: %v", err)
	}
	return rules
}

func loadIdentityRules(data []byte) (*identityRules, error) {
	var file identityRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse identity rules: %w", err)
	}

	rules := &identityRules{
		playerAliases:    make(map[string]string, len(file.PlayerAliases)),
		canonicalPlayers: make(map[string]bool),
	}
	for i := range file.SetFamilies {
		fam := &file.SetFamilies[i]
		if fam.Stock != StockPaper && fam.Stock != StockChromium {
			return nil, fmt.Errorf("set family %q has invalid stock %q", fam.Family, fam.Stock)
		}
		for _, a := range append([]string{fam.Family}, fam.Aliases...) {
			rules.setAliases = append(rules.setAliases, setAlias{alias: foldText(a), family: fam})
		}
	}
	sort.SliceStable(rules.setAliases, func(i, j int) bool {
		return len(rules.setAliases[i].alias) > len(rules.setAliases[j].alias)
	})

	for _, p := range file.ChromiumParallels {
		rules.chromiumParallels = append(rules.chromiumParallels, strings.ReplaceAll(foldText(p), " ", ""))
	}
	for alias, canonical := range file.PlayerAliases {
		rules.playerAliases[foldText(alias)] = canonical
		rules.playerAliases[foldText(canonical)] = canonical
		rules.canonicalPlayers[canonical] = true
	}
	return rules, nil
}

// foldText lowercases, replaces punctuation other than & with spaces and collapses whitespace.
func foldText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalPlayer resolves a player name through the alias table.
// Unknown names come back whitespace-collapsed with known=false.
func CanonicalPlayer(name string) (string, bool) {
	return defaultIdentityRules.canonicalPlayer(name)
}

func (r *identityRules) canonicalPlayer(name string) (string, bool) {
	if canonical, ok := r.playerAliases[foldText(name)]; ok {
		return canonical, true
	}
	return collapseSpaces(name), false
}

// resolveSet returns the set family whose longest alias appears in setText.
func (r *identityRules) resolveSet(setText string) *setFamily {
	folded := " " + foldText(setText) + " "
	if strings.TrimSpace(folded) == "" {
		return nil
	}
	for _, sa := range r.setAliases {
		if strings.Contains(folded, " "+sa.alias+" ") {
			return sa.family
		}
	}
	return nil
}

func (r *identityRules) isChromiumParallel(parallel string) bool {
	compact := strings.ReplaceAll(foldText(parallel), " ", "")
	if compact == "" {
		return false
	}
	for _, kw := range r.chromiumParallels {
		if strings.Contains(compact, kw) {
			return true
		}
	}
	return false
}

var (
	identityYearPattern   = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	cardNumberPrefix      = regexp.MustCompile(`(?i)^(?:#|no\.|no\s|card\s)\s*`)
	copyrightYearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`©\s*(\d{4})`),
		regexp.MustCompile(`(?i)\(c\)\s*(\d{4})`),
	}
)

// NormalizeYear extracts the first plausible four-digit year ("2023-24" becomes "2023").
func NormalizeYear(s string) string {
	if m := identityYearPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// NormalizeCardNumber strips "#"/"No." prefixes. Serial numbering such as "12/99" is not a card number.
func NormalizeCardNumber(s string) string {
	s = strings.TrimSpace(cardNumberPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
	if s == "" || strings.Contains(s, "/") {
		return ""
	}
	return strings.ToUpper(s)
}

func normalizeParallel(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// ocrCopyrightYear pulls a year from copyright text on the card back
func ocrCopyrightYear(text string) string {
	for _, re := range copyrightYearPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return NormalizeYear(m[1])
		}
	}
	return ""
}

func ocrCardNumber(text string) string {
	if nums := ExtractCardNumbers(text); len(nums) > 0 {
		return nums[0]
	}
	return ""
}

func parseConfidence(s string) (Confidence, bool) {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh, true
	case ConfidenceMedium:
		return ConfidenceMedium, true
	case ConfidenceLow:
		return ConfidenceLow, true
	}
	return "", false
}

// stripCodeFences removes a surrounding markdown code block from model output
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

func parseErrorIdentity() CardIdentity {
	fc := make(map[string]Confidence, len(identityFields))
	for _, f := range identityFields {
		fc[f] = ConfidenceLow
	}
	return CardIdentity{
		CardStock:       StockUnknown,
		Confidence:      ConfidenceLow,
		FieldConfidence: fc,
		Warnings:        []string{WarningParseError},
	}
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// Normalize builds a canonical identity from one identification attempt.
// Malformed model output yields an empty, low-confidence identity tagged parse_error.
func Normalize(signals IdentitySignals, knownYear string) CardIdentity {
	id := normalizeSignals(defaultIdentityRules, signals, knownYear)
	for _, w := range id.Warnings {
		metrics.IdentityWarningsTotal.WithLabelValues(w).Inc()
	}
	return id
}

func normalizeSignals(rules *identityRules, signals IdentitySignals, knownYear string) CardIdentity {
	var raw modelIdentity
	if err := json.Unmarshal([]byte(stripCodeFences(signals.ModelOutput)), &raw); err != nil || !raw.hasShape() {
		return parseErrorIdentity()
	}

	overall, ok := parseConfidence(raw.Confidence)
	if !ok {
		overall = ConfidenceMedium
	}
	fieldConf := func(field string) Confidence {
		if c, ok := parseConfidence(raw.FieldConfidence[field]); ok {
			return c
		}
		return overall
	}

	id := CardIdentity{
		Confidence:      overall,
		FieldConfidence: make(map[string]Confidence),
	}

	if player := strValue(raw.Player); player != "" {
		canonical, known := rules.canonicalPlayer(player)
		id.Player = canonical
		id.FieldConfidence[FieldPlayer] = fieldConf(FieldPlayer)
		if !known {
			id.FieldConfidence[FieldPlayer] = ConfidenceLow
			id.Warnings = appendWarning(id.Warnings, WarningPlayerUnrecognized)
		}
	}

	if year := NormalizeYear(strValue(raw.Year)); year != "" {
		id.Year = year
		id.FieldConfidence[FieldYear] = fieldConf(FieldYear)
	} else if year := ocrCopyrightYear(signals.OCRText); year != "" {
		id.Year = year
		id.FieldConfidence[FieldYear] = ConfidenceMedium
	} else if year := NormalizeYear(knownYear); year != "" {
		id.Year = year
		id.FieldConfidence[FieldYear] = ConfidenceMedium
		id.Warnings = appendWarning(id.Warnings, WarningYearFromContext)
	}

	setText := strValue(raw.Set)
	if setText == "" {
		setText = strValue(raw.Brand)
	}
	if setText != "" {
		id.SetName = setText
		id.Brand = strValue(raw.Brand)
		id.FieldConfidence[FieldSetName] = fieldConf("set")
	}

	if parallel := strValue(raw.Parallel); parallel != "" {
		id.Parallel = parallel
		id.FieldConfidence[FieldParallel] = fieldConf(FieldParallel)
	}

	if num := NormalizeCardNumber(strValue(raw.CardNumber)); num != "" {
		id.CardNumber = num
		id.FieldConfidence[FieldCardNumber] = fieldConf("card_number")
	} else if num := ocrCardNumber(signals.OCRText); num != "" {
		id.CardNumber = num
		id.FieldConfidence[FieldCardNumber] = ConfidenceMedium
	}

	if id.Confidence == ConfidenceLow {
		playerEvidenced := raw.Evidence[FieldPlayer] != "" || ocrMentionsPlayer(signals.OCRText, id.Player)
		id = dropUntrustedFields(id, playerEvidenced)
	}

	return rules.normalizeIdentity(id)
}

// ocrMentionsPlayer reports whether the player's surname appears in the OCR text.
func ocrMentionsPlayer(ocrText, player string) bool {
	words := strings.Fields(foldText(player))
	if len(words) == 0 || ocrText == "" {
		return false
	}
	surname := words[len(words)-1]
	if surname == "jr" && len(words) > 1 {
		surname = words[len(words)-2]
	}
	return strings.Contains(" "+foldText(ocrText)+" ", " "+surname+" ")
}

// dropUntrustedFields applies the low-confidence rule: only individually high-confidence
// fields survive, except a non-empty player backed by evidence.
func dropUntrustedFields(id CardIdentity, playerEvidenced bool) CardIdentity {
	fc := id.FieldConfidence
	keep := func(field string) bool { return fc[field] == ConfidenceHigh }

	if id.Player != "" && !keep(FieldPlayer) && !playerEvidenced {
		id.Player = ""
		delete(fc, FieldPlayer)
	}
	if !keep(FieldYear) {
		id.Year = ""
		delete(fc, FieldYear)
	}
	if !keep(FieldSetName) {
		id.SetName = ""
		id.Brand = ""
		delete(fc, FieldSetName)
	}
	if !keep(FieldParallel) {
		id.Parallel = ""
		delete(fc, FieldParallel)
	}
	if !keep(FieldCardNumber) {
		id.CardNumber = ""
		delete(fc, FieldCardNumber)
	}
	return id
}

// NormalizeIdentity canonicalizes an identity. It never mutates its argument and
// applying it to its own output returns an equal value.
func NormalizeIdentity(id CardIdentity) CardIdentity {
	return defaultIdentityRules.normalizeIdentity(id)
}

func (r *identityRules) normalizeIdentity(in CardIdentity) CardIdentity {
	out := in
	out.FieldConfidence = make(map[string]Confidence, len(in.FieldConfidence))
	for k, v := range in.FieldConfidence {
		out.FieldConfidence[k] = v
	}
	out.Warnings = nil
	for _, w := range in.Warnings {
		out.Warnings = appendWarning(out.Warnings, w)
	}
	if out.Confidence == "" {
		out.Confidence = ConfidenceLow
	}

	if out.Player != "" {
		out.Player, _ = r.canonicalPlayer(out.Player)
	}
	out.Year = NormalizeYear(out.Year)
	out.CardNumber = NormalizeCardNumber(out.CardNumber)
	out.Parallel = normalizeParallel(out.Parallel)

	out.CardStock = StockUnknown
	if fam := r.resolveSet(out.SetName); fam != nil {
		out.SetName = fam.Family
		out.Brand = fam.Brand
		out.CardStock = fam.Stock
	} else {
		out.SetName = collapseSpaces(out.SetName)
		out.Brand = collapseSpaces(out.Brand)
	}

	if out.Parallel != "" && r.isChromiumParallel(out.Parallel) {
		switch out.CardStock {
		case StockPaper:
			out.Parallel = ""
			delete(out.FieldConfidence, FieldParallel)
			out.Warnings = appendWarning(out.Warnings, WarningParallelInvalid)
		case StockUnknown:
			out.CardStock = StockChromium
		}
	}

	for _, f := range identityFields {
		if identityFieldValue(out, f) == "" {
			delete(out.FieldConfidence, f)
		}
	}
	if out.HasWarning(WarningParseError) {
		return parseErrorIdentity()
	}
	return out
}

func identityFieldValue(id CardIdentity, field string) string {
	switch field {
	case FieldPlayer:
		return id.Player
	case FieldYear:
		return id.Year
	case FieldSetName:
		return id.SetName
	case FieldParallel:
		return id.Parallel
	case FieldCardNumber:
		return id.CardNumber
	}
	return ""
}

func appendWarning(warnings []string, tag string) []string {
	for _, w := range warnings {
		if w == tag {
			return warnings
		}
	}
	return append(warnings, tag)
}
