package services

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// cardRequestAliases lists the accepted input keys per field, preferred key first.
// Clients have sent every one of these spellings.
var cardRequestAliases = map[string][]string{
	"player_name":    {"player_name", "playerName", "player", "name"},
	"year":           {"year", "season"},
	"set_name":       {"set_name", "setName", "set", "product"},
	"parallel":       {"parallel", "variant", "parallel_name"},
	"card_number":    {"card_number", "cardNumber", "number", "card_no"},
	"grader":         {"grader", "grading_company", "gradingCompany", "company"},
	"grade":          {"grade", "grade_value", "gradeValue"},
	"notes":          {"notes"},
	"purchase_price": {"purchase_price", "purchasePrice", "cost", "cost_basis"},
	"target_price":   {"target_price", "targetPrice"},
}

func lookupAlias(raw map[string]any, field string) (any, bool) {
	for _, key := range cardRequestAliases[field] {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func stringField(raw map[string]any, field string) (string, error) {
	v, ok := lookupAlias(raw, field)
	if !ok {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return collapseSpaces(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	}
	return "", fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, field)
}

func priceField(raw map[string]any, field string) (*float64, error) {
	v, ok := lookupAlias(raw, field)
	if !ok {
		return nil, nil
	}
	var p float64
	switch t := v.(type) {
	case float64:
		p = t
	case int:
		p = float64(t)
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "$"))
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, field)
		}
		p = parsed
	default:
		return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, field)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidRequest, field)
	}
	return &p, nil
}

// NormalizeCardRequest builds the canonical request from loosely keyed client input.
// It is the single place request aliases are resolved; every endpoint that accepts
// a card description goes through it.
func NormalizeCardRequest(raw map[string]any) (models.CardRequest, error) {
	var req models.CardRequest
	strFields := []struct {
		field string
		dst   *string
	}{
		{"player_name", &req.PlayerName},
		{"year", &req.Year},
		{"set_name", &req.SetName},
		{"parallel", &req.Parallel},
		{"card_number", &req.CardNumber},
		{"grader", &req.Grader},
		{"grade", &req.Grade},
		{"notes", &req.Notes},
	}
	for _, f := range strFields {
		v, err := stringField(raw, f.field)
		if err != nil {
			return models.CardRequest{}, err
		}
		*f.dst = v
	}

	var err error
	if req.PurchasePrice, err = priceField(raw, "purchase_price"); err != nil {
		return models.CardRequest{}, err
	}
	if req.TargetPrice, err = priceField(raw, "target_price"); err != nil {
		return models.CardRequest{}, err
	}
	if img, ok := raw["image"].(string); ok {
		req.ImageData = img
	}

	if req.PlayerName == "" {
		return models.CardRequest{}, fmt.Errorf("%w: player_name is required", ErrInvalidRequest)
	}
	req.PlayerName, _ = CanonicalPlayer(req.PlayerName)
	if req.Year != "" {
		year := NormalizeYear(req.Year)
		if year == "" {
			return models.CardRequest{}, fmt.Errorf("%w: year %q is not a card year", ErrInvalidRequest, req.Year)
		}
		req.Year = year
	}
	req.CardNumber = NormalizeCardNumber(req.CardNumber)
	if strings.EqualFold(req.Grader, "raw") || strings.EqualFold(req.Grade, "raw") {
		req.Grader, req.Grade = "", ""
	}
	if (req.Grader == "") != (req.Grade == "") {
		return models.CardRequest{}, fmt.Errorf("%w: grader and grade must be given together", ErrInvalidRequest)
	}
	if req.Grader != "" {
		req.Grader = normalizeGrader(req.Grader)
	}
	return req, nil
}

// CardRequestFromQuery adapts URL query parameters to NormalizeCardRequest.
func CardRequestFromQuery(values url.Values) (models.CardRequest, error) {
	raw := make(map[string]any, len(values))
	for k := range values {
		raw[k] = values.Get(k)
	}
	return NormalizeCardRequest(raw)
}

// CardRequestFromText builds a request from a free-text search such as
// "2023 prizm wemby silver #136 psa 10". The parsed intent supplies the player,
// year, set and parallel; the card number and grade are read from the raw text.
func CardRequestFromText(text string) (models.CardRequest, error) {
	intent := ParseQuery(text)
	if len(intent.PlayerTokens) == 0 {
		return models.CardRequest{}, fmt.Errorf("%w: query %q names no player", ErrInvalidRequest, text)
	}

	setTokens := make([]string, 0, len(intent.ProductTokens)+len(intent.InsertTokens))
	setTokens = append(setTokens, intent.ProductTokens...)
	setTokens = append(setTokens, intent.InsertTokens...)

	req := models.CardRequest{
		Year:     NormalizeYear(intent.Year),
		SetName:  normalizeParallel(strings.Join(setTokens, " ")),
		Parallel: normalizeParallel(strings.Join(intent.ParallelTokens, " ")),
	}
	player, known := CanonicalPlayer(intent.PlayerName())
	if !known {
		player = normalizeParallel(player)
	}
	req.PlayerName = player
	if nums := ExtractCardNumbers(text); len(nums) == 1 {
		req.CardNumber = nums[0]
	}
	req.Grader, req.Grade = ExtractGrade(text)
	return req, nil
}
