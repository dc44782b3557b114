package models

import "strings"

// CardRequest is the canonical form of any card described by a client:
// a comps search, a new collection item or a new watchlist entry.
type CardRequest struct {
	PlayerName    string   `json:"player_name"`
	Year          string   `json:"year"`
	SetName       string   `json:"set_name"`
	Parallel      string   `json:"parallel"`
	CardNumber    string   `json:"card_number"`
	Grader        string   `json:"grader"`
	Grade         string   `json:"grade"`
	Notes         string   `json:"notes,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	TargetPrice   *float64 `json:"target_price,omitempty"`
	ImageData     string   `json:"-"` // base64, collection adds only
}

// Query renders the request as marketplace search text.
func (r CardRequest) Query() string {
	parts := []string{r.Year, r.SetName, r.PlayerName, r.Parallel}
	if r.CardNumber != "" {
		parts = append(parts, "#"+r.CardNumber)
	}
	if r.Grader != "" && r.Grade != "" {
		parts = append(parts, r.Grader+" "+r.Grade)
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// CacheKey is a stable, case-insensitive key for the request's card identity.
func (r CardRequest) CacheKey() string {
	fields := []string{r.PlayerName, r.Year, r.SetName, r.Parallel, r.CardNumber, r.Grader, r.Grade}
	for i, f := range fields {
		fields[i] = strings.ToLower(strings.Join(strings.Fields(f), " "))
	}
	return strings.Join(fields, "|")
}

// CardRequestFromItem rebuilds the comps request for an owned card.
func CardRequestFromItem(item CollectionItem) CardRequest {
	return CardRequest{
		PlayerName: item.PlayerName,
		Year:       item.Year,
		SetName:    item.SetName,
		Parallel:   item.Parallel,
		CardNumber: item.CardNumber,
		Grader:     item.Grader,
		Grade:      item.Grade,
	}
}

// CardRequestFromWatchlist rebuilds the comps request for a watched card.
func CardRequestFromWatchlist(item WatchlistItem) CardRequest {
	return CardRequest{
		PlayerName: item.PlayerName,
		Year:       item.Year,
		SetName:    item.SetName,
		Parallel:   item.Parallel,
		CardNumber: item.CardNumber,
		Grader:     item.Grader,
		Grade:      item.Grade,
	}
}
