package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/maxinvesting/CardzCheck-sub003/internal/cache"
	"github.com/maxinvesting/CardzCheck-sub003/internal/config"
	"github.com/maxinvesting/CardzCheck-sub003/internal/database"
	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
	"github.com/maxinvesting/CardzCheck-sub003/internal/services"
)

type stubSource struct {
	listings []models.Listing
	err      error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchListings(_ context.Context, _ services.ListingQuery) ([]models.Listing, error) {
	return s.listings, s.err
}

type disabledModel struct{}

func (disabledModel) Ask(context.Context, string, string) (string, error) {
	return "", services.ErrGeminiDisabled
}

func (disabledModel) IdentifyCard(context.Context, []byte, string, string) (services.CardIdentity, error) {
	return services.CardIdentity{}, services.ErrGeminiDisabled
}

func wembyListings() []models.Listing {
	day := time.Now().Add(-24 * time.Hour)
	return []models.Listing{
		{Title: "2023 Prizm Victor Wembanyama #136 PSA 10", Price: 100, SoldAt: &day, URL: "https://x/1"},
		{Title: "2023 Panini Prizm Victor Wembanyama RC #136 PSA 10", Price: 140, SoldAt: &day, URL: "https://x/2"},
		{Title: "2023 Prizm Wembanyama #136 PSA 10 Rookie", Price: 120, SoldAt: &day, URL: "https://x/3"},
		{Title: "2023 Prizm Victor Wembanyama #136 raw", Price: 40, SoldAt: &day, URL: "https://x/5"},
	}
}

func newTestRouter(t *testing.T, src services.ListingSource) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		CORSOrigins:        []string{"http://localhost:5173"},
		CmvStaleAfter:      15 * time.Second,
		CmvLegacyPending:   120 * time.Second,
		DefaultResultLimit: 50,
		GradingFee:         25,
		GradingShipping:    10,
		SellingFeePct:      0.13,
	}

	catalog := services.NewCatalogDBSource(db)
	comps := services.NewCompsService(db, src, catalog, cache.NewMemoryStore(100, time.Hour), services.CompsConfig{})
	cmv := services.NewCmvService(db, comps)
	worker := services.NewCmvWorker(cmv, 1)
	images := services.NewImageStorageService(t.TempDir())

	router := SetupRouter(cfg, Services{
		Comps:      comps,
		Catalog:    catalog,
		Cmv:        cmv,
		Collection: services.NewCollectionService(db, cmv, worker, images),
		Watchlist:  services.NewWatchlistService(db, comps),
		Snapshots:  services.NewSnapshotService(db, 23),
		Assistant:  services.NewAssistantService(db, disabledModel{}, services.DefaultCmvStateThresholds),
		Worker:     worker,
		Images:     images,
	})
	return router, db
}

func do(t *testing.T, router *gin.Engine, method, path, user string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{})
	if w, _ := do(t, router, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("/health = %d", w.Code)
	}
	if w, _ := do(t, router, http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK {
		t.Errorf("/metrics = %d", w.Code)
	}
}

func TestCompsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{listings: wembyListings()})

	q := url.Values{
		"player":      {"Victor Wembanyama"},
		"year":        {"2023"},
		"set":         {"Prizm"},
		"card_number": {"136"},
		"grader":      {"PSA"},
		"grade":       {"10"},
	}
	w, body := do(t, router, http.MethodGet, "/api/comps?"+q.Encode(), "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	gradeCmv := body["grade_cmv"].(map[string]any)
	if gradeCmv["price"] != 120.0 || gradeCmv["n"] != 3.0 {
		t.Errorf("grade_cmv = %v", gradeCmv)
	}

	w, body = do(t, router, http.MethodGet, "/api/comps?year=2023", "u1", nil)
	if w.Code != http.StatusBadRequest || body["error"] == nil {
		t.Errorf("missing player status = %d body = %v", w.Code, body)
	}
}

func TestCompsEndpointFreeText(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{listings: wembyListings()})

	q := url.Values{"q": {"2023 prizm wemby #136 psa 10"}}
	w, body := do(t, router, http.MethodGet, "/api/comps?"+q.Encode(), "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	req := body["request"].(map[string]any)
	if req["player_name"] != "Victor Wembanyama" || req["set_name"] != "Prizm" || req["year"] != "2023" || req["card_number"] != "136" {
		t.Errorf("request = %v", req)
	}
	if body["grade_bucket"] != "PSA 10" {
		t.Errorf("grade_bucket = %v", body["grade_bucket"])
	}
	gradeCmv := body["grade_cmv"].(map[string]any)
	if gradeCmv["price"] != 120.0 || gradeCmv["n"] != 3.0 {
		t.Errorf("grade_cmv = %v", gradeCmv)
	}

	q = url.Values{"q": {"2023 prizm psa 10"}}
	if w, _ := do(t, router, http.MethodGet, "/api/comps?"+q.Encode(), "u1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("query without a player status = %d, want 400", w.Code)
	}
}

func TestCompsEndpointUpstreamFailure(t *testing.T) {
	src := &stubSource{err: &services.UpstreamError{Source: "stub", Err: errors.New("status 503")}}
	router, _ := newTestRouter(t, src)

	w, body := do(t, router, http.MethodGet, "/api/comps?player=Trout", "u1", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if body["retryable"] != true {
		t.Errorf("body = %v, want retryable", body)
	}
}

func TestCardSearchEndpoint(t *testing.T) {
	router, db := newTestRouter(t, &stubSource{})
	rows := []models.CatalogRow{
		{PlayerName: "Victor Wembanyama", SetName: "Panini Prizm", Year: "2023", Grader: "PSA", Grade: "10", Price: 120, URL: "u1"},
		{PlayerName: "Victor Wembanyama", SetName: "Panini Prizm", Year: "2023", Price: 40, URL: "u2"},
		{PlayerName: "Chet Holmgren", SetName: "Panini Prizm", Year: "2022", Price: 30, URL: "u3"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatal(err)
	}

	w, body := do(t, router, http.MethodPost, "/api/card-search", "", map[string]any{
		"player_id": "victor-wembanyama", "set_slug": "prizm", "grader": "PSA", "grade": "9",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["count"] != 0.0 || body["canRelax"] != true || body["relaxed"] != false {
		t.Errorf("strict body = %v", body)
	}

	_, body = do(t, router, http.MethodPost, "/api/card-search", "", map[string]any{
		"player_id": "victor-wembanyama", "set_slug": "prizm", "grader": "PSA", "grade": "9", "relax_optional": true,
	})
	if body["count"] != 2.0 || body["relaxed"] != true {
		t.Errorf("relaxed body = %v", body)
	}

	w, body = do(t, router, http.MethodPost, "/api/card-search", "", map[string]any{"set_slug": "prizm"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing filter status = %d", w.Code)
	}
	missing, _ := body["missing"].([]any)
	if len(missing) != 1 || missing[0] != "player_id" {
		t.Errorf("missing = %v", body["missing"])
	}
}

func TestParseEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{})
	w, body := do(t, router, http.MethodGet, "/api/search/parse?q="+url.QueryEscape("2023 prizm wemby psa 10"), "", nil)
	if w.Code != http.StatusOK || body["intent"] == nil {
		t.Errorf("status = %d body = %v", w.Code, body)
	}
	if w, _ := do(t, router, http.MethodGet, "/api/search/parse", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("empty q status = %d", w.Code)
	}
}

func TestCollectionEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{listings: wembyListings()})

	w, body := do(t, router, http.MethodPost, "/api/collection", "u1", map[string]any{
		"player": "Victor Wembanyama", "year": "2023", "set": "Prizm", "purchase_price": 90,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d body = %s", w.Code, w.Body)
	}
	if body["cmv_ui_state"] != services.CmvUIPending || body["display_value"] != 90.0 {
		t.Errorf("added view = %v", body)
	}
	id := strconv.Itoa(int(body["id"].(float64)))

	w, _ = do(t, router, http.MethodGet, "/api/collection", "u2", nil)
	if w.Body.String() != "[]" {
		t.Errorf("other user's collection = %s", w.Body)
	}

	_, body = do(t, router, http.MethodGet, "/api/collection/summary", "u1", nil)
	if body["card_count"] != 1.0 || body["total_cmv"] != nil || body["total_display_value"] != 90.0 {
		t.Errorf("summary = %v", body)
	}

	w, _ = do(t, router, http.MethodPut, "/api/collection/"+id, "u1", map[string]any{"notes": "sharp corners"})
	if w.Code != http.StatusOK {
		t.Errorf("update status = %d", w.Code)
	}
	if w, _ := do(t, router, http.MethodDelete, "/api/collection/"+id, "u2", nil); w.Code != http.StatusNotFound {
		t.Errorf("cross-user delete status = %d", w.Code)
	}
	if w, _ := do(t, router, http.MethodPut, "/api/collection/abc", "u1", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}

	w, body = do(t, router, http.MethodGet, "/api/debug/cmv-wiring/"+id, "u1", nil)
	if w.Code != http.StatusOK || body["ok"] != true {
		t.Errorf("wiring status = %d body = %v", w.Code, body)
	}

	_, body = do(t, router, http.MethodGet, "/api/dashboard", "u1", nil)
	summary := body["summary"].(map[string]any)
	if summary["total_cmv"] != 40.0 || summary["cards_with_cmv"] != 1.0 {
		t.Errorf("dashboard summary = %v", summary)
	}

	w, _ = do(t, router, http.MethodPost, "/api/collection/"+id+"/refresh-cmv", "u1", nil)
	if w.Code != http.StatusAccepted {
		t.Errorf("refresh status = %d", w.Code)
	}
	if w, _ := do(t, router, http.MethodDelete, "/api/collection/"+id, "u1", nil); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
}

func TestWatchlistEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{})

	w, body := do(t, router, http.MethodPost, "/api/watchlist", "", map[string]any{"player": "Wemby", "target_price": 80})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d body = %s", w.Code, w.Body)
	}
	id := strconv.Itoa(int(body["id"].(float64)))

	w, body = do(t, router, http.MethodPut, "/api/watchlist/"+id, "", map[string]any{"clear_target": true})
	if w.Code != http.StatusOK || body["target_price"] != nil {
		t.Errorf("clear target status = %d body = %v", w.Code, body)
	}
	if w, _ := do(t, router, http.MethodDelete, "/api/watchlist/999", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing delete status = %d", w.Code)
	}
	if w, _ := do(t, router, http.MethodPost, "/api/watchlist", "", map[string]any{"year": "2023"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing player status = %d", w.Code)
	}
}

func TestAssistantEndpointsWithoutModel(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{})

	w, body := do(t, router, http.MethodGet, "/api/assistant/context", "", nil)
	if w.Code != http.StatusOK || body["collection_empty"] != true {
		t.Errorf("context status = %d body = %v", w.Code, body)
	}
	if w, _ := do(t, router, http.MethodPost, "/api/assistant/ask", "", map[string]any{"question": "what is hot?"}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("ask status = %d, want 503", w.Code)
	}
	if w, _ := do(t, router, http.MethodPost, "/api/cards/identify-image", "", map[string]any{"image": "aGVsbG8="}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("identify status = %d, want 503", w.Code)
	}
}

func TestWorthGradingEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{listings: wembyListings()})

	w, body := do(t, router, http.MethodPost, "/api/worth-grading", "", map[string]any{
		"card":          map[string]any{"player": "Victor Wembanyama", "year": "2023", "set": "Prizm", "card_number": "136"},
		"probabilities": map[string]float64{"10": 0.5},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if body["rating"] == nil || body["expected_value"] == nil {
		t.Errorf("body = %v", body)
	}

	if w, _ := do(t, router, http.MethodPost, "/api/worth-grading", "", map[string]any{"card": map[string]any{"player": "x"}}); w.Code != http.StatusBadRequest {
		t.Errorf("missing probabilities status = %d", w.Code)
	}
}
