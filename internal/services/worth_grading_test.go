package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

func gradeCmv(price float64, n int) GradeCmv {
	return GradeCmv{Price: &price, N: n, Method: MethodMedian}
}

func TestComputeWorthGrading(t *testing.T) {
	costs := GradingCosts{GradingFee: 25, ShippingCost: 10, SellingFeePct: 0.1}
	tests := []struct {
		name       string
		in         WorthGradingInput
		wantEV     float64
		wantNet    float64
		wantRating string
		wantConf   string
	}{
		{
			// EV = 0.5*400 + 0.5*150 = 275; net = 247.5 - 135 = 112.5; roi 0.83
			name:       "steep premium",
			in:         WorthGradingInput{Grader: "psa", Raw: gradeCmv(100, 12), Outcomes: []GradeOutcome{{Grade: "10", Probability: 0.5, Cmv: gradeCmv(400, 10)}, {Grade: "9", Probability: 0.5, Cmv: gradeCmv(150, 15)}}, Costs: costs},
			wantEV:     275,
			wantNet:    112.5,
			wantRating: RatingStrongYes,
			wantConf:   "high",
		},
		{
			// EV = 0.6*200 + 0.4*100 = 160; net = 144 - 135 = 9; roi 0.067
			name:       "thin premium",
			in:         WorthGradingInput{Raw: gradeCmv(100, 4), Outcomes: []GradeOutcome{{Grade: "10", Probability: 0.6, Cmv: gradeCmv(200, 5)}}, Costs: costs},
			wantEV:     160,
			wantNet:    9,
			wantRating: RatingMaybe,
			wantConf:   "medium",
		},
		{
			// EV = 0.5*260 + 0.5*100 = 180; net = 162 - 135 = 27; roi 0.2
			name:       "twenty percent",
			in:         WorthGradingInput{Raw: gradeCmv(100, 3), Outcomes: []GradeOutcome{{Grade: "10", Probability: 0.5, Cmv: gradeCmv(260, 3)}}, Costs: costs},
			wantEV:     180,
			wantNet:    27,
			wantRating: RatingYes,
			wantConf:   "medium",
		},
		{
			// unsold grade valued at raw: EV = 100; net = 90 - 135 = -45
			name:       "no graded sales",
			in:         WorthGradingInput{Raw: gradeCmv(100, 20), Outcomes: []GradeOutcome{{Grade: "10", Probability: 0.8}}, Costs: costs},
			wantEV:     100,
			wantNet:    -45,
			wantRating: RatingNo,
			wantConf:   "low",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeWorthGrading(tt.in)
			if err != nil {
				t.Fatalf("ComputeWorthGrading() error = %v", err)
			}
			if got.ExpectedValue != tt.wantEV || got.NetGain != tt.wantNet {
				t.Errorf("EV, net = %v, %v; want %v, %v", got.ExpectedValue, got.NetGain, tt.wantEV, tt.wantNet)
			}
			if got.Rating != tt.wantRating {
				t.Errorf("rating = %s, want %s (roi %v)", got.Rating, tt.wantRating, got.ROI)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %s, want %s", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestComputeWorthGradingBreakEven(t *testing.T) {
	got, err := ComputeWorthGrading(WorthGradingInput{
		Grader:   "beckett",
		Raw:      gradeCmv(65, 5),
		Outcomes: []GradeOutcome{{Grade: "9.5", Probability: 0.3, Cmv: gradeCmv(120, 5)}},
		Costs:    GradingCosts{GradingFee: 20, ShippingCost: 5, SellingFeePct: 0.2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Grader != "BGS" {
		t.Errorf("grader = %s", got.Grader)
	}
	if got.TotalCost != 90 || got.BreakEven != 112.5 {
		t.Errorf("cost, break even = %v, %v; want 90, 112.5", got.TotalCost, got.BreakEven)
	}
}

func TestComputeWorthGradingRejectsBadInput(t *testing.T) {
	ok := []GradeOutcome{{Grade: "10", Probability: 0.5, Cmv: gradeCmv(100, 3)}}
	tests := []struct {
		name string
		in   WorthGradingInput
	}{
		{"no raw price", WorthGradingInput{Outcomes: ok}},
		{"no outcomes", WorthGradingInput{Raw: gradeCmv(10, 1)}},
		{"probability above one", WorthGradingInput{Raw: gradeCmv(10, 1), Outcomes: []GradeOutcome{{Grade: "10", Probability: 1.2}}}},
		{"probabilities sum above one", WorthGradingInput{Raw: gradeCmv(10, 1), Outcomes: []GradeOutcome{{Grade: "10", Probability: 0.7}, {Grade: "9", Probability: 0.7}}}},
		{"fee pct of one", WorthGradingInput{Raw: gradeCmv(10, 1), Outcomes: ok, Costs: GradingCosts{SellingFeePct: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ComputeWorthGrading(tt.in); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestCompsServiceWorthGrading(t *testing.T) {
	day := time.Now().Add(-24 * time.Hour)
	src := &stubSource{listings: []models.Listing{
		{Title: "2018 Topps Update Ronald Acuna #US250", Price: 30, SoldAt: &day},
		{Title: "2018 Topps Update Ronald Acuna RC #US250", Price: 34, SoldAt: &day},
		{Title: "2018 Topps Update Ronald Acuna #US250 raw", Price: 32, SoldAt: &day},
		{Title: "2018 Topps Update Ronald Acuna #US250 PSA 10", Price: 150, SoldAt: &day},
		{Title: "2018 Topps Update Ronald Acuna #US250 PSA 10 Gem", Price: 170, SoldAt: &day},
		{Title: "2018 Topps Update Ronald Acuna #US250 PSA 9", Price: 60, SoldAt: &day},
	}}
	svc := NewCompsService(nil, src, nil, nil, CompsConfig{})
	req := models.CardRequest{PlayerName: "Ronald Acuna", Year: "2018", SetName: "Topps Update", CardNumber: "US250"}

	got, err := svc.WorthGrading(context.Background(), req, "", map[string]float64{"10": 0.4, "9": 0.5}, GradingCosts{GradingFee: 25, ShippingCost: 5, SellingFeePct: 0.13})
	if err != nil {
		t.Fatalf("WorthGrading() error = %v", err)
	}
	if got.RawValue != 32 || got.Grader != "PSA" {
		t.Errorf("raw value = %v grader = %s", got.RawValue, got.Grader)
	}
	// EV = 0.1*32 + 0.4*160 + 0.5*60 = 97.2
	if got.ExpectedValue != 97.2 {
		t.Errorf("EV = %v, want 97.2", got.ExpectedValue)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[0].Grade != "9" {
		t.Errorf("outcomes = %+v, want sorted by probability", got.Outcomes)
	}
	if src.calls != 3 {
		t.Errorf("source calls = %d, want raw plus one per grade", src.calls)
	}

	if _, err := svc.WorthGrading(context.Background(), req, "PSA", nil, GradingCosts{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing probabilities error = %v", err)
	}
}
