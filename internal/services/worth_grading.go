package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

// Worth-grading ratings
const (
	RatingStrongYes = "strong_yes"
	RatingYes       = "yes"
	RatingMaybe     = "maybe"
	RatingNo        = "no"
)

const (
	strongYesROI = 0.5
	yesROI       = 0.2
	// outcomes below this probability do not affect confidence
	minWeightedProbability = 0.1
)

// GradingCosts are the costs of submitting one card and selling it afterwards.
type GradingCosts struct {
	GradingFee    float64 `json:"grading_fee"`
	ShippingCost  float64 `json:"shipping_cost"`
	SellingFeePct float64 `json:"selling_fee_pct"`
}

// GradeOutcome is one possible grade with its probability and market value.
type GradeOutcome struct {
	Grade       string   `json:"grade"`
	Probability float64  `json:"probability"`
	Cmv         GradeCmv `json:"cmv"`
}

// WorthGradingInput is everything needed to price a grading submission.
type WorthGradingInput struct {
	Grader   string         `json:"grader"`
	Raw      GradeCmv       `json:"raw"`
	Outcomes []GradeOutcome `json:"outcomes"`
	Costs    GradingCosts   `json:"costs"`
}

// WorthGradingResult answers "should this raw card be graded?".
type WorthGradingResult struct {
	Grader        string         `json:"grader"`
	RawValue      float64        `json:"raw_value"`
	ExpectedValue float64        `json:"expected_value"`
	TotalCost     float64        `json:"total_cost"`
	NetGain       float64        `json:"net_gain"`
	ROI           float64        `json:"roi"`
	BreakEven     float64        `json:"break_even"`
	Rating        string         `json:"rating"`
	Confidence    string         `json:"confidence"`
	Outcomes      []GradeOutcome `json:"outcomes"`
}

func ratingForROI(netGain, roi float64) string {
	switch {
	case netGain <= 0:
		return RatingNo
	case roi >= strongYesROI:
		return RatingStrongYes
	case roi >= yesROI:
		return RatingYes
	}
	return RatingMaybe
}

// ComputeWorthGrading prices a submission. Probability not assigned to any outcome
// is valued at the raw price, and so is an outcome with no sales.
func ComputeWorthGrading(in WorthGradingInput) (WorthGradingResult, error) {
	if in.Raw.Price == nil {
		return WorthGradingResult{}, fmt.Errorf("%w: no raw sales to price the card", ErrInvalidRequest)
	}
	if len(in.Outcomes) == 0 {
		return WorthGradingResult{}, fmt.Errorf("%w: at least one grade outcome is required", ErrInvalidRequest)
	}
	if in.Costs.SellingFeePct < 0 || in.Costs.SellingFeePct >= 1 || in.Costs.GradingFee < 0 || in.Costs.ShippingCost < 0 {
		return WorthGradingResult{}, fmt.Errorf("%w: grading costs out of range", ErrInvalidRequest)
	}

	raw := *in.Raw.Price
	total := 0.0
	for _, o := range in.Outcomes {
		if math.IsNaN(o.Probability) || o.Probability < 0 || o.Probability > 1 {
			return WorthGradingResult{}, fmt.Errorf("%w: probability for grade %s must be between 0 and 1", ErrInvalidRequest, o.Grade)
		}
		total += o.Probability
	}
	if total > 1+1e-9 {
		return WorthGradingResult{}, fmt.Errorf("%w: grade probabilities sum to %.2f", ErrInvalidRequest, total)
	}

	ev := (1 - math.Min(total, 1)) * raw
	minN := in.Raw.N
	missing := false
	for _, o := range in.Outcomes {
		value := raw
		if o.Cmv.Price != nil {
			value = *o.Cmv.Price
		} else if o.Probability >= minWeightedProbability {
			missing = true
		}
		ev += o.Probability * value
		if o.Probability >= minWeightedProbability && o.Cmv.N < minN {
			minN = o.Cmv.N
		}
	}

	cost := raw + in.Costs.GradingFee + in.Costs.ShippingCost
	net := ev*(1-in.Costs.SellingFeePct) - cost
	roi := 0.0
	if cost > 0 {
		roi = net / cost
	}

	confidence := confidenceForSample(minN)
	if missing || confidence == "" {
		confidence = string(ConfidenceLow)
	}

	outcomes := append([]GradeOutcome(nil), in.Outcomes...)
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Probability > outcomes[j].Probability })

	return WorthGradingResult{
		Grader:        normalizeGrader(in.Grader),
		RawValue:      roundCents(raw),
		ExpectedValue: roundCents(ev),
		TotalCost:     roundCents(cost),
		NetGain:       roundCents(net),
		ROI:           math.Round(roi*1000) / 1000,
		BreakEven:     roundCents(cost / (1 - in.Costs.SellingFeePct)),
		Rating:        ratingForROI(net, roi),
		Confidence:    confidence,
		Outcomes:      outcomes,
	}, nil
}

// WorthGrading prices the raw card and each candidate grade from comps, then runs
// ComputeWorthGrading. probabilities maps a grade ("10", "9.5") to its likelihood.
func (s *CompsService) WorthGrading(ctx context.Context, req models.CardRequest, grader string, probabilities map[string]float64, costs GradingCosts) (WorthGradingResult, error) {
	if grader == "" {
		grader = "PSA"
	}
	if len(probabilities) == 0 {
		return WorthGradingResult{}, fmt.Errorf("%w: grade probabilities are required", ErrInvalidRequest)
	}

	rawReq := req
	rawReq.Grader, rawReq.Grade = "", ""
	rawResult, err := s.search(ctx, rawReq)
	if err != nil {
		return WorthGradingResult{}, err
	}

	grades := make([]string, 0, len(probabilities))
	for g := range probabilities {
		grades = append(grades, g)
	}
	sort.Strings(grades)

	in := WorthGradingInput{Grader: grader, Raw: rawResult.GradeCmv, Costs: costs}
	for _, g := range grades {
		gradedReq := req
		gradedReq.Grader, gradedReq.Grade = grader, g
		res, err := s.search(ctx, gradedReq)
		if err != nil {
			return WorthGradingResult{}, err
		}
		in.Outcomes = append(in.Outcomes, GradeOutcome{Grade: g, Probability: probabilities[g], Cmv: res.GradeCmv})
	}
	return ComputeWorthGrading(in)
}
