package service

import (
	"math"

	"github.com/Staxx7/quickscope-sub003/internal/domain"
)

// Component weights for the overall health score. These must sum to 1.0
// exactly.
const (
	weightProfitability = 0.30
	weightLiquidity     = 0.20
	weightSolvency      = 0.20
	weightEfficiency    = 0.15
	weightGrowth        = 0.15
)

// HealthScoreWeights exposes the weight table for the weight-sum invariant.
func HealthScoreWeights() map[string]float64 {
	return map[string]float64{
		"profitability": weightProfitability,
		"liquidity":     weightLiquidity,
		"solvency":      weightSolvency,
		"efficiency":    weightEfficiency,
		"growth":        weightGrowth,
	}
}

// HealthScore is the 0-100 composite with its sub-component scores.
type HealthScore struct {
	Overall       int     `json:"overall_score"`
	Profitability float64 `json:"profitability"`
	Liquidity     float64 `json:"liquidity"`
	Solvency      float64 `json:"solvency"`
	Efficiency    float64 `json:"efficiency"`
	Growth        float64 `json:"growth"`
}

// HealthInputs are the raw ratios a score is computed from. Missing values
// are passed as zero; the transform never fails.
type HealthInputs struct {
	ProfitMargin      float64
	CurrentRatio      float64
	DebtToEquity      float64
	OperatingMargin   float64
	RevenueGrowthRate float64
}

// HealthInputsFromSnapshot lifts a snapshot into scorer inputs.
func HealthInputsFromSnapshot(snapshot domain.FinancialSnapshot) HealthInputs {
	return HealthInputs{
		ProfitMargin:      snapshot.ProfitMargin(),
		CurrentRatio:      snapshot.CurrentRatio,
		DebtToEquity:      snapshot.DebtToEquity,
		OperatingMargin:   snapshot.OperatingMargin,
		RevenueGrowthRate: snapshot.RevenueGrowthRate,
	}
}

// ComputeHealthScore converts financial ratios into the weighted 0-100
// composite. Every component and the overall score are clamped to [0, 100]
// for any finite input.
func ComputeHealthScore(in HealthInputs) HealthScore {
	score := HealthScore{
		Profitability: clampScore((in.ProfitMargin + 20) * 2.5),
		Liquidity:     clampScore(in.CurrentRatio * 50),
		Solvency:      clampScore((1 - in.DebtToEquity) * 100),
		Efficiency:    clampScore(in.OperatingMargin * 5),
		Growth:        clampScore((in.RevenueGrowthRate + 10) * 5),
	}

	weighted := score.Profitability*weightProfitability +
		score.Liquidity*weightLiquidity +
		score.Solvency*weightSolvency +
		score.Efficiency*weightEfficiency +
		score.Growth*weightGrowth
	score.Overall = int(math.Round(weighted))

	return score
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
