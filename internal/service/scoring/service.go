// Package scoring computes price trends, the high-demand flag and the
// 0–100 recommendation score. Everything here is a pure function of the
// inputs and the configured weights; the pipeline persists the results.
package scoring

import (
	"time"

	"github.com/hdtickets/scout/internal/domain"
)

type Config struct {
	TrendWindow       int
	SlopeEpsilon      float64
	WeightPrice       float64
	WeightTrend       float64
	WeightUrgency     float64
	WeightReliability float64
	UrgencyCapDays    int
}

type Service struct {
	cfg Config
}

func New(cfg Config) *Service {
	if cfg.TrendWindow <= 1 {
		cfg.TrendWindow = 5
	}
	if cfg.SlopeEpsilon <= 0 {
		cfg.SlopeEpsilon = 0.01
	}
	if cfg.UrgencyCapDays <= 0 {
		cfg.UrgencyCapDays = 30
	}
	if cfg.WeightPrice+cfg.WeightTrend+cfg.WeightUrgency+cfg.WeightReliability <= 0 {
		cfg.WeightPrice = 0.4
		cfg.WeightTrend = 0.2
		cfg.WeightUrgency = 0.2
		cfg.WeightReliability = 0.2
	}

	return &Service{cfg: cfg}
}

// Trend classifies price movement over the most recent window of
// observations (oldest first) by the sign of the least-squares slope,
// relative to the mean price so the epsilon is scale-free.
func (s *Service) Trend(obs []domain.PriceObservation) domain.Trend {
	prices := windowPrices(obs, s.cfg.TrendWindow)
	if len(prices) < 2 {
		return domain.TrendStable
	}

	slope := linearSlope(prices)

	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	if mean <= 0 {
		return domain.TrendStable
	}

	switch rel := slope / mean; {
	case rel > s.cfg.SlopeEpsilon:
		return domain.TrendRising
	case rel < -s.cfg.SlopeEpsilon:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

// HighDemand applies the threshold rule: the price has risen over the
// window, or availability is shrinking while the price trends upward.
func (s *Service) HighDemand(obs []domain.PriceObservation, trend domain.Trend, availabilityDropping bool) bool {
	prices := windowPrices(obs, s.cfg.TrendWindow)
	priceRisen := len(prices) >= 2 && prices[len(prices)-1] > prices[0]

	if priceRisen {
		return true
	}

	return availabilityDropping && trend == domain.TrendRising
}

// Score combines price favorability, trend, event urgency and platform
// reliability into a 0–100 recommendation. Weights come from configuration;
// the formula is deliberately swappable.
func (s *Service) Score(
	l *domain.Listing,
	obs []domain.PriceObservation,
	trend domain.Trend,
	reliability float64,
	now time.Time,
) float64 {
	var (
		favorability = s.priceFavorability(l, obs)
		trendFactor  = trendFactor(trend)
		urgency      = s.urgency(l.EventDate, now)
		rel          = clamp(reliability/100, 0, 1)
	)

	total := s.cfg.WeightPrice + s.cfg.WeightTrend + s.cfg.WeightUrgency + s.cfg.WeightReliability
	score := (s.cfg.WeightPrice*favorability +
		s.cfg.WeightTrend*trendFactor +
		s.cfg.WeightUrgency*urgency +
		s.cfg.WeightReliability*rel) / total

	return clamp(score*100, 0, 100)
}

// priceFavorability measures how far the current price sits below the
// historical average, normalized to [0,1] where 0.5 is "at average".
func (s *Service) priceFavorability(l *domain.Listing, obs []domain.PriceObservation) float64 {
	if len(obs) == 0 {
		return 0.5
	}

	mean := 0.0
	for _, o := range obs {
		p, _ := o.MinPrice.Float64()
		mean += p
	}
	mean /= float64(len(obs))
	if mean <= 0 {
		return 0.5
	}

	current, _ := l.MinPrice.Float64()
	// distance below average, one mean-width each side
	return clamp(0.5+(mean-current)/(2*mean), 0, 1)
}

func (s *Service) urgency(eventDate time.Time, now time.Time) float64 {
	if eventDate.IsZero() || eventDate.Before(now) {
		return 0
	}

	days := eventDate.Sub(now).Hours() / 24
	cap := float64(s.cfg.UrgencyCapDays)

	return clamp((cap-days)/cap, 0, 1)
}

func trendFactor(t domain.Trend) float64 {
	switch t {
	case domain.TrendFalling:
		return 1
	case domain.TrendStable:
		return 0.6
	default:
		return 0.2
	}
}

// windowPrices returns up to n min-prices as float64, oldest first.
// Observations arrive newest first from the repository.
func windowPrices(obs []domain.PriceObservation, n int) []float64 {
	if len(obs) > n {
		obs = obs[:n]
	}

	out := make([]float64, len(obs))
	for i, o := range obs {
		p, _ := o.MinPrice.Float64()
		out[len(obs)-1-i] = p
	}

	return out
}

func linearSlope(ys []float64) float64 {
	n := float64(len(ys))

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}

	return (n*sumXY - sumX*sumY) / denom
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
