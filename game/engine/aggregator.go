package engine

import (
	"encoding/json"
	"math"
	"time"
)

// HistoricalRecord accumulates results across sessions for the life of the
// process. It only grows until Reset is called.
type HistoricalRecord struct {
	ValidDurations  []time.Duration
	FalseStarts     int
	Sessions        int
	SessionAverages []time.Duration
}

// HistoricalStats is the long-run view of the record.
type HistoricalStats struct {
	ReactionCount  int
	Average        time.Duration
	Best           time.Duration
	FalseStarts    int
	Sessions       int
	Trend          float64 // ms per session; positive means slowing down
	TrendAvailable bool
	RecentAverages []time.Duration
}

// Aggregator computes session summaries and owns the historical record.
// It is not safe for concurrent use; call it from the event loop.
type Aggregator struct {
	record HistoricalRecord
}

// NewAggregator creates an aggregator with an empty record.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Summarize computes the summary of a completed session and appends its valid
// reactions and false starts to the historical record.
func (a *Aggregator) Summarize(s *Session) *Summary {
	summary := &Summary{
		SessionID:          s.ID,
		ConfigName:         s.ConfigName,
		AttemptsPerSession: s.AttemptsPerSession,
		Attempts:           append([]Attempt(nil), s.Attempts...),
		StartedAt:          s.StartedAt,
		CompletedAt:        s.CompletedAt,
	}

	var valid []time.Duration
	for _, attempt := range s.Attempts {
		switch attempt.Outcome.Kind {
		case OutcomeValidReaction:
			valid = append(valid, attempt.Outcome.Duration)
		case OutcomeFalseStart:
			summary.FalseStartCount++
		case OutcomeTimedOut:
			summary.TimedOutCount++
		}
	}

	summary.ValidCount = len(valid)
	if s.AttemptsPerSession > 0 {
		summary.FalseStartRate = float64(summary.FalseStartCount) / float64(s.AttemptsPerSession)
	}
	summary.SessionAverage = mean(valid)
	summary.SessionBest, summary.SessionWorst = minMax(valid)
	summary.StdDev = stdDev(valid)
	summary.HighVariability = summary.StdDev > HighVariabilityThreshold
	summary.Rating = rate(len(valid), summary.SessionAverage)

	best, _ := minMax(a.record.ValidDurations)
	switch {
	case len(valid) == 0:
		summary.BestReactionTime = best
	case len(a.record.ValidDurations) == 0 || summary.SessionBest < best:
		summary.BestReactionTime = summary.SessionBest
	default:
		summary.BestReactionTime = best
	}

	a.record.ValidDurations = append(a.record.ValidDurations, valid...)
	a.record.FalseStarts += summary.FalseStartCount
	a.record.Sessions++
	if len(valid) > 0 {
		a.record.SessionAverages = append(a.record.SessionAverages, summary.SessionAverage)
	}

	return summary
}

// Record returns a copy of the historical record.
func (a *Aggregator) Record() HistoricalRecord {
	return HistoricalRecord{
		ValidDurations:  append([]time.Duration(nil), a.record.ValidDurations...),
		FalseStarts:     a.record.FalseStarts,
		Sessions:        a.record.Sessions,
		SessionAverages: append([]time.Duration(nil), a.record.SessionAverages...),
	}
}

// Stats computes long-run statistics over the historical record.
func (a *Aggregator) Stats() HistoricalStats {
	best, _ := minMax(a.record.ValidDurations)
	stats := HistoricalStats{
		ReactionCount: len(a.record.ValidDurations),
		Average:       mean(a.record.ValidDurations),
		Best:          best,
		FalseStarts:   a.record.FalseStarts,
		Sessions:      a.record.Sessions,
	}

	recent := a.record.SessionAverages
	if len(recent) > TrendWindow {
		recent = recent[len(recent)-TrendWindow:]
	}
	stats.RecentAverages = append([]time.Duration(nil), recent...)
	if len(recent) >= MinTrendSessions {
		stats.Trend = slope(recent)
		stats.TrendAvailable = true
	}
	return stats
}

// Reset clears the historical record.
func (a *Aggregator) Reset() {
	a.record = HistoricalRecord{}
}

func mean(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range values {
		sum += v
	}
	return sum / time.Duration(len(values))
}

func minMax(values []time.Duration) (time.Duration, time.Duration) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// stdDev is the population standard deviation; zero below two samples.
func stdDev(values []time.Duration) time.Duration {
	if len(values) < 2 {
		return 0
	}
	m := float64(mean(values))
	var sq float64
	for _, v := range values {
		diff := float64(v) - m
		sq += diff * diff
	}
	return time.Duration(math.Sqrt(sq / float64(len(values))))
}

// slope is the least-squares slope of values against their index, in
// milliseconds per step.
func slope(values []time.Duration) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		y := Millis(v)
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

func rate(validCount int, average time.Duration) Rating {
	switch {
	case validCount == 0:
		return RatingNone
	case average < GoodReactionThreshold:
		return RatingGood
	case average > SlowReactionThreshold:
		return RatingSlow
	default:
		return RatingAverage
	}
}

type historicalStatsJSON struct {
	ReactionCount    int       `json:"reaction_count"`
	AverageMS        float64   `json:"average_ms"`
	BestMS           float64   `json:"best_ms"`
	FalseStarts      int       `json:"false_starts"`
	Sessions         int       `json:"sessions"`
	TrendMSPerSess   float64   `json:"trend_ms_per_session"`
	TrendAvailable   bool      `json:"trend_available"`
	RecentAveragesMS []float64 `json:"recent_averages_ms"`
}

// MarshalJSON writes durations as fractional milliseconds.
func (h HistoricalStats) MarshalJSON() ([]byte, error) {
	recent := make([]float64, 0, len(h.RecentAverages))
	for _, d := range h.RecentAverages {
		recent = append(recent, Millis(d))
	}
	return json.Marshal(historicalStatsJSON{
		ReactionCount:    h.ReactionCount,
		AverageMS:        Millis(h.Average),
		BestMS:           Millis(h.Best),
		FalseStarts:      h.FalseStarts,
		Sessions:         h.Sessions,
		TrendMSPerSess:   h.Trend,
		TrendAvailable:   h.TrendAvailable,
		RecentAveragesMS: recent,
	})
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (h *HistoricalStats) UnmarshalJSON(data []byte) error {
	var in historicalStatsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*h = HistoricalStats{
		ReactionCount:  in.ReactionCount,
		Average:        FromMillis(in.AverageMS),
		Best:           FromMillis(in.BestMS),
		FalseStarts:    in.FalseStarts,
		Sessions:       in.Sessions,
		Trend:          in.TrendMSPerSess,
		TrendAvailable: in.TrendAvailable,
	}
	for _, ms := range in.RecentAveragesMS {
		h.RecentAverages = append(h.RecentAverages, FromMillis(ms))
	}
	return nil
}
