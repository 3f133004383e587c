package domain

import "time"

// Alert is one deduplicated operational alert.
// Params: sorted label identity, annotations and lifetime.
// Returns: snapshot element published to alert sinks.
type Alert struct {
	ID           uint64            `json:"id"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
}

// Live reports whether alert is unexpired at now.
func (a Alert) Live(now time.Time) bool {
	return now.Before(a.EndsAt)
}
