package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// SavingsMetrics is returned by GET /v1/metrics/savings.
type SavingsMetrics struct {
	RoundUpApplied     int64   `json:"roundUpApplied"`
	RetentionApplied   int64   `json:"retentionApplied"`
	Failed             int64   `json:"failed"`
	AmountSaved        float64 `json:"amountSaved"`
	CategorySeeds      int64   `json:"categorySeeds"`
	DuplicatesRemoved  int64   `json:"duplicatesRemoved"`
	SavingsCacheHitPct float64 `json:"savingsCacheHitPct"`
}
