package fleet

// Insight category vocabulary.
const (
	CategoryEfficiency  = "EFFICIENCY"
	CategoryPerformance = "PERFORMANCE"
	CategoryMaintenance = "MAINTENANCE"
	CategoryStrategy    = "STRATEGY"
	CategoryAlert       = "ALERT"
)

// Impact and congestion level vocabulary.
const (
	ImpactLow      = "LOW"
	ImpactMedium   = "MEDIUM"
	ImpactHigh     = "HIGH"
	ImpactCritical = "CRITICAL"
)

// Insight is one actionable observation about the fleet.
type Insight struct {
	Category       string             `json:"category"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Impact         string             `json:"impact"`
	Recommendation string             `json:"recommendation"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	Priority       int                `json:"priority"`
}

// CongestionZone reports a grid cell with too many planned waypoints.
type CongestionZone struct {
	Zone           string  `json:"zone"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Level          string  `json:"congestion_level"` // MEDIUM or HIGH
	EstimatedDelay float64 `json:"estimated_delay"`  // minutes
	Recommendation string  `json:"recommendation"`
}

// MaintenancePrediction is an advisory verdict for a single AGV.
type MaintenancePrediction struct {
	NeedsMaintenance  bool    `json:"needs_maintenance"`
	Urgency           string  `json:"urgency"`
	PredictedIssue    string  `json:"predicted_issue"`
	RecommendedAction string  `json:"recommended_action"`
	EstimatedCost     float64 `json:"estimated_cost"`
	DowntimeHours     float64 `json:"downtime_hours"`
}

// Recommendation is a prioritized action inside a performance report.
type Recommendation struct {
	Priority       string `json:"priority"`
	Action         string `json:"action"`
	ExpectedImpact string `json:"expected_impact"`
}

// PerformanceReport summarizes fleet health for operators.
type PerformanceReport struct {
	Score             float64          `json:"score"`
	Category          string           `json:"category"` // EXCELLENT..CRITICAL
	Summary           string           `json:"summary"`
	UtilizationRate   float64          `json:"utilization_rate"`
	BatteryManagement string           `json:"battery_management"`
	Recommendations   []Recommendation `json:"recommendations,omitempty"`
}

// Alert is a monitor finding about a single AGV.
type Alert struct {
	Type     string `json:"type"`
	AGVID    string `json:"agv_id"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}
