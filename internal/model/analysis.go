package model

// RootCause classifies the dominant performance driver found by the signal
// analysis stage.
type RootCause string

const (
	CauseCompetitivePressure RootCause = "competitive_pressure"
	CauseCreativeFatigue     RootCause = "creative_fatigue"
	CauseAudienceSaturation  RootCause = "audience_saturation"
	CauseCompound            RootCause = "compound"
	CauseNone                RootCause = "none"
)

// ValidRootCause reports whether s is a known root cause label.
func ValidRootCause(s string) bool {
	switch RootCause(s) {
	case CauseCompetitivePressure, CauseCreativeFatigue, CauseAudienceSaturation, CauseCompound, CauseNone:
		return true
	}
	return false
}

// Signal is a single named observation extracted from the context, with the
// metric value that supports it.
type Signal struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

// SignalAnalysis is the structured output of the signal analysis stage.
type SignalAnalysis struct {
	RootCause        RootCause `json:"root_cause"`
	Confidence       float64   `json:"confidence"` // 0..1.
	PrimarySignals   []Signal  `json:"primary_signals"`
	SecondarySignals []Signal  `json:"secondary_signals,omitempty"`
	KeyObservation   string    `json:"key_observation"`
	Correlation      string    `json:"correlation,omitempty"`
	Evidence         []string  `json:"supporting_evidence,omitempty"`
	AltHypotheses    []string  `json:"alternate_hypotheses,omitempty"`
}
