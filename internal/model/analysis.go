package model

// AnalysisRecord is the typed result scraped from the analyzer stage
// stdout. TotalPulses comes from the "Found N current pulses" line and is
// trusted as reported, even when it disagrees with len(Pulses).
type AnalysisRecord struct {
	TotalPulses      int     `json:"totalPulses"`
	PeakCurrentRange string  `json:"peakCurrentRange,omitempty"`
	HighestPeak      float64 `json:"highestPeak"`
	Pulses           []Pulse `json:"pulses"`
}

// Pulse is one detected pulse. Number is the ordinal printed by the
// analyzer, kept verbatim - not reassigned, not required to be contiguous.
// PeakTime is seconds from the start of the recording; loose-format lines
// carry no timing, so it defaults to 0.
type Pulse struct {
	Number      int     `json:"pulseNumber"`
	PeakCurrent float64 `json:"peakCurrent"`
	PeakTime    float64 `json:"peakTime"`
}
