package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// FinalState is the deterministic summary taken after the last step.
type FinalState struct {
	Status string `json:"status"`
	// Settlements renders the full audit ledger in sequence order, one
	// line per settlement, rolled-back rows marked.
	Settlements []string `json:"settlements"`
	// Purses lists teams whose purse differs from its original value.
	Purses []string `json:"purses,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	Scenario string       `json:"scenario"`
	Pass     bool         `json:"pass"`
	Trace    []TraceEvent `json:"trace"`
	Final    FinalState   `json:"final"`
	Errors   []string     `json:"errors,omitempty"`
}

// AddError records a validation failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
