package batch

// Outcome is the per-tab result tag.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeBlocked Outcome = "blocked"
)

// Result records what happened to one tab.
type Result struct {
	TabID   string  `json:"tab_id"`
	URL     string  `json:"url"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// Summary aggregates the results of a run. Success + Failed + Skipped +
// Blocked always equals Processed.
type Summary struct {
	Processed int      `json:"processed"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Blocked   int      `json:"blocked"`
	Results   []Result `json:"results,omitempty"`
}

func (s *Summary) add(results ...Result) {
	for _, r := range results {
		s.Processed++
		switch r.Outcome {
		case OutcomeSuccess:
			s.Success++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeBlocked:
			s.Blocked++
		}
		s.Results = append(s.Results, r)
	}
}
