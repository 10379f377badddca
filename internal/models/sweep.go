package models

// SweepResult counts what one sweep did
type SweepResult struct {
	Due       int `json:"due"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Paused    int `json:"paused"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
}

// Merge adds other into r
func (r *SweepResult) Merge(other SweepResult) {
	r.Due += other.Due
	r.Sent += other.Sent
	r.Failed += other.Failed
	r.Paused += other.Paused
	r.Completed += other.Completed
	r.Cancelled += other.Cancelled
	r.Skipped += other.Skipped
}

// SweepDueWorkResult is the outcome of one external sweep trigger
type SweepDueWorkResult struct {
	Drip      SweepResult `json:"drip"`
	Batch     SweepResult `json:"batch"`
	Scheduled SweepResult `json:"scheduled"`
	Total     SweepResult `json:"total"`
	Errors    []string    `json:"errors,omitempty"`
}
