package ingest

import (
	"encoding/json"
	"time"
)

// Report summarizes one cycle.
type Report struct {
	Query    string        `json:"query"`
	Window   Window        `json:"window"`
	Fetched  int           `json:"fetched"`
	Stored   int           `json:"stored"`
	Dropped  int           `json:"dropped"`
	Failures []ItemError   `json:"failures"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed returns the number of items that failed.
func (r *Report) Failed() int {
	return len(r.Failures)
}

// FailuresOf returns the failures of the given kind.
func (r *Report) FailuresOf(kind ErrorKind) []ItemError {
	var out []ItemError
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func (e ItemError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Index   int       `json:"index"`
		VideoID string    `json:"video_id,omitempty"`
		Kind    ErrorKind `json:"kind"`
		Error   string    `json:"error"`
	}{e.Index, e.VideoID, e.Kind, msg})
}

func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}{w.Start, w.End})
}
