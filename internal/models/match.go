package models

// ProjectMatch is the result of running the project-context matcher over a
// meeting. It is computed fresh per meeting and never cached: both the
// project roster and the transcript can change between runs.
type ProjectMatch struct {
	ProjectID  *int     `json:"project_id,omitempty"`
	Confidence float64  `json:"confidence"`
	MatchedOn  []string `json:"matched_on"`
}
