// api/schemas/trajectory.go
package schemas

import "time"

// -- Trajectory Schemas --

// Trajectory is one episode: a Reset followed by the steps taken from it.
type Trajectory struct {
	ID        string    `json:"id"`
	StartURL  string    `json:"start_url"`
	StartedAt time.Time `json:"started_at"`
}

// TrajectoryStep is what the environment reports for each observation it
// produced. Index 0 is the observation returned by Reset.
type TrajectoryStep struct {
	TrajectoryID  string         `json:"trajectory_id"`
	Index         int            `json:"index"`
	URL           string         `json:"url"`
	ProcessedText string         `json:"processed_text"`
	Response      string         `json:"response,omitempty"`
	FunctionCalls []FunctionCall `json:"function_calls"`
	Status        Status         `json:"status"`
	Done          bool           `json:"done"`
	Truncated     bool           `json:"truncated"`
	Error         string         `json:"error,omitempty"`
	RecordedAt    time.Time      `json:"recorded_at"`
}
