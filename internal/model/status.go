package model

// CheckResponse is the lightweight progress record of a generation.
type CheckResponse struct {
	Finished      *int    `json:"finished"`
	Processing    int     `json:"processing"`
	Restarted     int     `json:"restarted"`
	Waiting       int     `json:"waiting"`
	Done          bool    `json:"done"`
	Faulted       bool    `json:"faulted"`
	WaitTime      int     `json:"wait_time"`
	QueuePosition int     `json:"queue_position"`
	Kudos         float64 `json:"kudos"`
	IsPossible    bool    `json:"is_possible"`
}

// Complete reports whether expected images are finished. The done flag wins
// when the horde sets it.
func (c *CheckResponse) Complete(expected int) bool {
	if c.Done {
		return true
	}
	if c.Finished == nil {
		return false
	}
	return *c.Finished >= max(expected, 1)
}

// Status is the full record of a finished generation.
type Status struct {
	Generations   []GenerationRecord `json:"generations"`
	Shared        bool               `json:"shared"`
	Finished      int                `json:"finished"`
	Processing    int                `json:"processing"`
	Restarted     int                `json:"restarted"`
	Waiting       int                `json:"waiting"`
	Done          bool               `json:"done"`
	Faulted       bool               `json:"faulted"`
	WaitTime      int                `json:"wait_time"`
	QueuePosition int                `json:"queue_position"`
	Kudos         float64            `json:"kudos"`
	IsPossible    bool               `json:"is_possible"`
}

// GenerationRecord is one generated image.
type GenerationRecord struct {
	Image      string `json:"img"`
	Seed       string `json:"seed"`
	ID         string `json:"id"`
	Censored   bool   `json:"censored"`
	WorkerID   string `json:"worker_id"`
	WorkerName string `json:"worker_name"`
	Model      string `json:"model"`
	State      string `json:"state"`
}
