package model

import "encoding/json"

// Job is the result of a successful pop. It lives for one job cycle.
type Job struct {
	Payload          JobPayload      `json:"payload"`
	ID               string          `json:"id"`
	Skipped          json.RawMessage `json:"skipped,omitempty"` // opaque, never interpreted
	Model            string          `json:"model"`
	SourceImage      *string         `json:"source_image,omitempty"`
	SourceProcessing string          `json:"source_processing"`
	SourceMask       *string         `json:"source_mask,omitempty"`
	R2Upload         *string         `json:"r2_upload,omitempty"`
}

// JobPayload carries the prompt and generation parameters of a job.
type JobPayload struct {
	Prompt           string   `json:"prompt"`
	DDIMSteps        int      `json:"ddim_steps"`
	NIter            int      `json:"n_iter"`
	SamplerName      string   `json:"sampler_name"`
	CfgScale         float64  `json:"cfg_scale"`
	Seed             string   `json:"seed"`
	Height           int      `json:"height"`
	Width            int      `json:"width"`
	PostProcessing   []string `json:"post_processing"`
	Karras           bool     `json:"karras"`
	Tiling           bool     `json:"tiling"`
	HiresFix         bool     `json:"hires_fix"`
	ImageIsControl   bool     `json:"image_is_control"`
	ReturnControlMap bool     `json:"return_control_map"`
}

// Empty reports whether the pop response is the horde's "no work
// available" answer. The horde still sends payload and skipped in that
// case, but with a null id.
func (j *Job) Empty() bool {
	return j == nil || j.ID == ""
}
