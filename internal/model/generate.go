package model

// Fixed parameters the horde recomputes or ignores for fresh generations.
const (
	PresetSeedVariation     = 1000
	PresetDenoisingStrength = 0.75
	PresetClipSkip          = 1
)

// GenerationRequest is the body of an async generation submission.
type GenerationRequest struct {
	Prompt         string           `json:"prompt"`
	Params         GenerationParams `json:"params"`
	NSFW           bool             `json:"nsfw"`
	CensorNSFW     bool             `json:"censor_nsfw"`
	TrustedWorkers bool             `json:"trusted_workers"`
	Models         []string         `json:"models"`
	Shared         bool             `json:"shared"`
	UseR2          bool             `json:"r2"`
	JobID          string           `json:"jobId"` // "" until correlated with a submission
	Index          int              `json:"index"`
	Gathered       bool             `json:"gathered"`
	Failed         bool             `json:"failed"`
}

// GenerationParams are the generation settings of a request.
type GenerationParams struct {
	Steps             int      `json:"steps"`
	N                 int      `json:"n"`
	SamplerName       string   `json:"sampler_name"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	CfgScale          float64  `json:"cfg_scale"`
	SeedVariation     int      `json:"seed_variation"`
	Seed              string   `json:"seed"`
	Karras            bool     `json:"karras"`
	DenoisingStrength float64  `json:"denoising_strength"`
	Tiling            bool     `json:"tiling"`
	HiresFix          bool     `json:"hires_fix"`
	ClipSkip          int      `json:"clip_skip"`
	PostProcessing    []string `json:"post_processing"`
}

// SubmitResponse is the body returned by the async endpoint.
type SubmitResponse struct {
	ID      string  `json:"id"`
	Kudos   float64 `json:"kudos"`
	Message string  `json:"message,omitempty"`
}
