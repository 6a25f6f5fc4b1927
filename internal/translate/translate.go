// Package translate maps popped horde jobs onto async generation requests.
package translate

import "github.com/VilotStar/StableHorder/internal/model"

// Node policy applied to every request regardless of job content.
const (
	policyNSFW           = true
	policyCensorNSFW     = false
	policyTrustedWorkers = false
	policyShared         = false
	policyUseR2          = true
)

// Translate builds the generation request for job. It performs no I/O and
// never fails; equal jobs always yield equal requests. The returned request
// shares no memory with job.
func Translate(job *model.Job) *model.GenerationRequest {
	p := job.Payload

	params := model.GenerationParams{
		Steps:          p.DDIMSteps,
		N:              p.NIter,
		SamplerName:    p.SamplerName,
		Width:          p.Width,
		Height:         p.Height,
		CfgScale:       p.CfgScale,
		Seed:           p.Seed,
		Karras:         p.Karras,
		Tiling:         p.Tiling,
		HiresFix:       p.HiresFix,
		PostProcessing: cloneStrings(p.PostProcessing),

		// presets, never taken from the job
		SeedVariation:     model.PresetSeedVariation,
		DenoisingStrength: model.PresetDenoisingStrength,
		ClipSkip:          model.PresetClipSkip,
	}

	return &model.GenerationRequest{
		Prompt:         p.Prompt,
		Params:         params,
		NSFW:           policyNSFW,
		CensorNSFW:     policyCensorNSFW,
		TrustedWorkers: policyTrustedWorkers,
		Models:         []string{job.Model},
		Shared:         policyShared,
		UseR2:          policyUseR2,
		JobID:          "",
		Index:          0,
		Gathered:       false,
		Failed:         false,
	}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
