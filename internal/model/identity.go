package model

import (
	"errors"
	"fmt"
)

// ApiInfo is the credential/proxy pair used by one network role.
type ApiInfo struct {
	Key   string `json:"key" yaml:"key" toml:"key"`       // horde API key (secret)
	Proxy string `json:"proxy" yaml:"proxy" toml:"proxy"` // proxy URL, empty for a direct connection
}

// PopPayload describes what work this node accepts. It is sent verbatim as
// the body of every pop request.
type PopPayload struct {
	Name                string   `json:"name" yaml:"name" toml:"name"`
	MaxPixels           int64    `json:"max_pixels" yaml:"max_pixels" toml:"max_pixels"`
	PriorityUsernames   []string `json:"priority_usernames" yaml:"priority_usernames" toml:"priority_usernames"`
	NSFW                bool     `json:"nsfw" yaml:"nsfw" toml:"nsfw"`
	Blacklist           []string `json:"blacklist" yaml:"blacklist" toml:"blacklist"`
	Models              []string `json:"models" yaml:"models" toml:"models"`
	AllowImg2Img        bool     `json:"allow_img2img" yaml:"allow_img2img" toml:"allow_img2img"`
	AllowInpainting     bool     `json:"allow_inpainting" yaml:"allow_inpainting" toml:"allow_inpainting"`
	AllowUnsafeIP       bool     `json:"allow_unsafe_ip" yaml:"allow_unsafe_ip" toml:"allow_unsafe_ip"`
	Threads             int      `json:"threads" yaml:"threads" toml:"threads"`
	AllowPostProcessing bool     `json:"allow_post_processing" yaml:"allow_post_processing" toml:"allow_post_processing"`
	AllowControlnet     bool     `json:"allow_controlnet" yaml:"allow_controlnet" toml:"allow_controlnet"`
	RequireUpfrontKudos bool     `json:"require_upfront_kudos" yaml:"require_upfront_kudos" toml:"require_upfront_kudos"`
}

// WorkerIdentity is everything the node needs to talk to the horde. It is
// built once at startup and never mutated afterwards.
type WorkerIdentity struct {
	Payload       PopPayload
	Reception     ApiInfo // used for pop requests only
	Generation    ApiInfo // used for async submission and polling
	BridgeVersion int
	BridgeAgent   string
	HordeURL      string
}

// ClientAgent is the value sent in the Client-Agent header.
func (id *WorkerIdentity) ClientAgent() string {
	return fmt.Sprintf("%s:%d", id.BridgeAgent, id.BridgeVersion)
}

// Concurrency is the number of job cycles the node runs at once.
func (id *WorkerIdentity) Concurrency() int {
	if id.Payload.Threads < 1 {
		return 1
	}
	return id.Payload.Threads
}

// Validate reports every missing required field.
func (id *WorkerIdentity) Validate() error {
	var errs []error
	if id.HordeURL == "" {
		errs = append(errs, errors.New("horde_url is required"))
	}
	if id.BridgeAgent == "" {
		errs = append(errs, errors.New("bridge_agent is required"))
	}
	if id.Reception.Key == "" {
		errs = append(errs, errors.New("rec_info.key is required"))
	}
	if id.Generation.Key == "" {
		errs = append(errs, errors.New("gen_info.key is required"))
	}
	if id.Payload.Name == "" {
		errs = append(errs, errors.New("payload.name is required"))
	}
	if len(id.Payload.Models) == 0 {
		errs = append(errs, errors.New("payload.models must not be empty"))
	}
	if id.Payload.Threads < 0 {
		errs = append(errs, errors.New("payload.threads must not be negative"))
	}
	return errors.Join(errs...)
}
