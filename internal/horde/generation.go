package horde

import (
	"context"
	"errors"
	"net/url"

	"github.com/VilotStar/StableHorder/internal/model"
)

// Submit sends req to the async endpoint and returns the generation id.
// Submitting twice creates two generations, so Submit never retries.
func (c *GenerationClient) Submit(ctx context.Context, req *model.GenerationRequest) (string, error) {
	var resp model.SubmitResponse
	if err := c.rc.do(ctx, "submit", "POST", asyncPath, true, req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &SchemaError{Op: "submit", Err: errors.New("response has no id")}
	}
	return resp.ID, nil
}

// Check fetches the progress record of generation id.
func (c *GenerationClient) Check(ctx context.Context, id string) (*model.CheckResponse, error) {
	var resp model.CheckResponse
	if err := c.rc.do(ctx, "check", "GET", checkPath+url.PathEscape(id), false, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Finished == nil {
		return nil, &SchemaError{Op: "check", Err: errors.New("response has no finished field")}
	}
	return &resp, nil
}

// Status fetches the full record of generation id.
func (c *GenerationClient) Status(ctx context.Context, id string) (*model.Status, error) {
	var status model.Status
	if err := c.rc.do(ctx, "status", "GET", statusPath+url.PathEscape(id), false, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
