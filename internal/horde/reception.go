package horde

import (
	"context"
	"errors"

	"github.com/VilotStar/StableHorder/internal/model"
)

// PopJob asks the horde for one job matching the node's capabilities.
//
// A pop may claim a job server-side even when the response is lost, so it
// is never retried here. ErrEmptyQueue is returned when no work is
// available; the returned job is then nil.
func (c *ReceptionClient) PopJob(ctx context.Context) (*model.Job, error) {
	var job model.Job
	if err := c.rc.do(ctx, "pop", "POST", popPath, true, &c.payload, &job); err != nil {
		return nil, err
	}
	if job.Empty() {
		return nil, ErrEmptyQueue
	}
	if job.Model == "" {
		return nil, &SchemaError{Op: "pop", Err: errors.New("job " + job.ID + " has no model")}
	}
	return &job, nil
}

// Payload returns a copy of the capability descriptor sent on every pop.
func (c *ReceptionClient) Payload() model.PopPayload {
	return c.payload
}
