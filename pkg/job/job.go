// Package job runs long-lived background functions alongside the servers of
// an App and stops them together.
package job

import (
	"context"
	"errors"

	"github.com/HorseArcher567/pathfinder/pkg/xlog"
)

// Func is the body of a job. It must return once ctx is done.
type Func func(ctx context.Context, log *xlog.Logger) error

type Job struct {
	Name string
	Func Func
}

func (j *Job) Validate() error {
	if j == nil {
		return errors.New("job is nil")
	}
	if j.Name == "" {
		return errors.New("job name is required")
	}
	if j.Func == nil {
		return errors.New("job function is required")
	}
	return nil
}

func (j *Job) Run(ctx context.Context, log *xlog.Logger) error {
	log.Info("running job", "name", j.Name)
	return j.Func(ctx, log.With("job", j.Name))
}
