// Package scheduler runs a task once, after a delay. A scheduled job can be canceled until the task starts.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCanceled is returned by Result when the job was canceled before the task ran.
var ErrCanceled = errors.New("job canceled")

// Schedule runs the task after waitTime. The job is canceled when ctx is done.
func Schedule(ctx context.Context, task Task, waitTime time.Duration) *Job {
	ctx2, cancel := context.WithCancel(ctx)
	j := &Job{
		task:   task,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go j.run(ctx2, waitTime)

	return j
}

type Task interface {
	Run(ctx context.Context)
}

// TaskFunc allows a function to be used as a Task.
type TaskFunc func(ctx context.Context)

func (f TaskFunc) Run(ctx context.Context) {
	f(ctx)
}

type Job struct {
	task     Task
	cancel   context.CancelFunc
	done     chan struct{}
	ran      bool
	canceled bool
	lock     sync.RWMutex
}

func (j *Job) run(ctx context.Context, waitTime time.Duration) {
	defer close(j.done)
	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		j.finish(false)
	case <-timer.C:
		j.task.Run(ctx)
		j.finish(true)
	}
}

// Cancel stops the job, if the task hasn't started yet, and waits for the job to finish.
func (j *Job) Cancel() {
	j.cancel()
	<-j.done
}

// Result returns whether the job is done. A job that was canceled before its task ran returns ErrCanceled.
func (j *Job) Result() (completed bool, err error) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	if j.canceled {
		err = ErrCanceled
	}
	return j.ran || j.canceled, err
}

func (j *Job) finish(ran bool) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.ran = ran
	j.canceled = !ran
}
