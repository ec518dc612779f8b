package device

import (
	"context"
	"errors"
	"time"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// Default poll settings for jobs and readiness checks.
const (
	DefaultJobInterval   = 10 * time.Second
	DefaultJobTimeout    = 600 * time.Second
	DefaultReadyInterval = 30 * time.Second
	DefaultReadyTimeout  = 600 * time.Second
)

// PollOptions bounds a poll loop.
type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (o PollOptions) withDefaults(interval, timeout time.Duration) PollOptions {
	if o.Interval <= 0 {
		o.Interval = interval
	}
	if o.Timeout <= 0 {
		o.Timeout = timeout
	}
	return o
}

// ProbeFunc checks a condition once. done=true ends the poll successfully; a
// non-nil error ends it with failure.
type ProbeFunc func(ctx context.Context) (done bool, err error)

// Poll calls probe every interval until it reports done, returns an error, the
// timeout elapses, or ctx is cancelled. A timeout is reported as (false, nil);
// callers decide whether that is fatal. The sleep between probes is cut short
// at the deadline, so Poll never runs longer than timeout plus one probe.
func Poll(ctx context.Context, interval, timeout time.Duration, probe ProbeFunc) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		done, err := probe(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

var errJobLost = errors.New("job status unavailable")

// WaitForJob polls job id until it finishes. It returns true when the job
// reaches FIN. It returns false on timeout, when the status query fails (the
// id may be invalid) or when the device reports no status at all. The error
// is non-nil only when ctx is cancelled.
func WaitForJob(ctx context.Context, q JobQuerier, id string, opts PollOptions) (bool, error) {
	opts = opts.withDefaults(DefaultJobInterval, DefaultJobTimeout)
	log := util.WithField("job", id)
	log.Infof("Waiting for job %s to finish", id)

	ok, err := Poll(ctx, opts.Interval, opts.Timeout, func(ctx context.Context) (bool, error) {
		job, err := q.JobStatus(ctx, id)
		if err != nil {
			log.Warnf("Could not locate job %s: %v", id, err)
			return false, errJobLost
		}
		switch job.State {
		case JobFinished:
			log.Info("Job is now complete")
			return true, nil
		case JobActive:
			if job.Progress != "" {
				log.Infof("Progress is currently: %s", job.Progress)
			}
			return false, nil
		case JobUnknown:
			log.Warn("No job status reported")
			return false, errJobLost
		default:
			log.Debugf("Job state %s", job.State)
			return false, nil
		}
	})
	switch {
	case errors.Is(err, errJobLost):
		return false, nil
	case err != nil:
		return false, err
	}
	if !ok {
		log.Warnf("Timed out after %s waiting for job %s", opts.Timeout, id)
	}
	return ok, nil
}

// WaitForReady polls the device until it reports ready. Query errors are
// treated as "not yet ready". Returns false on timeout; the error is non-nil
// only when ctx is cancelled.
func WaitForReady(ctx context.Context, r ReadyChecker, name string, opts PollOptions) (bool, error) {
	opts = opts.withDefaults(DefaultReadyInterval, DefaultReadyTimeout)
	log := util.WithDevice(name)

	return Poll(ctx, opts.Interval, opts.Timeout, func(ctx context.Context) (bool, error) {
		log.Debugf("Checking %s if ready", name)
		ready, err := r.Ready(ctx)
		if err != nil {
			log.Infof("%s is not yet ready: %v", name, err)
			return false, nil
		}
		if !ready {
			log.Infof("Waiting for %s to become ready", name)
		}
		return ready, nil
	})
}
