package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Result is the outcome of one job run, recorded on the job's state.
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
	ResultSkipped Result = "previous_still_running"
)

// JobState is the per-job observability record the scheduler maintains:
// last_started, last_duration, last_result, success/error counters, and
// last_error, exactly as spec §4.9 requires.
type JobState struct {
	Name string

	running atomic.Bool

	mu            sync.RWMutex
	lastStarted   time.Time
	lastDuration  time.Duration
	lastResult    Result
	successCount  int
	errorCount    int
	skippedCount  int
	lastError     string
}

func newJobState(name string) *JobState {
	return &JobState{Name: name}
}

// tryEnter claims the overlap guard for this job. It returns false, without
// touching any other field, if the previous run is still in flight.
func (j *JobState) tryEnter() bool {
	return j.running.CompareAndSwap(false, true)
}

func (j *JobState) leave(started time.Time, err error) {
	j.running.Store(false)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastStarted = started
	j.lastDuration = time.Since(started)
	if err != nil {
		j.lastResult = ResultError
		j.errorCount++
		j.lastError = err.Error()
	} else {
		j.lastResult = ResultSuccess
		j.successCount++
		j.lastError = ""
	}
}

func (j *JobState) recordSkip() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastResult = ResultSkipped
	j.skippedCount++
}

// Snapshot is a point-in-time, lock-free copy of a JobState for reporting.
type Snapshot struct {
	Name         string
	Running      bool
	LastStarted  time.Time
	LastDuration time.Duration
	LastResult   Result
	SuccessCount int
	ErrorCount   int
	SkippedCount int
	LastError    string
}

// Snapshot returns the current state of the job.
func (j *JobState) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		Name:         j.Name,
		Running:      j.running.Load(),
		LastStarted:  j.lastStarted,
		LastDuration: j.lastDuration,
		LastResult:   j.lastResult,
		SuccessCount: j.successCount,
		ErrorCount:   j.errorCount,
		SkippedCount: j.skippedCount,
		LastError:    j.lastError,
	}
}
