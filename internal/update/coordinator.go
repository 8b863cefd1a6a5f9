// OTA update state machine with append-only history
package update

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"robosim/internal/config"
	"robosim/internal/history"
	"robosim/internal/logging"
	"robosim/internal/telemetry"

	"github.com/google/uuid"
)

// ErrUpdateAlreadyInProgress is returned when a robot already has an
// update running.
var ErrUpdateAlreadyInProgress = errors.New("update already in progress")

// Status is the lifecycle state of an update job.
type Status string

// Update status constants.
const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Record is one entry of the append-only update history.
type Record struct {
	JobID      string    `json:"job_id"`
	RobotID    string    `json:"robot_id"`
	Version    string    `json:"version"`
	Status     Status    `json:"status"`
	Progress   float64   `json:"progress"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// job tracks one running update. Failure is decided up front with a
// seedable random source so runs are reproducible.
type job struct {
	id        string
	robotID   string
	version   string
	progress  float64
	willFail  bool
	failAt    float64
	startedAt time.Time
}

// Coordinator drives OTA updates for the fleet. One update may be in
// progress per robot; finished jobs move to the history ring and the
// robot returns to idle.
type Coordinator struct {
	mu      sync.Mutex
	cfg     config.UpdateConfig
	rand    *rand.Rand
	now     func() time.Time
	events  *history.Ring[telemetry.EventLogEntry]
	jobs    map[string]*job
	last    map[string]Record
	history *history.Ring[Record]

	onProgress func(Record)
}

// NewCoordinator creates a coordinator with a seedable random source.
func NewCoordinator(cfg config.UpdateConfig, events *history.Ring[telemetry.EventLogEntry], rng *rand.Rand) *Coordinator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Coordinator{
		cfg:     cfg,
		rand:    rng,
		now:     time.Now,
		events:  events,
		jobs:    make(map[string]*job),
		last:    make(map[string]Record),
		history: history.NewRing[Record](cfg.HistoryCapacity),
	}
}

// SetNow overrides the clock, for tests.
func (c *Coordinator) SetNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SetOnProgress registers a callback invoked with a record after every
// progress step and on terminal states. The callback runs outside the
// coordinator lock.
func (c *Coordinator) SetOnProgress(fn func(Record)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
}

// Start begins an update for one robot. Returns
// ErrUpdateAlreadyInProgress while a previous job is still running.
func (c *Coordinator) Start(robotID, version string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, running := c.jobs[robotID]; running {
		return Record{}, fmt.Errorf("start update for %s: %w", robotID, ErrUpdateAlreadyInProgress)
	}
	j := &job{
		id:        uuid.New().String(),
		robotID:   robotID,
		version:   version,
		startedAt: c.now().UTC(),
		willFail:  c.rand.Float64() < c.cfg.FailureRate,
		failAt:    10 + c.rand.Float64()*80,
	}
	c.jobs[robotID] = j
	rec := j.record(StatusInProgress, "")
	c.last[robotID] = rec
	c.logEvent(telemetry.LevelInfo, robotID, fmt.Sprintf("update to %s started", version))
	return rec, nil
}

// Status returns the robot's current job, its last finished record, or
// an idle record if it has never been updated.
func (c *Coordinator) Status(robotID string) Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.jobs[robotID]; ok {
		return j.record(StatusInProgress, "")
	}
	if rec, ok := c.last[robotID]; ok {
		return rec
	}
	return Record{RobotID: robotID, Status: StatusIdle}
}

// History returns finished update records for one robot, oldest first.
// An empty robotID returns the full fleet history.
func (c *Coordinator) History(robotID string) []Record {
	all := c.history.ReadAll()
	if robotID == "" {
		return all
	}
	var out []Record
	for _, rec := range all {
		if rec.RobotID == robotID {
			out = append(out, rec)
		}
	}
	return out
}

// Forget drops tracking state for a removed robot. History entries are
// append-only and stay.
func (c *Coordinator) Forget(robotID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, robotID)
	delete(c.last, robotID)
}

// Run advances all in-progress jobs on the configured step interval and
// blocks until the context is done.
func (c *Coordinator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	interval := time.Duration(c.cfg.StepIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	log.Info("starting update coordinator", "step_interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Step()
		case <-ctx.Done():
			return
		}
	}
}

// Step advances every in-progress job by one progress increment.
func (c *Coordinator) Step() {
	c.mu.Lock()
	var progressed []Record
	for robotID, j := range c.jobs {
		j.progress += c.cfg.ProgressPerStep
		if j.willFail && j.progress >= j.failAt {
			progressed = append(progressed, c.finishLocked(robotID, j, StatusFailed, "simulated flash verification failure"))
			continue
		}
		if j.progress >= 100 {
			j.progress = 100
			progressed = append(progressed, c.finishLocked(robotID, j, StatusSuccess, ""))
			continue
		}
		progressed = append(progressed, j.record(StatusInProgress, ""))
	}
	fn := c.onProgress
	c.mu.Unlock()
	if fn != nil {
		for _, rec := range progressed {
			fn(rec)
		}
	}
}

// finishLocked records a terminal state and returns the robot to idle.
// Callers hold c.mu.
func (c *Coordinator) finishLocked(robotID string, j *job, status Status, errMsg string) Record {
	rec := j.record(status, errMsg)
	rec.FinishedAt = c.now().UTC()
	c.history.Append(rec)
	c.last[robotID] = rec
	delete(c.jobs, robotID)
	if status == StatusFailed {
		c.logEvent(telemetry.LevelError, robotID, fmt.Sprintf("update to %s failed: %s", j.version, errMsg))
	} else {
		c.logEvent(telemetry.LevelInfo, robotID, fmt.Sprintf("update to %s succeeded", j.version))
	}
	return rec
}

func (c *Coordinator) logEvent(level, robotID, msg string) {
	if c.events == nil {
		return
	}
	c.events.Append(telemetry.EventLogEntry{
		Level:     level,
		Category:  "update",
		RobotID:   robotID,
		Message:   msg,
		Timestamp: c.now().UTC(),
	})
}

func (j *job) record(status Status, errMsg string) Record {
	return Record{
		JobID:     j.id,
		RobotID:   j.robotID,
		Version:   j.version,
		Status:    status,
		Progress:  j.progress,
		StartedAt: j.startedAt,
		Error:     errMsg,
	}
}
