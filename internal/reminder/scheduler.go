// Package reminder implements the Reminder Scheduler (S): it turns a
// task's remind_at into a one-shot sidecar job, recovers its in-memory
// timer set from the reminders table mirror on restart, and publishes
// reminder.fired when a job comes due. A variance watchdog swept by
// robfig/cron catches jobs the sidecar never delivered within the
// configured budget.
package reminder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/ids"
	"github.com/gocodealone/taskrecur/internal/messaging"
	"github.com/gocodealone/taskrecur/internal/sidecar"
	"github.com/gocodealone/taskrecur/internal/store"
)

const jobNamePrefix = "reminder-"

// Scheduler owns the reminders table mirror, the sidecar job client, and a
// cron-driven watchdog for reminders that should have fired already.
type Scheduler struct {
	reminders      *store.ReminderStore
	sidecarClient  *sidecar.Client
	bus            *messaging.Bus
	logger         applog.Logger
	varianceBudget time.Duration

	cron *cron.Cron

	mu      sync.Mutex
	pending map[ids.ID]store.Reminder
}

func New(reminders *store.ReminderStore, sidecarClient *sidecar.Client, bus *messaging.Bus, logger applog.Logger, varianceBudget time.Duration) *Scheduler {
	return &Scheduler{
		reminders:      reminders,
		sidecarClient:  sidecarClient,
		bus:            bus,
		logger:         logger,
		varianceBudget: varianceBudget,
		cron:           cron.New(),
		pending:        make(map[ids.ID]store.Reminder),
	}
}

// Subscribe registers HandleScheduled against the reminders topic: the
// gateway and the recurrence worker publish reminder.scheduled there
// whenever a task's remind_at is set, so this process can register a
// sidecar job the moment the commitment exists rather than waiting for its
// own next recovery scan.
func (s *Scheduler) Subscribe() {
	s.bus.Subscribe(eventenvelope.TopicReminders, s.HandleScheduled)
}

// HandleScheduled consumes a reminder.scheduled event and registers the
// corresponding sidecar job.
func (s *Scheduler) HandleScheduled(ctx context.Context, env eventenvelope.Envelope) messaging.Outcome {
	if env.EventType != eventenvelope.ReminderScheduled {
		return messaging.ACK
	}
	payload, err := env.DecodeReminderScheduled()
	if err != nil {
		s.logger.Warn("decoding reminder.scheduled payload", "task_id", env.TaskID, "error", err)
		return messaging.DROP
	}
	fireAt, err := calendar.ParseISO8601(payload.FireAt)
	if err != nil {
		s.logger.Warn("parsing reminder.scheduled fire_at", "task_id", env.TaskID, "error", err)
		return messaging.DROP
	}
	r := store.Reminder{
		TaskID:   env.TaskID,
		UserID:   env.UserID,
		FireAt:   fireAt,
		Channels: payload.Channels,
		Status:   store.ReminderScheduled,
	}
	if err := s.ScheduleFor(ctx, r); err != nil {
		s.logger.Warn("registering sidecar job for reminder", "task_id", env.TaskID, "error", err)
		return messaging.RETRY
	}
	return messaging.ACK
}

// Recover rebuilds the pending set from every still-scheduled reminders
// row, re-registering a sidecar job for each — the recovery path a
// restarted scheduler process takes instead of trusting the sidecar's job
// facility to have survived the same restart.
func (s *Scheduler) Recover(ctx context.Context) error {
	scheduled, err := s.reminders.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("listing scheduled reminders for recovery: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range scheduled {
		s.pending[r.TaskID] = r
		if err := s.registerJob(ctx, r); err != nil {
			s.logger.Warn("re-registering reminder job on recovery", "task_id", r.TaskID, "error", err)
		}
	}
	s.logger.Info("reminder recovery complete", "pending", len(s.pending))
	return nil
}

// StartWatchdog runs a periodic sweep (every minute) for reminders whose
// fire_at has passed the configured variance budget without a
// reminder.fired having been recorded, firing them directly instead of
// waiting on a sidecar job that may have been lost.
func (s *Scheduler) StartWatchdog(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 1m", func() {
		s.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling variance watchdog: %w", err)
	}
	s.cron.Start()
	return nil
}

// StopWatchdog stops the cron scheduler, waiting for any in-flight sweep.
func (s *Scheduler) StopWatchdog() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sweep(ctx context.Context) {
	now := calendar.Now()
	s.mu.Lock()
	overdue := make([]store.Reminder, 0)
	for _, r := range s.pending {
		if now.Sub(r.FireAt) >= s.varianceBudget {
			overdue = append(overdue, r)
		}
	}
	s.mu.Unlock()

	for _, r := range overdue {
		s.logger.Warn("reminder exceeded variance budget, firing directly", "task_id", r.TaskID, "fire_at", r.FireAt.ISO8601())
		s.fire(ctx, r)
	}
}

// ScheduleFor registers (or replaces) a sidecar job for r and tracks it as
// pending. HandleScheduled calls it for every reminder.scheduled event, the
// path both the gateway's create/update flow and the recurrence worker's
// successor creation reach through the reminders topic; Recover registers
// jobs through registerJob directly.
func (s *Scheduler) ScheduleFor(ctx context.Context, r store.Reminder) error {
	s.mu.Lock()
	s.pending[r.TaskID] = r
	s.mu.Unlock()
	return s.registerJob(ctx, r)
}

// Cancel removes a pending reminder's sidecar job and stops tracking it.
func (s *Scheduler) Cancel(ctx context.Context, taskID ids.ID) error {
	s.mu.Lock()
	delete(s.pending, taskID)
	s.mu.Unlock()
	return s.sidecarClient.CancelJob(ctx, jobName(taskID))
}

func (s *Scheduler) registerJob(ctx context.Context, r store.Reminder) error {
	return s.sidecarClient.RegisterJob(ctx, sidecar.JobRequest{
		Name:    jobName(r.TaskID),
		FireAt:  r.FireAt.Std(),
		Payload: []byte(ids.Canonical(r.TaskID)),
	})
}

func jobName(taskID ids.ID) string {
	return jobNamePrefix + ids.Canonical(taskID)
}

// Mount attaches the sidecar job-facility callback route: POST
// /jobs/fire/{name}, hit when a previously registered job comes due. This
// is a distinct HTTP surface from the Bus's topic routes because the job
// facility is a point-to-point callback, not a pub/sub delivery.
func (s *Scheduler) Mount(r chi.Router) {
	r.Post("/jobs/fire/{name}", s.handleJobFire)
}

func (s *Scheduler) handleJobFire(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	taskID, err := ids.Parse(strings.TrimPrefix(name, jobNamePrefix))
	if err != nil {
		http.Error(w, "unrecognized job name", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rem, ok := s.pending[taskID]
	s.mu.Unlock()
	if !ok {
		// Already fired, cancelled, or from a job this process never
		// registered (e.g. a stale job after a rename); acknowledge rather
		// than ask the sidecar to keep retrying.
		w.WriteHeader(http.StatusOK)
		return
	}
	s.fire(r.Context(), rem)
	w.WriteHeader(http.StatusOK)
}

func (s *Scheduler) fire(ctx context.Context, r store.Reminder) {
	s.mu.Lock()
	delete(s.pending, r.TaskID)
	s.mu.Unlock()

	if err := s.reminders.MarkFired(ctx, r.TaskID); err != nil {
		s.logger.Error("marking reminder fired", "task_id", r.TaskID, "error", err)
	}

	payload := eventenvelope.ReminderFiredPayload{
		Task:     eventenvelope.TaskSnapshot{TaskID: ids.Canonical(r.TaskID), UserID: ids.Canonical(r.UserID)},
		Channels: r.Channels,
	}
	env, err := eventenvelope.New(eventenvelope.ReminderFired, r.UserID, r.TaskID, payload)
	if err != nil {
		s.logger.Error("encoding reminder.fired envelope", "task_id", r.TaskID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, eventenvelope.TopicReminders, env); err != nil {
		s.logger.Warn("publishing reminder.fired", "task_id", r.TaskID, "error", err)
		if err := s.reminders.MarkFailed(ctx, r.TaskID); err != nil {
			s.logger.Error("marking reminder failed", "task_id", r.TaskID, "error", err)
		}
	}
}
