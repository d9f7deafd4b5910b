package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wablast/pkg/log"
)

// ScheduleAck is the immediate acknowledgement returned when a batch is
// accepted for deferred delivery.
type ScheduleAck struct {
	ScheduledTime    time.Time `json:"scheduledTime"`
	TotalRecipients  int       `json:"totalNumbers"`
	TotalAttachments int       `json:"totalFiles"`
}

// Scheduler arms in-memory timers that hand batches to the dispatcher at
// their scheduled time. Timers do not survive a restart.
type Scheduler struct {
	dispatcher *Dispatcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	now func() time.Time
}

func NewScheduler(dispatcher *Dispatcher) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		timers:     make(map[string]*time.Timer),
		now:        time.Now,
	}
}

// Schedule arms a timer firing req at the given time. Past or present times
// are rejected without arming anything or touching the handle.
func (s *Scheduler) Schedule(handle *Handle, req SendRequest, at time.Time) (ScheduleAck, error) {
	delay := at.Sub(s.now())
	if delay <= 0 {
		return ScheduleAck{}, ErrPastScheduleTime
	}

	scheduleID := uuid.NewString()
	sessionID := handle.SessionID()

	s.mu.Lock()
	s.timers[scheduleID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, scheduleID)
		s.mu.Unlock()

		results, err := s.dispatcher.Dispatch(context.Background(), handle, req)
		if err != nil {
			log.SessionOp(sessionID, "scheduled-dispatch").WithError(err).
				WithField("schedule_id", scheduleID).Error("Scheduled batch failed")
			return
		}
		log.SessionOp(sessionID, "scheduled-dispatch").
			WithField("schedule_id", scheduleID).
			WithField("results", len(results)).Info("Scheduled batch dispatched")
	})
	s.mu.Unlock()

	log.SessionOp(sessionID, "schedule").
		WithField("schedule_id", scheduleID).
		WithField("scheduled_time", at.Format(time.RFC3339)).Info("Batch scheduled")

	return ScheduleAck{
		ScheduledTime:    at,
		TotalRecipients:  len(req.Recipients),
		TotalAttachments: len(req.Attachments),
	}, nil
}

// Pending reports how many timers are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer. Batches already handed to the dispatcher
// are unaffected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
