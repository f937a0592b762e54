package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// ReportFunc emits one stats report. The context carries a short deadline.
type ReportFunc func(ctx context.Context)

// Service periodically invokes a report function on a cron schedule. It is
// used by the bot runtime to surface registry and queue statistics without
// wiring a metrics backend.
type Service struct {
	scheduler *robfigcron.Cron
	report    ReportFunc
	mu        sync.Mutex
	running   bool
}

// New parses spec (standard cron or @every syntax) and prepares the service.
func New(spec string, report ReportFunc) (*Service, error) {
	if report == nil {
		return nil, fmt.Errorf("heartbeat: nil report function")
	}
	s := &Service{
		scheduler: robfigcron.New(),
		report:    report,
	}
	if _, err := s.scheduler.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("heartbeat: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule; repeated calls are no-ops.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.scheduler.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	<-s.scheduler.Stop().Done()
}

// TriggerNow runs one report outside the schedule.
func (s *Service) TriggerNow() {
	s.tick()
}

func (s *Service) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.report(ctx)
}
