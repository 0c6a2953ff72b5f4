package main

import (
	"context"
	"time"

	"github.com/noah-isme/tc-academic-api/internal/scheduler"
	"github.com/noah-isme/tc-academic-api/internal/service"
	"github.com/noah-isme/tc-academic-api/pkg/config"
)

const (
	jobSessionLifecycle      = "session-lifecycle"
	jobStudentRequestExpiry  = "student-request-expiry"
	jobTeacherRequestExpiry  = "teacher-request-expiry"
	jobTeacherReminders      = "teacher-reminders"
	defaultReminderFrequency = 5 * time.Minute
	defaultDailyCron         = "30 0 * * *"
)

func registerJobs(runner *scheduler.Runner, cfg config.SchedulerConfig, lifecycle *service.LifecycleService, reminders *service.ReminderService, expiry *service.ExpiryService) error {
	daily := scheduler.Schedule{Cron: cfg.DailyCron}
	if daily.Cron == "" {
		daily.Cron = defaultDailyCron
	}
	interval := cfg.ReminderInterval
	if interval <= 0 {
		interval = defaultReminderFrequency
	}

	list := []scheduler.Job{
		{
			Name:     jobSessionLifecycle,
			Schedule: daily,
			Run: func(ctx context.Context) (interface{}, error) {
				return lifecycle.Run(ctx)
			},
			CatchUp: func(ctx context.Context) (interface{}, error) {
				return lifecycle.CatchUp(ctx)
			},
		},
		{
			Name:     jobStudentRequestExpiry,
			Schedule: daily,
			Run: func(ctx context.Context) (interface{}, error) {
				return expiry.ExpireStudentRequests(ctx)
			},
		},
		{
			Name:     jobTeacherRequestExpiry,
			Schedule: daily,
			Run: func(ctx context.Context) (interface{}, error) {
				return expiry.ExpireTeacherRequests(ctx)
			},
		},
		{
			Name:     jobTeacherReminders,
			Schedule: scheduler.Schedule{Interval: interval},
			Run: func(ctx context.Context) (interface{}, error) {
				return reminders.Run(ctx)
			},
		},
	}
	for _, job := range list {
		if err := runner.Register(job); err != nil {
			return err
		}
	}
	return nil
}
