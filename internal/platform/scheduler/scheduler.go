package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job はcron形式のスケジュールで繰り返し実行する処理
type Job struct {
	name     string
	schedule string
	run      func(context.Context) error
	logger   *slog.Logger
}

// NewJob は新しい Job を作成する。schedule は標準の5フィールド形式または "@every 1h" などの記述子。
func NewJob(name, schedule string, run func(context.Context) error, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{name: name, schedule: schedule, run: run, logger: logger}
}

// Run はスケジューラーを起動し、ctx がキャンセルされるまでブロックする。
// 実行中のジョブがあれば終了を待ってから戻る。個々の実行の失敗はログに残して続行する。
func (j *Job) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		if ctx.Err() != nil {
			return
		}
		j.logger.Info("scheduled job started", "job", j.name)
		if err := j.run(ctx); err != nil {
			j.logger.Error("scheduled job failed", "job", j.name, "error", err)
			return
		}
		j.logger.Info("scheduled job completed", "job", j.name)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", j.schedule, err)
	}

	c.Start()
	j.logger.Info("scheduler started", "job", j.name, "schedule", j.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("scheduler stopped", "job", j.name)
	return nil
}
