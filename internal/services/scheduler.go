package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/metrics"
)

// Task is one scheduled unit of work.
type Task struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs Tasks on cron specs in Stockholm time. A run that is still
// going when the next one is due is skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  logrus.FieldLogger
}

func NewScheduler(ctx context.Context, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(stockholm),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		ctx: ctx,
		log: log,
	}
}

// cronLogger routes cron's own messages (recovered panics, skipped runs)
// through logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) fields(keysAndValues []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(l.fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithError(err).WithFields(l.fields(keysAndValues)).Error("cron: " + msg)
}

func (s *Scheduler) Add(t Task) error {
	_, err := s.cron.AddFunc(t.Spec, func() { s.run(t) })
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"task": t.Name, "spec": t.Spec}).Info("task scheduled")
	return nil
}

func (s *Scheduler) run(t Task) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	start := time.Now()
	err := t.Run(ctx)
	elapsed := time.Since(start)
	metrics.RecordJobRun(t.Name, elapsed, err == nil)

	entry := s.log.WithFields(logrus.Fields{"task": t.Name, "duration": elapsed.String()})
	if err != nil {
		entry.WithError(err).Error("scheduled task failed")
		return
	}
	entry.Info("scheduled task finished")
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running ones.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// DefaultTasks wires the news refresh, the saved-search digests and the
// storage usage log.
func DefaultTasks(news *NewsService, matcher *MatcherService, storage *StorageService) []Task {
	return []Task{
		{Name: "hr_news", Spec: "0 * * * *", Timeout: 2 * time.Minute, Run: func(ctx context.Context) error {
			_, err := news.Fetch(ctx)
			return err
		}},
		{Name: "saved_search_digest", Spec: "0 7 * * *", Run: func(ctx context.Context) error {
			_, err := matcher.SendDigests(ctx)
			return err
		}},
		{Name: "storage_stats", Spec: "0 3 * * *", Run: storage.LogStats},
	}
}
