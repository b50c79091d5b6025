package services

import (
	"context"
	"errors"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronPanicsAreLoggedThroughLogrus(t *testing.T) {
	log, hook := test.NewNullLogger()
	wrapped := cron.Recover(cronLogger{log})(cron.FuncJob(func() { panic("digest exploded") }))

	require.NotPanics(t, wrapped.Run)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "cron: panic", entry.Message)
	assert.Contains(t, entry.Data[logrus.ErrorKey].(error).Error(), "digest exploded")
}

func TestCronLoggerFields(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	l := cronLogger{log}

	l.Info("skip", "job", "hr_news")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "hr_news", hook.LastEntry().Data["job"])

	l.Error(errors.New("nope"), "failed", "attempt", 2, "dangling")
	assert.Equal(t, 2, hook.LastEntry().Data["attempt"])
	assert.NotContains(t, hook.LastEntry().Data, "dangling")
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewScheduler(context.Background(), log)
	err := s.Add(Task{Name: "broken", Spec: "every tuesday", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)
}
