package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mailcoach/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAddSkipsNonPositiveIntervals(t *testing.T) {
	s := New(zerolog.Nop())
	step := func(ctx context.Context) (int, error) { return 0, nil }

	s.Add("disabled", 0, step)
	s.Add("also-disabled", -5, step)
	s.Add("enabled", 60, step)

	assert.Len(t, s.jobs, 1)
	assert.Equal(t, "enabled", s.jobs[0].name)
	assert.Equal(t, 60*time.Second, s.jobs[0].interval)
}

func TestRunExecutesJobsOnceImmediately(t *testing.T) {
	s := New(zerolog.Nop())

	var ingests, processes atomic.Int32
	s.Add("ingest", 3600, func(ctx context.Context) (int, error) {
		ingests.Add(1)
		return 1, nil
	})
	s.Add("process", 3600, func(ctx context.Context) (int, error) {
		processes.Add(1)
		return 0, errors.New("transient failure")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, int32(1), ingests.Load())
	assert.Equal(t, int32(1), processes.Load())
}

func TestRunReturnsWithNoJobs(t *testing.T) {
	s := New(zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for an empty scheduler")
	}
}

func TestFromConfigSkipsNilSteps(t *testing.T) {
	cfg := &config.Config{
		IngestIntervalSeconds:  30,
		ProcessIntervalSeconds: 15,
		NotifyIntervalSeconds:  120,
	}
	step := func(ctx context.Context) (int, error) { return 0, nil }

	s := New(zerolog.Nop())
	FromConfig(s, cfg, nil, step, step)

	assert.Len(t, s.jobs, 2)
	assert.Equal(t, "process", s.jobs[0].name)
	assert.Equal(t, "notify", s.jobs[1].name)
}
