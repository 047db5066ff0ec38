package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Supervisor runs detached side effects. Each task gets its own deadline, is
// recovered if it panics, and has its error logged under the task name.
type Supervisor struct {
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	metrics *metrics.Collector
}

func NewSupervisor(timeout time.Duration, collector *metrics.Collector) *Supervisor {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{ctx: ctx, cancel: cancel, timeout: timeout, metrics: collector}
}

func (v *Supervisor) Go(name string, task func(ctx context.Context) error) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				v.metrics.DetachedFailure(name)
				log.Error().Str("task", name).Str("panic", fmt.Sprint(r)).Msg("Detached task panicked.")
			}
		}()

		ctx, cancel := context.WithTimeout(v.ctx, v.timeout)
		defer cancel()

		if err := task(ctx); err != nil {
			v.metrics.DetachedFailure(name)
			log.Warn().Err(err).Str("task", name).Msg("Detached task failed.")
		}
	}()
}

// Wait blocks until every task returned or the grace period ran out, in which
// case the remaining tasks get cancelled.
func (v *Supervisor) Wait(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		log.Warn().Msg("Detached tasks did not finish in time, cancelling...")
		v.cancel()
		<-done
	}
}
