package processing

import (
	"context"
	"math"
	"sync/atomic"

	"git.fiblab.net/sim/ptal/metrics"
	"github.com/sirupsen/logrus"
)

// Feedback carries progress and cancellation between a running task and its owner.
// A nil Feedback is usable and never canceled.
type Feedback struct {
	ctx      context.Context
	name     string
	progress atomic.Uint64
	log      *logrus.Entry
}

func NewFeedback(ctx context.Context, name string) *Feedback {
	return &Feedback{
		ctx:  ctx,
		name: name,
		log:  log.WithField("task", name),
	}
}

func (fb *Feedback) Context() context.Context {
	if fb == nil {
		return context.Background()
	}
	return fb.ctx
}

// SetProgress records progress in percent.
func (fb *Feedback) SetProgress(percent float64) {
	if fb == nil {
		return
	}
	fb.progress.Store(math.Float64bits(percent))
	metrics.TaskProgress.WithLabelValues(fb.name).Set(percent)
}

func (fb *Feedback) Progress() float64 {
	if fb == nil {
		return 0
	}
	return math.Float64frombits(fb.progress.Load())
}

func (fb *Feedback) IsCanceled() bool {
	return fb != nil && fb.ctx.Err() != nil
}

func (fb *Feedback) PushInfo(format string, args ...any) {
	if fb == nil {
		log.Infof(format, args...)
		return
	}
	fb.log.Infof(format, args...)
}

func (fb *Feedback) PushDebug(format string, args ...any) {
	if fb == nil {
		log.Debugf(format, args...)
		return
	}
	fb.log.Debugf(format, args...)
}
