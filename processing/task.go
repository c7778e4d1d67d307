package processing

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Task is a unit of background work. Run reports success; Finished is called with that
// result once Run returns.
type Task interface {
	Description() string
	Run(fb *Feedback) bool
	Finished(ok bool)
}

type TaskHandle struct {
	id     uint64
	task   Task
	fb     *Feedback
	cancel context.CancelFunc
	done   chan struct{}
	ok     bool
}

// Wait blocks until the task has finished and returns its result.
func (h *TaskHandle) Wait() bool {
	<-h.done
	return h.ok
}

func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

func (h *TaskHandle) Cancel() {
	h.cancel()
}

func (h *TaskHandle) Description() string {
	return h.task.Description()
}

func (h *TaskHandle) Progress() float64 {
	return h.fb.Progress()
}

// TaskManager runs each task in its own goroutine and tracks the running ones.
type TaskManager struct {
	wg     sync.WaitGroup
	nextID atomic.Uint64
	// 运行中的任务，任务goroutine写入和删除，调用方并发读取
	running *xsync.MapOf[uint64, *TaskHandle]
}

func NewTaskManager() *TaskManager {
	return &TaskManager{running: xsync.NewMapOf[uint64, *TaskHandle]()}
}

func (m *TaskManager) AddTask(ctx context.Context, t Task) *TaskHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &TaskHandle{
		id:     m.nextID.Add(1),
		task:   t,
		fb:     NewFeedback(ctx, t.Description()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.running.Store(h.id, h)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer m.running.Delete(h.id)
		defer cancel()
		h.ok = runTask(t, h.fb)
		if h.ok {
			log.Infof("task %s finished", t.Description())
		} else {
			log.Warnf("task %s failed", t.Description())
		}
		t.Finished(h.ok)
	}()
	return h
}

// Active returns the running tasks in the order they were added.
func (m *TaskManager) Active() []*TaskHandle {
	var hs []*TaskHandle
	m.running.Range(func(_ uint64, h *TaskHandle) bool {
		hs = append(hs, h)
		return true
	})
	sort.Slice(hs, func(i, j int) bool { return hs[i].id < hs[j].id })
	return hs
}

// Wait blocks until every added task has finished.
func (m *TaskManager) Wait() {
	m.wg.Wait()
}

func runTask(t Task, fb *Feedback) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("task %s panicked: %v", t.Description(), r)
			ok = false
		}
	}()
	return t.Run(fb)
}
