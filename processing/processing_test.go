package processing_test

import (
	"context"
	"testing"

	"git.fiblab.net/sim/ptal/layer"
	"git.fiblab.net/sim/ptal/processing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var desc = processing.Descriptor{
	Name:    "echo",
	GroupID: "test",
	Parameters: []processing.ParameterDefinition{
		processing.NewFeatureSource("INPUT", "Input", layer.LineString),
		processing.NewNumber("ALPHA", "Alpha", 0.3, 0, 1),
		processing.NewFeatureSink("OUTPUT", "Output"),
	},
}

type echo struct{}

func (echo) Descriptor() processing.Descriptor { return desc }

func (echo) Process(pctx *processing.Context, params processing.Parameters, fb *processing.Feedback) (map[string]any, error) {
	alpha, err := processing.ParameterAsDouble(desc, params, "ALPHA")
	if err != nil {
		return nil, err
	}
	return map[string]any{"ALPHA": alpha}, nil
}

func TestParameterAsSource(t *testing.T) {
	ctx := context.Background()
	lines := layer.New("roads", layer.LineString, "EPSG:28992")
	points := layer.New("stops", layer.Point, "EPSG:28992")
	project := layer.NewProject(nil)
	project.AddMapLayer(lines)
	project.AddMapLayer(points)
	pctx := &processing.Context{Project: project}

	l, err := processing.ParameterAsSource(ctx, pctx, desc, processing.Parameters{"INPUT": lines}, "INPUT")
	require.NoError(t, err)
	assert.Same(t, lines, l)

	l, err = processing.ParameterAsSource(ctx, pctx, desc, processing.Parameters{"INPUT": "roads"}, "INPUT")
	require.NoError(t, err)
	assert.Same(t, lines, l)

	var perr *processing.ProcessingError
	_, err = processing.ParameterAsSource(ctx, pctx, desc, processing.Parameters{}, "INPUT")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "INPUT", perr.Parameter)

	_, err = processing.ParameterAsSource(ctx, pctx, desc, processing.Parameters{"INPUT": "missing"}, "INPUT")
	assert.ErrorAs(t, err, &perr)

	_, err = processing.ParameterAsSource(ctx, pctx, desc, processing.Parameters{"INPUT": points}, "INPUT")
	assert.ErrorAs(t, err, &perr)

	_, err = processing.ParameterAsSource(ctx, pctx, desc, processing.Parameters{"ALPHA": 1}, "ALPHA")
	assert.ErrorAs(t, err, &perr)
}

func TestParameterAsDouble(t *testing.T) {
	v, err := processing.ParameterAsDouble(desc, processing.Parameters{}, "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)

	v, err = processing.ParameterAsDouble(desc, processing.Parameters{"ALPHA": 1}, "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	var perr *processing.ProcessingError
	_, err = processing.ParameterAsDouble(desc, processing.Parameters{"ALPHA": 1.5}, "ALPHA")
	assert.ErrorAs(t, err, &perr)
	_, err = processing.ParameterAsDouble(desc, processing.Parameters{"ALPHA": "x"}, "ALPHA")
	assert.ErrorAs(t, err, &perr)
}

func TestParameterAsSink(t *testing.T) {
	fields := []layer.Field{{Name: "name", Type: layer.String}}
	l, err := processing.ParameterAsSink(desc, processing.Parameters{"OUTPUT": "hulls"}, "OUTPUT", fields, layer.Polygon, "EPSG:28992")
	require.NoError(t, err)
	assert.Equal(t, "hulls", l.Name)
	assert.Equal(t, []string{"name"}, l.FieldNames())

	var perr *processing.ProcessingError
	_, err = processing.ParameterAsSink(desc, processing.Parameters{}, "OUTPUT", fields, layer.Polygon, "")
	assert.ErrorAs(t, err, &perr)
}

func TestRegistry(t *testing.T) {
	r := processing.NewRegistry()
	require.NoError(t, r.Register(echo{}))
	assert.Error(t, r.Register(echo{}))
	assert.Equal(t, []string{"echo"}, []string{r.Descriptors()[0].Name})

	out, err := r.Run(&processing.Context{Registry: r}, "echo", processing.Parameters{"ALPHA": 0.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out["ALPHA"])

	_, err = r.Run(nil, "nope", nil, nil)
	var perr *processing.ProcessingError
	assert.ErrorAs(t, err, &perr)
}

type stepTask struct {
	steps    int
	started  chan struct{}
	release  chan struct{}
	finished chan bool
	ran      int
}

func (t *stepTask) Description() string { return "steps" }

func (t *stepTask) Run(fb *processing.Feedback) bool {
	for i := 0; i < t.steps; i++ {
		if fb.IsCanceled() {
			return false
		}
		t.ran++
		fb.SetProgress(float64(i+1) * 100 / float64(t.steps))
		if i == 0 {
			close(t.started)
			<-t.release
		}
	}
	return true
}

func (t *stepTask) Finished(ok bool) { t.finished <- ok }

func newStepTask(steps int) *stepTask {
	return &stepTask{
		steps:    steps,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan bool, 1),
	}
}

func TestTaskManager(t *testing.T) {
	m := processing.NewTaskManager()
	task := newStepTask(4)
	h := m.AddTask(context.Background(), task)
	<-task.started
	close(task.release)
	assert.True(t, h.Wait())
	assert.True(t, <-task.finished)
	assert.Equal(t, 100.0, h.Progress())
	assert.Equal(t, 4, task.ran)
	m.Wait()
}

func TestTaskManagerCancel(t *testing.T) {
	m := processing.NewTaskManager()
	task := newStepTask(4)
	h := m.AddTask(context.Background(), task)
	<-task.started
	h.Cancel()
	close(task.release)
	assert.False(t, h.Wait())
	assert.False(t, <-task.finished)
	assert.Equal(t, 1, task.ran)
	assert.Equal(t, 25.0, h.Progress())
}

type panicTask struct{ finished chan bool }

func (t panicTask) Description() string          { return "panic" }
func (t panicTask) Run(*processing.Feedback) bool { panic("boom") }
func (t panicTask) Finished(ok bool)              { t.finished <- ok }

func TestTaskManagerRecoversPanic(t *testing.T) {
	m := processing.NewTaskManager()
	task := panicTask{finished: make(chan bool, 1)}
	assert.False(t, m.AddTask(context.Background(), task).Wait())
	assert.False(t, <-task.finished)
}

func TestTaskManagerActive(t *testing.T) {
	m := processing.NewTaskManager()
	first, second := newStepTask(2), newStepTask(2)
	h1 := m.AddTask(context.Background(), first)
	h2 := m.AddTask(context.Background(), second)
	<-first.started
	<-second.started

	active := m.Active()
	require.Len(t, active, 2)
	assert.Same(t, h1, active[0])
	assert.Same(t, h2, active[1])
	assert.Equal(t, "steps", active[0].Description())
	assert.Equal(t, 50.0, active[0].Progress())

	close(first.release)
	require.True(t, h1.Wait())
	assert.Equal(t, []*processing.TaskHandle{h2}, m.Active())

	close(second.release)
	m.Wait()
	assert.Empty(t, m.Active())
}
