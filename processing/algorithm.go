// Package processing is the algorithm framework: typed parameter definitions, an
// algorithm catalog, progress feedback and the background task runner.
package processing

import (
	"context"
	"fmt"
	"sort"

	"git.fiblab.net/sim/ptal/layer"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "processing")

type ParameterKind int

const (
	FeatureSource ParameterKind = iota + 1
	Number
	FeatureSink
)

func (k ParameterKind) String() string {
	switch k {
	case FeatureSource:
		return "source"
	case Number:
		return "number"
	case FeatureSink:
		return "sink"
	}
	return fmt.Sprintf("ParameterKind(%d)", int(k))
}

type ParameterDefinition struct {
	Name        string
	Description string
	Kind        ParameterKind
	// FeatureSource可接受的几何类型，为空表示任意
	GeometryTypes []layer.GeometryType
	// Number
	Default    float64
	HasDefault bool
	Min, Max   float64
}

func NewFeatureSource(name, description string, types ...layer.GeometryType) ParameterDefinition {
	return ParameterDefinition{Name: name, Description: description, Kind: FeatureSource, GeometryTypes: types}
}

func NewNumber(name, description string, def, min, max float64) ParameterDefinition {
	return ParameterDefinition{
		Name: name, Description: description, Kind: Number,
		Default: def, HasDefault: true, Min: min, Max: max,
	}
}

func NewFeatureSink(name, description string) ParameterDefinition {
	return ParameterDefinition{Name: name, Description: description, Kind: FeatureSink}
}

// Descriptor identifies an algorithm in the catalog.
type Descriptor struct {
	Name        string
	DisplayName string
	Group       string
	GroupID     string
	ShortHelp   string
	Parameters  []ParameterDefinition
}

func (d Descriptor) Parameter(name string) (ParameterDefinition, bool) {
	return lo.Find(d.Parameters, func(p ParameterDefinition) bool { return p.Name == name })
}

// Parameters maps parameter names to values. A source is a *layer.Layer or the name of
// a project layer, a number is any numeric value, a sink is the output layer name.
type Parameters map[string]any

// Context is what an algorithm runs against.
type Context struct {
	Project  *layer.Project
	Registry *Registry
}

type Algorithm interface {
	Descriptor() Descriptor
	Process(pctx *Context, params Parameters, fb *Feedback) (map[string]any, error)
}

// ProcessingError is raised for invalid or missing algorithm inputs.
type ProcessingError struct {
	Algorithm string
	Parameter string
	Msg       string
}

func (e *ProcessingError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("%s: %s", e.Algorithm, e.Msg)
	}
	return fmt.Sprintf("%s: parameter %s: %s", e.Algorithm, e.Parameter, e.Msg)
}

func newError(d Descriptor, param, format string, args ...any) *ProcessingError {
	return &ProcessingError{Algorithm: d.Name, Parameter: param, Msg: fmt.Sprintf(format, args...)}
}

func definition(d Descriptor, name string, kind ParameterKind) (ParameterDefinition, error) {
	def, ok := d.Parameter(name)
	if !ok {
		return def, newError(d, name, "not defined")
	}
	if def.Kind != kind {
		return def, newError(d, name, "is a %s parameter, not a %s", def.Kind, kind)
	}
	return def, nil
}

// ParameterAsSource resolves a feature source parameter to a layer.
func ParameterAsSource(ctx context.Context, pctx *Context, d Descriptor, params Parameters, name string) (*layer.Layer, error) {
	def, err := definition(d, name, FeatureSource)
	if err != nil {
		return nil, err
	}
	var l *layer.Layer
	switch v := params[name].(type) {
	case nil:
		return nil, newError(d, name, "missing")
	case *layer.Layer:
		l = v
	case string:
		if pctx == nil || pctx.Project == nil {
			return nil, newError(d, name, "cannot resolve layer %q without a project", v)
		}
		if l, err = pctx.Project.MapLayerByName(ctx, v); err != nil {
			return nil, newError(d, name, "cannot resolve layer %q: %v", v, err)
		}
	default:
		return nil, newError(d, name, "unsupported value %T", v)
	}
	if len(def.GeometryTypes) > 0 && !lo.Contains(def.GeometryTypes, l.GeometryType) {
		return nil, newError(d, name, "layer %s has geometry type %s, want one of %v", l.Name, l.GeometryType, def.GeometryTypes)
	}
	return l, nil
}

// ParameterAsDouble reads a number parameter, falling back to its default.
func ParameterAsDouble(d Descriptor, params Parameters, name string) (float64, error) {
	def, err := definition(d, name, Number)
	if err != nil {
		return 0, err
	}
	raw, ok := params[name]
	if !ok || raw == nil {
		if !def.HasDefault {
			return 0, newError(d, name, "missing")
		}
		return def.Default, nil
	}
	v, ok := layer.ToFloat(raw)
	if !ok {
		return 0, newError(d, name, "not a number: %v", raw)
	}
	if v < def.Min || v > def.Max {
		return 0, newError(d, name, "%v out of range [%v, %v]", v, def.Min, def.Max)
	}
	return v, nil
}

// ParameterAsSink creates the output layer named by a sink parameter.
func ParameterAsSink(d Descriptor, params Parameters, name string, fields []layer.Field, gt layer.GeometryType, crs string) (*layer.Layer, error) {
	if _, err := definition(d, name, FeatureSink); err != nil {
		return nil, err
	}
	out, ok := params[name].(string)
	if !ok || out == "" {
		return nil, newError(d, name, "missing output layer name")
	}
	l := layer.New(out, gt, crs)
	l.AddFields(fields...)
	return l, nil
}

// Registry is the algorithm catalog.
type Registry struct {
	algorithms map[string]Algorithm
}

func NewRegistry() *Registry {
	return &Registry{algorithms: make(map[string]Algorithm)}
}

func (r *Registry) Register(a Algorithm) error {
	name := a.Descriptor().Name
	if _, ok := r.algorithms[name]; ok {
		return fmt.Errorf("algorithm %s already registered", name)
	}
	r.algorithms[name] = a
	return nil
}

func (r *Registry) Algorithm(name string) (Algorithm, bool) {
	a, ok := r.algorithms[name]
	return a, ok
}

// Descriptors lists the catalog ordered by group and name.
func (r *Registry) Descriptors() []Descriptor {
	ds := lo.Map(lo.Values(r.algorithms), func(a Algorithm, _ int) Descriptor { return a.Descriptor() })
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].GroupID != ds[j].GroupID {
			return ds[i].GroupID < ds[j].GroupID
		}
		return ds[i].Name < ds[j].Name
	})
	return ds
}

// Run executes an algorithm by name, as chained algorithms do.
func (r *Registry) Run(pctx *Context, name string, params Parameters, fb *Feedback) (map[string]any, error) {
	a, ok := r.Algorithm(name)
	if !ok {
		return nil, &ProcessingError{Algorithm: name, Msg: "algorithm not found"}
	}
	log.Debugf("running algorithm %s", name)
	return a.Process(pctx, params, fb)
}
