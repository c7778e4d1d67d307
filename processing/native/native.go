// Package native registers the geometry primitives as catalog algorithms so that other
// algorithms can chain them by name.
package native

import (
	"git.fiblab.net/sim/ptal/geoproc"
	"git.fiblab.net/sim/ptal/layer"
	"git.fiblab.net/sim/ptal/processing"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "native")

const (
	EXTRACT_BY_LOCATION = "native:extractbylocation"
	CONCAVE_HULL        = "native:concavehull"
)

// Register adds the primitives to r. tolerance is the distance under which a point
// counts as intersecting a geometry.
func Register(r *processing.Registry, tolerance float64) error {
	if err := r.Register(&ExtractByLocation{Tolerance: tolerance}); err != nil {
		return err
	}
	return r.Register(&ConcaveHull{})
}

// ExtractByLocation copies the INPUT points intersecting any INTERSECT feature.
type ExtractByLocation struct {
	Tolerance float64
}

func (a *ExtractByLocation) Descriptor() processing.Descriptor {
	return processing.Descriptor{
		Name:        EXTRACT_BY_LOCATION,
		DisplayName: "Extract by location",
		Group:       "Vector selection",
		GroupID:     "vectorselection",
		ShortHelp:   "Extracts the points that intersect the features of another layer.",
		Parameters: []processing.ParameterDefinition{
			processing.NewFeatureSource("INPUT", "Extract features from", layer.Point),
			processing.NewFeatureSource("INTERSECT", "By comparing to the features from"),
			processing.NewFeatureSink("OUTPUT", "Extracted (location)"),
		},
	}
}

func (a *ExtractByLocation) Process(pctx *processing.Context, params processing.Parameters, fb *processing.Feedback) (map[string]any, error) {
	d := a.Descriptor()
	input, err := processing.ParameterAsSource(fb.Context(), pctx, d, params, "INPUT")
	if err != nil {
		return nil, err
	}
	intersect, err := processing.ParameterAsSource(fb.Context(), pctx, d, params, "INTERSECT")
	if err != nil {
		return nil, err
	}
	out, err := processing.ParameterAsSink(d, params, "OUTPUT", input.Fields(), input.GeometryType, input.CRS)
	if err != nil {
		return nil, err
	}
	points := input.Features()
	seen := make(map[*layer.Feature]bool)
	for _, g := range intersect.Features() {
		for _, p := range geoproc.ExtractByLocation(points, g.Geometry, a.Tolerance) {
			if seen[p] {
				continue
			}
			seen[p] = true
			if err := out.Append(p.Clone()); err != nil {
				return nil, err
			}
		}
	}
	return map[string]any{"OUTPUT": out}, nil
}

// ConcaveHull builds one polygon around all INPUT points.
type ConcaveHull struct{}

func (a *ConcaveHull) Descriptor() processing.Descriptor {
	return processing.Descriptor{
		Name:        CONCAVE_HULL,
		DisplayName: "Concave hull",
		Group:       "Vector geometry",
		GroupID:     "vectorgeometry",
		ShortHelp:   "Computes the concave hull of the input points.",
		Parameters: []processing.ParameterDefinition{
			processing.NewFeatureSource("INPUT", "Input point layer", layer.Point),
			processing.NewNumber("ALPHA", "Threshold (0-1, where 1 is equivalent with Convex Hull)", 0.3, 0, 1),
			processing.NewFeatureSink("OUTPUT", "Concave hull"),
		},
	}
}

func (a *ConcaveHull) Process(pctx *processing.Context, params processing.Parameters, fb *processing.Feedback) (map[string]any, error) {
	d := a.Descriptor()
	input, err := processing.ParameterAsSource(fb.Context(), pctx, d, params, "INPUT")
	if err != nil {
		return nil, err
	}
	alpha, err := processing.ParameterAsDouble(d, params, "ALPHA")
	if err != nil {
		return nil, err
	}
	out, err := processing.ParameterAsSink(d, params, "OUTPUT", nil, layer.Polygon, input.CRS)
	if err != nil {
		return nil, err
	}
	var points []orb.Point
	for _, f := range input.Features() {
		switch g := f.Geometry.(type) {
		case orb.Point:
			points = append(points, g)
		case orb.MultiPoint:
			points = append(points, g...)
		}
	}
	if hull, ok := geoproc.ConcaveHull(points, alpha); ok {
		if err := out.Append(layer.NewFeature(0, hull)); err != nil {
			return nil, err
		}
	} else {
		log.Debugf("no concave hull for %d points of %s", len(points), input.Name)
	}
	return map[string]any{"OUTPUT": out}, nil
}
