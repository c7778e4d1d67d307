// Package isochrone generates one concave hull polygon per network line around the
// service access points lying on it.
package isochrone

import (
	"time"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/layer"
	"git.fiblab.net/sim/ptal/metrics"
	"git.fiblab.net/sim/ptal/processing"
	"git.fiblab.net/sim/ptal/processing/native"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "isochrone")

const (
	INPUT_NETWORK = "INPUT_NETWORK"
	INPUT_SAPS    = "INPUT_SAPS"
	ALPHA         = "ALPHA"
	OUTPUT        = "OUTPUT"

	FIELD_POINT_COUNT = "point_count"

	NAME         = "generateisochrones"
	NAME_COUNTED = "generateisochronescounted"
)

// Generator is the isochrone algorithm. The counted variant adds the number of hull
// points to every polygon and waits Throttle after each line.
type Generator struct {
	name         string
	displayName  string
	defaultAlpha float64
	counted      bool
	Throttle     time.Duration
}

func NewGenerator() *Generator {
	return &Generator{
		name:         NAME,
		displayName:  "Generate Isochrones from Network",
		defaultAlpha: 0.3,
	}
}

func NewCountedGenerator(throttle time.Duration) *Generator {
	return &Generator{
		name:         NAME_COUNTED,
		displayName:  "Generate Isochrones from Network (with point count)",
		defaultAlpha: 0.05,
		counted:      true,
		Throttle:     throttle,
	}
}

// Register adds the generators and the primitives they chain to r.
func Register(r *processing.Registry, cfg config.Isochrone) error {
	if err := native.Register(r, cfg.ExtractTolerance); err != nil {
		return err
	}
	if err := r.Register(NewGenerator()); err != nil {
		return err
	}
	return r.Register(NewCountedGenerator(time.Duration(cfg.ThrottleMS) * time.Millisecond))
}

func (g *Generator) Descriptor() processing.Descriptor {
	return processing.Descriptor{
		Name:        g.name,
		DisplayName: g.displayName,
		Group:       "Network Analysis",
		GroupID:     "networkanalysis",
		ShortHelp: "Creates isochrones by generating concave hulls around service access points " +
			"that intersect with each network line.",
		Parameters: []processing.ParameterDefinition{
			processing.NewFeatureSource(INPUT_NETWORK, "Network Lines Layer", layer.LineString),
			processing.NewFeatureSource(INPUT_SAPS, "Service Access Points Layer", layer.Point),
			processing.NewNumber(ALPHA, "Concave Hull Alpha (0.0-1.0)", g.defaultAlpha, 0, 1),
			processing.NewFeatureSink(OUTPUT, "Output Isochrones"),
		},
	}
}

func (g *Generator) Process(pctx *processing.Context, params processing.Parameters, fb *processing.Feedback) (map[string]any, error) {
	d := g.Descriptor()
	if pctx == nil || pctx.Registry == nil {
		return nil, &processing.ProcessingError{Algorithm: g.name, Msg: "no algorithm registry to run against"}
	}
	network, err := processing.ParameterAsSource(fb.Context(), pctx, d, params, INPUT_NETWORK)
	if err != nil {
		return nil, err
	}
	saps, err := processing.ParameterAsSource(fb.Context(), pctx, d, params, INPUT_SAPS)
	if err != nil {
		return nil, err
	}
	alpha, err := processing.ParameterAsDouble(d, params, ALPHA)
	if err != nil {
		return nil, err
	}
	fields := network.Fields()
	if g.counted {
		fields = append(fields, layer.Field{Name: FIELD_POINT_COUNT, Type: layer.Int})
	}
	sink, err := processing.ParameterAsSink(d, params, OUTPUT, fields, layer.Polygon, network.CRS)
	if err != nil {
		return nil, err
	}

	lines := network.Features()
	total := 0.0
	if len(lines) > 0 {
		total = 100.0 / float64(len(lines))
	}
	for current, line := range lines {
		if fb.IsCanceled() {
			break
		}
		fb.SetProgress(float64(int(float64(current) * total)))

		// 单要素临时图层
		temp := layer.New("temp", layer.LineString, network.CRS)
		temp.AddFields(network.Fields()...)
		if err := temp.Append(line.Clone()); err != nil {
			return nil, err
		}
		res, err := pctx.Registry.Run(pctx, native.EXTRACT_BY_LOCATION, processing.Parameters{
			"INPUT":     saps,
			"INTERSECT": temp,
			"OUTPUT":    "memory:",
		}, fb)
		if err != nil {
			return nil, err
		}
		extracted := res["OUTPUT"].(*layer.Layer)

		if extracted.FeatureCount() > 2 {
			res, err = pctx.Registry.Run(pctx, native.CONCAVE_HULL, processing.Parameters{
				"INPUT":  extracted,
				"ALPHA":  alpha,
				"OUTPUT": "memory:",
			}, fb)
			if err != nil {
				return nil, err
			}
			if hulls := res["OUTPUT"].(*layer.Layer); hulls.FeatureCount() > 0 {
				out := line.Clone()
				out.ID = 0
				out.Geometry = hulls.Features()[0].Geometry
				if g.counted {
					out.SetAttribute(FIELD_POINT_COUNT, int64(extracted.FeatureCount()))
				}
				if err := sink.Append(out); err != nil {
					return nil, err
				}
				metrics.Isochrones.Inc()
			}
		}

		if g.counted && g.Throttle > 0 {
			select {
			case <-fb.Context().Done():
			case <-time.After(g.Throttle):
			}
		}
	}
	if pctx.Project != nil {
		pctx.Project.AddMapLayer(sink)
	}
	log.Infof("%s: %d isochrones from %d network lines", g.name, sink.FeatureCount(), len(lines))
	return map[string]any{OUTPUT: sink.Name}, nil
}
