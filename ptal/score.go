package ptal

import (
	"context"
	"strings"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/layer"
	"github.com/samber/lo"
)

// CalculateAI weighs the best service fully and every other service by half.
func CalculateAI(edfs []float64) float64 {
	if len(edfs) == 0 {
		return 0
	}
	largest := lo.Max(edfs)
	return largest + 0.5*(lo.Sum(edfs)-largest)
}

type modeGroups struct {
	bus   []float64
	trein []float64
}

// BuildScoreLayer aggregates the relationship EDFs per POI and mode family into the
// PTAL layer, with one row for every POI, and registers it with the project.
func BuildScoreLayer(ctx context.Context, project *layer.Project, cfg config.Config) (*layer.Layer, error) {
	poi, err := project.MapLayerByName(ctx, cfg.Layers.POI)
	if err != nil {
		return nil, err
	}
	rel, err := project.MapLayerByName(ctx, cfg.Layers.Relationships)
	if err != nil {
		return nil, err
	}
	if err := rel.RequireFields(FIELD_POI_ID, cfg.Columns.RouteType, FIELD_EDF); err != nil {
		return nil, err
	}

	groups := make(map[int64]*modeGroups)
	for _, f := range rel.Features() {
		id, ok, err := rel.Int(f, FIELD_POI_ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		g, ok := groups[id]
		if !ok {
			g = &modeGroups{}
			groups[id] = g
		}
		routeType, _, err := rel.String(f, cfg.Columns.RouteType)
		if err != nil {
			return nil, err
		}
		edf, defined, err := rel.Float(f, FIELD_EDF)
		if err != nil {
			return nil, err
		}
		if !defined {
			continue
		}
		switch strings.ToLower(routeType) {
		case ROUTE_BUS:
			g.bus = append(g.bus, edf)
		case ROUTE_TREIN:
			g.trein = append(g.trein, edf)
		}
	}

	crs := lo.Ternary(poi.CRS != "", poi.CRS, cfg.CRS)
	out := layer.New(cfg.Layers.Score, layer.Point, crs)
	out.AddFields(
		layer.Field{Name: FIELD_POI_ID, Type: layer.Int},
		layer.Field{Name: FIELD_AI_BUS, Type: layer.Double},
		layer.Field{Name: FIELD_AI_TREIN, Type: layer.Double},
		layer.Field{Name: FIELD_PTAI, Type: layer.Double},
	)
	for _, f := range poi.Features() {
		id, err := poiID(poi, f, cfg.Columns.POIID)
		if err != nil {
			return nil, err
		}
		g := groups[id]
		if g == nil {
			g = &modeGroups{}
		}
		aiBus, aiTrein := CalculateAI(g.bus), CalculateAI(g.trein)
		row := layer.NewFeature(0, f.Geometry)
		row.SetAttribute(FIELD_POI_ID, id)
		row.SetAttribute(FIELD_AI_BUS, aiBus)
		row.SetAttribute(FIELD_AI_TREIN, aiTrein)
		row.SetAttribute(FIELD_PTAI, aiBus+aiTrein)
		if err := out.Append(row); err != nil {
			return nil, err
		}
	}
	project.AddMapLayer(out)
	log.Infof("PTAL layer created with columns POI_ID, AI_bus, AI_trein and PTAI for %d POIs", out.FeatureCount())
	return out, nil
}
