package ptal

import (
	"context"
	"fmt"
	"math"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/geoproc"
	"git.fiblab.net/sim/ptal/layer"
	"git.fiblab.net/sim/ptal/metrics"
	"git.fiblab.net/sim/ptal/network"
	"git.fiblab.net/sim/ptal/processing"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

type sapSource struct {
	layer  *layer.Layer
	radius float64
}

// RelationshipTask builds the POI_SAP_Relationships layer: one row per POI and SAP
// whose network distance is within the radius of the SAP layer.
type RelationshipTask struct {
	project *layer.Project
	cfg     config.Config

	poi    *layer.Layer
	roads  *layer.Layer
	saps   []sapSource
	output *layer.Layer

	total    int
	progress int
}

func NewRelationshipTask(ctx context.Context, project *layer.Project, cfg config.Config) (*RelationshipTask, error) {
	t := &RelationshipTask{project: project, cfg: cfg}
	var err error
	if t.poi, err = project.MapLayerByName(ctx, cfg.Layers.POI); err != nil {
		return nil, err
	}
	if t.roads, err = project.MapLayerByName(ctx, cfg.Layers.Network); err != nil {
		return nil, err
	}
	crs := lo.Ternary(t.poi.CRS != "", t.poi.CRS, cfg.CRS)
	t.output = layer.New(cfg.Layers.Relationships, layer.Point, crs)
	t.output.AddFields(
		layer.Field{Name: FIELD_POI_ID, Type: layer.Int},
		layer.Field{Name: FIELD_DISTANCE, Type: layer.Double},
	)
	for _, s := range cfg.Layers.SAPs {
		l, err := project.MapLayerByName(ctx, s.Name)
		if err != nil {
			return nil, err
		}
		t.output.AddFields(l.Fields()...)
		t.saps = append(t.saps, sapSource{layer: l, radius: s.Radius})
	}
	t.total = t.poi.FeatureCount() * len(t.saps)
	return t, nil
}

// Output is the relationship layer being built.
func (t *RelationshipTask) Output() *layer.Layer {
	return t.output
}

func (t *RelationshipTask) Description() string {
	return "Processing POIs"
}

func (t *RelationshipTask) Run(fb *processing.Feedback) bool {
	if err := t.run(fb); err != nil {
		log.Errorf("relationships: %v", err)
		t.output.RollBack()
		return false
	}
	return true
}

func (t *RelationshipTask) Finished(ok bool) {
	if ok {
		t.project.AddMapLayer(t.output)
	}
}

func (t *RelationshipTask) run(fb *processing.Feedback) error {
	roads := t.roads.Features()
	pois := t.poi.Features()
	t.output.StartEditing()
	for _, src := range t.saps {
		saps := src.layer.Features()
		for _, poi := range pois {
			if fb.IsCanceled() {
				return fb.Context().Err()
			}
			if err := t.processPOI(poi, saps, roads, src); err != nil {
				return fmt.Errorf("POI %d, SAP layer %s: %w", poi.ID, src.layer.Name, err)
			}
			// 每个POI处理完后提交
			if err := t.output.CommitChanges(); err != nil {
				return err
			}
			t.output.StartEditing()
			t.updateProgress(fb)
		}
	}
	return t.output.CommitChanges()
}

func (t *RelationshipTask) updateProgress(fb *processing.Feedback) {
	t.progress++
	metrics.ProcessedPOIs.Inc()
	fb.SetProgress(float64(t.progress) * 100 / float64(t.total))
	fb.PushDebug("progress %d/%d", t.progress, t.total)
}

func (t *RelationshipTask) processPOI(poi *layer.Feature, saps, roads []*layer.Feature, src sapSource) error {
	timer := prometheus.NewTimer(metrics.POIDuration)
	defer timer.ObserveDuration()

	p, ok := geoproc.IsValidPoint(poi.Geometry)
	if !ok {
		log.Debugf("skip POI %d with invalid geometry", poi.ID)
		return nil
	}
	id, err := poiID(t.poi, poi, t.cfg.Columns.POIID)
	if err != nil {
		return err
	}

	buffer := geoproc.Buffer(p, src.radius, t.cfg.Relationships.BufferSegments)
	clippedSAPs := geoproc.ClipPoints(saps, buffer)
	clippedRoads := geoproc.ClipLines(roads, buffer)
	lines := lo.FlatMap(clippedRoads, func(f *layer.Feature, _ int) []orb.LineString {
		return geoproc.Lines(f.Geometry)
	})

	// 0号连接点为POI，其余为SAP
	ties := make([]orb.Point, 0, len(clippedSAPs)+1)
	ties = append(ties, p)
	tieOf := make(map[*layer.Feature]int, len(clippedSAPs))
	for _, s := range clippedSAPs {
		tieOf[s] = len(ties)
		ties = append(ties, s.Geometry.(orb.Point))
	}
	net := network.Build(lines, ties)
	area := net.ServiceArea(0, src.radius)
	joined := geoproc.JoinByNearest(clippedSAPs, area, t.cfg.Relationships.JoinMaxDistance)

	distances := make(map[string]float64)
	for _, m := range joined {
		sap := m.Feature
		key := geoproc.WKT(sap.Geometry)
		distance, ok := distances[key]
		if !ok {
			distance = shortestDistance(net, 0, tieOf[sap])
			distances[key] = distance
		}
		if distance > src.radius {
			metrics.DroppedSAPs.Inc()
			log.Debugf("POI %d: drop SAP %d of %s at network distance %v", id, sap.ID, src.layer.Name, distance)
			continue
		}
		row := layer.NewFeature(0, p)
		row.SetAttribute(FIELD_POI_ID, id)
		row.SetAttribute(FIELD_DISTANCE, distance)
		for _, name := range src.layer.FieldNames() {
			if name == FIELD_POI_ID || name == FIELD_DISTANCE {
				continue
			}
			row.SetAttribute(name, sap.Attribute(name))
		}
		if err := t.output.AddFeature(row); err != nil {
			return err
		}
		metrics.Relationships.Inc()
	}
	return nil
}

// 最短路失败时返回正无穷，使该SAP被距离阈值过滤
func shortestDistance(net *network.Network, from, to int) float64 {
	d, err := net.ShortestDistance(from, to)
	if err != nil {
		log.Debugf("shortest path failed: %v", err)
		return math.Inf(0)
	}
	return d
}
