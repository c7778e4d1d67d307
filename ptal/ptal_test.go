package ptal_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/layer"
	"git.fiblab.net/sim/ptal/metrics"
	"git.fiblab.net/sim/ptal/processing"
	"git.fiblab.net/sim/ptal/ptal"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string]*layer.Layer

func (s memStore) Load(_ context.Context, name string) (*layer.Layer, error) {
	if l, ok := s[name]; ok {
		return l, nil
	}
	return nil, layer.ErrLayerNotFound
}

func (s memStore) Save(_ context.Context, l *layer.Layer) error {
	s[l.Name] = l
	return nil
}

func pointLayer(name string, fields ...layer.Field) *layer.Layer {
	l := layer.New(name, layer.Point, "EPSG:28992")
	l.AddFields(fields...)
	return l
}

func feature(g orb.Geometry, attrs map[string]any) *layer.Feature {
	f := layer.NewFeature(0, g)
	for k, v := range attrs {
		f.SetAttribute(k, v)
	}
	return f
}

// 道路 0,0 -> 0,500 -> 2000,500 -> 2000,-10
func fixture(t *testing.T) memStore {
	poi := pointLayer("POI", layer.Field{Name: "fid", Type: layer.Int})
	require.NoError(t, poi.Append(
		feature(orb.Point{0, 0}, map[string]any{"fid": int64(7)}),
		feature(orb.Point{math.NaN(), 0}, map[string]any{"fid": int64(8)}),
		feature(orb.Point{100000, 0}, map[string]any{"fid": int64(9)}),
	))

	roads := layer.New("hartlijn_fiets_voet", layer.LineString, "EPSG:28992")
	roads.AddField(layer.Field{Name: "name", Type: layer.String})
	require.NoError(t, roads.Append(
		feature(orb.LineString{{0, 0}, {0, 500}, {2000, 500}, {2000, -10}}, map[string]any{"name": "fietspad"}),
	))

	saps := pointLayer("Lelylijn_sc1",
		layer.Field{Name: "fid", Type: layer.Int},
		layer.Field{Name: "route_type", Type: layer.String},
		layer.Field{Name: "frequency", Type: layer.Double},
	)
	require.NoError(t, saps.Append(
		// 网络距离2999
		feature(orb.Point{2000, 1}, map[string]any{"fid": int64(1), "route_type": "trein", "frequency": 4.0}),
		feature(orb.Point{2000, 1}, map[string]any{"fid": int64(2), "route_type": "trein", "frequency": 2.0}),
		// 网络距离3001
		feature(orb.Point{2000, -1}, map[string]any{"fid": int64(3), "route_type": "trein", "frequency": 4.0}),
		// 离网络太远
		feature(orb.Point{100, 100}, map[string]any{"fid": int64(4), "route_type": "bus", "frequency": 4.0}),
		// 缓冲区外
		feature(orb.Point{5000, 0}, map[string]any{"fid": int64(5), "route_type": "bus", "frequency": 4.0}),
	))
	return memStore{poi.Name: poi, roads.Name: roads, saps.Name: saps}
}

func TestRelationshipTask(t *testing.T) {
	ctx := context.Background()
	store := fixture(t)
	project := layer.NewProject(store)
	cfg := config.Default()

	task, err := ptal.NewRelationshipTask(ctx, project, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"POI_ID", "Distance", "fid", "route_type", "frequency"}, task.Output().FieldNames())

	searches := testutil.ToFloat64(metrics.PathSearches)
	dropped := testutil.ToFloat64(metrics.DroppedSAPs)

	h := processing.NewTaskManager().AddTask(ctx, task)
	require.True(t, h.Wait())
	assert.Equal(t, 100.0, h.Progress())

	out, err := project.MapLayerByName(ctx, "POI_SAP_Relationships")
	require.NoError(t, err)
	assert.Same(t, task.Output(), out)
	require.Equal(t, 2, out.FeatureCount())
	for _, f := range out.Features() {
		assert.Equal(t, int64(7), f.Attribute("POI_ID"))
		assert.InDelta(t, 2999, f.Attribute("Distance").(float64), 1e-9)
		assert.Equal(t, "trein", f.Attribute("route_type"))
		assert.Equal(t, orb.Point{0, 0}, f.Geometry)
	}
	assert.ElementsMatch(t, []any{int64(1), int64(2)}, lo.Map(out.Features(), func(f *layer.Feature, _ int) any {
		return f.Attribute("fid")
	}))

	// 相同几何的SAP只计算一次最短路
	assert.Equal(t, searches+2, testutil.ToFloat64(metrics.PathSearches))
	assert.Equal(t, dropped+1, testutil.ToFloat64(metrics.DroppedSAPs))

	require.NoError(t, project.Save(ctx))
	assert.Contains(t, store, "POI_SAP_Relationships")
}

func TestRelationshipTaskCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	project := layer.NewProject(fixture(t))
	task, err := ptal.NewRelationshipTask(context.Background(), project, config.Default())
	require.NoError(t, err)

	assert.False(t, processing.NewTaskManager().AddTask(ctx, task).Wait())
	assert.Equal(t, 0, task.Output().FeatureCount())
	assert.Empty(t, project.Outputs())
}

func TestRelationshipTaskMissingLayer(t *testing.T) {
	store := fixture(t)
	delete(store, "Lelylijn_sc1")
	_, err := ptal.NewRelationshipTask(context.Background(), layer.NewProject(store), config.Default())
	assert.ErrorIs(t, err, layer.ErrLayerNotFound)
}

func TestAccessPolicy(t *testing.T) {
	p := ptal.NewAccessPolicy(config.Default().Access)
	f := func(v float64) *float64 { return &v }

	a := p.Compute("bus", f(800), f(4))
	assert.Equal(t, "walking", a.Mode)
	assert.Equal(t, 10.0, *a.TT)
	assert.Equal(t, 7.5, *a.SWT)
	assert.Equal(t, 9.5, *a.AWT)
	assert.Equal(t, 19.5, *a.TAT)
	assert.InDelta(t, 30/19.5, *a.EDF, 1e-12)

	// 800米处仍为步行
	a = p.Compute("Trein", f(800), f(4))
	assert.Equal(t, "walking", a.Mode)
	assert.Equal(t, 10.0, *a.TT)
	assert.Equal(t, 8.25, *a.AWT)

	a = p.Compute("trein", f(801), f(4))
	assert.Equal(t, "cycling", a.Mode)
	assert.InDelta(t, 801.0/300, *a.TT, 1e-12)

	a = p.Compute("bus", f(400), f(0))
	assert.Equal(t, 5.0, *a.TT)
	assert.Nil(t, a.SWT)
	assert.Nil(t, a.AWT)
	assert.Nil(t, a.TAT)
	assert.Nil(t, a.EDF)

	a = p.Compute("metro", f(400), f(4))
	assert.Equal(t, "", a.Mode)
	assert.Nil(t, a.TT)
	assert.Equal(t, 9.5, *a.AWT)
	assert.Nil(t, a.TAT)

	a = p.Compute("trein", nil, nil)
	assert.Equal(t, "", a.Mode)
	assert.Nil(t, a.TT)
	assert.Nil(t, a.SWT)

	a = p.Compute("bus", f(0), f(4))
	assert.Equal(t, 0.0, *a.TT)
	assert.Equal(t, 9.5, *a.TAT)
}

func relationshipLayer(t *testing.T) *layer.Layer {
	l := pointLayer("POI_SAP_Relationships",
		layer.Field{Name: "POI_ID", Type: layer.Int},
		layer.Field{Name: "Distance", Type: layer.Double},
		layer.Field{Name: "route_type", Type: layer.String},
		layer.Field{Name: "frequency", Type: layer.Double},
		layer.Field{Name: "transport_mode", Type: layer.String},
	)
	require.NoError(t, l.Append(
		feature(orb.Point{0, 0}, map[string]any{"POI_ID": int64(1), "Distance": 800.0, "route_type": "bus", "frequency": 4.0}),
		feature(orb.Point{0, 0}, map[string]any{"POI_ID": int64(1), "Distance": 1600.0, "route_type": "trein", "frequency": 0.0}),
		feature(orb.Point{0, 0}, map[string]any{"POI_ID": int64(1), "Distance": 100.0, "route_type": nil, "frequency": nil, "transport_mode": "lopen"}),
	))
	return l
}

func TestUpdateAttributes(t *testing.T) {
	ctx := context.Background()
	rel := relationshipLayer(t)
	project := layer.NewProject(memStore{rel.Name: rel})
	cfg := config.Default()

	require.NoError(t, ptal.UpdateAttributes(ctx, project, cfg))
	require.NoError(t, ptal.UpdateAttributes(ctx, project, cfg))
	assert.Equal(t, []string{"POI_ID", "Distance", "route_type", "frequency", "transport_mode", "TT", "SWT", "AWT", "TAT", "EDF"}, rel.FieldNames())
	assert.Equal(t, []string{rel.Name}, project.Outputs())

	rows := rel.Features()
	assert.Equal(t, "walking", rows[0].Attribute("transport_mode"))
	assert.Equal(t, 19.5, rows[0].Attribute("TAT"))

	assert.Equal(t, "cycling", rows[1].Attribute("transport_mode"))
	assert.Equal(t, 1600.0/300, rows[1].Attribute("TT"))
	assert.Nil(t, rows[1].Attribute("SWT"))
	assert.Nil(t, rows[1].Attribute("EDF"))

	// 未定义的模式保留原值
	assert.Equal(t, "lopen", rows[2].Attribute("transport_mode"))
	assert.Nil(t, rows[2].Attribute("TT"))
}

func TestUpdateAttributesMissingField(t *testing.T) {
	rel := pointLayer("POI_SAP_Relationships", layer.Field{Name: "Distance", Type: layer.Double})
	project := layer.NewProject(memStore{rel.Name: rel})
	err := ptal.UpdateAttributes(context.Background(), project, config.Default())
	assert.ErrorIs(t, err, layer.ErrFieldNotFound)

	err = ptal.UpdateAttributes(context.Background(), layer.NewProject(memStore{}), config.Default())
	assert.ErrorIs(t, err, layer.ErrLayerNotFound)
}

func TestCalculateAI(t *testing.T) {
	assert.Equal(t, 0.0, ptal.CalculateAI(nil))
	assert.Equal(t, 3.5, ptal.CalculateAI([]float64{3.5}))
	assert.Equal(t, 13.0, ptal.CalculateAI([]float64{10, 4, 2}))
	assert.Equal(t, 13.0, ptal.CalculateAI([]float64{2, 10, 4}))
}

func TestBuildScoreLayer(t *testing.T) {
	ctx := context.Background()
	poi := pointLayer("POI", layer.Field{Name: "fid", Type: layer.Int})
	require.NoError(t, poi.Append(
		feature(orb.Point{1, 1}, map[string]any{"fid": int64(1)}),
		feature(orb.Point{2, 2}, map[string]any{"fid": int64(2)}),
	))
	rel := pointLayer("POI_SAP_Relationships",
		layer.Field{Name: "POI_ID", Type: layer.Int},
		layer.Field{Name: "route_type", Type: layer.String},
		layer.Field{Name: "EDF", Type: layer.Double},
	)
	row := func(id int64, rt any, edf any) *layer.Feature {
		return feature(orb.Point{}, map[string]any{"POI_ID": id, "route_type": rt, "EDF": edf})
	}
	require.NoError(t, rel.Append(
		row(1, "bus", 10.0),
		row(1, "Bus", 4.0),
		row(1, "bus", 2.0),
		row(1, "bus", nil),
		row(1, "trein", 5.0),
		row(1, "metro", 100.0),
		row(1, nil, 100.0),
	))
	project := layer.NewProject(memStore{poi.Name: poi, rel.Name: rel})

	out, err := ptal.BuildScoreLayer(ctx, project, config.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"POI_ID", "AI_bus", "AI_trein", "PTAI"}, out.FieldNames())
	assert.Equal(t, []string{"PTAL"}, project.Outputs())
	require.Equal(t, 2, out.FeatureCount())

	rows := out.Features()
	assert.Equal(t, int64(1), rows[0].Attribute("POI_ID"))
	assert.Equal(t, 13.0, rows[0].Attribute("AI_bus"))
	assert.Equal(t, 5.0, rows[0].Attribute("AI_trein"))
	assert.Equal(t, 18.0, rows[0].Attribute("PTAI"))
	assert.Equal(t, orb.Point{1, 1}, rows[0].Geometry)

	// 没有关系的POI也输出一行
	assert.Equal(t, int64(2), rows[1].Attribute("POI_ID"))
	assert.Equal(t, 0.0, rows[1].Attribute("AI_bus"))
	assert.Equal(t, 0.0, rows[1].Attribute("AI_trein"))
	assert.Equal(t, 0.0, rows[1].Attribute("PTAI"))
}

func TestUpdateAttributesZeroBasedIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	data := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":0,"geometry":{"type":"Point","coordinates":[0,0]},"properties":{"POI_ID":1,"Distance":400.5,"route_type":"bus","frequency":4}},
		{"type":"Feature","id":1,"geometry":{"type":"Point","coordinates":[0,0]},"properties":{"POI_ID":1,"Distance":900.5,"route_type":"trein","frequency":2}}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "POI_SAP_Relationships.geojson"), []byte(data), 0o644))
	project := layer.NewProject(layer.NewDirStore(dir))

	require.NoError(t, ptal.UpdateAttributes(ctx, project, config.Default()))
	rel, err := project.MapLayerByName(ctx, "POI_SAP_Relationships")
	require.NoError(t, err)
	rows := rel.Features()
	require.Len(t, rows, 2)
	assert.Equal(t, []int64{0, 1}, []int64{rows[0].ID, rows[1].ID})

	busTAT := 400.5/80 + 7.5 + 2
	assert.Equal(t, "walking", rows[0].Attribute("transport_mode"))
	assert.InDelta(t, 400.5/80, rows[0].Attribute("TT").(float64), 1e-12)
	assert.InDelta(t, 30/busTAT, rows[0].Attribute("EDF").(float64), 1e-12)

	treinTAT := 900.5/300 + 15 + 0.75
	assert.Equal(t, "cycling", rows[1].Attribute("transport_mode"))
	assert.InDelta(t, 30/treinTAT, rows[1].Attribute("EDF").(float64), 1e-12)
}

func TestBuildScoreLayerTypeMismatch(t *testing.T) {
	poi := pointLayer("POI", layer.Field{Name: "fid", Type: layer.Int})
	require.NoError(t, poi.Append(feature(orb.Point{1, 1}, map[string]any{"fid": int64(1)})))
	cases := []map[string]any{
		{"POI_ID": "een", "route_type": "bus", "EDF": 1.0},
		{"POI_ID": 1.5, "route_type": "bus", "EDF": 1.0},
		{"POI_ID": int64(1), "route_type": "bus", "EDF": "hoog"},
	}
	for i, attrs := range cases {
		rel := pointLayer("POI_SAP_Relationships",
			layer.Field{Name: "POI_ID", Type: layer.Int},
			layer.Field{Name: "route_type", Type: layer.String},
			layer.Field{Name: "EDF", Type: layer.Double},
		)
		require.NoError(t, rel.Append(feature(orb.Point{}, attrs)))
		project := layer.NewProject(memStore{poi.Name: poi, rel.Name: rel})
		_, err := ptal.BuildScoreLayer(context.Background(), project, config.Default())
		assert.ErrorIs(t, err, layer.ErrTypeMismatch, "case %d", i)
		assert.Empty(t, project.Outputs(), "case %d", i)
	}
}
