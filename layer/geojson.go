package layer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/paulmach/orb/geojson"
)

const geojsonExt = ".geojson"

// DirStore keeps one GeoJSON FeatureCollection per layer in a directory.
type DirStore struct {
	Dir string
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{Dir: dir}
}

func (s *DirStore) path(name string) string {
	return filepath.Join(s.Dir, name+geojsonExt)
}

func (s *DirStore) Load(ctx context.Context, name string) (*Layer, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode layer %s: %w", name, err)
	}
	return fromFeatureCollection(name, fc)
}

func (s *DirStore) Save(ctx context.Context, l *Layer) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	data, err := toFeatureCollection(l).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode layer %s: %w", l.Name, err)
	}
	return os.WriteFile(s.path(l.Name), data, 0o644)
}

type fieldMember struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func toFeatureCollection(l *Layer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range l.features {
		fc.Append(toGeoJSONFeature(l, f))
	}
	members := make([]fieldMember, 0, len(l.fields))
	for _, f := range l.fields {
		members = append(members, fieldMember{Name: f.Name, Type: f.Type.String()})
	}
	fc.ExtraMembers = geojson.Properties{
		"name":          l.Name,
		"crs":           l.CRS,
		"geometry_type": string(l.GeometryType),
		"fields":        members,
	}
	return fc
}

func toGeoJSONFeature(l *Layer, f *Feature) *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = f.ID
	for _, field := range l.fields {
		gf.Properties[field.Name] = f.Attributes[field.Name]
	}
	return gf
}

func fromFeatureCollection(name string, fc *geojson.FeatureCollection) (*Layer, error) {
	l := New(name, "", "")
	l.CRS = crsMember(fc.ExtraMembers["crs"])
	if gt, ok := fc.ExtraMembers["geometry_type"].(string); ok {
		l.GeometryType = GeometryType(gt)
	}
	if raw, ok := fc.ExtraMembers["fields"].([]any); ok {
		for _, r := range raw {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("layer %s: invalid field member %v", name, r)
			}
			fieldName, _ := m["name"].(string)
			typeName, _ := m["type"].(string)
			t, err := ParseFieldType(typeName)
			if err != nil {
				return nil, fmt.Errorf("layer %s field %s: %w", name, fieldName, err)
			}
			l.AddField(Field{Name: fieldName, Type: t})
		}
	} else {
		l.AddFields(inferFields(fc)...)
	}
	for _, gf := range fc.Features {
		f := NewFeature(0, gf.Geometry)
		id, stored := ToInt(gf.ID)
		f.ID = id
		if l.GeometryType == "" && gf.Geometry != nil {
			l.GeometryType = GeometryTypeOf(gf.Geometry)
		}
		for _, field := range l.fields {
			if v, ok := gf.Properties[field.Name]; ok {
				f.Attributes[field.Name] = Normalize(field.Type, v)
			}
		}
		// 文件中的id原样保留，包括0；缺失或非整数的id重新分配
		var err error
		if stored {
			err = l.appendStored(f)
		} else {
			err = l.Append(f)
		}
		if err != nil {
			return nil, err
		}
	}
	return l, nil
}

// crsMember accepts either a plain string or the legacy named-CRS object.
func crsMember(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if props, ok := x["properties"].(map[string]any); ok {
			if name, ok := props["name"].(string); ok {
				return name
			}
		}
	}
	return ""
}

// inferFields derives a schema from property values when a file carries none:
// whole numbers give Int, other numbers Double, anything else String.
func inferFields(fc *geojson.FeatureCollection) []Field {
	types := make(map[string]FieldType)
	for _, gf := range fc.Features {
		for k, v := range gf.Properties {
			var t FieldType
			switch x := v.(type) {
			case nil:
				continue
			case float64:
				t = Double
				if x == float64(int64(x)) {
					t = Int
				}
			default:
				t = String
			}
			if old, ok := types[k]; !ok || old == Int && t == Double {
				types[k] = t
			} else if old != t && !(old == Double && t == Int) {
				types[k] = String
			}
		}
	}
	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, Field{Name: name, Type: types[name]})
	}
	return fields
}

// GeoJSONSeqJournal appends committed features as newline-delimited GeoJSON.
type GeoJSONSeqJournal struct {
	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

func NewGeoJSONSeqJournal(w io.WriteCloser) *GeoJSONSeqJournal {
	return &GeoJSONSeqJournal{w: bufio.NewWriter(w), c: w}
}

func OpenGeoJSONSeqJournal(path string) (*GeoJSONSeqJournal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewGeoJSONSeqJournal(file), nil
}

func (j *GeoJSONSeqJournal) Append(l *Layer, features []*Feature) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, f := range features {
		data, err := toGeoJSONFeature(l, f).MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := j.w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return j.w.Flush()
}

func (j *GeoJSONSeqJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.c.Close()
}
