package layer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "layer")

var (
	ErrLayerNotFound   = errors.New("layer not found")
	ErrFieldNotFound   = errors.New("field not found")
	ErrFeatureNotFound = errors.New("feature not found")
	ErrNotEditing      = errors.New("layer is not in editing mode")
	ErrTypeMismatch    = errors.New("attribute type mismatch")
)

type FieldType int

const (
	Int FieldType = iota + 1
	Double
	String
)

func (t FieldType) String() string {
	switch t {
	case Int:
		return "Int"
	case Double:
		return "Double"
	case String:
		return "String"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(s) {
	case "int", "integer":
		return Int, nil
	case "double", "real", "float":
		return Double, nil
	case "string", "text":
		return String, nil
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

type Field struct {
	Name string
	Type FieldType
}

type GeometryType string

const (
	Point      GeometryType = "Point"
	LineString GeometryType = "LineString"
	Polygon    GeometryType = "Polygon"
)

// GeometryTypeOf maps a geometry onto the layer geometry family it belongs to.
func GeometryTypeOf(g orb.Geometry) GeometryType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return Point
	case orb.LineString, orb.MultiLineString:
		return LineString
	case orb.Polygon, orb.MultiPolygon, orb.Ring:
		return Polygon
	}
	return ""
}

// Feature is one attribute row with its geometry. A missing or nil attribute is NULL.
type Feature struct {
	ID         int64
	Geometry   orb.Geometry
	Attributes map[string]any
}

func NewFeature(id int64, g orb.Geometry) *Feature {
	return &Feature{ID: id, Geometry: g, Attributes: make(map[string]any)}
}

func (f *Feature) Attribute(name string) any {
	return f.Attributes[name]
}

func (f *Feature) SetAttribute(name string, v any) {
	if f.Attributes == nil {
		f.Attributes = make(map[string]any)
	}
	f.Attributes[name] = v
}

func (f *Feature) Clone() *Feature {
	c := &Feature{ID: f.ID, Geometry: f.Geometry, Attributes: make(map[string]any, len(f.Attributes))}
	if f.Geometry != nil {
		c.Geometry = orb.Clone(f.Geometry)
	}
	for k, v := range f.Attributes {
		c.Attributes[k] = v
	}
	return c
}

// Journal receives features as they are committed.
type Journal interface {
	Append(l *Layer, features []*Feature) error
}

// Layer is an in-memory vector layer with an edit buffer.
type Layer struct {
	Name         string
	CRS          string
	GeometryType GeometryType

	fields   []Field
	features []*Feature
	index    map[int64]int
	nextID   int64

	editing bool
	pending []*Feature
	updated map[int64]*Feature
	journal Journal
}

func New(name string, geometryType GeometryType, crs string) *Layer {
	return &Layer{
		Name:         name,
		CRS:          crs,
		GeometryType: geometryType,
		index:        make(map[int64]int),
		nextID:       1,
	}
}

func (l *Layer) SetJournal(j Journal) {
	l.journal = j
}

func (l *Layer) Fields() []Field {
	return append([]Field(nil), l.fields...)
}

func (l *Layer) FieldNames() []string {
	return lo.Map(l.fields, func(f Field, _ int) string { return f.Name })
}

func (l *Layer) FieldIndex(name string) int {
	_, i, ok := lo.FindIndexOf(l.fields, func(f Field) bool { return f.Name == name })
	if !ok {
		return -1
	}
	return i
}

func (l *Layer) HasField(name string) bool {
	return l.FieldIndex(name) >= 0
}

// AddField appends a field unless one with the same name exists; it reports whether the
// schema changed.
func (l *Layer) AddField(f Field) bool {
	if l.HasField(f.Name) {
		return false
	}
	l.fields = append(l.fields, f)
	return true
}

func (l *Layer) AddFields(fs ...Field) int {
	added := 0
	for _, f := range fs {
		if l.AddField(f) {
			added++
		}
	}
	return added
}

// RequireFields returns ErrFieldNotFound naming the first missing field.
func (l *Layer) RequireFields(names ...string) error {
	for _, name := range names {
		if !l.HasField(name) {
			return fmt.Errorf("%w: %s in layer %s", ErrFieldNotFound, name, l.Name)
		}
	}
	return nil
}

// Features returns the committed features.
func (l *Layer) Features() []*Feature {
	return append([]*Feature(nil), l.features...)
}

func (l *Layer) FeatureCount() int {
	return len(l.features)
}

func (l *Layer) GetFeature(id int64) (*Feature, error) {
	i, ok := l.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d in layer %s", ErrFeatureNotFound, id, l.Name)
	}
	return l.features[i], nil
}

// Append writes features directly to the committed set, bypassing the edit buffer.
// A feature without an id (id <= 0) gets the next free one.
func (l *Layer) Append(fs ...*Feature) error {
	for _, f := range fs {
		if err := l.insert(f, f.ID > 0); err != nil {
			return err
		}
	}
	return nil
}

// appendStored keeps the id read from a store, 0 and negative ids included.
func (l *Layer) appendStored(f *Feature) error {
	return l.insert(f, true)
}

func (l *Layer) insert(f *Feature, keepID bool) error {
	if err := l.checkAttributes(f); err != nil {
		return err
	}
	l.assignID(f, keepID)
	l.index[f.ID] = len(l.features)
	l.features = append(l.features, f)
	return nil
}

// nextID始终大于已有的最大id
func (l *Layer) assignID(f *Feature, keepID bool) {
	_, dup := l.index[f.ID]
	if keepID && dup {
		log.Warnf("layer %s: duplicate feature id %d renumbered to %d", l.Name, f.ID, l.nextID)
	}
	if !keepID || dup {
		f.ID = l.nextID
	}
	if f.ID >= l.nextID {
		l.nextID = f.ID + 1
	}
}

func (l *Layer) checkAttributes(f *Feature) error {
	for name := range f.Attributes {
		if !l.HasField(name) {
			return fmt.Errorf("%w: %s in layer %s", ErrFieldNotFound, name, l.Name)
		}
	}
	return nil
}

func (l *Layer) StartEditing() {
	l.editing = true
}

func (l *Layer) IsEditing() bool {
	return l.editing
}

func (l *Layer) AddFeature(f *Feature) error {
	if !l.editing {
		return ErrNotEditing
	}
	if err := l.checkAttributes(f); err != nil {
		return err
	}
	l.pending = append(l.pending, f)
	return nil
}

func (l *Layer) UpdateFeature(f *Feature) error {
	if !l.editing {
		return ErrNotEditing
	}
	if _, ok := l.index[f.ID]; !ok {
		return fmt.Errorf("%w: %d in layer %s", ErrFeatureNotFound, f.ID, l.Name)
	}
	if err := l.checkAttributes(f); err != nil {
		return err
	}
	if l.updated == nil {
		l.updated = make(map[int64]*Feature)
	}
	l.updated[f.ID] = f
	return nil
}

// CommitChanges applies the edit buffer and leaves editing mode. Added features are
// handed to the journal after they are committed.
func (l *Layer) CommitChanges() error {
	if !l.editing {
		return ErrNotEditing
	}
	for id, f := range l.updated {
		l.features[l.index[id]] = f
	}
	added := l.pending
	if err := l.Append(added...); err != nil {
		return err
	}
	l.pending = nil
	l.updated = nil
	l.editing = false
	if l.journal != nil && len(added) > 0 {
		if err := l.journal.Append(l, added); err != nil {
			return fmt.Errorf("journal %s: %w", l.Name, err)
		}
	}
	return nil
}

func (l *Layer) RollBack() {
	l.pending = nil
	l.updated = nil
	l.editing = false
}

// Value reads an attribute, failing when the field is not part of the schema.
func (l *Layer) Value(f *Feature, name string) (any, error) {
	if !l.HasField(name) {
		return nil, fmt.Errorf("%w: %s in layer %s", ErrFieldNotFound, name, l.Name)
	}
	return f.Attributes[name], nil
}

// Float reads a numeric attribute; ok is false when the value is NULL. A non-numeric
// value is ErrTypeMismatch.
func (l *Layer) Float(f *Feature, name string) (v float64, ok bool, err error) {
	raw, err := l.Value(f, name)
	if err != nil || raw == nil {
		return 0, false, err
	}
	v, ok = ToFloat(raw)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s of feature %d in layer %s is %v", ErrTypeMismatch, name, f.ID, l.Name, raw)
	}
	return v, true, nil
}

// Int reads an integer attribute; ok is false when the value is NULL.
func (l *Layer) Int(f *Feature, name string) (v int64, ok bool, err error) {
	raw, err := l.Value(f, name)
	if err != nil || raw == nil {
		return 0, false, err
	}
	v, ok = ToInt(raw)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s of feature %d in layer %s is %v", ErrTypeMismatch, name, f.ID, l.Name, raw)
	}
	return v, true, nil
}

// String reads a text attribute; ok is false when the value is NULL.
func (l *Layer) String(f *Feature, name string) (v string, ok bool, err error) {
	raw, err := l.Value(f, name)
	if err != nil {
		return "", false, err
	}
	switch x := raw.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	default:
		return fmt.Sprint(x), true, nil
	}
}

func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case *float64:
		if x == nil {
			return 0, false
		}
		return *x, true
	}
	return 0, false
}

func ToInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return integral(x)
	case float32:
		return integral(float64(x))
	}
	return 0, false
}

// 小数不截断
func integral(x float64) (int64, bool) {
	if x != math.Trunc(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return int64(x), true
}

// Normalize converts a decoded value to the Go type used for the field type.
func Normalize(t FieldType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case Int:
		if i, ok := ToInt(v); ok {
			return i
		}
	case Double:
		if f, ok := ToFloat(v); ok {
			return f
		}
	case String:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return v
}
