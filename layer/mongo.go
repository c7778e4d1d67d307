package layer

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/encoding/wkt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// 图层元数据所在的collection
const MONGO_LAYER_COLL = "layers"

type layerDocument struct {
	Name         string          `bson:"name"`
	CRS          string          `bson:"crs"`
	GeometryType string          `bson:"geometry_type"`
	Fields       []fieldDocument `bson:"fields"`
}

type fieldDocument struct {
	Name string `bson:"name"`
	Type string `bson:"type"`
}

type featureDocument struct {
	ID         int64  `bson:"id"`
	WKT        string `bson:"wkt"`
	Properties bson.M `bson:"properties"`
}

// MongoStore keeps each layer in its own collection, with schema metadata in
// the "layers" collection. Geometries are stored as WKT.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Load(ctx context.Context, name string) (*Layer, error) {
	var meta layerDocument
	err := s.db.Collection(MONGO_LAYER_COLL).FindOne(ctx, bson.M{"name": name}).Decode(&meta)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load layer %s metadata: %w", name, err)
	}
	meta.Name = name
	l, err := fromMetaDocument(meta)
	if err != nil {
		return nil, err
	}

	cur, err := s.db.Collection(name).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("load layer %s: %w", name, err)
	}
	var docs []featureDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode layer %s: %w", name, err)
	}
	for _, doc := range docs {
		f, err := l.fromDocument(doc)
		if err != nil {
			return nil, err
		}
		if err := l.appendStored(f); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Layer) fromDocument(doc featureDocument) (*Feature, error) {
	g, err := wkt.Unmarshal(doc.WKT)
	if err != nil {
		return nil, fmt.Errorf("layer %s feature %d: %w", l.Name, doc.ID, err)
	}
	f := NewFeature(doc.ID, g)
	for _, field := range l.fields {
		if v, ok := doc.Properties[field.Name]; ok {
			f.Attributes[field.Name] = Normalize(field.Type, v)
		}
	}
	return f, nil
}

func (l *Layer) toDocument(f *Feature) featureDocument {
	props := bson.M{}
	for _, field := range l.fields {
		props[field.Name] = f.Attributes[field.Name]
	}
	return featureDocument{ID: f.ID, WKT: wkt.MarshalString(f.Geometry), Properties: props}
}

func (l *Layer) metaDocument() layerDocument {
	meta := layerDocument{Name: l.Name, CRS: l.CRS, GeometryType: string(l.GeometryType)}
	for _, field := range l.fields {
		meta.Fields = append(meta.Fields, fieldDocument{Name: field.Name, Type: field.Type.String()})
	}
	return meta
}

// fromMetaDocument builds an empty layer with the stored schema.
func fromMetaDocument(meta layerDocument) (*Layer, error) {
	l := New(meta.Name, GeometryType(meta.GeometryType), meta.CRS)
	for _, fd := range meta.Fields {
		t, err := ParseFieldType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("layer %s field %s: %w", meta.Name, fd.Name, err)
		}
		l.AddField(Field{Name: fd.Name, Type: t})
	}
	return l, nil
}

// Save replaces the layer's collection and metadata.
func (s *MongoStore) Save(ctx context.Context, l *Layer) error {
	coll := s.db.Collection(l.Name)
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", l.Name, err)
	}
	docs := make([]any, 0, len(l.features))
	for _, f := range l.features {
		docs = append(docs, l.toDocument(f))
	}
	if len(docs) > 0 {
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert %s: %w", l.Name, err)
		}
	}
	_, err := s.db.Collection(MONGO_LAYER_COLL).ReplaceOne(
		ctx, bson.M{"name": l.Name}, l.metaDocument(), options.Replace().SetUpsert(true),
	)
	return err
}
