package layer

import (
	"context"
	"fmt"
	"sync"
)

// Store loads and persists layers by name.
type Store interface {
	Load(ctx context.Context, name string) (*Layer, error)
	Save(ctx context.Context, l *Layer) error
}

// Project is the registry of the layers a run works on. Input layers are loaded
// lazily from the store; layers registered with AddMapLayer are written back on Save.
type Project struct {
	store Store

	mu      sync.Mutex
	layers  map[string]*Layer
	outputs []string
}

func NewProject(store Store) *Project {
	return &Project{
		store:  store,
		layers: make(map[string]*Layer),
	}
}

func (p *Project) MapLayerByName(ctx context.Context, name string) (*Layer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.layers[name]; ok {
		return l, nil
	}
	if p.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}
	l, err := p.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	p.layers[name] = l
	log.Debugf("loaded layer %s with %d features", name, l.FeatureCount())
	return l, nil
}

// AddMapLayer registers l under its name, replacing any layer with the same name.
func (p *Project) AddMapLayer(l *Layer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isOutput(l.Name) {
		p.outputs = append(p.outputs, l.Name)
	}
	p.layers[l.Name] = l
	log.Infof("layer %s added to project (%d features)", l.Name, l.FeatureCount())
}

func (p *Project) isOutput(name string) bool {
	for _, o := range p.outputs {
		if o == name {
			return true
		}
	}
	return false
}

// MarkModified schedules an already registered layer for saving.
func (p *Project) MarkModified(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isOutput(name) {
		p.outputs = append(p.outputs, name)
	}
}

func (p *Project) Outputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.outputs...)
}

func (p *Project) Save(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	for _, name := range p.Outputs() {
		p.mu.Lock()
		l := p.layers[name]
		p.mu.Unlock()
		if err := p.store.Save(ctx, l); err != nil {
			return fmt.Errorf("save layer %s: %w", name, err)
		}
		log.Infof("layer %s saved", name)
	}
	return nil
}
