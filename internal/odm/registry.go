package odm

import (
	"fmt"
	"sort"
	"sync"

	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
)

// Registry holds the models of one application, keyed by name.
type Registry struct {
	conn *Connection

	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates an empty registry bound to conn.
func NewRegistry(conn *Connection) *Registry {
	return &Registry{
		conn:   conn,
		models: make(map[string]*Model),
	}
}

// Connection returns the connection shared by the registered models.
func (r *Registry) Connection() *Connection { return r.conn }

// Register creates the model for def and stores it under def.Name, or the
// collection name when no name is set.
func (r *Registry) Register(def Definition) (*Model, error) {
	model, err := NewModel(r.conn, def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[model.Name()]; exists {
		return nil, fmt.Errorf("model %q is already registered", model.Name())
	}
	r.models[model.Name()] = model
	return model, nil
}

// Model returns the model registered under name.
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model, ok := r.models[name]
	if !ok {
		return nil, domainerrors.NewUnknownModelError(name)
	}
	return model, nil
}

// MustModel is like Model but panics when name is not registered.
func (r *Registry) MustModel(name string) *Model {
	model, err := r.Model(name)
	if err != nil {
		panic(err)
	}
	return model
}

// Models returns the registered model names in sorted order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
