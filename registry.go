package fogsim

import "fmt"

// Registry hands out entity ids and resolves them.  Every simulation run builds its
// own Registry, so ids do not depend on what other runs did before.
type Registry struct {
	numIDs int
	byID   map[int]Entity
	byName map[string]int
	kinds  map[int]string
}

// CreateRegistry is a constructor
func CreateRegistry() *Registry {
	reg := new(Registry)
	reg.byID = make(map[int]Entity)
	reg.byName = make(map[string]int)
	reg.kinds = make(map[int]string)
	return reg
}

// NxtID returns a fresh id, starting from 1
func (reg *Registry) NxtID() int {
	reg.numIDs += 1
	return reg.numIDs
}

// Register binds the entity to its id and name.  The entity must already carry
// an id obtained from NxtID; names are unique within a run.
func (reg *Registry) Register(entity Entity, kind string) error {
	id := entity.EntityID()
	name := entity.EntityName()
	if _, present := reg.byID[id]; present {
		return fmt.Errorf("entity id %d registered twice", id)
	}
	if _, present := reg.byName[name]; present {
		return &ValidationError{Problems: []string{fmt.Sprintf("duplicate entity name %q", name)}}
	}
	reg.byID[id] = entity
	reg.byName[name] = id
	reg.kinds[id] = kind
	return nil
}

// Lookup finds the entity with the given id
func (reg *Registry) Lookup(id int) (Entity, bool) {
	entity, present := reg.byID[id]
	return entity, present
}

// IDOf finds the id bound to a name
func (reg *Registry) IDOf(name string) (int, bool) {
	id, present := reg.byName[name]
	return id, present
}

// KindOf returns the kind string given when the entity was registered
func (reg *Registry) KindOf(id int) string {
	return reg.kinds[id]
}

// Size is the number of registered entities
func (reg *Registry) Size() int {
	return len(reg.byID)
}
