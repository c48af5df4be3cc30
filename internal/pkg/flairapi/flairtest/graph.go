// Package flairtest provides an in-memory Flair resource graph implementing
// flairapi.Client
package flairtest

import (
	"context"
	"sync"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
)

// UpdateFunc lets a test decide what the "server" stores for an update.  The
// returned attributes are merged into the resource.
type UpdateFunc func(res *flairapi.Resource, requested map[string]interface{}) map[string]interface{}

type Graph struct {
	mu sync.Mutex

	structures    []*flairapi.Resource
	relations     map[string][]*flairapi.Resource
	relationErrs  map[string]error
	structuresErr error
	updateErr     error
	onUpdate      UpdateFunc

	// Block, when set, is waited on by Structures before answering
	Block chan struct{}

	structureCalls int
	updates        []map[string]interface{}
}

func NewGraph() *Graph {
	return &Graph{
		relations:    make(map[string][]*flairapi.Resource),
		relationErrs: make(map[string]error),
	}
}

func key(res *flairapi.Resource, relation string) string {
	return res.String() + "#" + relation
}

// Structure adds a named top level structure
func (g *Graph) Structure(id, name string, attrs map[string]interface{}) *flairapi.Resource {
	res := newResource("structures", id, name, attrs)

	g.mu.Lock()
	g.structures = append(g.structures, res)
	g.mu.Unlock()

	return res
}

// Child adds a named resource under parent's relation
func (g *Graph) Child(parent *flairapi.Resource, relation, resType, id, name string, attrs map[string]interface{}) *flairapi.Resource {
	res := newResource(resType, id, name, attrs)
	g.Link(parent, relation, res)
	return res
}

// Link attaches children to parent's relation
func (g *Graph) Link(parent *flairapi.Resource, relation string, children ...*flairapi.Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent.SetRelatedLink(relation, parent.SelfLink()+"/"+relation)
	g.relations[key(parent, relation)] = append(g.relations[key(parent, relation)], children...)
}

// FailRelation makes fetching parent's relation return err
func (g *Graph) FailRelation(parent *flairapi.Resource, relation string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent.SetRelatedLink(relation, parent.SelfLink()+"/"+relation)
	g.relationErrs[key(parent, relation)] = err
}

func (g *Graph) FailStructures(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.structuresErr = err
}

func (g *Graph) FailUpdates(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateErr = err
}

func (g *Graph) OnUpdate(fn UpdateFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onUpdate = fn
}

// Updates returns the attribute sets passed to Update so far
func (g *Graph) Updates() []map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]map[string]interface{}, len(g.updates))
	copy(out, g.updates)
	return out
}

func (g *Graph) StructureCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.structureCalls
}

func (g *Graph) Structures(ctx context.Context) ([]*flairapi.Resource, error) {
	g.mu.Lock()
	g.structureCalls++
	block := g.Block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.structuresErr != nil {
		return nil, g.structuresErr
	}

	out := make([]*flairapi.Resource, len(g.structures))
	copy(out, g.structures)
	return out, nil
}

func (g *Graph) Related(ctx context.Context, res *flairapi.Resource, relation string) ([]*flairapi.Resource, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err, ok := g.relationErrs[key(res, relation)]; ok {
		return nil, err
	}

	children := g.relations[key(res, relation)]
	out := make([]*flairapi.Resource, len(children))
	copy(out, children)
	return out, nil
}

func (g *Graph) Update(ctx context.Context, res *flairapi.Resource, attributes map[string]interface{}) error {
	g.mu.Lock()
	g.updates = append(g.updates, attributes)
	err := g.updateErr
	fn := g.onUpdate
	g.mu.Unlock()

	if err != nil {
		return err
	}

	stored := attributes
	if fn != nil {
		stored = fn(res, attributes)
	}
	res.SetAttributes(stored)

	return nil
}

func newResource(resType, id, name string, attrs map[string]interface{}) *flairapi.Resource {
	all := map[string]interface{}{"name": name}
	for k, v := range attrs {
		all[k] = v
	}

	return flairapi.NewResource(resType, id, all)
}
