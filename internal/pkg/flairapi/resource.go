package flairapi

import (
	"encoding/json"
	"fmt"
	"sync"
)

/*
 *  JSON:API resource objects as returned by the Flair API, eg:
 *
 *  {
 *    "type": "vents",
 *    "id": "3b5b0a8e-...",
 *    "attributes": { "name": "Vent 1", "percent-open": 100, "inactive": false },
 *    "relationships": {
 *      "room": { "links": { "related": "/api/vents/3b5b0a8e-.../room" } },
 *      "current-reading": { "links": { "related": "/api/vents/3b5b0a8e-.../current-reading" } }
 *    },
 *    "links": { "self": "/api/vents/3b5b0a8e-..." }
 *  }
 */

type links struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
}

type relationship struct {
	Links links `json:"links"`
}

type resourceObject struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    map[string]interface{}  `json:"attributes"`
	Relationships map[string]relationship `json:"relationships,omitempty"`
	Links         links                   `json:"links,omitempty"`
}

type document struct {
	Data json.RawMessage `json:"data"`
}

// Resource is a typed Flair object with attributes and relationship links.
// Attributes may be updated concurrently by discovery, sync and commands.
type Resource struct {
	ID   string
	Type string

	mu         sync.RWMutex
	attributes map[string]interface{}
	related    map[string]string
	self       string
}

// NewResource builds a resource from its parts, mostly useful for tests and fakes
func NewResource(resType, id string, attributes map[string]interface{}) *Resource {
	r := &Resource{
		ID:         id,
		Type:       resType,
		attributes: make(map[string]interface{}, len(attributes)),
		related:    make(map[string]string),
	}

	for k, v := range attributes {
		r.attributes[k] = v
	}

	return r
}

func newResourceFromObject(obj resourceObject) *Resource {
	r := NewResource(obj.Type, obj.ID, obj.Attributes)
	r.self = obj.Links.Self

	for name, rel := range obj.Relationships {
		if rel.Links.Related != "" {
			r.related[name] = rel.Links.Related
		}
	}

	return r
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.ID)
}

// Name returns the display name of the resource, or its ID if it has none
func (r *Resource) Name() string {
	if name, ok := r.Text("name"); ok && name != "" {
		return name
	}

	return r.ID
}

// Attr returns the raw value of an attribute.  ok is false when the attribute
// is absent or null.
func (r *Resource) Attr(name string) (value interface{}, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok = r.attributes[name]
	if value == nil {
		return nil, false
	}

	return value, ok
}

// Float returns a numeric attribute
func (r *Resource) Float(name string) (float64, bool) {
	v, ok := r.Attr(name)
	if !ok {
		return 0, false
	}

	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}

	return 0, false
}

// Bool returns a boolean attribute
func (r *Resource) Bool(name string) (bool, bool) {
	v, ok := r.Attr(name)
	if !ok {
		return false, false
	}

	b, ok := v.(bool)
	return b, ok
}

// Text returns a string attribute
func (r *Resource) Text(name string) (string, bool) {
	v, ok := r.Attr(name)
	if !ok {
		return "", false
	}

	s, ok := v.(string)
	return s, ok
}

// Attributes returns a copy of the attribute map
func (r *Resource) Attributes() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]interface{}, len(r.attributes))
	for k, v := range r.attributes {
		out[k] = v
	}

	return out
}

// SetAttributes merges attrs into the resource
func (r *Resource) SetAttributes(attrs map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range attrs {
		r.attributes[k] = v
	}
}

// RelatedLink returns the link for a named relationship
func (r *Resource) RelatedLink(relation string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.related[relation]
	return link, ok
}

// SetRelatedLink records the link for a named relationship
func (r *Resource) SetRelatedLink(relation, link string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.related[relation] = link
}

// SelfLink returns the canonical path of the resource
func (r *Resource) SelfLink() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.self != "" {
		return r.self
	}

	return "/api/" + r.Type + "/" + r.ID
}

// parse a JSON:API document into resources.  Both to-many (array) and to-one
// (object) primary data are accepted.
func parseDocument(body []byte) ([]*Resource, error) {
	if len(body) == 0 {
		return nil, ErrEmptyRelation
	}

	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	data := doc.Data
	if len(data) == 0 || string(data) == "null" {
		return nil, ErrEmptyRelation
	}

	var objects []resourceObject
	if data[0] == '[' {
		if err := json.Unmarshal(data, &objects); err != nil {
			return nil, err
		}
	} else {
		var obj resourceObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}

	if len(objects) == 0 {
		return nil, ErrEmptyRelation
	}

	items := make([]*Resource, 0, len(objects))
	for _, obj := range objects {
		items = append(items, newResourceFromObject(obj))
	}

	return items, nil
}
