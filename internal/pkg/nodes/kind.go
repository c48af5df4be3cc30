package nodes

import (
	"fmt"
	"strings"
)

// Kind is the closed set of Flair entities mirrored as hub nodes
type Kind int

const (
	KindStructure Kind = iota + 1
	KindRoom
	KindPuck
	KindVent
)

var kindNames = map[Kind]string{
	KindStructure: "structure",
	KindRoom:      "room",
	KindPuck:      "puck",
	KindVent:      "vent",
}

// hub node definition IDs, these must match the hub's node profile
var kindNodeDefs = map[Kind]string{
	KindStructure: "FLAIR_STRUCT",
	KindRoom:      "FLAIR_ROOM",
	KindPuck:      "FLAIR_PUCK",
	KindVent:      "FLAIR_VENT",
}

// Kinds lists every kind in discovery order
func Kinds() []Kind {
	return []Kind{KindStructure, KindRoom, KindPuck, KindVent}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("unknown (kind: %d)", int(k))
}

// NodeDefID returns the hub node definition of the kind
func (k Kind) NodeDefID() string {
	return kindNodeDefs[k]
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind converts a kind name back to a Kind
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown node kind: %s", name)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
