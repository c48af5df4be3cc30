package flairapi

import (
	"context"

	"github.com/pkg/errors"
)

// Relation names used when walking the Flair resource graph
const (
	RelRooms          = "rooms"
	RelPucks          = "pucks"
	RelVents          = "vents"
	RelCurrentReading = "current-reading"
)

// ErrEmptyRelation is returned internally when a relation has no body.  Callers
// of Client.Related never see it, they get an empty slice instead.
var ErrEmptyRelation = errors.New("relation has no body")

// Client is the subset of the Flair API the bridge consumes
type Client interface {
	// Structures lists the top level structures visible to the account
	Structures(ctx context.Context) ([]*Resource, error)

	// Related fetches the resources behind a named relationship of res.
	// A missing or empty relationship yields an empty slice and a nil error;
	// only transport and API failures are returned as errors.
	Related(ctx context.Context, res *Resource, relation string) ([]*Resource, error)

	// Update patches attributes of res and refreshes res from the server's
	// view of the resource afterwards.
	Update(ctx context.Context, res *Resource, attributes map[string]interface{}) error
}
