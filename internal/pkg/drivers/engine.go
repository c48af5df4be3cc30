package drivers

import (
	"context"

	"github.com/korovkin/limiter"
	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const DefaultConcurrency = 4

// Engine keeps registry slots and the hub in step with the Flair API
type Engine struct {
	api         flairapi.Client
	hub         hub.Hub
	concurrency int
}

func NewEngine(api flairapi.Client, h hub.Hub) *Engine {
	return &Engine{
		api:         api,
		hub:         h,
		concurrency: DefaultConcurrency,
	}
}

// WithConcurrency returns a copy of the engine refreshing n records at a time
func (e *Engine) WithConcurrency(n int) *Engine {
	ne := *e
	if n > 0 {
		ne.concurrency = n
	}
	return &ne
}

// Query refreshes one record and reports its slots
func (e *Engine) Query(ctx context.Context, rec *nodes.Record) {
	log := logging.NodeLogger(ctx, rec.Address().String(), rec.Kind())

	if rec.Resource() == nil {
		log.Debug("Not discovered yet, skipping refresh")
		return
	}

	d, err := For(rec.Kind())
	if err != nil {
		log.WithError(err).Error("Cannot refresh")
		return
	}

	values, err := d.Refresh(ctx, e.api, rec)
	e.report(ctx, rec, values, false)

	switch {
	case err != nil:
		rec.MarkRefreshed(err)
	case d.Live():
		rec.MarkRefreshed(nil)
	default:
		rec.MarkFromResource()
	}
}

// QueryAll refreshes records with a bounded number of workers, returning
// when all are done
func (e *Engine) QueryAll(ctx context.Context, recs []*nodes.Record) {
	limit := limiter.NewConcurrencyLimiter(e.concurrency)

	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}

		rec := rec
		limit.ExecuteWithTicket(func(ticket int) {
			logging.Logger(ctx).Debugf("sync[%d]: refreshing %s", ticket, rec.Address())
			e.Query(ctx, rec)
		})
	}

	limit.Wait()
}

// HandleCommand runs a node command.  Unknown commands and bad values are
// returned; failures talking to Flair are logged and recorded on the record.
func (e *Engine) HandleCommand(ctx context.Context, rec *nodes.Record, command, value string) error {
	d, err := For(rec.Kind())
	if err != nil {
		return err
	}

	fn, ok := d.Commands()[command]
	if !ok {
		return errors.Wrapf(ErrUnknownCommand, "%s for %s", command, rec.Kind())
	}

	logging.NodeLogger(ctx, rec.Address().String(), rec.Kind()).
		Infof("Running %s %s", command, value)

	return fn(ctx, e, rec, value)
}

// writeThenRead applies one attribute update, then reports the slots derive
// produces from the resource as the server left it
func (e *Engine) writeThenRead(ctx context.Context, rec *nodes.Record, update map[string]interface{},
	derive func(res *flairapi.Resource) Values) error {

	res := rec.Resource()
	if res == nil {
		return errors.Wrapf(ErrNotDiscovered, "node %s", rec.Address())
	}

	if err := e.api.Update(ctx, res, update); err != nil {
		logging.NodeLogger(ctx, rec.Address().String(), rec.Kind()).
			WithError(err).Errorf("Updating %v failed", update)
		rec.MarkRefreshed(err)
		return nil
	}

	e.report(ctx, rec, derive(res), true)
	rec.MarkResourceFetched()

	return nil
}

// report stores values on the record and sends the changed or forced ones
// to the hub
func (e *Engine) report(ctx context.Context, rec *nodes.Record, values Values, force bool) {
	log := logging.NodeLogger(ctx, rec.Address().String(), rec.Kind())

	// declaration order keeps hub traffic stable
	for _, def := range rec.Kind().Slots() {
		value, ok := values[def.Driver]
		if !ok {
			continue
		}

		changed := rec.SetSlot(def.Driver, value)
		if !changed && !force && !def.Force {
			continue
		}

		if err := e.hub.SetDriver(ctx, rec.Address(), def.Driver, value, def.UOM); err != nil {
			log.WithError(err).Warnf("Cannot report %s", def.Driver)
		}
	}
}
