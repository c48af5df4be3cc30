// Package history records every reported driver value in InfluxDB
package history

import (
	"context"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/address"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

const (
	measurementDriver = "flair_driver"
	measurementEvent  = "flair_event"

	pingTimeout   = 10 * time.Second
	batchSize     = 100
	flushInterval = 10000 // milliseconds
)

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder is a hub that writes driver values and events to InfluxDB.  Writes
// are batched and never block the caller.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter

	mu    sync.RWMutex
	nodes map[address.Address]hub.NodeInfo
}

// Connect verifies the server is reachable and returns a recorder writing to
// cfg.Bucket
func Connect(ctx context.Context, cfg Config) (*Recorder, error) {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushInterval))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "pinging InfluxDB at %s", cfg.URL)
	}
	if !healthy {
		client.Close()
		return nil, errors.Errorf("InfluxDB at %s is not healthy", cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logging.Logger(nil).WithError(err).Warn("InfluxDB write failed")
		}
	}()

	r := newRecorder(writeAPI)
	r.client = client

	return r, nil
}

func newRecorder(w pointWriter) *Recorder {
	return &Recorder{
		writer: w,
		nodes:  make(map[address.Address]hub.NodeInfo),
	}
}

// Close flushes pending points
func (r *Recorder) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

// AddNode remembers the node so its points can be tagged with name and kind
func (r *Recorder) AddNode(ctx context.Context, info hub.NodeInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes[info.Address] = info
	return nil
}

func (r *Recorder) tags(addr address.Address) map[string]string {
	tags := map[string]string{"address": string(addr)}

	r.mu.RLock()
	info, ok := r.nodes[addr]
	r.mu.RUnlock()

	if ok {
		tags["name"] = info.Name
		tags["nodedef"] = info.NodeDef
	}

	return tags
}

func (r *Recorder) SetDriver(ctx context.Context, addr address.Address, driver string, value float64, uom nodes.UOM) error {
	tags := r.tags(addr)
	tags["driver"] = driver
	tags["uom"] = strconv.Itoa(int(uom))

	r.writer.WritePoint(write.NewPoint(measurementDriver, tags,
		map[string]interface{}{"value": value}, time.Now()))

	return nil
}

func (r *Recorder) ReportCommand(ctx context.Context, addr address.Address, command string) error {
	r.writer.WritePoint(write.NewPoint(measurementEvent, r.tags(addr),
		map[string]interface{}{"command": command}, time.Now()))

	return nil
}
