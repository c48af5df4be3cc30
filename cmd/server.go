package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/jake-scott/flair-bridge/internal/pkg/addrcache"
	"github.com/jake-scott/flair-bridge/internal/pkg/controller"
	"github.com/jake-scott/flair-bridge/internal/pkg/discovery"
	"github.com/jake-scott/flair-bridge/internal/pkg/drivers"
	"github.com/jake-scott/flair-bridge/internal/pkg/handlers"
	"github.com/jake-scott/flair-bridge/internal/pkg/history"
	"github.com/jake-scott/flair-bridge/internal/pkg/hub"
	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
	"github.com/jake-scott/flair-bridge/internal/pkg/scheduler"
	"github.com/jake-scott/flair-bridge/pkg/middlewares"
)

var _serverCmdOpts struct {
	httpPort        uint16
	corsOrigins     []string
	gracefulTimeout time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	logRequests     bool
	shortPoll       time.Duration
	longPoll        time.Duration
	concurrency     int
	mqttBroker      string
	mqttClientID    string
	mqttUsername    string
	mqttPassword    string
	mqttPrefix      string
	cachePath       string
	influxURL       string
	influxToken     string
	influxOrg       string
	influxBucket    string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the bridge",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doServer(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("influxdb.url") != "" {
			return checkRequiredFlags("influxdb.org", "influxdb.bucket")
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().Uint16Var(&_serverCmdOpts.httpPort, "http-port", 8080, "HTTP API port number")
	serverCmd.Flags().StringSliceVar(&_serverCmdOpts.corsOrigins, "cors-origins", nil, "origins allowed to call the HTTP API from a browser")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.gracefulTimeout, "graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.readTimeout, "read-timeout", time.Second*15, "duration to wait for request read, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.writeTimeout, "write-timeout", time.Second*60, "duration to wait for request write, eg. 1m or 10s")
	serverCmd.Flags().BoolVar(&_serverCmdOpts.logRequests, "log-requests", false, "log requests and responses (only in debug mode)")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.shortPoll, "short-poll", scheduler.DefaultShortPoll, "interval between state refreshes")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.longPoll, "long-poll", scheduler.DefaultLongPoll, "interval between heartbeats and rediscovery")
	serverCmd.Flags().IntVar(&_serverCmdOpts.concurrency, "poll-concurrency", drivers.DefaultConcurrency, "nodes refreshed at the same time")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttBroker, "mqtt-broker", "", "MQTT broker URL, eg. tcp://localhost:1883")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttClientID, "mqtt-client-id", "", "MQTT client ID (default is generated)")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttUsername, "mqtt-username", "", "MQTT username")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttPassword, "mqtt-password", "", "MQTT password")
	serverCmd.Flags().StringVar(&_serverCmdOpts.mqttPrefix, "mqtt-prefix", hub.DefaultPrefix, "MQTT topic prefix")
	serverCmd.Flags().StringVar(&_serverCmdOpts.cachePath, "cache", "", "SQLite file to remember discovered nodes in")
	serverCmd.Flags().StringVar(&_serverCmdOpts.influxURL, "influxdb-url", "", "InfluxDB server URL to record driver history to")
	serverCmd.Flags().StringVar(&_serverCmdOpts.influxToken, "influxdb-token", "", "InfluxDB API token")
	serverCmd.Flags().StringVar(&_serverCmdOpts.influxOrg, "influxdb-org", "", "InfluxDB organisation")
	serverCmd.Flags().StringVar(&_serverCmdOpts.influxBucket, "influxdb-bucket", "", "InfluxDB bucket")

	errPanic(viper.GetViper().BindPFlag("http.port", serverCmd.Flags().Lookup("http-port")))
	errPanic(viper.GetViper().BindPFlag("http.cors-origins", serverCmd.Flags().Lookup("cors-origins")))
	errPanic(viper.GetViper().BindPFlag("http.graceful-timeout", serverCmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.GetViper().BindPFlag("http.read-timeout", serverCmd.Flags().Lookup("read-timeout")))
	errPanic(viper.GetViper().BindPFlag("http.write-timeout", serverCmd.Flags().Lookup("write-timeout")))
	errPanic(viper.GetViper().BindPFlag("logging.log-requests", serverCmd.Flags().Lookup("log-requests")))
	errPanic(viper.GetViper().BindPFlag("poll.short", serverCmd.Flags().Lookup("short-poll")))
	errPanic(viper.GetViper().BindPFlag("poll.long", serverCmd.Flags().Lookup("long-poll")))
	errPanic(viper.GetViper().BindPFlag("poll.concurrency", serverCmd.Flags().Lookup("poll-concurrency")))
	errPanic(viper.GetViper().BindPFlag("mqtt.broker", serverCmd.Flags().Lookup("mqtt-broker")))
	errPanic(viper.GetViper().BindPFlag("mqtt.client-id", serverCmd.Flags().Lookup("mqtt-client-id")))
	errPanic(viper.GetViper().BindPFlag("mqtt.username", serverCmd.Flags().Lookup("mqtt-username")))
	errPanic(viper.GetViper().BindPFlag("mqtt.password", serverCmd.Flags().Lookup("mqtt-password")))
	errPanic(viper.GetViper().BindPFlag("mqtt.prefix", serverCmd.Flags().Lookup("mqtt-prefix")))
	errPanic(viper.GetViper().BindPFlag("cache.path", serverCmd.Flags().Lookup("cache")))
	errPanic(viper.GetViper().BindPFlag("influxdb.url", serverCmd.Flags().Lookup("influxdb-url")))
	errPanic(viper.GetViper().BindPFlag("influxdb.token", serverCmd.Flags().Lookup("influxdb-token")))
	errPanic(viper.GetViper().BindPFlag("influxdb.org", serverCmd.Flags().Lookup("influxdb-org")))
	errPanic(viper.GetViper().BindPFlag("influxdb.bucket", serverCmd.Flags().Lookup("influxdb-bucket")))

	rootCmd.AddCommand(serverCmd)
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

// hubs builds the fanout of every configured hub.  The MQTT hub is returned
// separately as it also carries inbound commands.
func hubs(ctx context.Context) (hub.Fanout, *hub.MQTT, *history.Recorder, error) {
	logHub := hub.NewLog()
	fanout := hub.Fanout{logHub}

	var mq *hub.MQTT
	if broker := viper.GetString("mqtt.broker"); broker != "" {
		mq = hub.NewMQTT(hub.MQTTConfig{
			Broker:   broker,
			ClientID: viper.GetString("mqtt.client-id"),
			Username: viper.GetString("mqtt.username"),
			Password: viper.GetString("mqtt.password"),
			Prefix:   viper.GetString("mqtt.prefix"),
		})
		fanout = append(fanout, mq)
	}

	var recorder *history.Recorder
	if url := viper.GetString("influxdb.url"); url != "" {
		var err error
		recorder, err = history.Connect(ctx, history.Config{
			URL:    url,
			Token:  viper.GetString("influxdb.token"),
			Org:    viper.GetString("influxdb.org"),
			Bucket: viper.GetString("influxdb.bucket"),
		})
		if err != nil {
			return nil, nil, nil, err
		}
		fanout = append(fanout, recorder)
	}

	// the log is only the main output when nothing else is configured
	if len(fanout) > 1 {
		logHub.Level = logrus.DebugLevel
	}

	return fanout, mq, recorder, nil
}

// startController starts ctl and reports whether Flair should be polled.
// Missing credentials are not fatal: the bridge keeps serving with the
// controller status at 0 so the hub and /healthz can show it.
func startController(ctx context.Context, ctl *controller.Controller) (bool, error) {
	err := ctl.Start(ctx)
	switch {
	case errors.Is(err, controller.ErrMissingCredentials):
		logging.Logger(ctx).WithError(err).Error("Not polling Flair")
		return false, nil
	case err != nil:
		return false, err
	}

	return true, nil
}

func newRouter(ctl *controller.Controller, logRequests bool) *mux.Router {
	r := mux.NewRouter()
	if origins := viper.GetStringSlice("http.cors-origins"); len(origins) > 0 {
		r.Use(middlewares.NewCorsMw(middlewares.CorsOptions(origins)))
	}
	r.Use(middlewares.NewCorrelationMw(middlewares.DefaultCorrelationHeader))
	r.Use(middlewares.NewLoggingMw(logRequests))
	r.Use(middlewares.NewRecoveryMw())
	handlers.NewNodesHandler(ctl).Register(r)

	return r
}

func doServer() error {
	log := logging.Logger(nil)

	wait := viper.GetDuration("http.graceful-timeout")
	port := viper.GetUint("http.port")

	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			log.Warn("log-requests ignored when not in debug mode")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := flairCredentials()
	api, err := flairClient(creds)
	if err != nil {
		return err
	}

	fanout, mq, recorder, err := hubs(ctx)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer recorder.Close()
	}

	engine := drivers.NewEngine(api, fanout).WithConcurrency(viper.GetInt("poll.concurrency"))
	ctl := controller.New(creds, nodes.NewRegistry(), engine, fanout)

	if path := viper.GetString("cache.path"); path != "" {
		cache, err := addrcache.Open(path)
		if err != nil {
			return err
		}
		defer cache.Close()

		log.Infof("Using address cache %s", cache.Path())
		ctl.SetCache(cache)
	}

	sched := scheduler.New(discovery.NewWalker(api), ctl).
		WithIntervals(viper.GetDuration("poll.short"), viper.GetDuration("poll.long"))
	ctl.SetDiscoverer(sched)

	if mq != nil {
		if err := mq.Listen(ctl.HandleCommand); err != nil {
			return err
		}
		if err := mq.Connect(); err != nil {
			return err
		}
		defer mq.Close()
	}

	polling, err := startController(ctx, ctl)
	if err != nil {
		return err
	}

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  viper.GetDuration("http.read-timeout"),
		WriteTimeout: viper.GetDuration("http.write-timeout"),
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(ctl, logRequests),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("Serving on port %d", port)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "running server")
		}
		return nil
	})

	if polling {
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()

		return errors.Wrap(s.Shutdown(shutdownCtx), "shutting down server")
	})

	err = g.Wait()
	log.Info("exiting")

	return err
}
