// Command channels runs and exercises channel services from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"channels/channel"
	"channels/client"
	"channels/config"
	"channels/discovery"
	"channels/loadbalance"
	"channels/logger"
	"channels/message"
	"channels/metrics"
	"channels/middleware"
	"channels/registry"
	"channels/router"
	"channels/scheduler"
)

const (
	frameInterval   = 16 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "channels:", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		return runServe(ctx, rest)
	case "discover":
		return runDiscover(ctx, rest)
	case "send":
		return runSend(ctx, rest)
	case "probe":
		return runProbe(ctx, rest)
	case "help", "-h", "-help", "--help":
		printUsage()
		return nil
	}
	printUsage()
	return fmt.Errorf("unknown command %q", cmd)
}

// setup loads the configuration and installs the base logger.
func setup(g *globalFlags) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.Debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger.SetBase(log)
	return cfg, log, nil
}

// newRegistry builds the announcer for the configured backend.
func newRegistry(cfg config.Config, m *metrics.Metrics) (*registry.Announcer, func(), error) {
	opts := []registry.Option{
		registry.WithInterval(cfg.Discovery.AnnounceInterval),
		registry.WithLogger(logger.Logger("registry")),
		registry.WithMetrics(m),
	}

	switch cfg.Registry.Backend {
	case config.BackendEtcd:
		er, err := registry.NewEtcdRegistry(cfg.Registry.EtcdEndpoints, cfg.Registry.EtcdTTL, logger.Logger("etcd"))
		if err != nil {
			return nil, nil, err
		}
		return registry.NewAnnouncer(er.Dialer(), opts...), func() { er.Close() }, nil
	default:
		return registry.NewBroadcast(cfg.Discovery.Host, cfg.Discovery.Port, opts...), func() {}, nil
	}
}

// newFinder returns the discovery source for the configured backend.
func newFinder(cfg config.Config, m *metrics.Metrics) (discovery.Finder, func(), error) {
	if cfg.Registry.Backend == config.BackendEtcd {
		er, err := registry.NewEtcdRegistry(cfg.Registry.EtcdEndpoints, cfg.Registry.EtcdTTL, logger.Logger("etcd"))
		if err != nil {
			return nil, nil, err
		}
		return er, func() { er.Close() }, nil
	}
	return discovery.NewScanner(
		discovery.WithHost(cfg.Discovery.Host),
		discovery.WithPort(cfg.Discovery.Port),
		discovery.WithMetrics(m),
	), func() {}, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	name := fs.String("name", getEnv("CHANNELS_NAME", "Echo"), "Channel name to announce (env: CHANNELS_NAME)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := setup(g)
	if err != nil {
		return err
	}
	defer log.Sync()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(promReg)
	if err != nil {
		return err
	}

	reg, closeReg, err := newRegistry(cfg, m)
	if err != nil {
		return err
	}
	defer closeReg()

	loop := scheduler.NewFrameLoop()
	r := router.New()
	r.Handle("ping", func(req message.Request) error {
		log.Info("ping", zap.String("sender", req.Name))
		return nil
	})
	handler := func(req message.Request) {
		action, _ := req.Action()
		log.Info("request received", zap.String("sender", req.Name), zap.String("action", action), zap.Any("data", req.Data))
		r.Serve(req)
	}

	ctrl, err := channel.Register(*name, handler,
		channel.WithRegistry(reg),
		channel.WithPoll(cfg.Service.PollInterval),
		channel.WithQueueSize(cfg.Service.QueueCapacity),
		channel.WithHost(cfg.Service.Host),
		channel.WithBinding(channel.FrameBinding(loop)),
		channel.WithMiddleware(serviceMiddlewares(cfg.Service, logger.Logger("http"))...),
		channel.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := loop.Run(gctx, frameInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}))
		metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		group.Go(func() error {
			log.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsSrv.Shutdown(sctx)
		})
	}

	log.Info("serving channel", zap.String("name", *name), zap.String("registry", cfg.Registry.Backend))
	err = group.Wait()

	log.Info("shutting down")
	if stopErr := ctrl.Stop(); stopErr != nil {
		log.Warn("channel shutdown", zap.Error(stopErr))
	}
	reg.Shutdown()
	select {
	case <-reg.Done():
	case <-time.After(shutdownTimeout):
		log.Warn("registry did not stop in time")
	}
	return err
}

// serviceMiddlewares builds the HTTP chain for served channels from config.
func serviceMiddlewares(cfg config.ServiceConfig, log *zap.Logger) []middleware.Middleware {
	mws := []middleware.Middleware{
		middleware.Recover(log),
		middleware.Logging(log),
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.RequestTimeout))
	}
	return mws
}

func runDiscover(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	var names nameList
	fs.Var(&names, "name", "Channel name to look for; repeatable or comma separated (default: all)")
	timeout := fs.Duration("timeout", getEnvDuration("CHANNELS_DISCOVER_TIMEOUT", 0), "Scan window, 0 for discovery.timeout (env: CHANNELS_DISCOVER_TIMEOUT)")
	maxCount := fs.Int("max", getEnvInt("CHANNELS_DISCOVER_MAX", 0), "Stop after this many services, 0 for no limit (env: CHANNELS_DISCOVER_MAX)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := setup(g)
	if err != nil {
		return err
	}
	defer log.Sync()

	finder, closeFinder, err := newFinder(cfg, nil)
	if err != nil {
		return err
	}
	defer closeFinder()

	q := discovery.Query{Names: names, Timeout: cfg.Discovery.Timeout, MaxCount: *maxCount}
	if *timeout > 0 {
		q.Timeout = *timeout
	}
	found, err := finder.Find(ctx, q)
	if err != nil {
		return err
	}
	for _, addr := range found {
		fmt.Println(addr.Display())
	}
	if len(found) == 0 {
		log.Info("no channel services found", zap.Strings("names", names), zap.Duration("timeout", q.Timeout))
	}
	return nil
}

// newCache prepares the discovery cache and client options shared by send and probe.
func newCache(cfg config.Config, name, sender string) (*discovery.Cache, func(), error) {
	finder, closeFinder, err := newFinder(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	bal, err := loadbalance.ByName(cfg.Client.Balancer, sender)
	if err != nil {
		closeFinder()
		return nil, nil, err
	}
	cache := discovery.NewCache(finder, name,
		discovery.WithBalancer(bal),
		discovery.WithScanTimeout(cfg.Discovery.Timeout),
		discovery.WithClientOptions(
			client.WithTimeout(cfg.Client.Timeout),
			client.WithRetry(cfg.Client.Retries, cfg.Client.RetryDelay),
		),
	)
	return cache, closeFinder, nil
}

func runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	name := fs.String("name", getEnv("CHANNELS_NAME", ""), "Channel to send to (env: CHANNELS_NAME)")
	sender := fs.String("sender", getEnv("CHANNELS_SENDER", "channels-cli"), "Sender name placed in the request (env: CHANNELS_SENDER)")
	action := fs.String("action", "", "Value of data.action")
	data := fs.String("data", "", "Extra request data as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		fs.Usage()
		return errors.New("send: -name is required")
	}

	payload := map[string]any{}
	if *data != "" {
		if err := json.Unmarshal([]byte(*data), &payload); err != nil {
			return fmt.Errorf("send: -data: %w", err)
		}
	}
	if *action != "" {
		payload["action"] = *action
	}

	cfg, log, err := setup(g)
	if err != nil {
		return err
	}
	defer log.Sync()

	cache, closeCache, err := newCache(cfg, *name, *sender)
	if err != nil {
		return err
	}
	defer closeCache()

	c, err := cache.Client(ctx, false)
	if err != nil {
		return err
	}
	reply, err := c.Send(ctx, message.NewRequest(*sender, payload))
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", c.Address().Display(), reply.Status)
	if !reply.Accepted() {
		return fmt.Errorf("send: %s: %s", reply.Status, reply.Message)
	}
	return nil
}

func runProbe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	g := addGlobalFlags(fs)
	name := fs.String("name", getEnv("CHANNELS_NAME", ""), "Channel to probe (env: CHANNELS_NAME)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		fs.Usage()
		return errors.New("probe: -name is required")
	}

	cfg, log, err := setup(g)
	if err != nil {
		return err
	}
	defer log.Sync()

	cache, closeCache, err := newCache(cfg, *name, "")
	if err != nil {
		return err
	}
	defer closeCache()

	c, err := cache.Client(ctx, false)
	if err != nil {
		return err
	}
	reply, err := c.Probe(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", reply.Service, reply.Status)
	return nil
}
