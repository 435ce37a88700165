package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nerrad567/printcast/internal/api"
	"github.com/nerrad567/printcast/internal/infrastructure/config"
	"github.com/nerrad567/printcast/internal/infrastructure/database"
	"github.com/nerrad567/printcast/internal/infrastructure/influxdb"
	"github.com/nerrad567/printcast/internal/infrastructure/logging"
	"github.com/nerrad567/printcast/internal/infrastructure/mqtt"
	"github.com/nerrad567/printcast/internal/journal"
	"github.com/nerrad567/printcast/internal/obs"
	"github.com/nerrad567/printcast/internal/overlay"
	"github.com/nerrad567/printcast/internal/pipeline"
	"github.com/nerrad567/printcast/internal/printfiles"
	"github.com/nerrad567/printcast/internal/stage"
	"github.com/nerrad567/printcast/internal/telemetry"
	"github.com/nerrad567/printcast/migrations"
)

// renderTarget is the part of the overlay reconciler the OBS lifecycle drives.
type renderTarget interface {
	Provision(ctx context.Context, l overlay.Layout) (*overlay.Handles, error)
	Inventory(ctx context.Context) (*overlay.Inventory, error)
	StreamActive(ctx context.Context) (bool, error)
	StartStream(ctx context.Context) error
}

type reportProjector interface {
	Project(ctx context.Context, payload []byte) (*telemetry.Snapshot, error)
	SetHandles(h *overlay.Handles)
	ClearHandles()
	Ready() bool
	Close()
}

type stagePolicy interface {
	Evaluate(ctx context.Context, current stage.Stage) error
	LastStage() (stage.Stage, bool)
	Wait()
}

// Bridge connects the printer's telemetry feed to the OBS overlay.
//
// Thread Safety: Run is called once. Shutdown and Status are safe from any
// goroutine.
type Bridge struct {
	cfg     *config.Config
	logger  *logging.Logger
	version string

	// out receives the scene inventory in print-items mode.
	out io.Writer

	printer    *mqtt.Client
	supervisor *mqtt.Supervisor
	queue      *pipeline.Queue[[]byte]
	consumer   *pipeline.Consumer[[]byte]

	obs       *obs.Client
	render    renderTarget
	layout    overlay.Layout
	projector reportProjector
	engine    stagePolicy
	sinks     *fanout

	db       *database.DB
	recorder *journal.Recorder
	metrics  *influxdb.Client
	api      *api.Server

	wg         sync.WaitGroup
	reconnects sync.WaitGroup

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	requested bool
	stopping  bool
	reason    string
	cause     error
}

// New builds every component from cfg. Nothing connects until Run.
func New(cfg *config.Config, logger *logging.Logger, version string) (*Bridge, error) {
	if cfg == nil {
		return nil, errors.New("bridge: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	b := &Bridge{
		cfg:     cfg,
		logger:  logger,
		version: version,
		out:     os.Stdout,
		layout:  overlay.NewLayout(cfg.App.ImageDir),
		sinks:   &fanout{serial: cfg.Printer.Serial},
	}

	b.obs = obs.NewClient(obs.Options{
		URL:           cfg.OBS.URL,
		Password:      cfg.OBS.Password,
		RetryInterval: cfg.GetOBSRetryInterval(),
		Logger:        logger.With("component", "obs"),
	})
	reconciler := overlay.NewReconciler(overlay.Options{
		Service:       b.obs,
		Scene:         cfg.OBS.Scene,
		StreamSource:  cfg.OBS.StreamSource,
		SDPPath:       cfg.Printer.SDPPath,
		ForceRecreate: cfg.OBS.ForceCreateInputs,
		LockInputs:    cfg.OBS.LockInputs,
		Backoff:       cfg.GetBackoff(),
		Logger:        logger.With("component", "overlay"),
	})
	b.render = reconciler

	files := printfiles.NewStore(printfiles.Options{
		Host:        cfg.Printer.Host,
		Port:        cfg.Printer.FTPPort,
		Username:    cfg.Printer.Username,
		Password:    cfg.Printer.AccessCode,
		TLSInsecure: cfg.Printer.TLSInsecure,
		Timeout:     cfg.GetLookupTimeout(),
		Logger:      logger.With("component", "printfiles"),
	})
	b.projector = telemetry.NewProjector(telemetry.Options{
		Display:       reconciler,
		Files:         files,
		Observer:      b.sinks,
		Logger:        logger.With("component", "telemetry"),
		PreviewPath:   b.layout.PreviewPath(),
		LookupTimeout: cfg.GetLookupTimeout(),
	})
	b.engine = stage.NewEngine(stage.Options{
		Stream:               reconciler,
		StopStreamOnIdle:     cfg.OBS.StopStreamOnIdle,
		ExitOnIdle:           cfg.App.ExitOnIdle,
		StartStreamOnStartup: cfg.OBS.StartStreamOnStartup,
		Shutdown:             func(reason string) { b.Shutdown(reason, nil) },
		OnTransition:         b.stageChanged,
		Logger:               logger.With("component", "stage"),
	})

	b.queue = pipeline.NewQueue[[]byte](cfg.App.QueueCapacity)
	b.consumer = pipeline.NewConsumer(pipeline.ConsumerOptions[[]byte]{
		Queue:    b.queue,
		Handler:  b.handle,
		Throttle: cfg.GetThrottle(),
		OnExit:   b.consumerExited,
		Logger:   logger.With("component", "pipeline"),
	})

	b.printer = mqtt.New(cfg.Printer)
	b.printer.SetLogger(logger.With("component", "mqtt"))
	b.supervisor = mqtt.NewSupervisor(mqtt.SupervisorOptions{
		Conn:             b.printer,
		RetryInterval:    cfg.GetPrinterRetryInterval(),
		ExitOnDisconnect: cfg.App.ExitOnPrinterDisconnect,
		OnFatal:          b.printerFatal,
		Logger:           logger.With("component", "mqtt"),
	})

	b.obs.SetOnConnect(b.onOBSConnect)
	b.obs.SetOnDisconnect(b.onOBSDisconnect)

	return b, nil
}

// Run starts both connections and blocks until shutdown. It returns nil for
// a clean stop (signal, idle exit, print-items mode) and the cause otherwise.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	b.ctx, b.cancel = ctx, cancel
	if b.requested {
		cancel()
	}
	b.mu.Unlock()

	if err := b.openSinks(ctx); err != nil {
		b.closeSinks()
		return err
	}
	defer b.closeSinks()

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.runOBS(ctx)
	}()
	go func() {
		defer b.wg.Done()
		_ = b.consumer.Run(ctx)
	}()
	if b.recorder != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.recorder.Run(ctx)
		}()
	}

	if err := b.startPrinter(ctx); err != nil && ctx.Err() == nil {
		if mqtt.IsAuthError(err) {
			err = fmt.Errorf("%w: %w", ErrPrinterAuth, err)
		}
		b.Shutdown("printer connection failed", err)
	}

	<-ctx.Done()
	b.stop()
	return b.result()
}

func (b *Bridge) startPrinter(ctx context.Context) error {
	b.printer.SetOnConnect(func() {
		b.logger.Debug("printer MQTT session established")
	})
	b.printer.SetOnDisconnect(func(err error) {
		b.superviseReconnect(ctx, err)
	})

	topic := mqtt.Topics{}.Report(b.cfg.Printer.Serial)
	if err := b.printer.Subscribe(topic, byte(b.cfg.Printer.QoS), b.enqueue); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return b.supervisor.Start(ctx)
}

// superviseReconnect hands a lost connection to the supervisor on its own
// goroutine so the paho callback returns at once. stop joins these.
func (b *Bridge) superviseReconnect(ctx context.Context, cause error) {
	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		return
	}
	b.reconnects.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.reconnects.Done()
		b.supervisor.HandleDisconnect(ctx, cause)
	}()
}

// enqueue is the MQTT report handler. It never blocks.
func (b *Bridge) enqueue(_ string, payload []byte) error {
	if b.queue.Push(payload) {
		b.logger.Debug("report queue full, dropped oldest report")
	}
	return nil
}

// handle processes one report: render first, then the stage policy.
func (b *Bridge) handle(ctx context.Context, payload []byte) error {
	snap, err := b.projector.Project(ctx, payload)
	if snap != nil {
		if evalErr := b.engine.Evaluate(ctx, snap.Stage); evalErr != nil {
			err = errors.Join(err, fmt.Errorf("evaluating stage: %w", evalErr))
		}
	}
	if errors.Is(err, obs.ErrClosed) || errors.Is(err, obs.ErrNotConnected) {
		b.logger.Debug("report interrupted by OBS disconnect", "error", err)
		return nil
	}
	return err
}

func (b *Bridge) consumerExited(err error) {
	if b.done() {
		return
	}
	if err == nil {
		err = ErrConsumerStopped
	} else {
		err = fmt.Errorf("%w: %w", ErrConsumerStopped, err)
	}
	b.Shutdown("message processing stopped", err)
}

func (b *Bridge) printerFatal(err error) {
	if mqtt.IsAuthError(err) {
		b.Shutdown("printer authentication failed", fmt.Errorf("%w: %w", ErrPrinterAuth, err))
		return
	}
	b.Shutdown("printer disconnected", err)
}

func (b *Bridge) stageChanged(from, to stage.Stage) {
	b.logger.Debug("stage transition", "from", from.String(), "to", to.String())
	b.sinks.StageChanged(from, to)
}

// Shutdown requests a stop. Only the first call counts; a nil cause is a
// clean exit.
func (b *Bridge) Shutdown(reason string, cause error) {
	b.mu.Lock()
	if b.requested {
		b.mu.Unlock()
		return
	}
	b.requested = true
	b.reason, b.cause = reason, cause
	cancel := b.cancel
	b.mu.Unlock()

	if cause != nil {
		b.logger.Error("shutdown requested", "reason", reason, "error", cause)
	} else {
		b.logger.Info("shutdown requested", "reason", reason)
	}
	if cancel != nil {
		cancel()
	}
}

func (b *Bridge) done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requested || (b.ctx != nil && b.ctx.Err() != nil)
}

func (b *Bridge) result() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", b.reason, b.cause)
}

// stop tears down in dependency order: producers first, then the consumer
// and background work, then the projector.
func (b *Bridge) stop() {
	b.mu.Lock()
	reason := b.reason
	b.stopping = true
	b.mu.Unlock()
	if reason == "" {
		reason = "signal received"
	}
	b.logger.Info("stopping bridge", "reason", reason)

	b.queue.Close()
	if err := b.printer.Close(); err != nil {
		b.logger.Warn("closing printer MQTT", "error", err)
	}
	b.reconnects.Wait()
	b.wg.Wait()
	b.engine.Wait()
	b.projector.Close()
}

// Status reports connection and pipeline state for the status API.
func (b *Bridge) Status() api.StatusReport {
	r := api.StatusReport{
		Serial:         b.cfg.Printer.Serial,
		Printer:        b.supervisor.State().String(),
		OBSConnected:   b.obs.IsConnected(),
		OverlayReady:   b.projector.Ready(),
		Pipeline:       b.consumer.Stats(),
		JournalEnabled: b.recorder != nil,
	}
	if s, ok := b.engine.LastStage(); ok {
		r.LastStage = s.String()
	}
	if b.recorder != nil {
		r.JournalDropped = b.recorder.Dropped()
	}
	return r
}

// openSinks connects the optional journal, metrics and status API.
// A journal or API failure is a configuration problem and stops startup;
// an unreachable InfluxDB only disables metrics.
func (b *Bridge) openSinks(ctx context.Context) error {
	if b.cfg.Database.Enabled {
		db, err := database.Open(database.FromConfig(b.cfg.Database))
		if err != nil {
			return fmt.Errorf("opening journal database: %w", err)
		}
		b.db = db
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrating journal database: %w", err)
		}
		b.recorder = journal.NewRecorder(journal.NewSQLiteRepository(db.DB), b.logger.With("component", "journal"))
		b.sinks.journal = b.recorder
		b.logger.Info("print journal enabled", "path", db.Path())
	}

	if b.cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, b.cfg.InfluxDB)
		if err != nil {
			b.logger.Warn("InfluxDB unavailable, metrics disabled", "error", err)
		} else {
			client.SetOnError(func(err error) {
				b.logger.Warn("InfluxDB write failed", "error", err)
			})
			b.metrics = client
			b.sinks.metrics = client
			b.logger.Info("InfluxDB metrics enabled", "url", b.cfg.InfluxDB.URL, "bucket", b.cfg.InfluxDB.Bucket)
		}
	}

	if b.cfg.API.Enabled {
		deps := api.Deps{
			Config:  b.cfg.API,
			Logger:  b.logger.With("component", "api"),
			Status:  b,
			Version: b.version,
			Checks:  b.healthChecks(),
		}
		if b.recorder != nil {
			deps.Jobs = b.recorder
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating status API: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting status API: %w", err)
		}
		b.api = srv
		b.sinks.live = srv
	}
	return nil
}

// healthChecks lists the connections the status API reports on. The
// journal and metrics appear only when they were opened.
func (b *Bridge) healthChecks() map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{
		"printer": b.printer,
		"obs":     b.obs,
	}
	if b.db != nil {
		checks["journal"] = b.db
	}
	if b.metrics != nil {
		checks["metrics"] = b.metrics
	}
	return checks
}

func (b *Bridge) closeSinks() {
	if b.api != nil {
		if err := b.api.Close(); err != nil {
			b.logger.Warn("closing status API", "error", err)
		}
	}
	if b.metrics != nil {
		if err := b.metrics.Close(); err != nil {
			b.logger.Warn("closing InfluxDB client", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			b.logger.Warn("closing journal database", "error", err)
		}
	}
}
