package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mesosphere/svc-scheduler/pkg/config"
	"github.com/mesosphere/svc-scheduler/pkg/evaluator"
	"github.com/mesosphere/svc-scheduler/pkg/events"
	"github.com/mesosphere/svc-scheduler/pkg/log"
	"github.com/mesosphere/svc-scheduler/pkg/mesosapi"
	"github.com/mesosphere/svc-scheduler/pkg/metrics"
	"github.com/mesosphere/svc-scheduler/pkg/reconcile"
	"github.com/mesosphere/svc-scheduler/pkg/scheduler"
	"github.com/mesosphere/svc-scheduler/pkg/storage"
	"github.com/mesosphere/svc-scheduler/pkg/store"
	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var cfg = config.Default()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(mesosapi.ExitGeneral)
	}
}

var rootCmd = &cobra.Command{
	Use:     "schedulerd",
	Short:   "Two-level resource-offer scheduler for a single service",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("schedulerd version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar((*string)(&cfg.LogLevel), "log-level", string(cfg.LogLevel), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&cfg.LogJSON, "log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	log.Init(log.Config{
		Level:      cfg.LogLevel,
		JSONOutput: cfg.LogJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler against a Mesos-compatible master",
	RunE:  runScheduler,
}

func init() {
	def := config.Default()
	runCmd.Flags().StringVar(&cfg.DataDir, "data-dir", def.DataDir, "Directory for persistent scheduler state")
	runCmd.Flags().StringVar(&cfg.Master, "master", def.Master, "Master endpoint (host:port or zk://...)")
	runCmd.Flags().StringVar(&cfg.FrameworkName, "framework-name", def.FrameworkName, "Framework name to register under")
	runCmd.Flags().StringVar(&cfg.Principal, "principal", def.Principal, "Framework principal for reservations and volumes")
	runCmd.Flags().StringVar(&cfg.Role, "role", def.Role, "Resource role to reserve under")
	runCmd.Flags().StringVar(&cfg.User, "user", def.User, "Unix user to run tasks as")
	runCmd.Flags().BoolVar(&cfg.Checkpoint, "checkpoint", def.Checkpoint, "Enable framework checkpointing")
	runCmd.Flags().IntVar(&cfg.QueueCapacity, "queue-capacity", def.QueueCapacity, "Bounded offer-batch queue capacity")
	runCmd.Flags().BoolVar(&cfg.DisableThreading, "disable-threading", false, "Run the offer processor synchronously (tests/debugging only)")
	runCmd.Flags().IntVar(&cfg.DeclineRefuseSecs, "decline-refuse-seconds", def.DeclineRefuseSecs, "Refuse-seconds value kept in the config; declines use the fixed short (5s) and long (~2 weeks) filters")
	runCmd.Flags().DurationVar(&cfg.ReconcileFloor, "reconcile-floor", def.ReconcileFloor, "Floor of the implicit-reconciliation backoff")
	runCmd.Flags().DurationVar(&cfg.ReconcileCeiling, "reconcile-ceiling", def.ReconcileCeiling, "Ceiling of the implicit-reconciliation backoff")
	runCmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", def.MetricsAddr, "Address to serve /metrics on")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.WithComponent("main")
	logger.Info().Str("master", cfg.Master).Str("framework", cfg.FrameworkName).Msg("starting schedulerd")

	backing, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		metrics.RegisterComponent("storage", false, err.Error())
		return fmt.Errorf("failed to open data dir %s: %w", cfg.DataDir, err)
	}
	defer backing.Close()
	metrics.RegisterComponent("storage", true, "")

	frameworkStore := store.NewFrameworkStore(backing)
	stateStore, err := store.NewStateStore(backing)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	configStore := store.NewConfigStore(backing)

	bus := events.NewBroker()
	bus.Start()
	defer bus.Stop()

	tracker := evaluator.NewOfferOutcomeTracker(256)

	svc := initialServiceSpec(cfg)
	serviceScheduler := scheduler.NewServiceScheduler(configStore, stateStore, svc)
	// A persisted uninstall bit means an earlier run was uninstalling:
	// resume in uninstall mode instead of deploying.
	if _, err := stateStore.FetchProperty("/SchedulerState", "Uninstall"); err == nil {
		if err := serviceScheduler.ToUninstallScheduler(svc); err != nil {
			return fmt.Errorf("failed to resume uninstall: %w", err)
		}
	}

	driver, err := dialDriver(cfg)
	if err != nil {
		metrics.RegisterComponent("driver", false, err.Error())
		return fmt.Errorf("failed to connect to master %s: %w", cfg.Master, err)
	}
	metrics.RegisterComponent("driver", true, "")

	planScheduler := scheduler.NewPlanScheduler(
		serviceScheduler.Coordinator(), stateStore, driver, tracker, cfg.RoleWhitelist, cfg.Principal, cfg.Role,
	)

	// Once uninstall has torn down every pod, there's nothing left to offer
	// against: every batch this tick wrapper sees is declined short (so the
	// master keeps re-offering while FinalizeUninstall races to shut things
	// down) instead of being handed to PlanScheduler, which would otherwise
	// happily re-run an evaluation pass over an empty plan forever.
	tick := func(offers []types.Offer) {
		if serviceScheduler.IsUninstalling() && serviceScheduler.Complete() {
			for _, offer := range offers {
				if err := driver.DeclineOffer(offer.ID, scheduler.DeclineShort); err != nil {
					logger.Error().Err(err).Str("offer_id", offer.ID).Msg("failed to decline offer during uninstall")
				}
			}
			if err := serviceScheduler.FinalizeUninstall(svc.Name, backing, driver); err != nil {
				logger.Error().Err(err).Msg("failed to finalize uninstall")
			}
			return
		}
		planScheduler.Tick(offers)
	}
	processor := scheduler.NewOfferProcessor(cfg.QueueCapacity, tick)
	if cfg.DisableThreading {
		processor.DisableThreading()
	} else {
		processor.Start()
		defer processor.Stop()
	}
	metrics.RegisterComponent("offer_processor", true, "")

	// frameworkScheduler is the sole mesosapi.EventHandler. A concrete
	// driver implementation typically exposes a way to register it as the
	// callback target; mesosapi.SchedulerDriver itself stays narrow (just
	// the outbound calls) so mesosapi.FakeDriver can satisfy it without
	// knowing about callback wiring.
	frameworkScheduler := scheduler.NewFrameworkScheduler(frameworkStore, stateStore, serviceScheduler, processor, driver, tracker)
	if registrar, ok := driver.(interface {
		RegisterHandler(mesosapi.EventHandler) error
	}); ok {
		if err := registrar.RegisterHandler(frameworkScheduler); err != nil {
			return fmt.Errorf("failed to register event handler: %w", err)
		}
	}

	reconciler := reconcile.NewImplicitReconciler(stateStore, driver, reconcile.Backoff{Floor: cfg.ReconcileFloor, Ceiling: cfg.ReconcileCeiling})
	reconciler.Start()
	defer reconciler.Stop()

	go serveMetrics(cfg.MetricsAddr, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	for sig := range sigCh {
		if sig == syscall.SIGUSR1 {
			logger.Info().Msg("received SIGUSR1, transitioning to uninstall mode")
			if err := serviceScheduler.ToUninstallScheduler(svc); err != nil {
				logger.Error().Err(err).Msg("failed to transition to uninstall mode")
			}
			continue
		}
		break
	}
	logger.Info().Msg("shutting down")
	return nil
}

func serveMetrics(addr string, logger zerolog.Logger) {
	metrics.SetVersion(Version)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server exited")
	}
}

// dialDriver is the integration seam where a concrete mesosapi.SchedulerDriver
// (the real scheduler driver or its HTTP API equivalent) gets constructed.
// That library is outside this module's scope, the same way the teacher's
// own gRPC client lives behind its own package; wiring one in here is a
// follow-up, not a redesign of anything above this line.
func dialDriver(cfg config.Config) (mesosapi.SchedulerDriver, error) {
	return nil, fmt.Errorf("no concrete mesosapi.SchedulerDriver wired for master %q", cfg.Master)
}

// initialServiceSpec is a placeholder target until a real config-delivery
// path (file, API, or operator CLI) is wired up; every pod and task it
// declares becomes the service's first deploy plan.
func initialServiceSpec(cfg config.Config) *types.ServiceSpec {
	return &types.ServiceSpec{
		Name:      cfg.FrameworkName,
		Principal: cfg.Principal,
		Role:      cfg.Role,
	}
}
