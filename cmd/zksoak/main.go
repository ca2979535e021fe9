// Command zksoak drives a ZooKeeper ensemble load/soak test, fanning
// out P engine processes each maintaining N long-lived sessions.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rgs1/zksoak/internal/codec"
	"github.com/rgs1/zksoak/internal/engine"
	"github.com/rgs1/zksoak/internal/supervisor"
	"github.com/rgs1/zksoak/internal/zkconn"
	"github.com/rgs1/zksoak/pkg/workload"
)

const controlSecretEnv = "ZKSOAK_CONTROL_SECRET"

var (
	flagMaxEvents         int
	flagNumClients        int
	flagNumProcs          int
	flagWaitTimeMS        int
	flagSessionTimeoutMS  int
	flagSwitchUID         bool
	flagSleepAfterClients int
	flagSleepInBetween    int
	flagWatchedPath       string
	flagNumWorkers        int
	flagWorkloadKind      string
	flagChildIndex        int
	flagConfigPath        string
)

func main() {
	root := &cobra.Command{
		Use:     "zksoak [flags] SERVER",
		Short:   "ZooKeeper ensemble load-generation and soak-test harness",
		Version: "0.1.0",
		Args:    cobra.ExactArgs(1),
		RunE:    run,
	}

	flags := root.Flags()
	flags.IntVarP(&flagMaxEvents, "max-events", "e", 100, "readiness wait batch size")
	flags.IntVarP(&flagNumClients, "num-clients", "c", 500, "sessions per process")
	flags.IntVarP(&flagNumProcs, "num-procs", "p", 20, "processes to fan out")
	flags.IntVarP(&flagWaitTimeMS, "wait-time", "w", 50, "readiness wait timeout in ms")
	flags.IntVarP(&flagSessionTimeoutMS, "session-timeout", "s", 10000, "ZK session timeout in ms")
	flags.BoolVarP(&flagSwitchUID, "switch-uid", "u", false, "drop to <prefix><child_num> after fork")
	flags.IntVarP(&flagSleepAfterClients, "sleep-after-clients", "N", 0, "pace every N sessions (0 disables)")
	flags.IntVarP(&flagSleepInBetween, "sleep-in-between", "n", 5, "sleep seconds for pacing")
	flags.StringVarP(&flagWatchedPath, "watched-paths", "z", "/", "target path")
	flags.IntVarP(&flagNumWorkers, "num-workers", "W", 1, "protocol-processing threads per engine")
	flags.StringVar(&flagWorkloadKind, "workload", "ephemeral", "workload kind: ephemeral or children")
	flags.IntVar(&flagChildIndex, "child-index", -1, "internal: this process is child N of the supervisor fan-out")
	flags.StringVar(&flagConfigPath, "config", "", "optional config file path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to spec.md §7's exit code taxonomy.
func exitCodeFor(err error) int {
	var fe *engine.FatalError
	if as(err, &fe) {
		return fe.Code
	}
	return engine.ExitBadParams
}

func as(err error, target **engine.FatalError) bool {
	for err != nil {
		if fe, ok := err.(*engine.FatalError); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func run(cmd *cobra.Command, args []string) error {
	server := args[0]

	cfg, err := engine.LoadConfig(flagConfigPath)
	if err != nil {
		return &engine.FatalError{Code: engine.ExitBadParams, Err: err}
	}
	applyFlags(cfg, server)

	log := engine.NewLogger(cfg.Logging)
	log.Info("starting zksoak",
		"server", cfg.Server.Address,
		"num_clients", cfg.Server.NumClients,
		"num_procs", cfg.Server.NumProcs,
		"num_workers", cfg.Server.NumWorkers,
		"workload", cfg.Workload.Kind,
		"child_index", flagChildIndex)

	if flagChildIndex >= 0 {
		return runChild(cmd.Context(), cfg, log)
	}
	return runSupervisor(cmd.Context(), cfg, log)
}

func applyFlags(cfg *engine.Config, server string) {
	cfg.Server.Address = server
	cfg.Server.MaxEvents = flagMaxEvents
	cfg.Server.NumClients = flagNumClients
	cfg.Server.NumProcs = flagNumProcs
	cfg.Server.WaitTimeMS = flagWaitTimeMS
	cfg.Server.SwitchUID = flagSwitchUID
	cfg.Server.NumWorkers = flagNumWorkers
	cfg.Session.TimeoutMS = flagSessionTimeoutMS
	cfg.Pacing.SleepAfterClients = flagSleepAfterClients
	cfg.Pacing.SleepInBetweenSecs = flagSleepInBetween
	cfg.Workload.Path = flagWatchedPath
	cfg.Workload.Kind = flagWorkloadKind
}

// runSupervisor re-execs itself NumProcs times and waits.
func runSupervisor(ctx context.Context, cfg *engine.Config, log *engine.Logger) error {
	self, err := os.Executable()
	if err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: err}
	}

	secCfg := supervisor.DefaultSocketSecurityConfig()
	ctrlSrv, secret, err := supervisor.NewControlServer(secCfg, log)
	if err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: err}
	}

	sockMgr := supervisor.NewSocketManager(supervisor.SocketConfig{
		Dir:         secCfg.SocketDir,
		Prefix:      "zksoak",
		Permissions: uint32(secCfg.SocketPerms),
	})
	if err := sockMgr.EnsureSocketDir(); err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: err}
	}
	_ = sockMgr.CleanupAllSockets()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	base := supervisor.ChildConfig{
		Self:      self,
		SwitchUID: cfg.Server.SwitchUID,
		UIDPrefix: cfg.Server.UIDPrefix,
		Env:       []string{fmt.Sprintf("%s=%s", controlSecretEnv, base64.StdEncoding.EncodeToString(secret))},
		ExtraArgs: []string{cfg.Server.Address,
			"--num-clients", itoa(cfg.Server.NumClients),
			"--num-workers", itoa(cfg.Server.NumWorkers),
			"--max-events", itoa(cfg.Server.MaxEvents),
			"--wait-time", itoa(cfg.Server.WaitTimeMS),
			"--session-timeout", itoa(cfg.Session.TimeoutMS),
			"--sleep-after-clients", itoa(cfg.Pacing.SleepAfterClients),
			"--sleep-in-between", itoa(cfg.Pacing.SleepInBetweenSecs),
			"--watched-paths", cfg.Workload.Path,
			"--workload", cfg.Workload.Kind,
		},
	}

	sup := supervisor.NewSupervisor(cfg.Server.NumProcs, base, log)

	for i := range sup.Children() {
		socketPath := sockMgr.PathForChild(i)
		go func(idx int, socketPath string) {
			if err := ctrlSrv.Serve(ctx, socketPath, func(hb supervisor.Heartbeat) {
				log.Info("heartbeat", "child", hb.Child, "slots_established", hb.SlotsEstablished,
					"slots_healthy", hb.SlotsHealthy, "queue_depth", hb.QueueDepth)
			}); err != nil {
				log.Warn("control server exited", "child", idx, "error", err)
			}
		}(i, socketPath)
	}

	if err := sup.Start(ctx); err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: err}
	}

	return sup.Wait()
}

// runChild runs a single engine process: this is what the supervisor's
// re-exec'd children actually execute.
func runChild(ctx context.Context, cfg *engine.Config, log *engine.Logger) error {
	if cfg.Server.SwitchUID {
		if err := supervisor.DropPrivileges(cfg.Server.UIDPrefix, flagChildIndex); err != nil {
			return err
		}
	}

	factory := zkconn.Init

	var wl engine.Workload
	switch cfg.Workload.Kind {
	case "children":
		wl = &workload.Children{Path: cfg.Workload.Path, Log: log}
	default:
		wl = &workload.Ephemeral{Path: cfg.Workload.Path, Log: log}
	}

	eng, err := engine.New(cfg, wl, factory, log)
	if err != nil {
		return &engine.FatalError{Code: engine.ExitSystemCall, Err: err}
	}
	defer eng.Close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := eng.StartStatsReporter(ctx, codec.TypeJSON, 30*time.Second); err != nil {
		log.Warn("stats reporter failed to start", "error", err)
	}

	if secretB64 := os.Getenv(controlSecretEnv); secretB64 != "" {
		secret, err := base64.StdEncoding.DecodeString(secretB64)
		if err == nil {
			secCfg := supervisor.DefaultSocketSecurityConfig()
			sockMgr := supervisor.NewSocketManager(supervisor.SocketConfig{
				Dir:    secCfg.SocketDir,
				Prefix: "zksoak",
			})
			client := supervisor.NewControlClient(secret, log)
			go func() {
				_ = client.Run(ctx, sockMgr.PathForChild(flagChildIndex), 5*time.Second, func() supervisor.Heartbeat {
					return supervisor.Heartbeat{Child: flagChildIndex}
				})
			}()
		}
	}

	return eng.Run(ctx)
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
