package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glimte/nestq"
	"github.com/glimte/nestq/health"
	"github.com/glimte/nestq/transports/amqp"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// envSettings are the NESTQ_-prefixed environment defaults. Flags win
// over them, they win over the built-in defaults.
type envSettings struct {
	DataDir    string `envconfig:"DATA_DIR" default:"./nestq-data"`
	AMQPURL    string `envconfig:"AMQP_URL"`
	AsyncIO    bool   `envconfig:"ASYNC_IO"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	HealthAddr string `envconfig:"HEALTH_ADDR" default:":8085"`
	Topology   string `envconfig:"TOPOLOGY"`
}

// greetCommand is the demo workload: it logs a greeting.
type greetCommand struct {
	Name string `json:"name"`
}

func (c *greetCommand) Execute(ctx context.Context) error {
	slog.Info("greetings", "name", c.Name)
	return nil
}

// sleepCommand simulates slow work, so listener concurrency and queue
// backlogs become visible.
type sleepCommand struct {
	Millis int `json:"millis"`
}

func (c *sleepCommand) Execute(ctx context.Context) error {
	select {
	case <-time.After(time.Duration(c.Millis) * time.Millisecond):
		slog.Info("slept", "millis", c.Millis)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func registerDemoCommands() error {
	if err := nestq.RegisterCommand("demo.greet", func() nestq.Command {
		return &greetCommand{}
	}); err != nil {
		return err
	}
	return nestq.RegisterCommand("demo.sleep", func() nestq.Command {
		return &sleepCommand{}
	})
}

type topologyFile struct {
	Queues []topologyQueue `yaml:"queues"`
}

type topologyQueue struct {
	Name      string `yaml:"name"`
	Listeners int    `yaml:"listeners"`
}

// loadTopology reads the queue layout from a YAML file, or falls back to
// the built-in demo topology.
func loadTopology(path string) ([]nestq.QueueConfig, error) {
	if path == "" {
		return []nestq.QueueConfig{
			{Name: "greetings", Listeners: 3},
			{Name: "work", Listeners: 2},
		}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	var file topologyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	if len(file.Queues) == 0 {
		return nil, fmt.Errorf("topology %s declares no queues", path)
	}

	queues := make([]nestq.QueueConfig, 0, len(file.Queues))
	for _, q := range file.Queues {
		queues = append(queues, nestq.QueueConfig{Name: q.Name, Listeners: q.Listeners})
	}
	return queues, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openNest opens against the external broker when an AMQP URL is given,
// otherwise against the embedded one in dataDir.
func openNest(ctx context.Context, dataDir, amqpURL string, asyncIO bool, queues []nestq.QueueConfig, logger *slog.Logger) (*nestq.Nest, error) {
	if amqpURL != "" {
		engine, err := amqp.New(amqpURL, amqp.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return nestq.OpenWithEngine(ctx, engine, queues, nestq.WithLogger(logger))
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return nestq.Open(ctx, dataDir, queues,
		nestq.WithLogger(logger),
		nestq.WithAsyncIO(asyncIO))
}

func main() {
	var env envSettings
	if err := envconfig.Process("nestq", &env); err != nil {
		log.Fatal(err)
	}

	rootCmd := &cobra.Command{
		Use:   "nestq-demo",
		Short: "Run and exercise a nestq command queue",
		Long: `nestq-demo boots a nestq instance and feeds it demo commands.

By default it runs the embedded broker against a local data directory;
--amqp-url switches everything to an external AMQP broker. The embedded
broker is single-process: stop a running nest before pointing another
command at the same data directory.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	// Global flags
	var (
		dataDir  string
		amqpURL  string
		asyncIO  bool
		logLevel string
		topology string
	)

	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", env.DataDir, "Directory for the embedded broker's storage")
	rootCmd.PersistentFlags().StringVar(&amqpURL, "amqp-url", env.AMQPURL, "Run against an external AMQP broker instead of the embedded one")
	rootCmd.PersistentFlags().BoolVar(&asyncIO, "async-io", env.AsyncIO, "Use asynchronous journal writes (embedded broker only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", env.LogLevel, "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVarP(&topology, "topology", "t", env.Topology, "YAML file declaring queues and listener counts")

	// Run command
	var healthAddr string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the nest until interrupted",
		Long:  "Boots the broker, provisions the queues, executes incoming commands, and serves health endpoints until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			slog.SetDefault(logger)

			if err := registerDemoCommands(); err != nil {
				return err
			}
			queues, err := loadTopology(topology)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			nest, err := openNest(ctx, dataDir, amqpURL, asyncIO, queues, logger)
			if err != nil {
				return err
			}
			defer nest.Stop()

			registry := health.NewRegistry()
			registry.Register(health.NewEngineChecker(nest.Engine(), nest.Queues(), logger))
			registry.Register(health.NewRuntimeChecker(0, 0))

			mux := http.NewServeMux()
			mux.Handle("/healthz", health.NewHandler(registry, 5*time.Second))
			mux.Handle("/readyz", health.ReadinessHandler(registry))
			mux.Handle("/livez", health.LivenessHandler())
			server := &http.Server{Addr: healthAddr, Handler: mux}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("health endpoint failed", "error", err)
				}
			}()
			defer server.Close()

			logger.Info("nest running",
				"queues", strings.Join(nest.Queues(), ","),
				"health", healthAddr)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			logger.Info("shutting down")
			return nil
		},
	}
	runCmd.Flags().StringVar(&healthAddr, "health-addr", env.HealthAddr, "Listen address for the health endpoints")

	// Send command
	var (
		queue      string
		name       string
		count      int
		persistent bool
		priority   uint8
		ttl        time.Duration
		sleepMs    int
	)
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Enqueue demo commands",
		Long:  "Declares the queues, enqueues commands, and exits without consuming. Messages stay queued until a run drains them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			slog.SetDefault(logger)

			if err := registerDemoCommands(); err != nil {
				return err
			}
			queues, err := loadTopology(topology)
			if err != nil {
				return err
			}
			for i := range queues {
				queues[i].Listeners = 0
			}

			ctx := context.Background()
			nest, err := openNest(ctx, dataDir, amqpURL, asyncIO, queues, logger)
			if err != nil {
				return err
			}
			defer nest.Stop()

			opts := []nestq.SendOption{
				nestq.WithPersistent(persistent),
				nestq.WithPriority(priority),
			}
			if ttl > 0 {
				opts = append(opts, nestq.WithTTL(ttl))
			}

			for i := 0; i < count; i++ {
				var payload nestq.Command = &greetCommand{Name: fmt.Sprintf("%s-%d", name, i+1)}
				if sleepMs > 0 {
					payload = &sleepCommand{Millis: sleepMs}
				}
				if err := nest.Send(ctx, queue, payload, opts...); err != nil {
					return err
				}
			}

			depth, err := nest.QueueDepth(ctx, queue)
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued %d commands on %s (depth now %d)\n", count, queue, depth)
			return nil
		},
	}
	sendCmd.Flags().StringVarP(&queue, "queue", "q", "greetings", "Target queue")
	sendCmd.Flags().StringVar(&name, "name", "gopher", "Name the greetings carry")
	sendCmd.Flags().IntVarP(&count, "count", "n", 1, "How many commands to enqueue")
	sendCmd.Flags().BoolVar(&persistent, "persistent", false, "Mark the messages for durable delivery")
	sendCmd.Flags().Uint8Var(&priority, "priority", 4, "Message priority, 0 (lowest) to 9 (highest)")
	sendCmd.Flags().DurationVar(&ttl, "ttl", 0, "Discard undelivered messages after this long (0 = never)")
	sendCmd.Flags().IntVar(&sleepMs, "sleep", 0, "Send sleep commands of this many milliseconds instead of greetings")

	// Depth command
	depthCmd := &cobra.Command{
		Use:   "depth [queue-names...]",
		Short: "Show queue depths",
		Long:  "Declares the queues without consuming and prints how many messages each one holds.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			slog.SetDefault(logger)

			queues, err := loadTopology(topology)
			if err != nil {
				return err
			}
			for i := range queues {
				queues[i].Listeners = 0
			}

			ctx := context.Background()
			nest, err := openNest(ctx, dataDir, amqpURL, asyncIO, queues, logger)
			if err != nil {
				return err
			}
			defer nest.Stop()

			names := args
			if len(names) == 0 {
				names = nest.Queues()
			}

			fmt.Printf("%-30s %-10s %-8s\n", "Queue", "Messages", "Slots")
			fmt.Println(strings.Repeat("-", 50))
			for _, q := range names {
				info, err := nest.Inspect(ctx, q)
				if err != nil {
					return err
				}
				fmt.Printf("%-30s %-10d %-8d\n", truncate(info.Name, 30), info.Messages, info.Slots)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, sendCmd, depthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
