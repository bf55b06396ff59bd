package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/temario/internal/config"
	"github.com/jackzampolin/temario/internal/defra"
	"github.com/jackzampolin/temario/internal/home"
	"github.com/jackzampolin/temario/internal/schema"
)

var defraCmd = &cobra.Command{
	Use:   "defra",
	Short: "Manage the DefraDB node behind the defra store",
	Long: `Manage the DefraDB node used by 'temario serve --store defra'.

The node holds one collection per pipeline record:

  ContentArea  areas and their status (pending → extracting → analyzing
               → formatting → ready, or error)
  Page         OCR text keyed by (area_id, page_number)
  Topic        versioned topic sets; readers see the committed version
  TopicPage    page copies per topic
  BatchJob     cover generation jobs and their progress
  BatchResult  per-item results keyed by (job, item_id)

By default temario runs DefraDB in a Docker container named by
defra.container_name, with data in <home>/data/defra. When defra.url is
set the node is external: start, stop, logs and remove refuse to touch
it, while status, wait and schema talk to it over HTTP.

Examples:
  temario defra start    # create or start the container, apply schema
  temario defra status   # container state, health and document counts
  temario defra schema   # (re)apply the collection definitions
  temario defra remove   # drop the container, keep the data`,
}

var defraStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DefraDB container and apply the schema",
	Long: `Start the DefraDB container, creating it on first use.

An existing container is validated against the configured data directory
before it is reused. Once the node answers its health check the
collection definitions are applied; collections that already exist are
left alone. Pass --schema=false to skip that step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applySchema, _ := cmd.Flags().GetBool("schema")
		return withManagedNode(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			fmt.Println("Starting DefraDB...")
			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("failed to start DefraDB: %w", err)
			}
			if applySchema {
				if err := mgr.WaitReady(ctx); err != nil {
					return fmt.Errorf("DefraDB not ready: %w", err)
				}
				if err := schema.Initialize(ctx, defra.NewClient(mgr.URL()), cliLogger(cmd)); err != nil {
					return err
				}
			}
			fmt.Printf("DefraDB is running at %s\n", mgr.URL())
			return nil
		})
	},
}

var defraStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the DefraDB container",
	Long: `Stop the DefraDB container. Areas, pages and topics stay on disk
and are served again after 'temario defra start'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManagedNode(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			if err := mgr.Stop(ctx); err != nil {
				return fmt.Errorf("failed to stop DefraDB: %w", err)
			}
			fmt.Println("DefraDB stopped")
			return nil
		})
	},
}

var defraRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the DefraDB container",
	Long: `Stop and remove the DefraDB container. The data directory is not
touched, so a later start picks up every area and job again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManagedNode(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			if err := mgr.Remove(ctx); err != nil {
				return fmt.Errorf("failed to remove container: %w", err)
			}
			fmt.Println("DefraDB container removed (data preserved)")
			return nil
		})
	},
}

var defraLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show DefraDB container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetString("tail")
		return withManagedNode(cmd, func(ctx context.Context, mgr *defra.DockerManager) error {
			logs, err := mgr.Logs(ctx, tail)
			if err != nil {
				return fmt.Errorf("failed to get logs: %w", err)
			}
			fmt.Print(logs)
			return nil
		})
	},
}

var defraStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node state, health and document counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		t, err := resolveDefraTarget(0)
		if err != nil {
			return err
		}
		defer t.Close()

		if t.mgr != nil {
			st, err := t.mgr.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Printf("Container: %s\n", st)
			if st != defra.StatusRunning {
				fmt.Println("Use 'temario defra start' to bring it up.")
				return nil
			}
		} else {
			fmt.Println("Container: unmanaged (defra.url)")
		}
		fmt.Printf("URL: %s\n", t.url)

		client := defra.NewClient(t.url)
		if err := client.HealthCheck(ctx); err != nil {
			fmt.Printf("Health: unhealthy (%v)\n", err)
			return nil
		}
		fmt.Println("Health: healthy")
		return printCollectionCounts(ctx, os.Stdout, client)
	},
}

var defraWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for DefraDB to answer its health check",
	Long: `Block until DefraDB answers its health check or --timeout passes.
Scripts use this between 'temario defra start' and 'temario serve'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		t, err := resolveDefraTarget(timeout)
		if err != nil {
			return err
		}
		defer t.Close()

		fmt.Printf("Waiting for DefraDB at %s (timeout: %s)...\n", t.url, timeout)
		if t.mgr != nil {
			err = t.mgr.WaitReady(cmd.Context())
		} else {
			err = waitHealthy(cmd.Context(), defra.NewClient(t.url), timeout)
		}
		if err != nil {
			return fmt.Errorf("DefraDB not ready: %w", err)
		}
		fmt.Println("DefraDB is ready")
		return nil
	},
}

var defraSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Apply the collection definitions",
	Long: `Apply every collection definition to the node. Collections that
already exist are skipped, so this is safe to repeat. The server does the
same on start; this command is for nodes prepared ahead of time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resolveDefraTarget(0)
		if err != nil {
			return err
		}
		defer t.Close()

		if err := schema.Initialize(cmd.Context(), defra.NewClient(t.url), cliLogger(cmd)); err != nil {
			return err
		}
		fmt.Printf("Collections ready at %s:\n", t.url)
		for _, name := range schema.Names() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

func init() {
	defraCmd.AddCommand(defraStartCmd, defraStopCmd, defraStatusCmd, defraLogsCmd,
		defraRemoveCmd, defraWaitCmd, defraSchemaCmd)

	defraStartCmd.Flags().Bool("schema", true, "apply the collection definitions once the node is ready")
	defraLogsCmd.Flags().String("tail", "100", "number of lines to show from the end")
	defraWaitCmd.Flags().Duration("timeout", 30*time.Second, "how long to wait for the health check")

	rootCmd.AddCommand(defraCmd)
}

// defraTarget is the node a defra subcommand talks to. mgr is nil when
// defra.url points at an external node.
type defraTarget struct {
	url string
	mgr *defra.DockerManager
}

func (t *defraTarget) Close() error {
	if t.mgr == nil {
		return nil
	}
	return t.mgr.Close()
}

// resolveDefraTarget reads the defra config section. readyTimeout only
// applies to a managed container.
func resolveDefraTarget(readyTimeout time.Duration) (*defraTarget, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	c, err := loadCLIConfig(h)
	if err != nil {
		return nil, err
	}
	if c.Defra.URL != "" {
		return &defraTarget{url: c.Defra.URL}, nil
	}

	mgr, err := defra.NewDockerManager(defra.DockerConfig{
		ContainerName: c.Defra.ContainerName,
		Image:         c.Defra.Image,
		HostPort:      c.Defra.Port,
		DataPath:      h.DefraDir(),
		ReadyTimeout:  readyTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &defraTarget{url: mgr.URL(), mgr: mgr}, nil
}

// withManagedNode runs fn against the Docker-managed container and refuses
// external nodes.
func withManagedNode(cmd *cobra.Command, fn func(context.Context, *defra.DockerManager) error) error {
	t, err := resolveDefraTarget(0)
	if err != nil {
		return err
	}
	defer t.Close()
	if t.mgr == nil {
		return fmt.Errorf("defra.url is set to %s; that node is not managed by temario", t.url)
	}
	return fn(cmd.Context(), t.mgr)
}

// waitHealthy polls an external node once a second until it is healthy.
func waitHealthy(ctx context.Context, client *defra.Client, timeout time.Duration) error {
	attempts := uint(timeout / time.Second)
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		func() error { return client.HealthCheck(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// printCollectionCounts writes the number of documents in every
// collection. A collection the node does not know yet is reported as
// missing rather than failing the whole listing.
func printCollectionCounts(ctx context.Context, w io.Writer, client *defra.Client) error {
	fmt.Fprintln(w, "Collections:")
	for _, name := range schema.Names() {
		docs, err := defra.NewQuery(name).Execute(ctx, client)
		if err != nil {
			fmt.Fprintf(w, "  %-12s missing (%v)\n", name, err)
			continue
		}
		fmt.Fprintf(w, "  %-12s %d\n", name, len(docs))
	}
	return nil
}

func loadCLIConfig(h *home.Dir) (*config.Config, error) {
	file := cfgFile
	if file == "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	mgr, err := config.NewManager(file)
	if err != nil {
		return nil, err
	}
	return mgr.Get(), nil
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

func cliLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))
}
