package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tarim/internal/graph"
	"github.com/agentic-research/tarim/internal/ingest"
	"github.com/agentic-research/tarim/internal/nfsmount"
	"github.com/agentic-research/tarim/internal/output"
)

var (
	mountAddr   string
	mountNoExec bool
)

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount the tree view as a read-only filesystem over NFS",
	Long: `Projects the tree view (tax-enriched when present) into directories
named <nc>_<id>, each holding name_<lang>, info_<lang>, path_<lang> and
tax.json files, and serves it over a local NFS server. Send SIGHUP to
reload the views after a new build; SIGINT or SIGTERM unmounts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mountPoint := args[0]
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Close() }() // safe to ignore

		out := output.OpenDir(cfg.DataDir)
		g, err := project(out, log.Logger)
		if err != nil {
			return err
		}
		hot := graph.NewHotSwapGraph(g)
		gfs := nfsmount.NewGraphFS(hot)
		gfs.SetReport(readReport(out))

		srv, err := nfsmount.NewServer(gfs, mountAddr)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }() // safe to ignore
		log.Info("nfs server listening", "port", srv.Port(), "nodes", g.Len())

		if mountNoExec {
			c, err := nfsmount.MountCommand(srv.Port(), mountPoint)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "NFS server on port %d; mount with:\n  %s\n", srv.Port(), c.String())
		} else {
			if err := os.MkdirAll(mountPoint, 0o755); err != nil {
				return fmt.Errorf("create mountpoint: %w", err)
			}
			if err := nfsmount.Mount(srv.Port(), mountPoint); err != nil {
				return err
			}
			defer func() {
				if err := nfsmount.Unmount(mountPoint); err != nil {
					log.Warn("unmount failed", "mountpoint", mountPoint, "err", err)
				}
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Mounted nomenclature at %s (read-only). Ctrl-C to unmount.\n", mountPoint)
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case sig := <-sigs:
				if sig != syscall.SIGHUP {
					log.Info("shutting down", "signal", sig.String())
					return nil
				}
				next, err := project(out, log.Logger)
				if err != nil {
					log.Error("reload failed, keeping current view", "err", err)
					continue
				}
				hot.Swap(next)
				gfs.SetReport(readReport(out))
				log.Info("reloaded views", "nodes", next.Len(), "swaps", hot.Swaps())
			}
		}
	},
}

// project loads the tree view from out and projects it into a graph.
func project(out *output.Dir, log *slog.Logger) (*graph.MemoryStore, error) {
	tree, name, err := ingest.LoadTree(out)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	g := graph.Project(tree, start)
	log.Info("projected tree view", "view", name, "nodes", g.Len(), "took", time.Since(start))
	return g, nil
}

// readReport returns run_report.json, or nil when there is none.
func readReport(out *output.Dir) []byte {
	data, err := out.ReadFile(output.ReportFile)
	if err != nil {
		return nil
	}
	return data
}

func init() {
	mountCmd.Flags().StringVar(&mountAddr, "addr", "127.0.0.1:0", "NFS listen address")
	mountCmd.Flags().BoolVar(&mountNoExec, "no-mount", false, "Only start the server and print the mount command")
	rootCmd.AddCommand(mountCmd)
}
