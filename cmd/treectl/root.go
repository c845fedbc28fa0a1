package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nodetree/internal/config"
	"nodetree/internal/domain/models"
	"nodetree/internal/domain/services"
	"nodetree/internal/repository"
	"nodetree/internal/service"
)

// app carries state shared by all subcommands of one invocation
type app struct {
	backendName string
	storePath   string
	jsonOutput  bool
	verbose     bool

	backend *repository.Backend
	tree    services.TreeService
	logger  *slog.Logger
}

// newRootCmd builds the command tree; the caller closes a after Execute
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "treectl",
		Short:         "Inspect and edit a node tree",
		Long:          "treectl opens the configured storage backend and runs tree operations against it.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.backendName, "backend", "b", "", "storage backend (memory, postgres, badger, jsonfile); defaults to STORAGE_BACKEND")
	flags.StringVarP(&a.storePath, "store", "s", "", "badger directory or JSON store file; defaults to BADGER_PATH / JSON_STORE_PATH")
	flags.BoolVar(&a.jsonOutput, "json", false, "print JSON instead of a table")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(
		newAddCmd(a),
		newMoveCmd(a),
		newShowCmd(a),
		newRootNodeCmd(a),
		newDescendantsCmd(a),
		newCheckCmd(a),
		newSeedCmd(a),
	)

	return rootCmd
}

// open resolves configuration and builds the tree service
func (a *app) open(cmd *cobra.Command) error {
	cfg := config.Load()
	if a.backendName != "" {
		cfg.StorageBackend = a.backendName
	}
	if a.storePath != "" {
		switch cfg.StorageBackend {
		case config.BackendBadger:
			cfg.BadgerPath = a.storePath
		case config.BackendJSONFile:
			cfg.JSONStorePath = a.storePath
		default:
			return fmt.Errorf("--store does not apply to the %s backend", cfg.StorageBackend)
		}
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	backend, err := repository.Open(cmd.Context(), cfg, a.logger)
	if err != nil {
		return err
	}
	a.backend = backend
	a.tree = service.NewTreeService(backend.Nodes, backend.Tx, nil, a.logger)
	return nil
}

func (a *app) close() error {
	if a.backend == nil {
		return nil
	}
	err := a.backend.Close()
	a.backend = nil
	return err
}

// printInfos writes nodes as a table or JSON array
func (a *app) printInfos(w io.Writer, infos []models.NodeInfo) error {
	if a.jsonOutput {
		return writeJSON(w, infos)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tDEPTH\tROOT")
	for _, info := range infos {
		parent := "-"
		if info.ParentID != nil {
			parent = *info.ParentID
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.ID, parent, info.Depth, info.Root)
	}
	return tw.Flush()
}

func (a *app) printInfo(w io.Writer, info *models.NodeInfo) error {
	if a.jsonOutput {
		return writeJSON(w, info)
	}
	return a.printInfos(w, []models.NodeInfo{*info})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
