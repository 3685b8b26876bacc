package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/cdot/Squirrel-sub002/internal"
	"github.com/cdot/Squirrel-sub002/internal/hoard"
	"github.com/cdot/Squirrel-sub002/internal/importer"
	"github.com/cdot/Squirrel-sub002/internal/mcpserver"
	pkgconfig "github.com/cdot/Squirrel-sub002/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// withVault runs fn against the configured vault. Logs go to stderr so
// stdout carries only the command's output.
func withVault(ctx context.Context, cmd *cli.Command, fn func(*internal.Vault) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	v, err := internal.OpenVault(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer v.Close()
	return fn(v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	return withVault(ctx, cmd, func(v *internal.Vault) error {
		rep, err := v.Service.Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		return printJSON(cmd.Root().Writer, rep)
	})
}

func alarms(ctx context.Context, cmd *cli.Command) error {
	return withVault(ctx, cmd, func(v *internal.Vault) error {
		rung, err := v.Service.CheckAlarms(ctx)
		for _, r := range rung {
			fmt.Fprintf(cmd.Root().Writer, "%s\t%s\n", r.Due.Format("2006-01-02 15:04"), r.Path)
		}
		return err
	})
}

func importFile(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 3 {
		return fmt.Errorf("import: expected <parent> <name> <file>")
	}
	parent := hoard.ParsePath(cmd.Args().Get(0))
	name := cmd.Args().Get(1)
	file := cmd.Args().Get(2)

	format, err := importer.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if format == importer.FormatAuto {
		if f, err := importer.ParseFormat(filepath.Ext(file)); err == nil {
			format = f
		}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return withVault(ctx, cmd, func(v *internal.Vault) error {
		res, err := v.Service.Import(ctx, parent, name, data, format)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if !res.OK() {
			return fmt.Errorf("import: %s", res.Conflict)
		}
		fmt.Fprintln(cmd.Root().Writer, res.Action.String())
		return nil
	})
}

func tree(ctx context.Context, cmd *cli.Command) error {
	return withVault(ctx, cmd, func(v *internal.Vault) error {
		data, err := v.Service.TreeJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.Root().Writer, string(data))
		return err
	})
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	return withVault(ctx, cmd, func(v *internal.Vault) error {
		return mcpserver.New(v.Service, version).ServeStdio()
	})
}

func main() {
	cmd := &cli.Command{
		Name:    "squirrel",
		Usage:   "Personal secrets store with offline edits reconciled through a shared cloud copy",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml, .json or .jsonc)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, event stream, alarm scanner and periodic sync",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Reconcile once with the cloud copy and print the report",
				Action: syncOnce,
			},
			{
				Name:   "alarms",
				Usage:  "Ring due alarms once and print them",
				Action: alarms,
			},
			{
				Name:      "import",
				Usage:     "Graft a JSON or YAML file into the tree",
				ArgsUsage: "<parent> <name> <file>",
				Action:    importFile,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "json or yaml (detected when empty)",
					},
				},
			},
			{
				Name:   "tree",
				Usage:  "Print the tree as JSON",
				Action: tree,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
