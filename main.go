// Copyright (c) 2024 cblomart
// Licensed under the MIT License

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "feedrelay/docs"
	"feedrelay/internal/api"
	"feedrelay/internal/backend"
	"feedrelay/internal/config"
	"feedrelay/internal/extraction"
	"feedrelay/internal/itemcache"
	"feedrelay/internal/logging"
	"feedrelay/internal/models"
	"feedrelay/internal/poller"
	"feedrelay/internal/reader"
	"feedrelay/internal/storage"

	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "feedrelay",
		Usage: "feed ingestion service and reader",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Before: func(c *cli.Context) error {
			logging.Init(c.String("log-level"), os.Stderr)
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			itemsCommand(),
			markCommand(),
			prefsCommand(),
			viewsCommand(),
		},
	}

	if err := run(app); err != nil {
		logging.Error("Command failed", "err", err)
		os.Exit(1)
	}
}

func run(app *cli.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return app.RunContext(ctx, os.Args)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "poll feeds, run the extraction worker and serve the API",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !c.IsSet("log-level") {
				logging.Init(cfg.LogLevel, os.Stderr)
			}

			store, err := storage.NewStorage(cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			backgroundPoller := poller.New(store, extraction.NewReadabilityExtractor(cfg.Extraction.Timeout), cfg.Sources, poller.Options{
				PollInterval:       cfg.PollInterval,
				ExtractionTimeout:  cfg.Extraction.Timeout,
				ExtractionRate:     cfg.Extraction.RatePerSecond,
				Retention:          cfg.ItemRetention,
				AutoExtractPartial: cfg.Extraction.AutoExtractPartial,
			})
			backgroundPoller.Start()
			defer backgroundPoller.Stop()

			server := api.NewServer(store, backgroundPoller, cfg)

			logging.Info("Starting feedrelay", "port", cfg.Port, "data_dir", cfg.DataDir,
				"poll_interval", cfg.PollInterval, "item_retention", cfg.ItemRetention, "sources", len(cfg.Sources))

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-c.Context.Done():
				logging.Info("Received shutdown signal, stopping services...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logging.Warn("Server shutdown did not complete cleanly", "err", err)
			}
			return <-errCh
		},
	}
}

func backendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "base URL of the feedrelay server (default: $BACKEND_URL)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "request timeout",
			Value: 30 * time.Second,
		},
	}
}

func newClient(c *cli.Context) (*backend.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	baseURL := cfg.BackendURL
	if c.IsSet("backend") {
		baseURL = c.String("backend")
	}
	return backend.NewClient(baseURL, c.Duration("timeout")), cfg, nil
}

func newSession(c *cli.Context) (*reader.Session, *backend.Client, error) {
	client, cfg, err := newClient(c)
	if err != nil {
		return nil, nil, err
	}
	return reader.NewSession(client, reader.Options{
		PreferenceTTL: cfg.PreferenceCacheTTL,
		RetryWindow:   cfg.Extraction.RetryInterval,
	}), client, nil
}

func itemsCommand() *cli.Command {
	return &cli.Command{
		Name:  "items",
		Usage: "list items one page at a time",
		Flags: append(backendFlags(),
			&cli.StringFlag{Name: "state", Usage: "unread, read, archived or deleted"},
			&cli.StringSliceFlag{Name: "group", Usage: "only items from sources in these groups"},
			&cli.StringFlag{Name: "view", Usage: "saved view name or id; overrides --group"},
			&cli.IntFlag{Name: "page", Value: 1},
			&cli.IntFlag{Name: "per-page", Usage: "change the stored page size (10, 20, 50 or 100)"},
			&cli.BoolFlag{Name: "content", Usage: "show the full resolved content as Markdown"},
		),
		Action: func(c *cli.Context) error {
			session, client, err := newSession(c)
			if err != nil {
				return err
			}
			defer session.Close()

			query := models.ItemQuery{State: c.String("state"), GroupNames: c.StringSlice("group")}
			if ref := c.String("view"); ref != "" {
				if query, err = reader.ViewQuery(c.Context, client, ref, c.String("state")); err != nil {
					return err
				}
			}
			if err := session.Open(c.Context, query); err != nil {
				return err
			}

			if n := c.Int("per-page"); n != 0 {
				if err := session.SetItemsPerPage(c.Context, n); err != nil {
					return err
				}
			}

			entries, ok := session.Page(c.Context, c.Int("page"))
			if !ok && session.Pages().TotalPages() > 0 {
				return cli.Exit(fmt.Sprintf("page %d is out of range (1-%d)", c.Int("page"), session.Pages().TotalPages()), 1)
			}

			now := time.Now()
			for _, entry := range entries {
				fmt.Println(reader.FormatEntry(entry, now, c.Bool("content")))
			}
			fmt.Println(reader.FormatPageFooter(session))
			return nil
		},
	}
}

func markCommand() *cli.Command {
	return &cli.Command{
		Name:      "mark",
		Usage:     "move items to another state",
		ArgsUsage: "ID [ID...]",
		Flags: append(backendFlags(),
			&cli.StringFlag{Name: "state", Usage: "unread, read, archived or deleted", Required: true},
			&cli.BoolFlag{Name: "trash", Usage: "the ids come from the trash listing"},
		),
		Action: func(c *cli.Context) error {
			state, err := models.ParseItemState(c.String("state"))
			if err != nil {
				return err
			}
			ids, err := parseIDs(c.Args().Slice())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return cli.Exit("at least one item id is required", 1)
			}

			view := itemcache.ViewNormal
			query := models.ItemQuery{}
			if c.Bool("trash") {
				view = itemcache.ViewTrash
				query.State = string(models.StateDeleted)
			}

			session, _, err := newSession(c)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Open(c.Context, query); err != nil {
				return err
			}
			result, err := session.Mark(c.Context, ids, state, view)
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d updated, %d removed from the %s view\n",
				result.Outcome, len(result.Updated), len(result.Removed), view)
			return nil
		},
	}
}

func prefsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "show or change reader preferences",
		Flags: append(backendFlags(),
			&cli.StringFlag{Name: "view-mode", Usage: "auto, feed_only or always_fetch"},
			&cli.StringFlag{Name: "extraction", Usage: "on or off"},
			&cli.IntFlag{Name: "per-page", Usage: "10, 20, 50 or 100"},
		),
		Action: func(c *cli.Context) error {
			session, _, err := newSession(c)
			if err != nil {
				return err
			}
			defer session.Close()

			prefs := session.Preferences()
			prefs.Load(c.Context)

			if mode := c.String("view-mode"); mode != "" {
				parsed, err := models.ParseArticleViewMode(mode)
				if err != nil {
					return err
				}
				if err := prefs.SetArticleViewMode(c.Context, parsed); err != nil {
					return err
				}
			}
			if value := c.String("extraction"); value != "" {
				enabled, err := parseSwitch(value)
				if err != nil {
					return err
				}
				if err := prefs.SetExtractionEnabled(c.Context, enabled); err != nil {
					return err
				}
			}
			if n := c.Int("per-page"); n != 0 {
				if err := prefs.SetItemsPerPage(c.Context, n); err != nil {
					return err
				}
			}

			current := prefs.Preferences(c.Context)
			fmt.Printf("article_view_mode:  %s\n", current.ArticleViewMode)
			fmt.Printf("extraction_enabled: %t\n", current.ExtractionEnabled)
			fmt.Printf("items_per_page:     %d\n", current.ItemsPerPage)
			return nil
		},
	}
}

func viewsCommand() *cli.Command {
	filterFlags := []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "view name", Required: true},
		&cli.Int64SliceFlag{Name: "source", Usage: "source ids to include"},
		&cli.StringSliceFlag{Name: "group", Usage: "group names to include"},
	}
	viewInput := func(c *cli.Context) models.CustomViewInput {
		return models.CustomViewInput{
			Name:       c.String("name"),
			SourceIDs:  c.Int64Slice("source"),
			GroupNames: c.StringSlice("group"),
		}
	}
	viewID := func(c *cli.Context) (int64, error) {
		ids, err := parseIDs(c.Args().Slice())
		if err != nil {
			return 0, err
		}
		if len(ids) != 1 {
			return 0, cli.Exit("exactly one view id is required", 1)
		}
		return ids[0], nil
	}

	return &cli.Command{
		Name:  "views",
		Usage: "manage saved source and group filters",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "show saved views",
				Flags: backendFlags(),
				Action: func(c *cli.Context) error {
					client, _, err := newClient(c)
					if err != nil {
						return err
					}
					views, err := client.ListViews(c.Context)
					if err != nil {
						return err
					}
					if len(views) == 0 {
						fmt.Println("No saved views")
					}
					for _, view := range views {
						fmt.Println(reader.FormatView(view))
					}
					return nil
				},
			},
			{
				Name:  "add",
				Usage: "save a new view",
				Flags: append(backendFlags(), filterFlags...),
				Action: func(c *cli.Context) error {
					client, _, err := newClient(c)
					if err != nil {
						return err
					}
					id, err := client.CreateView(c.Context, viewInput(c))
					if err != nil {
						return err
					}
					fmt.Printf("created view %d\n", id)
					return nil
				},
			},
			{
				Name:      "update",
				Usage:     "replace a view's name and filters",
				ArgsUsage: "ID",
				Flags:     append(backendFlags(), filterFlags...),
				Action: func(c *cli.Context) error {
					id, err := viewID(c)
					if err != nil {
						return err
					}
					client, _, err := newClient(c)
					if err != nil {
						return err
					}
					return client.UpdateView(c.Context, id, viewInput(c))
				},
			},
			{
				Name:      "remove",
				Usage:     "delete a view",
				ArgsUsage: "ID",
				Flags:     backendFlags(),
				Action: func(c *cli.Context) error {
					id, err := viewID(c)
					if err != nil {
						return err
					}
					client, _, err := newClient(c)
					if err != nil {
						return err
					}
					return client.DeleteView(c.Context, id)
				},
			},
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseSwitch(value string) (bool, error) {
	switch value {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", value)
}
