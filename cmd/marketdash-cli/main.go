package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"marketdash/internal/columns"
	"marketdash/internal/config"
	"marketdash/internal/dashboard"
	"marketdash/internal/domain"
	"marketdash/internal/source"
	"marketdash/internal/store"
	"marketdash/internal/util"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: marketdash-cli [-config path] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                           Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  list                              List columns in display order\n")
	fmt.Fprintf(os.Stderr, "  add listing [community] [sort]    Add a community listing column\n")
	fmt.Fprintf(os.Stderr, "  add feed <url> [name]             Add an RSS/Atom feed column\n")
	fmt.Fprintf(os.Stderr, "  remove <id>                       Remove a column\n")
	fmt.Fprintf(os.Stderr, "  edit <id> key=value...            Merge parameters (empty value deletes)\n")
	fmt.Fprintf(os.Stderr, "  move <id> <index>                 Move a column to a position\n")
	fmt.Fprintf(os.Stderr, "  archive <id> [YYYY-MM-DD]         Show archived submissions\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	cfgPath := "config/marketdash.yaml"
	if p := os.Getenv("MARKETDASH_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	if args[0] == "version" {
		fmt.Printf("marketdash-cli %s\n", version)
		return
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLoggerTo(os.Stderr, "warn", cfg.Logging.Format)

	ctx := context.Background()
	kv, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening column store: %v", err)
	}
	defer kv.Close()

	defaults := cfg.Columns
	if len(defaults) == 0 {
		defaults = columns.Defaults()
	}
	cols, err := columns.Load(ctx, kv, defaults, logger)
	if err != nil {
		log.Fatalf("loading columns: %v", err)
	}
	if cols.UsingDefaults() {
		if err := cols.Save(ctx); err != nil {
			log.Fatalf("saving default columns: %v", err)
		}
	}

	// Adapters are only used to validate parameters here.
	listing, err := source.NewListingAdapter(source.ListingConfig{
		Multiplier:     cfg.Polling.RefreshMultiplier,
		HotInterval:    cfg.Polling.HotInterval,
		RisingInterval: cfg.Polling.RisingInterval,
		NewInterval:    cfg.Polling.NewInterval,
		NewJitter:      cfg.Polling.NewJitter,
		PermalinkBase:  cfg.Reddit.PermalinkBase,
		DefaultLimit:   cfg.Reddit.Limit,
	}, nil)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	registry := source.NewRegistry(listing, source.NewFeedAdapter(cfg.Polling.FeedInterval, nil))

	if err := run(ctx, cfg, cols, registry, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cols *columns.Store, registry *source.Registry, args []string) error {
	switch args[0] {
	case "list":
		return list(cols)

	case "add":
		if len(args) < 2 {
			return fmt.Errorf("add: expected \"listing\" or \"feed\"")
		}
		var kind domain.SourceKind
		var params map[string]string
		switch args[1] {
		case "listing":
			kind = domain.SourceListing
			params = columns.NewColumnParams()
			if len(args) > 2 {
				params["community"] = args[2]
			}
			if len(args) > 3 {
				params["sortMode"] = args[3]
			}
		case "feed":
			if len(args) < 3 {
				return fmt.Errorf("add feed: url is required")
			}
			kind = domain.SourceFeed
			params = map[string]string{"url": args[2]}
			if len(args) > 3 {
				params["name"] = strings.Join(args[3:], " ")
			}
		default:
			return fmt.Errorf("add: unknown source %q", args[1])
		}
		if err := registry.Validate(domain.ColumnConfig{ID: "new", SourceKind: kind, Params: params}); err != nil {
			return err
		}
		col, err := cols.Add(ctx, kind, params)
		if err != nil {
			return err
		}
		fmt.Printf("added %s (%s)\n", col.ID, col.Label())
		return nil

	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("remove: expected a column id")
		}
		if err := cols.Remove(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[1])
		return nil

	case "edit":
		if len(args) < 3 {
			return fmt.Errorf("edit: expected a column id and key=value pairs")
		}
		col, ok := cols.Get(args[1])
		if !ok {
			return fmt.Errorf("%w: %s", columns.ErrNotFound, args[1])
		}
		patch := make(map[string]string, len(args)-2)
		for _, kv := range args[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("edit: %q is not key=value", kv)
			}
			patch[k] = v
			if v == "" {
				delete(col.Params, k)
			} else {
				col.Params[k] = v
			}
		}
		if err := registry.Validate(col); err != nil {
			return err
		}
		edited, err := cols.Edit(ctx, args[1], patch)
		if err != nil {
			return err
		}
		fmt.Printf("edited %s (%s)\n", edited.ID, edited.Label())
		return nil

	case "move":
		if len(args) != 3 {
			return fmt.Errorf("move: expected a column id and an index")
		}
		idx, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("move: index %q: %w", args[2], err)
		}
		if err := cols.Move(ctx, args[1], idx); err != nil {
			return err
		}
		return list(cols)

	case "archive":
		if len(args) < 2 {
			return fmt.Errorf("archive: expected a column id")
		}
		if cfg.Storage.ArchiveDir == "" {
			return fmt.Errorf("archive: storage.archive_dir is not configured")
		}
		date := time.Now()
		if len(args) > 2 {
			d, err := time.Parse("2006-01-02", args[2])
			if err != nil {
				return fmt.Errorf("archive: date %q: %w", args[2], err)
			}
			date = d
		}
		subs, err := store.NewParquetArchive(cfg.Storage.ArchiveDir).ReadSubmissions(ctx, args[1], date)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, s := range subs {
			fmt.Printf("%8s  %-16s  %s\n", dashboard.FormatScore(s.Score), dashboard.FormatAgo(s.PublishedAt, now), s.Title)
		}
		fmt.Printf("%d submissions\n", len(subs))
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func list(cols *columns.Store) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tKIND\tLABEL\tPARAMS")
	for i, c := range cols.List() {
		params, err := json.Marshal(c.Params)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, c.ID, c.SourceKind, c.Label(), params)
	}
	return w.Flush()
}
