package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vecpipe/vecpipe"
	"github.com/vecpipe/vecpipe/config"
	"github.com/vecpipe/vecpipe/model"
	"github.com/vecpipe/vecpipe/recordsource"
	"github.com/vecpipe/vecpipe/recordsource/postgres"
	"github.com/vecpipe/vecpipe/server"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "ingest":
		err = runIngest(os.Args[2:])
	case "update":
		err = runUpdate(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "update-resources":
		err = runUpdateResources(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: vecpipe <command> [flags]

Commands:
  serve             run the HTTP server
  ingest            run one batch ingest
  update            replay stored part files into the index
  search            query the index
  update-resources  patch resource ids in the config file

Run 'vecpipe <command> -h' for command flags.`)
}

func loadConfig(path, host string, port int) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	return cfg, nil
}

func buildLogger(cfg *config.Config) *vecpipe.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Logging.Format == "json" {
		return vecpipe.NewJSONLogger(level)
	}
	return vecpipe.NewTextLogger(level)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	host := fs.String("host", "", "host to listen on (overrides config)")
	port := fs.Int("port", 0, "port to listen on (overrides config)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath, *host, *port)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)
	metrics := &vecpipe.BasicMetricsCollector{}

	pipe, err := vecpipe.New(cfg,
		vecpipe.WithLogger(logger),
		vecpipe.WithMetricsCollector(metrics),
	)
	if err != nil {
		return err
	}
	defer pipe.Close()

	srv := server.New(pipe, server.FromConfig(cfg), func(o *server.Options) {
		o.Logger = logger
		o.Metrics = metrics
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	file := fs.String("file", "", "JSONL records file, or - for stdin")
	pgDSN := fs.String("pg-dsn", "", "PostgreSQL DSN to read records from")
	pgQuery := fs.String("pg-query", "", "SQL query yielding one record per row")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath, "", 0)
	if err != nil {
		return err
	}

	var src recordsource.Source
	switch {
	case *pgDSN != "":
		if *pgQuery == "" {
			return errors.New("-pg-query is required with -pg-dsn")
		}
		db, err := postgres.Open(*pgDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		src = postgres.New(db, *pgQuery)
	case *file != "":
		src, err = fileSource(*file)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of -file or -pg-dsn is required")
	}

	pipe, err := vecpipe.New(cfg, vecpipe.WithLogger(buildLogger(cfg)))
	if err != nil {
		return err
	}
	defer pipe.Close()

	result, err := pipe.IngestBatch(context.Background(), src)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	prefix := fs.String("prefix", "", "blob prefix to replay (empty uses the config entries prefix)")
	manifestName := fs.String("manifest", "", "replay one recorded run with checksum verification")
	fs.Parse(args)

	if *prefix != "" && *manifestName != "" {
		return errors.New("-prefix and -manifest are mutually exclusive")
	}

	cfg, err := loadConfig(*configPath, "", 0)
	if err != nil {
		return err
	}

	pipe, err := vecpipe.New(cfg, vecpipe.WithLogger(buildLogger(cfg)))
	if err != nil {
		return err
	}
	defer pipe.Close()

	var result vecpipe.BatchUpdateResult
	if *manifestName != "" {
		result, err = pipe.BatchUpdateFromManifest(context.Background(), *manifestName)
	} else {
		result, err = pipe.BatchUpdateFromPrefix(context.Background(), *prefix)
	}
	if err != nil {
		return err
	}

	return printJSON(result)
}

// fileSource reads one JSON record per line from path, or stdin for "-".
func fileSource(path string) (recordsource.Source, error) {
	var r *os.File
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var records []model.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return recordsource.NewSliceSource(records...), nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	query := fs.String("q", "", "query text")
	k := fs.Int("k", 0, "number of neighbors (0 uses the config default)")
	hybrid := fs.Bool("hybrid", false, "add sparse lexical scoring")

	var allows, denies []clause
	fs.Func("allow", "allow filter as namespace=token,token (repeatable)", func(s string) error {
		c, err := parseClause(s)
		if err != nil {
			return err
		}
		allows = append(allows, c)
		return nil
	})
	fs.Func("deny", "deny filter as namespace=token,token (repeatable)", func(s string) error {
		c, err := parseClause(s)
		if err != nil {
			return err
		}
		denies = append(denies, c)
		return nil
	})
	fs.Parse(args)

	cfg, err := loadConfig(*configPath, "", 0)
	if err != nil {
		return err
	}

	pipe, err := vecpipe.New(cfg, vecpipe.WithLogger(buildLogger(cfg)))
	if err != nil {
		return err
	}
	defer pipe.Close()

	builder := pipe.Search().Query(*query)
	if *k > 0 {
		builder.KNN(*k)
	}
	if *hybrid {
		builder.Hybrid()
	}
	for _, c := range allows {
		builder.Allow(c.namespace, c.tokens...)
	}
	for _, c := range denies {
		builder.Deny(c.namespace, c.tokens...)
	}

	neighbors, err := builder.Execute(context.Background())
	if err != nil {
		return err
	}

	return printJSON(neighbors)
}

type clause struct {
	namespace string
	tokens    []string
}

func parseClause(s string) (clause, error) {
	ns, rest, ok := strings.Cut(s, "=")
	if !ok || ns == "" || rest == "" {
		return clause{}, fmt.Errorf("malformed filter %q, want namespace=token,token", s)
	}
	return clause{namespace: ns, tokens: strings.Split(rest, ",")}, nil
}

func runUpdateResources(args []string) error {
	fs := flag.NewFlagSet("update-resources", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	indexID := fs.String("index-id", "", "vector index id")
	endpointID := fs.String("endpoint-id", "", "index endpoint id")
	deployedID := fs.String("deployed-index-id", "", "deployed index id")
	fs.Parse(args)

	if *configPath == "" {
		return errors.New("-config is required")
	}

	return config.UpdateResourceNames(*configPath, config.ResourceNamesConfig{
		IndexID:         *indexID,
		EndpointID:      *endpointID,
		DeployedIndexID: *deployedID,
	})
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
