// Command streamctl inspects and maintains an event store described by a config file.
//
// Usage:
//
//	streamctl -config store.toml streams [-filter name | -regex pattern] [-limit n] [-offset n]
//	streamctl -config store.toml categories [-filter name | -regex pattern] [-limit n] [-offset n]
//	streamctl -config store.toml load -stream Order-1 [-from n] [-count n] [-reverse]
//	streamctl -config store.toml metadata -stream Order-1 [-set '{"owner":"billing"}']
//	streamctl -config store.toml delete -stream Order-1
//
// Settings can also come from PUPSTREAMS_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/config"
	"github.com/getpup/pupstreams/es/metadata"
	"github.com/getpup/pupstreams/es/sqlstore"
	"github.com/getpup/pupstreams/es/store"
)

var errUsage = errors.New("usage: streamctl -config path <streams|categories|load|metadata|delete> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("streamctl", flag.ContinueOnError)
	configPath := global.String("config", "", "Path to a TOML, YAML or JSON config file")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, closer, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	db, s, err := config.Open(ctx, cfg, sqlstore.WithLogger(es.NewSlogLogger(logger)))
	if err != nil {
		return err
	}
	defer db.Close()

	command, rest := global.Arg(0), global.Args()[1:]
	switch command {
	case "streams":
		return listStreams(ctx, s, rest, stdout)
	case "categories":
		return listCategories(ctx, s, rest, stdout)
	case "load":
		return loadStream(ctx, s, rest, stdout)
	case "metadata":
		return streamMetadata(ctx, s, rest, stdout)
	case "delete":
		return deleteStream(ctx, s, rest, stdout)
	}
	return fmt.Errorf("unknown command %q: %w", command, errUsage)
}

type listFlags struct {
	filter string
	regex  string
	limit  int
	offset int
}

func parseListFlags(name string, args []string) (*listFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	lf := &listFlags{}
	fs.StringVar(&lf.filter, "filter", "", "Exact name to look up")
	fs.StringVar(&lf.regex, "regex", "", "Regular expression the name must match")
	fs.IntVar(&lf.limit, "limit", 20, "Maximum number of results")
	fs.IntVar(&lf.offset, "offset", 0, "Number of results to skip")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if lf.filter != "" && lf.regex != "" {
		return nil, errors.New("-filter and -regex are mutually exclusive")
	}
	return lf, nil
}

func listStreams(ctx context.Context, s store.EventStore, args []string, out io.Writer) error {
	lf, err := parseListFlags("streams", args)
	if err != nil {
		return err
	}

	var names []es.StreamName
	if lf.regex != "" {
		names, err = s.FetchStreamNamesRegex(ctx, lf.regex, metadata.Matcher{}, lf.limit, lf.offset)
	} else {
		names, err = s.FetchStreamNames(ctx, lf.filter, metadata.Matcher{}, lf.limit, lf.offset)
	}
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func listCategories(ctx context.Context, s store.EventStore, args []string, out io.Writer) error {
	lf, err := parseListFlags("categories", args)
	if err != nil {
		return err
	}

	var categories []string
	if lf.regex != "" {
		categories, err = s.FetchCategoryNamesRegex(ctx, lf.regex, lf.limit, lf.offset)
	} else {
		categories, err = s.FetchCategoryNames(ctx, lf.filter, lf.limit, lf.offset)
	}
	if err != nil {
		return err
	}
	for _, category := range categories {
		fmt.Fprintln(out, category)
	}
	return nil
}

// eventLine is the JSON Lines shape printed by load.
type eventLine struct {
	Payload   map[string]interface{} `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata"`
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	CreatedAt string                 `json:"created_at"`
	No        int64                  `json:"no"`
}

func loadStream(ctx context.Context, s store.EventStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	stream := fs.String("stream", "", "Stream name")
	from := fs.Int64("from", 0, "First row number (default: start, or end with -reverse)")
	count := fs.Int("count", 0, "Maximum number of events (0 = all)")
	reverse := fs.Bool("reverse", false, "Read newest first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stream == "" {
		return errors.New("-stream is required")
	}

	var (
		it  store.StreamIterator
		err error
	)
	if *reverse {
		it, err = s.LoadReverse(ctx, es.StreamName(*stream), *from, *count, metadata.Matcher{})
	} else {
		it, err = s.Load(ctx, es.StreamName(*stream), *from, *count, metadata.Matcher{})
	}
	if err != nil {
		return err
	}
	defer it.Close()

	enc := json.NewEncoder(out)
	for it.Next(ctx) {
		e := it.Event()
		line := eventLine{
			No:        it.No(),
			ID:        e.UUID.String(),
			Name:      e.Name,
			Payload:   e.Payload,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt.UTC().Format(es.TimestampFormat),
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return it.Err()
}

func streamMetadata(ctx context.Context, s store.EventStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("metadata", flag.ContinueOnError)
	stream := fs.String("stream", "", "Stream name")
	set := fs.String("set", "", "Replace the stream metadata with this JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stream == "" {
		return errors.New("-stream is required")
	}

	if *set != "" {
		var md map[string]interface{}
		if err := json.Unmarshal([]byte(*set), &md); err != nil {
			return fmt.Errorf("invalid -set document: %w", err)
		}
		if err := s.UpdateStreamMetadata(ctx, es.StreamName(*stream), md); err != nil {
			return err
		}
	}

	md, err := s.FetchStreamMetadata(ctx, es.StreamName(*stream))
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(md)
}

func deleteStream(ctx context.Context, s store.EventStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	stream := fs.String("stream", "", "Stream name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stream == "" {
		return errors.New("-stream is required")
	}

	if err := s.Delete(ctx, es.StreamName(*stream)); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", *stream)
	return nil
}
