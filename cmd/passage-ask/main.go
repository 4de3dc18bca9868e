// Command passage-ask asks a running passage server questions from the terminal.
//
//	passage-ask "When does the library open?"
//	passage-ask            # interactive, one question per line
//	passage-ask -health
//	passage-ask -usage day
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/passage/internal/logger"
	"github.com/kailas-cloud/passage/pkg/client"
)

const defaultURL = "http://localhost:8000"

type options struct {
	url     string
	health  bool
	usage   string
	wait    time.Duration
	timeout time.Duration
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, question, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logpkg.NewLogger("local", level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, opts, question, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("passage-ask failed", zap.Error(err))
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, string, error) {
	fs := flag.NewFlagSet("passage-ask", flag.ContinueOnError)
	fs.SetOutput(stderr)

	url := os.Getenv("PASSAGE_URL")
	if url == "" {
		url = defaultURL
	}

	var opts options
	fs.StringVar(&opts.url, "url", url, "passage server base URL (env PASSAGE_URL)")
	fs.BoolVar(&opts.health, "health", false, "print the health report and exit")
	fs.StringVar(&opts.usage, "usage", "", "print token usage for day or month and exit")
	fs.DurationVar(&opts.wait, "wait", 0, "wait up to this long for the index to become ready")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, "", err
	}
	return opts, strings.Join(fs.Args(), " "), nil
}

func run(ctx context.Context, opts options, question string, in io.Reader, out io.Writer, logger *zap.Logger) error {
	c, err := client.New(opts.url, client.WithTimeout(opts.timeout))
	if err != nil {
		return err
	}

	if opts.wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
		defer cancel()
		logger.Debug("waiting for index", zap.String("url", opts.url), zap.Duration("wait", opts.wait))
		if err := c.WaitReady(waitCtx, 500*time.Millisecond); err != nil {
			return err
		}
	}

	if opts.health {
		return printHealth(ctx, c, out)
	}
	if opts.usage != "" {
		return printUsage(ctx, c, opts.usage, out)
	}
	if question != "" {
		return ask(ctx, c, question, out, logger)
	}
	return interactive(ctx, c, in, out, logger)
}

func printHealth(ctx context.Context, c *client.Client, out io.Writer) error {
	h, err := c.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "status: %s\nready: %t\ndocuments: %d\nchunks: %d\n",
		h.Status, h.VectorstoreReady, h.TotalDocuments, h.TotalChunks)
	for name, result := range h.Checks {
		fmt.Fprintf(out, "check %s: %s\n", name, result)
	}
	return nil
}

func printUsage(ctx context.Context, c *client.Client, period string, out io.Writer) error {
	u, err := c.Usage(ctx, period)
	if err != nil {
		return err
	}
	limit := "unlimited"
	if u.TokensLimit > 0 {
		limit = fmt.Sprintf("%d (%d left)", u.TokensLimit, u.TokensRemaining)
	}
	fmt.Fprintf(out, "period: %s\nfrom: %s\nto: %s\ntokens used: %d\nlimit: %s\n",
		u.Period,
		time.UnixMilli(u.PeriodStart).UTC().Format(time.RFC3339),
		time.UnixMilli(u.PeriodEnd).UTC().Format(time.RFC3339),
		u.TokensUsed, limit)
	return nil
}

// ask prints the answer. API errors that carry a human answer are printed,
// not returned, so the interactive loop keeps going.
func ask(ctx context.Context, c *client.Client, question string, out io.Writer, logger *zap.Logger) error {
	ans, err := c.Ask(ctx, question)
	var apiErr *client.APIError
	switch {
	case err == nil:
		logger.Debug("answered",
			zap.String("request_id", ans.RequestID),
			zap.Int("embedding_tokens", ans.EmbeddingTokens),
		)
	case errors.As(err, &apiErr) && apiErr.Answer != "":
		logger.Warn("query failed", zap.Error(err))
	default:
		return err
	}
	fmt.Fprintln(out, client.AnswerText(ans, err))
	return nil
}

func interactive(ctx context.Context, c *client.Client, in io.Reader, out io.Writer, logger *zap.Logger) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := ask(ctx, c, line, out, logger); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
