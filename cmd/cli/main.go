// Command hc is a CLI client for the High Court case gateway.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/hcservices/internal/config"
	"github.com/and161185/hcservices/internal/errs"
	"github.com/and161185/hcservices/internal/gateway"
	model "github.com/and161185/hcservices/internal/model"
	"github.com/and161185/hcservices/internal/service"
	"github.com/and161185/hcservices/internal/suggest"
	"github.com/and161185/hcservices/internal/transport"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// ---- wiring ----

type app struct {
	cfg    config.Config
	log    *zap.Logger
	auth   *gateway.Authenticator
	lookup *service.CachedLookup
}

func newApp(cfg config.Config, log *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := cfg.GatewayOptions(log, nil)
	opts.HTTPClient = transport.NewClient(log, nil, 0)
	auth := gateway.NewAuthenticator(cfg.Credentials, opts)
	client := gateway.NewClient(cfg.Credentials, auth, opts)
	lookup := service.NewCachedLookup(service.NewLookupService(client, log), service.CacheOptions{
		TTL:    cfg.CacheTTL,
		Logger: log,
	})
	return &app{cfg: cfg, log: log, auth: auth, lookup: lookup}, nil
}

func newLogger(debug bool) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		zc = zap.NewDevelopmentConfig()
	}
	log, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// ---- utils ----

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writePDF performs the second decode of an order payload and writes the bytes to path ("-" is stdout).
func writePDF(w io.Writer, path string, doc model.OrderDocument) (int, error) {
	pdf, err := gateway.DecodeBinaryPayload(doc.PDFBase64)
	if err != nil {
		return 0, err
	}
	if path == "-" {
		return w.Write(pdf)
	}
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		return 0, err
	}
	return len(pdf), nil
}

func registrationFlags(fs *flag.FlagSet) *model.RegistrationQuery {
	q := &model.RegistrationQuery{}
	fs.StringVar(&q.EstCode, "est", "", "establishment code")
	fs.StringVar(&q.CaseType, "type", "", "case type code")
	fs.StringVar(&q.RegYear, "year", "", "registration year")
	fs.StringVar(&q.RegNo, "no", "", "registration number")
	return q
}

func usage() {
	fmt.Fprintf(os.Stderr, `hc CLI
Usage:
  hc [-debug] <cmd> [args]

Credentials and endpoints come from HC_* environment variables.

Commands:
  version
  token                                            (fetch one gateway token)
  search   -est <code> -type <t> -year <y> -no <n>
  details  -est <code> -type <t> -year <y> -no <n>  (search, then detail of the first case)
  cnr      -cino <cnr>
  order    -cino <cnr> -no <order_no> -date <order_date> [-out file.pdf]
  suggest  -est <code> -type <t> -year <y> -no <n> [-field pet_name|res_name]
           (reads terms from stdin, one per line)
`)
}

// ---- commands ----

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, log *zap.Logger) error {
	if len(args) < 1 {
		usage()
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	if cmd == "version" {
		_, err := fmt.Fprintf(stdout, "hc %s (%s)\n", version, buildDate)
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)

	switch cmd {
	case "token":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		tok, err := a.auth.AccessToken(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, map[string]string{"access_token": tok})

	case "search":
		q := registrationFlags(fs)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		res, err := a.lookup.Search(ctx, *q)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)

	case "details":
		q := registrationFlags(fs)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		out, err := a.lookup.CaseDetails(ctx, *q)
		if err != nil {
			return err
		}
		if out.Detail == nil {
			fmt.Fprintln(os.Stderr, "no matching case")
		}
		return printJSON(stdout, out)

	case "cnr":
		cino := fs.String("cino", "", "CNR number")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		d, err := a.lookup.Cnr(ctx, model.CnrQuery{Cino: *cino})
		if err != nil {
			return err
		}
		return printJSON(stdout, d)

	case "order":
		var q model.OrderQuery
		fs.StringVar(&q.Cino, "cino", "", "CNR number")
		fs.StringVar(&q.OrderNo, "no", "", "order number")
		fs.StringVar(&q.OrderDate, "date", "", "order date as listed in the case detail")
		out := fs.String("out", "", "output file (default <cino>_<no>.pdf, - for stdout)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		doc, err := a.lookup.Order(ctx, q)
		if err != nil {
			return err
		}
		path := *out
		if path == "" {
			path = q.Cino + "_" + q.OrderNo + ".pdf"
		}
		n, err := writePDF(stdout, path, doc)
		if err != nil {
			return err
		}
		if path != "-" {
			fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", n, path)
		}
		return nil

	case "suggest":
		q := registrationFlags(fs)
		field := fs.String("field", "pet_name", "summary field to suggest from")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return a.suggest(ctx, *q, *field, stdin, stdout)

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// suggest debounces stdin lines and prints suggestions for every term still current after the delay.
func (a *app) suggest(ctx context.Context, q model.RegistrationQuery, field string, in io.Reader, out io.Writer) error {
	sel, ok := suggest.CaseField(field)
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	sg := suggest.New(suggest.NewDebouncer(a.cfg.SuggestDelay), sel, 20)
	list := func(ctx context.Context) ([]model.CaseSummary, error) {
		res, err := a.lookup.Search(ctx, q)
		return res.Cases, err
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		term := strings.TrimSpace(sc.Text())
		seq := sg.Mark("cli")
		wg.Add(1)
		go func() {
			defer wg.Done()
			values, fired, err := sg.SuggestMarked(ctx, "cli", seq, term, list)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if first == nil {
					first = err
				}
				return
			}
			if fired {
				_ = printJSON(out, map[string]any{"term": term, "values": values})
			}
		}()
	}
	wg.Wait()
	if err := sc.Err(); err != nil {
		return err
	}
	return first
}

// ---- main ----

// main parses global flags and dispatches the subcommand.
func main() {
	debug := flag.Bool("debug", false, "verbose logging")
	timeout := flag.Duration("timeout", 60*time.Second, "overall deadline")
	flag.Usage = usage
	flag.Parse()

	log := newLogger(*debug)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, flag.Args(), os.Stdin, os.Stdout, log); err != nil {
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", errs.Kind(err), err)
		if errs.Retryable(err) {
			fmt.Fprintln(os.Stderr, "the gateway is temporarily unavailable, try again")
		}
		os.Exit(1)
	}
}
