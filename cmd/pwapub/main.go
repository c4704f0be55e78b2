package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/pwapub/config"
	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/logging"
	"xdao.co/pwapub/pairing"
	"xdao.co/pwapub/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(newApp(os.Stdout, os.Stderr).run(ctx, os.Args[1:]))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	return newApp(out, errOut).run(context.Background(), args)
}

// app carries the collaborators a command needs, so tests can swap the
// network for in-memory fakes.
type app struct {
	out, errOut io.Writer
	stdin       io.Reader
	getenv      func(string) string
	dial        relay.DialFunc
	http        *http.Client
	resolver    pairing.IdentityResolver
	newLogger   func(w io.Writer, verbose bool) *zap.Logger
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:       out,
		errOut:    errOut,
		stdin:     os.Stdin,
		getenv:    os.Getenv,
		dial:      relay.Dial,
		http:      http.DefaultClient,
		resolver:  pairing.NIP05{},
		newLogger: logging.New,
	}
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		printUsage(a.errOut)
		return 2
	}

	switch args[0] {
	case "connect":
		return a.cmdConnect(ctx, args[1:])
	case "package":
		return a.cmdPackage(args[1:])
	case "publish":
		return a.cmdPublish(ctx, args[1:])
	case "help", "-h", "--help":
		printUsage(a.out)
		return 0
	default:
		fmt.Fprintf(a.errOut, "unknown command: %s\n\n", args[0])
		printUsage(a.errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "pwapub: package and publish web apps")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pwapub connect <pairing-string> [--relay <url>] [--save <name> [--force]]")
	fmt.Fprintln(w, "  pwapub package [dir] (--app-name <n> --app-version <v> | --package <package.json>)")
	fmt.Fprintln(w, "  pwapub publish <file.pwa> (--nsec <key> | --connect <pairing-string> [--connect-nsec <key> | --connect-key-name <name>] [--connect-relay <url>])")
	fmt.Fprintln(w, "                 --relays <r1,r2,...> [--servers <s1,s2,...>] [--thumb <url>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config <path>   YAML config (default $PWAPUB_CONFIG or ~/.config/pwapub/config.yaml)")
	fmt.Fprintln(w, "  --verbose         debug logging and event dumps")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - a pairing string is name@domain, a bunker:// URI, or a token")
	fmt.Fprintln(w, "  - keys are 64 hex chars or nsec1...; --nsec - reads the key without echo")
	fmt.Fprintln(w, "  - without --servers, the servers from your published media server list are used")
	fmt.Fprintln(w, "  - PWAPUB_RELAYS, PWAPUB_SERVERS and PWAPUB_NSEC supply defaults")
}

// commonFlags are accepted by every command.
type commonFlags struct {
	config  string
	verbose bool
}

func newFlagSet(name string, errOut io.Writer) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	c := &commonFlags{}
	fs.StringVar(&c.config, "config", "", "YAML config file")
	fs.BoolVar(&c.verbose, "verbose", false, "Debug logging and event dumps")
	return fs, c
}

func (a *app) setup(c *commonFlags) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.config, a.getenv)
	if err != nil {
		return config.Config{}, nil, errs.Wrap(errs.KindInvalidInput, "loading config", err)
	}
	return cfg, a.newLogger(a.errOut, c.verbose), nil
}

func (a *app) newPool(cfg config.Config, log *zap.Logger) *relay.Pool {
	return relay.NewPool(a.dial, relay.WithLogger(log), relay.WithTimeout(cfg.RelayTimeout))
}

func (a *app) authNotice(url string) {
	fmt.Fprintln(a.out, "Got auth url", url)
}

// fail reports err and returns the exit code: 2 for usage errors, 1
// otherwise.
func (a *app) fail(err error) int {
	kind := errs.KindOf(err)
	if kind == "" {
		fmt.Fprintf(a.errOut, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.errOut, "error: %s: %v\n", kind, err)
	switch kind {
	case errs.KindInvalidInput, errs.KindMissingCredentials:
		return 2
	}
	return 1
}

func parseFlags(fs *pflag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}
