// Command topics is a CLI client for the topic checklist backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/and161185/topiclist/internal/config"
	"github.com/and161185/topiclist/internal/logging"
	"github.com/and161185/topiclist/internal/remote"
	"github.com/and161185/topiclist/internal/remote/rest"
	"github.com/and161185/topiclist/internal/state"
	"github.com/and161185/topiclist/internal/topics"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var errNotSignedIn = errors.New("not signed in, run `topics login` first")

// clientFactory builds the backend client for one invocation.
type clientFactory func(cfg *config.Client, log *zap.Logger) (remote.Client, error)

// app carries global flags and the lazily built dependencies of a command.
type app struct {
	cfgPath  string
	url      string
	logLevel string

	newClient clientFactory
	password  func(prompt string) (string, error)

	cfg    *config.Client
	log    *zap.Logger
	ctl    *state.Controller
}

// fileClient keeps the session in the configured directory so it survives
// between invocations.
func fileClient(cfg *config.Client, log *zap.Logger) (remote.Client, error) {
	store, err := rest.NewFileStore(cfg.Session.Dir)
	if err != nil {
		return nil, err
	}
	return rest.New(rest.Config{
		URL:     cfg.Backend.URL,
		AnonKey: cfg.Backend.AnonKey,
		Timeout: cfg.Backend.Timeout,
	}, rest.WithSessionStore(store), rest.WithLogger(log))
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		b, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "topics",
		Short: "Topic checklist client",
		Long: `topics manages a personal checklist of topics and subtopics stored on a
table/auth backend.

Examples:
  topics login ann@example.com
  topics topic add "Quarterly planning"
  topics sub add 1 "Agenda" --url https://docs.example/agenda
  topics list -o yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&a.url, "url", "", "backend base URL, overrides backend.url")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug|info|warn|error, overrides log.level")

	root.AddCommand(
		versionCmd(),
		signupCmd(a), loginCmd(a), loginGoogleCmd(a), logoutCmd(a), whoamiCmd(a),
		listCmd(a), topicCmd(a), subCmd(a), searchCmd(a),
		uiCmd(a),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "topics %s (%s)\n", version, buildDate)
		},
	}
}

// load reads the configuration and applies flag overrides.
func (a *app) load() error {
	if a.cfg != nil {
		return nil
	}
	if a.url != "" {
		// cleanenv lets ENV win over YAML, so the flag travels through it
		if err := os.Setenv("TOPICS_BACKEND_URL", a.url); err != nil {
			return err
		}
	}
	cfg, err := config.LoadClient(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// mount connects to the backend and loads the current session, if any.
func (a *app) mount(ctx context.Context) (*state.Controller, error) {
	if a.ctl != nil {
		return a.ctl, nil
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	c, err := a.newClient(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	ctl := state.New(c.Auth(), topics.NewRepository(c), a.log)
	if err := ctl.Mount(ctx); err != nil {
		ctl.Close()
		return nil, err
	}
	a.ctl = ctl
	return ctl, nil
}

// signedIn is mount plus a session check.
func (a *app) signedIn(ctx context.Context) (*state.Controller, error) {
	ctl, err := a.mount(ctx)
	if err != nil {
		return nil, err
	}
	if ctl.Session() == nil {
		return nil, errNotSignedIn
	}
	return ctl, nil
}

func (a *app) close() {
	if a.ctl != nil {
		a.ctl.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{newClient: fileClient, password: promptPassword}

	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
