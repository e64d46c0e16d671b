package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/platinummonkey/crmgate/pkg/apiclient"
	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/identity"
)

// Exit codes returned by ExitCode
const (
	ExitOK               = 0
	ExitUsage            = 1
	ExitAuthentication   = 2
	ExitPermissionDenied = 3
	ExitFailure          = 4
)

const defaultServerURL = "http://localhost:8080"

// UsageError is a bad invocation or missing configuration
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

// ExitCode maps the result of Execute to a process exit code
func ExitCode(err error) int {
	var usage *UsageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage), errors.Is(err, flag.ErrHelp):
		return ExitUsage
	case apperror.IsAuthentication(err):
		return ExitAuthentication
	case apperror.IsPermissionDenied(err):
		return ExitPermissionDenied
	default:
		return ExitFailure
	}
}

// Env is what a command reads and writes besides its arguments
type Env struct {
	Out    io.Writer
	Err    io.Writer
	Getenv func(string) string

	// Set by the root command from its flags
	ServerURL   string
	SessionPath string
	Timeout     time.Duration
}

// DefaultEnv uses the process streams and environment
func DefaultEnv() *Env {
	return &Env{Out: os.Stdout, Err: os.Stderr, Getenv: os.Getenv}
}

func (e *Env) config() apiclient.Config {
	return apiclient.Config{BaseURL: e.ServerURL, Timeout: e.Timeout, UserAgent: "crmgate-cli"}
}

func (e *Env) anonymousClient() (*apiclient.Client, error) {
	return apiclient.New(e.config())
}

// authenticatedClient uses the stored session, persisting rotated tokens
func (e *Env) authenticatedClient() (*apiclient.Client, error) {
	session, err := loadSession(e.SessionPath)
	if err != nil {
		return nil, err
	}
	anon, err := e.anonymousClient()
	if err != nil {
		return nil, err
	}
	ts := apiclient.NewSessionTokenSource(anon, session, func(s *identity.Session) {
		if err := saveSession(e.SessionPath, s); err != nil {
			fmt.Fprintf(e.Err, "warning: failed to save refreshed session: %v\n", err)
		}
	})
	return apiclient.New(e.config(), apiclient.WithTokenSource(ts))
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "crmgate-cli",
		Description: "crmgate - multi-tenant CRM operator CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("crmgate-cli", flag.ContinueOnError),
	}
	root.Flags.String("server", "", "API base URL (default $CRMGATE_URL or "+defaultServerURL+")")
	root.Flags.String("session", "", "Session file (default $CRMGATE_SESSION or ~/.config/crmgate/session.json)")
	root.Flags.Duration("timeout", apiclient.DefaultTimeout, "Request timeout")

	// Add subcommands
	root.Subcommands["login"] = newLoginCommand()
	root.Subcommands["logout"] = newLogoutCommand()
	root.Subcommands["whoami"] = newWhoamiCommand()
	root.Subcommands["clients"] = newClientsCommand()
	root.Subcommands["reassign"] = newReassignCommand()
	root.Subcommands["report"] = newReportCommand()
	root.Subcommands["seed"] = newSeedCommand()

	return root
}

// Execute parses the global flags and runs the named subcommand
func (c *Command) Execute(ctx context.Context, env *Env, args []string) error {
	c.Flags.SetOutput(env.Err)
	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.usage(env.Out)
			return nil
		}
		return usagef("%v", err)
	}

	args = c.Flags.Args()
	if len(args) == 0 {
		c.usage(env.Err)
		return usagef("no command given")
	}
	if args[0] == "help" {
		c.usage(env.Out)
		return nil
	}

	subcmd, ok := c.Subcommands[args[0]]
	if !ok {
		return usagef("unknown command: %s", args[0])
	}

	env.ServerURL = firstNonEmpty(c.Flags.Lookup("server").Value.String(), env.Getenv("CRMGATE_URL"), defaultServerURL)
	env.SessionPath = firstNonEmpty(c.Flags.Lookup("session").Value.String(), env.Getenv("CRMGATE_SESSION"), defaultSessionPath())
	if d, err := time.ParseDuration(c.Flags.Lookup("timeout").Value.String()); err == nil {
		env.Timeout = d
	}
	return subcmd.Run(ctx, env, args[1:])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [--server URL] [--session FILE] <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
}

// parseFlags parses a subcommand's flags, turning failures into usage
// errors
func parseFlags(fs *flag.FlagSet, env *Env, args []string) error {
	fs.SetOutput(env.Err)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usagef("%v", err)
	}
	return nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "crmgate-session.json"
	}
	return filepath.Join(dir, "crmgate", "session.json")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
