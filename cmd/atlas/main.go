// Command atlas manages the tables of an Atlas configuration.
//
// Usage:
//
//	atlas migrate  -config atlas.yaml [-dry-run]
//	atlas validate -config atlas.yaml [-allow-unmapped]
//	atlas skeleton -config atlas.yaml -package forum -target ./forum
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/atlas/compiler/skeleton"
	"github.com/syssam/atlas/config"
	"github.com/syssam/atlas/dialect/sql"
	"github.com/syssam/atlas/dialect/sql/schema"
)

const usage = `usage: atlas <command> [flags]

commands:
  migrate   create the configured tables that do not exist
  validate  compare the configured tables with the database
  skeleton  generate mapper definitions from the database
`

// errInvalid marks a validation failure already reported on stdout.
var errInvalid = errors.New("schema does not match the configuration")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var cmd func(context.Context, *env, []string) error
	switch args[0] {
	case "migrate":
		cmd = migrate
	case "validate":
		cmd = validate
	case "skeleton":
		cmd = generate
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "atlas: unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	e := &env{stdout: stdout, stderr: stderr}
	err := cmd(ctx, e, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, new(usageError)):
		fmt.Fprintf(stderr, "atlas %s: %v\n", args[0], err)
		return 2
	case errors.Is(err, errInvalid):
		return 1
	}
	if e.logger != nil {
		e.logger.Error("command failed", "command", args[0], "error", err)
	} else {
		fmt.Fprintf(stderr, "atlas %s: %v\n", args[0], err)
	}
	return 1
}

type usageError string

func (e usageError) Error() string { return string(e) }

// env carries the output streams and, once the configuration is loaded,
// the configuration and logger of a command.
type env struct {
	stdout, stderr io.Writer
	cfg            *config.Config
	logger         *slog.Logger
}

func (e *env) flags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	path := fs.String("config", "atlas.yaml", "configuration file")
	return fs, path
}

// open loads the configuration and opens its default connection.
func (e *env) open(path string) (*sql.Driver, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(e.stderr)
	if err != nil {
		return nil, err
	}
	e.cfg, e.logger = cfg, logger
	drv, err := sql.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		drv.DB().SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return drv, nil
}

func migrate(ctx context.Context, e *env, args []string) error {
	fs, path := e.flags("migrate")
	dryRun := fs.Bool("dry-run", false, "print the statements without executing them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	drv, err := e.open(*path)
	if err != nil {
		return err
	}
	defer drv.Close()
	if len(e.cfg.Tables) == 0 {
		return usageError("no tables configured")
	}
	if *dryRun {
		stmts, err := schema.Plan(ctx, drv, e.cfg.Dialect, e.cfg.Tables...)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			fmt.Fprintf(e.stdout, "%s;\n", stmt)
		}
		return nil
	}
	if err := schema.Create(ctx, drv, e.cfg.Dialect, e.cfg.Tables...); err != nil {
		return err
	}
	e.logger.Info("tables created", "dialect", e.cfg.Dialect, "tables", len(e.cfg.Tables))
	return nil
}

func validate(ctx context.Context, e *env, args []string) error {
	fs, path := e.flags("validate")
	allowUnmapped := fs.Bool("allow-unmapped", false, "do not warn about unmapped columns")
	if err := fs.Parse(args); err != nil {
		return err
	}
	drv, err := e.open(*path)
	if err != nil {
		return err
	}
	defer drv.Close()
	if len(e.cfg.Tables) == 0 {
		return usageError("no tables configured")
	}
	names := make([]string, len(e.cfg.Tables))
	for i, t := range e.cfg.Tables {
		names[i] = t.Name
	}
	current, err := schema.Inspect(ctx, drv, e.cfg.Dialect, names...)
	if err != nil {
		return err
	}
	var opts []schema.ValidateOption
	if *allowUnmapped {
		opts = append(opts, schema.AllowUnmappedColumns())
	}
	result := schema.ValidateSchema(current, e.cfg.Tables, opts...)
	fmt.Fprintln(e.stdout, result)
	if result.HasErrors() {
		return errInvalid
	}
	return nil
}

func generate(ctx context.Context, e *env, args []string) error {
	fs, path := e.flags("skeleton")
	pkg := fs.String("package", "", "name of the generated package")
	target := fs.String("target", "", "output directory (defaults to the package name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pkg == "" {
		return usageError("-package is required")
	}
	if *target == "" {
		*target = *pkg
	}
	drv, err := e.open(*path)
	if err != nil {
		return err
	}
	defer drv.Close()
	current, err := schema.Inspect(ctx, drv, e.cfg.Dialect)
	if err != nil {
		return err
	}
	return skeleton.Generate(ctx, current, skeleton.Config{
		Package: *pkg,
		Target:  *target,
		Dialect: e.cfg.Dialect,
		Logger:  e.logger,
	})
}
