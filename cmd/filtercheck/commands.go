package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	condfilter "github.com/nlstn/go-condfilter"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var databaseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "driver",
		Usage: "Database driver: sqlite, postgres or mysql",
		Value: "sqlite",
	},
	&cli.StringFlag{
		Name:     "dsn",
		Usage:    "Database connection string",
		Required: true,
	},
}

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "Print the condition tree of a filter document",
		ArgsUsage: "<file|->",
		Action: func(c *cli.Context) error {
			service, err := newService(c, "sqlite", ":memory:")
			if err != nil {
				return err
			}
			document, err := readDocument(c)
			if err != nil {
				return err
			}
			cond, err := service.ParseString(c.Context, document)
			if err != nil {
				return err
			}
			return writeTree(c.App.Writer, cond)
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a filter document into a SQL predicate",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "value",
				Usage: "Parameter value as name=value; repeatable",
			},
			&cli.StringFlag{
				Name:  "alias",
				Usage: "Alias substituted for {E}",
				Value: condfilter.DefaultEntityAlias,
			},
			&cli.BoolFlag{
				Name:  "skip-unbound",
				Usage: "Drop clauses whose parameters have no value",
			},
		},
		Action: func(c *cli.Context) error {
			db, err := condfilter.OpenDatabase("sqlite", ":memory:")
			if err != nil {
				return err
			}
			service, err := condfilter.NewServiceWithConfig(db, condfilter.ServiceConfig{
				EntityAlias:        c.String("alias"),
				SkipUnboundClauses: c.Bool("skip-unbound"),
			})
			if err != nil {
				return err
			}
			configureLogger(c, service)

			values, err := parseValues(c.StringSlice("value"))
			if err != nil {
				return err
			}
			document, err := readDocument(c)
			if err != nil {
				return err
			}
			cond, err := service.ParseString(c.Context, document)
			if err != nil {
				return err
			}
			scope, err := service.Render(c.Context, "", cond, values)
			if err != nil {
				return err
			}
			return writeScope(c.App.Writer, scope)
		},
	}
}

func savedCommand() *cli.Command {
	return &cli.Command{
		Name:  "saved",
		Usage: "Manage filters stored in a database",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the saved filters of a component",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "component", Usage: "Component ID", Required: true},
					&cli.StringFlag{Name: "user", Usage: "Only filters visible to this user"},
				}, databaseFlags...),
				Action: func(c *cli.Context) error {
					service, err := newService(c, c.String("driver"), c.String("dsn"))
					if err != nil {
						return err
					}
					filters, err := service.ListFilters(c.Context, c.String("component"), c.String("user"))
					if err != nil {
						return err
					}
					return writeFilters(c.App.Writer, filters)
				},
			},
			{
				Name:      "import",
				Usage:     "Validate a filter document and store it",
				ArgsUsage: "<file|->",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "component", Usage: "Component ID", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Filter name", Required: true},
					&cli.StringFlag{Name: "code", Usage: "Optional filter code"},
					&cli.StringFlag{Name: "user", Usage: "Owner; empty shares the filter"},
				}, databaseFlags...),
				Action: func(c *cli.Context) error {
					service, err := newService(c, c.String("driver"), c.String("dsn"))
					if err != nil {
						return err
					}
					document, err := readDocument(c)
					if err != nil {
						return err
					}
					filter := &condfilter.SavedFilter{
						ComponentID: c.String("component"),
						Name:        c.String("name"),
						Code:        c.String("code"),
						Username:    c.String("user"),
						XML:         document,
					}
					if err := service.SaveFilter(c.Context, filter); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Saved %s (%s)\n", filter.Name, filter.ID)
					return nil
				},
			},
		},
	}
}

func newService(c *cli.Context, driver, dsn string) (*condfilter.Service, error) {
	db, err := openDatabase(driver, dsn)
	if err != nil {
		return nil, err
	}
	service, err := condfilter.NewServiceWithConfig(db, condfilter.ServiceConfig{AutoMigrate: true})
	if err != nil {
		return nil, err
	}
	configureLogger(c, service)
	return service, nil
}

// openDatabase adds MySQL on top of the drivers the library opens itself.
func openDatabase(driver, dsn string) (*gorm.DB, error) {
	if strings.EqualFold(strings.TrimSpace(driver), "mysql") {
		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql database: %w", err)
		}
		return db, nil
	}
	return condfilter.OpenDatabase(driver, dsn)
}

func configureLogger(c *cli.Context, service *condfilter.Service) {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	_ = service.SetLogger(slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})))
}

func readDocument(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected one filter file, got %d arguments", c.NArg())
	}
	path := c.Args().First()
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func parseValues(pairs []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid value %q, expected name=value", pair)
		}
		values[strings.TrimPrefix(strings.TrimSpace(name), ":")] = value
	}
	return values, nil
}
