package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/hupe1980/llmcouncil"
	"github.com/hupe1980/llmcouncil/config"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/logging"
	"github.com/hupe1980/llmcouncil/server"
	"github.com/hupe1980/llmcouncil/storage"
)

var configPath string
var useMock bool
var systemPrompt string
var queryTimeout time.Duration
var jsonOutput bool
var serveAddr string
var settingsChairman string

var queryCommand = &cli.Command{
	Name:      "query",
	Usage:     "Send one prompt to several models concurrently",
	ArgsUsage: "<prompt>  (read from stdin when omitted)",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "model",
			Usage:   "Model to query; repeat for several. Defaults to the council models",
			Aliases: []string{"m"},
		},
		&cli.StringFlag{
			Name:        "system",
			Usage:       "System instruction prepended to the conversation",
			Aliases:     []string{"s"},
			Destination: &systemPrompt,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Per-model timeout (overrides the configuration)",
			Aliases:     []string{"t"},
			Destination: &queryTimeout,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the result map as JSON",
			Destination: &jsonOutput,
		},
	},
	Action: func(ctx *cli.Context) error {
		prompt := strings.Join(ctx.Args().Slice(), " ")
		if prompt == "" && !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			// there is something to process on stdin
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			prompt = strings.TrimSpace(string(b))
		}
		if prompt == "" {
			return errors.New("a prompt is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if queryTimeout > 0 {
			cfg.Council.Timeout.Duration = queryTimeout
		}

		council, err := startCouncil(ctx.Context, cfg)
		if err != nil {
			return err
		}
		defer council.Stop()

		var turns []core.Turn
		if systemPrompt != "" {
			turns = append(turns, core.NewSystemTurn(systemPrompt))
		}
		turns = append(turns, core.NewUserTurn(prompt))

		var observer core.ObserverFunc
		var prog *progress
		if !jsonOutput && isTerminal(ctx.App.ErrWriter) {
			prog = newProgress(ctx.App.ErrWriter)
			observer = prog.observe
		}

		results, err := council.Query(ctx.Context, ctx.StringSlice("model"), turns, observer)
		if prog != nil {
			prog.finish()
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(ctx.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		printResults(ctx.App.Writer, results)
		return nil
	},
}

var modelsCommand = &cli.Command{
	Name:  "models",
	Usage: "List the models offered by the configured backends",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		council, err := startCouncil(ctx.Context, cfg)
		if err != nil {
			return err
		}
		defer council.Stop()

		for _, m := range council.AvailableModels() {
			fmt.Fprintf(ctx.App.Writer, "%-32s %-10s %s\n", m.ID, m.Provider, m.Name)
		}

		validity := council.ValidateModels()
		ids := make([]string, 0, len(validity))
		for id := range validity {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if !validity[id] {
				fmt.Fprintf(ctx.App.ErrWriter, "warning: configured model %s is not available\n", id)
			}
		}
		return nil
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve the websocket query API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address (overrides the configuration)",
			Aliases:     []string{"a"},
			Destination: &serveAddr,
		},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		logger := cfg.Logger().WithComponent("server")

		sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		council, err := startCouncil(sigCtx, cfg)
		if err != nil {
			return err
		}
		defer council.Stop()

		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: server.New(council, func(o *server.Options) {
				o.Store = store
				o.AllowedOrigins = cfg.Server.AllowedOrigins
				o.Logger = logger
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Listening", "addr", cfg.Server.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-sigCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

var conversationsCommand = &cli.Command{
	Name:  "conversations",
	Usage: "List stored conversations",
	Action: func(ctx *cli.Context) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.List(ctx.Context)
		if err != nil {
			return err
		}
		for _, md := range list {
			fmt.Fprintf(ctx.App.Writer, "%s  %s  %3d  %s\n",
				md.ID, md.CreatedAt.Local().Format(time.DateTime), md.MessageCount, md.Title)
		}
		return nil
	},
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			Usage:     "Print one conversation as JSON",
			ArgsUsage: "<id>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return errors.New("exactly one conversation id is required")
				}
				store, err := openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				conv, err := store.Get(ctx.Context, ctx.Args().First())
				if err != nil {
					return err
				}
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(ctx.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(conv)
			},
		},
	},
}

var settingsCommand = &cli.Command{
	Name:  "settings",
	Usage: "Show or change the persisted council model selection",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "models",
			Usage: "Council models to persist",
		},
		&cli.StringFlag{
			Name:        "chairman",
			Usage:       "Chairman model to persist",
			Destination: &settingsChairman,
		},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		current, err := config.LoadSettings(cfg.Council.SettingsFile, config.SettingsFrom(cfg))
		if err != nil {
			return err
		}

		if models := ctx.StringSlice("models"); len(models) > 0 || settingsChairman != "" {
			if len(models) > 0 {
				current.CouncilModels = models
			}
			if settingsChairman != "" {
				current.ChairmanModel = settingsChairman
			}
			if err := config.SaveSettings(cfg.Council.SettingsFile, current); err != nil {
				return err
			}
			current, err = config.LoadSettings(cfg.Council.SettingsFile, current)
			if err != nil {
				return err
			}
		}

		fmt.Fprintf(ctx.App.Writer, "council models: %s\n", strings.Join(current.CouncilModels, ", "))
		fmt.Fprintf(ctx.App.Writer, "chairman model: %s\n", current.ChairmanModel)
		return nil
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "council",
		Usage: "Query several language models at once",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to a .toml or .yaml configuration file",
				Aliases:     []string{"c"},
				EnvVars:     []string{"COUNCIL_CONFIG"},
				Destination: &configPath,
			},
			&cli.BoolFlag{
				Name:        "mock",
				Usage:       "Answer every model from the offline mock backend",
				Destination: &useMock,
			},
		},
		Commands: []*cli.Command{queryCommand, modelsCommand, serveCommand, conversationsCommand, settingsCommand},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if useMock {
		cfg.Council.Mock = true
	}
	return cfg, nil
}

// startCouncil builds and starts a council with the persisted model
// selection applied over the configuration.
func startCouncil(ctx context.Context, cfg *config.Config) (*llmcouncil.Council, error) {
	settings, err := config.LoadSettings(cfg.Council.SettingsFile, config.SettingsFrom(cfg))
	if err != nil {
		return nil, err
	}
	var logger logging.Logger = cfg.Logger().WithComponent("council")

	council := llmcouncil.New(cfg.BuildClient(), func(o *llmcouncil.Options) {
		o.CouncilModels = settings.CouncilModels
		o.ChairmanModel = settings.ChairmanModel
		o.Timeout = cfg.Council.Timeout.Duration
		o.Logger = logger
	})
	if err := council.Start(ctx); err != nil {
		return nil, err
	}
	return council, nil
}

func openStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.Path)
}
