package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"inversecrop/internal/codec"
	"inversecrop/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("inversecrop"),
		kong.Description("Remove strips from images and stitch the rest back together."),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(&args.Globals); err != nil {
		return err
	}

	return nil
}

type Globals struct {
	Config        string `help:"YAML config file" type:"path" placeholder:"FILE"`
	Verbose       bool   `help:"Enable verbose logging" default:"false"`
	Feather       int    `help:"Feather radius for previews (negative keeps the configured value)" default:"-1"`
	ExportFeather int    `help:"Feather radius for final renders (negative keeps the configured value)" default:"-1"`
}

// setup installs the logger and loads the configuration with flag overrides
// applied.
func (g *Globals) setup() (context.Context, context.CancelFunc, *config.Config, error) {
	level := zerolog.InfoLevel
	if g.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = log.Logger.WithContext(ctx)
	return ctx, cancel, cfg, nil
}

func (g *Globals) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	path := g.Config
	if path == "" {
		if _, err := os.Stat(config.GetConfigPath()); err == nil {
			path = config.GetConfigPath()
		}
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		log.Debug().Str("path", path).Msg("loaded config")
	}

	if g.Feather >= 0 {
		cfg.Compositing.FeatherRadius = g.Feather
	}
	if g.ExportFeather >= 0 {
		cfg.Compositing.ExportFeatherRadius = g.ExportFeather
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type serveCmd struct {
	RootDir string `arg:"" help:"Root directory to serve images from" type:"existingdir"`
	Addr    string `help:"Address to listen on (random local port when empty)"`
	Open    bool   `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	Once    bool   `help:"Exit after the first export" default:"false"`
}

func (cmd *serveCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	app := NewWebApp(Config{
		RootDir:  cmd.RootDir,
		Addr:     cmd.Addr,
		Settings: cfg,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
		OnExport: func(name string) {
			log.Ctx(ctx).Info().Str("name", name).Msg("exported")
			if cmd.Once {
				cancel()
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type applyCmd struct {
	Input   string   `arg:"" help:"Image file, http(s) URL or data URL"`
	Crops   []string `name:"crop" short:"c" help:"Strip to remove as h:Y:HEIGHT or v:X:WIDTH, applied in order" required:""`
	Output  string   `short:"o" help:"Output file (defaults to <name>-inverse-cropped.<ext>)" type:"path"`
	Format  string   `help:"Output format: png, jpeg or webp (defaults to the configured format)"`
	Quality int      `help:"Quality for lossy formats, 1-100 (defaults to the configured quality)"`
}

func (cmd *applyCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	ops := make(Operations, 0, len(cmd.Crops))
	for _, flag := range cmd.Crops {
		c, err := ParseCropFlag(flag)
		if err != nil {
			return err
		}
		ops = append(ops, Operation{Crop: &c})
	}

	if cmd.Format != "" {
		cfg.Export.Format = cmd.Format
	}
	if cmd.Quality > 0 {
		cfg.Export.Quality = cmd.Quality
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	src, err := codec.Decode(ctx, cmd.Input)
	if err != nil {
		return err
	}
	out, err := NewSequenceCropper(cfg).Render(ctx, src, ops)
	if err != nil {
		return err
	}

	output := cmd.Output
	if output == "" {
		output = codec.DownloadName(cmd.Input, cfg.Export.Format)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer f.Close()
	if err := codec.Encode(f, out, cfg.Export.Format, cfg.ExportOptions()); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	log.Ctx(ctx).Info().Str("output", output).Str("recipe", RecipeID(ops)).Msg("done")
	return nil
}

type batchCmd struct {
	Recipe    string   `arg:"" help:"JSON file with the operations to apply" type:"existingfile"`
	Files     []string `arg:"" help:"Images or directories of images" type:"path"`
	OutputDir string   `help:"Directory for the results" default:"output" type:"path"`
	DryRun    bool     `help:"Print the parsed operations as JSON lines without executing"`
}

func (cmd *batchCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	ops, err := LoadRecipe(cmd.Recipe)
	if err != nil {
		return err
	}
	if cmd.DryRun {
		printJSONL(ops)
		return nil
	}

	files, err := collectImages(cmd.Files)
	if err != nil {
		return err
	}
	executor := &OperationExecutor{
		OutputDir: filepath.Clean(cmd.OutputDir),
		MimeType:  cfg.Export.Format,
		Cropper:   NewSequenceCropper(cfg),
	}
	return executor.Exec(ctx, files, ops)
}

type initConfigCmd struct {
	Path  string `arg:"" optional:"" help:"Where to write the config (defaults to the user config path)" type:"path"`
	Force bool   `help:"Overwrite an existing file"`
}

func (cmd *initConfigCmd) Run(g *Globals) error {
	path := cmd.Path
	if path == "" {
		path = config.GetConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !cmd.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().SaveToFile(path); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("wrote default config")
	return nil
}

type cliArgs struct {
	Globals

	Serve      serveCmd      `cmd:"" default:"withargs" help:"Serve the crop session API for a directory of images"`
	Apply      applyCmd      `cmd:"" help:"Remove strips from one image"`
	Batch      batchCmd      `cmd:"" help:"Apply a recipe of operations to many images"`
	InitConfig initConfigCmd `cmd:"" name:"init-config" help:"Write a config file with the default settings"`
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}
