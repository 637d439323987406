package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inversecrop/internal/codec"
	"inversecrop/internal/config"
)

func parseArgs(t *testing.T, args ...string) (*cliArgs, *kong.Context) {
	t.Helper()
	var cli cliArgs
	parser, err := kong.New(&cli, kong.Name("inversecrop"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestParseApply(t *testing.T) {
	cli, ctx := parseArgs(t, "apply", "in.png", "-c", "h:10:5", "--crop", "v:0:3", "--format", "webp", "--feather", "0")
	assert.Equal(t, "apply <input>", ctx.Command())
	assert.Equal(t, "in.png", cli.Apply.Input)
	assert.Equal(t, []string{"h:10:5", "v:0:3"}, cli.Apply.Crops)
	assert.Equal(t, "webp", cli.Apply.Format)
	assert.Equal(t, 0, cli.Feather)
	assert.Equal(t, -1, cli.ExportFeather)
}

func TestParseServeDefault(t *testing.T) {
	dir := t.TempDir()
	cli, ctx := parseArgs(t, dir, "--no-open")
	assert.Equal(t, "serve <root-dir>", ctx.Command())
	assert.Equal(t, dir, cli.Serve.RootDir)
	assert.False(t, cli.Serve.Open)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compositing:\n  feather_radius: 8\n  export_feather_radius: 30\n"), 0644))

	g := Globals{Config: path, Feather: -1, ExportFeather: 12}
	cfg, err := g.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Compositing.FeatherRadius)
	assert.Equal(t, 12, cfg.Compositing.ExportFeatherRadius)

	require.NoError(t, os.WriteFile(path, []byte("export:\n  format: gif\n"), 0644))
	_, err = g.loadConfig()
	assert.Error(t, err)
}

func TestApplyCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	writePNG(t, input, whiteImage(50, 40))
	output := filepath.Join(dir, "out.jpg")

	cmd := applyCmd{Input: input, Crops: []string{"h:0:10", "v:45:5"}, Output: output, Format: "jpeg"}
	require.NoError(t, cmd.Run(&Globals{Feather: -1, ExportFeather: -1}))

	img, err := codec.Decode(context.Background(), output)
	require.NoError(t, err)
	assert.Equal(t, 45, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())

	bad := applyCmd{Input: input, Crops: []string{"h:0:40"}, Output: output}
	assert.Error(t, bad.Run(&Globals{Feather: -1, ExportFeather: -1}))
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), whiteImage(30, 30))
	recipe := filepath.Join(dir, "recipe.json")
	require.NoError(t, os.WriteFile(recipe, []byte(recipeJSON), 0644))

	outDir := filepath.Join(t.TempDir(), "out")
	cmd := batchCmd{Recipe: recipe, Files: []string{dir}, OutputDir: outDir}
	// The recipe's first region is wider than a 30px image.
	assert.Error(t, cmd.Run(&Globals{Feather: -1, ExportFeather: -1}))

	require.NoError(t, os.WriteFile(recipe, []byte(`[{"type":"crop","orientation":"h","offset":5,"size":5}]`), 0644))
	require.NoError(t, cmd.Run(&Globals{Feather: -1, ExportFeather: -1}))
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "a-")
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	cmd := initConfigCmd{Path: path}
	require.NoError(t, cmd.Run(&Globals{}))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	assert.Error(t, cmd.Run(&Globals{}))
	cmd.Force = true
	assert.NoError(t, cmd.Run(&Globals{}))
}
