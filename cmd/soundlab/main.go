// Command soundlab indexes local audio samples into a persistent library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
)

var version = "dev"

// CLI is the soundlab command line.
type CLI struct {
	Globals

	Import    ImportCmd    `cmd:"" help:"Import a single audio file."`
	ImportDir ImportDirCmd `cmd:"" name:"import-dir" help:"Import every audio file beneath a directory."`
	List      ListCmd      `cmd:"" help:"List imported assets."`
	Delete    DeleteCmd    `cmd:"" help:"Delete an asset by id."`
	Favorite  FavoriteCmd  `cmd:"" help:"Toggle the favorite flag of an asset."`
	Tag       TagCmd       `cmd:"" help:"Replace the tags of an asset."`
	Roots     RootsCmd     `cmd:"" help:"Manage import roots."`
	Recache   RecacheCmd   `cmd:"" help:"Remove assets that are no longer beneath an import root."`
	Watch     WatchCmd     `cmd:"" help:"Import new files beneath import roots as they appear."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(&cli.Globals)
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("soundlab"),
		kong.Description("Index local audio samples and keep the library in sync with disk."),
		kong.UsageOnError(),
		kong.DefaultEnvars("SOUNDLAB"),
		kong.Vars{
			"version":  version,
			"data_dir": defaultDataDir(),
		},
	)
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".soundlab")
	}
	return filepath.Join(dir, "soundlab")
}
