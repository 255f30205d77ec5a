package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prodbyeagle/soundlab/importer"
	"github.com/prodbyeagle/soundlab/reconcile"
	"github.com/prodbyeagle/soundlab/telemetry"
	"github.com/prodbyeagle/soundlab/watch"
)

var stdout io.Writer = os.Stdout

// openCLI opens the app for a one-shot command tagged with the CLI source.
func (g *Globals) openCLI(ctx context.Context) (context.Context, *app, error) {
	a, err := g.open(ctx, reconcile.DefaultConfig())
	if err != nil {
		return ctx, nil, err
	}
	return telemetry.WithSource(ctx, telemetry.SourceCLI), a, nil
}

// ImportCmd imports a single file under a name.
type ImportCmd struct {
	Name string `arg:"" help:"Asset name (empty to use the file name)."`
	Path string `arg:"" help:"Audio file to import." type:"path"`
}

func (c *ImportCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	outcome, err := a.lib.ImportAsset(ctx, c.Name, c.Path)
	if err != nil {
		return err
	}
	if outcome == importer.OutcomeMissing {
		return fmt.Errorf("%s: no such file", c.Path)
	}
	_, _ = fmt.Fprintf(stdout, "%s\t%s\n", outcome, c.Path)
	return nil
}

// ImportDirCmd imports every matching file beneath a directory.
type ImportDirCmd struct {
	Dir string `arg:"" help:"Directory to import." type:"existingdir"`
}

func (c *ImportDirCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	result, err := a.lib.ImportDirectory(ctx, c.Dir)
	if result != nil {
		printTreeResult(stdout, result)
	}
	return err
}

func printTreeResult(w io.Writer, r *importer.TreeResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "root\t%s\n", r.Root)
	_, _ = fmt.Fprintf(tw, "discovered\t%d\n", r.Discovered)
	_, _ = fmt.Fprintf(tw, "imported\t%d\n", r.Imported)
	_, _ = fmt.Fprintf(tw, "cached\t%d\n", r.Cached)
	_, _ = fmt.Fprintf(tw, "existing\t%d\n", r.Existing)
	_, _ = fmt.Fprintf(tw, "missing\t%d\n", r.Missing)
	_, _ = fmt.Fprintf(tw, "failed\t%d\n", r.Failed)
	_, _ = fmt.Fprintf(tw, "duration\t%s\n", r.Duration.Round(time.Millisecond))
	_ = tw.Flush()
	for _, err := range r.Errors {
		_, _ = fmt.Fprintf(w, "error: %v\n", err)
	}
}

// ListCmd lists imported assets.
type ListCmd struct {
	Long bool `short:"l" help:"Show id, location, favorite flag, tags and checksum."`
}

func (c *ListCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !c.Long {
		names, err := a.lib.ListNames(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			_, _ = fmt.Fprintln(stdout, name)
		}
		return nil
	}

	assets, err := a.lib.ListAssets(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tFAV\tTAGS\tCHECKSUM\tLOCATION")
	for _, asset := range assets {
		fav := ""
		if asset.IsFavorite {
			fav = "*"
		}
		checksum := "-"
		if !asset.Checksum.IsZero() {
			checksum = asset.Checksum.ShortString()
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			asset.ID, asset.Name, fav, strings.Join(asset.Tags, ","), checksum, asset.Location)
	}
	return tw.Flush()
}

// DeleteCmd deletes an asset record. The file on disk is left alone.
type DeleteCmd struct {
	ID int64 `arg:"" help:"Asset id."`
}

func (c *DeleteCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.lib.DeleteAsset(ctx, c.ID)
}

// FavoriteCmd toggles the favorite flag.
type FavoriteCmd struct {
	ID int64 `arg:"" help:"Asset id."`
}

func (c *FavoriteCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	asset, err := a.lib.ToggleFavorite(ctx, c.ID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "%s\tfavorite=%t\n", asset.Name, asset.IsFavorite)
	return nil
}

// TagCmd replaces the tags of an asset.
type TagCmd struct {
	ID   int64    `arg:"" help:"Asset id."`
	Tags []string `arg:"" optional:"" help:"Tags to set. None clears them."`
}

func (c *TagCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	asset, err := a.lib.SetTags(ctx, c.ID, c.Tags)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "%s\t%s\n", asset.Name, strings.Join(asset.Tags, ","))
	return nil
}

// RootsCmd groups the import root commands.
type RootsCmd struct {
	List   RootsListCmd   `cmd:"" default:"1" help:"List import roots."`
	Remove RootsRemoveCmd `cmd:"" help:"Forget an import root and delete the assets beneath it."`
}

type RootsListCmd struct{}

func (c *RootsListCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	roots, err := a.lib.ListRoots(ctx)
	if err != nil {
		return err
	}
	for _, root := range roots {
		_, _ = fmt.Fprintln(stdout, root)
	}
	return nil
}

type RootsRemoveCmd struct {
	Path string `arg:"" help:"Root to remove." type:"path"`
}

func (c *RootsRemoveCmd) Run(ctx context.Context, g *Globals) error {
	ctx, a, err := g.openCLI(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	_, result, err := a.lib.RemoveRoot(ctx, c.Path)
	if err != nil {
		return err
	}
	printReconcileResult(stdout, result)
	return nil
}

// RecacheCmd drops records whose location is outside every import root.
type RecacheCmd struct {
	PruneMissing bool `help:"Also delete records whose file no longer exists."`
}

func (c *RecacheCmd) Run(ctx context.Context, g *Globals) error {
	cfg := reconcile.DefaultConfig()
	cfg.PruneMissing = c.PruneMissing
	a, err := g.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	result, err := a.lib.Recache(telemetry.WithSource(ctx, telemetry.SourceCLI))
	if err != nil {
		return err
	}
	printReconcileResult(stdout, result)
	return nil
}

func printReconcileResult(w io.Writer, r *reconcile.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "run\t%s\n", r.RunID)
	_, _ = fmt.Fprintf(tw, "roots\t%s\n", strings.Join(r.Roots, ", "))
	_, _ = fmt.Fprintf(tw, "scanned\t%d\n", r.Scanned)
	_, _ = fmt.Fprintf(tw, "retained\t%d\n", r.Retained)
	_, _ = fmt.Fprintf(tw, "deleted\t%d\n", r.Deleted)
	_, _ = fmt.Fprintf(tw, "missing\t%d\n", r.Missing)
	_ = tw.Flush()
	for _, msg := range r.Errors {
		_, _ = fmt.Fprintf(w, "error: %s\n", msg)
	}
}

// WatchCmd imports new files beneath the import roots until interrupted.
type WatchCmd struct {
	Debounce        time.Duration `help:"Quiet period before a changed path is imported." default:"500ms"`
	RecacheInterval time.Duration `help:"Also reconcile in the background at this interval (0 disables)." default:"0s"`
	PruneMissing    bool          `help:"Background reconciliation also deletes records whose file no longer exists."`
}

func (c *WatchCmd) Run(ctx context.Context, g *Globals) error {
	cfg := reconcile.DefaultConfig()
	cfg.PruneMissing = c.PruneMissing
	if c.RecacheInterval > 0 {
		cfg.Interval = c.RecacheInterval
	}
	a, err := g.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if c.RecacheInterval > 0 {
		a.reconciler.Start(ctx)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := a.reconciler.Stop(stopCtx); err != nil {
				a.logger.Warn("stopping reconciler", "error", err)
			}
		}()
	}

	w := watch.New(a.importer, a.roots,
		watch.WithDebounce(c.Debounce),
		watch.WithLogger(a.logger.With("component", "watch")),
	)
	return w.Run(ctx)
}
