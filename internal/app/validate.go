package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rowjay/s3backup/internal/storage"
)

const validateParallelism = 4

// CheckResult is the outcome of validating one element. Title is empty for
// the remote store check.
type CheckResult struct {
	Title string
	Err   error
}

// Validate checks the remote store and every element concurrently. It only
// reads, so it does not take the run lock. Results keep configuration order,
// with the store check first.
func (a *App) Validate(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(a.Elements)+1)
	results[0].Err = a.Gateway.Store.Ping(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateParallelism)
	for i, el := range a.Elements {
		results[i+1].Title = el.Title
		g.Go(func() error {
			results[i+1].Err = a.Prober.Check(gctx, el.Target)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			a.Log.Error().Err(r.Err).Str("element", r.Title).Msg("validation failed")
		}
	}
	return results
}

// Listing holds the remote objects of one element.
type Listing struct {
	Title   string
	Folder  string
	Objects []storage.Object
	Err     error
}

// List returns the remote objects of the selected elements (all when titles
// is empty).
func (a *App) List(ctx context.Context, titles []string) ([]Listing, error) {
	selected, err := a.selectElements(titles)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateParallelism)
	for i, el := range selected {
		g.Go(func() error {
			objects, err := a.Gateway.List(gctx, el.RemoteFolder)
			out[i] = Listing{Title: el.Title, Folder: el.RemoteFolder, Objects: objects, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}
