package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rowjay/s3backup/internal/backup"
	"github.com/rowjay/s3backup/internal/command"
	"github.com/rowjay/s3backup/internal/compress"
	"github.com/rowjay/s3backup/internal/config"
	"github.com/rowjay/s3backup/internal/db"
	"github.com/rowjay/s3backup/internal/lock"
	"github.com/rowjay/s3backup/internal/metrics"
	"github.com/rowjay/s3backup/internal/notify"
	"github.com/rowjay/s3backup/internal/retention"
	"github.com/rowjay/s3backup/internal/storage"
	"github.com/rowjay/s3backup/internal/target"
	"github.com/rowjay/s3backup/internal/util"
)

// ErrNoMatchingElements is returned by Restore when a title filter selects
// no configured element.
var ErrNoMatchingElements = errors.New("no configured element matches the requested titles")

type App struct {
	Cfg      *config.Config
	Elements []target.Element
	Engine   *backup.Engine
	Gateway  *storage.Gateway
	Prober   *db.Prober
	Log      zerolog.Logger
	Notifier notify.Notifier
	Metrics  *metrics.Recorder
	Now      func() time.Time
	// SweepLocal defaults to retention.SweepLocal.
	SweepLocal func(dir, title string, retentionDays int, now time.Time) ([]string, error)
}

// New wires the application from a validated configuration.
func New(cfg *config.Config, store storage.Store, exec command.Executor, log zerolog.Logger, notifier notify.Notifier) *App {
	a := &App{
		Cfg:      cfg,
		Elements: cfg.Elements(),
		Engine:   backup.New(exec, log),
		Gateway:  storage.NewGateway(store, log),
		Prober:   db.NewProber(exec),
		Log:      log,
		Notifier: notifier,
		Metrics:  metrics.NewRecorder(),
		Now:      time.Now,

		SweepLocal: retention.SweepLocal,
	}
	a.warnSharedFolders()
	return a
}

// warnSharedFolders flags elements that share a remote folder: their remote
// sweeps and latest-object lookups see each other's artifacts.
func (a *App) warnSharedFolders() {
	seen := map[string]string{}
	for _, el := range a.Elements {
		if other, ok := seen[el.RemoteFolder]; ok {
			a.Log.Warn().Str("element", el.Title).Str("other", other).Str("folder", el.RemoteFolder).
				Msg("elements share a remote folder; restore and remote retention will mix their artifacts")
			continue
		}
		seen[el.RemoteFolder] = el.Title
	}
}

// Backup runs every element in configuration order. A failing element never
// stops the batch. The error return is reserved for failures that prevent the
// batch from running at all, such as a held lock.
func (a *App) Backup(ctx context.Context) (*BatchReport, error) {
	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	report := a.newReport("backup")
	log := a.Log.With().Str("run_id", report.RunID).Logger()
	log.Info().Int("elements", len(a.Elements)).Msg("backup batch started")

	for _, el := range a.Elements {
		res := &ElementResult{Title: el.Title, State: StatePending, Started: a.now()}
		report.Results = append(report.Results, res)
		a.backupElement(ctx, log.With().Str("element", el.Title).Logger(), el, res)
		res.Finished = a.now()
		a.observe(report.Operation, res)
	}

	a.finish(ctx, log, report)
	return report, nil
}

func (a *App) backupElement(ctx context.Context, log zerolog.Logger, el target.Element, res *ElementResult) {
	if err := ctx.Err(); err != nil {
		res.fail(err)
		log.Error().Err(err).Msg("batch cancelled before element started")
		return
	}

	res.advance(StateBackingUp)
	staging, err := util.ElementDir(a.Cfg.BackupDir, el.Title)
	if err == nil {
		err = os.MkdirAll(staging, 0o750)
	}
	if err != nil {
		res.fail(fmt.Errorf("prepare staging directory: %w", err))
		log.Error().Err(res.Err).Msg("backup failed")
		return
	}
	artifact, err := a.Engine.Perform(ctx, el, staging)
	if err != nil {
		res.fail(err)
		log.Error().Err(err).Msg("backup failed")
		return
	}
	res.Artifact = artifact

	if a.Cfg.Global.VerifyArtifacts {
		res.advance(StateVerifying)
		size, err := compress.Verify(artifact)
		if err != nil {
			res.fail(err)
			log.Error().Err(err).Str("artifact", artifact).Msg("artifact verification failed")
			if rmErr := os.Remove(artifact); rmErr != nil {
				log.Warn().Err(rmErr).Msg("failed to remove rejected artifact")
			}
			return
		}
		res.Bytes = size
	} else if info, err := os.Stat(artifact); err == nil {
		res.Bytes = info.Size()
	}
	log.Info().Str("artifact", artifact).Str("size", humanize.Bytes(uint64(res.Bytes))).Msg("backup created")

	res.advance(StateUploading)
	key, err := a.upload(ctx, log, artifact, el.RemoteFolder)
	if err != nil {
		// Both sweeps are skipped: the only copy may be the local one.
		res.fail(err)
		log.Error().Err(err).Msg("upload failed")
		return
	}
	res.Key = key
	log.Info().Str("key", key).Msg("artifact uploaded")

	res.advance(StateSweepingLocal)
	deleted, err := a.sweepLocal(staging, el.Title, el.LocalRetentionDays, a.now())
	res.LocalDeleted = deleted
	if err != nil {
		res.fail(err)
		log.Error().Err(err).Msg("local retention sweep failed")
	} else if len(deleted) > 0 {
		log.Info().Strs("deleted", deleted).Msg("local retention applied")
	}

	// The remote sweep runs even after a local sweep failure.
	res.advance(StateSweepingRemote)
	removed, err := a.Gateway.SweepRemote(ctx, el.RemoteFolder, el.RemoteRetentionDays, a.now())
	res.RemoteDeleted = removed
	if err != nil {
		res.fail(err)
		log.Error().Err(err).Msg("remote retention sweep failed")
		return
	}
	if len(removed) > 0 {
		log.Info().Strs("deleted", removed).Msg("remote retention applied")
	}
	res.advance(StateDone)
}

func (a *App) upload(ctx context.Context, log zerolog.Logger, artifact, folder string) (string, error) {
	var key string
	attempts := a.Cfg.Backup.UploadRetries + 1
	err := util.Retry(ctx, attempts, a.Cfg.Backup.RetryBackoff, func(attempt int) error {
		var err error
		key, err = a.Gateway.Upload(ctx, artifact, folder)
		if err != nil && attempt < attempts {
			log.Warn().Err(err).Int("attempt", attempt).Msg("upload failed, retrying")
		}
		return err
	})
	return key, err
}

// Restore downloads the latest artifact of each selected element and loads
// it back. With no titles every element is restored.
func (a *App) Restore(ctx context.Context, titles []string) (*BatchReport, error) {
	selected, err := a.selectElements(titles)
	if err != nil {
		return nil, err
	}

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	report := a.newReport("restore")
	log := a.Log.With().Str("run_id", report.RunID).Logger()
	log.Info().Int("elements", len(selected)).Msg("restore batch started")

	for _, el := range selected {
		res := &ElementResult{Title: el.Title, State: StatePending, Started: a.now()}
		report.Results = append(report.Results, res)
		a.restoreElement(ctx, log.With().Str("element", el.Title).Logger(), el, res)
		res.Finished = a.now()
		a.observe(report.Operation, res)
	}

	a.finish(ctx, log, report)
	return report, nil
}

func (a *App) restoreElement(ctx context.Context, log zerolog.Logger, el target.Element, res *ElementResult) {
	res.advance(StateDownloading)
	if err := ctx.Err(); err != nil {
		res.fail(err)
		return
	}
	if el.Target == nil {
		res.fail(fmt.Errorf("element %s: %w", el.Title, target.ErrNoTarget))
		log.Error().Err(res.Err).Msg("restore failed")
		return
	}

	path, err := a.Gateway.Download(ctx, el.RemoteFolder, util.RestoreDir(a.Cfg.BackupDir))
	if err != nil {
		res.fail(err)
		log.Error().Err(err).Msg("download failed")
		return
	}
	res.Artifact = path
	if info, err := os.Stat(path); err == nil {
		res.Bytes = info.Size()
	}
	log.Info().Str("artifact", path).Str("size", humanize.Bytes(uint64(res.Bytes))).Msg("artifact downloaded")

	res.advance(StateRestoring)
	if err := a.Engine.Restore(ctx, el, path); err != nil {
		res.fail(err)
		log.Error().Err(err).Msg("restore failed")
		return
	}
	log.Info().Msg("restore completed")
	res.advance(StateDone)
}

// selectElements keeps configuration order. Unknown titles are logged.
func (a *App) selectElements(titles []string) ([]target.Element, error) {
	if len(titles) == 0 {
		return a.Elements, nil
	}
	want := map[string]bool{}
	for _, t := range titles {
		want[t] = true
	}
	var out []target.Element
	for _, el := range a.Elements {
		if want[el.Title] {
			out = append(out, el)
			delete(want, el.Title)
		}
	}
	for t := range want {
		a.Log.Warn().Str("title", t).Msg("no configured element has this title")
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoMatchingElements, titles)
	}
	return out, nil
}

func (a *App) newReport(op string) *BatchReport {
	return &BatchReport{Operation: op, RunID: uuid.NewString(), Started: a.now()}
}

func (a *App) finish(ctx context.Context, log zerolog.Logger, report *BatchReport) {
	report.Finished = a.now()
	failed := len(report.Failed())
	ev := log.Info()
	if failed > 0 {
		ev = log.Warn()
	}
	ev.Int("failed", failed).Int("total", len(report.Results)).
		Dur("took", report.Finished.Sub(report.Started)).
		Msg(report.Operation + " batch finished")

	if path := a.Cfg.Metrics.Textfile; path != "" && a.Metrics != nil {
		if err := a.Metrics.WriteTextfile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to write metrics textfile")
		}
	}
	if a.Notifier != nil {
		// Delivery must not depend on a batch context that may have expired.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := a.Notifier.Notify(nctx, report.event()); err != nil {
			log.Warn().Err(err).Msg("notification failed")
		}
	}
}

func (a *App) observe(op string, res *ElementResult) {
	if a.Metrics == nil {
		return
	}
	a.Metrics.Observe(metrics.Result{
		Operation:     op,
		Element:       res.Title,
		State:         string(res.State),
		OK:            res.OK(),
		Bytes:         res.Bytes,
		Duration:      res.Finished.Sub(res.Started),
		LocalDeleted:  len(res.LocalDeleted),
		RemoteDeleted: len(res.RemoteDeleted),
		Finished:      res.Finished,
	})
}

func (a *App) sweepLocal(dir, title string, days int, now time.Time) ([]string, error) {
	if a.SweepLocal == nil {
		return retention.SweepLocal(dir, title, days, now)
	}
	return a.SweepLocal(dir, title, days, now)
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
