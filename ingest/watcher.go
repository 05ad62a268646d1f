package ingest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pathlake/slideagent/cmn"
)

// Watcher observes the inbox directory for new files (spec.md §4.6 "Inbox
// watcher"), grounded on fsnotify's own documented create/rename handling
// idiom: watch the directory, not individual files, since editors and
// network copies often write a temp name and rename into place.
type Watcher struct {
	pipeline *Pipeline
	dir      string
	watcher  *fsnotify.Watcher
}

func NewWatcher(p *Pipeline) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cmn.NewError("ingest.watcher", cmn.KindIO, "create fsnotify watcher", err)
	}
	if err := fsw.Add(p.Config.InboxDir); err != nil {
		fsw.Close()
		return nil, cmn.NewError("ingest.watcher", cmn.KindIO, "watch inbox dir", err)
	}
	return &Watcher{pipeline: p, dir: p.Config.InboxDir, watcher: fsw}, nil
}

// Run blocks, dispatching one goroutine per qualifying event, until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	log := w.pipeline.log
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !cmn.SupportedExtensions[lowerExt(ev.Name)] {
				continue
			}
			go w.processCandidate(ctx, ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) processCandidate(ctx context.Context, path string) {
	log := w.pipeline.log.With("path", path)
	cfg := w.pipeline.Config
	stableWindow := time.Duration(cfg.StableSeconds) * time.Second
	isWSI := cmn.ExtensionFormat(lowerExt(path)).IsWSI()

	for {
		_, stillWriting, err := WaitStable(path, stableWindow, isWSI)
		if err != nil {
			log.Warnf("stable check failed, dropping candidate: %v", err)
			return
		}
		if !stillWriting {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(stableWindow):
		}
	}

	result, err := CommitToRaw(path, cfg.RawDir, filepath.Base(path))
	if err != nil {
		log.Errorf("commit failed: %v", err)
		return
	}
	if _, err := w.pipeline.Register(ctx, result, filepath.Base(path)); err != nil {
		log.Errorf("registration failed: %v", err)
	}
}

func lowerExt(name string) string { return toLower(filepath.Ext(name)) }
