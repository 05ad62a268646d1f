// Package ingest implements the two ingest producers of spec.md §4.6 (C6):
// the inbox watcher and the scanner scraper, sharing one commit-and-register
// procedure. Grounded on aistore's downloader package shape (a long-running
// watcher goroutine feeding a shared commit path) and on
// SK-Kadam-aistore/downloader/notifications.go for the producer/registry
// wiring style.
package ingest

import (
	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/collab"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/store"
)

// Pipeline bundles the registries and bus every ingest producer writes
// through, so the watcher and the scanner scraper can share exactly one
// commit-and-register implementation.
type Pipeline struct {
	Config  cmn.Config
	Slides  *store.SlideRegistry
	Jobs    *store.JobQueue
	Scanner *store.ScannerFileStore
	Bus     *events.Bus
	OCR     collab.LabelOCR
	log     *nlog.Logger
}

func NewPipeline(cfg cmn.Config, slides *store.SlideRegistry, jobs *store.JobQueue, scanner *store.ScannerFileStore, bus *events.Bus) *Pipeline {
	return &Pipeline{
		Config:  cfg,
		Slides:  slides,
		Jobs:    jobs,
		Scanner: scanner,
		Bus:     bus,
		OCR:     collab.NoopLabelOCR{},
		log:     nlog.Named("ingest"),
	}
}
