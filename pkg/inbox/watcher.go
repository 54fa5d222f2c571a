// Package inbox turns a drop folder into crop analyses. Photos already in the
// folder are processed at start; new ones are picked up once their size has
// settled. Each processed file is moved to processed/ or failed/.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"

	"krishismart/pkg/analysis"
	"krishismart/pkg/photo"
	"krishismart/pkg/queries"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	tickInterval = 250 * time.Millisecond
	settleTime   = 300 * time.Millisecond
)

// Analyzer is the part of analysis.Pipeline the watcher needs.
type Analyzer interface {
	Analyze(ctx context.Context, us queries.UserSource, name string, data []byte) (*analysis.Outcome, error)
}

type Watcher struct {
	Dir      string
	Workers  int
	User     queries.UserSource
	Analyzer Analyzer
}

func (w *Watcher) workers() int {
	if w.Workers <= 0 {
		return runtime.NumCPU()
	}
	return w.Workers
}

// Run processes the existing photos, then watches Dir until ctx is done.
// It returns after in-progress files have finished.
func (w *Watcher) Run(ctx context.Context) error {
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.Dir, sub), 0755); err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.Dir, err)
	}

	fileCh := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < w.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				if ctx.Err() != nil {
					continue
				}
				if err := w.ProcessFile(ctx, name); err != nil {
					log.WithError(err).WithField("file", name).Warn("inbox file failed")
				}
			}
		}()
	}
	defer func() {
		close(fileCh)
		wg.Wait()
	}()

	send := func(name string) bool {
		select {
		case fileCh <- name:
			return true
		case <-ctx.Done():
			return false
		}
	}

	initial := listImageFiles(w.Dir)
	log.WithFields(log.Fields{"dir": w.Dir, "existing": len(initial), "workers": w.workers()}).Info("watching inbox")
	for _, name := range initial {
		if !send(name) {
			return nil
		}
	}

	pending := map[string]time.Time{}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != filepath.Clean(w.Dir) || !photo.IsSupportedExt(name) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create == fsnotify.Create:
				pending[name] = time.Now()
			case ev.Op&fsnotify.Write == fsnotify.Write:
				if _, ok := pending[name]; ok {
					pending[name] = time.Now()
				}
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > settleTime {
					delete(pending, name)
					if !send(name) {
						return nil
					}
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("inbox watch error")
		}
	}
}

// ProcessFile analyzes one file in Dir and moves it out of the inbox.
func (w *Watcher) ProcessFile(ctx context.Context, name string) error {
	src := filepath.Join(w.Dir, name)
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	out, aerr := w.Analyzer.Analyze(ctx, w.User, name, data)
	if aerr != nil && ctx.Err() != nil {
		// interrupted, leave it for the next run
		return aerr
	}
	dest := ProcessedDir
	if aerr != nil {
		dest = FailedDir
	}
	if err := os.Rename(src, filepath.Join(w.Dir, dest, name)); err != nil {
		return errors.Join(aerr, fmt.Errorf("move %s: %w", name, err))
	}
	if aerr != nil {
		return aerr
	}
	log.WithFields(log.Fields{"file": name, "analysis": out.Analysis.ID}).Info("inbox file processed")
	return nil
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !photo.IsSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}
