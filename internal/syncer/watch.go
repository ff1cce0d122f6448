package syncer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
)

// Watch starts a file watcher over the memory files (and transcripts when
// that source is enabled). Bursts of events are debounced into a single
// pass. It is a no-op when watching is disabled or already running.
func (s *Syncer) Watch() error {
	if !s.cfg.Sync.Watch {
		return nil
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dirs := []string{s.layout.Dir}
	if s.cfg.HasSource(config.SourceMemory) {
		dirs = append(dirs, s.layout.DailyDir())
	}
	if s.cfg.HasSource(config.SourceConversations) {
		dirs = append(dirs, s.layout.ConversationsDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			watcher.Close()
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	s.addSubdirs(watcher, s.layout.DailyDir())

	s.watcher = watcher
	s.watchWG.Add(1)
	go s.watchLoop(watcher)
	s.log.Info("watching memory files", zap.Strings("dirs", dirs), zap.Duration("debounce", s.cfg.WatchDebounce()))
	return nil
}

// StopWatch stops the watcher and any pending debounce.
func (s *Syncer) StopWatch() error {
	s.watchMu.Lock()
	watcher := s.watcher
	s.watcher = nil
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.watchMu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	s.watchWG.Wait()
	return err
}

func (s *Syncer) watchLoop(watcher *fsnotify.Watcher) {
	defer s.watchWG.Done()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					s.addSubdirs(watcher, event.Name)
					continue
				}
			}
			if !s.relevant(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// trigger (re)arms the debounce timer.
func (s *Syncer) trigger() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return
	}
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.cfg.WatchDebounce(), func() {
		s.RequestSync(ReasonWatch)
	})
}

func (s *Syncer) relevant(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return s.cfg.HasSource(config.SourceMemory)
	case ".jsonl":
		return s.cfg.HasSource(config.SourceConversations)
	}
	return false
}

func (s *Syncer) addSubdirs(watcher *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			s.log.Warn("watch subdirectory failed", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}
