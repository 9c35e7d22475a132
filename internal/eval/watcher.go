package eval

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/driveagent/internal/logger"
)

// QuestionWatcher keeps the question set of a file in memory and reloads it
// when the file changes on disk. A failed reload keeps the last good set.
type QuestionWatcher struct {
	path string

	mu        sync.RWMutex
	questions []Question
	loadErr   error

	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
	closeOnce sync.Once
	log       *logger.Logger
}

// NewQuestionWatcher loads path and starts watching it. A missing file is
// an empty set, not an error; it is picked up once created.
func NewQuestionWatcher(path string) (*QuestionWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	qw := &QuestionWatcher{
		path:      abs,
		stopWatch: make(chan struct{}),
		log:       logger.Global().WithPrefix("questions"),
	}
	qw.Reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		qw.log.Warn("failed to create file watcher: %v", err)
		return qw, nil
	}
	// Watch the directory: editors often replace the file instead of writing it.
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err == nil {
		if err := watcher.Add(dir); err != nil {
			qw.log.Warn("failed to watch %s: %v", dir, err)
			watcher.Close()
			return qw, nil
		}
	}
	qw.watcher = watcher
	go qw.watchFile()
	return qw, nil
}

// Path is the watched file.
func (qw *QuestionWatcher) Path() string { return qw.path }

// Questions returns a copy of the current set.
func (qw *QuestionWatcher) Questions() []Question {
	qw.mu.RLock()
	defer qw.mu.RUnlock()
	return append([]Question(nil), qw.questions...)
}

// Err is the error of the most recent load, if it failed.
func (qw *QuestionWatcher) Err() error {
	qw.mu.RLock()
	defer qw.mu.RUnlock()
	return qw.loadErr
}

// Reload reads the file now.
func (qw *QuestionWatcher) Reload() {
	questions, err := LoadQuestions(qw.path)
	qw.mu.Lock()
	defer qw.mu.Unlock()
	switch {
	case err == nil:
		qw.questions = questions
		qw.loadErr = nil
	case errors.Is(err, fs.ErrNotExist):
		qw.questions = nil
		qw.loadErr = nil
	default:
		qw.loadErr = err
		qw.log.Warn("keeping previous question set: %v", err)
	}
}

// Save validates and writes questions, then serves them immediately.
func (qw *QuestionWatcher) Save(questions []Question) error {
	if err := SaveQuestions(qw.path, questions); err != nil {
		return err
	}
	qw.mu.Lock()
	qw.questions = append([]Question(nil), questions...)
	qw.loadErr = nil
	qw.mu.Unlock()
	return nil
}

// Close stops watching.
func (qw *QuestionWatcher) Close() error {
	var err error
	qw.closeOnce.Do(func() {
		close(qw.stopWatch)
		if qw.watcher != nil {
			err = qw.watcher.Close()
		}
	})
	return err
}

func (qw *QuestionWatcher) watchFile() {
	for {
		select {
		case <-qw.stopWatch:
			return
		case event, ok := <-qw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != qw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				qw.log.Debug("%s changed (%s), reloading", qw.path, event.Op)
				qw.Reload()
			}
		case err, ok := <-qw.watcher.Errors:
			if !ok {
				return
			}
			qw.log.Error("question watcher error: %v", err)
		}
	}
}
