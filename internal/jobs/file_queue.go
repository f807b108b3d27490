package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftline/scriptweave/pkg/models"
)

// ErrJobNotFound is returned when an update or removal names an unknown job.
var ErrJobNotFound = errors.New("job not found")

// FileQueue stores the queue as a single JSON file and uses filesystem
// notifications so other processes observe changes without polling. Writes
// are atomic (temp file + rename), so readers never see a partial queue.
type FileQueue struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	now     func() time.Time

	mu          sync.Mutex
	subscribers []chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

func NewFileQueue(path string, logger *slog.Logger) (*FileQueue, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	// Watch the directory rather than the file: the atomic rename replaces
	// the inode, which would silently detach a file-level watch.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create queue watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch queue directory: %w", err)
	}

	q := &FileQueue{
		path:    path,
		logger:  logger,
		watcher: watcher,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go q.watch()
	return q, nil
}

func (q *FileQueue) watch() {
	for {
		select {
		case <-q.done:
			return
		case event, ok := <-q.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(q.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				q.notify()
			}
		case err, ok := <-q.watcher.Errors:
			if !ok {
				return
			}
			q.logger.Warn("Queue watcher error", "error", err)
		}
	}
}

func (q *FileQueue) notify() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subscribers {
		select {
		case ch <- struct{}{}:
		default: // already pending, coalesce
		}
	}
}

func (q *FileQueue) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	q.mu.Lock()
	q.subscribers = append(q.subscribers, ch)
	q.mu.Unlock()
	return ch
}

func (q *FileQueue) List() ([]models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *FileQueue) Enqueue(job models.Job) (models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, err := q.load()
	if err != nil {
		return models.Job{}, err
	}
	job = prepare(job, q.now())
	queue = append(queue, job)
	if err := q.store(queue); err != nil {
		return models.Job{}, err
	}
	q.logger.Debug("Job enqueued", "job_id", job.ID, "type", job.Type, "script_id", job.ScriptID)
	return job, nil
}

func (q *FileQueue) Update(id string, status models.JobStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, err := q.load()
	if err != nil {
		return err
	}
	for i := range queue {
		if queue[i].ID == id {
			queue[i].Status = status
			queue[i].UpdatedAt = q.now()
			return q.store(queue)
		}
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

func (q *FileQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, err := q.load()
	if err != nil {
		return err
	}
	for i := range queue {
		if queue[i].ID == id {
			queue = append(queue[:i], queue[i+1:]...)
			return q.store(queue)
		}
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

func (q *FileQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
		q.watcher.Close()
	})
	return nil
}

func (q *FileQueue) load() ([]models.Job, error) {
	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var queue []models.Job
	if err := json.Unmarshal(data, &queue); err != nil {
		// A corrupt queue is advisory state, not source of truth. Start
		// over rather than wedging every producer and consumer.
		q.logger.Warn("Queue file corrupt, resetting", "path", q.path, "error", err)
		return nil, nil
	}
	return queue, nil
}

func (q *FileQueue) store(queue []models.Job) error {
	data, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	tempPath := q.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write queue temp file: %w", err)
	}
	if err := os.Rename(tempPath, q.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}
