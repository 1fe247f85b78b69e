package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/database"
	"github.com/camden-git/parentsgallery/media"
	"github.com/camden-git/parentsgallery/metrics"
	"github.com/camden-git/parentsgallery/realtime"
)

var (
	ErrQueueFull = errors.New("thumbnail queue full")
	ErrStopped   = errors.New("thumbnail generator stopped")
)

// Thumbnailer renders one thumbnail from an original; media.Processor
// satisfies it.
type Thumbnailer interface {
	GenerateThumbnail(originalRelPath, thumbRelPath string) error
}

type ThumbnailJob struct {
	GalleryID        uint
	AlbumID          uint
	ImageID          uint
	OriginalRelPath  string
	ThumbnailRelPath string

	ctx    context.Context
	result chan error // set for jobs submitted through Generate
}

type ThumbnailGenerator struct {
	JobQueue  chan ThumbnailJob
	Processor Thumbnailer
	Store     media.Store
	DB        *sql.DB
	Hub       realtime.Broadcaster
	Log       logrus.FieldLogger
	Wg        sync.WaitGroup
	StopChan  chan struct{}
	Pending   map[string]bool
	Mutex     sync.Mutex
	stopOnce  sync.Once
}

func NewThumbnailGenerator(proc Thumbnailer, store media.Store, db *sql.DB, hub realtime.Broadcaster, log logrus.FieldLogger, queueSize, numWorkers int) *ThumbnailGenerator {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	gen := &ThumbnailGenerator{
		JobQueue:  make(chan ThumbnailJob, queueSize),
		Processor: proc,
		Store:     store,
		DB:        db,
		Hub:       hub,
		Log:       log,
		StopChan:  make(chan struct{}),
		Pending:   make(map[string]bool),
	}

	gen.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go gen.worker(i)
	}
	log.WithFields(logrus.Fields{"workers": numWorkers, "queue_size": queueSize}).Info("started thumbnail workers")

	return gen
}

func (tg *ThumbnailGenerator) worker(id int) {
	defer tg.Wg.Done()
	wlog := tg.Log.WithField("worker", id)
	for {
		select {
		case job := <-tg.JobQueue:
			wlog.WithField("path", job.OriginalRelPath).Debug("processing thumbnail job")
			err := tg.processJob(job)
			if job.result != nil {
				job.result <- err
			} else {
				tg.Mutex.Lock()
				delete(tg.Pending, job.OriginalRelPath)
				tg.Mutex.Unlock()
			}
		case <-tg.StopChan:
			wlog.Debug("thumbnail worker stopping")
			return
		}
	}
}

func (tg *ThumbnailGenerator) processJob(job ThumbnailJob) error {
	ctx := job.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := tg.render(ctx, job)
	if err == nil && ctx.Err() != nil {
		// the submitter gave up; its rollback may already have run
		_ = tg.Store.Delete(job.ThumbnailRelPath)
		err = ctx.Err()
	}
	metrics.RecordThumbnail(err == nil, time.Since(start))

	event := realtime.Event{
		Type:      realtime.EventThumbnail,
		Status:    realtime.StatusDone,
		GalleryID: job.GalleryID,
		AlbumID:   job.AlbumID,
		ImageID:   job.ImageID,
		File:      job.ThumbnailRelPath,
	}
	if err != nil {
		tg.Log.WithError(err).WithField("path", job.OriginalRelPath).Error("thumbnail generation failed")
		event.Status = realtime.StatusError
		event.Error = err.Error()
	}
	if tg.Hub != nil {
		tg.Hub.Broadcast(event)
	}
	return err
}

func (tg *ThumbnailGenerator) render(ctx context.Context, job ThumbnailJob) error {
	fullPath, err := tg.Store.GetFullPath(job.OriginalRelPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("original %s unavailable: %w", job.OriginalRelPath, err)
	}

	if err := tg.Processor.GenerateThumbnail(job.OriginalRelPath, job.ThumbnailRelPath); err != nil {
		return err
	}

	if err := database.SetThumbnailInfo(ctx, tg.DB, job.OriginalRelPath, job.ThumbnailRelPath, info.ModTime().Unix()); err != nil {
		_ = tg.Store.Delete(job.ThumbnailRelPath)
		return fmt.Errorf("failed to record thumbnail for %s: %w", job.OriginalRelPath, err)
	}
	return nil
}

// QueueJob schedules a job without waiting for it. Returns false when the
// same original is already pending or the queue is full.
func (tg *ThumbnailGenerator) QueueJob(job ThumbnailJob) bool {
	job.ctx, job.result = nil, nil

	tg.Mutex.Lock()
	if tg.Pending[job.OriginalRelPath] {
		tg.Mutex.Unlock()
		tg.Log.WithField("path", job.OriginalRelPath).Debug("thumbnail already pending, skipping queue")
		return false
	}
	tg.Pending[job.OriginalRelPath] = true
	tg.Mutex.Unlock()

	select {
	case tg.JobQueue <- job:
		return true
	default:
		tg.Log.WithField("path", job.OriginalRelPath).Warn("thumbnail job queue full, job dropped")
		tg.Mutex.Lock()
		delete(tg.Pending, job.OriginalRelPath)
		tg.Mutex.Unlock()
		return false
	}
}

// Generate runs a job on the pool and waits for its outcome. It gives up when
// ctx is done or the generator stops.
func (tg *ThumbnailGenerator) Generate(ctx context.Context, job ThumbnailJob) error {
	job.ctx = ctx
	job.result = make(chan error, 1)

	select {
	case tg.JobQueue <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-tg.StopChan:
		return ErrStopped
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-tg.StopChan:
		return ErrStopped
	}
}

// Backfill queues every job whose original has no thumbnail recorded in the
// index. Returns the number of jobs queued.
func (tg *ThumbnailGenerator) Backfill(ctx context.Context, jobs []ThumbnailJob) int {
	queued := 0
	for _, job := range jobs {
		_, err := database.GetThumbnailInfo(ctx, tg.DB, job.OriginalRelPath)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			tg.Log.WithError(err).WithField("path", job.OriginalRelPath).Warn("thumbnail lookup failed during backfill")
			continue
		}
		if tg.QueueJob(job) {
			queued++
		}
	}
	if queued > 0 {
		tg.Log.WithField("queued", queued).Info("queued missing thumbnails")
	}
	return queued
}

// Stop signals the workers and waits for them. Jobs still queued are dropped.
func (tg *ThumbnailGenerator) Stop() {
	tg.stopOnce.Do(func() {
		tg.Log.Info("stopping thumbnail generator")
		close(tg.StopChan)
		tg.Wg.Wait()
		tg.Log.Info("all thumbnail workers stopped")
	})
}
