package workers

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/parentsgallery/database"
	"github.com/camden-git/parentsgallery/media"
	"github.com/camden-git/parentsgallery/realtime"
)

type fakeThumbnailer struct {
	store *media.LocalStorage
	err   error
	gate  chan struct{}
	mu    sync.Mutex
	calls []string
}

func (f *fakeThumbnailer) GenerateThumbnail(orig, thumb string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.calls = append(f.calls, orig)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	_, err := f.store.Save(thumb, strings.NewReader("thumb"))
	return err
}

func (f *fakeThumbnailer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingHub struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (h *recordingHub) Broadcast(e realtime.Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recordingHub) last() realtime.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func setup(t *testing.T, thumb *fakeThumbnailer) (*ThumbnailGenerator, *media.LocalStorage, *sql.DB, *recordingHub) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	gdb, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(gdb))
	sqlDB, err := gdb.DB()
	require.NoError(t, err)

	store, err := media.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)
	thumb.store = store

	hub := &recordingHub{}
	gen := NewThumbnailGenerator(thumb, store, sqlDB, hub, log, 10, 2)
	t.Cleanup(func() {
		gen.Stop()
		_ = database.Close(gdb)
	})
	return gen, store, sqlDB, hub
}

func job(store *media.LocalStorage, t *testing.T, name string) ThumbnailJob {
	t.Helper()
	orig := media.OriginalPath(1, 2, name)
	_, err := store.Save(orig, strings.NewReader("original"))
	require.NoError(t, err)
	return ThumbnailJob{GalleryID: 1, AlbumID: 2, ImageID: 3, OriginalRelPath: orig, ThumbnailRelPath: media.ThumbnailPath(1, 2, name)}
}

func TestGenerate_RecordsThumbnail(t *testing.T) {
	thumb := &fakeThumbnailer{}
	gen, store, sqlDB, hub := setup(t, thumb)
	j := job(store, t, "001.jpg")

	require.NoError(t, gen.Generate(context.Background(), j))

	assert.True(t, store.Exists(j.ThumbnailRelPath))
	info, err := database.GetThumbnailInfo(context.Background(), sqlDB, j.OriginalRelPath)
	require.NoError(t, err)
	assert.Equal(t, j.ThumbnailRelPath, info.ThumbnailPath)

	ev := hub.last()
	assert.Equal(t, realtime.EventThumbnail, ev.Type)
	assert.Equal(t, realtime.StatusDone, ev.Status)
	assert.EqualValues(t, 3, ev.ImageID)
}

func TestGenerate_PropagatesFailure(t *testing.T) {
	thumb := &fakeThumbnailer{err: errors.New("decode failed")}
	gen, store, sqlDB, hub := setup(t, thumb)
	j := job(store, t, "001.jpg")

	err := gen.Generate(context.Background(), j)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed")

	_, err = database.GetThumbnailInfo(context.Background(), sqlDB, j.OriginalRelPath)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, realtime.StatusError, hub.last().Status)
}

func TestGenerate_MissingOriginal(t *testing.T) {
	thumb := &fakeThumbnailer{}
	gen, _, _, _ := setup(t, thumb)

	err := gen.Generate(context.Background(), ThumbnailJob{OriginalRelPath: "1/2/404.jpg", ThumbnailRelPath: "1/2/thumbnails/404.jpg"})
	assert.Error(t, err)
	assert.Zero(t, thumb.callCount())
}

func TestGenerate_CancelledContext(t *testing.T) {
	thumb := &fakeThumbnailer{}
	gen, store, _, _ := setup(t, thumb)
	j := job(store, t, "001.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, gen.Generate(ctx, j), context.Canceled)
}

func TestQueueJob_DeduplicatesPending(t *testing.T) {
	thumb := &fakeThumbnailer{gate: make(chan struct{})}
	gen, store, _, _ := setup(t, thumb)
	j := job(store, t, "001.jpg")

	assert.True(t, gen.QueueJob(j))
	assert.False(t, gen.QueueJob(j), "same original is already pending")

	close(thumb.gate)
	require.Eventually(t, func() bool { return store.Exists(j.ThumbnailRelPath) }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		gen.Mutex.Lock()
		defer gen.Mutex.Unlock()
		return !gen.Pending[j.OriginalRelPath]
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, gen.QueueJob(j), "can be queued again once done")
}

func TestBackfill_SkipsRecorded(t *testing.T) {
	thumb := &fakeThumbnailer{}
	gen, store, sqlDB, _ := setup(t, thumb)
	done := job(store, t, "001.jpg")
	missing := job(store, t, "002.jpg")

	require.NoError(t, database.SetThumbnailInfo(context.Background(), sqlDB, done.OriginalRelPath, done.ThumbnailRelPath, 1))

	queued := gen.Backfill(context.Background(), []ThumbnailJob{done, missing})
	assert.Equal(t, 1, queued)
	require.Eventually(t, func() bool { return store.Exists(missing.ThumbnailRelPath) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, store.Exists(done.ThumbnailRelPath))
}
