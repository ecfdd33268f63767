package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

const testSettle = 20 * time.Millisecond

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func nextChange(t *testing.T, changes <-chan domain.SourceChange) domain.SourceChange {
	t.Helper()
	select {
	case change, ok := <-changes:
		require.True(t, ok, "changes channel closed")
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
		return domain.SourceChange{}
	}
}

func TestNew(t *testing.T) {
	c := New("file:///srv/belgeler/")

	assert.Equal(t, "/srv/belgeler", c.Root())
	assert.Equal(t, "filesystem", c.Type())
	assert.Equal(t, DefaultSettle, c.settle)
	assert.Equal(t, testSettle, New("/tmp", WithSettle(testSettle)).settle)

	var _ driven.Connector = c
}

func TestConnector_Validate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "izin.pdf")
	writeFile(t, file, "%PDF")

	tests := []struct {
		name          string
		path          string
		errorContains string
	}{
		{name: "directory", path: dir},
		{name: "missing", path: filepath.Join(dir, "yok"), errorContains: "does not exist"},
		{name: "file", path: file, errorContains: "not a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.path).Validate(context.Background())

			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Equal(t, context.Canceled, New(dir).Validate(ctx))
	})
}

func TestConnector_Discover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "izin.pdf"), "%PDF")
	writeFile(t, filepath.Join(dir, "notlar.md"), "# Not")
	writeFile(t, filepath.Join(dir, "ik", "yonetmelik.txt"), "madde 1")
	writeFile(t, filepath.Join(dir, "ik", "duyuru.html"), "<p>duyuru</p>")
	writeFile(t, filepath.Join(dir, "tablo.xlsx"), "binary")
	writeFile(t, filepath.Join(dir, ".gizli.txt"), "hidden")
	writeFile(t, filepath.Join(dir, ".git", "HEAD.txt"), "ref")

	paths, err := New(dir).Discover(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "ik", "duyuru.html"),
		filepath.Join(dir, "ik", "yonetmelik.txt"),
		filepath.Join(dir, "izin.pdf"),
		filepath.Join(dir, "notlar.md"),
	}, paths)
}

func TestConnector_DiscoverErrors(t *testing.T) {
	_, err := New("/non/existent/path").Discover(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(t.TempDir()).Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnector_Watch(t *testing.T) {
	t.Run("reports new file once after writes settle", func(t *testing.T) {
		dir := t.TempDir()
		c := New(dir, WithSettle(testSettle))
		defer c.Close()

		changes, err := c.Watch(context.Background())
		require.NoError(t, err)

		path := filepath.Join(dir, "rapor.txt")
		writeFile(t, path, "ilk")
		require.NoError(t, os.WriteFile(path, []byte("ilk ve ikinci"), 0o644))

		change := nextChange(t, changes)
		assert.Equal(t, path, change.Path)
		assert.Equal(t, domain.ChangeCreated, change.Op)
	})

	t.Run("reports modification and deletion", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "izin.md")
		writeFile(t, path, "eski")
		c := New(dir, WithSettle(testSettle))
		defer c.Close()

		changes, err := c.Watch(context.Background())
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte("yeni"), 0o644))
		change := nextChange(t, changes)
		assert.Equal(t, domain.ChangeModified, change.Op)

		require.NoError(t, os.Remove(path))
		change = nextChange(t, changes)
		assert.Equal(t, path, change.Path)
		assert.Equal(t, domain.ChangeDeleted, change.Op)
	})

	t.Run("watches new subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		c := New(dir, WithSettle(testSettle))
		defer c.Close()

		changes, err := c.Watch(context.Background())
		require.NoError(t, err)

		sub := filepath.Join(dir, "muhasebe")
		require.NoError(t, os.Mkdir(sub, 0o755))
		time.Sleep(50 * time.Millisecond)
		path := filepath.Join(sub, "butce.txt")
		writeFile(t, path, "bütçe")

		change := nextChange(t, changes)
		assert.Equal(t, path, change.Path)
	})

	t.Run("closes channel when context is cancelled", func(t *testing.T) {
		c := New(t.TempDir(), WithSettle(testSettle))
		defer c.Close()
		ctx, cancel := context.WithCancel(context.Background())

		changes, err := c.Watch(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-changes:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel did not close after cancellation")
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, err := New("/non/existent/path").Watch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "root path error")

		closed := New(t.TempDir())
		require.NoError(t, closed.Close())
		_, err = closed.Watch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")

		busy := New(t.TempDir())
		defer busy.Close()
		_, err = busy.Watch(context.Background())
		require.NoError(t, err)
		_, err = busy.Watch(context.Background())
		assert.Error(t, err)
	})
}

func TestConnector_CloseIsIdempotent(t *testing.T) {
	c := New(t.TempDir())

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestHandleFsEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "izin.txt")
	writeFile(t, file, "içerik")
	subdir := filepath.Join(dir, "arsiv.txt")
	require.NoError(t, os.Mkdir(subdir, 0o755))

	tests := []struct {
		name   string
		path   string
		op     fsnotify.Op
		wantOp domain.ChangeOp
	}{
		{name: "create", path: file, op: fsnotify.Create, wantOp: domain.ChangeCreated},
		{name: "write", path: file, op: fsnotify.Write, wantOp: domain.ChangeModified},
		{name: "write with chmod", path: file, op: fsnotify.Write | fsnotify.Chmod, wantOp: domain.ChangeModified},
		{name: "remove", path: filepath.Join(dir, "silindi.pdf"), op: fsnotify.Remove, wantOp: domain.ChangeDeleted},
		{name: "rename", path: filepath.Join(dir, "eski.md"), op: fsnotify.Rename, wantOp: domain.ChangeDeleted},
		{name: "chmod only", path: file, op: fsnotify.Chmod},
		{name: "directory", path: subdir, op: fsnotify.Create},
		{name: "hidden", path: filepath.Join(dir, ".izin.txt"), op: fsnotify.Remove},
		{name: "unsupported", path: filepath.Join(dir, "tablo.xlsx"), op: fsnotify.Remove},
		{name: "created then gone", path: filepath.Join(dir, "gecici.txt"), op: fsnotify.Create},
	}

	c := New(dir)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := c.handleFsEvent(fsnotify.Event{Name: tt.path, Op: tt.op})

			if tt.wantOp == "" {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.path, change.Path)
			assert.Equal(t, tt.wantOp, change.Op)
		})
	}
}

func TestMergeOps(t *testing.T) {
	tests := []struct {
		prev, next, want domain.ChangeOp
		seen             bool
	}{
		{next: domain.ChangeModified, want: domain.ChangeModified},
		{prev: domain.ChangeCreated, next: domain.ChangeModified, want: domain.ChangeCreated, seen: true},
		{prev: domain.ChangeCreated, next: domain.ChangeDeleted, want: domain.ChangeDeleted, seen: true},
		{prev: domain.ChangeDeleted, next: domain.ChangeCreated, want: domain.ChangeModified, seen: true},
		{prev: domain.ChangeModified, next: domain.ChangeModified, want: domain.ChangeModified, seen: true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mergeOps(tt.prev, tt.next, tt.seen), "%s then %s", tt.prev, tt.next)
	}
}

func TestSettled(t *testing.T) {
	now := time.Now()
	pending := map[string]pendingChange{
		"b.txt": {op: domain.ChangeCreated, at: now.Add(-time.Second)},
		"a.txt": {op: domain.ChangeModified, at: now.Add(-time.Second)},
		"c.txt": {op: domain.ChangeModified, at: now},
	}

	assert.Equal(t, []string{"a.txt", "b.txt"}, settled(pending, now, 500*time.Millisecond))
}
