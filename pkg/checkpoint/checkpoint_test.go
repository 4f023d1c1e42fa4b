package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgscraper/pkg/models"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		SessionID: "3f0c",
		PageURL:   "https://example.com/gallery",
		Mode:      models.ScrapeModeDeep,
		Descriptors: []models.ImageDescriptor{
			{SourceURL: "https://example.com/a.jpg", AltText: "a"},
			{SourceURL: "https://example.com/b.jpg", AltText: "b"},
			{SourceURL: "https://example.com/c.jpg"},
		},
		Revealed: 2,
		Removed:  []int{1},
		Selected: []int{0},
	}
}

func TestSaveAndLoad(t *testing.T) {
	mgr, err := NewManagerInDir(t.TempDir(), "last")
	require.NoError(t, err)
	assert.False(t, mgr.Exists())

	snap := sampleSnapshot()
	require.NoError(t, mgr.Save(snap))
	assert.True(t, mgr.Exists())
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.False(t, snap.CreatedAt.IsZero())

	loaded, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.PageURL, loaded.PageURL)
	assert.Equal(t, models.ScrapeModeDeep, loaded.Mode)
	assert.Equal(t, snap.Descriptors, loaded.Descriptors)
	assert.Equal(t, 2, loaded.Revealed)
	assert.Equal(t, []int{1}, loaded.Removed)
	assert.Equal(t, []int{0}, loaded.Selected)

	_, err = os.Stat(mgr.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must not remain")
}

func TestLoadMissing(t *testing.T) {
	mgr, err := NewManagerInDir(t.TempDir(), "none")
	require.NoError(t, err)

	snap, err := mgr.Load()
	assert.NoError(t, err)
	assert.Nil(t, snap)

	info, err := mgr.Info()
	assert.NoError(t, err)
	assert.Nil(t, info)
}

func TestLoadCorrupt(t *testing.T) {
	mgr, err := NewManagerInDir(t.TempDir(), "bad")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mgr.Path(), []byte("{not json"), 0644))

	_, err = mgr.Load()
	assert.Error(t, err)
}

func TestLoadClampsRevealed(t *testing.T) {
	mgr, err := NewManagerInDir(t.TempDir(), "clamp")
	require.NoError(t, err)

	snap := sampleSnapshot()
	snap.Revealed = 99
	require.NoError(t, mgr.Save(snap))

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Revealed)
}

func TestDelete(t *testing.T) {
	mgr, err := NewManagerInDir(t.TempDir(), "last")
	require.NoError(t, err)
	require.NoError(t, mgr.Save(sampleSnapshot()))

	require.NoError(t, mgr.Delete())
	assert.False(t, mgr.Exists())
	assert.NoError(t, mgr.Delete(), "deleting twice is fine")
}

func TestInfo(t *testing.T) {
	mgr, err := NewManagerInDir(t.TempDir(), "last")
	require.NoError(t, err)
	require.NoError(t, mgr.Save(sampleSnapshot()))

	info, err := mgr.Info()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/gallery", info["page"])
	assert.Equal(t, 3, info["images"])
	assert.Equal(t, "deep", info["mode"])
}

func TestNewManagerUsesDataDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("HOME", dir)

	mgr, err := NewManager("last")
	require.NoError(t, err)
	assert.Contains(t, mgr.Path(), filepath.Join("imgscraper", "sessions", "last.session.json"))
}
