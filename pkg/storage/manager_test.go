package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "fansync/pkg/errors"
	"fansync/pkg/models"
)

// pngHeader is enough for content sniffing
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-05.123.Hello World!.jpg", "2024-03-05.123.hello_world.jpg"},
		{"2024-03-05.1.a   b\tc.mp4", "2024-03-05.1.a_b_c.mp4"},
		{"2024-03-05.1.trailing space .jpg", "2024-03-05.1.trailing_space.jpg"},
		{"2024-03-05.1..jpg", "2024-03-05.1.jpg"},
		{"2024-03-05.1.émoji 🔥 Ünïcode.jpg", "2024-03-05.1.émoji_ünïcode.jpg"},
		{"a/../b.jpg", "a.b.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestDestinationPath(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	item := models.MediaItem{
		SourceType: models.SourceArchived,
		MediaID:    987,
		FileType:   models.FileGIF,
		CreatedAt:  time.Date(2024, 3, 5, 23, 0, 0, 0, time.FixedZone("", -5*3600)),
		Caption:    "This caption is definitely longer than thirty-five characters",
	}

	path, err := m.DestinationPath("alice", item)
	require.NoError(t, err)

	rel, err := filepath.Rel(m.Root(), path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("alice", "archived", "gifs", "2024-03-05.987.this_caption_is_definitely_longer_t.mp4"), rel)
}

func TestDestinationPathUnknownType(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.DestinationPath("alice", models.MediaItem{FileType: "sticker"})
	require.Error(t, err)
	assert.True(t, errs.IsUnsupportedMedia(err))
}

func TestWriteAtomic(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "alice", "posts", "photos", "a.jpg")

	n, err := WriteAtomic(dest, bytes.NewReader([]byte("photo bytes")))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "photo bytes", string(data))

	size, ok := ExistingSize(dest)
	assert.True(t, ok)
	assert.Equal(t, int64(11), size)

	parts, _ := filepath.Glob(filepath.Join(filepath.Dir(dest), "*.part"))
	assert.Empty(t, parts)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.jpg")

	_, err := WriteAtomic(dest, failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExistingSizeMissing(t *testing.T) {
	_, ok := ExistingSize(filepath.Join(t.TempDir(), "nope"))
	assert.False(t, ok)
}

func TestAssetRotation(t *testing.T) {
	userDir := t.TempDir()

	first, _, err := WriteAsset(userDir, "avatar", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(userDir, "avatar.png"), first)

	// stray partial download from an interrupted run
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "avatar.abcd1234.part"), []byte("x"), 0644))

	require.NoError(t, RotateAsset(userDir, "avatar", 1700000000))
	_, err = os.Stat(filepath.Join(userDir, "avatar-1700000000.png"))
	require.NoError(t, err)

	second, _, err := WriteAsset(userDir, "avatar", strings.NewReader("\xff\xd8\xff\xe0\x00\x10JFIF\x00"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(userDir, "avatar.jpg"), second)

	canonical, err := filepath.Glob(filepath.Join(userDir, "avatar.*"))
	require.NoError(t, err)
	var finals []string
	for _, p := range canonical {
		if !strings.HasSuffix(p, ".part") {
			finals = append(finals, p)
		}
	}
	assert.Equal(t, []string{second}, finals)
}

func TestRotateAssetWithoutCanonicalFile(t *testing.T) {
	assert.NoError(t, RotateAsset(t.TempDir(), "header", 1))
}

func TestWriteAssetReplacesOtherExtension(t *testing.T) {
	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "header.jpg"), []byte("old"), 0644))

	dest, _, err := WriteAsset(userDir, "header", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(userDir, "header.png"), dest)

	_, err = os.Stat(filepath.Join(userDir, "header.jpg"))
	assert.True(t, os.IsNotExist(err))
}
