package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	errs "fansync/pkg/errors"
	"fansync/pkg/models"
)

const (
	captionLimit = 35
	partSuffix   = ".part"
	// defaultAssetExt is used when the asset's content type is unknown
	defaultAssetExt = ".jpg"
)

// Manager lays out one account's download root
type Manager struct {
	root string
}

// NewManager creates the download root if needed
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the download root
func (m *Manager) Root() string {
	return m.root
}

// UserDir returns the directory holding a remote user's files and ledger
func (m *Manager) UserDir(username string) string {
	return filepath.Join(m.root, username)
}

// EnsureUserDir creates the user's directory
func (m *Manager) EnsureUserDir(username string) (string, error) {
	dir := m.UserDir(username)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}
	return dir, nil
}

// DestinationPath returns where item is stored:
// {root}/{username}/{sourceType}/{fileType}s/{date}.{mediaID}.{caption}.{ext}
func (m *Manager) DestinationPath(username string, item models.MediaItem) (string, error) {
	name, err := FileName(item)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.UserDir(username), string(item.SourceType), string(item.FileType)+"s", name), nil
}

// FileName builds the sanitized file name of item
func FileName(item models.MediaItem) (string, error) {
	ext := item.FileType.Extension()
	if ext == "" {
		return "", errs.NewUnsupportedMedia(fmt.Sprintf("media %d has unknown type %q", item.MediaID, item.FileType))
	}
	caption := []rune(item.Caption)
	if len(caption) > captionLimit {
		caption = caption[:captionLimit]
	}
	raw := fmt.Sprintf("%s.%d.%s.%s", item.CreatedAt.Format("2006-01-02"), item.MediaID, string(caption), ext)
	return SanitizeFilename(raw), nil
}

var (
	whitespaceRe   = regexp.MustCompile(`[\s\p{Z}]`)
	disallowedRe   = regexp.MustCompile(`[^\p{L}\p{N}_.-]`)
	underscoresRe  = regexp.MustCompile(`_+`)
	dotsRe         = regexp.MustCompile(`\.+`)
	dotUnderlineRe = regexp.MustCompile(`(_\.|\._)`)
)

// SanitizeFilename turns free text into a lowercase name made of letters,
// digits, underscores, dots and dashes.
func SanitizeFilename(name string) string {
	name = whitespaceRe.ReplaceAllString(name, "_")
	name = disallowedRe.ReplaceAllString(name, "")
	name = underscoresRe.ReplaceAllString(name, "_")
	name = dotsRe.ReplaceAllString(name, ".")
	name = dotUnderlineRe.ReplaceAllString(name, ".")
	return strings.ToLower(name)
}

// ExistingSize returns the size of a regular file at path
func ExistingSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// WriteAtomic streams r into a uniquely named temporary file next to dest
// and renames it into place once the copy completed.
func WriteAtomic(dest string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, n, err := writeTemp(dest, r)
	if err != nil {
		return n, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return n, nil
}

func writeTemp(dest string, r io.Reader) (string, int64, error) {
	tmp := dest + "." + uuid.NewString()[:8] + partSuffix
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmp)
		return "", n, fmt.Errorf("failed to write data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return "", n, fmt.Errorf("failed to close file: %w", closeErr)
	}
	return tmp, n, nil
}

// AssetPath finds the canonical file of a singleton asset ("avatar" or
// "header") in userDir.
func AssetPath(userDir, kind string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(userDir, kind+".*"))
	if err != nil {
		return "", false
	}
	for _, match := range matches {
		if strings.HasSuffix(match, partSuffix) {
			continue
		}
		if _, ok := ExistingSize(match); ok {
			return match, true
		}
	}
	return "", false
}

// RotateAsset renames the canonical asset to "{kind}-{oldTS}{ext}". It is a
// no-op when there is no canonical file.
func RotateAsset(userDir, kind string, oldTS int64) error {
	current, ok := AssetPath(userDir, kind)
	if !ok {
		return nil
	}
	archived := filepath.Join(userDir, kind+"-"+strconv.FormatInt(oldTS, 10)+filepath.Ext(current))
	if err := os.Rename(current, archived); err != nil {
		return fmt.Errorf("failed to archive %s: %w", kind, err)
	}
	return nil
}

// WriteAsset stores r as the canonical asset, choosing the extension from
// the content. It returns the final path.
func WriteAsset(userDir, kind string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, n, err := writeTemp(filepath.Join(userDir, kind), r)
	if err != nil {
		return "", n, err
	}

	ext := defaultAssetExt
	if mt, err := mimetype.DetectFile(tmp); err == nil && mt.Extension() != "" {
		ext = mt.Extension()
	}

	dest := filepath.Join(userDir, kind+ext)
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	// a canonical file with another extension would shadow the new one
	stale, _ := filepath.Glob(filepath.Join(userDir, kind+".*"))
	for _, path := range stale {
		if path != dest && !strings.HasSuffix(path, partSuffix) {
			os.Remove(path)
		}
	}
	return dest, n, nil
}
