package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/errors"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "real.zip")
	writeZip(t, zipPath, map[string]string{"a.txt": "x"})
	assert.Equal(t, FormatZip, Detect(zipPath))

	// Magic bytes win over a lying extension.
	lying := filepath.Join(dir, "actually-zip.7z")
	writeZip(t, lying, map[string]string{"a.txt": "x"})
	assert.Equal(t, FormatZip, Detect(lying))

	sevenZ := filepath.Join(dir, "archive.bin")
	require.NoError(t, os.WriteFile(sevenZ, []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c, 0, 0}, 0644))
	assert.Equal(t, Format7z, Detect(sevenZ))

	rar := filepath.Join(dir, "archive.dat")
	require.NoError(t, os.WriteFile(rar, []byte("Rar!\x1a\x07\x00\x00"), 0644))
	assert.Equal(t, FormatRar, Detect(rar))

	// Unreadable headers fall back to the extension.
	assert.Equal(t, Format7z, Detect(filepath.Join(dir, "missing.7z")))
	assert.Equal(t, FormatUnknown, Detect(filepath.Join(dir, "missing.xyz")))

	text := filepath.Join(dir, "plain.bin")
	require.NoError(t, os.WriteFile(text, []byte("hello world"), 0644))
	assert.Equal(t, FormatUnknown, Detect(text))
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "mod.zip")
	writeZip(t, archive, map[string]string{
		"mod.esp":           "plugin",
		"textures/rock.dds": "texture",
		"docs/readme.txt":   "docs",
	})

	target := filepath.Join(dir, "out")
	files, err := Extract(context.Background(), archive, target)
	require.NoError(t, err)

	sort.Strings(files)
	assert.Equal(t, []string{
		"docs/readme.txt",
		"mod.esp",
		"textures/rock.dds",
	}, files)

	content, err := os.ReadFile(filepath.Join(target, "textures", "rock.dds"))
	require.NoError(t, err)
	assert.Equal(t, "texture", string(content))
}

func TestExtract_ZipPathEscape(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("../outside.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("escape"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0644))

	_, err = Extract(context.Background(), archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCorruptArchive))
	_, statErr := os.Stat(filepath.Join(dir, "outside.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtract_CorruptZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.zip")
	// Valid magic, garbage body.
	require.NoError(t, os.WriteFile(archive, []byte("PK\x03\x04 this is not a zip"), 0644))

	_, err := Extract(context.Background(), archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCorruptArchive))
}

func TestExtract_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "mystery.bin")
	require.NoError(t, os.WriteFile(archive, []byte("no idea"), 0644))

	_, err := Extract(context.Background(), archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsupported))
}
