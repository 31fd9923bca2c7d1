// Package extract unpacks mod archives into staging directories. Format
// detection goes by magic bytes first and file extension second, so a
// mislabelled download still extracts.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
)

// Format is a supported archive container format.
type Format string

const (
	FormatZip     Format = "zip"
	Format7z      Format = "7z"
	FormatRar     Format = "rar"
	FormatUnknown Format = ""
)

var (
	magicZip = []byte("PK")
	magic7z  = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
	magicRar = []byte("Rar!")
)

// Detect sniffs the archive format from the file header, falling back to
// the filename extension when the header is unreadable or unrecognized.
func Detect(path string) Format {
	f, err := os.Open(path)
	if err == nil {
		header := make([]byte, 8)
		n, _ := io.ReadFull(f, header)
		f.Close()
		header = header[:n]

		switch {
		case bytes.HasPrefix(header, magicZip):
			return FormatZip
		case bytes.HasPrefix(header, magic7z):
			return Format7z
		case bytes.HasPrefix(header, magicRar):
			return FormatRar
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return FormatZip
	case ".7z":
		return Format7z
	case ".rar":
		return FormatRar
	}
	return FormatUnknown
}

// Extract unpacks the archive at archivePath into targetDir and returns
// the extracted file paths relative to targetDir. Entries that would
// escape targetDir are rejected. Unknown formats fail with
// ErrUnsupported; damaged archives fail with ErrCorruptArchive so the
// reconciler can trigger its single automatic re-fetch.
func Extract(ctx context.Context, archivePath, targetDir string) ([]string, error) {
	logger := logging.GetLogger("extract")

	format := Detect(archivePath)
	if format == FormatUnknown {
		return nil, errors.Newf(errors.ErrUnsupported, "unknown archive format: %s", archivePath)
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to create %s", targetDir)
	}

	var files []string
	var err error
	switch format {
	case FormatZip:
		files, err = extractZip(archivePath, targetDir)
	case Format7z:
		files, err = extractWithTool(ctx, archivePath, targetDir, sevenZipTool)
	case FormatRar:
		files, err = extractWithTool(ctx, archivePath, targetDir, unrarTool)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("archive", filepath.Base(archivePath)).
		Str("format", string(format)).
		Int("files", len(files)).
		Msg("Archive extracted")
	return files, nil
}

// extractZip unpacks a zip natively.
func extractZip(archivePath, targetDir string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCorruptArchive, "failed to open zip %s", archivePath)
	}
	defer zr.Close()

	var files []string
	for _, member := range zr.File {
		if member.FileInfo().IsDir() {
			continue
		}

		rel := filepath.Clean(member.Name)
		if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) || filepath.IsAbs(rel) {
			return nil, errors.Newf(errors.ErrCorruptArchive, "zip entry escapes target directory: %s", member.Name)
		}

		dest := filepath.Join(targetDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to create directory for %s", rel)
		}

		src, err := member.Open()
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCorruptArchive, "failed to read zip entry %s", rel)
		}
		out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			src.Close()
			return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to create %s", dest)
		}
		_, copyErr := io.Copy(out, src)
		src.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return nil, errors.Wrapf(copyErr, errors.ErrCorruptArchive, "failed to extract zip entry %s", rel)
		}
		if closeErr != nil {
			return nil, errors.Wrapf(closeErr, errors.ErrLocalIO, "failed to write %s", dest)
		}

		files = append(files, rel)
	}
	return files, nil
}

// tool describes a system extractor: candidate binary names in
// preference order, and how to build its command line.
type tool struct {
	binaries []string
	args     func(binary, archivePath, targetDir string) []string
}

var sevenZipTool = tool{
	binaries: []string{"7z", "7zz"},
	args: func(binary, archivePath, targetDir string) []string {
		return []string{binary, "x", archivePath, "-o" + targetDir, "-y"}
	},
}

var unrarTool = tool{
	binaries: []string{"unrar"},
	args: func(binary, archivePath, targetDir string) []string {
		return []string{binary, "x", "-y", archivePath, targetDir + string(os.PathSeparator)}
	},
}

// extractWithTool shells out to a system extractor, then inventories the
// target directory to report the extracted files.
func extractWithTool(ctx context.Context, archivePath, targetDir string, t tool) ([]string, error) {
	var binary string
	for _, candidate := range t.binaries {
		if path, err := exec.LookPath(candidate); err == nil {
			binary = path
			break
		}
	}
	if binary == "" {
		return nil, errors.Newf(errors.ErrUnsupported,
			"no system extractor available for %s (install p7zip-full or unrar)", filepath.Base(archivePath))
	}

	argv := t.args(binary, archivePath, targetDir)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCorruptArchive,
			"extraction of %s failed: %s", filepath.Base(archivePath), strings.TrimSpace(string(output)))
	}

	return inventory(targetDir)
}

// inventory lists all regular files under root, relative to root.
func inventory(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to inventory %s", root)
	}
	return files, nil
}
