// Package download streams remote files to disk. Payloads land in a
// temp file first and are renamed into place on success, so an
// interrupted transfer never leaves a plausible-looking partial file.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/types"
)

// Downloader fetches files over HTTP.
type Downloader struct {
	httpClient *http.Client
}

// New returns a Downloader. Bulk transfers get no overall timeout; the
// context bounds them instead.
func New() *Downloader {
	return &Downloader{
		httpClient: &http.Client{},
	}
}

// Fetch downloads url into destPath, reporting progress as bytes arrive.
// The transfer itself is never retried on rate limiting; only link
// acquisition upstream is. Progress percentages are estimates when the
// server omits Content-Length.
func (d *Downloader) Fetch(ctx context.Context, url, destPath string, progress types.ProgressFunc) error {
	logger := logging.GetLogger("download")
	if progress == nil {
		progress = types.NoopProgress
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to build download request")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, errors.ErrRemote, "download failed: %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.ErrRemote, "download of %s returned %d", url, resp.StatusCode)
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrLocalIO, "failed to create %s", dir)
	}

	tmpPath := filepath.Join(dir, paths.DownloadPrefix+filepath.Base(destPath))
	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrLocalIO, "failed to create %s", tmpPath)
	}

	total := resp.ContentLength
	name := filepath.Base(destPath)
	written, copyErr := copyWithProgress(ctx, out, resp.Body, total, name, progress)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(copyErr, errors.ErrRemote, "download of %s interrupted", url)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(closeErr, errors.ErrLocalIO, "failed to finish writing %s", tmpPath)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, errors.ErrLocalIO, "failed to move download into place: %s", destPath)
	}

	logger.Debug().Str("file", name).Int64("bytes", written).Msg("Download complete")
	return nil
}

// copyWithProgress copies body to out, emitting throttled progress.
func copyWithProgress(ctx context.Context, out io.Writer, body io.Reader, total int64, name string, progress types.ProgressFunc) (int64, error) {
	buf := make([]byte, 256*1024)
	var written int64
	lastReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)

			if time.Since(lastReport) >= 200*time.Millisecond {
				lastReport = time.Now()
				progress(fraction(written, total), fmt.Sprintf("downloading %s", name))
			}
		}
		if readErr == io.EOF {
			progress(1.0, fmt.Sprintf("downloaded %s", name))
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func fraction(written, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(written) / float64(total)
	if f > 1 {
		f = 1
	}
	return f
}
