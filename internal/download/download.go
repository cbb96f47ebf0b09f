// Package download fetches and unpacks dataset archives.
package download

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// markerFile records a completed extraction inside the target directory
const markerFile = ".done"

// ErrUnsafePath is returned for archive entries that would land outside the target directory
var ErrUnsafePath = errors.New("archive entry escapes target directory")

// IsDone reports whether dir already holds a completed download
func IsDone(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, markerFile))
	return err == nil
}

// Fetcher downloads dataset archives over HTTP(S) or from S3
type Fetcher struct {
	// HTTP serves http:// and https:// URLs; nil uses http.DefaultClient
	HTTP *http.Client

	// S3 serves s3://bucket/key URLs; nil rejects them
	S3 ObjectGetter
}

// Fetch downloads a .tar.gz archive from url over HTTP and extracts it into dir.
// It is a no-op when dir already holds a completed download.
func Fetch(ctx context.Context, client *http.Client, url, dir string) error {
	return (&Fetcher{HTTP: client}).Fetch(ctx, url, dir)
}

// Fetch downloads a .tar.gz archive from url and extracts it into dir.
// It is a no-op when dir already holds a completed download.
func (f *Fetcher) Fetch(ctx context.Context, url, dir string) error {
	if IsDone(dir) {
		slog.Debug("[Download] already present", "dir", dir)
		return nil
	}

	slog.Info("[Download] fetching", "url", url, "dir", dir)
	body, err := f.open(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer body.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	count, err := extractTarGz(body, dir)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", url, err)
	}

	if err := os.WriteFile(filepath.Join(dir, markerFile), []byte(url+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to mark %s complete: %w", dir, err)
	}

	slog.Info("[Download] extracted", "files", count, "dir", dir)
	return nil
}

func (f *Fetcher) open(ctx context.Context, url string) (io.ReadCloser, error) {
	if strings.HasPrefix(url, s3Scheme) {
		return f.openS3(ctx, url)
	}

	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// extractTarGz unpacks regular files and directories, returning the file count
func extractTarGz(r io.Reader, dir string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}

	tr := tar.NewReader(gz)
	count := 0
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		target := filepath.Join(root, filepath.FromSlash(header.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return count, fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return count, err
			}
			count++
		default:
			slog.Debug("[Download] skipping entry", "name", header.Name, "type", header.Typeflag)
		}
	}
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
