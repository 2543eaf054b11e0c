// Package compress checks that produced artifacts are complete before they
// are uploaded.
package compress

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrEmpty is returned for a zero-byte artifact.
var ErrEmpty = errors.New("artifact is empty")

// Verify rejects empty artifacts and, for .gz and .tar.gz files, requires the
// gzip stream (and the tar archive inside it) to decode to the end. Other
// extensions only get the size check. It returns the artifact size.
func Verify(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmpty)
	}

	switch {
	case strings.HasSuffix(path, ".tar.gz"):
		err = verifyTarGzip(f)
	case strings.HasSuffix(path, ".gz"):
		err = verifyGzip(f)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: corrupt archive: %w", path, err)
	}
	return info.Size(), nil
}

func verifyGzip(r io.Reader) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()
	_, err = io.Copy(io.Discard, zr)
	return err
}

func verifyTarGzip(r io.Reader) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		_, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return err
		}
	}
	// drain trailing padding so a truncated gzip footer is detected
	_, err = io.Copy(io.Discard, zr)
	return err
}
