package certificate

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var _ Source = (*Dir)(nil)

// Dir is a local folder of certificates.
type Dir struct {
	folder string
}

func NewDir(folder string) *Dir {
	return &Dir{folder: folder}
}

func (d *Dir) path(name string) string {
	return filepath.Join(d.folder, name)
}

// Stat checks that name is a regular file in the folder.
func (d *Dir) Stat(_ context.Context, name string) (Certificate, error) {
	p := d.path(name)

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Certificate{}, errors.Wrap(ErrNotFound, p)
	}
	if err != nil {
		return Certificate{}, errors.Wrapf(err, "failed to stat %s", p)
	}
	if !info.Mode().IsRegular() {
		return Certificate{}, errors.Wrapf(ErrNotFound, "%s is not a regular file", p)
	}

	return Certificate{Name: name, Path: p, source: d}, nil
}

func (d *Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open certificate")
	}
	return f, nil
}
