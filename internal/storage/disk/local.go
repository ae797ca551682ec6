package disk

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	errors "github.com/Laisky/errors/v2"
)

const listBatchSize = 256

// LocalDisk stores objects as flat files under one directory.
type LocalDisk struct {
	name    Name
	root    string
	baseURL string
}

// NewLocalDisk creates the root directory if needed and returns the disk.
// baseURL is the public prefix objects are served under, like `/storage/news`.
func NewLocalDisk(name Name, root, baseURL string) (*LocalDisk, error) {
	if _, err := ParseName(string(name)); err != nil {
		return nil, errors.WithStack(err)
	}
	if root == "" {
		return nil, errors.Errorf("root of disk %q is empty", name)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, newError(ErrUnavailable, name, "", err)
	}

	return &LocalDisk{name: name, root: root, baseURL: baseURL}, nil
}

// Name returns the logical name of the disk.
func (d *LocalDisk) Name() Name {
	return d.name
}

// Root returns the physical directory of the disk.
func (d *LocalDisk) Root() string {
	return d.root
}

// Put writes r to a hidden temp file in the root, fsyncs it and links it
// under filename, so readers never see a partial object and an existing
// file is never replaced. The temp file is removed in every case.
func (d *LocalDisk) Put(ctx context.Context, filename string, r io.Reader, _ string) (int64, error) {
	if err := ValidateFilename(filename); err != nil {
		return 0, err
	}
	if err := d.checkRoot(); err != nil {
		return 0, err
	}

	fullPath := d.fullPath(filename)
	if _, err := os.Lstat(fullPath); err == nil {
		return 0, newError(ErrExists, d.name, filename, nil)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, newError(ErrUnavailable, d.name, filename, err)
	}

	tmp, err := os.CreateTemp(d.root, "."+filename+".*.tmp")
	if err != nil {
		return 0, newError(ErrWrite, d.name, filename, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // nolint: errcheck

	size, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0o640)
	}
	if err != nil {
		return 0, newError(ErrWrite, d.name, filename, err)
	}

	if err = os.Link(tmpPath, fullPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, newError(ErrExists, d.name, filename, nil)
		}
		return 0, newError(ErrWrite, d.name, filename, err)
	}
	return size, nil
}

// Get opens the file for reading.
func (d *LocalDisk) Get(_ context.Context, filename string) (io.ReadCloser, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	f, err := os.Open(d.fullPath(filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(ErrNotFound, d.name, filename, nil)
		}
		return nil, newError(ErrUnavailable, d.name, filename, err)
	}
	return f, nil
}

// Delete removes the file. A missing file is not an error.
func (d *LocalDisk) Delete(_ context.Context, filename string) (bool, error) {
	if err := ValidateFilename(filename); err != nil {
		return false, err
	}
	if err := d.checkRoot(); err != nil {
		return false, err
	}

	if err := os.Remove(d.fullPath(filename)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, newError(ErrUnavailable, d.name, filename, err)
	}
	return true, nil
}

// Exists reports whether the file is present.
func (d *LocalDisk) Exists(_ context.Context, filename string) (bool, error) {
	if err := ValidateFilename(filename); err != nil {
		return false, err
	}

	info, err := os.Stat(d.fullPath(filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, newError(ErrUnavailable, d.name, filename, err)
	}
	return info.Mode().IsRegular(), nil
}

// List reads the root directory in batches and yields regular files only.
func (d *LocalDisk) List(ctx context.Context) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		dir, err := os.Open(d.root)
		if err != nil {
			yield(Object{}, newError(ErrUnavailable, d.name, "", err))
			return
		}
		defer dir.Close() // nolint: errcheck

		for {
			if err := ctx.Err(); err != nil {
				yield(Object{}, errors.WithStack(err))
				return
			}

			entries, err := dir.ReadDir(listBatchSize)
			for _, entry := range entries {
				if !entry.Type().IsRegular() || ValidateFilename(entry.Name()) != nil {
					continue
				}

				info, infoErr := entry.Info()
				if infoErr != nil {
					// removed between ReadDir and Info
					if errors.Is(infoErr, fs.ErrNotExist) {
						continue
					}
					if !yield(Object{}, newError(ErrUnavailable, d.name, entry.Name(), infoErr)) {
						return
					}
					continue
				}

				if !yield(Object{
					Filename: entry.Name(),
					Size:     info.Size(),
					ModTime:  info.ModTime(),
				}, nil) {
					return
				}
			}

			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield(Object{}, newError(ErrUnavailable, d.name, "", err))
				return
			}
		}
	}
}

// URL joins the public prefix and filename.
func (d *LocalDisk) URL(filename string) string {
	return joinURL(d.baseURL, filename)
}

func (d *LocalDisk) fullPath(filename string) string {
	return filepath.Join(d.root, filename)
}

func (d *LocalDisk) checkRoot() error {
	info, err := os.Stat(d.root)
	if err != nil {
		return newError(ErrUnavailable, d.name, "", err)
	}
	if !info.IsDir() {
		return newError(ErrUnavailable, d.name, "", errors.Errorf("%s is not a directory", d.root))
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
