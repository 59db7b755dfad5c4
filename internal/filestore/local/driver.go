// Package local provides a filesystem implementation of filestore.Store.
// Objects are files under a root directory; writes go to a temporary file
// that is renamed into place.
package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/koustreak/protodb/internal/errs"
	"github.com/koustreak/protodb/internal/filestore"
)

func init() {
	filestore.Register(filestore.ProviderLocal, func(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
		return New(ctx, cfg)
	})
}

// Driver is a directory-backed filestore.Store.
type Driver struct {
	root string
}

var _ filestore.Store = (*Driver)(nil)

// New creates the root directory if needed and returns a Driver over it.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg.Root == "" {
		return nil, errs.New(errs.ErrKindConfig, "local filestore needs a root directory")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, mapError(err, "create root directory")
	}
	d := &Driver{root: cfg.Root}
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Ping checks that the root is still a directory.
func (d *Driver) Ping(_ context.Context) error {
	fi, err := os.Stat(d.root)
	if err != nil {
		return mapError(err, "stat root directory")
	}
	if !fi.IsDir() {
		return errs.Newf(errs.ErrKindInvalidInput, "filestore root %s is not a directory", d.root)
	}
	return nil
}

func (d *Driver) Close() error { return nil }

// Put writes r to key atomically.
func (d *Driver) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	target, key, err := d.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "put cancelled", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, mapError(err, "create object directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return nil, mapError(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, mapError(err, "write object")
	}
	if size >= 0 && n != size {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object %s: wrote %d bytes, expected %d", key, n, size)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, mapError(err, "move object into place")
	}

	info, err := d.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	info.ETag = hex.EncodeToString(h.Sum(nil))
	if contentType != "" {
		info.ContentType = contentType
	}
	return info, nil
}

// Get opens the file stored under key.
func (d *Driver) Get(ctx context.Context, key string) (filestore.Object, error) {
	target, key, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, mapError(err, "open object")
	}
	info, err := d.Stat(ctx, key)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &object{ReadCloser: f, info: info}, nil
}

// Stat reports size, modification time and a content type guessed from
// the key's extension. Local objects carry no ETag.
func (d *Driver) Stat(_ context.Context, key string) (*filestore.ObjectInfo, error) {
	target, key, err := d.path(key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(target)
	if err != nil {
		return nil, mapError(err, "stat object")
	}
	if fi.IsDir() {
		return nil, errs.Newf(errs.ErrKindNotFound, "object %s is a directory", key)
	}
	return &filestore.ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(key)),
		LastModified: fi.ModTime(),
	}, nil
}

func (d *Driver) path(key string) (string, string, error) {
	key, err := filestore.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), key, nil
}

func mapError(err error, msg string) *errs.Error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	default:
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}
}

type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo { return o.info }
