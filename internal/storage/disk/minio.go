package disk

import (
	"context"
	"io"
	"iter"
	"net/http"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures an S3-compatible disk.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key, like `news/`.
	Prefix string
	Secure bool
	// BaseURL is the public prefix objects are served under.
	BaseURL string
}

// MinioDisk stores objects in one bucket of an S3-compatible service.
type MinioDisk struct {
	name    Name
	client  *minio.Client
	bucket  string
	prefix  string
	baseURL string
}

// NewMinioDisk connects to the endpoint and creates the bucket when missing.
func NewMinioDisk(ctx context.Context, name Name, opt MinioOptions) (*MinioDisk, error) {
	if _, err := ParseName(string(name)); err != nil {
		return nil, errors.WithStack(err)
	}
	if opt.Bucket == "" {
		return nil, errors.Errorf("bucket of disk %q is empty", name)
	}

	client, err := minio.New(opt.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.AccessKey, opt.SecretKey, ""),
		Secure: opt.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}

	return newMinioDisk(ctx, name, client, opt)
}

func newMinioDisk(ctx context.Context, name Name, client *minio.Client, opt MinioOptions) (*MinioDisk, error) {
	exists, err := client.BucketExists(ctx, opt.Bucket)
	if err != nil {
		return nil, newError(ErrUnavailable, name, "", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opt.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, newError(ErrUnavailable, name, "", errors.Wrapf(err, "make bucket %q", opt.Bucket))
		}
	}

	prefix := strings.Trim(opt.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &MinioDisk{
		name:    name,
		client:  client,
		bucket:  opt.Bucket,
		prefix:  prefix,
		baseURL: opt.BaseURL,
	}, nil
}

// Name returns the logical name of the disk.
func (d *MinioDisk) Name() Name {
	return d.name
}

// Put uploads r. S3 has no create-exclusive write, so the key is checked first
// and the registry's unique filename stays the final arbiter.
func (d *MinioDisk) Put(ctx context.Context, filename string, r io.Reader, contentType string) (int64, error) {
	if err := ValidateFilename(filename); err != nil {
		return 0, err
	}

	exists, err := d.Exists(ctx, filename)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, newError(ErrExists, d.name, filename, nil)
	}

	info, err := d.client.PutObject(ctx, d.bucket, d.key(filename), r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, newError(ErrWrite, d.name, filename, err)
	}
	return info.Size, nil
}

// Get opens the object for reading.
func (d *MinioDisk) Get(ctx context.Context, filename string) (io.ReadCloser, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	obj, err := d.client.GetObject(ctx, d.bucket, d.key(filename), minio.GetObjectOptions{})
	if err != nil {
		return nil, newError(ErrUnavailable, d.name, filename, err)
	}
	// GetObject is lazy, Stat surfaces a missing key
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, newError(ErrNotFound, d.name, filename, nil)
		}
		return nil, newError(ErrUnavailable, d.name, filename, err)
	}

	return obj, nil
}

// Delete removes the object if present.
func (d *MinioDisk) Delete(ctx context.Context, filename string) (bool, error) {
	exists, err := d.Exists(ctx, filename)
	if err != nil || !exists {
		return false, err
	}

	if err = d.client.RemoveObject(ctx, d.bucket, d.key(filename), minio.RemoveObjectOptions{}); err != nil {
		return false, newError(ErrUnavailable, d.name, filename, err)
	}
	return true, nil
}

// Exists reports whether the object key is present.
func (d *MinioDisk) Exists(ctx context.Context, filename string) (bool, error) {
	if err := ValidateFilename(filename); err != nil {
		return false, err
	}

	if _, err := d.client.StatObject(ctx, d.bucket, d.key(filename), minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, newError(ErrUnavailable, d.name, filename, err)
	}
	return true, nil
}

// List pages through the bucket under the disk prefix.
func (d *MinioDisk) List(ctx context.Context) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		listCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		for info := range d.client.ListObjects(listCtx, d.bucket, minio.ListObjectsOptions{
			Prefix:    d.prefix,
			Recursive: true,
		}) {
			if info.Err != nil {
				yield(Object{}, newError(ErrUnavailable, d.name, "", info.Err))
				return
			}

			filename := strings.TrimPrefix(info.Key, d.prefix)
			if ValidateFilename(filename) != nil {
				continue
			}
			if !yield(Object{
				Filename: filename,
				Size:     info.Size,
				ModTime:  info.LastModified,
			}, nil) {
				return
			}
		}
	}
}

// URL joins the public prefix and filename.
func (d *MinioDisk) URL(filename string) string {
	return joinURL(d.baseURL, filename)
}

func (d *MinioDisk) key(filename string) string {
	return d.prefix + filename
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
