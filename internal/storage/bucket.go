package storage

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"forest-tile-server/internal/errs"
)

// ObjectAPI is the subset of minio.Client this package uses. Tests
// provide fakes; production wraps the real client with MinioAPI.
type ObjectAPI interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioAPI adapts *minio.Client to ObjectAPI.
type MinioAPI struct {
	Client *minio.Client
}

func (m MinioAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return m.Client.GetObject(ctx, bucketName, objectName, opts)
}

func (m MinioAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.Client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

// Bucket is one named bucket with read and write access.
type Bucket struct {
	API      ObjectAPI
	Name     string
	Log      zerolog.Logger
	Failures prometheus.Counter
}

func NewBucket(api ObjectAPI, name string, log zerolog.Logger, failures prometheus.Counter) *Bucket {
	return &Bucket{API: api, Name: name, Log: log, Failures: failures}
}

// Get reads one object in full. Object errors surface on read, not on
// open, so the NoSuchKey check happens after ReadAll.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.API.GetObject(ctx, b.Name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "open %s/%s", b.Name, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return nil, errs.NotFoundf("object %s not found", key)
		}
		return nil, errs.Wrap(errs.Upstream, err, "read %s/%s", b.Name, key)
	}
	return data, nil
}

// Put writes one object with the given content type.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.API.PutObject(ctx, b.Name, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errs.Wrap(errs.StorageWrite, err, "write %s/%s", b.Name, key)
	}
	return nil
}

// PutAsync writes the object in the background so the tile response is
// not delayed by the cache write. The write gets its own deadline
// detached from the request context; failures are logged and counted,
// never surfaced, since the tile was already served.
func (b *Bucket) PutAsync(key string, data []byte, contentType string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := b.Put(ctx, key, data, contentType); err != nil {
			b.Log.Error().Err(err).Str("key", key).Msg("background tile cache write failed")
			if b.Failures != nil {
				b.Failures.Inc()
			}
		}
	}()
}
