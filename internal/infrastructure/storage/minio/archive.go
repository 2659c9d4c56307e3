package minio

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/pkg/errors"
)

// Archive stores original prescription documents under "<unix seconds><ext>"
// with a public-read ACL.
type Archive struct {
	client *MinIOClient
	logger logging.Logger
	now    func() time.Time

	mu          sync.Mutex
	bucketReady bool
}

// UploadResult describes a stored document.
type UploadResult struct {
	Key        string
	URL        string
	ETag       string
	Size       int64
	UploadedAt time.Time
}

func NewArchive(client *MinIOClient, log logging.Logger) *Archive {
	return &Archive{client: client, logger: log, now: time.Now}
}

// ObjectKey returns the key a document named fileName uploaded at t is
// stored under. Files without an extension are stored as PDF.
func ObjectKey(fileName string, t time.Time) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".pdf"
	}
	return strconv.FormatInt(t.Unix(), 10) + ext
}

// Upload writes data and returns its public URL.
func (a *Archive) Upload(ctx context.Context, fileName string, data []byte, contentType string) (*UploadResult, error) {
	if a.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if len(data) == 0 {
		return nil, errors.InvalidParam("document is empty")
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}

	now := a.now()
	key := ObjectKey(fileName, now)
	info, err := a.client.GetClient().PutObject(ctx, a.client.Bucket(), key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{"x-amz-acl": "public-read"},
		})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to upload document").WithDetail(key)
	}

	res := &UploadResult{
		Key:        key,
		URL:        a.client.ObjectURL(key),
		ETag:       info.ETag,
		Size:       info.Size,
		UploadedAt: now,
	}
	a.logger.Info("Document archived", logging.String("key", key), logging.String("url", res.URL), logging.Int64("size", info.Size))
	return res, nil
}

// ensureBucket creates the bucket before the first upload. A failed check is
// retried on the next upload.
func (a *Archive) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}
	if err := a.client.EnsureBucket(ctx); err != nil {
		return err
	}
	a.bucketReady = true
	return nil
}
