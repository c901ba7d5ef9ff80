package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver keeps a copy of every generated export in S3-compatible object
// storage, keyed by cycle and document version.
type Archiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver connects to the object store and ensures the bucket exists.
func NewArchiver(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// Put stores one export artifact under exports/{cycleID}/v{version}/.
func (a *Archiver) Put(ctx context.Context, cycleID string, version int64, result *Result) error {
	objectName := fmt.Sprintf("exports/%s/v%d/%s", cycleID, version, result.Filename)
	_, err := a.client.PutObject(ctx, a.bucket, objectName,
		bytes.NewReader(result.Data), int64(len(result.Data)),
		minio.PutObjectOptions{ContentType: result.MimeType})
	if err != nil {
		return fmt.Errorf("store export artifact %s: %w", objectName, err)
	}
	return nil
}
