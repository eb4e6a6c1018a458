package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

var _ domain.BlobWriter = (*Writer)(nil)

// Writer implements domain.BlobWriter. Uploads go through the SDK upload
// manager, which sends small bodies as one PutObject and splits larger ones
// into concurrent parts.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer for the client's bucket. A partSize below the
// S3 minimum is raised to 5 MiB.
func NewWriter(c *Client, partSize int64) *Writer {
	return newWriter(c.s3, c.bucket, partSize)
}

func newWriter(client api, bucket string, partSize int64) *Writer {
	partSize = max(partSize, minPartSize)
	return &Writer{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		bucket: bucket,
	}
}

// Put uploads data to path.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}
