package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.BlobReader = (*Reader)(nil)

// Reader implements domain.BlobReader.
type Reader struct {
	client api
	bucket string
}

// NewReader creates a Reader for the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.s3, bucket: c.bucket}
}

// Exists reports whether path exists. Errors other than not-found are
// returned.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: exists %s: %w", path, err)
	}
	return true, nil
}

// isNotFound matches NoSuchKey, NotFound and bare 404 responses from
// S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// HeadObject has no body, so no NoSuchKey.
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}

	return false
}
