package s3blob

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headOnly struct {
	api
	keys map[string]bool
	err  error
}

func (h *headOnly) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if h.err != nil {
		return nil, h.err
	}
	if !h.keys[aws.ToString(in.Key)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestReader_Exists(t *testing.T) {
	ctx := context.Background()
	r := &Reader{
		client: &headOnly{keys: map[string]bool{"archive/binary_orders/2025-01.jsonl": true}},
		bucket: "b",
	}

	ok, err := r.Exists(ctx, "archive/binary_orders/2025-01.jsonl")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, "archive/binary_orders/2025-02.jsonl")
	require.NoError(t, err)
	assert.False(t, ok)

	r.client = &headOnly{err: errors.New("connection reset")}
	_, err = r.Exists(ctx, "archive/binary_orders/2025-01.jsonl")
	assert.Error(t, err)
}
