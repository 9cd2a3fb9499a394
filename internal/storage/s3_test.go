package storage

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pagedLister struct {
	pages [][]string
	calls int
}

func (p *pagedLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := p.pages[p.calls]
	p.calls++

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(p.calls < len(p.pages))}
	for _, k := range page {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(aws.ToString(in.Prefix) + k)})
	}
	if p.calls < len(p.pages) {
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func TestListKeys_FollowsPages(t *testing.T) {
	lister := &pagedLister{pages: [][]string{{"a", "b"}, {"c"}}}

	keys, err := ListKeys(context.Background(), lister, "docs", "papers/")
	require.NoError(t, err)
	assert.Equal(t, []string{"papers/a", "papers/b", "papers/c"}, keys)
	assert.Equal(t, 2, lister.calls)
}
