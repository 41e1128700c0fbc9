package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dphuang2/browser-record-app/pkg/chunk"
	"github.com/dphuang2/browser-record-app/pkg/recording"
)

const testBucket = "browser-record"

// mockAPI implements the API interface for testing.
type mockAPI struct {
	putInputs  []*awss3.PutObjectInput
	putErr     error
	getOutputs map[string][]byte
	getErr     error
	headErr    error
	listPages  []*awss3.ListObjectsV2Output
	listErr    error
	deleted    [][]types.ObjectIdentifier
	deleteErr  error
}

func (m *mockAPI) PutObject(_ context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.putInputs = append(m.putInputs, params)
	return &awss3.PutObjectOutput{}, nil
}

func (m *mockAPI) GetObject(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	body, ok := m.getOutputs[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (m *mockAPI) HeadObject(_ context.Context, _ *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	return &awss3.HeadObjectOutput{}, nil
}

func (m *mockAPI) ListObjectsV2(_ context.Context, _ *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if len(m.listPages) == 0 {
		return &awss3.ListObjectsV2Output{}, nil
	}
	page := m.listPages[0]
	m.listPages = m.listPages[1:]
	return page, nil
}

func (m *mockAPI) DeleteObjects(_ context.Context, params *awss3.DeleteObjectsInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.deleted = append(m.deleted, params.Delete.Objects)
	return &awss3.DeleteObjectsOutput{}, nil
}

// mockPresign implements the PresignAPI interface for testing.
type mockPresign struct {
	url string
	err error
}

func (m *mockPresign) PresignGetObject(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	url := m.url
	if url == "" {
		url = "https://" + testBucket + ".s3.amazonaws.com/" + aws.ToString(params.Key) + "?signature=abc"
	}
	return &v4.PresignedHTTPRequest{URL: url}, nil
}

func newTestStore(t *testing.T, api *mockAPI, presign *mockPresign) *Store {
	t.Helper()
	store, err := New(testBucket, api, presign)
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	_, err := New("", &mockAPI{}, &mockPresign{})
	assert.Error(t, err)

	_, err = New(testBucket, nil, nil)
	assert.Error(t, err)

	store, err := New(testBucket, &mockAPI{}, &mockPresign{})
	require.NoError(t, err)
	assert.Equal(t, testBucket, store.bucket)
}

func TestPutChunk(t *testing.T) {
	api := &mockAPI{}
	store := newTestStore(t, api, &mockPresign{})

	c := &chunk.Chunk{
		Shop:      "shop.example",
		SessionID: "sess-1",
		Timestamp: 1000,
		Events:    []recording.Event{{Type: 2, Timestamp: 1000}},
	}
	require.NoError(t, store.PutChunk(context.Background(), c))

	require.Len(t, api.putInputs, 1)
	input := api.putInputs[0]
	assert.Equal(t, testBucket, aws.ToString(input.Bucket))
	assert.Equal(t, "shop.example/sess-1/chunk/1000-1.json", aws.ToString(input.Key))
	assert.Equal(t, "application/json", aws.ToString(input.ContentType))
	assert.Nil(t, input.ContentEncoding)
}

func TestPutChunkError(t *testing.T) {
	api := &mockAPI{putErr: errors.New("denied")}
	store := newTestStore(t, api, &mockPresign{})

	err := store.PutChunk(context.Background(), &chunk.Chunk{Shop: "s", SessionID: "x"})
	var writeErr *chunk.WriteError
	require.ErrorAs(t, err, &writeErr)
}

func TestPutArtifact(t *testing.T) {
	api := &mockAPI{}
	store := newTestStore(t, api, &mockPresign{})

	require.NoError(t, store.PutArtifact(context.Background(), "shop.example", "sess-1", []byte("gzipped")))

	require.Len(t, api.putInputs, 1)
	input := api.putInputs[0]
	assert.Equal(t, "shop.example/sess-1/combined", aws.ToString(input.Key))
	assert.Equal(t, "gzip", aws.ToString(input.ContentEncoding))
}

func TestGetChunk(t *testing.T) {
	c := &chunk.Chunk{Shop: "shop.example", SessionID: "sess-1", Timestamp: 1000}
	body, err := json.Marshal(c)
	require.NoError(t, err)

	api := &mockAPI{getOutputs: map[string][]byte{c.Key(): body}}
	store := newTestStore(t, api, &mockPresign{})

	got, err := store.GetChunk(context.Background(), c.Key())
	require.NoError(t, err)
	assert.Equal(t, c.SessionID, got.SessionID)
}

func TestGetChunkNoSuchKey(t *testing.T) {
	api := &mockAPI{getOutputs: map[string][]byte{}}
	store := newTestStore(t, api, &mockPresign{})

	_, err := store.GetChunk(context.Background(), "missing")
	var readErr *chunk.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, chunk.ErrNotFound)
}

func TestGetChunkMalformed(t *testing.T) {
	api := &mockAPI{getOutputs: map[string][]byte{"bad": []byte("{nope")}}
	store := newTestStore(t, api, &mockPresign{})

	_, err := store.GetChunk(context.Background(), "bad")
	var readErr *chunk.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.NotErrorIs(t, err, chunk.ErrNotFound)
}

func TestListPaginates(t *testing.T) {
	api := &mockAPI{
		listPages: []*awss3.ListObjectsV2Output{
			{
				Contents: []types.Object{
					{Key: aws.String("shop/sess/chunk/1000-1.json"), Size: aws.Int64(10)},
				},
				IsTruncated:           aws.Bool(true),
				NextContinuationToken: aws.String("next"),
			},
			{
				Contents: []types.Object{
					{Key: aws.String("shop/sess/combined"), Size: aws.Int64(20)},
				},
			},
		},
	}
	store := newTestStore(t, api, &mockPresign{})

	infos, err := store.List(context.Background(), "shop", "sess")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "shop/sess/chunk/1000-1.json", infos[0].Key)
	assert.True(t, infos[1].IsArtifact())
}

func TestDeleteBatches(t *testing.T) {
	api := &mockAPI{}
	store := newTestStore(t, api, &mockPresign{})

	keys := make([]string, deleteBatchSize+5)
	for i := range keys {
		keys[i] = "k"
	}
	require.NoError(t, store.Delete(context.Background(), keys))
	require.Len(t, api.deleted, 2)
	assert.Len(t, api.deleted[0], deleteBatchSize)
	assert.Len(t, api.deleted[1], 5)

	require.NoError(t, store.Delete(context.Background(), nil))
	assert.Len(t, api.deleted, 2)
}

func TestSignedURL(t *testing.T) {
	api := &mockAPI{}
	store := newTestStore(t, api, &mockPresign{})

	url, err := store.SignedURL(context.Background(), "shop/sess/combined", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "shop/sess/combined")
}

func TestSignedURLMissingObject(t *testing.T) {
	api := &mockAPI{headErr: &types.NotFound{}}
	store := newTestStore(t, api, &mockPresign{})

	_, err := store.SignedURL(context.Background(), "missing", time.Minute)
	var signErr *chunk.SignError
	require.ErrorAs(t, err, &signErr)
	assert.ErrorIs(t, err, chunk.ErrNotFound)
}

func TestSignedURLPresignError(t *testing.T) {
	store := newTestStore(t, &mockAPI{}, &mockPresign{err: errors.New("no creds")})

	_, err := store.SignedURL(context.Background(), "key", time.Minute)
	var signErr *chunk.SignError
	require.ErrorAs(t, err, &signErr)
}
