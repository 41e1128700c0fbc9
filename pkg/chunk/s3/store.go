// Package s3 provides an S3 implementation of the chunk store.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dphuang2/browser-record-app/pkg/chunk"
)

const (
	contentTypeJSON = "application/json"

	// deleteBatchSize is the S3 DeleteObjects per-request limit.
	deleteBatchSize = 1000
)

// Config holds S3 store configuration.
type Config struct {
	Bucket      string
	Region      string
	Endpoint    string
	AccessKeyID string
	SecretKey   string
}

// API defines the S3 operations used by the store.
// This interface allows for mocking in tests.
type API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
}

// PresignAPI defines the presigning operations used by the store.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store implements chunk.Store using S3.
type Store struct {
	client  API
	presign PresignAPI
	bucket  string
}

// New creates an S3 store with existing clients.
func New(bucket string, client API, presign PresignAPI) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if client == nil || presign == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	return &Store{
		client:  client,
		presign: presign,
		bucket:  bucket,
	}, nil
}

// NewFromConfig creates an S3 store with new clients from config.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return New(cfg.Bucket, client, awss3.NewPresignClient(client))
}

// PutChunk writes a chunk under its deterministic key. S3 PUT of the same
// key is a silent overwrite, satisfying the duplicate-upload contract.
func (s *Store) PutChunk(ctx context.Context, c *chunk.Chunk) error {
	body, err := json.Marshal(c)
	if err != nil {
		return &chunk.WriteError{Key: c.Key(), Err: err}
	}
	return s.put(ctx, c.Key(), body, "")
}

// PutArtifact overwrites the combined artifact for a session. The body is
// gzip-encoded JSON, so the object carries a Content-Encoding header that
// lets browsers decode replays fetched through a signed URL transparently.
func (s *Store) PutArtifact(ctx context.Context, shop, sessionID string, body []byte) error {
	return s.put(ctx, chunk.ArtifactKey(shop, sessionID), body, "gzip")
}

func (s *Store) put(ctx context.Context, key string, body []byte, contentEncoding string) error {
	input := &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentTypeJSON),
	}
	if contentEncoding != "" {
		input.ContentEncoding = aws.String(contentEncoding)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return &chunk.WriteError{Key: key, Err: err}
	}
	return nil
}

// List returns every object under the session's folder, including the
// combined artifact if present.
func (s *Store) List(ctx context.Context, shop, sessionID string) ([]chunk.ObjectInfo, error) {
	prefix := chunk.SessionPrefix(shop, sessionID) + "/"

	var infos []chunk.ObjectInfo
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing objects under %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			infos = append(infos, chunk.ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return infos, nil
}

// GetChunk fetches and parses one chunk.
func (s *Store) GetChunk(ctx context.Context, key string) (*chunk.Chunk, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &chunk.ReadError{Key: key, Err: chunk.ErrNotFound}
		}
		return nil, &chunk.ReadError{Key: key, Err: err}
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &chunk.ReadError{Key: key, Err: err}
	}

	var c chunk.Chunk
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, &chunk.ReadError{Key: key, Err: err}
	}
	return &c, nil
}

// Delete removes a batch of objects, splitting into S3-sized requests.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		batch := keys
		if len(batch) > deleteBatchSize {
			batch = batch[:deleteBatchSize]
		}
		keys = keys[len(batch):]

		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		_, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("deleting %d objects: %w", len(batch), err)
		}
	}
	return nil
}

// SignedURL returns a time-limited retrieval URL for a stored object.
// Presigning alone never touches the bucket, so existence is verified first.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return "", &chunk.SignError{Key: key, Err: chunk.ErrNotFound}
		}
		return "", &chunk.SignError{Key: key, Err: err}
	}

	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *awss3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", &chunk.SignError{Key: key, Err: err}
	}
	return req.URL, nil
}

// Verify interface compliance.
var _ chunk.Store = (*Store)(nil)
