// Package s3 implements remote.Remote on Amazon S3 or a compatible service.
//
// Remote paths map to keys under an optional prefix ("/zone/ds/data/x" ->
// "<prefix>zone/ds/data/x"). S3 has no collections, so a collection is a
// zero-length marker object whose key ends in "/". Metadata is stored as
// user metadata, URL-escaped so any string survives the HTTP header
// encoding. The checksum is the object's ETag, which is the MD5 digest for
// objects uploaded in a single request.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dtool-irods/pkg/metrics"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

// maxDeleteBatch is the S3 limit on keys per DeleteObjects request.
const maxDeleteBatch = 1000

// Config configures a Store.
type Config struct {
	// Client is the S3 client to use. Required.
	Client *s3.Client

	// Bucket is the bucket holding the datasets. Required.
	Bucket string

	// KeyPrefix is prepended to every key, e.g. "dtool/".
	KeyPrefix string

	// Metrics records every operation. Nil disables recording.
	Metrics metrics.RemoteMetrics
}

// Store is a remote.Remote backed by S3.
//
// Thread Safety: Safe for concurrent use. S3 gives no cross-request
// atomicity; concurrent writers to one dataset are not coordinated.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   metrics.RemoteMetrics
}

var _ remote.Remote = (*Store)(nil)

// New creates a Store and checks that the bucket is reachable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w: %w", cfg.Bucket, remote.ErrTransport, err)
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopRemoteMetrics()
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   m,
	}, nil
}

func (s *Store) record(op string, start time.Time, err error) {
	s.metrics.RecordOperation(op, time.Since(start), err)
}

// objectKey maps a remote path to the key of a data object.
func (s *Store) objectKey(p string) string {
	return objectKey(s.keyPrefix, p)
}

// collectionKey maps a remote path to the key of a collection marker.
func (s *Store) collectionKey(p string) string {
	return collectionKey(s.keyPrefix, p)
}

func objectKey(prefix, p string) string {
	return prefix + strings.TrimPrefix(path.Clean("/"+p), "/")
}

func collectionKey(prefix, p string) string {
	k := objectKey(prefix, p)
	if k == prefix {
		return prefix
	}
	return k + "/"
}

func isRoot(p string) bool {
	return path.Clean("/"+p) == "/"
}

// copySource escapes a bucket/key pair for CopyObject.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func encodeMeta(value string) string {
	return url.QueryEscape(value)
}

func decodeMeta(value string) (string, error) {
	return url.QueryUnescape(value)
}

// classify maps S3 errors onto the remote sentinels.
func classify(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", remote.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", remote.ErrTransport, err)
}

// head returns the object at key, or an error wrapping remote.ErrNotFound.
func (s *Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// collectionExists reports whether p is a collection.
func (s *Store) collectionExists(ctx context.Context, p string) (bool, error) {
	if isRoot(p) {
		return true, nil
	}
	_, err := s.head(ctx, s.collectionKey(p))
	if errors.Is(err, remote.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
