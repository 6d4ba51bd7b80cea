package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

func (s *Store) Exists(ctx context.Context, p string) (exists bool, err error) {
	defer func(start time.Time) { s.record("Exists", start, err) }(time.Now())

	if isRoot(p) {
		return true, nil
	}
	_, err = s.head(ctx, s.objectKey(p))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return false, fmt.Errorf("check %s: %w", p, err)
	}

	exists, err = s.collectionExists(ctx, p)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", p, err)
	}
	return exists, nil
}

func (s *Store) MakeCollection(ctx context.Context, p string) (err error) {
	defer func(start time.Time) { s.record("MakeCollection", start, err) }(time.Now())

	exists, err := s.Exists(ctx, p)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", p, err)
	}
	if exists {
		return fmt.Errorf("create collection %s: %w", p, remote.ErrAlreadyExists)
	}

	parentExists, err := s.collectionExists(ctx, path.Dir(path.Clean("/"+p)))
	if err != nil {
		return fmt.Errorf("create collection %s: %w", p, err)
	}
	if !parentExists {
		return fmt.Errorf("create collection %s: parent: %w", p, remote.ErrNotFound)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.collectionKey(p)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", p, classify(err))
	}
	return nil
}

func (s *Store) Put(ctx context.Context, localPath, remotePath string) (err error) {
	defer func(start time.Time) { s.record("Put", start, err) }(time.Now())

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}

	parentExists, err := s.collectionExists(ctx, path.Dir(path.Clean("/"+remotePath)))
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	if !parentExists {
		return fmt.Errorf("put %s: parent collection: %w", remotePath, remote.ErrNotFound)
	}

	// Overwriting keeps the object's metadata, as iRODS does.
	key := s.objectKey(remotePath)
	var meta map[string]string
	if existing, err := s.head(ctx, key); err == nil {
		meta = existing.Metadata
	} else if !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		Metadata:      meta,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, classify(err))
	}

	s.metrics.RecordBytes("upload", info.Size())
	return nil
}

func (s *Store) open(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(remotePath)),
	})
	if err != nil {
		return nil, classify(err)
	}
	return out.Body, nil
}

func (s *Store) Get(ctx context.Context, remotePath, localPath string) (err error) {
	defer func(start time.Time) { s.record("Get", start, err) }(time.Now())

	body, err := s.open(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}
	defer func() { _ = body.Close() }()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}

	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("get %s: %w: %w", remotePath, remote.ErrTransport, err)
	}

	s.metrics.RecordBytes("download", n)
	return nil
}

func (s *Store) ReadAll(ctx context.Context, remotePath string) (data []byte, err error) {
	defer func(start time.Time) { s.record("ReadAll", start, err) }(time.Now())

	body, err := s.open(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", remotePath, err)
	}
	defer func() { _ = body.Close() }()

	data, err = io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", remotePath, remote.ErrTransport, err)
	}

	s.metrics.RecordBytes("download", int64(len(data)))
	return data, nil
}

func (s *Store) List(ctx context.Context, p string) (entries []remote.Entry, err error) {
	defer func(start time.Time) { s.record("List", start, err) }(time.Now())

	exists, err := s.collectionExists(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	if !exists {
		return nil, fmt.Errorf("list %s: %w", p, remote.ErrNotFound)
	}

	prefix := s.collectionKey(p)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", p, classify(err))
		}

		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue // the collection marker itself
			}
			entries = append(entries, remote.Entry{Name: name})
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				entries = append(entries, remote.Entry{Name: name, IsCollection: true})
			}
		}
	}
	return entries, nil
}

func (s *Store) SetMeta(ctx context.Context, p, key, value string) (err error) {
	defer func(start time.Time) { s.record("SetMeta", start, err) }(time.Now())

	objKey := s.objectKey(p)
	head, err := s.head(ctx, objKey)
	if err != nil {
		return fmt.Errorf("set metadata %q on %s: %w", key, p, err)
	}

	meta := make(map[string]string, len(head.Metadata)+1)
	for k, v := range head.Metadata {
		meta[k] = v
	}
	meta[strings.ToLower(key)] = encodeMeta(value)

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(objKey),
		CopySource:        aws.String(copySource(s.bucket, objKey)),
		Metadata:          meta,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		return fmt.Errorf("set metadata %q on %s: %w", key, p, classify(err))
	}
	return nil
}

func (s *Store) GetMeta(ctx context.Context, p, key string) (value string, err error) {
	defer func(start time.Time) { s.record("GetMeta", start, err) }(time.Now())

	head, err := s.head(ctx, s.objectKey(p))
	if err != nil {
		return "", fmt.Errorf("get metadata %q on %s: %w", key, p, err)
	}

	raw, ok := head.Metadata[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("get metadata %q on %s: %w", key, p, remote.ErrNotFound)
	}
	value, err = decodeMeta(raw)
	if err != nil {
		return "", fmt.Errorf("get metadata %q on %s: %w", key, p,
			&remote.ParseError{Shape: "metadata", Reason: err.Error(), Output: raw})
	}
	return value, nil
}

func (s *Store) Checksum(ctx context.Context, p string) (digest string, err error) {
	defer func(start time.Time) { s.record("Checksum", start, err) }(time.Now())

	head, err := s.head(ctx, s.objectKey(p))
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", p, err)
	}

	etag := strings.Trim(aws.ToString(head.ETag), `"`)
	if etag == "" {
		return "", fmt.Errorf("checksum %s: %w",
			p, &remote.ParseError{Shape: "checksum", Reason: "empty ETag", Output: etag})
	}
	// Multipart uploads have an ETag of the form <md5 of part md5s>-<parts>.
	if strings.Contains(etag, "-") {
		return "", fmt.Errorf("checksum %s: %w: multipart ETag %s", p, remote.ErrUnsupportedDigest, etag)
	}
	return strings.ToLower(etag), nil
}

func (s *Store) Stat(ctx context.Context, p string) (st remote.Stat, err error) {
	defer func(start time.Time) { s.record("Stat", start, err) }(time.Now())

	head, err := s.head(ctx, s.objectKey(p))
	if err != nil {
		return remote.Stat{}, fmt.Errorf("stat %s: %w", p, err)
	}

	return remote.Stat{
		Size:    aws.ToInt64(head.ContentLength),
		ModTime: aws.ToTime(head.LastModified).UTC(),
	}, nil
}

func (s *Store) RemoveAll(ctx context.Context, p string) (err error) {
	defer func(start time.Time) { s.record("RemoveAll", start, err) }(time.Now())

	if isRoot(p) {
		return fmt.Errorf("remove /: refusing to remove the root collection")
	}

	var keys []types.ObjectIdentifier
	if _, err := s.head(ctx, s.objectKey(p)); err == nil {
		keys = append(keys, types.ObjectIdentifier{Key: aws.String(s.objectKey(p))})
	} else if !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("remove %s: %w", p, err)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.collectionKey(p)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("remove %s: %w", p, classify(err))
		}
		for _, obj := range page.Contents {
			keys = append(keys, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	if len(keys) == 0 {
		return fmt.Errorf("remove %s: %w", p, remote.ErrNotFound)
	}

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("remove %s: %w", p, classify(err))
		}
		if len(out.Errors) > 0 {
			for _, e := range out.Errors {
				logger.Debug("s3 remote: delete %s failed: %s", aws.ToString(e.Key), aws.ToString(e.Message))
			}
			return fmt.Errorf("remove %s: %d keys could not be deleted: %w", p, len(out.Errors), remote.ErrTransport)
		}
	}
	return nil
}
