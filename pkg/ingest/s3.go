package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner produces download URLs for claimed files. *s3.PresignClient
// implements it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Object metadata keys.
const (
	metaName    = "original-filename"
	metaCreated = "upload-time"
	metaSize    = "declared-size"
)

// S3Store stores files in AWS S3.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	store := ingest.NewS3Store(client, "my-bucket", "ingest/", 50<<20).
//	    WithPresigner(s3.NewPresignClient(client))
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	maxSize   int64
	urlExpiry time.Duration
}

// NewS3Store creates a new S3 ingest store.
//
// Parameters:
//   - client: S3 client (usually *s3.Client)
//   - bucket: S3 bucket name
//   - prefix: Key prefix for files (e.g., "ingest/")
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewS3Store(client S3API, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		maxSize:   maxSize,
		urlExpiry: 24 * time.Hour,
	}
}

// WithPresigner enables presigned URLs on claimed files.
func (s *S3Store) WithPresigner(p Presigner) *S3Store {
	s.presigner = p
	return s
}

// WithURLExpiry sets how long presigned URLs are valid.
func (s *S3Store) WithURLExpiry(d time.Duration) *S3Store {
	s.urlExpiry = d
	return s
}

func (s *S3Store) key(id string) string {
	return s.prefix + id
}

// Put buffers the file and uploads it.
func (s *S3Store) Put(ctx context.Context, id string, meta Meta, r io.Reader) error {
	if err := checkID(id); err != nil {
		return err
	}
	if s.maxSize > 0 && meta.Size > s.maxSize {
		return ErrTooLarge
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, limit(r, s.maxSize)); err != nil {
		return err
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			metaName:    meta.Name,
			metaCreated: meta.CreatedAt.UTC().Format(time.RFC3339),
			metaSize:    strconv.FormatInt(meta.Size, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("ingest: s3 upload failed: %w", err)
	}
	return nil
}

// Claim fetches a stored file. The object is deleted when the returned
// reader is closed.
func (s *S3Store) Claim(ctx context.Context, id string) (*File, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	key := s.key(id)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ingest: s3 head failed: %w", err)
	}

	get, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: s3 get failed: %w", err)
	}

	f := &File{ID: id}
	f.Name = head.Metadata[metaName]
	if f.Name == "" {
		f.Name = id
	}
	f.ContentType = aws.ToString(head.ContentType)
	f.Size = aws.ToInt64(head.ContentLength)
	if t, err := time.Parse(time.RFC3339, head.Metadata[metaCreated]); err == nil {
		f.CreatedAt = t
	}

	if s.presigner != nil {
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(s.urlExpiry))
		if err == nil {
			f.URL = req.URL
		}
	}

	f.Reader = &deleteOnCloseObject{ReadCloser: get.Body, store: s, key: key}
	return f, nil
}

// Cleanup removes objects under the prefix older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.LastModified.Before(cutoff) && obj.Key != nil {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	var errs []error
	for _, key := range toDelete {
		if err := s.delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3Store) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

type deleteOnCloseObject struct {
	io.ReadCloser
	store *S3Store
	key   string
}

func (r *deleteOnCloseObject) Close() error {
	err := r.ReadCloser.Close()
	if derr := r.store.delete(context.Background(), r.key); err == nil {
		err = derr
	}
	return err
}
