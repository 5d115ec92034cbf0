package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestDiskStorePutClaim(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}

	id := NewID()
	meta := Meta{Name: "notes.txt", ContentType: "text/plain", Size: 5}
	if err := store.Put(ctx, id, meta, strings.NewReader("hello")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	f, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	data, err := io.ReadAll(f.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("contents = %q", data)
	}
	if f.Name != "notes.txt" || f.ContentType != "text/plain" || f.Size != 5 {
		t.Errorf("meta = %+v", f.Meta)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, id)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still present after close: %v", err)
	}
	if _, err := store.Claim(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Claim() error = %v, want ErrNotFound", err)
	}
}

func TestDiskStoreClaimAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	id := NewID()
	if err := first.Put(ctx, id, Meta{Name: "a.bin"}, strings.NewReader("abc")); err != nil {
		t.Fatal(err)
	}

	second, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	f, err := second.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	defer f.Close()
	if f.Name != "a.bin" || f.Size != 3 {
		t.Errorf("meta = %+v", f.Meta)
	}
}

func TestDiskStoreLimits(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), 4)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      string
		meta    Meta
		body    string
		wantErr error
	}{
		{"declared_too_large", NewID(), Meta{Size: 10}, "0123456789", ErrTooLarge},
		{"actual_too_large", NewID(), Meta{Size: 1}, "0123456789", ErrTooLarge},
		{"bad_id", "../escape", Meta{}, "x", ErrInvalidID},
		{"fits", NewID(), Meta{Size: 4}, "0123", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Put(ctx, tc.id, tc.meta, strings.NewReader(tc.body))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Put() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDiskStoreCleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	old := NewID()
	if err := store.Put(ctx, old, Meta{CreatedAt: time.Now().Add(-time.Hour)}, strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	for _, name := range []string{old, old + ".meta"} {
		if err := os.Chtimes(filepath.Join(dir, name), past, past); err != nil {
			t.Fatal(err)
		}
	}
	fresh := NewID()
	if err := store.Put(ctx, fresh, Meta{}, strings.NewReader("y")); err != nil {
		t.Fatal(err)
	}

	if err := store.Cleanup(ctx, time.Minute); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := store.Claim(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Errorf("old file Claim() error = %v, want ErrNotFound", err)
	}
	f, err := store.Claim(ctx, fresh)
	if err != nil {
		t.Fatalf("fresh file Claim() error = %v", err)
	}
	f.Close()
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{
		body:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) get(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	o, ok := f.get(aws.ToString(in.Key))
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(o.contentType),
		ContentLength: aws.Int64(int64(len(o.body))),
		Metadata:      o.metadata,
	}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	o, ok := f.get(aws.ToString(in.Key))
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.body))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key, o := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				LastModified: aws.Time(o.modified),
			})
		}
	}
	return out, nil
}

func TestS3StorePutClaim(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewS3Store(client, "bucket", "ingest/", 0)

	id := NewID()
	if err := store.Put(ctx, id, Meta{Name: "photo.png", ContentType: "image/png"}, strings.NewReader("png!")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := client.get("ingest/" + id); !ok {
		t.Fatal("object not stored under prefix")
	}

	f, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	data, _ := io.ReadAll(f.Reader)
	if string(data) != "png!" || f.Name != "photo.png" || f.ContentType != "image/png" || f.Size != 4 {
		t.Errorf("claimed %q %+v", data, f.Meta)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := client.get("ingest/" + id); ok {
		t.Error("object still present after close")
	}
	if _, err := store.Claim(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Claim() error = %v, want ErrNotFound", err)
	}
}

func TestS3StoreLimitsAndCleanup(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewS3Store(client, "bucket", "ingest/", 3)

	if err := store.Put(ctx, NewID(), Meta{}, strings.NewReader("toolong")); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Put() error = %v, want ErrTooLarge", err)
	}

	id := NewID()
	if err := store.Put(ctx, id, Meta{}, strings.NewReader("ok")); err != nil {
		t.Fatal(err)
	}
	client.mu.Lock()
	o := client.objects["ingest/"+id]
	o.modified = time.Now().Add(-2 * time.Hour)
	client.objects["ingest/"+id] = o
	client.mu.Unlock()

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, ok := client.get("ingest/" + id); ok {
		t.Error("expired object not removed")
	}
}
