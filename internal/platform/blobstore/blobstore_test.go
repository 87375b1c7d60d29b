package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	obj, err := s.Put(ctx, "profile-pictures/a/1.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.Size != 9 || obj.Hash == "" {
		t.Errorf("unexpected object %+v", obj)
	}

	rc, got, err := s.Get(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "png-bytes" || got.ContentType != "image/png" {
		t.Errorf("unexpected content %q %+v", body, got)
	}

	if err := s.Delete(ctx, obj.Key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Get(ctx, obj.Key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, obj.Key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_Limits(t *testing.T) {
	s := NewMemoryStore()
	s.max = 4
	if _, err := s.Put(context.Background(), "k", "image/png", strings.NewReader("12345")); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, err := s.Put(context.Background(), "", "image/png", strings.NewReader("1")); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("nothing should be stored, got %d", s.Len())
	}
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		ct      string
		ext     string
		wantErr bool
	}{
		{"image/png", ".png", false},
		{"image/jpeg; charset=binary", ".jpg", false},
		{"IMAGE/WEBP", ".webp", false},
		{"application/pdf", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		ext, err := ValidateImage(tt.ct)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateImage(%q) err = %v", tt.ct, err)
		}
		if ext != tt.ext {
			t.Errorf("ValidateImage(%q) = %q, want %q", tt.ct, ext, tt.ext)
		}
	}
}

type fakeS3 struct {
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = data
	f.meta[*in.Key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   aws.String("image/png"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      f.meta[*in.Key],
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	f := newFakeS3()
	s := &S3Store{client: f, bucket: "saude", max: MaxImageSize}
	ctx := context.Background()

	put, err := s.Put(ctx, "k.png", "image/png", strings.NewReader("img"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, obj, err := s.Get(ctx, "k.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	if obj.Hash != put.Hash || obj.Size != 3 {
		t.Errorf("metadata mismatch: %+v vs %+v", obj, put)
	}

	if err := s.Delete(ctx, "k.png"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get(ctx, "k.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
