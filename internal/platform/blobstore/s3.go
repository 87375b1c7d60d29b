package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps blobs in a private S3 bucket. The sha256 checksum travels as
// object metadata.
type S3Store struct {
	client s3API
	bucket string
	max    int64
}

// NewS3Store builds a client from cfg. Path-style addressing keeps
// S3-compatible local endpoints working.
func NewS3Store(cfg aws.Config, bucket string) *S3Store {
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	})
	return &S3Store{client: client, bucket: bucket, max: MaxImageSize}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	data, err := readLimited(content, s.max)
	if err != nil {
		return nil, err
	}
	sum := checksum(data)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
		Metadata:    map[string]string{"sha256": sum},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", key, err)
	}
	return &Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        sum,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	obj := &Object{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		Hash:        out.Metadata["sha256"],
	}
	if out.LastModified != nil {
		obj.CreatedAt = *out.LastModified
	}
	return out.Body, obj, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
