package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 is the minio-go driver, usable with any S3-compatible endpoint.
type S3 struct {
	Client *minio.Client
	Bucket string
}

type S3Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	PathStyle    bool
	Insecure     bool
}

func NewS3(opts S3Options) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	lookup := minio.BucketLookupDNS
	if opts.PathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		Transport:    transport,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}
	return &S3{Client: client, Bucket: opts.Bucket}, nil
}

func (s *S3) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	_, err := s.Client.PutObject(ctx, s.Bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return wrap("put", key, err)
}

func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy; stat first so a missing key fails here.
	if _, err := s.Stat(ctx, key); err != nil {
		return nil, err
	}
	obj, err := s.Client.GetObject(ctx, s.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrap("get", key, err)
	}
	return obj, nil
}

func (s *S3) Stat(ctx context.Context, key string) (Object, error) {
	stat, err := s.Client.StatObject(ctx, s.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, wrap("stat", key, s.classify(err))
	}
	return Object{Key: key, Size: stat.Size, LastModified: stat.LastModified, ETag: stat.ETag}, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]Object, error) {
	ch := s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	objects := []Object{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, wrap("list", prefix, obj.Err)
		}
		objects = append(objects, Object{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified, ETag: obj.ETag})
	}
	return objects, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	return wrap("delete", key, s.Client.RemoveObject(ctx, s.Bucket, key, minio.RemoveObjectOptions{}))
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Stat(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *S3) Ping(ctx context.Context) error {
	ok, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return wrap("ping", s.Bucket, err)
	}
	if !ok {
		return wrap("ping", s.Bucket, fmt.Errorf("bucket does not exist"))
	}
	return nil
}

func (s *S3) classify(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
