package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// DefaultPartSize is the multipart chunk size. It grows when an object
	// would otherwise need more than maxParts parts.
	DefaultPartSize int64 = 64 << 20
	maxParts              = 10000
)

// AWS is the aws-sdk-go-v2 driver. Objects larger than one part are sent as
// multipart uploads, so size is not capped at the single PUT limit.
type AWS struct {
	Client   *s3.Client
	Bucket   string
	PartSize int64
}

func NewAWS(opts S3Options) *AWS {
	httpClient := &http.Client{}
	if opts.Insecure {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		httpClient.Transport = transport
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	o := s3.Options{
		Region:       region,
		UsePathStyle: opts.PathStyle,
		HTTPClient:   httpClient,
		// Third-party endpoints reject the newer default checksum headers.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if opts.AccessKey != "" {
		o.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken)
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(endpointURL(opts.Endpoint, opts.UseSSL))
	}
	return &AWS{Client: s3.New(o), Bucket: opts.Bucket, PartSize: DefaultPartSize}
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (a *AWS) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	partSize := a.partSize(size)
	if size < 0 || size > partSize {
		return wrap("put", key, a.putMultipart(ctx, key, reader, partSize))
	}
	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.Bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	return wrap("put", key, err)
}

func (a *AWS) partSize(size int64) int64 {
	p := a.PartSize
	if p <= 0 {
		p = DefaultPartSize
	}
	if need := size/maxParts + 1; need > p {
		p = need
	}
	return p
}

// putMultipart uploads reader in sequential parts of partSize bytes. A failed
// upload is aborted.
func (a *AWS) putMultipart(ctx context.Context, key string, reader io.Reader, partSize int64) error {
	created, err := a.Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	abort := func(cause error) error {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		_, abortErr := a.Client.AbortMultipartUpload(actx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(a.Bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		return errors.Join(cause, abortErr)
	}

	buf := make([]byte, partSize)
	var parts []s3types.CompletedPart
	for n := int32(1); ; n++ {
		read, readErr := io.ReadFull(reader, buf)
		last := errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF)
		if readErr != nil && !last {
			return abort(fmt.Errorf("read part %d: %w", n, readErr))
		}
		// An empty stream still needs one (empty) part.
		if read == 0 && len(parts) > 0 {
			break
		}
		out, err := a.Client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(a.Bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(n),
			Body:          bytes.NewReader(buf[:read]),
			ContentLength: aws.Int64(int64(read)),
		})
		if err != nil {
			return abort(fmt.Errorf("upload part %d: %w", n, err))
		}
		parts = append(parts, s3types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(n)})
		if last {
			break
		}
	}

	_, err = a.Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(a.Bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(fmt.Errorf("complete multipart upload: %w", err))
	}
	return nil
}

func (a *AWS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := a.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrap("get", key, classifyAWS(err))
	}
	return out.Body, nil
}

func (a *AWS) Stat(ctx context.Context, key string) (Object, error) {
	out, err := a.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, wrap("stat", key, classifyAWS(err))
	}
	return Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
	}, nil
}

func (a *AWS) List(ctx context.Context, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(a.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.Bucket),
		Prefix: aws.String(prefix),
	})
	objects := []Object{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrap("list", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
	}
	return objects, nil
}

func (a *AWS) Delete(ctx context.Context, key string) error {
	_, err := a.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	return wrap("delete", key, err)
}

func (a *AWS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.Stat(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (a *AWS) Ping(ctx context.Context) error {
	_, err := a.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.Bucket)})
	return wrap("ping", a.Bucket, err)
}

func classifyAWS(err error) error {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
