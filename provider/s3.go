package provider

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultS3Timeout bounds HeadObject and each read of an object.
const DefaultS3Timeout = 30 * time.Second

// ensure interfaces are implemented
var (
	_ Storage     = (*S3Storage)(nil)
	_ AsyncCloser = (*s3File)(nil)
)

// S3Storage implements Storage on an S3 bucket prefix, for hosts that spool
// transfers through object storage instead of a local disk.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	prefix   string
	uploader *manager.Uploader

	// Timeout bounds Exists, and a read handle from Open to Close. Zero
	// means DefaultS3Timeout.
	Timeout time.Duration
}

// NewS3Storage creates a new S3Storage using the default AWS config chain.
func NewS3Storage(ctx context.Context, bucket string, prefix string) (*S3Storage, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Storage{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
		Timeout:  DefaultS3Timeout,
	}, nil
}

func (p *S3Storage) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultS3Timeout
	}
	return p.Timeout
}

// ParseS3URL splits "s3://bucket/prefix" into its bucket and prefix.
func ParseS3URL(raw string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(raw, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, prefix, true
}

// buildKey constructs the full S3 key based on the storage prefix
func (p *S3Storage) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	// Avoid double slashes
	key := path.Join(p.prefix, subPath)
	return strings.TrimPrefix(key, "/")
}

func (p *S3Storage) Exists(ctx context.Context, pth string) bool {
	key := p.buildKey(pth)
	if key == "" || strings.HasSuffix(key, "/") {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func (p *S3Storage) Open(ctx context.Context, pth string, mode Mode) (File, error) {
	key := p.buildKey(pth)

	switch mode {
	case ModeRead:
		// The body streams under this context, so it lives until Close.
		ctx, cancel := context.WithTimeout(ctx, p.timeout())
		out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
		}
		var size int64
		if out.ContentLength != nil {
			size = *out.ContentLength
		}
		return &s3File{body: out.Body, cancel: cancel, size: size}, nil

	case ModeWrite:
		pr, pw := io.Pipe()
		errChan := make(chan error, 1)

		go func() {
			_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket: aws.String(p.bucket),
				Key:    aws.String(key),
				Body:   pr,
			})
			pr.CloseWithError(err)
			errChan <- err
		}()

		return &s3File{pw: pw, errChan: errChan}, nil

	default:
		return nil, fmt.Errorf("open %q: unsupported mode %d", pth, mode)
	}
}

// s3File is either a GetObject body (read) or the writing end of a pipe
// feeding a background multipart upload (write).
type s3File struct {
	body   io.ReadCloser
	cancel context.CancelFunc

	pw      *io.PipeWriter
	errChan <-chan error

	size int64
}

func (f *s3File) Read(p []byte) (int, error) {
	if f.body == nil {
		return 0, ErrWrongMode
	}
	return f.body.Read(p)
}

func (f *s3File) Write(p []byte) (int, error) {
	if f.pw == nil {
		return 0, ErrWrongMode
	}
	n, err := f.pw.Write(p)
	f.size += int64(n)
	return n, err
}

func (f *s3File) Size() int64 {
	return f.size
}

func (f *s3File) Close() error {
	if f.body != nil {
		if f.cancel != nil {
			defer f.cancel()
		}
		return f.body.Close()
	}
	if err := f.pw.Close(); err != nil {
		return err
	}
	// Wait for upload to complete
	if err := <-f.errChan; err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// CloseAsync closes the handle without waiting for the upload behind a write
// handle to finish. done runs on a separate goroutine.
func (f *s3File) CloseAsync(done func(error)) {
	go func() {
		done(f.Close())
	}()
}
