package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures an S3 backed store. Endpoint and static credentials
// are only needed for S3 compatible services such as MinIO.
type S3Options struct {
	Bucket          string
	KeyPrefix       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicPrefix    string
}

// S3Store keeps attachments as objects in a bucket, all under one key prefix.
type S3Store struct {
	client    *s3.Client
	uploader  *manager.Uploader
	bucket    string
	keyPrefix string
	refs      refs
	names     *nameGenerator
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, opts.Bucket, opts.KeyPrefix, opts.PublicPrefix, time.Now), nil
}

func newS3Store(client *s3.Client, bucket, keyPrefix, publicPrefix string, now func() time.Time) *S3Store {
	return &S3Store{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    bucket,
		keyPrefix: normalizeKeyPrefix(keyPrefix),
		refs:      newRefs(publicPrefix),
		names:     newNameGenerator(now),
	}
}

// Save uploads with If-None-Match so an existing object is never
// overwritten. When another writer already holds the name, the next timestamp
// is tried with the body rewound.
func (s *S3Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	body, cleanup, err := seekable(r)
	if err != nil {
		return "", err
	}
	defer cleanup()
	start, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("storage: seek attachment: %w", err)
	}

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		if attempt > 0 {
			if _, err := body.Seek(start, io.SeekStart); err != nil {
				return "", fmt.Errorf("storage: rewind attachment: %w", err)
			}
		}
		name := s.names.next(filename)
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(name)),
			Body:        body,
			ContentType: aws.String(ContentType(name)),
			IfNoneMatch: aws.String("*"),
		})
		if err == nil {
			return s.refs.ref(name), nil
		}
		if !nameTaken(err) {
			return "", fmt.Errorf("storage: upload %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("storage: no free name for %q after %d attempts", filename, maxNameAttempts)
}

// nameTaken reports whether a conditional put lost against an existing or
// concurrently written object.
func nameTaken(err error) bool {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	switch respErr.HTTPStatusCode() {
	case http.StatusPreconditionFailed, http.StatusConflict:
		return true
	}
	return false
}

// seekable returns r itself when it can be rewound, otherwise a temp file
// holding its content.
func seekable(r io.Reader) (io.ReadSeeker, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, func() {}, nil
	}
	tmp, err := os.CreateTemp("", tempPrefix+"s3-*")
	if err != nil {
		return nil, nil, fmt.Errorf("storage: spool attachment: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("storage: spool attachment: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("storage: spool attachment: %w", err)
	}
	return tmp, cleanup, nil
}

func (s *S3Store) Open(ctx context.Context, ref string) (io.ReadCloser, Object, error) {
	name, err := s.refs.name(ref)
	if err != nil {
		return nil, Object{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, Object{}, fmt.Errorf("storage: get %s: %w", ref, err)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = ContentType(name)
	}
	return out.Body, Object{
		Ref:         ref,
		Name:        name,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: contentType,
		ModTime:     aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Store) Remove(ctx context.Context, ref string) error {
	name, err := s.refs.name(ref)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil
		}
		return fmt.Errorf("storage: delete %s: %w", ref, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list bucket %s: %w", s.bucket, err)
		}
		for _, item := range page.Contents {
			name, ok := s.nameFromKey(aws.ToString(item.Key))
			if !ok {
				continue
			}
			objects = append(objects, Object{
				Ref:         s.refs.ref(name),
				Name:        name,
				Size:        aws.ToInt64(item.Size),
				ContentType: ContentType(name),
				ModTime:     aws.ToTime(item.LastModified),
			})
		}
	}
	return objects, nil
}

func (s *S3Store) key(name string) string {
	return s.keyPrefix + name
}

// nameFromKey maps a bucket key back to an object name. Keys in nested
// "directories" below the prefix are not attachments.
func (s *S3Store) nameFromKey(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, s.keyPrefix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func normalizeKeyPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

var _ Store = (*S3Store)(nil)
