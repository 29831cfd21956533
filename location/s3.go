package location

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client used by S3Backend.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend stores entries as objects. The first path element is the bucket, the rest is
// the object key. Directories are key prefixes, so they exist only while they have objects.
type S3Backend struct {
	client S3API
	region string
}

func NewS3Backend(client S3API, region string) *S3Backend {
	return &S3Backend{client: client, region: region}
}

func s3Split(name string) (string, string) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	bucket, key, _ := strings.Cut(name, "/")
	return bucket, key
}

func s3IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func s3Error(op, name string, err error) error {
	if s3IsNotFound(err) {
		err = errors.Join(fs.ErrNotExist, err)
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}

func (b *S3Backend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	bucket, key := s3Split(name)
	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error("Open", name, err)
	}
	return output.Body, nil
}

type s3Writer struct {
	ctx     context.Context
	backend *S3Backend
	name    string
	buffer  bytes.Buffer
	closed  bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fs.ErrClosed
	}
	return w.buffer.Write(p)
}

// Close uploads the buffered content.
func (w *s3Writer) Close() error {
	if w.closed {
		return fs.ErrClosed
	}
	w.closed = true
	bucket, key := s3Split(w.name)
	if _, err := w.backend.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(w.buffer.Bytes()),
	}); err != nil {
		return s3Error("Create", w.name, err)
	}
	return nil
}

// Create buffers the written content in memory, and uploads it on Close.
func (b *S3Backend) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if _, key := s3Split(name); key == "" {
		return nil, &fs.PathError{Op: "Create", Path: name, Err: syscall.EISDIR}
	}
	return &s3Writer{ctx: ctx, backend: b, name: name}, nil
}

// MkdirAll creates the bucket, if it does not exist.
func (b *S3Backend) MkdirAll(ctx context.Context, name string) error {
	bucket, _ := s3Split(name)
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !s3IsNotFound(err) {
		return s3Error("MkdirAll", name, err)
	}
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if b.region != "" && b.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3Types.CreateBucketConfiguration{
			LocationConstraint: s3Types.BucketLocationConstraint(b.region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		var owned *s3Types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return s3Error("MkdirAll", name, err)
	}
	return nil
}

func (b *S3Backend) listKeys(ctx context.Context, bucket, prefix, delimiter string) ([]string, []string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	var keys, prefixes []string
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
		for _, commonPrefix := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(commonPrefix.Prefix))
		}
	}
	return keys, prefixes, nil
}

func (b *S3Backend) Remove(ctx context.Context, name string) error {
	entry, err := b.Stat(ctx, name)
	if err != nil {
		return err
	}
	if entry.IsDir {
		return &fs.PathError{Op: "Remove", Path: name, Err: syscall.ENOTEMPTY}
	}
	bucket, key := s3Split(name)
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return s3Error("Remove", name, err)
	}
	return nil
}

// RemoveAll removes the object at name and all objects under its prefix. The bucket itself
// is kept.
func (b *S3Backend) RemoveAll(ctx context.Context, name string) error {
	bucket, key := s3Split(name)
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}
	keys, _, err := b.listKeys(ctx, bucket, prefix, "")
	if err != nil {
		if s3IsNotFound(err) {
			return nil
		}
		return s3Error("RemoveAll", name, err)
	}
	if key != "" {
		keys = append(keys, key)
	}
	for _, k := range keys {
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(k),
		}); err != nil && !s3IsNotFound(err) {
			return s3Error("RemoveAll", path.Join("/", bucket, k), err)
		}
	}
	return nil
}

func (b *S3Backend) Stat(ctx context.Context, name string) (Entry, error) {
	bucket, key := s3Split(name)
	if key == "" {
		if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
			return Entry{}, s3Error("Stat", name, err)
		}
		return Entry{Name: name, IsDir: true}, nil
	}
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return Entry{Name: name}, nil
	}
	if !s3IsNotFound(err) {
		return Entry{}, s3Error("Stat", name, err)
	}
	keys, prefixes, listErr := b.listKeys(ctx, bucket, key+"/", "/")
	if listErr != nil {
		return Entry{}, s3Error("Stat", name, listErr)
	}
	if len(keys) == 0 && len(prefixes) == 0 {
		return Entry{}, s3Error("Stat", name, err)
	}
	return Entry{Name: name, IsDir: true}, nil
}

func (b *S3Backend) List(ctx context.Context, name string) ([]Entry, error) {
	bucket, key := s3Split(name)
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}
	keys, prefixes, err := b.listKeys(ctx, bucket, prefix, "/")
	if err != nil {
		return nil, s3Error("List", name, err)
	}
	entries := []Entry{}
	for _, p := range prefixes {
		entries = append(entries, Entry{
			Name:  strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/"),
			IsDir: true,
		})
	}
	for _, k := range keys {
		entries = append(entries, Entry{Name: strings.TrimPrefix(k, prefix)})
	}
	return entries, nil
}

func (b *S3Backend) String() string {
	return "s3"
}

func (b *S3Backend) Close(ctx context.Context) error {
	return nil
}

// Opens a S3Backend with options region, profile, endpoint (for S3 compatible stores)
// and path_style. Credentials come from the default AWS chain.
func openS3(ctx context.Context, options Options) (Backend, error) {
	loadOptions := []func(*config.LoadOptions) error{}
	if region := options["region"]; region != "" {
		loadOptions = append(loadOptions, config.WithRegion(region))
	}
	if profile := options["profile"]; profile != "" {
		loadOptions = append(loadOptions, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	pathStyle := false
	if value := options["path_style"]; value != "" {
		pathStyle, err = strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid path_style option %#v: %w", value, err)
		}
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := options["endpoint"]; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	return NewS3Backend(client, cfg.Region), nil
}

func init() {
	RegisterSystem(SystemS3, openS3)
}
