package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"gitpub-go/internal/gitpub"
)

// attrsMetadataKey holds the URL-encoded document attributes. S3 lower-cases
// user metadata keys, so attributes are packed into a single value.
const attrsMetadataKey = "gitpub-attrs"

// S3API is the subset of the S3 client used by S3Adapter.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config configures an S3Adapter built by NewS3AdapterFromConfig.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Adapter publishes documents as objects <prefix><remoteID>.rst in a bucket.
type S3Adapter struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	ids      gitpub.IDGenerator
}

// NewS3Adapter wraps an S3 client.
func NewS3Adapter(client S3API, bucket, prefix string, ids gitpub.IDGenerator) *S3Adapter {
	if ids == nil {
		ids = gitpub.UUIDGenerator{}
	}
	return &S3Adapter{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		ids:      ids,
	}
}

// NewS3AdapterFromConfig loads AWS configuration from the default chain,
// overridden by cfg, and creates the adapter.
func NewS3AdapterFromConfig(ctx context.Context, cfg S3Config, ids gitpub.IDGenerator) (*S3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 adapter requires bucket to be set")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3Adapter(client, cfg.Bucket, cfg.Prefix, ids), nil
}

func (a *S3Adapter) NewDocument(ctx context.Context, doc *gitpub.Document, attrs map[string]string) (string, error) {
	id := a.ids.New()
	if err := a.put(ctx, id, doc, attrs); err != nil {
		return "", err
	}
	return id, nil
}

func (a *S3Adapter) SetDocument(ctx context.Context, remoteID string, doc *gitpub.Document, attrs map[string]string) error {
	if _, err := a.head(ctx, remoteID); err != nil {
		return err
	}
	return a.put(ctx, remoteID, doc, attrs)
}

func (a *S3Adapter) DeleteDocument(ctx context.Context, remoteID string) error {
	if _, err := a.head(ctx, remoteID); err != nil {
		return err
	}
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(remoteID)),
	})
	if err != nil {
		return fmt.Errorf("deleting object for %s: %w", remoteID, err)
	}
	return nil
}

func (a *S3Adapter) ListDocuments(ctx context.Context) (map[string]map[string]string, error) {
	var ids []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), a.prefix)
			id, ok := strings.CutSuffix(name, gitpub.DocumentExt)
			if !ok || id == "" || strings.Contains(id, "/") {
				continue
			}
			ids = append(ids, id)
		}
	}

	out := make(map[string]map[string]string, len(ids))
	for _, id := range ids {
		attrs, err := a.head(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = attrs
	}
	return out, nil
}

func (a *S3Adapter) GetDocument(ctx context.Context, remoteID string) (string, map[string]string, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(remoteID)),
	})
	if err != nil {
		return "", nil, a.wrapErr(remoteID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading object for %s: %w", remoteID, err)
	}
	attrs, err := decodeAttrs(out.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("object for %s: %w", remoteID, err)
	}
	return string(data), attrs, nil
}

func (a *S3Adapter) key(id string) string {
	return a.prefix + id + gitpub.DocumentExt
}

func (a *S3Adapter) put(ctx context.Context, id string, doc *gitpub.Document, attrs map[string]string) error {
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.key(id)),
		Body:          bytes.NewReader([]byte(doc.Content)),
		ContentType:   aws.String("text/plain; charset=utf-8"),
		ContentLength: aws.Int64(int64(len(doc.Content))),
		Metadata:      encodeAttrs(withTitle(attrs, doc)),
	})
	if err != nil {
		return fmt.Errorf("uploading object for %s: %w", id, err)
	}
	return nil
}

func (a *S3Adapter) head(ctx context.Context, id string) (map[string]string, error) {
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(id)),
	})
	if err != nil {
		return nil, a.wrapErr(id, err)
	}
	attrs, err := decodeAttrs(out.Metadata)
	if err != nil {
		return nil, fmt.Errorf("object for %s: %w", id, err)
	}
	return attrs, nil
}

func (a *S3Adapter) wrapErr(id string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("document %s: %w", id, gitpub.ErrNotFound)
	}
	return fmt.Errorf("object for %s: %w", id, err)
}

func encodeAttrs(attrs map[string]string) map[string]string {
	v := url.Values{}
	for k, val := range attrs {
		v.Set(k, val)
	}
	return map[string]string{attrsMetadataKey: v.Encode()}
}

func decodeAttrs(metadata map[string]string) (map[string]string, error) {
	attrs := map[string]string{}
	raw, ok := metadata[attrsMetadataKey]
	if !ok {
		return attrs, nil
	}
	v, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s metadata: %w", attrsMetadataKey, err)
	}
	for k := range v {
		attrs[k] = v.Get(k)
	}
	return attrs, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

// Compile-time checks
var (
	_ gitpub.Adapter = (*S3Adapter)(nil)
	_ gitpub.Fetcher = (*S3Adapter)(nil)
	_ S3API          = (*s3.Client)(nil)
)
