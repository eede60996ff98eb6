// Package s3store keeps identity domains in an S3-compatible bucket. Each
// item is one JSON object at "<domain>/<escaped item>"; an empty object at
// "<domain>/" marks the domain as created.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
)

// API is the subset of *s3.Client used by Store.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) API {
	return s3.NewFromConfig(cfg, optFns...)
}

// Store implements store.Store over S3. Reads after writes are consistent
// on S3 and MinIO, so the consistent flag is not needed.
type Store struct {
	api      API
	bucket   string
	region   string
	pageSize int32
}

// New wraps an existing client.
func New(api API, bucket, region string) *Store {
	return &Store{api: api, bucket: bucket, region: region, pageSize: store.DefaultPageSize}
}

// NewFromConfig builds the S3 client. A non-empty endpoint switches to
// path-style addressing for MinIO and localstack.
func NewFromConfig(cfg aws.Config, bucket, endpoint string) *Store {
	api := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return New(api, bucket, cfg.Region)
}

// EnsureBucket creates the bucket when HeadBucket cannot see it.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.api.CreateBucket(ctx, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}

func domainPrefix(domain string) string {
	return domain + "/"
}

func objectKey(domain, item string) string {
	return domainPrefix(domain) + url.PathEscape(item)
}

func itemName(domain, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, domainPrefix(domain))
	if !ok || rest == "" {
		return "", false
	}
	name, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return name, true
}

func (s *Store) CreateDomain(ctx context.Context, name string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(domainPrefix(name)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}

func (s *Store) ListDomains(ctx context.Context, nextToken string) ([]string, string, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(s.pageSize),
	}
	if nextToken != "" {
		in.ContinuationToken = aws.String(nextToken)
	}

	out, err := s.api.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("s3 error: %w", err)
	}

	names := make([]string, 0, len(out.CommonPrefixes))
	for _, p := range out.CommonPrefixes {
		names = append(names, strings.TrimSuffix(aws.ToString(p.Prefix), "/"))
	}
	return names, next(out), nil
}

func (s *Store) PutAttributes(ctx context.Context, domain, item string, attrs store.Attributes, replace bool) error {
	cur, err := s.GetAttributes(ctx, domain, item, true)
	if err != nil {
		return err
	}
	for k, v := range attrs {
		if _, exists := cur[k]; exists && !replace {
			continue
		}
		cur[k] = v
	}

	body, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", domain, item, err)
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(domain, item)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}

func (s *Store) GetAttributes(ctx context.Context, domain, item string, _ bool) (store.Attributes, error) {
	return s.getKey(ctx, objectKey(domain, item))
}

func (s *Store) getKey(ctx context.Context, key string) (store.Attributes, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return store.Attributes{}, nil
		}
		return nil, fmt.Errorf("s3 error: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 error: %w", err)
	}

	attrs := store.Attributes{}
	if len(raw) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return attrs, nil
}

func (s *Store) DeleteAttributes(ctx context.Context, domain, item string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(domain, item)),
	})
	if err != nil {
		return fmt.Errorf("s3 error: %w", err)
	}
	return nil
}

// Select lists one page of keys under the domain and reads each object.
// Filtering happens after the read, so a page may hold fewer items than
// the page size while NextToken is still set.
func (s *Store) Select(ctx context.Context, domain string, filter store.Filter, nextToken string) (*store.Page, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(domainPrefix(domain)),
		MaxKeys: aws.Int32(s.pageSize),
	}
	if nextToken != "" {
		in.ContinuationToken = aws.String(nextToken)
	}

	out, err := s.api.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("s3 error: %w", err)
	}

	page := &store.Page{NextToken: next(out)}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		name, ok := itemName(domain, key)
		if !ok {
			continue
		}
		attrs, err := s.getKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(attrs) == 0 || !filter.Matches(attrs) {
			continue
		}
		page.Items = append(page.Items, store.Item{Name: name, Attributes: attrs})
	}
	return page, nil
}

func next(out *s3.ListObjectsV2Output) string {
	if !aws.ToBool(out.IsTruncated) {
		return ""
	}
	return aws.ToString(out.NextContinuationToken)
}
