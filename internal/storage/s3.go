package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/joseph-ayodele/acuvera/constants"
	"github.com/joseph-ayodele/acuvera/internal/common"
)

// S3API is the subset of the S3 client used by S3.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores documents as objects under prefix in bucket.
type S3 struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 loads the default AWS credential chain for region.
func NewS3(ctx context.Context, bucket, region, prefix string, logger *slog.Logger) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3WithClient(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

func NewS3WithClient(client S3API, bucket, prefix string, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (s *S3) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(data)
	}
	key := s.prefix + objectName(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(constants.MIMEForKind(constants.FileKindForExt(filepath.Ext(name)))),
	})
	if err != nil {
		s.logger.Error("storage.s3.put_failed", "bucket", s.bucket, "key", key, "error", err)
		return "", fmt.Errorf("putting S3 object %s: %w", key, err)
	}
	s.logger.Info("storage.s3.saved", "bucket", s.bucket, "key", key)
	return key, nil
}

func (s *S3) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.NotFoundf("document %s not found", key)
		}
		return nil, fmt.Errorf("getting S3 object %s: %w", key, err)
	}
	return resp.Body, nil
}

// LocalPath downloads the object to a temp file that cleanup removes.
func (s *S3) LocalPath(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	rc, err := s.Open(ctx, ref)
	if err != nil {
		return "", noop, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "acuvera-s3-*"+filepath.Ext(ref))
	if err != nil {
		return "", noop, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("downloading %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	return tmp.Name(), cleanup, nil
}

func (s *S3) Delete(ctx context.Context, ref string) error {
	key, err := cleanRef(ref)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("deleting S3 object %s: %w", key, err)
	}
	s.logger.Info("storage.s3.deleted", "bucket", s.bucket, "key", key)
	return nil
}
