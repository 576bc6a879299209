package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 stores mirror files under one key prefix per resource identifier
// ("<id>/<name>" or "<id>/<YYYY-MM-DD>.<name>"). Downloads are staged to a
// local temp file and uploaded on Keep/Promote, so the streaming and
// finalize logic is identical to the Local backend.
type S3 struct {
	client   *s3.Client
	bucket   string
	stageDir string
}

// NewS3 creates an S3 store using the default AWS configuration.
func NewS3(ctx context.Context, bucket, stageDir string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3FromClient(s3.NewFromConfig(cfg), bucket, stageDir), nil
}

// NewS3FromClient creates an S3 store from an existing client. If stageDir
// is empty, os.TempDir() is used for staging downloads.
func NewS3FromClient(client *s3.Client, bucket, stageDir string) *S3 {
	if stageDir == "" {
		stageDir = os.TempDir()
	}
	return &S3{client: client, bucket: bucket, stageDir: stageDir}
}

func (s *S3) key(id, fileName string) string {
	return path.Join(id, fileName)
}

// Prepare stages a local temp file for the download.
func (s *S3) Prepare(_ context.Context, id, name string) (string, error) {
	f, err := os.CreateTemp(s.stageDir, "pdc-"+name+"-*"+TempSuffix)
	if err != nil {
		return "", fmt.Errorf("create staging file for %s: %w", id, err)
	}
	tmpPath := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close staging file for %s: %w", id, err)
	}
	return tmpPath, nil
}

// Resolve lists the resource's key prefix and derives the cursor from dated
// key names. Latest date wins when several dated keys coexist.
func (s *S3) Resolve(ctx context.Context, id string) (time.Time, error) {
	var latest time.Time

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(id + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return time.Time{}, fmt.Errorf("list s3://%s/%s/: %w", s.bucket, id, err)
		}
		for _, obj := range page.Contents {
			fileName := path.Base(aws.ToString(obj.Key))
			if d, ok := parseDatePrefix(fileName); ok && d.After(latest) {
				latest = d
			}
		}
	}
	return latest, nil
}

// Keep uploads the temp file as the permanent undated key and removes any
// dated leftovers for the same base name.
func (s *S3) Keep(ctx context.Context, id, name, tmpPath string) error {
	if err := s.upload(ctx, s.key(id, name), tmpPath); err != nil {
		return fmt.Errorf("keep %s for %s: %w", name, id, err)
	}
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staging file for %s: %w", id, err)
	}
	return s.removeSiblings(ctx, id, name, name)
}

// Promote uploads the temp file under its dated key and removes every other
// current key for the same base name.
func (s *S3) Promote(ctx context.Context, id, name, tmpPath string, latest time.Time) error {
	dated := DatedName(name, latest)
	if err := s.upload(ctx, s.key(id, dated), tmpPath); err != nil {
		return fmt.Errorf("promote %s for %s: %w", dated, id, err)
	}
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staging file for %s: %w", id, err)
	}
	return s.removeSiblings(ctx, id, name, dated)
}

// Discard removes the staged temp file.
func (s *S3) Discard(_ context.Context, _ string, tmpPath string) error {
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard staging file: %w", err)
	}
	return nil
}

func (s *S3) upload(ctx context.Context, key, tmpPath string) error {
	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("open staging file: %w", err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3) removeSiblings(ctx context.Context, id, name, installed string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(id + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list s3://%s/%s/: %w", s.bucket, id, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			fileName := path.Base(key)
			if fileName == installed || !isSibling(fileName, name) {
				continue
			}
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return fmt.Errorf("delete stale s3://%s/%s: %w", s.bucket, key, err)
			}
		}
	}
	return nil
}
