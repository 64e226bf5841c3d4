package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tapcast/tapcast/internal/config"
)

// createS3Client creates an S3 client from the archive settings.
func createS3Client(snap *config.Snapshot) (*s3.Client, error) {
	creds := credentials.NewStaticCredentialsProvider(
		snap.S3AccessKey,
		snap.S3SecretKey,
		"",
	)

	region := snap.S3Region
	if region == "" {
		region = "auto"
	}

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}

	if snap.S3Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(snap.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...), nil
}

// uploadFile puts one session file into the configured bucket under a
// date-based prefix.
func uploadFile(ctx context.Context, client *s3.Client, bucket, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close session file", "path", path, "error", err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat session file: %w", err)
	}

	key := fmt.Sprintf("sessions/%s/%s",
		time.Now().UTC().Format("2006/01/02"),
		filepath.Base(path))

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		return fmt.Errorf("upload session file: %w", err)
	}

	slog.Info("session file uploaded", "bucket", bucket, "key", key, "bytes", info.Size())
	return nil
}

// TestS3Connection verifies bucket access by uploading and deleting a
// probe object.
func TestS3Connection(snap *config.Snapshot) error {
	if !snap.HasS3() {
		return fmt.Errorf("S3 is not configured")
	}

	client, err := createS3Client(snap)
	if err != nil {
		return fmt.Errorf("create S3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("tapcast connection test")

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(snap.S3Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(snap.S3Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
