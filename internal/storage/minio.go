package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var Client *minio.Client
var BucketName string

func Init() error {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		// No storage configured - this is OK, artifacts stay on local disk
		return fmt.Errorf("no MinIO configuration")
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	BucketName = os.Getenv("MINIO_BUCKET")
	if BucketName == "" {
		BucketName = "mokuro-artifacts"
	}

	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	var err error
	Client, err = minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := Client.BucketExists(ctx, BucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", BucketName)
	}

	return nil
}

// UploadArtifact stores a completed job's aggregate JSON.
// Path format: jobs/YYYY/MM/{job_id}.mokuro
func UploadArtifact(ctx context.Context, jobID string, data []byte) (string, error) {
	now := time.Now()
	objectName := fmt.Sprintf("jobs/%d/%02d/%s.mokuro", now.Year(), now.Month(), jobID)

	_, err := Client.PutObject(ctx, BucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	// Return the full path for storage in the job record
	return fmt.Sprintf("%s/%s", BucketName, objectName), nil
}

// GetPresignedURL generates a presigned URL for downloading an artifact
func GetPresignedURL(ctx context.Context, objectPath string) (string, error) {
	url, err := Client.PresignedGetObject(ctx, BucketName, trimBucketPrefix(objectPath), 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// DeleteArtifact removes a stored artifact
func DeleteArtifact(ctx context.Context, objectPath string) error {
	return Client.RemoveObject(ctx, BucketName, trimBucketPrefix(objectPath), minio.RemoveObjectOptions{})
}

func trimBucketPrefix(objectPath string) string {
	return strings.TrimPrefix(objectPath, BucketName+"/")
}
