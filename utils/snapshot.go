package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var exportClient *s3.Client
var exportBucket string

// InitSnapshotExport wires the object storage client used for billing
// snapshot exports. Targets R2 but any S3-compatible endpoint works.
// Export stays disabled when the credentials are not configured.
func InitSnapshotExport() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	exportBucket = os.Getenv("R2_BUCKET_NAME")
	if accountID == "" || accessKeyID == "" || accessKeySecret == "" || exportBucket == "" {
		exportBucket = ""
		return nil
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load export config: %w", err)
	}

	exportClient = s3.NewFromConfig(cfg)
	return nil
}

func SnapshotExportEnabled() bool {
	return exportClient != nil && exportBucket != ""
}

// UploadBillingSnapshot puts one reconciliation CSV under the given key.
func UploadBillingSnapshot(key string, body []byte) error {
	_, err := exportClient.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(exportBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}
