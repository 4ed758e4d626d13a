package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/SatsFox/internal/pkg/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// ObjectPutter is the subset of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes paid events to an S3 bucket.
type Archive struct {
	client ObjectPutter
	bucket string
}

// New creates an archive over an existing client.
func New(client ObjectPutter, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// NewFromConfig builds an S3 client from cfg.
func NewFromConfig(ctx context.Context, cfg *Config) (*Archive, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("S3 event archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[S3Archive] Archiving paid events to bucket: %s", cfg.BucketName)
	return New(client, cfg.BucketName), nil
}

// Listener returns an event hub listener that stores invoice-paid events.
// Other event types are ignored.
func (a *Archive) Listener() events.Listener {
	return func(e events.PayEvent) error {
		if e.Type != events.TypeInvoicePaid {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return a.Store(ctx, e)
	}
}

// Store writes e as a JSON object.
func (a *Archive) Store(ctx context.Context, e events.PayEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := ObjectKey(e.ProviderRef, e.Time())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return nil
}
