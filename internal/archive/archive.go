// Package archive writes terminal onboardings to object storage as an audit
// trail.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/model"
)

type Archiver interface {
	Archive(ctx context.Context, o *model.DomainOnboarding) error
}

// Key is the object key for an onboarding.
func Key(o *model.DomainOnboarding) string {
	return path.Join("onboardings", o.DealerID, o.ID+".json")
}

type S3Archiver struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

func NewS3Archiver(endpoint, region, accessKey, secretKey, bucket string, logger zerolog.Logger) *S3Archiver {
	return &S3Archiver{
		client: s3.New(s3.Options{
			BaseEndpoint:               aws.String(endpoint),
			Region:                     region,
			Credentials:                credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
			UsePathStyle:               true,
			RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		}),
		bucket: bucket,
		logger: logger.With().Str("component", "archive").Logger(),
	}
}

func (a *S3Archiver) Archive(ctx context.Context, o *model.DomainOnboarding) error {
	if !o.State.Terminal() {
		return fmt.Errorf("archive onboarding %s: state %s is not terminal", o.ID, o.State)
	}
	body, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal onboarding %s: %w", o.ID, err)
	}

	key := Key(o)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Info().Str("onboarding_id", o.ID).Str("key", key).Msg("onboarding archived")
	return nil
}

// Nop is used when no bucket is configured.
type Nop struct{}

func (Nop) Archive(context.Context, *model.DomainOnboarding) error { return nil }
