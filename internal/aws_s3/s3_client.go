package aws_s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ZacMelendez/passporter/config"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotClient archives fetched privacy pages as audit evidence of the
// policy text at discovery time.
type SnapshotClient interface {
	WritePage(pageURL string, html string) string
}

type S3SnapshotClient struct {
	client *s3.Client
	cfg    *config.S3Config
	log    *slog.Logger
}

func NewS3SnapshotClient(cfg *config.S3Config, log *slog.Logger) *S3SnapshotClient {
	log.Info("connecting to s3...")
	ctx := context.Background()

	sdkConfig, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		log.Error("failed to load s3 config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// LocalStack does not support `virtual host addressing style` that uses s3 by default.
	// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
	var s3client *s3.Client
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		s3client = s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		s3client = s3.NewFromConfig(sdkConfig)
	}
	log.Info("connected to s3")

	return &S3SnapshotClient{
		client: s3client,
		cfg:    cfg,
		log:    log,
	}
}

// WritePage stores the page body under a hash of its URL and returns the
// object link, or "" when the write failed.
func (sc *S3SnapshotClient) WritePage(pageURL string, html string) string {
	hash := sha256.New()
	hash.Write([]byte(pageURL))
	hashedURL := hex.EncodeToString(hash.Sum(nil))

	s3Key := fmt.Sprintf("%s/%s/%s", sc.cfg.KeyPrefix, hashedURL, "privacy.html")
	_, err := sc.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: &sc.cfg.BucketName,
		Key:    &s3Key,
		Body:   strings.NewReader(html),
	})
	if err != nil {
		sc.log.Error("failed to save page to s3.", slog.String("err", err.Error()))
		return ""
	}
	sc.log.Debug("privacy page saved to s3.")

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", sc.cfg.BucketName, sc.cfg.Region, s3Key)
}
