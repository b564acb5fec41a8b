package blob

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/resumeiq/pipeline/internal/common"
)

// S3Gateway stores documents in an S3-compatible bucket and mints presigned
// GET URLs. With a role ARN configured the client runs on STS assume-role,
// so the worker process only ever holds short-lived delegated credentials
// rather than a reusable master key.
type S3Gateway struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// NewS3Gateway builds the gateway from config.
func NewS3Gateway(cfg common.BlobConfig, log *slog.Logger) (*S3Gateway, error) {
	if log == nil {
		log = slog.Default()
	}

	var creds *credentials.Credentials
	if cfg.RoleARN != "" {
		stsHost := cfg.STSHost
		if stsHost == "" {
			stsHost = cfg.Endpoint
		}
		var err error
		creds, err = credentials.NewSTSAssumeRole(stsHost, credentials.STSAssumeRoleOptions{
			AccessKey:       cfg.AccessKey,
			SecretKey:       cfg.SecretKey,
			RoleARN:         cfg.RoleARN,
			RoleSessionName: "resume-pipeline-worker",
		})
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "sts assume role", err)
		}
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "create s3 client", err)
	}

	return &S3Gateway{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (g *S3Gateway) Upload(ctx context.Context, ownerID, fileName string, data []byte) (string, error) {
	key := objectKey(ownerID, fileName)
	_, err := g.client.PutObject(
		ctx,
		g.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	if err != nil {
		g.log.Error("blob upload failed", "owner_id", ownerID, "err", err)
		return "", common.WrapError(err, "s3 put object")
	}
	g.log.Info("blob stored", "owner_id", ownerID, "key", key, "bytes", len(data))
	return key, nil
}

func (g *S3Gateway) MintReadURL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	presigned, err := g.client.PresignedGetObject(ctx, g.bucket, ref, ttl, url.Values{})
	if err != nil {
		g.log.Error("presign failed", "key", ref, "err", err)
		return "", common.WrapError(err, "presigned get object")
	}
	return presigned.String(), nil
}
