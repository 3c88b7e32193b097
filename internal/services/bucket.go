package services

import (
  "context"
  "fmt"
  "io"

  "cloud.google.com/go/storage"
  "google.golang.org/api/option"

  "github.com/trackside-org/trackside-backend/internal/logger"
)

type BucketService interface {
  UploadFile(ctx context.Context, key string, r io.Reader, contentType string) error
  GetPublicURL(key string) string
  Close() error
}

type bucketService struct {
  log         *logger.Logger
  client      *storage.Client
  bucketName  string
}

// NewBucketService opens a GCS client. credentialsFile may be empty, in which
// case application default credentials are used.
func NewBucketService(ctx context.Context, log *logger.Logger, bucketName, credentialsFile string) (BucketService, error) {
  serviceLog := log.With("service", "BucketService", "bucket", bucketName)
  if bucketName == "" {
    return nil, fmt.Errorf("missing GCS_BUCKET_NAME")
  }

  var opts []option.ClientOption
  if credentialsFile != "" {
    opts = append(opts, option.WithCredentialsFile(credentialsFile))
  }
  client, err := storage.NewClient(ctx, opts...)
  if err != nil {
    serviceLog.Error("Failed to create GCS client", "error", err)
    return nil, fmt.Errorf("failed to create storage client: %w", err)
  }
  serviceLog.Info("GCS client ready :)")
  return &bucketService{log: serviceLog, client: client, bucketName: bucketName}, nil
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, r io.Reader, contentType string) error {
  bs.log.Info("Uploading object now...", "key", key)
  w := bs.client.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
  w.ContentType = contentType
  w.CacheControl = "public, max-age=300"
  if _, err := io.Copy(w, r); err != nil {
    _ = w.Close()
    bs.log.Error("Failed to write object", "key", key, "error", err)
    return fmt.Errorf("failed to write object %s: %w", key, err)
  }
  if err := w.Close(); err != nil {
    bs.log.Error("Failed to finalize object", "key", key, "error", err)
    return fmt.Errorf("failed to finalize object %s: %w", key, err)
  }
  bs.log.Info("Successfully uploaded object", "key", key)
  return nil
}

func (bs *bucketService) GetPublicURL(key string) string {
  return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}

func (bs *bucketService) Close() error {
  return bs.client.Close()
}
