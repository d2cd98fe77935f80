// Package s3bucket stores encrypted patient files as JSON objects in an S3
// bucket. Grants, audit entries and key pairs stay in the main store.
package s3bucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/krathor2212/medcrypt"
	"github.com/krathor2212/medcrypt/internal/reliability"
)

// AWSS3Client is the subset of the S3 API the file store needs.
type AWSS3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config selects the bucket and client settings.
type Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint overrides the S3 endpoint, for MinIO or LocalStack. Path-style
	// addressing is used when it is set.
	Endpoint string `yaml:"endpoint"`
}

// FileStore implements medcrypt.FileStore on S3.
type FileStore struct {
	client AWSS3Client
	bucket string
	prefix string
	guard  *reliability.Guard
}

var _ medcrypt.FileStore = (*FileStore)(nil)

// NewFileStore creates a store over an existing client.
func NewFileStore(client AWSS3Client, bucket, prefix string) (*FileStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: S3 client is nil", medcrypt.ErrInvalidConfiguration)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: S3 bucket is required", medcrypt.ErrInvalidConfiguration)
	}
	return &FileStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		guard:  reliability.NewDefaultGuard("s3:" + bucket),
	}, nil
}

// New loads the default AWS configuration and creates a store for cfg.
//
// Credentials come from the usual AWS chain: environment variables, shared
// config files or an instance role.
func New(ctx context.Context, cfg Config) (*FileStore, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %w", medcrypt.ErrInvalidConfiguration, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewFileStore(client, cfg.Bucket, cfg.Prefix)
}

// Ping lists at most one key under the prefix to check bucket access.
func (s *FileStore) Ping(ctx context.Context) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("%w: bucket '%s': %w", medcrypt.ErrDatabaseUnavailable, s.bucket, err)
	}
	return nil
}

// Breaker exposes the circuit breaker guarding S3 calls.
func (s *FileStore) Breaker() *reliability.CircuitBreaker { return s.guard.Breaker() }

func (s *FileStore) ownerPrefix(ownerID string) string {
	return path.Join(s.prefix, ownerID) + "/"
}

func (s *FileStore) objectKey(ownerID, fileID string) string {
	return s.ownerPrefix(ownerID) + fileID + ".json"
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\\") && id != "." && id != ".."
}

// PutFile writes the file as <prefix>/<owner>/<id>.json. The write is
// conditional on the object not existing, so an existing ID fails with
// ErrFileExists. Transient S3 failures are retried with backoff.
func (s *FileStore) PutFile(ctx context.Context, file *medcrypt.EncryptedFile) error {
	if file == nil || !validID(file.ID) || !validID(file.OwnerID) {
		return fmt.Errorf("%w: file needs an id and owner without path separators", medcrypt.ErrInvalidArgument)
	}
	body, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode file '%s': %w", file.ID, err)
	}

	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.objectKey(file.OwnerID, file.ID)),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
			IfNoneMatch: aws.String("*"),
			Metadata: map[string]string{
				"owner-id":  file.OwnerID,
				"mime-type": file.MimeType,
			},
		})
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: file '%s'", medcrypt.ErrFileExists, file.ID)
		}
		if err != nil {
			return fmt.Errorf("%w: failed to upload file '%s': %w", medcrypt.ErrDatabaseUnavailable, file.ID, err)
		}
		return nil
	})
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}

// GetFile downloads and decodes one file.
func (s *FileStore) GetFile(ctx context.Context, ownerID, fileID string) (*medcrypt.EncryptedFile, error) {
	if !validID(ownerID) || !validID(fileID) {
		return nil, fmt.Errorf("%w: file '%s'", medcrypt.ErrNotFound, fileID)
	}
	return s.get(ctx, s.objectKey(ownerID, fileID))
}

func (s *FileStore) get(ctx context.Context, key string) (*medcrypt.EncryptedFile, error) {
	var out *s3.GetObjectOutput
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return fmt.Errorf("%w: object '%s'", medcrypt.ErrNotFound, key)
			}
			return fmt.Errorf("%w: failed to download '%s': %w", medcrypt.ErrDatabaseUnavailable, key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	var file medcrypt.EncryptedFile
	if err := json.NewDecoder(out.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: object '%s': %w", medcrypt.ErrInvalidPayload, key, err)
	}
	return &file, nil
}

// ListFiles downloads every file under the owner's prefix, oldest first.
func (s *FileStore) ListFiles(ctx context.Context, ownerID string) ([]*medcrypt.EncryptedFile, error) {
	if !validID(ownerID) {
		return nil, nil
	}

	var files []*medcrypt.EncryptedFile
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.ownerPrefix(ownerID)),
	})
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			var err error
			if page, err = paginator.NextPage(ctx); err != nil {
				return fmt.Errorf("%w: failed to list files for '%s': %w", medcrypt.ErrDatabaseUnavailable, ownerID, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			file, err := s.get(ctx, key)
			if err != nil {
				return nil, err
			}
			files = append(files, file)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})
	return files, nil
}
