package s3bucket

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/krathor2212/medcrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeS3Client keeps objects in memory and pages listings two keys at a time.
type fakeS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{objects: make(map[string][]byte)}
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(params.Key)
	if _, exists := f.objects[key]; exists && aws.ToString(params.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	f.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	data, ok := f.objects[aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(params.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(params.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

// mockS3Client is a testify mock for failure paths.
type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newCrypto(t *testing.T, files medcrypt.FileStore) (*medcrypt.Crypto, *medcrypt.FixedClock) {
	t.Helper()
	clock := medcrypt.NewFixedClock(epoch)
	c, err := medcrypt.NewTestCrypto(medcrypt.WithFileStore(files), medcrypt.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func TestNewFileStore_Validation(t *testing.T) {
	_, err := NewFileStore(nil, "bucket", "")
	assert.ErrorIs(t, err, medcrypt.ErrInvalidConfiguration)

	_, err = NewFileStore(newFakeS3Client(), "", "")
	assert.ErrorIs(t, err, medcrypt.ErrInvalidConfiguration)
}

func TestFileStore_RoundTrip(t *testing.T) {
	client := newFakeS3Client()
	store, err := NewFileStore(client, "medical-files", "/records/")
	require.NoError(t, err)
	c, clock := newCrypto(t, store)
	ctx := context.Background()

	priv, err := c.NewKeyPairGenerator().Generate(ctx)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 5; i++ {
		data := bytes.Repeat([]byte{byte(i)}, 100*(i+1))
		file, err := c.StoreFile(ctx, medcrypt.FileInput{OwnerID: "p1", MimeType: "application/dicom", Data: data}, &priv.PublicKey)
		require.NoError(t, err)
		ids = append(ids, file.ID)
		clock.Advance(time.Minute)
	}

	_, ok := client.objects["records/p1/"+ids[0]+".json"]
	assert.True(t, ok, "object key layout")

	files, err := c.ListFiles(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, files, 5)
	for i, f := range files {
		assert.Equal(t, ids[i], f.ID)
	}

	got, err := c.OpenFile(ctx, "p1", ids[4], priv)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{4}, 500), got)

	_, err = store.GetFile(ctx, "p2", ids[0])
	assert.ErrorIs(t, err, medcrypt.ErrNotFound)

	_, err = store.GetFile(ctx, "p1", "../p2/x")
	assert.ErrorIs(t, err, medcrypt.ErrNotFound)

	none, err := store.ListFiles(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileStore_PutRejectsPathIDs(t *testing.T) {
	store, err := NewFileStore(newFakeS3Client(), "bucket", "")
	require.NoError(t, err)

	err = store.PutFile(context.Background(), &medcrypt.EncryptedFile{ID: "a/b", OwnerID: "p1"})
	assert.ErrorIs(t, err, medcrypt.ErrInvalidArgument)
	err = store.PutFile(context.Background(), nil)
	assert.ErrorIs(t, err, medcrypt.ErrInvalidArgument)
}

func TestFileStore_PutRejectsExistingID(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3Client()
	store, err := NewFileStore(client, "bucket", "records")
	require.NoError(t, err)

	original := &medcrypt.EncryptedFile{
		ID:           "f1",
		OwnerID:      "alice",
		OriginalSize: 4,
		Payload:      medcrypt.EncryptedPayload{Kind: medcrypt.PayloadSingle},
	}
	require.NoError(t, store.PutFile(ctx, original))

	replacement := *original
	replacement.OriginalSize = 99
	err = store.PutFile(ctx, &replacement)
	assert.ErrorIs(t, err, medcrypt.ErrFileExists)
	assert.False(t, medcrypt.IsRetryableError(err))

	got, err := store.GetFile(ctx, "alice", "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.OriginalSize)
}

func TestFileStore_ClientFailures(t *testing.T) {
	ctx := context.Background()
	unavailable := errors.New("connection reset")

	t.Run("upload", func(t *testing.T) {
		client := &mockS3Client{}
		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "p1/f1.json" &&
				aws.ToString(in.IfNoneMatch) == "*"
		})).Return(nil, unavailable)
		store, err := NewFileStore(client, "bucket", "")
		require.NoError(t, err)

		err = store.PutFile(ctx, &medcrypt.EncryptedFile{
			ID:      "f1",
			OwnerID: "p1",
			Payload: medcrypt.EncryptedPayload{Kind: medcrypt.PayloadSingle},
		})
		assert.ErrorIs(t, err, medcrypt.ErrDatabaseUnavailable)
		assert.True(t, medcrypt.IsRetryableError(err))
		client.AssertExpectations(t)
		client.AssertNumberOfCalls(t, "PutObject", 3)
	})

	t.Run("upload recovers", func(t *testing.T) {
		client := &mockS3Client{}
		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, unavailable).Once()
		client.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil).Once()
		store, err := NewFileStore(client, "bucket", "")
		require.NoError(t, err)

		err = store.PutFile(ctx, &medcrypt.EncryptedFile{
			ID:      "f1",
			OwnerID: "p1",
			Payload: medcrypt.EncryptedPayload{Kind: medcrypt.PayloadSingle},
		})
		require.NoError(t, err)
		client.AssertNumberOfCalls(t, "PutObject", 2)
	})

	t.Run("download", func(t *testing.T) {
		client := &mockS3Client{}
		client.On("GetObject", mock.Anything, mock.Anything).Return(nil, unavailable)
		store, err := NewFileStore(client, "bucket", "")
		require.NoError(t, err)

		_, err = store.GetFile(ctx, "p1", "f1")
		assert.ErrorIs(t, err, medcrypt.ErrDatabaseUnavailable)
		assert.ErrorIs(t, err, unavailable)
	})

	t.Run("corrupt object", func(t *testing.T) {
		client := &mockS3Client{}
		client.On("GetObject", mock.Anything, mock.Anything).
			Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("{not json"))}, nil)
		store, err := NewFileStore(client, "bucket", "")
		require.NoError(t, err)

		_, err = store.GetFile(ctx, "p1", "f1")
		assert.ErrorIs(t, err, medcrypt.ErrInvalidPayload)
		client.AssertNumberOfCalls(t, "GetObject", 1)
	})

	t.Run("list", func(t *testing.T) {
		client := &mockS3Client{}
		client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(nil, unavailable)
		store, err := NewFileStore(client, "bucket", "")
		require.NoError(t, err)

		_, err = store.ListFiles(ctx, "p1")
		assert.ErrorIs(t, err, medcrypt.ErrDatabaseUnavailable)
	})
}

func TestFileStore_Ping(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(newFakeS3Client(), "bucket", "records")
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))
	assert.Equal(t, "s3:bucket", store.Breaker().Name())

	client := &mockS3Client{}
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToInt32(in.MaxKeys) == 1 && aws.ToString(in.Prefix) == "records"
	})).Return(nil, errors.New("access denied"))
	store, err = NewFileStore(client, "bucket", "records")
	require.NoError(t, err)
	assert.ErrorIs(t, store.Ping(ctx), medcrypt.ErrDatabaseUnavailable)
	client.AssertExpectations(t)
}
