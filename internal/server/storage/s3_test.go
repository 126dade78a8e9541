package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Craftmatrix-Collab/eFIND-sub000/internal/common"
)

func stubS3Seams(t *testing.T) *string {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	origPut := presignPutObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
	})

	var endpoint string
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		if opts.BaseEndpoint == nil {
			t.Fatalf("BaseEndpoint not set")
		}
		if !opts.UsePathStyle {
			t.Fatalf("path style not enabled")
		}
		endpoint = *opts.BaseEndpoint
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return &s3.PresignClient{}
	}
	return &endpoint
}

func testS3Config() S3Config {
	return S3Config{
		User:         "minioadmin",
		Password:     "minioadmin",
		Bucket:       "efind",
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000",
	}
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	endpoint := stubS3Seams(t)

	s, err := NewS3Store(context.Background(), testS3Config())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "http://127.0.0.1:9000", *endpoint)
}

func TestNewS3Store_LoadError(t *testing.T) {
	stubS3Seams(t)
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := NewS3Store(context.Background(), testS3Config())
	assert.EqualError(t, err, "load-fail")
}

func TestS3Store_PresignPut(t *testing.T) {
	stubS3Seams(t)

	var got *s3.PutObjectInput
	var gotOpts s3.PresignOptions
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		got = in
		for _, fn := range optFns {
			fn(&gotOpts)
		}
		return &v4.PresignedHTTPRequest{
			URL:    "http://127.0.0.1:9000/efind/" + *in.Key + "?X-Amz-Signature=abc",
			Method: http.MethodPut,
			SignedHeader: http.Header{
				"Host":          {"127.0.0.1:9000"},
				"Content-Type":  {"image/jpeg"},
				"If-None-Match": {"*"},
			},
		}, nil
	}

	s, err := NewS3Store(context.Background(), testS3Config())
	require.NoError(t, err)
	fixed := time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	p, err := s.PresignPut(context.Background(), "minutes/2025/05/abc123.jpg", "image/jpeg", 5*time.Minute)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "efind", *got.Bucket)
	assert.Equal(t, "minutes/2025/05/abc123.jpg", *got.Key)
	assert.Equal(t, "image/jpeg", *got.ContentType)
	assert.Equal(t, "*", *got.IfNoneMatch)
	assert.Equal(t, 5*time.Minute, gotOpts.Expires)

	assert.Equal(t, http.MethodPut, p.Method)
	assert.True(t, strings.Contains(p.URL, "X-Amz-Signature"))
	assert.Equal(t, fixed.Add(5*time.Minute), p.ExpiresAt)
	assert.Empty(t, p.Header.Get("Host"))
	assert.Equal(t, "*", p.Header.Get("If-None-Match"))
}

func TestS3Store_PresignPutError(t *testing.T) {
	stubS3Seams(t)
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign-fail")
	}

	s, err := NewS3Store(context.Background(), testS3Config())
	require.NoError(t, err)
	_, err = s.PresignPut(context.Background(), "minutes/2025/05/a.jpg", "image/jpeg", time.Minute)
	assert.ErrorContains(t, err, "sign-fail")
}

type fakeObjects struct {
	headErr error
	getErr  error
	body    string
}

func (f *fakeObjects) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Store_Reads(t *testing.T) {
	ctx := context.Background()

	s := &S3Store{cfg: testS3Config(), objects: &fakeObjects{body: "img"}}
	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	rc, err := s.Open(ctx, "k")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "img", string(b))

	s.objects = &fakeObjects{headErr: &types.NotFound{}, getErr: &types.NoSuchKey{}}
	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Open(ctx, "k")
	assert.ErrorIs(t, err, common.ErrNotFound)

	s.objects = &fakeObjects{headErr: errors.New("boom")}
	_, err = s.Exists(ctx, "k")
	assert.Error(t, err)
}

func TestS3Store_PublicURL(t *testing.T) {
	s := &S3Store{cfg: testS3Config()}
	assert.Equal(t, "http://127.0.0.1:9000/efind/minutes/2025/05/a.jpg", s.PublicURL("minutes/2025/05/a.jpg"))

	s.cfg.PublicBaseURL = "https://cdn.example/"
	assert.Equal(t, "https://cdn.example/minutes/2025/05/a.jpg", s.PublicURL("minutes/2025/05/a.jpg"))
}
