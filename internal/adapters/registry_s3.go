package adapters

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"comlinepm/internal/ports"
	"comlinepm/internal/types"
)

// s3DigestMetadataKey holds the archive digest on every stored object, so a
// re-push can be recognised as identical.
const s3DigestMetadataKey = "digest"

// S3ObjectAPI is the subset of the S3 client used for publishing.
type S3ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// RegistryS3Adapter stores packages as s3://<bucket>/<prefix>/<namespace>/<version>.tar.gz.
type RegistryS3Adapter struct {
	Client S3ObjectAPI
	Bucket string
	Prefix string
}

// S3Settings carries what is needed to build an S3 client without the
// shared AWS config loader.
type S3Settings struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func NewRegistryS3Adapter(client S3ObjectAPI, bucket string, prefix string) RegistryS3Adapter {
	return RegistryS3Adapter{
		Client: client,
		Bucket: bucket,
		Prefix: strings.Trim(prefix, "/"),
	}
}

// NewRegistryS3AdapterFromURL parses s3://bucket/prefix and builds a client
// from settings.
func NewRegistryS3AdapterFromURL(raw string, settings S3Settings) (RegistryS3Adapter, error) {
	bucket, prefix, err := ParseS3URL(raw)
	if err != nil {
		return RegistryS3Adapter{}, err
	}
	return NewRegistryS3Adapter(NewS3Client(settings), bucket, prefix), nil
}

func NewS3Client(settings S3Settings) *s3.Client {
	region := strings.TrimSpace(settings.Region)
	if region == "" {
		region = "us-east-1"
	}
	options := s3.Options{
		Region: region,
	}
	if settings.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     settings.AccessKeyID,
			SecretAccessKey: settings.SecretAccessKey,
			SessionToken:    settings.SessionToken,
			Source:          "comlinepm-env",
		}
		options.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	}
	if endpoint := strings.TrimSpace(settings.Endpoint); endpoint != "" {
		options.BaseEndpoint = aws.String(endpoint)
		options.UsePathStyle = true
	}
	return s3.New(options)
}

func ParseS3URL(raw string) (string, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme != "s3" || parsed.Host == "" {
		return "", "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid s3 registry url " + raw).
			WithCause(err)
	}
	return parsed.Host, strings.Trim(parsed.Path, "/"), nil
}

func (a RegistryS3Adapter) Push(ctx context.Context, target types.RegistryTarget, session types.Session, upload types.PackageUpload) (types.PushReceipt, error) {
	if a.Client == nil || strings.TrimSpace(a.Bucket) == "" {
		return types.PushReceipt{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("s3 registry is not configured")
	}
	if err := validateUploadIdentity(upload); err != nil {
		return types.PushReceipt{}, err
	}
	key := a.objectKey(upload.Namespace, upload.Version)
	digest, err := UploadDigest(upload)
	if err != nil {
		return types.PushReceipt{}, err
	}
	receipt := types.PushReceipt{
		Registry: target.Name,
		Location: "s3://" + a.Bucket + "/" + key,
	}

	head, err := a.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		if head == nil || head.Metadata[s3DigestMetadataKey] != digest {
			return types.PushReceipt{}, errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg(upload.Namespace + "@" + upload.Version + " already published with a different archive")
		}
		if head.ETag != nil {
			receipt.RemoteID = strings.Trim(*head.ETag, `"`)
		}
		log.Debug().Str("registry", target.Name).Str("location", receipt.Location).Msg("identical package already uploaded")
		return receipt, nil
	}
	var notFound *s3types.NotFound
	if !errors.As(err, &notFound) {
		return types.PushReceipt{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to check s3 object").
			WithCause(err)
	}

	file, err := os.Open(upload.Archive.Path)
	if err != nil {
		return types.PushReceipt{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open archive").
			WithCause(err)
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/gzip"),
		Metadata: map[string]string{
			"namespace":         upload.Namespace,
			"version":           upload.Version,
			"publisher":         session.Subject,
			s3DigestMetadataKey: digest,
		},
	}
	if upload.Archive.Size > 0 {
		input.ContentLength = aws.Int64(upload.Archive.Size)
	}
	out, err := a.Client.PutObject(ctx, input)
	if err != nil {
		return types.PushReceipt{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("s3 upload failed").
			WithCause(err)
	}
	if out != nil && out.ETag != nil {
		receipt.RemoteID = strings.Trim(*out.ETag, `"`)
	}
	log.Debug().Str("registry", target.Name).Str("location", receipt.Location).Msg("package uploaded")
	return receipt, nil
}

func (a RegistryS3Adapter) objectKey(namespace string, version string) string {
	return path.Join(a.Prefix, namespace, version+".tar.gz")
}

var _ ports.PublisherPort = RegistryS3Adapter{}
