package evaluation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrSourceNotFound indicates the question bank does not exist at the source.
var ErrSourceNotFound = errors.New("question bank source not found")

// Source provides the raw bytes of a question bank.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads a bank from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Open(context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.Path)
		}
		return nil, fmt.Errorf("open question bank %s: %w", s.Path, err)
	}
	return f, nil
}

func (s FileSource) String() string { return s.Path }

// ObjectGetter is the subset of the S3 client used to fetch banks.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a bank stored as an object in S3 or an S3 compatible store.
type S3Source struct {
	Client ObjectGetter
	Bucket string
	Key    string
}

func (s S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("s3 client not configured for %s", s.String())
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.String())
		}
		return nil, fmt.Errorf("get question bank %s: %w", s.String(), err)
	}
	return out.Body, nil
}

func (s S3Source) String() string {
	return fmt.Sprintf("s3://%s/%s", s.Bucket, s.Key)
}

// ParseS3Ref splits an s3://bucket/key reference.
func ParseS3Ref(ref string) (string, string, error) {
	const prefix = "s3://"
	if !strings.HasPrefix(ref, prefix) {
		return "", "", fmt.Errorf("bad s3 ref (missing s3://): %q", ref)
	}
	rest := strings.TrimPrefix(ref, prefix)
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", fmt.Errorf("bad s3 ref (need bucket/key): %q", ref)
	}
	return rest[:slash], rest[slash+1:], nil
}

// SourceFromRef returns an S3Source for s3:// references and a FileSource otherwise.
func SourceFromRef(ref string, client ObjectGetter) (Source, error) {
	if !strings.HasPrefix(ref, "s3://") {
		return FileSource{Path: ref}, nil
	}
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return nil, err
	}
	return S3Source{Client: client, Bucket: bucket, Key: key}, nil
}
