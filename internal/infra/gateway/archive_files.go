package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/concrnt-parallel"
)

var tracer = otel.Tracer("gateway")

// ObjectStore is the subset of *minio.Client archive files are written with.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// ArchiveFiles stores archive files in a bucket. Writes land under
// <owner>/staging/ and are moved to <owner>/ on Commit.
type ArchiveFiles struct {
	client ObjectStore
	bucket string
}

func NewArchiveFiles(client ObjectStore, bucket string) *ArchiveFiles {
	return &ArchiveFiles{
		client: client,
		bucket: bucket,
	}
}

const stagingDir = "staging"

func (g *ArchiveFiles) WriteFile(ctx context.Context, archive, name string, data []byte) error {
	ctx, span := tracer.Start(ctx, "ArchiveFiles.Gateway.WriteFile")
	defer span.End()

	owner, err := parallel.Owner(archive)
	if err != nil {
		return err
	}
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid file name %q", name)
	}

	object := path.Join(owner, stagingDir, name)
	_, err = g.client.PutObject(ctx, g.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to stage %s: %w", object, err)
	}
	return nil
}

// Commit publishes every staged file of archive.
func (g *ArchiveFiles) Commit(ctx context.Context, archive string) error {
	ctx, span := tracer.Start(ctx, "ArchiveFiles.Gateway.Commit")
	defer span.End()

	owner, err := parallel.Owner(archive)
	if err != nil {
		return err
	}

	prefix := path.Join(owner, stagingDir) + "/"
	for object := range g.client.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			span.RecordError(object.Err)
			return fmt.Errorf("failed to list staged files of %s: %w", owner, object.Err)
		}

		target := path.Join(owner, strings.TrimPrefix(object.Key, prefix))
		_, err := g.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: g.bucket, Object: target},
			minio.CopySrcOptions{Bucket: g.bucket, Object: object.Key},
		)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to commit %s: %w", object.Key, err)
		}
		if err := g.client.RemoveObject(ctx, g.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to clear %s: %w", object.Key, err)
		}

		slog.DebugContext(ctx, "committed archive file",
			slog.String("module", "gateway"),
			slog.String("object", target),
		)
	}
	return nil
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
