package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Exporter uploads gzip-compressed point-in-time copies of the document
// store to S3-compatible object storage, in the spirit of a backup
// service that archives-then-uploads rather than streaming writes
// directly — this keeps the export path decoupled from write traffic.
type Exporter struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

func NewExporter(client *s3.Client, bucket, prefix string, log zerolog.Logger) *Exporter {
	return &Exporter{client: client, bucket: bucket, prefix: prefix, log: log.With().Str("component", "store_export").Logger()}
}

// ExportCollection gzips payload as given and uploads it under
// <prefix>/<collection>-<timestamp>.msgpack.gz; the key suffix is the same
// whatever encoding the caller used for payload.
func (e *Exporter) ExportCollection(ctx context.Context, collection string, payload []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return "", fmt.Errorf("store: gzip export: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("store: close gzip writer: %w", err)
	}

	key := fmt.Sprintf("%s/%s-%s.msgpack.gz", e.prefix, collection, time.Now().UTC().Format("2006-01-02-150405"))
	uploader := manager.NewUploader(e.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", fmt.Errorf("store: upload export: %w", err)
	}
	e.log.Info().Str("collection", collection).Str("key", key).Int("bytes", buf.Len()).Msg("exported snapshot")
	return key, nil
}

// ExportInfo describes one object under the export prefix.
type ExportInfo struct {
	Key       string
	Timestamp time.Time
	SizeBytes int64
}

// List returns every export for collection, newest first.
func (e *Exporter) List(ctx context.Context, collection string) ([]ExportInfo, error) {
	prefix := fmt.Sprintf("%s/%s-", e.prefix, collection)
	out, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("store: list exports: %w", err)
	}

	infos := make([]ExportInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, prefix), ".msgpack.gz")
		ts, err := time.Parse("2006-01-02-150405", name)
		if err != nil {
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		infos = append(infos, ExportInfo{Key: *obj.Key, Timestamp: ts, SizeBytes: size})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp.After(infos[j].Timestamp) })
	return infos, nil
}

// Rotate deletes exports for collection older than retentionDays, always
// keeping at least minKeep of the newest ones.
func (e *Exporter) Rotate(ctx context.Context, collection string, retentionDays, minKeep int) (int, error) {
	infos, err := e.List(ctx, collection)
	if err != nil {
		return 0, err
	}
	if len(infos) <= minKeep || retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted := 0
	for i, info := range infos {
		if i < minKeep || !info.Timestamp.Before(cutoff) {
			continue
		}
		_, err := e.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(e.bucket),
			Key:    aws.String(info.Key),
		})
		if err != nil {
			e.log.Error().Err(err).Str("key", info.Key).Msg("failed to delete stale export")
			continue
		}
		deleted++
	}
	return deleted, nil
}
