package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/coursemedia/captionburn/pkg/models"
)

const (
	// DefaultPartSize is the multipart chunk size for large uploads (10MB)
	DefaultPartSize = 10 * 1024 * 1024

	// MaxConcurrentParts limits concurrent multipart uploads
	MaxConcurrentParts = 10

	// parallelUploadThreshold switches video uploads to multipart (50MB)
	parallelUploadThreshold = 50 * 1024 * 1024
)

// Artifacts describes where a finished job's outputs live in the bucket.
type Artifacts struct {
	SubtitleObject string `json:"subtitle_object"`
	OutputObject   string `json:"output_object"`
}

// SubtitleObjectKey returns the bucket key for a job's SRT file.
func SubtitleObjectKey(jobID string) string {
	return fmt.Sprintf("jobs/%s/subtitles.srt", jobID)
}

// OutputObjectKey returns the bucket key for a job's burned video.
func OutputObjectKey(jobID string) string {
	return fmt.Sprintf("jobs/%s/output.mp4", jobID)
}

// UploadRunArtifacts uploads a finished run's subtitle file and burned video
// under the job's prefix. Burned videos are usually large, so they go up as
// concurrent multipart uploads.
func (s *Storage) UploadRunArtifacts(ctx context.Context, jobID string, result *models.RunResult) (*Artifacts, error) {
	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	artifacts := &Artifacts{
		SubtitleObject: SubtitleObjectKey(jobID),
		OutputObject:   OutputObjectKey(jobID),
	}

	if err := s.UploadFile(ctx, artifacts.SubtitleObject, result.SubtitlePath); err != nil {
		return nil, fmt.Errorf("upload subtitles: %w", err)
	}

	if err := s.uploadVideo(ctx, artifacts.OutputObject, result.OutputVideoPath); err != nil {
		return nil, fmt.Errorf("upload output video: %w", err)
	}

	return artifacts, nil
}

func (s *Storage) uploadVideo(ctx context.Context, objectName, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	opts := minio.PutObjectOptions{
		ContentType: getContentType(filePath),
	}
	if info.Size() >= parallelUploadThreshold {
		opts.PartSize = DefaultPartSize
		opts.NumThreads = MaxConcurrentParts
	}

	_, err = s.client.FPutObject(ctx, s.bucketName, objectName, filePath, opts)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// DeleteRunArtifacts removes a job's stored outputs, typically when a job is
// purged or re-run.
func (s *Storage) DeleteRunArtifacts(ctx context.Context, jobID string) error {
	objectsCh := make(chan minio.ObjectInfo)

	go func() {
		defer close(objectsCh)
		for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
			Prefix:    fmt.Sprintf("jobs/%s/", jobID),
			Recursive: true,
		}) {
			if object.Err != nil {
				return
			}
			objectsCh <- object
		}
	}()

	for err := range s.client.RemoveObjects(ctx, s.bucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		if err.Err != nil {
			return fmt.Errorf("failed to delete %s: %w", err.ObjectName, err.Err)
		}
	}

	return nil
}

// ArtifactURLs returns presigned download URLs for a job's outputs.
func (s *Storage) ArtifactURLs(ctx context.Context, jobID string, expiry time.Duration) (subtitleURL, outputURL string, err error) {
	subtitleURL, err = s.presign(ctx, SubtitleObjectKey(jobID), expiry)
	if err != nil {
		return "", "", err
	}
	outputURL, err = s.presign(ctx, OutputObjectKey(jobID), expiry)
	if err != nil {
		return "", "", err
	}
	return subtitleURL, outputURL, nil
}

func (s *Storage) presign(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate URL: %w", err)
	}
	return url.String(), nil
}
