package utils

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

// R2Options are the Cloudflare R2 settings the archive needs.
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
	EventName       string
}

// R2Archive uploads frozen leaderboards as JSON objects.
type R2Archive struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
	prefix     string
}

func NewR2Archive(ctx context.Context, opts R2Options) (*R2Archive, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	cdn := strings.TrimRight(opts.CDNBaseURL, "/")
	if cdn == "" {
		cdn = endpoint + "/" + opts.Bucket
	}
	return &R2Archive{
		client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}),
		bucket:     opts.Bucket,
		cdnBaseURL: cdn,
		prefix:     ArchivePrefix(opts.EventName),
	}, nil
}

// ArchivePrefix turns the event name into a stable object key prefix.
func ArchivePrefix(eventName string) string {
	p := slug.Make(eventName)
	if p == "" {
		return "minigame"
	}
	return p
}

// LeaderboardKey is the object key of a round's frozen leaderboard.
func LeaderboardKey(prefix string, roundNumber int) string {
	return fmt.Sprintf("%s/rounds/%d/leaderboard.json", prefix, roundNumber)
}

// ArchiveLeaderboard uploads payload and returns its public URL.
func (a *R2Archive) ArchiveLeaderboard(ctx context.Context, roundNumber int, payload []byte) (string, error) {
	key := LeaderboardKey(a.prefix, roundNumber)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", a.cdnBaseURL, key), nil
}
