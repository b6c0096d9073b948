// Package r2 封装 Cloudflare R2（S3 兼容）对象存储上传
package r2

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"relay_bot/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Config 定义 R2 连接配置
type Config struct {
	Endpoint        string // https://<account>.r2.cloudflarestorage.com
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client 对象上传客户端，连续失败时熔断
type Client struct {
	api     putObjectAPI
	bucket  string
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewClient 创建 R2 客户端
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("R2 endpoint and bucket are required")
	}

	awsCfg := aws.Config{
		Region:      "auto",
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return newClient(api, cfg.Bucket), nil
}

func newClient(api putObjectAPI, bucket string) *Client {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "r2-upload",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L().Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Client{api: api, bucket: bucket, breaker: breaker}
}

// Put 上传对象
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(body),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(body))),
		})
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}
