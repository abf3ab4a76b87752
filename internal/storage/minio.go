// Package storage keeps raw legacy coordinate blobs in a MinIO bucket so a
// migrated template can still be inspected or re-derived later.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docflow/internal/config"
)

// ErrObjectNotFound 对象不存在。
var ErrObjectNotFound = errors.New("object not found")

const jsonContentType = "application/json"

// Client 以 JSON 对象的形式读写单个 Bucket。
type Client struct {
	api    *minio.Client
	bucket string
}

// NewClient 连接 MinIO 并确保 Bucket 存在，启动探测最多等待 5 秒。
func NewClient(ctx context.Context, cfg config.MinIOConfig) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := api.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := api.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Client{api: api, bucket: cfg.Bucket}, nil
}

// PutJSON 写入 JSON 对象，meta 作为 x-amz-meta-* 保存。同键覆盖。
func (c *Client) PutJSON(ctx context.Context, key string, data []byte, meta map[string]string) error {
	_, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  jsonContentType,
		UserMetadata: meta,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// GetJSON 读取对象全文，对象不存在时返回 ErrObjectNotFound。
func (c *Client) GetJSON(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapObjectError(key, err)
	}
	defer obj.Close()

	// GetObject 是惰性的，对象不存在的错误在第一次读取时才出现。
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapObjectError(key, err)
	}
	return data, nil
}

func mapObjectError(key string, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("object %q: %w", key, ErrObjectNotFound)
	}
	return fmt.Errorf("get object %q: %w", key, err)
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch strings.ToLower(resp.Code) {
		case "nosuchkey", "notfound":
			return true
		}
	}
	// 部分网关只返回文本。
	return strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}
