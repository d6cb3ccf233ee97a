package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// Storage 产物存储接口
type Storage interface {
	// Upload 上传对象，返回可访问的 URL
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)

	// Download 读取对象
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete 删除对象，不存在时视为成功
	Delete(ctx context.Context, key string) error

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// GetStorageType 获取存储类型
	GetStorageType() string
}

// StorageType 存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // 本地文件系统
	StorageTypeOSS   StorageType = "oss"   // 阿里云OSS
	StorageTypeMinIO StorageType = "minio" // MinIO / S3 兼容
)

var contentTypes = map[string]string{
	".txt":  "text/plain",
	".json": "application/json",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

// ContentType 根据扩展名推断 Content-Type
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// MirrorDir 把 dir 下的普通文件上传到 prefix 下，返回 key -> URL
// 单个文件失败不影响其余文件，错误合并返回
func MirrorDir(ctx context.Context, s Storage, prefix, dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	urls := make(map[string]string, len(entries))
	var errs []error
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return urls, err
		}
		key := path.Join(prefix, e.Name())
		url, err := uploadFile(ctx, s, key, filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		urls[key] = url
	}
	return urls, errors.Join(errs...)
}

func uploadFile(ctx context.Context, s Storage, key, fullPath string) (string, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.Upload(ctx, key, f, ContentType(fullPath))
}
