package leonardo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrEmptyDownload 下载到的内容为空
var ErrEmptyDownload = errors.New("downloaded asset is empty")

var downloadClient = &http.Client{Timeout: 5 * time.Minute}

// FetchAndStore 下载资产到 dest
// 先写入同目录临时文件，成功后再 rename，失败时不会留下半截文件
func FetchAndStore(ctx context.Context, assetURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to download asset: status code %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write asset: %w", err)
	}
	if n == 0 {
		return 0, ErrEmptyDownload
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return 0, fmt.Errorf("move asset into place: %w", err)
	}

	log.Debug().Str("url", assetURL).Str("path", dest).Int64("size", n).Msg("资产下载完成")
	return n, nil
}

// ExtensionFromURL 从 URL 路径推断文件扩展名（带点），无法推断时返回 fallback
func ExtensionFromURL(assetURL, fallback string) string {
	u, err := url.Parse(assetURL)
	if err != nil {
		return fallback
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		return fallback
	}
	return ext
}
