package verify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logger"
)

// Evidence 本地化后的证据文件
type Evidence struct {
	Path    string // 本地文件路径
	cleanup func()
}

// Cleanup 释放临时文件；对本进程托管的上传文件为空操作
func (e *Evidence) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

var evidenceHTTPClient = &http.Client{Timeout: 60 * time.Second}

// FetchEvidence 将视频URL解析为本地可读文件。
// 指向本进程静态目录的URL直接读盘，其余URL下载到临时文件。
func FetchEvidence(videoUrl string, cfg config.StorageConfig) (*Evidence, error) {
	localPrefix := strings.TrimSuffix(cfg.BaseUrl, "/") + "/static/uploads/"
	if strings.HasPrefix(videoUrl, localPrefix) {
		name := filepath.Base(strings.TrimPrefix(videoUrl, localPrefix))
		path := filepath.Join(cfg.UploadDir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("local evidence file not found: %w", err)
		}
		logger.Debug("Reading local evidence file: %s", path)
		return &Evidence{Path: path}, nil
	}

	resp, err := evidenceHTTPClient.Get(videoUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to download evidence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evidence download returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "eos-evidence-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write evidence to disk: %w", err)
	}
	tmp.Close()

	path := tmp.Name()
	return &Evidence{
		Path: path,
		cleanup: func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn("Failed to remove temp evidence file %s: %v", path, err)
			}
		},
	}, nil
}

// ExtractLocation 从视频元数据中提取GPS坐标。
// 缺失GPS元数据不是错误，返回ok=false继续后续流程。
func ExtractLocation(path string) (lat, lon float64, ok bool) {
	cmd := exec.Command("ffprobe", "-v", "quiet", "-print_format", "json", "-show_format", path)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, false
	}

	var probe struct {
		Format struct {
			Tags map[string]string `json:"tags"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, 0, false
	}

	latKeys := []string{"location-lat", "GPS_LATITUDE", "com.apple.quicktime.location.ISO6709"}
	lonKeys := []string{"location-lon", "GPS_LONGITUDE", "com.apple.quicktime.location.ISO6709"}

	latOk, lonOk := false, false
	for _, key := range latKeys {
		if v, exists := probe.Format.Tags[key]; exists {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				lat = parsed
				latOk = true
				break
			}
		}
	}
	for _, key := range lonKeys {
		if v, exists := probe.Format.Tags[key]; exists {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				lon = parsed
				lonOk = true
				break
			}
		}
	}

	return lat, lon, latOk && lonOk
}
