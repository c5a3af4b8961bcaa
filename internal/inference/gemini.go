package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/logger"
)

// GeminiBackend 基于Gemini文件API和generateContent的推理后端
type GeminiBackend struct {
	apiKey     string
	model      string
	baseUrl    string
	httpClient *http.Client
}

// NewGeminiBackend 创建Gemini推理后端
func NewGeminiBackend(cfg config.InferenceConfig) (*GeminiBackend, error) {
	if cfg.ApiKey == "" {
		return nil, fmt.Errorf("inference api_key is not configured")
	}

	return &GeminiBackend{
		apiKey:  cfg.ApiKey,
		model:   cfg.Model,
		baseUrl: strings.TrimSuffix(cfg.BaseUrl, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// geminiFile 文件API响应中的文件对象
type geminiFile struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	State string `json:"state"`
}

// UploadMedia 上传视频文件
func (g *GeminiBackend) UploadMedia(ctx context.Context, path string, displayName string) (*MediaHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", g.baseUrl, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("X-Goog-Upload-File-Name", displayName)

	body, err := g.do(req)
	if err != nil {
		return nil, err
	}

	var result struct {
		File geminiFile `json:"file"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.File.Name == "" {
		return nil, fmt.Errorf("upload response missing file name")
	}

	logger.Info("Uploaded evidence to inference backend: %s", result.File.Name)
	return &MediaHandle{Name: result.File.Name, URI: result.File.URI}, nil
}

// PollStatus 查询文件处理状态
func (g *GeminiBackend) PollStatus(ctx context.Context, handle *MediaHandle) (FileState, error) {
	url := fmt.Sprintf("%s/v1beta/%s?key=%s", g.baseUrl, handle.Name, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FileStateFailed, err
	}

	body, err := g.do(req)
	if err != nil {
		return FileStateFailed, err
	}

	var file geminiFile
	if err := json.Unmarshal(body, &file); err != nil {
		return FileStateFailed, fmt.Errorf("failed to decode file status: %w", err)
	}

	switch file.State {
	case "ACTIVE":
		return FileStateActive, nil
	case "FAILED":
		return FileStateFailed, nil
	default:
		return FileStateProcessing, nil
	}
}

// Infer 提交推理请求
func (g *GeminiBackend) Infer(ctx context.Context, prompt string, handle *MediaHandle) (string, error) {
	parts := []map[string]interface{}{
		{"text": prompt},
	}
	if handle != nil {
		parts = append(parts, map[string]interface{}{
			"file_data": map[string]string{
				"mime_type": "video/mp4",
				"file_uri":  handle.URI,
			},
		})
	}

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": parts},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseUrl, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := g.do(req)
	if err != nil {
		return "", err
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode inference response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("inference response contains no candidates")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// DeleteMedia 删除远端媒体文件
func (g *GeminiBackend) DeleteMedia(ctx context.Context, handle *MediaHandle) error {
	url := fmt.Sprintf("%s/v1beta/%s?key=%s", g.baseUrl, handle.Name, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	if _, err := g.do(req); err != nil {
		return err
	}
	logger.Debug("Deleted inference artifact: %s", handle.Name)
	return nil
}

// do 执行请求，非2xx状态码转换为APIError
func (g *GeminiBackend) do(req *http.Request) ([]byte, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
