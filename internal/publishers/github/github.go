package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"proxygen/internal/logger"
	"proxygen/internal/publishers"

	"resty.dev/v3"
)

type Publisher struct{}

type githubFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"` // Base64 encoded content
	Sha     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type githubFileResponse struct {
	Sha string `json:"sha"`
}

func (p *Publisher) Publish(ctx context.Context, out *publishers.Output, config map[string]interface{}) error {
	// 1. Generate Content
	payload, err := publishers.Render(out, config)
	if err != nil {
		return err
	}

	// 2. Parse Config
	token, _ := config["token"].(string)
	owner, _ := config["owner"].(string)
	repo, _ := config["repo"].(string)
	path, _ := config["path"].(string)
	branch, _ := config["branch"].(string)
	msg, _ := config["message"].(string)

	apiBase, _ := config["api_url"].(string)
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	timeout := 30 * time.Second
	if t, ok := config["_timeout"].(time.Duration); ok && t > 0 {
		timeout = t
	}
	retries, _ := config["retries"].(int)
	retryWait := time.Second
	if w, ok := config["_retry_wait"].(time.Duration); ok {
		retryWait = w
	}

	if token == "" || owner == "" || repo == "" || path == "" {
		return fmt.Errorf("github publisher requires token, owner, repo, and path")
	}
	if msg == "" {
		msg = fmt.Sprintf("Update %s config [proxygen]", out.Name)
	}

	path = strings.TrimPrefix(publishers.ExpandPath(path, out), "/")
	apiURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s", apiBase, owner, repo, path)

	// 3. Setup Client
	client := resty.New().
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Accept", "application/vnd.github.v3+json")
	defer client.Close()

	if proxyStr, ok := config["_proxy_url"].(string); ok && proxyStr != "" {
		client.SetProxy(proxyStr)
		logger.Log.Debugf("GitHub Publisher using proxy: %s", proxyStr)
	}

	// 4. Get existing SHA (With Retries)
	var currentSha string
	err = withRetries(ctx, retries, retryWait, func(attempt int) error {
		logger.Log.Debugf("GitHub: Fetching file info (Attempt %d/%d)", attempt, retries+1)

		var existing githubFileResponse
		req := client.R().SetContext(ctx).SetResult(&existing)
		if branch != "" {
			req.SetQueryParam("ref", branch)
		}
		res, err := req.Get(apiURL)
		if err != nil {
			return err
		}

		switch res.StatusCode() {
		case http.StatusOK:
			currentSha = existing.Sha
			logger.Log.Debugf("GitHub: File exists (SHA: %s), updating...", currentSha)
			return nil
		case http.StatusNotFound:
			currentSha = ""
			logger.Log.Debugf("GitHub: File not found, creating new...")
			return nil
		default:
			return fmt.Errorf("status %d", res.StatusCode())
		}
	})
	if err != nil {
		return fmt.Errorf("github fetch failed after retries: %w", err)
	}

	// 5. Upload File (PUT) (With Retries)
	reqBody := githubFileRequest{
		Message: msg,
		Content: base64.StdEncoding.EncodeToString(payload),
		Sha:     currentSha,
		Branch:  branch,
	}

	err = withRetries(ctx, retries, retryWait, func(attempt int) error {
		logger.Log.Debugf("GitHub: Uploading file (Attempt %d/%d)", attempt, retries+1)

		res, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(reqBody).
			Put(apiURL)
		if err != nil {
			return err
		}
		if !res.IsSuccess() {
			return fmt.Errorf("status %d: %s", res.StatusCode(), res.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("github upload failed after retries: %w", err)
	}
	return nil
}

func withRetries(ctx context.Context, retries int, wait time.Duration, fn func(attempt int) error) error {
	var err error
	for i := 0; i <= retries; i++ {
		if err = fn(i + 1); err == nil {
			return nil
		}
		if i < retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return err
}

func init() {
	publishers.Register("github", func() publishers.Publisher { return &Publisher{} })
}
