package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyleo/genmedia_go_server/config"
)

// JobState 远端任务状态
type JobState string

const (
	JobStateWaiting    JobState = "waiting"
	JobStateProcessing JobState = "processing"
	JobStateSuccess    JobState = "success"
	JobStateFailed     JobState = "failed"
)

// GenerateRequest 生成请求参数
type GenerateRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	InputURL    string
}

// JobStatus 轮询返回的任务快照
type JobStatus struct {
	Handle        string
	State         JobState
	OutputURL     string
	FailureReason string
}

// Error 上游返回的非 2xx 响应
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error: status=%d msg=%s", e.StatusCode, e.Message)
}

// Provider 生成服务适配器
// 图片和语音走同步接口，视频提交后由 worker 轮询
type Provider interface {
	GenerateSync(ctx context.Context, req *GenerateRequest) (string, error)
	SubmitJob(ctx context.Context, req *GenerateRequest) (string, error)
	PollJob(ctx context.Context, handle string) (*JobStatus, error)
}

type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollBudget   time.Duration
}

func NewClient(cfg *config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	pollInterval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	pollBudget := time.Duration(cfg.PollBudgetSeconds) * time.Second
	if pollBudget <= 0 {
		pollBudget = 5 * time.Minute
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: pollInterval,
		pollBudget:   pollBudget,
	}
}

// GenerateSync 创建任务并在请求内轮询到终态，返回产物 URL
func (c *Client) GenerateSync(ctx context.Context, req *GenerateRequest) (string, error) {
	handle, err := c.SubmitJob(ctx, req)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.pollBudget)
	for {
		status, err := c.PollJob(ctx, handle)
		if err != nil {
			return "", err
		}

		switch status.State {
		case JobStateSuccess:
			return status.OutputURL, nil
		case JobStateFailed:
			return "", fmt.Errorf("task failed: %s", status.FailureReason)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("task %s timed out after %s", handle, c.pollBudget)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// SubmitJob 创建任务并返回任务句柄
func (c *Client) SubmitJob(ctx context.Context, req *GenerateRequest) (string, error) {
	input := map[string]any{
		"prompt": req.Prompt,
	}
	if req.AspectRatio != "" {
		input["aspect_ratio"] = req.AspectRatio
	}
	if req.InputURL != "" {
		input["input_urls"] = []string{req.InputURL}
	}

	payload := map[string]any{
		"model": req.Model,
		"input": input,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	fullURL := c.baseURL + "/api/v1/jobs/createTask"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post create task: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		log.Printf("Provider create task failed: status=%d model=%s body=%s", resp.StatusCode, req.Model, truncateBody(rawBody))
		return "", &Error{StatusCode: resp.StatusCode, Message: truncateBody(rawBody)}
	}

	var createResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &createResp); err != nil {
		return "", fmt.Errorf("decode create task response: %w (body=%s)", err, truncateBody(rawBody))
	}

	if createResp.Code != 200 {
		return "", &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("code=%d msg=%s", createResp.Code, createResp.Msg)}
	}
	if createResp.Data.TaskID == "" {
		return "", fmt.Errorf("empty taskId in create response")
	}

	return createResp.Data.TaskID, nil
}

// PollJob 查询任务状态，非终态返回 waiting/processing
func (c *Client) PollJob(ctx context.Context, handle string) (*JobStatus, error) {
	params := url.Values{}
	params.Set("taskId", handle)
	fullURL := c.baseURL + "/api/v1/jobs/recordInfo?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get task status: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		log.Printf("Provider poll failed: status=%d handle=%s body=%s", resp.StatusCode, handle, truncateBody(rawBody))
		return nil, &Error{StatusCode: resp.StatusCode, Message: truncateBody(rawBody)}
	}

	var statusResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID     string `json:"taskId"`
			State      string `json:"state"`
			ResultJSON string `json:"resultJson"`
			FailCode   string `json:"failCode"`
			FailMsg    string `json:"failMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &statusResp); err != nil {
		return nil, fmt.Errorf("decode status response: %w (body=%s)", err, truncateBody(rawBody))
	}

	if statusResp.Code != 200 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("code=%d msg=%s", statusResp.Code, statusResp.Msg)}
	}

	status := &JobStatus{Handle: handle}

	switch statusResp.Data.State {
	case "success":
		outputURL, err := firstResultURL(statusResp.Data.ResultJSON)
		if err != nil {
			return nil, err
		}
		status.State = JobStateSuccess
		status.OutputURL = outputURL
	case "fail":
		failMsg := statusResp.Data.FailMsg
		if failMsg == "" {
			failMsg = "unknown error"
		}
		status.State = JobStateFailed
		status.FailureReason = fmt.Sprintf("%s (code: %s)", failMsg, statusResp.Data.FailCode)
	case "waiting", "queued", "queueing":
		status.State = JobStateWaiting
	case "generating", "processing":
		status.State = JobStateProcessing
	default:
		return nil, fmt.Errorf("unknown task state: %s", statusResp.Data.State)
	}

	return status, nil
}

// firstResultURL 从 resultJson 中取第一个产物链接
func firstResultURL(resultJSON string) (string, error) {
	if resultJSON == "" {
		return "", fmt.Errorf("empty resultJson in success response")
	}

	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return "", fmt.Errorf("parse resultJson: %w", err)
	}
	if len(result.ResultURLs) == 0 {
		return "", fmt.Errorf("no resultUrls in result")
	}

	return result.ResultURLs[0], nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
