package wavestk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/rodoku-audio/rodoku-tools/chunkuploader"
)

const (
	chunkPath    = "/upload/chunk"
	completePath = "/upload/complete"

	chunkFailedMessage    = "Chunk upload failed"
	completeFailedMessage = "Upload completion failed"

	maxErrorBodySize = 4 * 1024
)

type uploadChunkRequest struct {
	UploadID    string `json:"uploadId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	ChunkData   string `json:"chunkData"`
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	FileSize    int64  `json:"fileSize"`
}

type completeUploadRequest struct {
	UploadID    string `json:"uploadId"`
	TotalChunks int    `json:"totalChunks"`
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	FileSize    int64  `json:"fileSize"`
}

type uploadResultResponse struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	URL              string `json:"url"`
	OriginalFilename string `json:"originalFilename"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-success response of the remote service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to the chunk-upload endpoints of the remote audio host.
// Every method makes exactly one HTTP request, retries belong to chunkuploader.Uploader.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     log.Logger
}

var _ chunkuploader.Transport = (*Client)(nil)

// NewClient ...
func NewClient(httpClient *http.Client, baseURL string, logger log.Logger) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// UploadChunk sends one encoded chunk.
func (c *Client) UploadChunk(ctx context.Context, req chunkuploader.ChunkRequest) error {
	body := uploadChunkRequest{
		UploadID:    req.UploadID,
		ChunkIndex:  req.ChunkIndex,
		TotalChunks: req.TotalChunks,
		ChunkData:   req.ChunkData,
		FileName:    req.FileName,
		FileType:    req.FileType,
		FileSize:    req.FileSize,
	}

	resp, err := c.postJSON(ctx, chunkPath, body)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	c.dumpResponse("Chunk", resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unwrapError(resp, chunkFailedMessage)
	}

	return nil
}

// CompleteUpload asks the service to merge the chunks of a session and returns the stored file descriptor.
func (c *Client) CompleteUpload(ctx context.Context, req chunkuploader.CompleteRequest) (chunkuploader.UploadResult, error) {
	body := completeUploadRequest{
		UploadID:    req.UploadID,
		TotalChunks: req.TotalChunks,
		FileName:    req.FileName,
		FileType:    req.FileType,
		FileSize:    req.FileSize,
	}

	resp, err := c.postJSON(ctx, completePath, body)
	if err != nil {
		return chunkuploader.UploadResult{}, err
	}
	defer c.closeBody(resp.Body)

	c.dumpResponse("Complete", resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chunkuploader.UploadResult{}, unwrapError(resp, completeFailedMessage)
	}

	var response uploadResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return chunkuploader.UploadResult{}, fmt.Errorf("decode complete response: %w", err)
	}

	return chunkuploader.UploadResult{
		ID:               response.ID,
		Filename:         response.Filename,
		URL:              response.URL,
		OriginalFilename: response.OriginalFilename,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Chunk bodies are megabytes of base64, only the headers are worth dumping.
	dump, err := httputil.DumpRequestOut(req, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("Request dump: %s", string(dump))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func (c *Client) dumpResponse(name string, resp *http.Response) {
	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		c.logger.Warnf("error while dumping response: %s", err)
	}
	c.logger.Debugf("%s response dump: %s", name, string(dump))
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf("%s", err)
	}
}

// unwrapError turns a non-success response into an APIError, preferring the body's error field.
func unwrapError(resp *http.Response, fallback string) error {
	message := fallback

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err == nil && len(body) > 0 {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
