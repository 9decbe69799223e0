// Package inference は外部の落石推論サービスとのHTTP通信を担う
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rockwatch/internal/assessment"
)

const (
	framePath = "/predict_frame"
	// 推論サービス側のルート名がこの綴りになっている
	videoPath = "/predict_vedio"

	frameFilename = "frame.jpg"
	maxErrorBody  = 4096
)

// Client は推論サービスのHTTPクライアント
type Client struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *logrus.Entry
}

// NewClient はクライアントを作成する
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("推論サービスのURLが空です")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		baseURL: baseURL,
		config:  cfg,
		http:    hc,
		logger:  cfg.Logger.WithField("base_url", baseURL),
	}, nil
}

// BaseURL は接続先を返す
func (c *Client) BaseURL() string {
	return c.baseURL
}

type frameResponse struct {
	Success bool                    `json:"success"`
	Data    *assessment.FrameResult `json:"data"`
	Error   string                  `json:"error"`
}

type videoResponse struct {
	Success  bool `json:"success"`
	Analysis *struct {
		RiskLevel       assessment.RiskLevel `json:"riskLevel"`
		Confidence      float64              `json:"confidence"`
		Recommendations []string             `json:"recommendations"`
		Details         string               `json:"details"`
	} `json:"analysis"`
	Error string `json:"error"`
}

// PredictFrame はJPEGフレーム1枚を推論サービスに送り、結果を返す
func (c *Client) PredictFrame(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyFrame
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.postFile(ctx, framePath, frameFilename, bytes.NewReader(jpeg))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.parseError(resp, framePath)
	}

	var body frameResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("推論結果のデコードに失敗: %w", err)
	}
	if !body.Success || body.Data == nil {
		if body.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, body.Error)
		}
		return nil, ErrUnsuccessful
	}

	result := body.Data.Clone()
	result.Confidence = assessment.ClampConfidence(result.Confidence)
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}
	return &result, nil
}

// AnalyzeVideo は動画ファイルを一括解析サービスに送る
func (c *Client) AnalyzeVideo(ctx context.Context, name string, r io.Reader) (*assessment.VideoAnalysis, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.config.VideoTimeout)
	defer cancel()

	resp, err := c.postFile(ctx, videoPath, filepath.Base(name), r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.parseError(resp, videoPath)
	}

	var body videoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("解析結果のデコードに失敗: %w", err)
	}
	if !body.Success || body.Analysis == nil {
		if body.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, body.Error)
		}
		return nil, ErrUnsuccessful
	}

	recs := body.Analysis.Recommendations
	if recs == nil {
		recs = []string{}
	}

	elapsed := time.Since(start)
	c.logger.WithFields(logrus.Fields{
		"file":    name,
		"elapsed": elapsed,
	}).Info("動画解析が完了しました")

	return &assessment.VideoAnalysis{
		Filename:        name,
		RiskLevel:       body.Analysis.RiskLevel,
		Confidence:      assessment.ClampConfidence(body.Analysis.Confidence),
		Recommendations: recs,
		Details:         body.Analysis.Details,
		ProcessingTime:  elapsed,
		AnalyzedAt:      time.Now(),
	}, nil
}

// Close はアイドル接続を閉じる
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// postFile は "file" フィールドにファイルを載せたmultipartリクエストを送る
// 本文はパイプで流すため動画全体をメモリに載せない
func (c *Client) postFile(ctx context.Context, path, filename string, r io.Reader) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("推論サービスへの送信に失敗 (%s): %w", path, err)
	}
	return resp, nil
}

func (c *Client) parseError(resp *http.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Detail != "":
			msg = payload.Detail
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Endpoint:   endpoint,
	}
}
