// Package horus はHorusバックエンドおよび自身のHTTP関数を呼び出すRPCクライアントを提供する。
// すべての呼び出しは{data, error}形式の結果を返し、ネットワーク・ステータス・JSONの失敗で
// panicやエラーリターンを起こさない。
package horus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Observer はRPC呼び出しの結果を受け取る。metrics.Collectorが実装する。
type Observer interface {
	ObserveRPC(route string, success bool, duration time.Duration)
}

// Response はRPC呼び出しの結果。Errorが空でない場合Dataは常にnil。
// 成功した呼び出しでもボディが空またはJSONでなければDataはnil。
type Response struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// OK は呼び出しが成功したかを返す。
func (r Response) OK() bool {
	return r.Error == ""
}

// Decode はDataをvにデコードする。Dataがnilの場合は何もしない。
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode rpc response: %w", err)
	}
	return nil
}

// GetOptions はGetの任意パラメータ。
type GetOptions struct {
	Query          url.Values
	DynamicSegment string
}

// Client はBearerトークン付きでHorusを呼び出すクライアント。
// ベースURLとトークンは生成時に固定され、複数のゴルーチンから安全に使用できる。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
	observer   Observer
}

// NewClient はClientを生成する。
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// WithObserver はRPC結果の通知先を設定したClientを返す。
func (c *Client) WithObserver(o Observer) *Client {
	cp := *c
	cp.observer = o
	return &cp
}

// Get はルートにGETリクエストを送信する。
// ルートが動的セグメントを持つのにopts.DynamicSegmentが空の場合は
// リクエストを送信せずにErrMissingDynamicSegmentを返す。
func (c *Client) Get(ctx context.Context, route Route, opts GetOptions) (Response, error) {
	path, err := route.Path(opts.DynamicSegment)
	if err != nil {
		return Response{}, err
	}

	target := c.baseURL + path
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	return c.do(ctx, route, http.MethodGet, target, nil), nil
}

// Post はbodyをJSONエンコードしてルートにPOSTリクエストを送信する。
// 動的セグメントを持つルートには使用できない。
func (c *Client) Post(ctx context.Context, route Route, body any) (Response, error) {
	return c.PostTo(ctx, route, "", body)
}

// PostTo は動的セグメントをsegmentで置き換えたルートにPOSTリクエストを送信する。
func (c *Client) PostTo(ctx context.Context, route Route, segment string, body any) (Response, error) {
	path, err := route.Path(segment)
	if err != nil {
		return Response{}, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{Error: fmt.Sprintf("failed to encode request body: %v", err)}, nil
	}

	return c.do(ctx, route, http.MethodPost, c.baseURL+path, payload), nil
}

func (c *Client) do(ctx context.Context, route Route, method, target string, payload []byte) Response {
	start := time.Now()
	resp := c.send(ctx, method, target, payload)

	if c.observer != nil {
		c.observer.ObserveRPC(string(route), resp.OK(), time.Since(start))
	}
	if !resp.OK() {
		c.logger.Warn("rpc call failed",
			slog.String("method", method),
			slog.String("route", string(route)),
			slog.String("error", resp.Error),
		)
	}
	return resp
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) Response {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Response{Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{Error: err.Error()}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{Error: fmt.Sprintf("failed to read response body: %v", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Response{Error: fmt.Sprintf("%s: %s", http.StatusText(httpResp.StatusCode), strings.TrimSpace(string(body)))}
	}

	// 2xxでもJSONでないボディはData=nilとして成功扱い
	if !json.Valid(body) {
		return Response{}
	}
	return Response{Data: json.RawMessage(body)}
}
