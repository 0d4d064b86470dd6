package postback

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultResponseBodyLimit = 2048

// Response 回传响应
type Response struct {
	StatusCode int
	Body       string
}

// Sender 回传发送接口
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPSender 基于 net/http 的发送实现
type HTTPSender struct {
	client    *http.Client
	userAgent string
	bodyLimit int
}

// NewHTTPSender 创建 HTTP 发送器；超时由调用方 context 控制
func NewHTTPSender(client *http.Client, userAgent string, bodyLimit int) *HTTPSender {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if bodyLimit <= 0 {
		bodyLimit = defaultResponseBodyLimit
	}
	return &HTTPSender{client: client, userAgent: strings.TrimSpace(userAgent), bodyLimit: bodyLimit}
}

// Send 发送请求并读取截断后的响应体
func (s *HTTPSender) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(s.bodyLimit)))
	if err != nil {
		return &Response{StatusCode: resp.StatusCode}, err
	}
	// 读完剩余内容以复用连接
	_, _ = io.Copy(io.Discard, resp.Body)
	// 截断可能落在多字节字符中间
	return &Response{StatusCode: resp.StatusCode, Body: strings.ToValidUTF8(string(raw), "")}, nil
}
