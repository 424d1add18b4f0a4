package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"time"

	"MarketSync/internal/config"

	"github.com/sirupsen/logrus"
)

// MaxBodyBytes 单次响应体读取上限
const MaxBodyBytes = 8 << 20

// NewHTTPClient 通用HTTP客户端构建方法（支持代理、超时、自动解压）
func NewHTTPClient(cfg *config.AdapterConfig, logger *logrus.Logger) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true, // 由 compressedTransport 负责
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			logger.WithError(err).WithField("proxy", cfg.Proxy).Warn("代理地址解析失败，将不使用代理")
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
			logger.WithField("proxy", cfg.Proxy).Info("HTTP客户端已配置代理")
		}
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &compressedTransport{transport: transport, logger: logger},
	}
}

// ReadBody 读取响应体（带上限）
func ReadBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
}

type compressedTransport struct {
	transport http.RoundTripper
	logger    *logrus.Logger
}

func (c *compressedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.WithError(err).Warn("gzip解压失败，返回原始响应")
			return resp, nil
		}
		resp.Body = &gzipReadCloser{
			Reader: gzReader,
			closer: resp.Body,
		}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	}

	return resp, nil
}

// gzipReadCloser 关闭时同时关闭解压 reader 与原始响应体
type gzipReadCloser struct {
	*gzip.Reader
	closer io.ReadCloser
}

func (g *gzipReadCloser) Close() error {
	if err := g.Reader.Close(); err != nil {
		_ = g.closer.Close()
		return err
	}
	return g.closer.Close()
}
