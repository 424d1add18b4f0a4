package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"MarketSync/internal/model"
)

const (
	headerAccessKey       = "KALSHI-ACCESS-KEY"
	headerAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
	headerAccessSignature = "KALSHI-ACCESS-SIGNATURE"
)

// signRequest 站点配置了凭证时为请求附加签名头；未配置时原样返回
// api_key 为 Key ID，api_secret 为 PEM 私钥
func signRequest(req *http.Request, site *model.Site, now time.Time) error {
	if site == nil || !site.HasCredentials() {
		return nil
	}
	if site.APIKey == "" || site.APISecret == "" {
		return fmt.Errorf("Kalshi 凭证不完整：需要同时配置 api_key 与 api_secret")
	}
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	sig, err := SignRequest(site.APISecret, ts, req.Method, req.URL.Path)
	if err != nil {
		return fmt.Errorf("Kalshi 请求签名失败: %w", err)
	}
	req.Header.Set(headerAccessKey, site.APIKey)
	req.Header.Set(headerAccessTimestamp, ts)
	req.Header.Set(headerAccessSignature, sig)
	return nil
}

// SignRequest 使用 RSA 私钥对 Kalshi 请求进行签名
// 消息格式: timestamp + method + path（path 不含 query）
func SignRequest(privateKeyPEM, timestamp, method, path string) (string, error) {
	path = strings.Split(path, "?")[0]
	message := timestamp + method + path

	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	hashed := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, hashed[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

func parsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("无法解析 PEM 私钥")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("私钥类型不是 RSA")
	}
	return key, nil
}
