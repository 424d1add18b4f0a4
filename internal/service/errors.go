package service

import "errors"

// 错误分类，handler 通过 errors.Is 映射到 HTTP 状态码
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
	ErrAdapterUnreachable  = errors.New("adapter unreachable")
	ErrMalformedPayload    = errors.New("malformed upstream payload")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
)
