package model

import "strings"

// MarketStatus 归一化后的事件/合约状态
type MarketStatus string

const (
	StatusOpen    MarketStatus = "open"
	StatusActive  MarketStatus = "active"
	StatusClosed  MarketStatus = "closed"
	StatusSettled MarketStatus = "settled"
	StatusPaused  MarketStatus = "paused"
	StatusUnknown MarketStatus = "unknown"
)

// activeStatusOrder 可展示状态的唯一定义，集合与 SQL 列表都由它生成
var activeStatusOrder = []MarketStatus{StatusOpen, StatusActive}

// ActiveStatuses 可展示状态集合，其余状态只保留在库中
var ActiveStatuses = func() map[MarketStatus]struct{} {
	set := make(map[MarketStatus]struct{}, len(activeStatusOrder))
	for _, s := range activeStatusOrder {
		set[s] = struct{}{}
	}
	return set
}()

// IsActive 是否属于可展示状态
func (s MarketStatus) IsActive() bool {
	_, ok := ActiveStatuses[s]
	return ok
}

// ActiveStatusList 用于 SQL IN 查询（返回副本）
func ActiveStatusList() []MarketStatus {
	return append([]MarketStatus(nil), activeStatusOrder...)
}

// ClassifyStatus 将平台原始状态字符串映射到枚举
func ClassifyStatus(raw string) MarketStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "initialized":
		return StatusOpen
	case "active", "trading":
		return StatusActive
	case "closed", "inactive", "expired":
		return StatusClosed
	case "settled", "finalized", "determined", "resolved":
		return StatusSettled
	case "paused", "suspended":
		return StatusPaused
	default:
		return StatusUnknown
	}
}
