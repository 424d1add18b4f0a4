// internal/adapter/registry.go
package adapter

import (
	"fmt"
	"sort"
	"sync"

	"MarketSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// ========== 全局工厂函数注册表 ==========
var (
	factoryMu       sync.RWMutex
	factoryRegistry = make(map[string]interfaces.Factory)
)

// Register 供适配器 init 函数调用，注册工厂函数
func Register(adapterKey string, factory interfaces.Factory) {
	if factory == nil {
		panic(fmt.Sprintf("适配器%s的工厂函数不能为nil", adapterKey))
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factoryRegistry[adapterKey]; exists {
		logrus.Warnf("适配器%s已注册，将覆盖原有实现", adapterKey)
	}
	factoryRegistry[adapterKey] = factory
}

// GetFactory 获取指定适配器的工厂函数
func GetFactory(adapterKey string) (interfaces.Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	factory, ok := factoryRegistry[adapterKey]
	return factory, ok
}

// ListFactories 列出所有已注册的工厂函数（有序）
func ListFactories() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	keys := make([]string, 0, len(factoryRegistry))
	for k := range factoryRegistry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
