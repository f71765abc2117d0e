package orm

import "strings"

// Capability 提供者可选支持的能力，按位组合
type Capability uint8

const (
	CapabilityBasicCRUD Capability = 1 << iota
	// CapabilityPreload 读取时急加载整张关联图
	CapabilityPreload
	// CapabilityLazyLoad 支持按字段单独解析关联（GetNestedEntity）
	CapabilityLazyLoad
	// CapabilityAssociationWrite 写入时级联关联实体与中间表
	CapabilityAssociationWrite
	// CapabilityTransaction 每次顶层写入在一个事务内完成
	CapabilityTransaction
	// CapabilityReturning 插入通过 RETURNING 取回标识
	CapabilityReturning
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapabilityBasicCRUD, "basic_crud"},
	{CapabilityPreload, "preload"},
	{CapabilityLazyLoad, "lazy_load"},
	{CapabilityAssociationWrite, "association_write"},
	{CapabilityTransaction, "transaction"},
	{CapabilityReturning, "returning"},
}

// Capabilities 能力集合，零值为空集
type Capabilities Capability

func NewCapabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set |= Capabilities(c)
	}
	return set
}

// With 返回加入 c 之后的集合；on 为 false 时原样返回
func (s Capabilities) With(c Capability, on bool) Capabilities {
	if !on {
		return s
	}
	return s | Capabilities(c)
}

func (s Capabilities) Supports(c Capability) bool {
	return c != 0 && Capability(s)&c == c
}

// String 以逗号分隔的能力名，如 "basic_crud,preload"
func (s Capabilities) String() string {
	var names []string
	for _, n := range capabilityNames {
		if s.Supports(n.c) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}
