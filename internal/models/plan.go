package models

// ResourceType 受套餐限制的资源
type ResourceType string

const (
	ResourceProperties ResourceType = "properties"
	ResourceUnits      ResourceType = "units"
	ResourceTenants    ResourceType = "tenants"
	ResourceWorkers    ResourceType = "workers"
	ResourceManagers   ResourceType = "managers"
)

// AllResourceTypes 用量展示顺序
var AllResourceTypes = []ResourceType{
	ResourceProperties,
	ResourceUnits,
	ResourceTenants,
	ResourceWorkers,
	ResourceManagers,
}

// PlanLimits 每种资源的上限，nil 表示不限
type PlanLimits map[ResourceType]*int

func limit(n int) *int {
	return &n
}

var planLimits = map[PlanTier]PlanLimits{
	PlanFree: {
		ResourceProperties: limit(1),
		ResourceUnits:      limit(10),
		ResourceTenants:    limit(10),
		ResourceWorkers:    limit(2),
		ResourceManagers:   limit(1),
	},
	PlanStarter: {
		ResourceProperties: limit(5),
		ResourceUnits:      limit(50),
		ResourceTenants:    limit(50),
		ResourceWorkers:    limit(5),
		ResourceManagers:   limit(3),
	},
	PlanPro: {
		ResourceProperties: limit(25),
		ResourceUnits:      limit(500),
		ResourceTenants:    limit(500),
		ResourceWorkers:    limit(25),
		ResourceManagers:   limit(10),
	},
	PlanEnterprise: {
		ResourceProperties: nil,
		ResourceUnits:      nil,
		ResourceTenants:    nil,
		ResourceWorkers:    nil,
		ResourceManagers:   nil,
	},
}

// LimitsFor 返回套餐上限，未知套餐按免费套餐处理
func LimitsFor(tier PlanTier) PlanLimits {
	if limits, ok := planLimits[tier]; ok {
		return limits
	}
	return planLimits[PlanFree]
}

// ResourceForRole 新增该角色账号会占用的资源，owner 不计入
func ResourceForRole(role Role) (ResourceType, bool) {
	switch role {
	case RoleTenant:
		return ResourceTenants, true
	case RoleWorker:
		return ResourceWorkers, true
	case RoleManager:
		return ResourceManagers, true
	}
	return "", false
}
