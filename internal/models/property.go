package models

// Property 物业
type Property struct {
	BaseModel
	OrganizationID uint   `json:"organization_id" gorm:"not null;index"`
	Name           string `json:"name" gorm:"not null;size:100"`
	AddressLine1   string `json:"address_line1" gorm:"size:200"`
	AddressLine2   string `json:"address_line2" gorm:"size:200"`
	City           string `json:"city" gorm:"size:100"`
	State          string `json:"state" gorm:"size:50"`
	PostalCode     string `json:"postal_code" gorm:"size:20"`
}

// TableName 表名
func (Property) TableName() string {
	return "properties"
}

// Unit 物业下的单元，同一时刻最多一个租客
type Unit struct {
	BaseModel
	OrganizationID uint   `json:"organization_id" gorm:"not null;index"`
	PropertyID     uint   `json:"property_id" gorm:"not null;index"`
	Label          string `json:"label" gorm:"not null;size:50"`
	TenantID       *uint  `json:"tenant_id" gorm:"uniqueIndex"`
}

// TableName 表名
func (Unit) TableName() string {
	return "units"
}
