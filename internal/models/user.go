package models

// UserRole represents the portal roles carried in identity provider tokens.
type UserRole string

const (
	RoleSuperAdmin     UserRole = "SUPERADMIN"
	RoleAdmin          UserRole = "ADMIN"
	RoleLeadInstructor UserRole = "LEAD_INSTRUCTOR"
	RoleInstructor     UserRole = "INSTRUCTOR"
	RoleStudent        UserRole = "STUDENT"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
