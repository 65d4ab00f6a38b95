package authorization

import (
	"strings"
)

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleEditor UserRole = "editor"
)

var validRoles = map[UserRole]struct{}{
	RoleAdmin:  {},
	RoleEditor: {},
}

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	_, ok := validRoles[r]
	return ok
}

type Permission string

const (
	PermissionManageFiles        Permission = "manage_files"
	PermissionDeleteFiles        Permission = "delete_files"
	PermissionMaintainReferences Permission = "maintain_references"
	PermissionViewStatistics     Permission = "view_statistics"
	PermissionManageCache        Permission = "manage_cache"
)

var rolePermissions = map[UserRole]map[Permission]struct{}{
	RoleAdmin: {
		PermissionManageFiles:        {},
		PermissionDeleteFiles:        {},
		PermissionMaintainReferences: {},
		PermissionViewStatistics:     {},
		PermissionManageCache:        {},
	},
	RoleEditor: {
		PermissionManageFiles: {},
	},
}

func RoleHasPermission(role UserRole, permission Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}

// ParseUserRole accepts the role claim of a token in any casing.
func ParseUserRole(value interface{}) (UserRole, bool) {
	switch v := value.(type) {
	case UserRole:
		if !v.IsValid() {
			return "", false
		}
		return v, true
	case string:
		role := UserRole(strings.ToLower(strings.TrimSpace(v)))
		if !role.IsValid() {
			return "", false
		}
		return role, true
	default:
		return "", false
	}
}
