// Package server computes the canonical broadcast-group names a connection
// belongs to. Names always lead with the tenant segment, so no two tenants
// can ever collide on a group.
package server

import "strconv"

// TenantGroup names the tenant-wide broadcast scope.
func TenantGroup(tenant string) string {
	return "t:" + tenant
}

// UserGroup names the per-user scope inside a tenant.
func UserGroup(tenant string, userID int64) string {
	return "t:" + tenant + ":user:" + strconv.FormatInt(userID, 10)
}

// ChannelGroup names the per-channel scope inside a tenant.
func ChannelGroup(tenant string, channelID int64) string {
	return "t:" + tenant + ":canal:" + strconv.FormatInt(channelID, 10)
}

// DepartmentGroup names the per-department scope inside a tenant.
func DepartmentGroup(tenant string, departmentID int64) string {
	return "t:" + tenant + ":dept:" + strconv.FormatInt(departmentID, 10)
}

// OperatorGroup names the per-operator scope inside a tenant.
func OperatorGroup(tenant string, operatorID int64) string {
	return "t:" + tenant + ":op:" + strconv.FormatInt(operatorID, 10)
}

// Groups returns every group the identity subscribes to at connect time:
// the tenant group, its own user group, the operator group when an operator
// id is present, and one group per granted channel and department. The set
// is computed exactly once; dimensions are frozen for the connection's life.
func (id *Identity) Groups() []string {
	groups := make([]string, 0, 3+len(id.ChannelIDs)+len(id.DepartmentIDs))
	groups = append(groups, TenantGroup(id.Tenant), UserGroup(id.Tenant, id.UserID))
	if id.OperatorID > 0 {
		groups = append(groups, OperatorGroup(id.Tenant, id.OperatorID))
	}
	for channelID := range id.ChannelIDs {
		groups = append(groups, ChannelGroup(id.Tenant, channelID))
	}
	for departmentID := range id.DepartmentIDs {
		groups = append(groups, DepartmentGroup(id.Tenant, departmentID))
	}
	return groups
}
