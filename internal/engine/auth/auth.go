// Package auth maps user roles to the capabilities the lifecycle checks.
package auth

import (
	"fmt"
	"sort"

	"sitelog/internal/domain"
)

const (
	PermLogApprove   = "log.approve"
	PermLogDeleteAny = "log.delete_any"
	PermLogReadAll   = "log.read_all"
)

var rolePermissions = map[string]map[string]bool{
	domain.RoleManager: {
		PermLogApprove:   true,
		PermLogDeleteAny: true,
		PermLogReadAll:   true,
	},
	domain.RoleTeamLeader: {},
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Actor is the resolved identity of a caller.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) Has(perm string) bool {
	return rolePermissions[a.Role][perm]
}

// Require returns ForbiddenError unless the actor holds perm.
func Require(a Actor, perm string) error {
	if !a.Has(perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// Permissions lists the capabilities granted to role, sorted.
func Permissions(role string) []string {
	perms := make([]string, 0, len(rolePermissions[role]))
	for p, ok := range rolePermissions[role] {
		if ok {
			perms = append(perms, p)
		}
	}
	sort.Strings(perms)
	return perms
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}
