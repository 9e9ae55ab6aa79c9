// Package access decides who may use the sync operations.
package access

import "sort"

// Resources guarded by the policy.
const (
	ResourceStatus  = "sync:status"
	ResourceRun     = "sync:run"
	ResourceReset   = "sync:reset"
	ResourceHistory = "sync:history"
)

// Wildcard grants every resource when listed for a role.
const Wildcard = "*"

// Policy answers whether user may use resource.
type Policy interface {
	CanAccess(user, resource string) bool
}

// Resources returns every guarded resource.
func Resources() []string {
	return []string{ResourceStatus, ResourceRun, ResourceReset, ResourceHistory}
}

// AllowAll permits everything. The CLI uses it; the operator already has
// the database.
type AllowAll struct{}

// CanAccess implements Policy.
func (AllowAll) CanAccess(user, resource string) bool {
	return true
}

// RolePolicy maps users to a role and roles to resources.
type RolePolicy struct {
	users map[string]string
	roles map[string]map[string]bool
}

// NewRolePolicy builds a policy from user -> role and role -> resources.
// Unknown users are denied.
func NewRolePolicy(users map[string]string, roles map[string][]string) *RolePolicy {
	p := &RolePolicy{
		users: make(map[string]string, len(users)),
		roles: make(map[string]map[string]bool, len(roles)),
	}
	for u, r := range users {
		p.users[u] = r
	}
	for r, resources := range roles {
		set := make(map[string]bool, len(resources))
		for _, res := range resources {
			set[res] = true
		}
		p.roles[r] = set
	}
	return p
}

// CanAccess implements Policy.
func (p *RolePolicy) CanAccess(user, resource string) bool {
	if user == "" {
		return false
	}
	role, ok := p.users[user]
	if !ok {
		return false
	}
	granted := p.roles[role]
	return granted[Wildcard] || granted[resource]
}

// Users returns the known user names in ascending order.
func (p *RolePolicy) Users() []string {
	out := make([]string, 0, len(p.users))
	for u := range p.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
