package rbac

import (
	"fmt"
	"slices"
	"strings"
)

// Resource is a protected area of the dashboard.
type Resource string

const (
	ResourceHosts             Resource = "hosts"
	ResourceConfigOpt         Resource = "config-opt"
	ResourcePool              Resource = "pool"
	ResourceOSD               Resource = "osd"
	ResourceMonitor           Resource = "monitor"
	ResourceRBDImage          Resource = "rbd-image"
	ResourceISCSI             Resource = "iscsi"
	ResourceRBDMirroring      Resource = "rbd-mirroring"
	ResourceRGW               Resource = "rgw"
	ResourceCephFS            Resource = "cephfs"
	ResourceManager           Resource = "manager"
	ResourceLog               Resource = "log"
	ResourceGrafana           Resource = "grafana"
	ResourcePrometheus        Resource = "prometheus"
	ResourceUser              Resource = "user"
	ResourceDashboardSettings Resource = "dashboard-settings"
	ResourceNFSGanesha        Resource = "nfs-ganesha"
)

// Action is an operation on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resources lists every known resource.
func Resources() []Resource {
	return []Resource{
		ResourceHosts, ResourceConfigOpt, ResourcePool, ResourceOSD, ResourceMonitor,
		ResourceRBDImage, ResourceISCSI, ResourceRBDMirroring, ResourceRGW, ResourceCephFS,
		ResourceManager, ResourceLog, ResourceGrafana, ResourcePrometheus, ResourceUser,
		ResourceDashboardSettings, ResourceNFSGanesha,
	}
}

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	return slices.Contains(Resources(), r)
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return slices.Contains(Actions(), a)
}

// Scope is one grantable permission.
type Scope struct {
	Resource Resource
	Action   Action
}

// S is shorthand for building a Scope.
func S(resource Resource, action Action) Scope {
	return Scope{Resource: resource, Action: action}
}

func (s Scope) String() string {
	return string(s.Resource) + ":" + string(s.Action)
}

// ParseScope parses the "resource:action" form.
func ParseScope(raw string) (Scope, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(strings.ToLower(raw)), ":")
	if !ok {
		return Scope{}, fmt.Errorf("rbac: malformed scope %q", raw)
	}
	scope := S(Resource(resource), Action(action))
	if !scope.Resource.Valid() || !scope.Action.Valid() {
		return Scope{}, fmt.Errorf("rbac: unknown scope %q", raw)
	}
	return scope, nil
}

// ScopeSet is a set of scopes.
type ScopeSet map[Scope]struct{}

// NewScopeSet builds a set from scopes.
func NewScopeSet(scopes ...Scope) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

// Grant adds every action on resource to the set.
func (s ScopeSet) Grant(resource Resource, actions ...Action) ScopeSet {
	for _, a := range actions {
		s[S(resource, a)] = struct{}{}
	}
	return s
}

// Has reports whether scope is in the set.
func (s ScopeSet) Has(scope Scope) bool {
	_, ok := s[scope]
	return ok
}

// Merge adds every scope of other to s.
func (s ScopeSet) Merge(other ScopeSet) {
	for scope := range other {
		s[scope] = struct{}{}
	}
}

// Permissions renders the set grouped by resource, actions in canonical order.
func (s ScopeSet) Permissions() map[string][]string {
	out := make(map[string][]string)
	for _, resource := range Resources() {
		for _, action := range Actions() {
			if s.Has(S(resource, action)) {
				out[string(resource)] = append(out[string(resource)], string(action))
			}
		}
	}
	return out
}

// FromPermissions parses the grouped form produced by Permissions.
func FromPermissions(perms map[string][]string) (ScopeSet, error) {
	set := make(ScopeSet)
	for resource, actions := range perms {
		for _, action := range actions {
			scope, err := ParseScope(resource + ":" + action)
			if err != nil {
				return nil, err
			}
			set[scope] = struct{}{}
		}
	}
	return set, nil
}
