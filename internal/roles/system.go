package roles

import "github.com/larrabee/ceph/internal/rbac"

const (
	Administrator  = "administrator"
	ReadOnly       = "read-only"
	BlockManager   = "block-manager"
	RGWManager     = "rgw-manager"
	ClusterManager = "cluster-manager"
	PoolManager    = "pool-manager"
	CephFSManager  = "cephfs-manager"
	GaneshaManager = "ganesha-manager"
)

var allActions = rbac.Actions()

func grafanaReader() rbac.ScopeSet {
	return rbac.NewScopeSet().Grant(rbac.ResourceGrafana, rbac.ActionRead)
}

func managerOf(resources ...rbac.Resource) rbac.ScopeSet {
	set := grafanaReader()
	for _, r := range resources {
		set.Grant(r, allActions...)
	}
	return set
}

// SystemRoles returns the built-in roles in display order.
func SystemRoles() []Role {
	admin := rbac.NewScopeSet()
	readOnly := rbac.NewScopeSet()
	for _, r := range rbac.Resources() {
		admin.Grant(r, allActions...)
		if r != rbac.ResourceDashboardSettings {
			readOnly.Grant(r, rbac.ActionRead)
		}
	}

	return []Role{
		{Name: Administrator, Description: "Administrator", Scopes: admin, System: true},
		{Name: ReadOnly, Description: "Read-Only", Scopes: readOnly, System: true},
		{Name: BlockManager, Description: "Block Manager",
			Scopes: managerOf(rbac.ResourceRBDImage, rbac.ResourceRBDMirroring, rbac.ResourceISCSI), System: true},
		{Name: RGWManager, Description: "RGW Manager", Scopes: managerOf(rbac.ResourceRGW), System: true},
		{Name: ClusterManager, Description: "Cluster Manager",
			Scopes: managerOf(rbac.ResourceHosts, rbac.ResourceOSD, rbac.ResourceMonitor, rbac.ResourceManager,
				rbac.ResourceConfigOpt, rbac.ResourceLog), System: true},
		{Name: PoolManager, Description: "Pool Manager", Scopes: managerOf(rbac.ResourcePool), System: true},
		{Name: CephFSManager, Description: "CephFS Manager", Scopes: managerOf(rbac.ResourceCephFS), System: true},
		{Name: GaneshaManager, Description: "NFS Ganesha Manager",
			Scopes: managerOf(rbac.ResourceNFSGanesha, rbac.ResourceCephFS, rbac.ResourceRGW), System: true},
	}
}

var systemRoles = func() map[string]Role {
	out := make(map[string]Role)
	for _, role := range SystemRoles() {
		out[role.Name] = role
	}
	return out
}()

// IsSystem reports whether name is a built-in role.
func IsSystem(name string) bool {
	_, ok := systemRoles[name]
	return ok
}
