package auth

// Permission tokens. The set is closed: handlers and tier rules refer to
// these constants only.
const (
	PermDollRead        = "doll:read"
	PermDollCreate      = "doll:create"
	PermDollRename      = "doll:rename"
	PermDollMove        = "doll:move"
	PermDollDelete      = "doll:delete"
	PermPhotoCreate     = "photo:create"
	PermPhotoSetPrimary = "photo:set_primary"
	PermEventRead       = "event:read"
	PermContainerRead   = "container:read"
	PermContainerManage = "container:manage"
)

// AllPermissions returns the full permission set (the admin tier).
func AllPermissions() []string {
	return []string{
		PermDollRead,
		PermDollCreate,
		PermDollRename,
		PermDollMove,
		PermDollDelete,
		PermPhotoCreate,
		PermPhotoSetPrimary,
		PermEventRead,
		PermContainerRead,
		PermContainerManage,
	}
}

func editorPermissions() []string {
	out := make([]string, 0, len(AllPermissions())-1)
	for _, p := range AllPermissions() {
		if p == PermDollDelete {
			continue
		}
		out = append(out, p)
	}
	return out
}

func defaultPermissions() []string {
	return []string{
		PermDollRead,
		PermDollMove,
		PermPhotoCreate,
		PermEventRead,
		PermContainerRead,
	}
}

// TierRule binds a group name to the permission set its tier grants.
type TierRule struct {
	Group       string
	Permissions []string
}

// Calculator maps group memberships to permissions. Rules are an ordered
// list evaluated top-down; the first matching group wins and tiers are
// never unioned. Callers matching no rule get the default (kid) tier.
type Calculator struct {
	rules    []TierRule
	fallback []string
}

// NewCalculator builds the tier table for the configured group names.
// The kid group needs no rule of its own: it receives the fallback tier,
// as does any caller with unrecognized or missing groups.
func NewCalculator(adminGroup, editorGroup string) *Calculator {
	return &Calculator{
		rules: []TierRule{
			{Group: adminGroup, Permissions: AllPermissions()},
			{Group: editorGroup, Permissions: editorPermissions()},
		},
		fallback: defaultPermissions(),
	}
}

// Calculate is a pure function of the group set: no I/O, no request
// history. Group matching is case-sensitive.
func (c *Calculator) Calculate(groups []string) map[string]struct{} {
	member := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		member[g] = struct{}{}
	}
	for _, rule := range c.rules {
		if _, ok := member[rule.Group]; ok {
			return permissionSet(rule.Permissions)
		}
	}
	return permissionSet(c.fallback)
}

func permissionSet(perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
