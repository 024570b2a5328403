// Package resolve locates the engine's runtime assets across a local bundle
// and ordered CDN mirrors, validating reachability before use.
package resolve

import "vidforge/internal/domain"

// Asset identifies one required runtime file and its candidate locations in
// preference order. Constructed at resolution time, discarded after load.
type Asset struct {
	Role       domain.AssetRole
	Candidates []string
}

// roleSuffixes maps each asset role to its fixed relative path under a base
// location.
var roleSuffixes = map[domain.AssetRole]string{
	domain.AssetRoleModule: "/vidforge-engine.js",
	domain.AssetRoleCore:   "/vidforge-engine-core.js",
	domain.AssetRoleBinary: "/vidforge-engine-core.wasm",
}

// Roles lists all asset roles a working engine needs, in load order.
func Roles() []domain.AssetRole {
	return []domain.AssetRole{domain.AssetRoleModule, domain.AssetRoleCore, domain.AssetRoleBinary}
}
