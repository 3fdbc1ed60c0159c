package schema

// Reserved system collection names. System collections skip the
// user-stamping hooks and carry special-cased policies.
const (
	CollectionUsers       = "directus_users"
	CollectionFiles       = "directus_files"
	CollectionRoles       = "directus_roles"
	CollectionUserRoles   = "directus_user_roles"
	CollectionPermissions = "directus_permissions"
	CollectionActivity    = "directus_activity"
	CollectionSettings    = "directus_settings"
)

var systemCollections = map[string]bool{
	CollectionUsers:       true,
	CollectionFiles:       true,
	CollectionRoles:       true,
	CollectionUserRoles:   true,
	CollectionPermissions: true,
	CollectionActivity:    true,
	CollectionSettings:    true,
}

// IsSystem returns true if the name is a reserved system collection
func IsSystem(name string) bool {
	return systemCollections[name]
}
