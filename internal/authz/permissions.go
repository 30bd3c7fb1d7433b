package authz

// Permission identifiers for the Keystone modules. The catalog is closed:
// every id a caller may pass to Authorize is declared here and registered at
// boot.
const (
	PermProjectsCreate = "projects:create"
	PermProjectsRead   = "projects:read"
	PermProjectsUpdate = "projects:update"
	PermProjectsDelete = "projects:delete"

	PermContractsCreate  = "contracts:create"
	PermContractsRead    = "contracts:read"
	PermContractsUpdate  = "contracts:update"
	PermContractsApprove = "contracts:approve"

	PermFinanceRead    = "finance:read"
	PermFinancePost    = "finance:post"
	PermFinanceApprove = "finance:approve"

	PermProcurementCreate  = "procurement:create"
	PermProcurementRead    = "procurement:read"
	PermProcurementApprove = "procurement:approve"

	PermRegulationsRead   = "regulations:read"
	PermRegulationsManage = "regulations:manage"

	PermNotificationsManage = "notifications:manage"

	PermUsersRead   = "users:read"
	PermUsersManage = "users:manage"

	PermRolesRead   = "roles:read"
	PermRolesManage = "roles:manage"

	PermAssignmentsRead  = "assignments:read"
	PermAssignmentsGrant = "assignments:grant"

	// PermSystemRoles marks the highest-privilege administrators; only its
	// holders may deactivate system roles.
	PermSystemRoles = "admin:system_roles"
)

// Catalog returns the full permission catalog.
func Catalog() []Permission {
	return []Permission{
		{ID: PermProjectsCreate, Name: "Create projects", Description: "Create construction projects"},
		{ID: PermProjectsRead, Name: "View projects"},
		{ID: PermProjectsUpdate, Name: "Edit projects"},
		{ID: PermProjectsDelete, Name: "Delete projects"},

		{ID: PermContractsCreate, Name: "Create contracts"},
		{ID: PermContractsRead, Name: "View contracts"},
		{ID: PermContractsUpdate, Name: "Edit contracts"},
		{ID: PermContractsApprove, Name: "Approve contracts", Description: "Sign off contract documents"},

		{ID: PermFinanceRead, Name: "View finance"},
		{ID: PermFinancePost, Name: "Post finance documents"},
		{ID: PermFinanceApprove, Name: "Approve finance documents"},

		{ID: PermProcurementCreate, Name: "Create purchase requests"},
		{ID: PermProcurementRead, Name: "View procurement"},
		{ID: PermProcurementApprove, Name: "Approve purchase orders"},

		{ID: PermRegulationsRead, Name: "View regulations"},
		{ID: PermRegulationsManage, Name: "Manage regulations"},

		{ID: PermNotificationsManage, Name: "Manage notifications"},

		{ID: PermUsersRead, Name: "View users"},
		{ID: PermUsersManage, Name: "Manage users"},

		{ID: PermRolesRead, Name: "View roles"},
		{ID: PermRolesManage, Name: "Manage roles"},

		{ID: PermAssignmentsRead, Name: "View role assignments"},
		{ID: PermAssignmentsGrant, Name: "Grant role assignments"},

		{ID: PermSystemRoles, Name: "Administer system roles", Description: "Deactivate or restore protected system roles"},
	}
}

// NewDefaultRegistry builds and freezes the registry from the catalog. A
// conflict here is a programming error surfaced at boot.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, p := range Catalog() {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}
