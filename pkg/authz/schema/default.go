package schema

import "github.com/agily/omicron/pkg/authz"

// Built-in resource type and relation names.
const (
	TypeFleet        = "fleet"
	TypeOrganization = "organization"
	TypeProject      = "project"
	TypeDatabase     = "database"

	RelationParentFleet        = "parent_fleet"
	RelationParentOrganization = "parent_organization"
)

// Built-in role names.
const (
	RoleAdmin        = "admin"
	RoleCollaborator = "collaborator"
	RoleViewer       = "viewer"
	RoleDBInit       = "init"
)

// Built-in permission names.
const (
	PermRead         = "read"
	PermModify       = "modify"
	PermCreateChild  = "create_child"
	PermListChildren = "list_children"
	PermDBQuery      = "query"
	PermDBModify     = "modify"
)

// DefaultBootstrapActor is the fixed identity used to initialize the system.
// It is not stored in the identity store and must be injected explicitly into
// the resolver; nothing resolves it implicitly.
func DefaultBootstrapActor() authz.Actor {
	return authz.Actor{ID: "bootstrap", Namespace: "system"}
}

// DefaultBootstrapGrant is the single role the bootstrap identity holds: init
// on the well-known database singleton.
func DefaultBootstrapGrant() authz.RoleGrant {
	return authz.RoleGrant{
		Resource: authz.Resource{Type: TypeDatabase, ID: "public"},
		Role:     RoleDBInit,
	}
}

// DefaultTypes returns the built-in rule set: the fleet, organization, and
// project container hierarchy plus the flat database resource. Only the admin
// role crosses the hierarchy; lesser roles stop at the instance they were
// granted on.
func DefaultTypes() []Type {
	containerPermissions := []Permission{
		{Name: PermRead},
		{Name: PermModify},
		{Name: PermCreateChild},
		{Name: PermListChildren},
	}

	containerRoles := []string{RoleAdmin, RoleCollaborator, RoleViewer}

	containerRolePermissions := map[string][]string{
		RoleAdmin:        {PermModify},
		RoleCollaborator: {PermCreateChild},
		RoleViewer:       {PermRead, PermListChildren},
	}

	containerRoleImplications := map[string][]string{
		RoleAdmin:        {RoleCollaborator},
		RoleCollaborator: {RoleViewer},
	}

	adminInherits := []InheritRule{
		{Role: RoleAdmin, ParentRole: RoleAdmin},
	}

	return []Type{
		{
			Name:             TypeFleet,
			Permissions:      containerPermissions,
			Roles:            containerRoles,
			RolePermissions:  containerRolePermissions,
			RoleImplications: containerRoleImplications,
		},
		{
			Name:             TypeOrganization,
			Permissions:      containerPermissions,
			Roles:            containerRoles,
			RolePermissions:  containerRolePermissions,
			RoleImplications: containerRoleImplications,
			Relations: []Relation{
				{Name: RelationParentFleet, ParentType: TypeFleet, Rules: adminInherits},
			},
		},
		{
			Name:             TypeProject,
			Permissions:      containerPermissions,
			Roles:            containerRoles,
			RolePermissions:  containerRolePermissions,
			RoleImplications: containerRoleImplications,
			Relations: []Relation{
				{Name: RelationParentOrganization, ParentType: TypeOrganization, Rules: adminInherits},
			},
		},
		{
			Name:        TypeDatabase,
			Permissions: []Permission{{Name: PermDBQuery}, {Name: PermDBModify}},
			Roles:       []string{RoleDBInit},
			RolePermissions: map[string][]string{
				RoleDBInit: {PermDBQuery, PermDBModify},
			},
		},
	}
}
