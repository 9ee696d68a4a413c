package domain

// Caps records which optional schema elements the live database has.
// Deployments may run code ahead of their migrations, so every data-access
// path that touches one of these consults Caps first.
type Caps struct {
	HasClientID         bool `json:"has_client_id"`
	HasOwnerID          bool `json:"has_owner_id"`
	HasProductTables    bool `json:"has_product_tables"`
	HasProposalFilePath bool `json:"has_proposal_file_path"`
	HasUserRole         bool `json:"has_user_role"`
	HasClientProfile    bool `json:"has_client_profile"`
	HasSubscriptions    bool `json:"has_subscriptions"`
	HasTenantSettings   bool `json:"has_tenant_settings"`
}

// AllCaps is the capability set of a fully migrated database.
func AllCaps() Caps {
	return Caps{
		HasClientID:         true,
		HasOwnerID:          true,
		HasProductTables:    true,
		HasProposalFilePath: true,
		HasUserRole:         true,
		HasClientProfile:    true,
		HasSubscriptions:    true,
		HasTenantSettings:   true,
	}
}
