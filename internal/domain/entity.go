package domain

// AssetID identifies a fungible token tracked by the vault.
type AssetID string

// AccountID identifies a trader, manager or liquidator.
type AccountID string

// Role is a capability checked against the authorization collaborator.
type Role uint8

const (
	RoleAuthority Role = iota + 1
	RoleManager
	RoleLiquidator
)

func (r Role) String() string {
	switch r {
	case RoleAuthority:
		return "authority"
	case RoleManager:
		return "manager"
	case RoleLiquidator:
		return "liquidator"
	default:
		return "unknown"
	}
}
