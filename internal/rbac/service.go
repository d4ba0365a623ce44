package rbac

import (
	"fmt"
	"slices"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

// ErrForbidden indicates the caller's role does not grant the capability.
var ErrForbidden = fmt.Errorf("%w: rbac", shared.ErrForbidden)

var roleCapabilities = map[Role][]Capability{
	RoleSales: {
		CapCreateSale,
		CapRaiseRequisition,
		CapViewReports,
		CapReadMessages,
	},
	RolePurchase: {
		CapCreateOrder,
		CapManageSuppliers,
		CapViewReports,
		CapReadMessages,
	},
	RoleInventory: {
		CapManageItems,
		CapAdjustStock,
		CapRaiseRequisition,
		CapReceiveOrder,
		CapViewReports,
		CapReadMessages,
	},
	RoleFinance: {
		CapApproveOrder,
		CapViewReports,
		CapReadMessages,
	},
	RoleAdmin: AllCapabilities(),
}

// AllCapabilities lists every capability known to the engine.
func AllCapabilities() []Capability {
	return []Capability{
		CapManageItems,
		CapAdjustStock,
		CapManageSuppliers,
		CapRaiseRequisition,
		CapCreateOrder,
		CapApproveOrder,
		CapReceiveOrder,
		CapCreateSale,
		CapViewReports,
		CapReadMessages,
	}
}

// Capabilities returns a copy of the capability set granted to role.
func Capabilities(role Role) []Capability {
	return slices.Clone(roleCapabilities[role])
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	return slices.Contains(roleCapabilities[r], c)
}

// Authorize returns ErrForbidden unless p holds every listed capability.
func Authorize(p Principal, caps ...Capability) error {
	if !p.Valid() {
		return fmt.Errorf("%w: missing caller identity", shared.ErrUnauthorized)
	}
	for _, c := range caps {
		if !p.Role.Can(c) {
			return fmt.Errorf("%w: role %s lacks %s", ErrForbidden, p.Role, c)
		}
	}
	return nil
}

// CapabilityMatrix returns role → capabilities for every role.
func CapabilityMatrix() map[Role][]Capability {
	matrix := make(map[Role][]Capability, len(roleCapabilities))
	for role := range roleCapabilities {
		matrix[role] = Capabilities(role)
	}
	return matrix
}
