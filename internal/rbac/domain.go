package rbac

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/wholesale/internal/shared"
)

// Role represents a high-level permission grouping.
type Role string

const (
	RoleSales     Role = "SALES_MANAGER"
	RolePurchase  Role = "PURCHASE_MANAGER"
	RoleInventory Role = "INVENTORY_MANAGER"
	RoleFinance   Role = "FINANCE_MANAGER"
	RoleAdmin     Role = "ADMIN"
)

// Capability represents an atomic action a role may perform.
type Capability string

const (
	CapManageItems      Capability = "items.manage"
	CapAdjustStock      Capability = "stock.adjust"
	CapManageSuppliers  Capability = "suppliers.manage"
	CapRaiseRequisition Capability = "requisitions.raise"
	CapCreateOrder      Capability = "orders.create"
	CapApproveOrder     Capability = "orders.approve"
	CapReceiveOrder     Capability = "orders.receive"
	CapCreateSale       Capability = "sales.create"
	CapViewReports      Capability = "reports.view"
	CapReadMessages     Capability = "messages.read"
)

// ErrUnknownRole is returned when a role string does not name a known role.
var ErrUnknownRole = fmt.Errorf("%w: rbac: unknown role", shared.ErrValidation)

// Roles lists every known role in display order.
func Roles() []Role {
	return []Role{RoleSales, RolePurchase, RoleInventory, RoleFinance, RoleAdmin}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// ParseRole accepts either the full role name or its short form (SALES, PURCHASE, ...).
func ParseRole(raw string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if name == "" {
		return "", ErrUnknownRole
	}
	role := Role(name)
	if role.Valid() {
		return role, nil
	}
	role = Role(name + "_MANAGER")
	if role.Valid() {
		return role, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

// Principal describes the caller identity supplied by the identity collaborator.
type Principal struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// Valid reports whether the principal carries a user and a known role.
func (p Principal) Valid() bool {
	return strings.TrimSpace(p.UserID) != "" && p.Role.Valid()
}
