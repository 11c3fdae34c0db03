package identity

// Capability is a named permission checked by the application layer
// before any core operation runs.
type Capability string

const (
	CapTenantCreate     Capability = "tenant.create"
	CapTenantManage     Capability = "tenant.manage"
	CapUserCreate       Capability = "user.create"
	CapUserManage       Capability = "user.manage"
	CapUserKYCReview    Capability = "user.kyc.review"
	CapAccountOpen      Capability = "account.open"
	CapAccountFreeze    Capability = "account.freeze"
	CapAccountClose     Capability = "account.close"
	CapAccountView      Capability = "account.view"
	CapTxnCreate        Capability = "txn.create"
	CapTxnApprove       Capability = "txn.approve"
	CapTxnProcess       Capability = "txn.process"
	CapTxnCancel        Capability = "txn.cancel"
	CapTxnView          Capability = "txn.view"
	CapJournalPost      Capability = "journal.post"
	CapJournalReverse   Capability = "journal.reverse"
	CapJournalView      Capability = "journal.view"
	CapRateManage       Capability = "rate.manage"
	CapRateView         Capability = "rate.view"
	CapAuditView        Capability = "audit.view"
	CapBalanceAdjust    Capability = "balance.adjust"
	CapLedgerQuarantine Capability = "ledger.quarantine"
	CapCrossTenantView  Capability = "tenant.cross_view"
)

// roleCapabilities maps each role to the capabilities it carries.
// Capabilities are fixed per role; there is no per-user grant table.
var roleCapabilities = map[UserRole][]Capability{
	RoleSuperAdmin: {
		CapTenantCreate, CapTenantManage,
		CapUserCreate, CapUserManage, CapUserKYCReview,
		CapAccountOpen, CapAccountFreeze, CapAccountClose, CapAccountView,
		CapTxnCreate, CapTxnApprove, CapTxnProcess, CapTxnCancel, CapTxnView,
		CapJournalPost, CapJournalReverse, CapJournalView,
		CapRateManage, CapRateView,
		CapAuditView, CapBalanceAdjust, CapLedgerQuarantine, CapCrossTenantView,
	},
	RoleTenantAdmin: {
		CapTenantManage,
		CapUserCreate, CapUserManage, CapUserKYCReview,
		CapAccountOpen, CapAccountFreeze, CapAccountClose, CapAccountView,
		CapTxnCreate, CapTxnApprove, CapTxnProcess, CapTxnCancel, CapTxnView,
		CapJournalPost, CapJournalReverse, CapJournalView,
		CapRateManage, CapRateView,
		CapAuditView, CapBalanceAdjust,
	},
	RoleManager: {
		CapUserKYCReview,
		CapAccountOpen, CapAccountFreeze, CapAccountView,
		CapTxnCreate, CapTxnApprove, CapTxnProcess, CapTxnCancel, CapTxnView,
		CapJournalPost, CapJournalReverse, CapJournalView,
		CapRateManage, CapRateView,
		CapAuditView,
	},
	RoleStaff: {
		CapAccountOpen, CapAccountView,
		CapTxnCreate, CapTxnProcess, CapTxnView,
		CapJournalView, CapRateView,
	},
	RoleCustomer: {
		CapAccountView,
		CapTxnCreate, CapTxnView, CapTxnCancel,
		CapRateView,
	},
}

// HasCapability reports whether the role carries the capability.
func HasCapability(role UserRole, cap Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == cap {
			return true
		}
	}
	return false
}

// CapabilitiesFor returns the capabilities carried by the role.
func CapabilitiesFor(role UserRole) []Capability {
	caps := roleCapabilities[role]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}
