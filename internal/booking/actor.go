package booking

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMerchant Role = "merchant"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMerchant || r == RoleCustomer
}

// Actor is the authenticated caller as reported by the transport layer.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// Scope restricts which rows a read may return. The zero value matches
// nothing; use ScopeAll for unrestricted reads.
type Scope struct {
	All          bool
	MerchantID   string
	CustomerID   string
	ApprovedOnly bool
}

var ScopeAll = Scope{All: true}

func (s Scope) MatchesProduct(p *Product) bool {
	switch {
	case s.All:
		return true
	case s.MerchantID != "":
		return p.MerchantID == s.MerchantID
	case s.ApprovedOnly:
		return p.Status == ProductApproved
	}
	return false
}

func (s Scope) MatchesOrder(o *Order) bool {
	switch {
	case s.All:
		return true
	case s.MerchantID != "":
		return o.MerchantID == s.MerchantID
	case s.CustomerID != "":
		return o.CustomerID == s.CustomerID
	}
	return false
}
