package enums

// MembershipStatus is derived from the member role and contribution state,
// never stored directly.
type MembershipStatus string

const (
	MembershipStatusNone     MembershipStatus = "none"
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusExpiring MembershipStatus = "expiring"
	MembershipStatusExpired  MembershipStatus = "expired"
)

// String implements fmt.Stringer.
func (m MembershipStatus) String() string {
	return string(m)
}
