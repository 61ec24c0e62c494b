package domain

// Identity is the caller resolved by the identity gate.
type Identity struct {
	MemberID MemberID `json:"memberId"`
	Email    string   `json:"email"`
}
