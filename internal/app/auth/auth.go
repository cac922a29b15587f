// Package auth decides which accounts may perform privileged marketplace
// operations. The current deployment model has a single administrator.
package auth

import "github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"

// Authorizer answers admin checks for privileged operations.
type Authorizer interface {
	IsAdmin(account asset.Account) bool
}

// StaticAdmin authorizes exactly one account.
type StaticAdmin struct {
	admin asset.Account
}

var _ Authorizer = StaticAdmin{}

// NewStaticAdmin returns an authorizer recognising admin as the sole
// privileged account.
func NewStaticAdmin(admin asset.Account) StaticAdmin {
	return StaticAdmin{admin: admin}
}

func (s StaticAdmin) IsAdmin(account asset.Account) bool {
	return account != "" && account == s.admin
}

// Admin returns the privileged account.
func (s StaticAdmin) Admin() asset.Account { return s.admin }
