package settlement

import "github.com/alanyoungcy/wagerbook/internal/domain"

// RequireAuthority returns denied unless caller administers m.
func RequireAuthority(m domain.Market, caller string, denied error) error {
	if caller == "" || caller != m.Authority {
		return denied
	}
	return nil
}

// SignerSet is the set of oracle identities whose readings may resolve a
// market. An empty set trusts any signer that verifies.
type SignerSet map[string]struct{}

// NewSignerSet builds a SignerSet from identities, ignoring blanks.
func NewSignerSet(identities ...string) SignerSet {
	s := make(SignerSet, len(identities))
	for _, id := range identities {
		if id != "" {
			s[normalizeIdentity(id)] = struct{}{}
		}
	}
	return s
}

// RequireTrustedSigner fails with ErrUnauthorizedResolver when signer is not
// in the set.
func (s SignerSet) RequireTrustedSigner(signer string) error {
	if len(s) == 0 {
		return nil
	}
	if _, ok := s[normalizeIdentity(signer)]; !ok {
		return domain.ErrUnauthorizedResolver
	}
	return nil
}
