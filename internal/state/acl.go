package state

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"obscuraplay/internal/fhe"
)

// Grant lets Grantee decrypt a handle within Contract. A public grant has no grantee
// and is honored for anyone.
type Grant struct {
	Grantee  common.Address `json:"grantee"`
	Public   bool           `json:"public,omitempty"`
	Contract common.Address `json:"contract"`
}

func (g Grant) matches(requester, contract common.Address) bool {
	if g.Public {
		return true
	}
	return g.Grantee == requester && g.Contract == contract
}

func sortGrants(gs []Grant) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].Public != gs[j].Public {
			return gs[i].Public
		}
		if c := bytes.Compare(gs[i].Contract[:], gs[j].Contract[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(gs[i].Grantee[:], gs[j].Grantee[:]) < 0
	})
}

func (s *State) addGrant(h fhe.Handle, g Grant) {
	for _, have := range s.Grants[h] {
		if have == g {
			return
		}
	}
	s.Grants[h] = append(s.Grants[h], g)
}

// Allow grants grantee access to h within contract.
func (s *State) Allow(h fhe.Handle, grantee, contract common.Address) {
	s.addGrant(h, Grant{Grantee: grantee, Contract: contract})
}

// AllowPublic makes h decryptable by anyone. There is no revocation.
func (s *State) AllowPublic(h fhe.Handle, contract common.Address) {
	s.addGrant(h, Grant{Public: true, Contract: contract})
}

func (s *State) CanDecrypt(h fhe.Handle, requester, contract common.Address) bool {
	for _, g := range s.Grants[h] {
		if g.matches(requester, contract) {
			return true
		}
	}
	return false
}

func (s *State) IsPublic(h fhe.Handle) bool {
	for _, g := range s.Grants[h] {
		if g.Public {
			return true
		}
	}
	return false
}

// Issued reports whether the ledger ever handed h out. Every issued handle carries at
// least the grant to the identity it was issued for.
func (s *State) Issued(h fhe.Handle) bool {
	return len(s.Grants[h]) > 0
}

func (s *State) GrantsFor(h fhe.Handle) []Grant {
	out := append([]Grant(nil), s.Grants[h]...)
	sortGrants(out)
	return out
}
