package vault

import "github.com/ethereum/go-ethereum/common"

// distributorSet is the local exemption list: the handful of addresses the
// administrator has whitelisted. Call scopes clone it wholesale for revert.
type distributorSet map[common.Address]struct{}

func (s distributorSet) has(addr common.Address) bool {
	_, ok := s[addr]
	return ok
}

func (s distributorSet) set(addr common.Address, enabled bool) {
	if enabled {
		s[addr] = struct{}{}
		return
	}
	delete(s, addr)
}

func (s distributorSet) clone() distributorSet {
	out := make(distributorSet, len(s))
	for addr := range s {
		out[addr] = struct{}{}
	}
	return out
}
