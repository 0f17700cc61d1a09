package hosts

import (
	"github.com/G-Research/ktbench/internal/common/slices"
)

// Selector picks the hosts of a benchmark from the inventory.
type Selector struct {
	inventory *Inventory
}

func NewSelector(inventory *Inventory) *Selector {
	return &Selector{inventory: inventory}
}

// Select returns nodes+1 hosts: one per witness, and the identity provider on the last one.
// Hosts are taken round-robin across regions so that witnesses are spread as evenly as possible.
// If the inventory has fewer than nodes+1 hosts, Select returns nil and no error.
func (s *Selector) Select(nodes int) ([]string, error) {
	grouped, err := s.inventory.Grouped()
	if err != nil {
		return nil, err
	}
	ordered := slices.Interleave(grouped)
	if nodes < 0 || len(ordered) < nodes+1 {
		return nil, nil
	}
	return ordered[:nodes+1], nil
}
