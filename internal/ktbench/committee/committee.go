// Package committee maps the identity provider and the witnesses of one deployment to network addresses.
//
// The identity provider listens on the base port and every witness on the next port, in the order the
// witnesses were given. That order matters: the faulty witnesses of a benchmark are always the last ones,
// and are never started.
package committee

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/common/slices"
	"github.com/G-Research/ktbench/internal/ktbench/configuration"
)

// LocalHost is the address of every node of a committee created with NewLocal.
const LocalHost = "127.0.0.1"

// DefaultVotingPower is the voting power of every witness.
const DefaultVotingPower = 1

// Member is a node to place on a host.
type Member struct {
	Name string
	Host string
}

// Witness is a committee member with its assigned address.
type Witness struct {
	Name        string
	VotingPower int
	Address     string
}

// Host returns the host part of the witness address.
func (w Witness) Host() string {
	return Host(w.Address)
}

// Committee is the address book shared by every node of a deployment.
type Committee struct {
	idpName    string
	idpAddress string
	witnesses  []Witness
}

// New assigns basePort to the identity provider and basePort+1, basePort+2, ... to witnesses, in order.
func New(idp, idpHost string, witnesses []Member, basePort int) (*Committee, error) {
	if idp == "" {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "idp", Value: idp, Message: "name must not be empty"})
	}
	if basePort <= configuration.ReservedPortThreshold || basePort+len(witnesses) > 65535 {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "basePort",
			Value:   basePort,
			Message: fmt.Sprintf("ports %d to %d must be above %d", basePort, basePort+len(witnesses), configuration.ReservedPortThreshold),
		})
	}
	seen := make(map[string]bool, len(witnesses))
	c := &Committee{
		idpName:    idp,
		idpAddress: address(idpHost, basePort),
		witnesses:  make([]Witness, len(witnesses)),
	}
	for i, member := range witnesses {
		if member.Name == "" || seen[member.Name] {
			return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
				Name:    "witnesses",
				Value:   member.Name,
				Message: "witness names must be unique and non-empty",
			})
		}
		seen[member.Name] = true
		c.witnesses[i] = Witness{
			Name:        member.Name,
			VotingPower: DefaultVotingPower,
			Address:     address(member.Host, basePort+1+i),
		}
	}
	return c, nil
}

// NewLocal creates a committee where every node runs on LocalHost.
func NewLocal(idp string, names []string, basePort int) (*Committee, error) {
	members := slices.Map(names, func(name string) Member {
		return Member{Name: name, Host: LocalHost}
	})
	return New(idp, LocalHost, members, basePort)
}

// Size returns the number of witnesses.
func (c *Committee) Size() int {
	return len(c.witnesses)
}

func (c *Committee) IdpName() string {
	return c.idpName
}

func (c *Committee) IdpAddress() string {
	return c.idpAddress
}

// Witnesses returns a copy of the witnesses, in order.
func (c *Committee) Witnesses() []Witness {
	rv := make([]Witness, len(c.witnesses))
	copy(rv, c.witnesses)
	return rv
}

// Addresses returns the addresses of the first Size()-faults witnesses, i.e., of the witnesses to start.
func (c *Committee) Addresses(faults int) ([]string, error) {
	if faults < 0 || faults >= c.Size() {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "faults",
			Value:   faults,
			Message: fmt.Sprintf("must be in [0, %d)", c.Size()),
		})
	}
	good := c.Size() - faults
	rv := make([]string, good)
	for i, w := range c.witnesses[:good] {
		rv[i] = w.Address
	}
	return rv, nil
}

// Ips returns the distinct hosts of the named witnesses, or of all witnesses if no name is given.
// The host of the identity provider is always included. The result is sorted.
func (c *Committee) Ips(names ...string) ([]string, error) {
	hosts := map[string]bool{Host(c.idpAddress): true}
	if len(names) == 0 {
		for _, w := range c.witnesses {
			hosts[w.Host()] = true
		}
	}
	for _, name := range names {
		w, ok := c.witness(name)
		if !ok {
			return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "name", Value: name, Message: "no such witness"})
		}
		hosts[w.Host()] = true
	}
	rv := maps.Keys(hosts)
	sort.Strings(rv)
	return rv, nil
}

// RemoveNodes removes the last k witnesses.
func (c *Committee) RemoveNodes(k int) error {
	if k < 0 || k >= c.Size() {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "nodes",
			Value:   k,
			Message: fmt.Sprintf("can only remove [0, %d) witnesses", c.Size()),
		})
	}
	c.witnesses = c.witnesses[:c.Size()-k]
	return nil
}

func (c *Committee) witness(name string) (Witness, bool) {
	for _, w := range c.witnesses {
		if w.Name == name {
			return w, true
		}
	}
	return Witness{}, false
}

// Host returns the host part of a host:port address.
func Host(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Print writes the committee file read by every node to path.
func (c *Committee) Print(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return errors.WithStack(os.WriteFile(path, data, 0o644))
}

// Load reads a committee file written by Print.
func Load(path string) (*Committee, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c, err := Unmarshal(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load committee %s", path)
	}
	return c, nil
}
