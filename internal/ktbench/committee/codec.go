package committee

import (
	"bytes"
	"encoding/json"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Wire format. Fields are declared in alphabetical order and witnesses are a map,
// so the encoding has sorted keys at every level.
type committeeFile struct {
	Idp       idpEntry                `json:"idp"`
	Witnesses map[string]witnessEntry `json:"witnesses"`
}

type idpEntry struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type witnessEntry struct {
	Address     string `json:"address"`
	VotingPower int    `json:"voting_power"`
}

// Marshal returns the committee file contents: JSON indented by four spaces, with sorted keys.
// Equal committees always produce identical bytes.
func (c *Committee) Marshal() ([]byte, error) {
	file := committeeFile{
		Idp:       idpEntry{Address: c.idpAddress, Name: c.idpName},
		Witnesses: make(map[string]witnessEntry, len(c.witnesses)),
	}
	for _, w := range c.witnesses {
		file.Witnesses[w.Name] = witnessEntry{Address: w.Address, VotingPower: w.VotingPower}
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(file); err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Unmarshal parses committee file contents. The file sorts witnesses by name,
// so their order is restored from their ports.
func Unmarshal(data []byte) (*Committee, error) {
	var file committeeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.WithStack(err)
	}
	if file.Idp.Name == "" || file.Idp.Address == "" {
		return nil, errors.New("committee has no identity provider")
	}
	witnesses := make([]Witness, 0, len(file.Witnesses))
	for name, entry := range file.Witnesses {
		witnesses = append(witnesses, Witness{Name: name, VotingPower: entry.VotingPower, Address: entry.Address})
	}
	slices.SortFunc(witnesses, func(a, b Witness) bool {
		pa, pb := port(a.Address), port(b.Address)
		if pa != pb {
			return pa < pb
		}
		return a.Name < b.Name
	})
	return &Committee{
		idpName:    file.Idp.Name,
		idpAddress: file.Idp.Address,
		witnesses:  witnesses,
	}, nil
}

func port(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return -1
	}
	rv, err := strconv.Atoi(p)
	if err != nil {
		return -1
	}
	return rv
}
