package hosts

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/common/slices"
)

const (
	hostsTable = "hosts"
	idIndex    = "id"    // index for looking up hosts by address
	orderIndex = "order" // index for iterating over the hosts of a region in inventory order
)

// Host is a machine of the testbed.
type Host struct {
	// IP address or DNS name used to ssh into the host.
	Address string
	// Failure domain of the host, e.g., a cloud region.
	Region string
	// Position of the host within its region in the inventory file.
	Position int
}

// Inventory holds the hosts of the testbed, grouped by region.
// Inventory is implemented on top of https://github.com/hashicorp/go-memdb.
type Inventory struct {
	// Stores *Host.
	db *memdb.MemDB
	// Regions in the order of the settings file.
	regions []string
}

// File is the inventory file: hosts listed per region, e.g.,
//
//	regions:
//	  us-east-1: [10.0.0.1, 10.0.0.2]
//	  eu-north-1: [10.1.0.1]
type File struct {
	Regions map[string][]string `json:"regions"`
}

func NewInventory(regions []string) (*Inventory, error) {
	db, err := memdb.NewMemDB(inventorySchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Inventory{
		db:      db,
		regions: append([]string(nil), regions...),
	}, nil
}

// LoadInventory reads the inventory file at path and keeps the hosts of the given regions only.
func LoadInventory(path string, regions []string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(&bencherrors.ErrConfigFile{Path: path, Err: err})
	}
	var file File
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, errors.WithStack(&bencherrors.ErrConfigFile{Path: path, Err: err})
	}
	inventory, err := NewInventory(regions)
	if err != nil {
		return nil, err
	}
	var hosts []*Host
	for _, region := range regions {
		for i, address := range file.Regions[region] {
			hosts = append(hosts, &Host{Address: address, Region: region, Position: i})
		}
	}
	if err := inventory.Add(hosts...); err != nil {
		return nil, err
	}
	return inventory, nil
}

// Add inserts hosts into the inventory. Addresses must be unique across regions.
func (inventory *Inventory) Add(hosts ...*Host) error {
	txn := inventory.db.Txn(true)
	defer txn.Abort()
	for _, host := range hosts {
		if host.Address == "" {
			return errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "address", Value: host.Address, Message: "empty host address"})
		}
		existing, err := txn.First(hostsTable, idIndex, host.Address)
		if err != nil {
			return errors.WithStack(err)
		}
		if existing != nil {
			return errors.WithStack(&bencherrors.ErrInvalidArgument{
				Name:    "address",
				Value:   host.Address,
				Message: fmt.Sprintf("host listed in both %s and %s", existing.(*Host).Region, host.Region),
			})
		}
		if err := txn.Insert(hostsTable, host); err != nil {
			return errors.WithStack(err)
		}
	}
	txn.Commit()
	return nil
}

// Regions returns the regions of the inventory, in settings order.
func (inventory *Inventory) Regions() []string {
	return append([]string(nil), inventory.regions...)
}

// Hosts returns the addresses of the hosts of region, in inventory order.
func (inventory *Inventory) Hosts(region string) ([]string, error) {
	txn := inventory.db.Txn(false)
	it, err := txn.LowerBound(hostsTable, orderIndex, region, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := make([]string, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		host := obj.(*Host)
		if host.Region != region {
			// The index is sorted by region first.
			break
		}
		rv = append(rv, host.Address)
	}
	return rv, nil
}

// Grouped returns the addresses of all hosts, one slice per region, in settings order.
func (inventory *Inventory) Grouped() ([][]string, error) {
	rv := make([][]string, len(inventory.regions))
	for i, region := range inventory.regions {
		hosts, err := inventory.Hosts(region)
		if err != nil {
			return nil, err
		}
		rv[i] = hosts
	}
	return rv, nil
}

// All returns the addresses of all hosts, region by region.
func (inventory *Inventory) All() ([]string, error) {
	grouped, err := inventory.Grouped()
	if err != nil {
		return nil, err
	}
	return slices.Flatten(grouped), nil
}

// Size returns the number of hosts.
func (inventory *Inventory) Size() (int, error) {
	txn := inventory.db.Txn(false)
	it, err := txn.Get(hostsTable, idIndex)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}

func inventorySchema() *memdb.DBSchema {
	indexes := make(map[string]*memdb.IndexSchema)
	indexes[idIndex] = &memdb.IndexSchema{
		Name:    idIndex,
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "Address"},
	}
	indexes[orderIndex] = &memdb.IndexSchema{
		Name:   orderIndex,
		Unique: false,
		Indexer: &memdb.CompoundIndex{
			Indexes: []memdb.Indexer{
				&memdb.StringFieldIndex{Field: "Region"},
				&memdb.IntFieldIndex{Field: "Position"},
			},
		},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			hostsTable: {
				Name:    hostsTable,
				Indexes: indexes,
			},
		},
	}
}
