package configuration

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

// BenchParameters describes a benchmark sweep: every node count is run at every rate, Runs times.
type BenchParameters struct {
	// Number of witnesses that are never started. Faulty witnesses are always the last ones of the committee.
	Faults int
	Nodes  []int
	// Input rates in requests per second.
	Rate      []int
	BatchSize int
	Shards    int
	// Run several roles on the same host.
	Collocate bool
	Duration  time.Duration
	// Benchmark the witnesses alone, without the identity provider and its client.
	WitnessOnly bool
	Runs        int
}

// MaxNodes returns the largest node count of the sweep, which determines how many hosts are needed.
func (p *BenchParameters) MaxNodes() int {
	max := 0
	for _, n := range p.Nodes {
		if n > max {
			max = n
		}
	}
	return max
}

// MinNodes returns the smallest node count of the sweep, or 0 if there are none.
func (p *BenchParameters) MinNodes() int {
	if len(p.Nodes) == 0 {
		return 0
	}
	min := p.Nodes[0]
	for _, n := range p.Nodes[1:] {
		if n < min {
			min = n
		}
	}
	return min
}

// PlotParameters describes which results to plot. Either Nodes or Shards may list several values, not both.
type PlotParameters struct {
	Faults     []int
	Nodes      []int
	BatchSize  []int
	Shards     []int
	Collocate  bool
	MaxLatency []int
	// Upper bound of the y axis; nil lets the plotter choose.
	YMax *int
}

// Scalability returns true if the plot compares shard counts rather than node counts.
func (p *PlotParameters) Scalability() bool {
	return len(p.Shards) > 1
}

// ReadParameters reads a JSON or YAML parameters file into a loosely-typed map.
func ReadParameters(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(&bencherrors.ErrConfigFile{Path: path, Err: err})
	}
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WithStack(&bencherrors.ErrConfigFile{Path: path, Err: err})
	}
	return raw, nil
}

// LoadBenchParameters reads and validates the bench parameters file at path.
func LoadBenchParameters(path string) (*BenchParameters, error) {
	raw, err := ReadParameters(path)
	if err != nil {
		return nil, err
	}
	return ParseBenchParameters(raw)
}

// LoadPlotParameters reads and validates the plot parameters file at path.
func LoadPlotParameters(path string) (*PlotParameters, error) {
	raw, err := ReadParameters(path)
	if err != nil {
		return nil, err
	}
	return ParsePlotParameters(raw)
}

// ParseBenchParameters validates raw in three passes: required keys, then types, then invariants between fields.
// Any list-valued field may also be given as a single value.
func ParseBenchParameters(raw map[string]interface{}) (*BenchParameters, error) {
	if err := requireKeys(raw, "bench parameters", "faults", "nodes", "rate", "batch_size", "duration"); err != nil {
		return nil, err
	}

	p := &BenchParameters{
		Shards:    1,
		Collocate: true,
		Runs:      1,
	}
	var duration int
	fields := []field{
		{"faults", &p.Faults, "integer"},
		{"nodes", &p.Nodes, "integer or list of integers"},
		{"rate", &p.Rate, "integer or list of integers"},
		{"batch_size", &p.BatchSize, "integer"},
		{"shards", &p.Shards, "integer"},
		{"collocate", &p.Collocate, "boolean"},
		{"duration", &duration, "integer"},
		{"witness-only", &p.WitnessOnly, "boolean"},
		{"runs", &p.Runs, "integer"},
	}
	if err := decodeFields(raw, fields); err != nil {
		return nil, err
	}
	p.Duration = time.Duration(duration) * time.Second

	if len(p.Nodes) == 0 || p.MinNodes() <= 1 {
		return nil, invalid("nodes", p.Nodes, "missing or invalid number of nodes")
	}
	if len(p.Rate) == 0 {
		return nil, invalid("rate", p.Rate, "missing input rate")
	}
	if p.Faults < 0 {
		return nil, invalid("faults", p.Faults, "must not be negative")
	}
	if p.BatchSize <= 0 {
		return nil, invalid("batch_size", p.BatchSize, "must be positive")
	}
	if p.Shards <= 0 {
		return nil, invalid("shards", p.Shards, "must be positive")
	}
	if p.Duration <= 0 {
		return nil, invalid("duration", duration, "must be positive")
	}
	if p.Runs <= 0 {
		return nil, invalid("runs", p.Runs, "must be positive")
	}
	if p.MinNodes() <= p.Faults {
		return nil, invalid("faults", p.Faults, "there should be more nodes than faults")
	}
	return p, nil
}

// ParsePlotParameters validates raw the same way as ParseBenchParameters.
// An empty faults list means no faults.
func ParsePlotParameters(raw map[string]interface{}) (*PlotParameters, error) {
	if err := requireKeys(raw, "plot parameters", "faults", "nodes", "batch_size", "max_latency"); err != nil {
		return nil, err
	}

	p := &PlotParameters{
		Shards:    []int{1},
		Collocate: true,
	}
	fields := []field{
		{"faults", &p.Faults, "integer or list of integers"},
		{"nodes", &p.Nodes, "integer or list of integers"},
		{"batch_size", &p.BatchSize, "integer or list of integers"},
		{"shards", &p.Shards, "integer or list of integers"},
		{"collocate", &p.Collocate, "boolean"},
		{"max_latency", &p.MaxLatency, "integer or list of integers"},
		{"y_max", &p.YMax, "integer"},
	}
	if err := decodeFields(raw, fields); err != nil {
		return nil, err
	}

	if len(p.Faults) == 0 {
		p.Faults = []int{0}
	}
	if len(p.Nodes) == 0 {
		return nil, invalid("nodes", p.Nodes, "missing number of nodes")
	}
	if len(p.BatchSize) == 0 {
		return nil, invalid("batch_size", p.BatchSize, "missing batch size")
	}
	if len(p.MaxLatency) == 0 {
		return nil, invalid("max_latency", p.MaxLatency, "missing max latency")
	}
	if len(p.Nodes) > 1 && len(p.Shards) > 1 {
		return nil, invalid("shards", p.Shards, `either "nodes" or "shards" can be a list, not both`)
	}
	return p, nil
}

type field struct {
	key      string
	target   interface{}
	expected string
}

func requireKeys(raw map[string]interface{}, source string, keys ...string) error {
	for _, key := range keys {
		if _, ok := raw[key]; !ok {
			return errors.WithStack(&bencherrors.ErrMissingKey{Key: key, Source: source})
		}
	}
	return nil
}

// decodeFields decodes every present key into its target. Absent keys keep the target's default.
func decodeFields(raw map[string]interface{}, fields []field) error {
	for _, f := range fields {
		value, ok := raw[f.key]
		if !ok {
			continue
		}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			ZeroFields:       true,
			Result:           f.target,
		})
		if err != nil {
			return errors.WithStack(err)
		}
		if err := decoder.Decode(value); err != nil {
			return errors.WithStack(&bencherrors.ErrInvalidType{Key: f.key, Value: value, Expected: f.expected})
		}
	}
	return nil
}

func invalid(name string, value interface{}, message string) error {
	return errors.WithStack(&bencherrors.ErrInvalidArgument{Name: name, Value: fmt.Sprint(value), Message: message})
}

// SweepPoint is one run of a sweep.
type SweepPoint struct {
	Faults    int
	Nodes     int
	Shards    int
	Collocate bool
	Rate      int
	// Zero-based index of the run among the runs of the same point.
	Run int
}

func (p SweepPoint) String() string {
	return fmt.Sprintf("%d nodes, %d faults, rate %d, run %d", p.Nodes, p.Faults, p.Rate, p.Run+1)
}

// Points returns every run of the sweep: for each node count, for each rate, Runs runs.
func (p *BenchParameters) Points() []SweepPoint {
	rv := make([]SweepPoint, 0, len(p.Nodes)*len(p.Rate)*p.Runs)
	for _, nodes := range p.Nodes {
		for _, rate := range p.Rate {
			for run := 0; run < p.Runs; run++ {
				rv = append(rv, SweepPoint{
					Faults:    p.Faults,
					Nodes:     nodes,
					Shards:    p.Shards,
					Collocate: p.Collocate,
					Rate:      rate,
					Run:       run,
				})
			}
		}
	}
	return rv
}
