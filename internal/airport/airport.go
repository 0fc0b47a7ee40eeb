// Package airport carries the airport reference data sessions are flown
// against: identifiers, frequencies and the runway list the simulator
// draws from. The data originates from a periodically refreshed FAA
// extract; this package only models the already-downloaded artifact.
package airport

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Runway is one runway end.
type Runway struct {
	Designator string `json:"designator"` // "22", "04L", ...
	LengthFt   int    `json:"length_ft,omitempty"`
	Closed     bool   `json:"closed,omitempty"`
}

// Airport is the reference record for one field.
type Airport struct {
	ICAO        string   `json:"icao"`
	Name        string   `json:"name"`
	ElevationFt int      `json:"elevation_ft,omitempty"`
	TowerFreq   string   `json:"tower_freq,omitempty"`
	GroundFreq  string   `json:"ground_freq,omitempty"`
	CTAF        string   `json:"ctaf,omitempty"`
	Runways     []Runway `json:"runways,omitempty"`
}

// OpenRunways returns the non-closed runway ends.
func (a *Airport) OpenRunways() []Runway {
	out := make([]Runway, 0, len(a.Runways))
	for _, r := range a.Runways {
		if !r.Closed {
			out = append(out, r)
		}
	}
	return out
}

// Index is an in-memory ICAO lookup over a loaded reference file.
type Index struct {
	byICAO map[string]*Airport
	order  []string
}

//go:embed defaults/airports.json
var defaultAirports []byte

// Load reads an airport reference file. An empty path loads the built-in
// default set.
func Load(path string) (*Index, error) {
	data := defaultAirports
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read airports: %w", err)
		}
	}
	var airports []*Airport
	if err := json.Unmarshal(data, &airports); err != nil {
		return nil, fmt.Errorf("parse airports: %w", err)
	}

	idx := &Index{byICAO: make(map[string]*Airport, len(airports))}
	for _, a := range airports {
		icao := strings.ToUpper(strings.TrimSpace(a.ICAO))
		if icao == "" {
			return nil, fmt.Errorf("parse airports: record %q has no ICAO", a.Name)
		}
		if _, dup := idx.byICAO[icao]; dup {
			return nil, fmt.Errorf("parse airports: duplicate ICAO %q", icao)
		}
		a.ICAO = icao
		idx.byICAO[icao] = a
		idx.order = append(idx.order, icao)
	}
	return idx, nil
}

// Lookup returns the airport for an ICAO id.
func (i *Index) Lookup(icao string) (*Airport, bool) {
	a, ok := i.byICAO[strings.ToUpper(icao)]
	return a, ok
}

// ICAOs lists loaded airports in file order.
func (i *Index) ICAOs() []string {
	out := make([]string, len(i.order))
	copy(out, i.order)
	return out
}
