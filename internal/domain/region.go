package domain

import (
	"strings"
	"time"
	_ "time/tzdata" // America/New_York must resolve on minimal images
)

// Region is one of the fixed NYC borough zones records are attributed to.
type Region string

const (
	Manhattan     Region = "MANHATTAN"
	Brooklyn      Region = "BROOKLYN"
	Queens        Region = "QUEENS"
	Bronx         Region = "BRONX"
	StatenIsland  Region = "STATEN ISLAND"
	UnknownRegion Region = "UNKNOWN"
)

// Regions lists the five named boroughs in a stable order. UnknownRegion is
// not included; it only appears on collisions with a blank borough.
var Regions = []Region{Manhattan, Brooklyn, Queens, Bronx, StatenIsland}

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lon float64
}

// regionCenters holds the point used to query weather for each borough.
var regionCenters = map[Region]Coordinate{
	Manhattan:    {Lat: 40.7831, Lon: -73.9712},
	Brooklyn:     {Lat: 40.6782, Lon: -73.9442},
	Queens:       {Lat: 40.7282, Lon: -73.7949},
	Bronx:        {Lat: 40.8448, Lon: -73.8648},
	StatenIsland: {Lat: 40.5795, Lon: -74.1502},
}

// regionAliases maps spellings seen in upstream data to canonical regions.
var regionAliases = map[string]Region{
	"STATEN IS": StatenIsland,
	"THE BRONX": Bronx,
}

// NYC is the zone all time features are derived in.
var NYC = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Center returns the weather query coordinate for the region.
func (r Region) Center() (Coordinate, bool) {
	c, ok := regionCenters[r]
	return c, ok
}

func (r Region) String() string { return string(r) }

// ParseRegion normalizes a borough name. Blank input maps to UnknownRegion when
// allowUnknown is set; any other unrecognized value is rejected.
func ParseRegion(s string, allowUnknown bool) (Region, bool) {
	s = strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	if s == "" || s == string(UnknownRegion) {
		return UnknownRegion, allowUnknown
	}
	if r, ok := regionAliases[s]; ok {
		return r, true
	}
	r := Region(s)
	if _, ok := regionCenters[r]; ok {
		return r, true
	}
	return "", false
}
