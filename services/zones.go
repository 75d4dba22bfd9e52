package services

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Zone is a fixed-fee delivery band used when an address cannot be geocoded.
type Zone struct {
	Name          string  `json:"name"`
	Fee           float64 `json:"fee"`
	TravelMinutes int     `json:"travelMinutes"`
}

var defaultZones = map[string]Zone{
	"S": {Name: "S", Fee: 4.90, TravelMinutes: 10},
	"A": {Name: "A", Fee: 6.90, TravelMinutes: 15},
	"B": {Name: "B", Fee: 8.90, TravelMinutes: 20},
	"C": {Name: "C", Fee: 10.90, TravelMinutes: 25},
	"D": {Name: "D", Fee: 12.90, TravelMinutes: 35},
	"E": {Name: "E", Fee: 15.90, TravelMinutes: 45},
}

var defaultNeighborhoods = map[string]string{
	"Vila Clementino": "S",
	"Paraíso":         "S",

	"Moema":      "A",
	"Aclimação":  "A",
	"Liberdade":  "A",
	"Bela Vista": "A",

	"Vila Mariana":    "B",
	"Saúde":           "B",
	"Jardim Paulista": "B",
	"Cambuci":         "B",
	"Ibirapuera":      "B",

	"Pinheiros":  "C",
	"Itaim Bibi": "C",
	"Consolação": "C",
	"Cursino":    "C",
	"Ipiranga":   "C",

	"Vila Madalena": "D",
	"Butantã":       "D",
	"Santo Amaro":   "D",
	"Jabaquara":     "D",
	"Mooca":         "D",

	"Santana":    "E",
	"Tatuapé":    "E",
	"Lapa":       "E",
	"Morumbi":    "E",
	"Campo Belo": "E",
}

// ZoneTable maps neighborhood names to zones. Lookups are exact apart from
// case and surrounding whitespace.
type ZoneTable struct {
	byNeighborhood map[string]Zone
}

func NewZoneTable(zones map[string]Zone, neighborhoods map[string]string) (*ZoneTable, error) {
	t := &ZoneTable{byNeighborhood: make(map[string]Zone, len(neighborhoods))}
	for name, zoneName := range neighborhoods {
		z, ok := zones[zoneName]
		if !ok {
			return nil, fmt.Errorf("neighborhood %q: unknown zone %q", name, zoneName)
		}
		t.byNeighborhood[foldKey(name)] = z
	}
	return t, nil
}

// DefaultZoneTable is the built-in São Paulo table.
func DefaultZoneTable() *ZoneTable {
	t, err := NewZoneTable(defaultZones, defaultNeighborhoods)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *ZoneTable) Lookup(neighborhood string) (Zone, bool) {
	if neighborhood == "" {
		return Zone{}, false
	}
	z, ok := t.byNeighborhood[foldKey(neighborhood)]
	return z, ok
}

// Casers hold state, so each call gets its own.
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
