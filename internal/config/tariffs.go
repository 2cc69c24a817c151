package config

import "sort"

// Tariff is a fixed CPU/RAM/disk/price bundle offered to customers.
type Tariff struct {
	ID        string
	Name      string
	Cores     int
	MemoryMB  int
	DiskGB    int
	PriceRUB  float64
	PriceUSDT float64
}

var tariffs = map[string]Tariff{
	"starter": {
		ID:        "starter",
		Name:      "Starter",
		Cores:     1,
		MemoryMB:  1024,
		DiskGB:    20,
		PriceRUB:  250,
		PriceUSDT: 3.0,
	},
	"standard": {
		ID:        "standard",
		Name:      "Standard",
		Cores:     2,
		MemoryMB:  2048,
		DiskGB:    40,
		PriceRUB:  450,
		PriceUSDT: 5.0,
	},
	"pro": {
		ID:        "pro",
		Name:      "Pro",
		Cores:     4,
		MemoryMB:  4096,
		DiskGB:    80,
		PriceRUB:  850,
		PriceUSDT: 10.0,
	},
}

// TariffByID looks up a tariff; ok is false for unknown ids.
func TariffByID(id string) (Tariff, bool) {
	t, ok := tariffs[id]
	return t, ok
}

// Tariffs lists the catalog cheapest-first.
func Tariffs() []Tariff {
	out := make([]Tariff, 0, len(tariffs))
	for _, t := range tariffs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceRUB < out[j].PriceRUB })
	return out
}
