package gamedata

import (
	"encoding/json"
	"fmt"
	"os"
)

// Plant is one entry of the static game catalogue.
type Plant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SeedID      string `json:"seed_id"`
	Seasons     int    `json:"seasons"`
	GrowPhases  string `json:"grow_phases"` // Semicolon-delimited "phase:durationSec" segments.
	Exp         int    `json:"exp"`         // Experience per harvest.
	GrowTimeSec int    `json:"grow_time_sec"`
}

// Item describes a shop item; seeds carry a level requirement and a price.
type Item struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LevelLimit int    `json:"level_limit"`
	Price      int    `json:"price"`
}

type Catalog struct {
	Plants []Plant         `json:"plants"`
	Items  map[string]Item `json:"items"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Items == nil {
		c.Items = make(map[string]Item)
	}
	return &c, nil
}

func (c *Catalog) ItemInfo(id string) (Item, bool) {
	item, ok := c.Items[id]
	return item, ok
}
