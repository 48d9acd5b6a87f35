package gamedata

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	// tutorialIDPrefix marks tutorial-only plants that never appear in
	// the ranking regardless of their other fields.
	tutorialIDPrefix = "2020"
	rankingLimit     = 50
)

// RankEntry is one row of the experience-per-hour plant ranking.
type RankEntry struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SeedID       string  `json:"seedId"`
	Exp          int     `json:"exp"`
	Seasons      int     `json:"seasons"`
	TotalExp     int     `json:"totalExp"`
	GrowTimeSec  int     `json:"growTimeSec"`
	RegrowSec    int     `json:"regrowSec"`
	TotalTimeSec int     `json:"totalTimeSec"`
	ExpPerHour   float64 `json:"expPerHour"`
}

// PlantRanking computes the top plants by experience per hour for a player
// at the given level. Plants without a purchasable seed available at that
// level are excluded. Ties keep catalogue order.
func (c *Catalog) PlantRanking(level int) []RankEntry {
	if level < 1 {
		level = 1
	}

	ranking := make([]RankEntry, 0, len(c.Plants))
	for _, plant := range c.Plants {
		if plant.SeedID == "" {
			continue
		}
		if strings.HasPrefix(plant.ID, tutorialIDPrefix) {
			continue
		}
		if seed, ok := c.Items[plant.SeedID]; ok {
			if seed.LevelLimit > level {
				continue
			}
			if seed.Price == 0 {
				continue
			}
		}
		if plant.Exp <= 0 || plant.GrowTimeSec <= 0 {
			continue
		}

		seasons := plant.Seasons
		if seasons < 1 {
			seasons = 1
		}

		// Multi-season plants regrow from the last positive-duration
		// phase after each harvest.
		regrowSec := 0
		if seasons > 1 && plant.GrowPhases != "" {
			regrowSec = lastPhaseDuration(plant.GrowPhases)
		}

		totalExp := plant.Exp * seasons
		totalTimeSec := plant.GrowTimeSec + (seasons-1)*regrowSec
		expPerHour := float64(totalExp) / float64(totalTimeSec) * 3600

		ranking = append(ranking, RankEntry{
			ID:           plant.ID,
			Name:         plant.Name,
			SeedID:       plant.SeedID,
			Exp:          plant.Exp,
			Seasons:      seasons,
			TotalExp:     totalExp,
			GrowTimeSec:  plant.GrowTimeSec,
			RegrowSec:    regrowSec,
			TotalTimeSec: totalTimeSec,
			ExpPerHour:   math.Round(expPerHour*100) / 100,
		})
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].ExpPerHour > ranking[j].ExpPerHour
	})
	if len(ranking) > rankingLimit {
		ranking = ranking[:rankingLimit]
	}
	return ranking
}

// lastPhaseDuration parses a "phase:durationSec;..." string and returns the
// duration of the last segment with a positive duration.
func lastPhaseDuration(phases string) int {
	last := 0
	for _, seg := range strings.Split(phases, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		_, raw, found := strings.Cut(seg, ":")
		if !found {
			continue
		}
		d, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || d <= 0 {
			continue
		}
		last = d
	}
	return last
}
