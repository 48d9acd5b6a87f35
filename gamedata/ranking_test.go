package gamedata

import (
	"fmt"
	"testing"
)

func testCatalog(plants []Plant, items []Item) *Catalog {
	m := make(map[string]Item, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return &Catalog{Plants: plants, Items: m}
}

func TestPlantRankingMultiSeason(t *testing.T) {
	c := testCatalog(
		[]Plant{{
			ID:          "1001",
			Name:        "strawberry",
			SeedID:      "s1001",
			Seasons:     3,
			GrowPhases:  "1:1800;2:900;3:600",
			Exp:         100,
			GrowTimeSec: 3600,
		}},
		[]Item{{ID: "s1001", Name: "strawberry seed", LevelLimit: 1, Price: 50}},
	)

	ranking := c.PlantRanking(10)
	if len(ranking) != 1 {
		t.Fatalf("got %d entries, want 1", len(ranking))
	}
	e := ranking[0]
	if e.RegrowSec != 600 {
		t.Errorf("RegrowSec = %d, want 600 (last positive phase duration)", e.RegrowSec)
	}
	if e.TotalExp != 300 {
		t.Errorf("TotalExp = %d, want 300", e.TotalExp)
	}
	if e.TotalTimeSec != 4800 {
		t.Errorf("TotalTimeSec = %d, want 4800", e.TotalTimeSec)
	}
	if e.ExpPerHour != 225.0 {
		t.Errorf("ExpPerHour = %v, want 225.0", e.ExpPerHour)
	}
}

func TestPlantRankingSingleSeasonIgnoresPhases(t *testing.T) {
	c := testCatalog(
		[]Plant{{
			ID:          "1002",
			Name:        "carrot",
			SeedID:      "s1002",
			Seasons:     1,
			GrowPhases:  "1:900;2:300",
			Exp:         60,
			GrowTimeSec: 1800,
		}},
		[]Item{{ID: "s1002", LevelLimit: 1, Price: 10}},
	)

	ranking := c.PlantRanking(1)
	if len(ranking) != 1 {
		t.Fatalf("got %d entries, want 1", len(ranking))
	}
	if ranking[0].RegrowSec != 0 {
		t.Errorf("RegrowSec = %d, want 0 for single-season plants", ranking[0].RegrowSec)
	}
	if ranking[0].TotalTimeSec != 1800 {
		t.Errorf("TotalTimeSec = %d, want 1800", ranking[0].TotalTimeSec)
	}
	if ranking[0].ExpPerHour != 120.0 {
		t.Errorf("ExpPerHour = %v, want 120.0", ranking[0].ExpPerHour)
	}
}

func TestPlantRankingExclusions(t *testing.T) {
	c := testCatalog(
		[]Plant{
			{ID: "20200001", Name: "tutorial wheat", SeedID: "s1", Exp: 999, GrowTimeSec: 60},
			{ID: "1003", Name: "free sprout", SeedID: "s2", Exp: 100, GrowTimeSec: 600},
			{ID: "1004", Name: "elite rose", SeedID: "s3", Exp: 100, GrowTimeSec: 600},
			{ID: "1005", Name: "seedless vine", SeedID: "", Exp: 100, GrowTimeSec: 600},
			{ID: "1006", Name: "turnip", SeedID: "s4", Exp: 50, GrowTimeSec: 600},
		},
		[]Item{
			{ID: "s1", LevelLimit: 1, Price: 10},
			{ID: "s2", LevelLimit: 1, Price: 0},   // unpurchasable
			{ID: "s3", LevelLimit: 30, Price: 10}, // above the player's level
			{ID: "s4", LevelLimit: 5, Price: 10},
		},
	)

	ranking := c.PlantRanking(5)
	if len(ranking) != 1 {
		t.Fatalf("got %d entries, want only the turnip: %+v", len(ranking), ranking)
	}
	if ranking[0].ID != "1006" {
		t.Fatalf("ranking[0].ID = %s, want 1006", ranking[0].ID)
	}
}

func TestPlantRankingLevelGate(t *testing.T) {
	c := testCatalog(
		[]Plant{{ID: "1004", Name: "elite rose", SeedID: "s3", Exp: 100, GrowTimeSec: 600}},
		[]Item{{ID: "s3", LevelLimit: 30, Price: 10}},
	)

	if got := c.PlantRanking(29); len(got) != 0 {
		t.Fatalf("level 29 sees %d entries, want 0", len(got))
	}
	if got := c.PlantRanking(30); len(got) != 1 {
		t.Fatalf("level 30 sees %d entries, want 1", len(got))
	}
}

func TestPlantRankingSortedAndCapped(t *testing.T) {
	plants := make([]Plant, 0, 60)
	items := make([]Item, 0, 60)
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("1%03d", i)
		seedID := "s" + id
		plants = append(plants, Plant{
			ID:          id,
			Name:        "plant " + id,
			SeedID:      seedID,
			Exp:         10 + i, // later plants score higher
			GrowTimeSec: 3600,
		})
		items = append(items, Item{ID: seedID, LevelLimit: 1, Price: 5})
	}
	c := testCatalog(plants, items)

	ranking := c.PlantRanking(1)
	if len(ranking) != 50 {
		t.Fatalf("got %d entries, want the top 50", len(ranking))
	}
	for i := 1; i < len(ranking); i++ {
		if ranking[i].ExpPerHour > ranking[i-1].ExpPerHour {
			t.Fatalf("ranking not descending at %d: %v > %v", i, ranking[i].ExpPerHour, ranking[i-1].ExpPerHour)
		}
	}
	if ranking[0].ID != "1059" {
		t.Fatalf("best plant = %s, want 1059", ranking[0].ID)
	}
	// The ten weakest plants fell off the cap.
	for _, e := range ranking {
		if e.Exp < 20 {
			t.Fatalf("plant %s (exp %d) should have been capped out", e.ID, e.Exp)
		}
	}
}

func TestPlantRankingStableTies(t *testing.T) {
	c := testCatalog(
		[]Plant{
			{ID: "2001", Name: "first", SeedID: "sa", Exp: 100, GrowTimeSec: 3600},
			{ID: "2002", Name: "second", SeedID: "sb", Exp: 100, GrowTimeSec: 3600},
			{ID: "2003", Name: "third", SeedID: "sc", Exp: 100, GrowTimeSec: 3600},
		},
		[]Item{
			{ID: "sa", LevelLimit: 1, Price: 1},
			{ID: "sb", LevelLimit: 1, Price: 1},
			{ID: "sc", LevelLimit: 1, Price: 1},
		},
	)

	ranking := c.PlantRanking(1)
	if len(ranking) != 3 {
		t.Fatalf("got %d entries, want 3", len(ranking))
	}
	for i, want := range []string{"2001", "2002", "2003"} {
		if ranking[i].ID != want {
			t.Fatalf("tie order broken at %d: got %s, want %s", i, ranking[i].ID, want)
		}
	}
}

func TestLastPhaseDuration(t *testing.T) {
	cases := []struct {
		phases string
		want   int
	}{
		{"1:1800;2:900;3:600", 600},
		{"1:1800;2:900;3:0", 900}, // zero-duration tail is skipped
		{"1:1800", 1800},
		{"", 0},
		{"garbage", 0},
		{"1:1800; 2:450 ", 450},
	}
	for _, tc := range cases {
		if got := lastPhaseDuration(tc.phases); got != tc.want {
			t.Errorf("lastPhaseDuration(%q) = %d, want %d", tc.phases, got, tc.want)
		}
	}
}
