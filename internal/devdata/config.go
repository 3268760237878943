// Package devdata generates synthetic percentile and stats CSVs for local
// runs of the weekly send.
package devdata

// Config holds generator settings.
type Config struct {
	Users         int     // Number of stats rows
	OutDir        string  // Directory receiving both CSVs
	Seed          int64   // Same seed, same files
	InactiveRatio float64 // Share of users with no activity in the two newest weeks
}

// Result describes what Run wrote.
type Result struct {
	PercentilesPath string
	StatsPath       string
	Users           int
	Inactive        int
}
