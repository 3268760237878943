package devdata

// Output file names.
const (
	PercentilesFile = "percentiles.csv"
	StatsFile       = "stats.csv"
)

const (
	DefaultUsers         = 1000
	DefaultInactiveRatio = 0.1
	filePermission       = 0o600
	dirPermission        = 0o750
)

// Weekly coding hour ranges per user class.
const (
	casualMin   = 0.1
	casualRange = 2.9
	regularMin  = 3.0
	regularRng  = 7.0
	heavyMin    = 10.0
	heavyRange  = 20.0
	eliteMin    = 30.0
	eliteRange  = 20.0
)

// Share of each week's coding time spent in Python.
const (
	pythonShareMin   = 0.2
	pythonShareRange = 0.8
)

// Completions selected per coding hour.
const completionsPerHour = 6

// Percentile column prefix written by WritePercentiles.
const pctPrefix = "pct_"
