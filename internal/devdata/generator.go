package devdata

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/okian/statsmail/internal/domain/model"
	"github.com/okian/statsmail/internal/domain/percentile"
)

// userNamespace keeps generated ids stable across runs with the same seed.
var userNamespace = uuid.MustParse("6f1c1a2e-4d0b-4f3a-9a51-2f8c6d7e9b10") //nolint:gochecknoglobals // fixed namespace

// User classes.
const (
	classCasual = iota
	classRegular
	classHeavy
	classElite
	classCount
)

// GenerateRows builds cfg.Users stats rows from cfg.Seed. Rows are returned
// in CSV order.
func GenerateRows(cfg Config) []model.CodingStatRow {
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // synthetic data
	rows := make([]model.CodingStatRow, cfg.Users)
	for i := range rows {
		rows[i] = generateRow(rng, cfg, i)
	}
	return rows
}

func generateRow(rng *rand.Rand, cfg Config, index int) model.CodingStatRow {
	id := uuid.NewSHA1(userNamespace, []byte(strconv.FormatInt(cfg.Seed, 10)+"/"+strconv.Itoa(index)))
	row := model.CodingStatRow{
		UserID:              id.String(),
		CodingHours:         model.WeeklyHours{},
		PythonHours:         model.WeeklyHours{},
		CompletionsSelected: model.WeeklyCounts{},
	}

	inactive := rng.Float64() < cfg.InactiveRatio
	class := rng.Intn(classCount)
	for w := 0; w < model.Weeks; w++ {
		if inactive && w <= 1 {
			continue
		}
		// Users skip about one week in five.
		if w > 0 && rng.Intn(5) == 0 {
			continue
		}
		hours := round2(weeklyHours(rng, class))
		row.CodingHours[w] = hours
		row.PythonHours[w] = round2(hours * (pythonShareMin + rng.Float64()*pythonShareRange))
		row.CompletionsSelected[w] = int64(hours * completionsPerHour * rng.Float64())
	}

	row.Streak = streak(row.CodingHours)
	row.TotalWeeks = len(row.CodingHours) + rng.Intn(100)
	return row
}

func weeklyHours(rng *rand.Rand, class int) float64 {
	switch class {
	case classCasual:
		return casualMin + rng.Float64()*casualRange
	case classRegular:
		return regularMin + rng.Float64()*regularRng
	case classHeavy:
		return heavyMin + rng.Float64()*heavyRange
	default:
		return eliteMin + rng.Float64()*eliteRange
	}
}

// streak counts consecutive active weeks ending at the newest one.
func streak(h model.WeeklyHours) int {
	n := 0
	for w := 0; w < model.Weeks; w++ {
		if h.Get(w) <= 0 {
			break
		}
		n++
	}
	return n
}

// Percentiles derives nearest-rank breakpoints from the newest week's coding
// hours of the active rows. With no active rows every breakpoint is zero.
func Percentiles(rows []model.CodingStatRow) []float64 {
	hours := make([]float64, 0, len(rows))
	for _, r := range rows {
		if h := r.CodingHours.Get(0); h > 0 {
			hours = append(hours, h)
		}
	}
	sort.Float64s(hours)

	out := make([]float64, percentile.Count)
	if len(hours) == 0 {
		return out
	}
	for p := 1; p <= percentile.Count; p++ {
		rank := int(math.Ceil(float64(p) / 100 * float64(len(hours))))
		if rank < 1 {
			rank = 1
		}
		out[p-1] = hours[rank-1]
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
