package devdata

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/domain/statsrow"
	"github.com/okian/statsmail/pkg/logger"
)

// Run generates both CSVs into cfg.OutDir.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Users <= 0 {
		cfg.Users = DefaultUsers
	}
	if cfg.InactiveRatio < 0 || cfg.InactiveRatio > 1 {
		return Result{}, errors.Newf("inactive ratio %g outside [0, 1]", cfg.InactiveRatio)
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	if err := os.MkdirAll(cfg.OutDir, dirPermission); err != nil {
		return Result{}, errors.Wrapf(err, "create %s", cfg.OutDir)
	}

	rows := GenerateRows(cfg)
	res := Result{
		PercentilesPath: filepath.Join(cfg.OutDir, PercentilesFile),
		StatsPath:       filepath.Join(cfg.OutDir, StatsFile),
		Users:           len(rows),
	}
	for _, r := range rows {
		if statsrow.IsInactive(r) {
			res.Inactive++
		}
	}

	if err := writeFile(res.PercentilesPath, func(f *os.File) error {
		return WritePercentiles(f, Percentiles(rows))
	}); err != nil {
		return Result{}, err
	}
	if err := writeFile(res.StatsPath, func(f *os.File) error {
		return WriteStats(f, rows)
	}); err != nil {
		return Result{}, err
	}

	logger.Get().Info(ctx, "generated dev data",
		logger.String("percentiles", res.PercentilesPath),
		logger.String("stats", res.StatsPath),
		logger.Int("users", res.Users),
		logger.Int("inactive", res.Inactive),
		logger.Int64("seed", cfg.Seed),
	)
	return res, nil
}

func writeFile(path string, write func(*os.File) error) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		err = errors.CombineErrors(err, f.Close())
	}()
	return write(f)
}
