package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// Archiver copies closed binary orders to S3 cold storage on a schedule.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive run for orders closed before the
// retention cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.retentionDays)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveOrders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving binary orders before %v: %w", cutoff, err)
	}
	a.logger.Info("archive run complete", slog.Int64("orders_archived", n))
	return nil
}

// RunCron runs the archiver on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week", UTC) until ctx is cancelled.
//
// Example: "0 3 1 * *" runs at 3:00 AM on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := cron.next(time.Now().UTC())
		if err != nil {
			return err
		}

		waitDuration := time.Until(next)
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	return f.wildcard || slices.Contains(f.values, val)
}

// parseCronField parses a single cron field: "*", "*/15", "1-5", "1,15"
// or a comma list mixing values and ranges. lo and hi bound the field.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	if step, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return cronField{}, fmt.Errorf("invalid cron step %q", field)
		}
		var values []int
		for v := lo; v <= hi; v += n {
			values = append(values, v)
		}
		return cronField{values: values}, nil
	}

	var values []int
	for _, p := range strings.Split(field, ",") {
		p = strings.TrimSpace(p)
		from, to, isRange := strings.Cut(p, "-")
		a, err := strconv.Atoi(from)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(to); err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
			}
		}
		if a < lo || b > hi || a > b {
			return cronField{}, fmt.Errorf("cron field value %q out of range [%d,%d]", p, lo, hi)
		}
		for v := a; v <= b; v++ {
			values = append(values, v)
		}
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0], 0, 59)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1], 0, 23)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2], 1, 31)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3], 1, 12)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4], 0, 6)
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// next returns the first matching minute strictly after after, searching
// up to one year ahead.
func (c parsedCron) next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if c.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, errors.New("no matching cron time found within one year")
}
