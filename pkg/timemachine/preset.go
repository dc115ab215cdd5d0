package timemachine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Preset names an astronomical event provided by the oracle.
type Preset string

const (
	// Sunrise targets the sun entity's next-rising instant.
	Sunrise Preset = "sunrise"

	// Sunset targets the sun entity's next-setting instant.
	Sunset Preset = "sunset"
)

const (
	sunEntityID     = "sun.sun"
	attrNextRising  = "next_rising"
	attrNextSetting = "next_setting"
)

func parsePreset(kind string) (Preset, error) {
	switch Preset(strings.ToLower(strings.TrimSpace(kind))) {
	case Sunrise:
		return Sunrise, nil
	case Sunset:
		return Sunset, nil
	}
	return "", fmt.Errorf("%w: preset %q (want %q or %q)", ErrInvalidInput, kind, Sunrise, Sunset)
}

// resolvePreset queries the oracle for the next occurrence of p, applies the
// signed offset, and validates forward progress. Unlike ResolveJump there is
// no corrective rollover here: the oracle is authoritative for the event
// time, so a non-future result is a genuine caller or data problem.
func resolvePreset(ctx context.Context, oracle Oracle, now time.Time, p Preset, offset time.Duration) (time.Time, error) {
	if oracle == nil {
		return time.Time{}, fmt.Errorf("%w: no oracle configured, cannot resolve preset %q", ErrOracle, p)
	}

	state, err := oracle.EntityState(ctx, sunEntityID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", ErrOracle, sunEntityID, err)
	}
	if state == nil {
		return time.Time{}, fmt.Errorf("%w: entity %s not found", ErrOracle, sunEntityID)
	}

	attr := attrNextRising
	if p == Sunset {
		attr = attrNextSetting
	}
	raw, _ := state.Attributes[attr].(string)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: %s has no %s attribute", ErrOracle, sunEntityID, attr)
	}

	event, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parsing %s %q: %w", ErrOracle, attr, raw, err)
	}

	// The oracle reports a zoned instant; the engine works in naive civil
	// time, so only the wall-clock fields carry over.
	event = time.Date(event.Year(), event.Month(), event.Day(),
		event.Hour(), event.Minute(), event.Second(), 0, now.Location())

	target := event.Add(offset)
	if !target.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s%s resolves to %s, current logical time is %s",
			ErrNonForwardTarget, p, formatOffset(offset), target.Format(Layout), now.Format(Layout))
	}
	return target, nil
}

func formatOffset(offset time.Duration) string {
	if offset == 0 {
		return ""
	}
	if offset > 0 {
		return "+" + offset.String()
	}
	return offset.String()
}
