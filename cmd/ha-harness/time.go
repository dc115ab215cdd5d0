package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/TheTarry/ha-harness/pkg/timemachine"
)

func timeCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "time",
		Short: "Manipulate the logical time of the environment",
	}
	cmd.PersistentFlags().BoolVar(&strict, "strict", false, "Reject targets earlier than the current logical time")

	cmd.AddCommand(timeSetCmd(&strict))
	cmd.AddCommand(timeForwardCmd(&strict))
	cmd.AddCommand(timeJumpCmd(&strict))
	cmd.AddCommand(timePresetCmd(&strict))
	cmd.AddCommand(timeResetCmd(&strict))
	return cmd
}

// withTimeMachine attaches to the environment and hands a wired engine to fn.
func withTimeMachine(cmd *cobra.Command, strict bool, fn func(ctx context.Context, tm *timemachine.TimeMachine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, err := attachManager(cfg)
	if err != nil {
		return err
	}
	defer mgr.Close()
	ctx := cmd.Context()

	// The oracle and token refresh are best effort here: presets need the
	// API, but plain sets and jumps work without it.
	client, err := newHassClient(ctx, mgr, cfg, nil)
	if err != nil {
		pterm.Warning.Printfln("Home Assistant API unavailable, presets disabled: %v", err)
		client = nil
	}

	tm, err := newTimeMachine(ctx, mgr, client, strict, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tm); err != nil {
		return err
	}
	pterm.Success.Printfln("Logical time: %s", tm.Current().Format(timemachine.Layout))
	return nil
}

func timeSetCmd(strict *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "set <datetime|time-of-day>",
		Short: "Set the logical time, e.g. \"2026-06-21 12:00:00\" or \"07:30:00\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTimeMachine(cmd, *strict, func(ctx context.Context, tm *timemachine.TimeMachine) error {
				value := strings.TrimSpace(args[0])
				if t, err := time.Parse(timemachine.Layout, value); err == nil {
					return tm.SetAbsolute(ctx, t)
				}
				if t, err := time.Parse("15:04:05", value); err == nil {
					return tm.SetTimeOfDay(ctx, t.Hour(), t.Minute(), t.Second())
				}
				return fmt.Errorf("unparseable time %q (want %q or \"15:04:05\")", value, timemachine.Layout)
			})
		},
	}
}

func timeForwardCmd(strict *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "forward <duration>",
		Short: "Advance the logical time by a duration, e.g. 48h or 90m",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[0], err)
			}
			return withTimeMachine(cmd, *strict, func(ctx context.Context, tm *timemachine.TimeMachine) error {
				return tm.FastForward(ctx, d)
			})
		},
	}
}

func timeJumpCmd(strict *bool) *cobra.Command {
	var month, weekday string
	var day, hour, minute, second int

	cmd := &cobra.Command{
		Use:   "jump",
		Short: "Jump to the next occurrence of a calendar constraint",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := timemachine.Constraints{
				Month:      month,
				Weekday:    weekday,
				DayOfMonth: day,
			}
			if cmd.Flags().Changed("hour") {
				c.Hour = &hour
			}
			if cmd.Flags().Changed("minute") {
				c.Minute = &minute
			}
			if cmd.Flags().Changed("second") {
				c.Second = &second
			}
			return withTimeMachine(cmd, *strict, func(ctx context.Context, tm *timemachine.TimeMachine) error {
				return tm.JumpToNext(ctx, c)
			})
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Target month, e.g. February or Feb")
	cmd.Flags().StringVar(&weekday, "weekday", "", "Target weekday, e.g. Monday or Mon")
	cmd.Flags().IntVar(&day, "day", 0, "Target day of month (1-31)")
	cmd.Flags().IntVar(&hour, "hour", 0, "Target hour (0-23)")
	cmd.Flags().IntVar(&minute, "minute", 0, "Target minute (0-59)")
	cmd.Flags().IntVar(&second, "second", 0, "Target second (0-59)")

	return cmd
}

func timePresetCmd(strict *bool) *cobra.Command {
	var offset time.Duration

	cmd := &cobra.Command{
		Use:   "preset <sunrise|sunset>",
		Short: "Advance to the next sun event reported by Home Assistant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTimeMachine(cmd, *strict, func(ctx context.Context, tm *timemachine.TimeMachine) error {
				return tm.AdvanceToPreset(ctx, args[0], offset)
			})
		},
	}

	cmd.Flags().DurationVar(&offset, "offset", 0, "Signed offset from the event, e.g. -30m or 1h")
	return cmd
}

func timeResetCmd(strict *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove the time override and return to real time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := attachManager(cfg)
			if err != nil {
				return err
			}
			defer mgr.Close()
			ctx := cmd.Context()

			// Strictness is irrelevant for reset, and resuming an old
			// override under it would reject the resume itself.
			tm, err := newTimeMachine(ctx, mgr, nil, false, nil)
			if err != nil {
				return err
			}
			tm.Reset(ctx)
			pterm.Success.Println("Time override removed, containers back on real time")
			return nil
		},
	}
}
