package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sheetsync/internal/core"
)

var validateCronCmd = &cobra.Command{
	Use:   "validate-cron EXPR",
	Short: "Check a cron expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := core.ValidateCron(args[0])
		if !v.Valid {
			return fmt.Errorf("invalid: %s", v.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return nil
	},
}

var nextRunOpts struct {
	cron     string
	at       string
	period   string
	weekDay  int
	monthDay int
	count    int
	utc      bool
}

var nextRunCmd = &cobra.Command{
	Use:   "next-run",
	Short: "Print upcoming fire times of a cron or fixed-time trigger",
	Example: `  sheetsyncd next-run --cron "0 9 * * 1-5"
  sheetsyncd next-run --time 08:30 --period weekly --weekday 1 --count 3`,
	RunE: runNextRun,
}

func init() {
	f := nextRunCmd.Flags()
	f.StringVar(&nextRunOpts.cron, "cron", "", "Cron expression")
	f.StringVar(&nextRunOpts.at, "time", "", "Fixed time of day, HH:mm")
	f.StringVar(&nextRunOpts.period, "period", string(core.PeriodDaily), "Fixed-time period: daily, weekly or monthly")
	f.IntVar(&nextRunOpts.weekDay, "weekday", -1, "Day of week for weekly triggers, 0 is Sunday")
	f.IntVar(&nextRunOpts.monthDay, "monthday", 0, "Day of month for monthly triggers")
	f.IntVar(&nextRunOpts.count, "count", 5, "Number of fire times to print")
	f.BoolVar(&nextRunOpts.utc, "utc", false, "Evaluate in UTC instead of local time")
	nextRunCmd.MarkFlagsMutuallyExclusive("cron", "time")
	nextRunCmd.MarkFlagsOneRequired("cron", "time")
}

func runNextRun(cmd *cobra.Command, args []string) error {
	trigger := core.Trigger{Mode: core.TriggerCron, Cron: nextRunOpts.cron}
	if nextRunOpts.at != "" {
		fixed := &core.FixedTimeConfig{Time: nextRunOpts.at, Period: core.Period(nextRunOpts.period)}
		if nextRunOpts.weekDay >= 0 {
			fixed.WeekDay = &nextRunOpts.weekDay
		}
		if nextRunOpts.monthDay > 0 {
			fixed.MonthDay = &nextRunOpts.monthDay
		}
		trigger = core.Trigger{Mode: core.TriggerFixedTime, FixedTime: fixed}
	}

	loc := time.Local
	if nextRunOpts.utc {
		loc = time.UTC
	}
	base := time.Now().In(loc)
	for i := 0; i < max(nextRunOpts.count, 1); i++ {
		next, err := core.NextRun(trigger, base)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), next.Format(core.NextRunLayout))
		base = next
	}
	return nil
}
