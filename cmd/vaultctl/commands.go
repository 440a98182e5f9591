package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/camiliosalomanda/satslegacy-vaultengine/checkin"
	"github.com/camiliosalomanda/satslegacy-vaultengine/validator"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultaddr"
)

type validateCommand struct {
	Args struct {
		ConfigPath string `positional-arg-name:"config.json"`
	} `positional-args:"yes" required:"yes"`
}

func (c *validateCommand) Execute(_ []string) error {
	initLogging()
	cfg, err := loadVaultConfig(c.Args.ConfigPath)
	if err != nil {
		return err
	}

	report := validator.Validate(cfg)
	for _, f := range report.Errors {
		fmt.Printf("ERROR   [%s] %s\n", f.Code, f.Message)
	}
	for _, f := range report.Warnings {
		fmt.Printf("WARNING [%s] %s\n", f.Code, f.Message)
	}
	for _, f := range report.Recommendations {
		fmt.Printf("NOTE    [%s] %s\n", f.Code, f.Message)
	}
	if report.Valid() {
		fmt.Println("configuration is valid")
		return nil
	}
	return fmt.Errorf("configuration has %d error(s)", len(report.Errors))
}

type deriveCommand struct {
	Args struct {
		ConfigPath string `positional-arg-name:"config.json"`
	} `positional-args:"yes" required:"yes"`
}

func (c *deriveCommand) Execute(_ []string) error {
	initLogging()
	cfg, err := loadVaultConfig(c.Args.ConfigPath)
	if err != nil {
		return err
	}

	results, err := vaultaddr.Generate(cfg, time.Now())
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("stage %d (%d%%): ", r.StageIndex, r.Percent)
		if r.Err != nil {
			fmt.Printf("derivation failed: %v\n", r.Err)
			continue
		}
		fmt.Printf("%s\n", r.Address)
		fmt.Printf("    witness script: %s\n", hex.EncodeToString(r.WitnessScript))
		fmt.Printf("    policy:         %s\n", r.Policy)
		if len(r.PolicyWarnings) > 0 {
			fmt.Printf("    policy notes:   %v\n", r.PolicyWarnings)
		}
		if !r.MiniscriptSane {
			fmt.Printf("    miniscript:     %s (diagnostic only, not sane for this branch)\n", r.Miniscript)
		}
	}
	return nil
}

type checkinCommand struct {
	LastCheckIn  string `long:"last-checkin" description:"RFC3339 timestamp of the last check-in; omit if none has ever been recorded"`
	IntervalDays int    `long:"interval-days" description:"required check-in interval in days" required:"yes"`
	WarningDays  int    `long:"warning-days" description:"days before expiry that warning status begins" default:"7"`
	CriticalDays int    `long:"critical-days" description:"days before expiry that critical status begins" default:"2"`
}

func (c *checkinCommand) Execute(_ []string) error {
	initLogging()

	var lastCheckIn time.Time
	if c.LastCheckIn != "" {
		t, err := time.Parse(time.RFC3339, c.LastCheckIn)
		if err != nil {
			return fmt.Errorf("parsing --last-checkin: %w", err)
		}
		lastCheckIn = t
	}

	th := checkin.DefaultThresholds()
	if c.WarningDays > 0 {
		th.WarningDays = c.WarningDays
	}
	if c.CriticalDays > 0 {
		th.CriticalDays = c.CriticalDays
	}

	interval := time.Duration(c.IntervalDays) * 24 * time.Hour
	result := checkin.Evaluate(lastCheckIn, interval, time.Now(), th)

	fmt.Printf("status: %s\n", result.Status)
	fmt.Printf("days remaining: %d\n", result.DaysRemaining)
	return nil
}
