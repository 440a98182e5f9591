// Command vaultctl is the CLI front end for the vault engine: it wraps
// the validator, orchestrator, and check-in packages directly, and
// exposes the PSBT-lifecycle commands as stubs that report they need a
// caller-supplied vaultio.Storage/BlockchainAPI/Signer, since this
// engine never implements those boundaries itself (spec.md §1, §6).
// Grounded on lnd.go's own flags.NewParser + ErrHelp handling, adapted
// from a long-running daemon's flag set to a one-shot tool's.
package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/camiliosalomanda/satslegacy-vaultengine/checkin"
	"github.com/camiliosalomanda/satslegacy-vaultengine/logging"
	"github.com/camiliosalomanda/satslegacy-vaultengine/psbtbuild"
	"github.com/camiliosalomanda/satslegacy-vaultengine/psbtfinalize"
	"github.com/camiliosalomanda/satslegacy-vaultengine/validator"
	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultaddr"
)

type globalOptions struct {
	Network  string `long:"network" description:"mainnet, testnet, or signet" default:"mainnet"`
	LogFile  string `long:"logfile" description:"path to the rotating log file; disabled if empty"`
	LogLevel string `long:"loglevel" description:"trace, debug, info, warn, error, critical" default:"info"`
}

var opts globalOptions

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[vaultctl] %v\n", err)
	os.Exit(1)
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("validate", "Run the compatibility validator against a vault configuration file",
		"Reads a JSON vault configuration and prints every error, warning, and recommendation.",
		&validateCommand{})
	parser.AddCommand("derive", "Derive the address, witness script, and spend paths for a vault configuration",
		"Walks key codec -> timelock -> policy -> miniscript -> script assembler -> spend-path and prints one result per stage.",
		&deriveCommand{})
	parser.AddCommand("checkin-status", "Evaluate dead-man-switch check-in health",
		"Computes a health status from a last check-in timestamp, refresh interval, and warning thresholds.",
		&checkinCommand{})
	parser.AddCommand("sweep", "Build a sweep PSBT (requires a wired Storage/BlockchainAPI)",
		"Not available from this binary alone; see vaultio.Storage and vaultio.BlockchainAPI.",
		&unwiredCommand{name: "sweep"})
	parser.AddCommand("broadcast", "Broadcast a finalized transaction (requires a wired Broadcaster)",
		"Not available from this binary alone; see vaultio.Broadcaster.",
		&unwiredCommand{name: "broadcast"})

	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fatal(err)
	}
}

var loggingInitialized bool

// initLogging wires each subsystem's package-level logger to the shared
// rotating backend. It is idempotent and a no-op when no logfile was
// given, leaving every subsystem at btclog.Disabled.
func initLogging() {
	if opts.LogFile == "" || loggingInitialized {
		return
	}
	loggingInitialized = true

	if err := logging.Init(opts.LogFile); err != nil {
		fatal(fmt.Errorf("initializing log file: %w", err))
	}

	vldt := logging.Logger("VLDT")
	addr := logging.Logger("ADDR")
	psbb := logging.Logger("PSBB")
	psbf := logging.Logger("PSBF")
	chkn := logging.Logger("CHKN")
	logging.SetLevel(vldt, opts.LogLevel)
	logging.SetLevel(addr, opts.LogLevel)
	logging.SetLevel(psbb, opts.LogLevel)
	logging.SetLevel(psbf, opts.LogLevel)
	logging.SetLevel(chkn, opts.LogLevel)

	validator.UseLogger(vldt)
	vaultaddr.UseLogger(addr)
	psbtbuild.UseLogger(psbb)
	psbtfinalize.UseLogger(psbf)
	checkin.UseLogger(chkn)
}

type unwiredCommand struct {
	name string
}

func (c *unwiredCommand) Execute(_ []string) error {
	return fmt.Errorf("%s requires a caller-supplied vaultio.Storage/BlockchainAPI/Signer; "+
		"this binary only wires the pure validator, orchestrator, and check-in packages", c.name)
}
