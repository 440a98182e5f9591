package priceoracle

import "github.com/btcsuite/btclog"

// log is this subsystem's logger; it is btclog.Disabled until a caller
// wires a real backend through UseLogger (see package logging).
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by package priceoracle.
func UseLogger(logger btclog.Logger) {
	log = logger
}
