package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaultcfg"
)

// jsonConfig mirrors vaultcfg.VaultConfiguration but with a
// human-typeable string network field, since vaultcfg.Network has no
// JSON marshaling of its own (it is an int enum, not a string one).
type jsonConfig struct {
	Profile        string                                     `json:"profile"`
	Network        string                                     `json:"network"`
	Infrastructure []vaultcfg.InfrastructureOption             `json:"infrastructure"`
	Gate           vaultcfg.Gate                               `json:"gate"`
	Modifiers      vaultcfg.Modifiers                          `json:"modifiers"`
	Keys           map[vaultcfg.KeyRole]vaultcfg.KeyDescriptor `json:"keys"`
	Timelocks      map[vaultcfg.KeyRole]vaultcfg.TimelockSpec  `json:"timelocks"`
	Beneficiaries  []vaultcfg.Beneficiary                      `json:"beneficiaries"`
	ChallengeHash  []byte                                      `json:"challenge_hash"`
	MultisigDecay  *vaultcfg.MultisigDecaySpec                 `json:"multisig_decay"`
}

func networkFromString(s string) (vaultcfg.Network, error) {
	switch s {
	case "", "mainnet":
		return vaultcfg.Mainnet, nil
	case "testnet":
		return vaultcfg.Testnet, nil
	case "signet":
		return vaultcfg.Signet, nil
	default:
		return 0, fmt.Errorf("unknown network %q: want mainnet, testnet, or signet", s)
	}
}

// loadVaultConfig reads and decodes a vault configuration file at path
// into a vaultcfg.VaultConfiguration.
func loadVaultConfig(path string) (vaultcfg.VaultConfiguration, error) {
	var jc jsonConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return vaultcfg.VaultConfiguration{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &jc); err != nil {
		return vaultcfg.VaultConfiguration{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	net, err := networkFromString(jc.Network)
	if err != nil {
		return vaultcfg.VaultConfiguration{}, err
	}

	return vaultcfg.VaultConfiguration{
		Profile:        vaultcfg.Profile(jc.Profile),
		Network:        net,
		Infrastructure: jc.Infrastructure,
		Gate:           jc.Gate,
		Modifiers:      jc.Modifiers,
		Keys:           jc.Keys,
		Timelocks:      jc.Timelocks,
		Beneficiaries:  jc.Beneficiaries,
		ChallengeHash:  jc.ChallengeHash,
		MultisigDecay:  jc.MultisigDecay,
	}, nil
}
