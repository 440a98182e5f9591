// Package miniscript parses and analyzes the policy strings produced by
// package policy, and — per spec.md §4.D — is the only component allowed
// to depend on anything resembling an external miniscript implementation.
// No such library exists for this grammar anywhere in the retrieved
// example pack, so the parser, sanity checker and satisfier below are
// hand-rolled, restricted to exactly the fragments the policy builder
// emits: pk, and, or, thresh, sha256, older, after.
//
// The script-asm this package produces is diagnostic only; the canonical
// witness scripts that actually lock funds are emitted by package
// vaultscript from fixed templates, not by generically compiling an
// arbitrary miniscript tree (business-vault key reuse makes generic
// compilation unsound for that profile anyway — see Sane below).
package miniscript

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/btcsuite/btcd/txscript"

	"github.com/camiliosalomanda/satslegacy-vaultengine/vaulterrors"
)

// Kind identifies a policy fragment's operator.
type Kind int

const (
	KindPk Kind = iota
	KindAnd
	KindOr
	KindThresh
	KindSha256
	KindOlder
	KindAfter
)

func (k Kind) String() string {
	switch k {
	case KindPk:
		return "pk"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindThresh:
		return "thresh"
	case KindSha256:
		return "sha256"
	case KindOlder:
		return "older"
	case KindAfter:
		return "after"
	default:
		return "unknown"
	}
}

// Node is one fragment of a parsed policy tree. Key and Hash are set only
// for Pk and Sha256 leaves respectively; Value carries the older/after
// block count, or thresh's k.
type Node struct {
	Kind     Kind
	Key      []byte
	Hash     []byte
	Value    uint32
	Children []*Node
}

// Parse builds the fragment tree for a policy string of the shape the
// policy package emits. It rejects anything outside {pk, and, or,
// thresh, sha256, older, after}.
func Parse(s string) (*Node, error) {
	p := &cursor{s: s}
	n, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, vaulterrors.New(
			vaulterrors.KindPolicyNotSane, "trailing input at position %d: %q",
			p.pos, p.s[p.pos:],
		)
	}
	return n, nil
}

type cursor struct {
	s   string
	pos int
}

func (p *cursor) parseNode() (*Node, error) {
	ident, err := p.readUntil('(')
	if err != nil {
		return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "malformed fragment: %v", err)
	}
	p.pos++ // consume '('

	switch ident {
	case "pk":
		hexStr, err := p.readUntil(')')
		if err != nil {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "malformed pk(): %v", err)
		}
		p.pos++
		key, err := hex.DecodeString(hexStr)
		if err != nil || len(key) != 33 {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "pk() key is not a 33-byte hex point")
		}
		return &Node{Kind: KindPk, Key: key}, nil

	case "sha256":
		hexStr, err := p.readUntil(')')
		if err != nil {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "malformed sha256(): %v", err)
		}
		p.pos++
		h, err := hex.DecodeString(hexStr)
		if err != nil || len(h) != 32 {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "sha256() hash is not 32 bytes")
		}
		return &Node{Kind: KindSha256, Hash: h}, nil

	case "older", "after":
		numStr, err := p.readUntil(')')
		if err != nil {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "malformed %s(): %v", ident, err)
		}
		p.pos++
		v, err := strconv.ParseUint(numStr, 10, 32)
		if err != nil {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "%s() value is not a number: %v", ident, err)
		}
		kind := KindOlder
		if ident == "after" {
			kind = KindAfter
		}
		return &Node{Kind: kind, Value: uint32(v)}, nil

	case "and", "or":
		children, err := p.parseChildList()
		if err != nil {
			return nil, err
		}
		if len(children) < 2 {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "%s() requires at least 2 children", ident)
		}
		kind := KindAnd
		if ident == "or" {
			kind = KindOr
		}
		return &Node{Kind: kind, Children: children}, nil

	case "thresh":
		numStr, err := p.readUntil(',')
		if err != nil {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "malformed thresh(): %v", err)
		}
		p.pos++ // consume ','
		k, err := strconv.Atoi(numStr)
		if err != nil {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "thresh() k is not a number: %v", err)
		}
		children, err := p.parseChildList()
		if err != nil {
			return nil, err
		}
		if k < 1 || k > len(children) {
			return nil, vaulterrors.New(
				vaulterrors.KindPolicyNotSane, "thresh(%d,...) out of range for %d children", k, len(children),
			)
		}
		return &Node{Kind: KindThresh, Value: uint32(k), Children: children}, nil

	default:
		return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "unrecognized fragment %q", ident)
	}
}

func (p *cursor) readUntil(delim byte) (string, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != delim {
		p.pos++
	}
	if p.pos >= len(p.s) {
		return "", fmt.Errorf("expected %q before end of input", delim)
	}
	return p.s[start:p.pos], nil
}

// parseChildList parses zero or more comma-separated child fragments up
// to and including the closing ')'.
func (p *cursor) parseChildList() ([]*Node, error) {
	var children []*Node
	for {
		child, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		children = append(children, child)

		if p.pos >= len(p.s) {
			return nil, vaulterrors.New(vaulterrors.KindPolicyNotSane, "unterminated argument list")
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return children, nil
		default:
			return nil, vaulterrors.New(
				vaulterrors.KindPolicyNotSane, "expected ',' or ')' at position %d", p.pos,
			)
		}
	}
}

// Analysis is a diagnostic summary of a parsed policy tree: the roles it
// plays matter for import/inspection tooling (e.g. validating a policy a
// user pasted in), not for script assembly.
type Analysis struct {
	Type              string
	Keys              [][]byte
	RelativeTimelocks []uint32
	AbsoluteTimelocks []uint32
	HasChallenge      bool
	HasOracle         bool
}

// Analyze walks a parsed tree and classifies its shape. Type is a
// best-effort label ("timelock", "dead_man_switch_or_solo", "spouse",
// "family", "multisig_decay", "unknown") based on the operator mix, not a
// profile lookup — a raw policy string carries no role names.
func Analyze(n *Node) Analysis {
	var a Analysis
	var threshCount int
	walkAnalyze(n, &a, &threshCount)
	a.Type = classify(threshCount, len(a.RelativeTimelocks), len(a.AbsoluteTimelocks))
	a.HasOracle = looksOracleGated(n)
	return a
}

func walkAnalyze(n *Node, a *Analysis, threshCount *int) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KindPk:
		a.Keys = append(a.Keys, n.Key)
	case KindSha256:
		a.HasChallenge = true
	case KindOlder:
		a.RelativeTimelocks = append(a.RelativeTimelocks, n.Value)
	case KindAfter:
		a.AbsoluteTimelocks = append(a.AbsoluteTimelocks, n.Value)
	case KindThresh:
		*threshCount++
	}
	for _, c := range n.Children {
		walkAnalyze(c, a, threshCount)
	}
}

func classify(threshCount, olderCount, afterCount int) string {
	switch {
	case threshCount >= 2:
		return "multisig_decay"
	case threshCount == 1 && olderCount > 0:
		return "family"
	case threshCount == 1 && afterCount > 0:
		return "multisig_decay"
	case olderCount >= 2:
		return "spouse"
	case olderCount == 1:
		return "dead_man_switch_or_solo"
	case afterCount >= 1:
		return "timelock"
	default:
		return "unknown"
	}
}

// looksOracleGated matches the shape package policy's applyGate produces
// for an oracle wrap: one top-level branch of the policy (or the whole
// policy) becomes and(pk(oracle), <rest>) where <rest> is itself an
// and(...) or or(...) — the ungated canonical branches only ever pair a
// pk with a pk, older or after.
func looksOracleGated(n *Node) bool {
	for _, branch := range flattenOr(n) {
		if branch.Kind != KindAnd || len(branch.Children) != 2 {
			continue
		}
		first, second := branch.Children[0], branch.Children[1]
		if first.Kind == KindPk && (second.Kind == KindAnd || second.Kind == KindOr) {
			return true
		}
	}
	return false
}

// CompileResult is compile_policy's return value (spec.md §4.D).
type CompileResult struct {
	Miniscript     string
	ScriptASM      string
	IsSane         bool
	IsSaneSublevel []bool
}

// CompilePolicy parses, renders and sanity-checks a policy string in one
// step — the entry point every caller other than vaultscript's business
// template uses.
func CompilePolicy(policy string) (*CompileResult, error) {
	n, err := Parse(policy)
	if err != nil {
		return nil, err
	}
	sane, sublevel := IsSane(n)
	asm, err := compileASM(n)
	if err != nil {
		return nil, err
	}
	return &CompileResult{
		Miniscript:     render(n),
		ScriptASM:      asm,
		IsSane:         sane,
		IsSaneSublevel: sublevel,
	}, nil
}

// MiniscriptResult is compile_miniscript's return value.
type MiniscriptResult struct {
	ASM   string
	Flags []string
}

// CompileMiniscript re-renders an already-parsed miniscript string (the
// Miniscript field CompilePolicy returned) into ASM plus a short set of
// descriptive flags.
func CompileMiniscript(ms string) (*MiniscriptResult, error) {
	n, err := Parse(ms)
	if err != nil {
		return nil, err
	}
	asm, err := compileASM(n)
	if err != nil {
		return nil, err
	}
	a := Analyze(n)
	var flags []string
	if a.HasChallenge {
		flags = append(flags, "has_challenge")
	}
	if a.HasOracle {
		flags = append(flags, "has_oracle")
	}
	if len(a.RelativeTimelocks) > 0 {
		flags = append(flags, "has_relative_timelock")
	}
	if len(a.AbsoluteTimelocks) > 0 {
		flags = append(flags, "has_absolute_timelock")
	}
	return &MiniscriptResult{ASM: asm, Flags: flags}, nil
}

// IsSane reports whether n is free of the malleability/ambiguity a
// miniscript compiler refuses to accept: the same public key appearing
// in more than one top-level disjunct. IsSaneSublevel reports, per
// top-level branch (in the order produced by flattening nested or()
// nodes), whether that branch alone is free of internal key reuse or an
// out-of-range threshold — business-vault policies fail the aggregate
// check by design (owner key reused across branches) but each branch is
// independently well-formed, which is why §4.E bypasses this component
// for that profile rather than rejecting the configuration outright.
func IsSane(n *Node) (bool, []bool) {
	branches := flattenOr(n)
	sublevel := make([]bool, len(branches))
	seenBranchKeys := make([]map[string]bool, len(branches))
	usageCount := make(map[string]int)

	for i, b := range branches {
		keys := collectKeys(b)
		seen := make(map[string]bool, len(keys))
		internalOK := true
		for _, k := range keys {
			h := hex.EncodeToString(k)
			if seen[h] {
				internalOK = false
			}
			seen[h] = true
		}
		seenBranchKeys[i] = seen
		sublevel[i] = internalOK && threshRangesOK(b)
	}

	for _, seen := range seenBranchKeys {
		for h := range seen {
			usageCount[h]++
		}
	}

	sane := true
	for _, ok := range sublevel {
		if !ok {
			sane = false
		}
	}
	for _, count := range usageCount {
		if count > 1 {
			sane = false
		}
	}
	return sane, sublevel
}

// flattenOr splits n into its top-level disjuncts, unwrapping the
// right-nested or() chains package policy emits.
func flattenOr(n *Node) []*Node {
	if n == nil {
		return nil
	}
	if n.Kind != KindOr {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, flattenOr(c)...)
	}
	return out
}

func collectKeys(n *Node) [][]byte {
	if n == nil {
		return nil
	}
	var keys [][]byte
	if n.Kind == KindPk {
		keys = append(keys, n.Key)
	}
	for _, c := range n.Children {
		keys = append(keys, collectKeys(c)...)
	}
	return keys
}

func threshRangesOK(n *Node) bool {
	if n == nil {
		return true
	}
	if n.Kind == KindThresh {
		if int(n.Value) < 1 || int(n.Value) > len(n.Children) {
			return false
		}
	}
	for _, c := range n.Children {
		if !threshRangesOK(c) {
			return false
		}
	}
	return true
}

// WitnessRequirement is one element of a satisfaction set: the keys that
// must sign, the preimage that must be revealed (if any), and the
// nLockTime/nSequence the spending transaction must carry for this
// branch to be valid.
type WitnessRequirement struct {
	Branch       string
	Keys         [][]byte
	Threshold    int // 0 when every listed key is required (no OR-of-subsets)
	NeedsPreimage []byte
	NLockTime    *uint32
	NSequence    *uint32
}

// Satisfaction buckets every top-level branch of a policy by how
// malleable its witness is: Unknown holds branches this package cannot
// classify (an operator combination it has no rule for), NonMalleable
// holds branches with exactly one valid witness shape (plain pk, or a
// hash-gated pk), and Malleable holds thresholded branches where more
// than one distinct subset of signatures satisfies the same script.
type Satisfaction struct {
	Unknown      []WitnessRequirement
	NonMalleable []WitnessRequirement
	Malleable    []WitnessRequirement
}

// Satisfy enumerates n's top-level branches into the three malleability
// classes satisfy() is contracted to return. It does not enumerate
// thresholded key subsets — that combinatorial expansion, capped at
// 1,000 combinations, is the spend-path model's job (package spendpath),
// not the compiler adapter's.
func Satisfy(n *Node) Satisfaction {
	var s Satisfaction
	for _, branch := range flattenOr(n) {
		req := analyzeBranch(branch)
		switch {
		case req.Threshold > 0:
			s.Malleable = append(s.Malleable, req)
		case req.Keys != nil || req.NeedsPreimage != nil:
			s.NonMalleable = append(s.NonMalleable, req)
		default:
			s.Unknown = append(s.Unknown, req)
		}
	}
	return s
}

func analyzeBranch(n *Node) WitnessRequirement {
	var req WitnessRequirement
	var walk func(*Node)
	walk = func(m *Node) {
		if m == nil {
			return
		}
		switch m.Kind {
		case KindPk:
			req.Keys = append(req.Keys, m.Key)
		case KindSha256:
			req.NeedsPreimage = m.Hash
		case KindOlder:
			v := m.Value
			req.NSequence = &v
		case KindAfter:
			v := m.Value
			req.NLockTime = &v
		case KindThresh:
			req.Threshold = int(m.Value)
			for _, c := range m.Children {
				if c.Kind == KindPk {
					req.Keys = append(req.Keys, c.Key)
				}
			}
			return // don't descend further into thresh's own children twice
		}
		for _, c := range m.Children {
			walk(c)
		}
	}
	walk(n)
	req.Branch = render(n)
	return req
}

// render re-serializes a parsed tree back to canonical policy syntax,
// sorting thresh()'s key children so the same tree always renders
// identically regardless of input key order.
func render(n *Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindPk:
		return fmt.Sprintf("pk(%s)", hex.EncodeToString(n.Key))
	case KindSha256:
		return fmt.Sprintf("sha256(%s)", hex.EncodeToString(n.Hash))
	case KindOlder:
		return fmt.Sprintf("older(%d)", n.Value)
	case KindAfter:
		return fmt.Sprintf("after(%d)", n.Value)
	case KindAnd, KindOr:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = render(c)
		}
		return fmt.Sprintf("%s(%s)", n.Kind, joinCSV(parts))
	case KindThresh:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = render(c)
		}
		sort.Strings(parts)
		return fmt.Sprintf("thresh(%d,%s)", n.Value, joinCSV(parts))
	default:
		return ""
	}
}

func joinCSV(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// compileASM renders a diagnostic Bitcoin Script disassembly for n using
// the same ScriptBuilder idiom the canonical templates in package
// vaultscript use. It is not the script that ends up on-chain; see the
// package doc comment.
func compileASM(n *Node) (string, error) {
	b := txscript.NewScriptBuilder()
	if err := emit(b, n); err != nil {
		return "", err
	}
	script, err := b.Script()
	if err != nil {
		return "", vaulterrors.New(vaulterrors.KindPolicyNotSane, "building diagnostic script: %v", err)
	}
	disasm, err := txscript.DisasmString(script)
	if err != nil {
		return "", vaulterrors.New(vaulterrors.KindPolicyNotSane, "disassembling diagnostic script: %v", err)
	}
	return disasm, nil
}

func emit(b *txscript.ScriptBuilder, n *Node) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindPk:
		b.AddData(n.Key)
		b.AddOp(txscript.OP_CHECKSIG)

	case KindSha256:
		b.AddOp(txscript.OP_SIZE)
		b.AddInt64(32)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_SHA256)
		b.AddData(n.Hash)
		b.AddOp(txscript.OP_EQUAL)

	case KindOlder:
		b.AddInt64(int64(n.Value))
		b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		b.AddOp(txscript.OP_DROP)

	case KindAfter:
		b.AddInt64(int64(n.Value))
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		b.AddOp(txscript.OP_DROP)

	case KindAnd:
		for i, c := range n.Children {
			if err := emit(b, c); err != nil {
				return err
			}
			if i > 0 {
				b.AddOp(txscript.OP_BOOLAND)
			}
		}

	case KindOr:
		for i, c := range n.Children {
			if err := emit(b, c); err != nil {
				return err
			}
			if i > 0 {
				b.AddOp(txscript.OP_BOOLOR)
			}
		}

	case KindThresh:
		for _, c := range n.Children {
			if err := emit(b, c); err != nil {
				return err
			}
		}
		b.AddInt64(int64(len(n.Children)))
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddInt64(int64(n.Value))
		b.AddOp(txscript.OP_EQUAL)

	default:
		return vaulterrors.New(vaulterrors.KindPolicyNotSane, "cannot compile fragment kind %v", n.Kind)
	}
	return nil
}
