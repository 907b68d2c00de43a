package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Repeated-call thresholds: warn once a (tool, args) pair has fired this many
// times with no change in its result, escalate to critical if it keeps going.
const (
	loopWarnThreshold     = 3
	loopCriticalThreshold = 5
)

// toolLoopCall tracks one distinct (tool name, argument hash) combination
// seen during a single run.
type toolLoopCall struct {
	count       int
	lastResult  string
	sameResults int // consecutive calls that produced an identical result
}

// toolLoopState detects an agent calling the same tool with the same
// arguments repeatedly without making progress. Zero value is ready to use —
// scoped to a single Run, never persisted across turns.
type toolLoopState struct {
	calls map[string]*toolLoopCall
}

// record registers a tool invocation and returns a stable hash identifying
// the (name, arguments) pair, used to correlate the eventual result and
// detection check.
func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	if s.calls == nil {
		s.calls = make(map[string]*toolLoopCall)
	}
	hash := hashToolCall(name, args)
	call, ok := s.calls[hash]
	if !ok {
		call = &toolLoopCall{}
		s.calls[hash] = call
	}
	call.count++
	return hash
}

// recordResult attaches a tool's result text to its call record, tracking
// whether it matches the previous result for this same (tool, args) pair.
func (s *toolLoopState) recordResult(hash, result string) {
	call, ok := s.calls[hash]
	if !ok {
		return
	}
	if call.count > 1 && call.lastResult == result {
		call.sameResults++
	} else {
		call.sameResults = 0
	}
	call.lastResult = result
}

// detect reports whether the (tool, args) pair identified by hash has
// crossed a repetition threshold. Returns level="" when no action is needed,
// "warning" to nudge the model with an injected message, or "critical" to
// abort the run. Only fires when the repeated calls also produced the same
// result each time — a tool that's legitimately called often but returns
// different data each time (e.g. polling) is not a loop.
func (s *toolLoopState) detect(name, hash string) (level, message string) {
	call, ok := s.calls[hash]
	if !ok {
		return "", ""
	}
	switch {
	case call.sameResults+1 >= loopCriticalThreshold:
		return "critical", fmt.Sprintf("tool %q called %d times with identical arguments and result", name, call.count)
	case call.sameResults+1 >= loopWarnThreshold:
		return "warning", fmt.Sprintf("You've called %s with the same arguments %d times in a row and gotten the same result. Try a different approach instead of repeating this call.", name, call.count)
	default:
		return "", ""
	}
}

// hashToolCall produces a stable digest of a tool name plus its arguments,
// independent of map key iteration order.
func hashToolCall(name string, args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]interface{}, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	argsJSON, _ := json.Marshal(ordered)

	sum := sha256.Sum256([]byte(name + ":" + string(argsJSON)))
	return hex.EncodeToString(sum[:])
}
