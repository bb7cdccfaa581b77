package memory

import "regexp"

// signalPattern matches lines of the form: AUTONOMA_MEMORY: TYPE content
var signalPattern = regexp.MustCompile(`(?m)^AUTONOMA_MEMORY:\s+(\w+)\s+(.+)$`)

var validTypes = map[SignalType]bool{
	KeyFact:      true,
	Decision:     true,
	Learning:     true,
	FileModified: true,
}

// ParseSignals extracts all memory signals from an agent's combined output.
// Unrecognized signal types are silently dropped.
func ParseSignals(output string) []Signal {
	matches := signalPattern.FindAllStringSubmatch(output, -1)
	signals := make([]Signal, 0, len(matches))
	for _, m := range matches {
		st := SignalType(m[1])
		if !validTypes[st] {
			continue
		}
		signals = append(signals, Signal{Type: st, Content: m[2]})
	}
	return signals
}
