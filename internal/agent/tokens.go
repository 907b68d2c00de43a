package agent

import "github.com/nextlevelbuilder/goclaw/internal/providers"

// charsPerToken is the fallback estimate when no calibration data exists yet:
// ~4 characters per token, the usual rule of thumb for English-heavy text.
const charsPerToken = 4

// EstimateTokensWithCalibration estimates the prompt token count for history
// using the actual prompt-token count reported by the provider on the last
// turn as a calibration anchor, rather than a flat chars-per-token constant
// for the whole history. This tracks model-specific tokenization far more
// closely than a naive estimate once a session has had at least one turn.
//
// lastPromptTokens/lastMessageCount are the provider-reported token count and
// message count from the previous turn (0 if none yet, i.e. the first turn
// of a session).
func EstimateTokensWithCalibration(history []providers.Message, lastPromptTokens, lastMessageCount int) int {
	if lastPromptTokens <= 0 || lastMessageCount <= 0 || lastMessageCount > len(history) {
		return estimateTokensFlat(history)
	}

	// Tokens-per-char ratio observed on the calibration window, applied to
	// the full current history (including messages added since calibration).
	calibrationChars := charsInMessages(history[:lastMessageCount])
	if calibrationChars == 0 {
		return estimateTokensFlat(history)
	}
	ratio := float64(lastPromptTokens) / float64(calibrationChars)

	totalChars := charsInMessages(history)
	uncalibratedChars := totalChars - calibrationChars
	calibrated := float64(lastPromptTokens) + float64(uncalibratedChars)*ratio
	return int(calibrated)
}

func estimateTokensFlat(history []providers.Message) int {
	return charsInMessages(history) / charsPerToken
}

func charsInMessages(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content) + len(m.ReasoningContent)
		for _, tc := range m.ToolCalls {
			total += len(tc.Name) + 2
			for k, v := range tc.Arguments {
				total += len(k)
				if s, ok := v.(string); ok {
					total += len(s)
				} else {
					total += 8 // rough estimate for non-string argument values
				}
			}
		}
	}
	return total
}
