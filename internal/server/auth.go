package server

import (
	"os"
	"strings"
)

// defaultAPIKeyPlaceholder keeps local development working without a key
// configured. Deployments set DEFAULT_API_KEY.
const defaultAPIKeyPlaceholder = "j88R1cKdHY1EcYk9hO5vJIrV3f4rrtI5I9NuFyyTiFLDCXRhY8ooddL72AT1NqyHKMf3iGvib2W9XBYV8duUtw"

func resolveDefaultAPIKey() string {
	if key := os.Getenv("DEFAULT_API_KEY"); key != "" {
		return key
	}
	return defaultAPIKeyPlaceholder
}

// extractClientAPIKey pulls the client's credential out of the lowercased
// header map, falling back to the server default. Used only as the rate
// limit bucket key; forwarding keeps the original header.
func extractClientAPIKey(headers map[string]string, defaultAPIKey string) string {
	raw, ok := headers["authorization"]
	if !ok {
		return defaultAPIKey
	}
	token := parseAuthorizationHeader(raw)
	if token == "" {
		return defaultAPIKey
	}
	return token
}

// parseAuthorizationHeader strips a Bearer scheme; other schemes pass
// through whole.
func parseAuthorizationHeader(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	fields := strings.Fields(trimmed)
	if strings.EqualFold(fields[0], "bearer") {
		if len(fields) < 2 {
			return ""
		}
		return fields[1]
	}
	return trimmed
}
