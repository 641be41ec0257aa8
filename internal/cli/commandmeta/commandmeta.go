package commandmeta

import "strings"

type OutputPolicy uint8

const (
	OutputPolicyStructured OutputPolicy = iota
	OutputPolicyTextOnly
)

// EmitsExecutionStatusPath lists the commands that mutate the target.
func EmitsExecutionStatusPath(path string) bool {
	switch strings.TrimSpace(path) {
	case "catalogsync sync",
		"catalogsync unresolved replay":
		return true
	default:
		return false
	}
}

func OutputPolicyForPath(path string) OutputPolicy {
	switch strings.TrimSpace(path) {
	case "catalogsync completion bash",
		"catalogsync completion zsh",
		"catalogsync completion fish",
		"catalogsync completion powershell":
		return OutputPolicyTextOnly
	default:
		return OutputPolicyStructured
	}
}
