package config

import (
	"os/exec"
	"strings"
)

// FindClaude returns the path of the Claude Code CLI.
func FindClaude() (string, error) {
	return exec.LookPath("claude")
}

// CheckXcode returns true if the full Xcode IDE is installed (not just CLT).
func CheckXcode() bool {
	out, err := exec.Command("xcode-select", "-p").Output()
	if err != nil {
		return false
	}
	// xcode-select -p prints /Applications/Xcode.app/... for full Xcode
	// and /Library/Developer/CommandLineTools for CLT only.
	return strings.Contains(strings.TrimSpace(string(out)), "Xcode.app")
}

// CheckSimulator returns true if an iOS Simulator runtime is available.
func CheckSimulator() bool {
	out, err := exec.Command("xcrun", "simctl", "list", "runtimes", "--json").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "iOS")
}

// CheckTool returns true if name resolves on PATH.
func CheckTool(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// ToolVersion runs `<path> --version` and returns the first output line.
func ToolVersion(path string) string {
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line
}
