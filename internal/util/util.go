//go:build !windows

package util

func IsRunFromGUI() bool {
	// On non-Windows, always return false.
	// There are plenty of ways to daemonize on Linux already (systemd,
	// nohup, ...), and CLI users there don't need the GUI fallback.
	return false
}

func HideConsoleWindow() {
	// No-op on non-Windows platforms
}
