//go:build windows

package util

import (
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	user32           = windows.NewLazySystemDLL("user32.dll")
	getConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	showWindow       = user32.NewProc("ShowWindow")
	freeConsole      = kernel32.NewProc("FreeConsole")
)

// Shells that indicate an interactive command-line launch.
var shellNames = map[string]bool{
	"cmd.exe":             true,
	"powershell.exe":      true,
	"pwsh.exe":            true,
	"wt.exe":              true,
	"conhost.exe":         true,
	"windowsterminal.exe": true,
}

// IsRunFromGUI guesses whether the process was started by double-click
// rather than from a terminal, based on console ownership and the parent
// process name.
func IsRunFromGUI() bool {
	hwnd, _, _ := getConsoleWindow.Call()
	parent := parentProcessName()

	slog.Debug("launch detection", "parent", parent, "console", hwnd != 0)

	if hwnd == 0 {
		return true
	}
	if shellNames[strings.ToLower(parent)] {
		return false
	}
	return strings.EqualFold(parent, "explorer.exe")
}

// HideConsoleWindow detaches the process from its console so a GUI launch
// does not leave an empty terminal window behind.
func HideConsoleWindow() {
	hwnd, _, _ := getConsoleWindow.Call()
	if hwnd == 0 {
		return
	}
	_, _, _ = showWindow.Call(hwnd, windows.SW_HIDE)
	_, _, _ = freeConsole.Call()
}

func parentProcessName() string {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(snapshot)

	self, ok := findProcessEntry(snapshot, uint32(os.Getpid()))
	if !ok || self.ParentProcessID == 0 {
		return ""
	}
	parent, ok := findProcessEntry(snapshot, self.ParentProcessID)
	if !ok {
		return ""
	}
	return windows.UTF16ToString(parent.ExeFile[:])
}

func findProcessEntry(snapshot windows.Handle, pid uint32) (windows.ProcessEntry32, bool) {
	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))

	for err := windows.Process32First(snapshot, &pe); err == nil; err = windows.Process32Next(snapshot, &pe) {
		if pe.ProcessID == pid {
			return pe, true
		}
	}
	return pe, false
}
