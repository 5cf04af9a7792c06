package logger

import (
	"fmt"
	"os"
	"time"
)

// ANSI color codes. Disabled when NO_COLOR is set.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
)

func color(c string) string {
	if os.Getenv("NO_COLOR") != "" {
		return ""
	}
	return c
}

func stamp() string {
	return time.Now().Format("15:04:05")
}

func emit(level, tag, msg string) {
	fmt.Fprintf(os.Stdout, "%s%s%s %s[%s]%s %s\n",
		color(dim), stamp(), color(reset),
		level, tag, color(reset), msg)
}

// Info logs a neutral status line.
func Info(tag, msg string) {
	emit(color(blue)+"ℹ", tag, msg)
}

// Success logs a completed operation.
func Success(tag, msg string) {
	emit(color(green)+"✓", tag, msg)
}

// Warn logs a recoverable problem.
func Warn(tag, msg string) {
	emit(color(yellow)+"⚠", tag, msg)
}

// Error logs a failure.
func Error(tag, msg string) {
	emit(color(red)+"✗", tag, msg)
}

// Banner prints the startup banner with the build version.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(os.Stdout, "%s%s", color(bold), color(cyan))
	fmt.Fprintln(os.Stdout, "  ____  _       _   __  __            _        _   ")
	fmt.Fprintln(os.Stdout, " / ___|| | ___ | |_|  \\/  | __ _ _ __| | _____| |_ ")
	fmt.Fprintln(os.Stdout, " \\___ \\| |/ _ \\| __| |\\/| |/ _` | '__| |/ / _ \\ __|")
	fmt.Fprintln(os.Stdout, "  ___) | | (_) | |_| |  | | (_| | |  |   <  __/ |_ ")
	fmt.Fprintln(os.Stdout, " |____/|_|\\___/ \\__|_|  |_|\\__,_|_|  |_|\\_\\___|\\__|")
	fmt.Fprintf(os.Stdout, "%s  %s\n\n", color(reset), version)
}

// Section prints a visual divider for a named phase.
func Section(name string) {
	fmt.Fprintf(os.Stdout, "\n%s── %s %s\n", color(bold), name, color(reset))
}

// Stats prints a key/value pair aligned for scan summaries.
func Stats(key string, value any) {
	fmt.Fprintf(os.Stdout, "   %s%-24s%s %v\n", color(dim), key, color(reset), value)
}

// Server logs the listen address at startup.
func Server(addr string) {
	Success("Server", fmt.Sprintf("Listening on http://%s", addr))
}
