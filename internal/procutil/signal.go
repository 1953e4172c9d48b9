// Package procutil is the mapper process's OS-level plumbing: signal
// handling, child process-group management for the browser it launches,
// and the named-pipe/Unix-socket control surface a running mapper exposes
// for out-of-band shutdown.
package procutil

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	cleanupMu    sync.Mutex
	cleanupFuncs []func()
)

// OnCleanup registers a function to run when the process receives an
// interrupt or termination signal, in the order registered.
func OnCleanup(fn func()) {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	cleanupFuncs = append(cleanupFuncs, fn)
}

// SetupSignalHandler installs a handler for SIGINT/SIGTERM that runs every
// registered cleanup function and then exits.
func SetupSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		runCleanup()
		os.Exit(1)
	}()
}

func runCleanup() {
	cleanupMu.Lock()
	fns := append([]func(){}, cleanupFuncs...)
	cleanupMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// WithCleanup runs fn and then every registered OnCleanup function, also
// when fn returns early or panics. An os.Exit inside fn ends the process
// without running them.
func WithCleanup(fn func()) {
	defer runCleanup()
	fn()
}

// WaitForSignal blocks until SIGINT/SIGTERM is received, for commands that
// run a foreground server loop (cmd/mapper's serve command).
func WaitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
