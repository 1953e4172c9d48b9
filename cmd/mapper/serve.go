package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibium/mapper/internal/log"
	"github.com/vibium/mapper/internal/procutil"
	"github.com/vibium/mapper/internal/transport"
)

func newServeCmd() *cobra.Command {
	var launch bool
	var headless bool
	var withControlSocket bool
	var controlSocketPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the BiDi-to-CDP bridge server",
		Example: `  mapper serve --cdp-url ws://127.0.0.1:9222/devtools/browser/<id>
  # Accepts BiDi WebSocket connections on the default port and bridges
  # each one to the given CDP browser endpoint.

  mapper serve --port 9222 --cdp-url ws://127.0.0.1:9223/devtools/browser/<id>
  # Listens on a specific port

  mapper serve --launch --headless --control-socket
  # Spawns a local Chrome with remote debugging enabled, bridges to it, and
  # exposes a control socket that "mapper status" can query; no --cdp-url
  # needed.`,
		Run: func(cmd *cobra.Command, args []string) {
			procutil.WithCleanup(func() {
				port, _ := cmd.Flags().GetInt("port")
				cdpURL, _ := cmd.Flags().GetString("cdp-url")

				level := log.LevelInfo
				if verbose {
					level = log.LevelVerbose
				}
				logger := log.Setup(level)

				var browser *launchedBrowser
				if launch {
					if cdpURL != "" {
						fmt.Fprintln(os.Stderr, "Error: --launch and --cdp-url are mutually exclusive")
						os.Exit(1)
					}

					launchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()

					fmt.Println("Launching local browser...")
					b, err := launchBrowser(launchCtx, launchOptions{Headless: headless})
					if err != nil {
						fmt.Fprintf(os.Stderr, "Error launching browser: %v\n", err)
						os.Exit(1)
					}
					browser = b
					cdpURL = b.WebSocketURL()
					logger.Infof("launched chrome pid=%d cdp=%s", b.PID(), cdpURL)
				} else if cdpURL == "" {
					fmt.Fprintln(os.Stderr, "Error: --cdp-url is required unless --launch is set")
					os.Exit(1)
				}

				fmt.Printf("Starting mapper server on port %d, bridging to %s...\n", port, cdpURL)

				server := transport.NewServer(port, cdpURL, logger)

				if err := server.Start(); err != nil {
					fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
					if browser != nil {
						browser.Stop(5 * time.Second)
					}
					os.Exit(1)
				}

				fmt.Printf("Server listening on ws://localhost:%d\n", server.Port())

				if controlSocketPath != "" {
					withControlSocket = true
				}
				if withControlSocket {
					socketPath := controlSocketPath
					if socketPath == "" {
						socketPath = defaultControlSocketPath(server.Port())
					}
					ctl := &controlServer{
						logger:     logger,
						socketPath: socketPath,
						version:    version,
						port:       server.Port(),
						cdpURL:     cdpURL,
						startTime:  time.Now(),
						shutdown:   selfInterrupt,
					}
					go func() {
						if err := ctl.serve(); err != nil {
							logger.Errorf("control socket: %v", err)
						}
					}()
					fmt.Printf("Control socket at %s\n", socketPath)
				}

				fmt.Println("Press Ctrl+C to stop...")

				procutil.WaitForSignal()

				fmt.Println("\nShutting down...")

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				server.Stop(ctx)

				if browser != nil {
					browser.Stop(5 * time.Second)
				}
			})
		},
	}
	cmd.Flags().IntP("port", "p", 9223, "Port to listen on")
	cmd.Flags().String("cdp-url", "", "CDP browser WebSocket endpoint to bridge to")
	cmd.Flags().BoolVar(&launch, "launch", false, "Launch a local Chrome/Chromium instead of requiring --cdp-url")
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the launched browser headless (only with --launch)")
	cmd.Flags().BoolVar(&withControlSocket, "control-socket", false, "Expose a status/shutdown control socket for \"mapper status\"")
	cmd.Flags().StringVar(&controlSocketPath, "control-socket-path", "", "Explicit control socket path (implies --control-socket)")
	return cmd
}

// selfInterrupt sends this process an interrupt, waking the foreground
// procutil.WaitForSignal() call in newServeCmd's Run so a remote
// "mapper status"-style shutdown request triggers the same clean shutdown
// path as Ctrl+C.
func selfInterrupt() {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return
	}
	p.Signal(os.Interrupt)
}
