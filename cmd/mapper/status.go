package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var port int
	var socket string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running mapper serve process over its control socket",
		Example: `  mapper status --port 9223
  # Queries the control socket a "mapper serve --control-socket --port 9223" left behind.

  mapper status --socket /tmp/mapper-9223.sock
  # Queries an explicit socket path.`,
		Run: func(cmd *cobra.Command, args []string) {
			socketPath := socket
			if socketPath == "" {
				socketPath = defaultControlSocketPath(port)
			}

			status, err := queryControlSocket(socketPath, "status", 2*time.Second)
			if err != nil {
				fmt.Println("mapper serve is not running (or not reachable at that socket).")
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}

			fmt.Printf("mapper v%s\n", status.Version)
			fmt.Printf("status:   running\n")
			fmt.Printf("pid:      %d\n", status.PID)
			fmt.Printf("port:     %d\n", status.Port)
			fmt.Printf("cdp-url:  %s\n", status.CDPURL)
			fmt.Printf("uptime:   %s\n", status.Uptime)
			fmt.Printf("socket:   %s\n", status.Socket)
		},
	}

	cmd.Flags().IntVar(&port, "port", 9223, "Port the target mapper serve process is listening on (used to derive the default socket path)")
	cmd.Flags().StringVar(&socket, "socket", "", "Explicit control socket path, overrides --port")
	return cmd
}
