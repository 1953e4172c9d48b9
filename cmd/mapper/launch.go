package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/vibium/mapper/internal/procutil"
)

// defaultCDPPort is the remote-debugging-port mapper asks Chrome to listen
// on when it launches the browser itself instead of bridging to one already
// running.
const defaultCDPPort = 9222

var errChromeNotFound = errors.New("no chrome or chromium binary found")

// chromePaths returns the list of paths to search for a Chrome/Chromium
// binary on the current platform.
func chromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/usr/bin/chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	}
}

// findChromeBinary locates a Chrome or Chromium binary, preferring the
// MAPPER_CHROME environment variable when set.
func findChromeBinary() (string, error) {
	if env := os.Getenv("MAPPER_CHROME"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
		return "", errChromeNotFound
	}
	for _, path := range chromePaths() {
		if found, err := exec.LookPath(path); err == nil {
			return found, nil
		}
	}
	return "", errChromeNotFound
}

// launchOptions configures a locally-spawned browser.
type launchOptions struct {
	Headless    bool
	Port        int
	UserDataDir string
}

func buildChromeArgs(opts launchOptions) []string {
	port := opts.Port
	if port == 0 {
		port = defaultCDPPort
	}
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-renderer-backgrounding",
		"--disable-hang-monitor",
		"--disable-ipc-flooding-protection",
		"--disable-breakpad",
		"--disable-client-side-phishing-detection",
		"--disable-prompt-on-repost",
		"--disable-dev-shm-usage",
	}
	switch runtime.GOOS {
	case "darwin":
		args = append(args, "--use-mock-keychain")
	case "linux":
		args = append(args, "--password-store=basic")
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if opts.UserDataDir != "" {
		args = append(args, fmt.Sprintf("--user-data-dir=%s", opts.UserDataDir))
	}
	args = append(args, "about:blank")
	return args
}

// launchedBrowser is a Chrome process spawned and owned by mapper serve
// --launch. It is killed as a process group so child renderer/GPU
// processes don't outlive the parent.
type launchedBrowser struct {
	cmd       *exec.Cmd
	port      int
	dataDir   string
	ownedData bool
	wsURL     string
}

// WebSocketURL returns the browser-level CDP endpoint discovered during
// launch (the "webSocketDebuggerUrl" from /json/version).
func (b *launchedBrowser) WebSocketURL() string {
	return b.wsURL
}

// launchBrowser starts Chrome with remote debugging enabled and blocks until
// its CDP endpoint answers /json/version or ctx expires.
func launchBrowser(ctx context.Context, opts launchOptions) (*launchedBrowser, error) {
	bin, err := findChromeBinary()
	if err != nil {
		return nil, err
	}

	dataDir := opts.UserDataDir
	ownedData := false
	if dataDir == "" {
		dataDir, err = os.MkdirTemp("", "mapper-chrome-*")
		if err != nil {
			return nil, fmt.Errorf("create temp profile dir: %w", err)
		}
		opts.UserDataDir = dataDir
		ownedData = true
	}

	port := opts.Port
	if port == 0 {
		port = defaultCDPPort
	}

	cmd := exec.Command(bin, buildChromeArgs(opts)...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	procutil.SetProcGroup(cmd)

	if err := cmd.Start(); err != nil {
		if ownedData {
			os.RemoveAll(dataDir)
		}
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	b := &launchedBrowser{cmd: cmd, port: port, dataDir: dataDir, ownedData: ownedData}

	if err := b.waitForCDP(ctx); err != nil {
		b.Stop(5 * time.Second)
		return nil, err
	}
	return b, nil
}

func (b *launchedBrowser) waitForCDP(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for chrome devtools endpoint: %w", ctx.Err())
		case <-ticker.C:
			if url, err := scanForDevToolsURL(b.port); err == nil && url != "" {
				b.wsURL = url
				return nil
			}
		}
	}
}

// scanForDevToolsURL polls Chrome's /json/version endpoint and returns the
// browser-level WebSocket debugger URL once it responds.
func scanForDevToolsURL(port int) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var info struct {
		WebSocketURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("parse /json/version response: %w", err)
	}
	if info.WebSocketURL == "" {
		return "", fmt.Errorf("no webSocketDebuggerUrl in /json/version response")
	}
	return info.WebSocketURL, nil
}

// PID returns the spawned Chrome process's PID, or 0 if it never started.
func (b *launchedBrowser) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Stop terminates the browser's whole process group and waits up to timeout
// for it to die before returning; the temp profile dir is removed if mapper
// created it.
func (b *launchedBrowser) Stop(timeout time.Duration) {
	pid := b.PID()
	if pid != 0 {
		procutil.KillProcessGroup(pid)
		procutil.WaitForProcessesDead([]int{pid}, timeout)
	}
	if b.cmd != nil {
		b.cmd.Wait()
	}
	if b.ownedData && b.dataDir != "" {
		os.RemoveAll(b.dataDir)
	}
}
