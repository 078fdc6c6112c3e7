package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// OpenBrowser opens url in the user's browser for the Trakt authorization page.
//
// $BROWSER wins when set; otherwise the platform's opener is used.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	// Reap the opener so it does not linger as a zombie.
	go cmd.Wait()
	return nil
}

func browserCommand(goos, browser, url string) (*exec.Cmd, error) {
	if browser != "" {
		return exec.Command(browser, url), nil
	}

	switch goos {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("%w: cannot open a browser on %s", ErrNotImplemented, goos)
	}
}
