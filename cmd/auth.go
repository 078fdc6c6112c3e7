package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/desertthunder/plexsync/internal/server"
	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultLoginTimeout = 2 * time.Minute

// AuthURL prints the page the user approves plexsync on.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	trakt, err := r.traktClient()
	if err != nil {
		return err
	}

	r.writePlain("Open this URL and approve access:\n%s\n", trakt.AuthCodeURL(shared.GenerateID()))
	return r.writePlainln("Then run 'plexsync auth pin <code>' with the code Trakt shows.")
}

// AuthPIN exchanges the code shown after approving access for a token.
func (r *Runner) AuthPIN(ctx context.Context, cmd *cli.Command) error {
	code := cmd.StringArg("code")
	if code == "" {
		return fmt.Errorf("%w: code", shared.ErrMissingArgument)
	}

	trakt, err := r.traktClient()
	if err != nil {
		return err
	}

	token, err := trakt.Exchange(ctx, code)
	if err != nil {
		return err
	}

	r.logger.Info("trakt authorization saved", "expires", token.Expiry)
	return r.writePlain("✓ Authorization successful\n")
}

// AuthLogin performs the authorization code flow with a local callback server.
//
// The configured redirect URI must point at this host, e.g. http://127.0.0.1:5000/callback.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	trakt, err := r.traktClient()
	if err != nil {
		return err
	}

	addr, err := callbackAddr(trakt.RedirectURI())
	if err != nil {
		return err
	}

	state := shared.GenerateID()
	oauthHandler := server.NewOAuthHandler(trakt, state)
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Handler(oauthHandler)

	serverCtx, stop := context.WithCancel(ctx)
	defer stop()

	srv := server.NewServer(addr, router, r.logger)
	if err := srv.Start(serverCtx); err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	authURL := trakt.AuthCodeURL(state)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Trakt authorization...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrAuthFailed, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	r.writePlainln("✓ Authorization successful")
	return nil
}

// callbackAddr derives the listen address from an http redirect URI.
func callbackAddr(redirect string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: trakt.redirect_uri %q is not a local callback URL; use 'plexsync auth url' and 'plexsync auth pin' instead",
			shared.ErrInvalidConfig, redirect)
	}
	if u.Path != "/callback" {
		return "", fmt.Errorf("%w: trakt.redirect_uri must end in /callback, got %q", shared.ErrInvalidConfig, redirect)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		host, port = u.Hostname(), "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), nil
}

// AuthStatus reports the saved token, and with --verify whether Trakt accepts it.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	trakt, err := r.traktClient()
	if err != nil {
		return err
	}

	token, err := trakt.Token()
	if err != nil {
		return err
	}
	if token == nil {
		return r.writePlain("Authentication: ✗ Not authenticated\nRun 'plexsync auth login' or 'plexsync auth pin'.\n")
	}

	switch {
	case token.Valid():
		r.writePlain("Authentication: ✓ Authenticated\n")
		if !token.Expiry.IsZero() {
			r.writePlain("Expires: %s\n", token.Expiry.Local().Format(time.RFC1123))
		}
	case token.RefreshToken != "":
		r.writePlain("Authentication: ✓ Expired, will refresh on next use\n")
	default:
		r.writePlain("Authentication: ✗ Expired\n")
	}

	if !cmd.Bool("verify") {
		return nil
	}

	if err := trakt.Authenticate(ctx); err != nil {
		if errors.Is(err, shared.ErrTokenExpired) || errors.Is(err, shared.ErrAuthFailed) {
			return r.writePlain("Verification: ✗ %v\n", err)
		}
		return err
	}
	return r.writePlain("Verification: ✓ Trakt accepted the token\n")
}
