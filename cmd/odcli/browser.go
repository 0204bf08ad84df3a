package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"

	"github.com/tonimelisma/onedrive-sdk-go/auth"
)

// loopbackUI drives interactive login through the system browser. It starts
// a one-shot HTTP listener on the loopback redirect address, prints the URL
// for the user to open, and blocks until the provider redirects back.
type loopbackUI struct{}

var (
	_ auth.LoginUI   = (*loopbackUI)(nil)
	_ auth.ChooserUI = (*loopbackUI)(nil)
)

// PresentAuth serves the OAuth redirect at redirectURI and returns the full
// callback URL once the provider redirects to it.
func (u *loopbackUI) PresentAuth(ctx context.Context, authURL, redirectURI string) (*url.URL, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}

	path := target.Path
	if path == "" {
		path = "/"
	}

	return awaitCallback(ctx, target.Host, path, authURL)
}

// Choose serves the account chooser callback at callbackAuthority and
// returns the full callback URL once the chooser redirects to it.
func (u *loopbackUI) Choose(ctx context.Context, chooserURL, callbackAuthority string) (*url.URL, error) {
	return awaitCallback(ctx, callbackAuthority, "/", chooserURL)
}

// callbackPage is shown in the browser after a successful redirect.
const callbackPage = "<html><body>You may close this window and return to the terminal.</body></html>"

// awaitCallback listens on addr, prompts the user to open openURL in a
// browser, and blocks until a request arrives on path or the context is
// cancelled. Context cancellation maps to the cancelled-login error so the
// caller can tell an aborted flow from a failed one.
func awaitCallback(ctx context.Context, addr, path string, openURL string) (*url.URL, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer listener.Close()

	// Interactive prompts must always be visible, not suppressed by --quiet.
	fmt.Fprintf(os.Stderr, "To sign in, open this URL in your browser:\n\n  %s\n\n", openURL)

	type result struct {
		callback *url.URL
		err      error
	}

	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, callbackPage)

		callback := *r.URL
		callback.Scheme = "http"
		callback.Host = addr

		select {
		case done <- result{callback: &callback}:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)
	defer srv.Close()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for browser redirect: %w: %w", auth.ErrCancelled, ctx.Err())
	case res := <-done:
		return res.callback, res.err
	}
}
