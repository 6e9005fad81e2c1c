package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jfmyers9/scrobblify/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// authTimeout bounds how long we wait for the browser redirect.
const authTimeout = 5 * time.Minute

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with Spotify",
	Long: `Authenticate with Spotify so the daemon can read your playback.

This command will guide you through the Spotify authorization flow:
1. You'll be prompted to enter your Spotify application client id and secret
2. A browser URL will be provided for you to authorize the application
3. Spotify redirects back to a local callback server started by this command
4. The resulting token is saved next to your config file

Create an application at https://developer.spotify.com/dashboard and add the
configured redirect URI (default http://127.0.0.1:8888/callback) to it.`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	// Load existing config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Step 1: Get application credentials
	fmt.Println("Spotify Authentication")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("You can create an application at: https://developer.spotify.com/dashboard")
	fmt.Println()

	// Check if we already have credentials
	if cfg.Spotify.ClientID != "" && cfg.Spotify.ClientSecret != "" {
		fmt.Printf("Found existing application credentials.\n")
		fmt.Printf("Client ID: %s\n", cfg.Spotify.ClientID)
		fmt.Print("\nUse existing credentials? [Y/n]: ")
		response, err := reader.ReadString('\n')
		if err != nil {
			response = "y"
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			cfg.Spotify.ClientID = ""
			cfg.Spotify.ClientSecret = ""
		}
	}

	if cfg.Spotify.ClientID == "" {
		fmt.Print("Enter your Spotify Client ID: ")
		clientID, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client id: %w", err)
		}
		cfg.Spotify.ClientID = strings.TrimSpace(clientID)
	}

	if cfg.Spotify.ClientSecret == "" {
		fmt.Print("Enter your Spotify Client Secret: ")
		clientSecret, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client secret: %w", err)
		}
		cfg.Spotify.ClientSecret = strings.TrimSpace(clientSecret)
	}

	if err := cfg.ValidateSpotify(); err != nil {
		return err
	}

	redirect, err := url.Parse(cfg.Spotify.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("invalid redirect URI %q", cfg.Spotify.RedirectURI)
	}

	// Step 2: Start the callback server before sending the user away
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	state := uuid.NewString()
	codes := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           newCallbackHandler(redirect.Path, state, codes),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	client, err := newSpotifyClient(cfg, zerolog.Nop())
	if err != nil {
		return err
	}

	// Step 3: Direct user to authorize
	fmt.Println("\nPlease visit this URL to authorize scrobblify:")
	fmt.Printf("\n  %s\n\n", client.Auth().AuthorizeURL(state))
	fmt.Println("Waiting for Spotify to redirect back...")

	ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
	defer cancel()

	var result callbackResult
	select {
	case result = <-codes:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for authorization")
	}
	if result.err != nil {
		return result.err
	}

	// Step 4: Exchange the code; the client writes the token file
	if _, err := client.Auth().Exchange(ctx, result.code); err != nil {
		return err
	}

	// Step 5: Save credentials to config
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	configPath := config.GetConfigDir()
	fmt.Printf("\n✓ Authentication successful!\n")
	fmt.Printf("✓ Token saved to %s\n", cfg.Spotify.TokenFile)
	fmt.Printf("✓ Credentials saved to %s/config.yaml\n", configPath)
	fmt.Println("\nYou can now use 'scrobblify daemon' to start scrobbling.")

	return nil
}

type callbackResult struct {
	code string
	err  error
}

// newCallbackHandler serves the OAuth redirect. The first request carrying
// the expected state delivers its code (or error) on results.
func newCallbackHandler(path, state string, results chan<- callbackResult) http.Handler {
	if path == "" {
		path = "/"
	}

	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	r := chi.NewRouter()
	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}

		if reason := q.Get("error"); reason != "" {
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", reason)})
			http.Error(w, "Authorization denied. You can close this window.", http.StatusForbidden)
			return
		}

		code := q.Get("code")
		if code == "" {
			deliver(callbackResult{err: errors.New("callback did not include an authorization code")})
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		deliver(callbackResult{code: code})
		fmt.Fprintln(w, "scrobblify is authorized. You can close this window.")
	})
	return r
}
