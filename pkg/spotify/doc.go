// Package spotify provides a small client for the Spotify Web API.
//
// It covers what a listening-history recorder needs: the OAuth authorization
// code flow with refresh tokens, the currently playing item, the recently
// played feed and artist profiles (for genres). It is designed to be used as
// a standalone SDK.
//
// # Authentication
//
// The client loads tokens from a TokenStore and refreshes them transparently:
//
//	client, err := spotify.NewClient(spotify.Config{
//	    ClientID:     "your-client-id",
//	    ClientSecret: "your-client-secret",
//	    RedirectURI:  "http://127.0.0.1:8888/callback",
//	    TokenStore:   spotify.FileTokenStore{Path: "token.json"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Authorize at:", client.Auth().AuthorizeURL(state))
//	// ... receive ?code= on the redirect URI ...
//	if _, err := client.Auth().Exchange(ctx, code); err != nil {
//	    log.Fatal(err)
//	}
//
// # Playback
//
//	cp, err := client.Player().CurrentlyPlaying(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if cp != nil && cp.Item.Type == spotify.ItemTypeTrack {
//	    fmt.Println(cp.Item.Track.Name)
//	}
//
// CurrentlyPlaying returns nil when nothing is playing. Episodes, ads and
// unknown items are reported through PlayableItem.Type rather than as errors.
//
// # Error Handling
//
// API failures are returned as *Error. Temporary errors (429 and 5xx) and
// network errors are retried with exponential backoff; a 429 Retry-After
// header overrides the backoff. A 401 triggers one token refresh:
//
//	var apiErr *spotify.Error
//	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
//	    // ...
//	}
//
// # Rate Limiting
//
// Requests pass through a token bucket limiter (5 req/s, burst 10 by default)
// configured with Config.RateLimit and Config.RateBurst.
package spotify
