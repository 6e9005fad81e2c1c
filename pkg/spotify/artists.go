package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// maxArtistsPerRequest is the limit of GET /artists.
const maxArtistsPerRequest = 50

// ArtistsService provides access to artist profiles.
type ArtistsService struct {
	client *Client
}

// GetSeveral fetches artist profiles, batching ids by 50. Unknown ids are
// skipped.
func (s *ArtistsService) GetSeveral(ctx context.Context, ids []string) ([]FullArtist, error) {
	var artists []FullArtist

	for start := 0; start < len(ids); start += maxArtistsPerRequest {
		end := start + maxArtistsPerRequest
		if end > len(ids) {
			end = len(ids)
		}

		q := url.Values{}
		q.Set("ids", strings.Join(ids[start:end], ","))

		var resp severalArtists
		if _, err := s.client.get(ctx, "/artists", q, &resp); err != nil {
			return nil, fmt.Errorf("failed to get artists: %w", err)
		}

		for _, a := range resp.Artists {
			if a != nil {
				artists = append(artists, *a)
			}
		}
	}

	return artists, nil
}
