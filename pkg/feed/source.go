package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mural-app/birthday-wall/internal/model/wall"
)

// MessageSource builds a FetchFunc over the messages list endpoint.
func MessageSource(baseURL string, client *http.Client) FetchFunc[wall.Message] {
	return pageSource[wall.Message](baseURL, "/api/messages", client)
}

// MediaSource builds a FetchFunc over the media list endpoint.
func MediaSource(baseURL string, client *http.Client) FetchFunc[wall.MediaWithURL] {
	return pageSource[wall.MediaWithURL](baseURL, "/api/media", client)
}

func pageSource[T any](baseURL, path string, client *http.Client) FetchFunc[T] {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(baseURL, "/")
	return func(ctx context.Context, page, limit int) ([]T, bool, error) {
		url := fmt.Sprintf("%s%s?page=%d&limit=%d", base, path, page, limit)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, false, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, false, fmt.Errorf("list endpoint returned %d", resp.StatusCode)
		}
		var envelope wall.Page[T]
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, false, fmt.Errorf("decode page: %w", err)
		}
		return envelope.Data, envelope.Pagination.HasNextPage, nil
	}
}
