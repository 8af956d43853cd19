// Package identity resolves user profiles from the external identity
// service. Users are read-only to the distribution core.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/polychat/chat-platform/internal/model"
)

// Resolver looks up user profiles.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (*model.User, error)
}

// HTTPResolver fetches profiles from the identity service's REST API.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver against baseURL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, userID string) (*model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/users/"+userID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity lookup for %s: %v: %w", userID, err, model.ErrExternal)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity lookup for %s returned %d: %w", userID, resp.StatusCode, model.ErrExternal)
	}

	var user model.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("identity response for %s: %v: %w", userID, err, model.ErrExternal)
	}
	return &user, nil
}

// Static is a fixed in-memory resolver for development and tests.
type Static map[string]*model.User

func (s Static) Resolve(ctx context.Context, userID string) (*model.User, error) {
	if user, ok := s[userID]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
}
