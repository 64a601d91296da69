package attendu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// ListClasses returns the classes visible to the logged-in account.
// The endpoint answers either with a bare array or with {"classes": [...]}.
func (c *Client) ListClasses(ctx context.Context) ([]Class, error) {
	raw, err := doGetJSON[json.RawMessage](ctx, c, "/classes")
	if err != nil {
		return nil, fmt.Errorf("could not list classes: %w", err)
	}

	body := bytes.TrimSpace(*raw)
	if len(body) == 0 || bytes.Equal(body, nullPayload) {
		return nil, nil
	}

	if body[0] == '[' {
		var classes []Class
		if err := json.Unmarshal(body, &classes); err != nil {
			return nil, fmt.Errorf("could not unmarshal classes: %w", err)
		}
		return classes, nil
	}

	var wrapped struct {
		Classes []Class `json:"classes"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("could not unmarshal classes: %w", err)
	}
	return wrapped.Classes, nil
}
