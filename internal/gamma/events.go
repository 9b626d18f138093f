package gamma

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetEvents fetches the most recent open events from the Gamma API,
// newest first. The caller filters for qualifying markets.
func (c *Client) GetEvents(ctx context.Context, limit int) ([]APIEvent, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("closed", "false")
	query.Set("order", "startDate")
	query.Set("ascending", "false")

	var events []APIEvent
	if err := c.getGamma(ctx, "/events", query, &events); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	return events, nil
}
