package gamma

import (
	"encoding/json"
	"time"
)

// APIEvent is an event descriptor as returned by the Gamma /events endpoint.
// An event groups one or more markets under a single slug.
type APIEvent struct {
	ID      string      `json:"id"`
	Slug    string      `json:"slug"`
	Title   string      `json:"title"`
	Closed  bool        `json:"closed"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket is a market descriptor inside a Gamma event.
type APIMarket struct {
	ID              string `json:"id"`
	ConditionID     string `json:"conditionId"`
	Question        string `json:"question"`
	Closed          bool   `json:"closed"`
	AcceptingOrders bool   `json:"acceptingOrders"`
	EndDate         string `json:"endDate"`

	// JSON-encoded list of two CLOB token IDs, e.g. "[\"123\",\"456\"]".
	ClobTokenIDs string `json:"clobTokenIds"`

	// Fallback token list; some responses populate this instead.
	Tokens []Token `json:"tokens"`
}

// Token is a token entry inside a Gamma market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// TokenPair extracts the UP and DOWN instrument identifiers from the
// clobTokenIds field, falling back to the tokens array. Returns ok=false
// when neither yields a usable pair.
func (m *APIMarket) TokenPair() (up, down string, ok bool) {
	if m.ClobTokenIDs != "" {
		var ids []string
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err == nil && len(ids) >= 2 {
			if ids[0] != "" && ids[1] != "" {
				return ids[0], ids[1], true
			}
		}
	}

	if len(m.Tokens) >= 2 {
		if m.Tokens[0].TokenID != "" && m.Tokens[1].TokenID != "" {
			return m.Tokens[0].TokenID, m.Tokens[1].TokenID, true
		}
	}

	return "", "", false
}

// EndTime parses the market's resolution timestamp. Returns the zero time
// when the field is absent or malformed.
func (m *APIMarket) EndTime() time.Time {
	if m.EndDate == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
