package gamma

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// TokenPrice fetches the current buy price for a token from the CLOB
// /price endpoint. side is "buy" or "sell".
func (c *Client) TokenPrice(ctx context.Context, tokenID, side string) (float64, error) {
	query := url.Values{}
	query.Set("token_id", tokenID)
	query.Set("side", side)

	var resp struct {
		Price string `json:"price"`
	}
	if err := c.getClob(ctx, "/price", query, &resp); err != nil {
		return 0, fmt.Errorf("get price for %s: %w", tokenID, err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", resp.Price, err)
	}

	return price, nil
}

// bookLevel is a single price level in a CLOB book response.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// TokenBook holds the ask-side summary of a token's order book.
type TokenBook struct {
	TokenID      string
	BestAsk      float64
	AskLiquidity float64 // size across the top 3 ask levels
	HasAsk       bool
}

// GetBook fetches a token's order book from the CLOB /book endpoint and
// summarizes the ask side. New markets often have empty books; that is
// returned as HasAsk=false, not an error.
func (c *Client) GetBook(ctx context.Context, tokenID string) (TokenBook, error) {
	query := url.Values{}
	query.Set("token_id", tokenID)

	var resp struct {
		Asks []bookLevel `json:"asks"`
	}
	if err := c.getClob(ctx, "/book", query, &resp); err != nil {
		return TokenBook{}, fmt.Errorf("get book for %s: %w", tokenID, err)
	}

	return summarizeAsks(tokenID, resp.Asks), nil
}

// summarizeAsks reduces raw ask levels to best ask plus depth at the top
// three price levels. Level ordering in API responses is not guaranteed.
func summarizeAsks(tokenID string, raw []bookLevel) TokenBook {
	type level struct{ price, size float64 }

	levels := make([]level, 0, len(raw))
	for _, lvl := range raw {
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil || price <= 0 || size <= 0 {
			continue
		}
		levels = append(levels, level{price, size})
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i].price < levels[j].price })

	book := TokenBook{TokenID: tokenID}
	if len(levels) == 0 {
		return book
	}

	book.HasAsk = true
	book.BestAsk = levels[0].price
	for i := 0; i < len(levels) && i < 3; i++ {
		book.AskLiquidity += levels[i].size
	}
	return book
}
