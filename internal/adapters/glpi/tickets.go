package glpi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// ticketStatuses is the status table every stock install ships. The REST
// API does not expose the status catalogue, so name matching works against
// this table.
var ticketStatuses = map[string]int{
	"new":                   1,
	"processing (assigned)": 2,
	"assigned":              2,
	"processing (planned)":  3,
	"planned":               3,
	"pending":               4,
	"solved":                5,
	"closed":                6,
	"approval":              10,
}

// ticketTypes mirrors the stock ticket type dropdown, including the French
// label localized installs report.
var ticketTypes = map[string]int{
	"incident": 1,
	"request":  2,
	"demande":  2,
}

// createItem posts one item and returns its new identifier.
func (c *Client) createItem(ctx context.Context, itemtype string, fields map[string]any) (int, error) {
	var out struct {
		ID int `json:"id"`
	}
	u := c.baseURL + "/" + url.PathEscape(itemtype)
	if err := c.do(ctx, "create "+itemtype, http.MethodPost, u, inputPayload{Input: fields}, &out); err != nil {
		return 0, fmt.Errorf("create %s: %w", itemtype, err)
	}
	if out.ID == 0 {
		return 0, fmt.Errorf("create %s: server returned no id", itemtype)
	}
	return out.ID, nil
}

// updateItem applies a partial update to an existing item.
func (c *Client) updateItem(ctx context.Context, itemtype string, id int, fields map[string]any) error {
	u := c.baseURL + "/" + url.PathEscape(itemtype) + "/" + strconv.Itoa(id)
	if err := c.do(ctx, "update "+itemtype, http.MethodPut, u, inputPayload{Input: fields}, nil); err != nil {
		return fmt.Errorf("update %s %d: %w", itemtype, id, err)
	}
	return nil
}

// CreateTicket creates a ticket and returns its new identifier.
func (c *Client) CreateTicket(ctx context.Context, fields map[string]any) (int, error) {
	return c.createItem(ctx, "Ticket", fields)
}

// UpdateTicket applies a partial update to an existing ticket.
func (c *Client) UpdateTicket(ctx context.Context, id int, fields map[string]any) error {
	return c.updateItem(ctx, "Ticket", id, fields)
}

// AddFollowup attaches a dated comment to a ticket. When authorID is 0 the
// followup is attributed to the session user.
func (c *Client) AddFollowup(ctx context.Context, ticketID, authorID int, content, date string) error {
	input := map[string]any{
		"itemtype":   "Ticket",
		"items_id":   ticketID,
		"content":    content,
		"date":       date,
		"is_private": 0,
	}
	if authorID > 0 {
		input["users_id"] = authorID
	}
	u := c.baseURL + "/ITILFollowup"
	if err := c.do(ctx, "add followup", http.MethodPost, u, inputPayload{Input: input}, nil); err != nil {
		return fmt.Errorf("add followup to ticket %d: %w", ticketID, err)
	}
	return nil
}

// LinkItem associates an inventory item with a ticket.
func (c *Client) LinkItem(ctx context.Context, ticketID int, itemType string, itemID int) error {
	input := map[string]any{
		"tickets_id": ticketID,
		"itemtype":   itemType,
		"items_id":   itemID,
	}
	u := c.baseURL + "/Item_Ticket"
	if err := c.do(ctx, "link item", http.MethodPost, u, inputPayload{Input: input}, nil); err != nil {
		return fmt.Errorf("link %s %d to ticket %d: %w", itemType, itemID, ticketID, err)
	}
	return nil
}

// EnsureCategory finds a category by name, creating it when absent, and
// returns its identifier. Created categories are added to the reference
// cache so later records resolve them without a round trip.
func (c *Client) EnsureCategory(ctx context.Context, name string) (int, error) {
	if id, ok := c.ResolveByName(domain.KindCategory, name); ok {
		return id, nil
	}

	id, err := c.FindItemID(ctx, "ITILCategory", name)
	if err != nil {
		return 0, fmt.Errorf("ensure category %q: %w", name, err)
	}
	if id == 0 {
		id, err = c.createItem(ctx, "ITILCategory", map[string]any{"name": name})
		if err != nil {
			return 0, fmt.Errorf("ensure category %q: %w", name, err)
		}
		c.log.Info().Str("category", name).Int("id", id).Msg("category created")
	}

	c.storeReference(domain.KindCategory, name, id)
	return id, nil
}

// StatusNames returns the target's status name→identifier table, keyed in
// lower case.
func (c *Client) StatusNames(ctx context.Context) (map[string]int, error) {
	return copyTable(ticketStatuses), nil
}

// TypeNames returns the target's ticket type name→identifier table, keyed
// in lower case.
func (c *Client) TypeNames(ctx context.Context) (map[string]int, error) {
	return copyTable(ticketTypes), nil
}

func copyTable(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for name, id := range src {
		dst[name] = id
	}
	return dst
}
