package glpi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// cachePageSize is how many rows one reference listing request asks for.
const cachePageSize = 1000

// Search option identifiers shared by the itemtypes the migration touches:
// 1 is the name (the login for users), 2 is the numeric id.
const (
	fieldName = "1"
	fieldID   = "2"
)

// kindItemtypes maps reference kinds to the API itemtype they live under.
var kindItemtypes = map[domain.ReferenceKind]string{
	domain.KindUser:     "User",
	domain.KindGroup:    "Group",
	domain.KindCategory: "ITILCategory",
	domain.KindLocation: "Location",
}

type searchResult struct {
	TotalCount int         `json:"totalcount"`
	Count      int         `json:"count"`
	Data       []searchRow `json:"data"`
}

// searchRow is one row of a search response, keyed by search option id.
// Values arrive as strings or numbers depending on the field.
type searchRow map[string]json.RawMessage

func (r searchRow) str(field string) string {
	raw, ok := r[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

func (r searchRow) id(field string) int {
	raw, ok := r[field]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return 0
}

// search runs one /search/{itemtype} request. Ranged responses come back
// as 206, which the transport treats as success.
func (c *Client) search(ctx context.Context, itemtype string, params url.Values) (searchResult, error) {
	var out searchResult
	u := c.baseURL + "/search/" + url.PathEscape(itemtype) + "?" + params.Encode()
	if err := c.do(ctx, "search "+itemtype, http.MethodGet, u, nil, &out); err != nil {
		return searchResult{}, err
	}
	return out, nil
}

// FindItemID resolves an item by exact name; 0 with nil error means not
// found. The value is anchored because the API's contains match is a
// substring search.
func (c *Client) FindItemID(ctx context.Context, itemtype, name string) (int, error) {
	params := url.Values{}
	params.Set("criteria[0][field]", fieldName)
	params.Set("criteria[0][searchtype]", "contains")
	params.Set("criteria[0][value]", "^"+name+"$")
	params.Set("forcedisplay[0]", fieldID)

	res, err := c.search(ctx, itemtype, params)
	if err != nil {
		return 0, fmt.Errorf("find %s %q: %w", itemtype, name, err)
	}
	if len(res.Data) == 0 {
		return 0, nil
	}
	return res.Data[0].id(fieldID), nil
}

// LoadReferenceCache fetches the complete name→ID listing for kind and
// swaps it in atomically. Readers keep the previous snapshot until the
// swap, so a failed reload never leaves a half-filled cache behind.
func (c *Client) LoadReferenceCache(ctx context.Context, kind domain.ReferenceKind) error {
	itemtype, ok := kindItemtypes[kind]
	if !ok {
		return fmt.Errorf("load reference cache: unknown kind %q", kind)
	}

	loaded := make(map[string]int)
	start := 0
	for {
		params := url.Values{}
		params.Set("forcedisplay[0]", fieldName)
		params.Set("forcedisplay[1]", fieldID)
		params.Set("is_deleted", "0")
		params.Set("range", fmt.Sprintf("%d-%d", start, start+cachePageSize-1))

		res, err := c.search(ctx, itemtype, params)
		if err != nil {
			return fmt.Errorf("load %s cache: %w", itemtype, err)
		}
		for _, row := range res.Data {
			name := row.str(fieldName)
			id := row.id(fieldID)
			if name == "" || id == 0 {
				continue
			}
			loaded[strings.ToLower(name)] = id
		}
		// Advance by what actually came back; the server may cap ranges
		// below the requested page size.
		if len(res.Data) == 0 {
			break
		}
		start += len(res.Data)
		if start >= res.TotalCount {
			break
		}
	}

	c.cacheMu.Lock()
	c.caches[kind] = loaded
	c.cacheMu.Unlock()

	c.log.Info().
		Str("kind", string(kind)).
		Int("entries", len(loaded)).
		Msg("reference cache loaded")
	return nil
}

// ResolveByName looks a name up in the loaded snapshot, case-insensitively.
// It performs no I/O; a miss or an unloaded cache is (0, false).
func (c *Client) ResolveByName(kind domain.ReferenceKind, name string) (int, bool) {
	c.cacheMu.RLock()
	cache := c.caches[kind]
	c.cacheMu.RUnlock()

	id, ok := cache[strings.ToLower(name)]
	return id, ok
}

// storeReference adds one entry to a loaded cache so items created during
// the run resolve without a full reload.
func (c *Client) storeReference(kind domain.ReferenceKind, name string, id int) {
	c.cacheMu.Lock()
	if c.caches[kind] == nil {
		c.caches[kind] = make(map[string]int)
	}
	c.caches[kind][strings.ToLower(name)] = id
	c.cacheMu.Unlock()
}
