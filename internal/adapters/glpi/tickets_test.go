package glpi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// decodeInput unwraps the {"input": ...} envelope of a captured request
// body.
func decodeInput(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var envelope struct {
		Input map[string]any `json:"input"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("request body %q is not an input envelope: %v", body, err)
	}
	if envelope.Input == nil {
		t.Fatalf("request body %q has no input key", body)
	}
	return envelope.Input
}

func TestCreateTicketPostsInputEnvelope(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 42, "message": "Item successfully added"}`)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	id, err := c.CreateTicket(context.Background(), map[string]any{
		"name":    "Printer on fire",
		"content": "It is actually on fire.",
		"status":  1,
	})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if gotMethod != http.MethodPost || gotPath != "/Ticket" {
		t.Errorf("request = %s %s, want POST /Ticket", gotMethod, gotPath)
	}
	input := decodeInput(t, gotBody)
	if input["name"] != "Printer on fire" {
		t.Errorf("input name = %v", input["name"])
	}
	if input["status"] != float64(1) {
		t.Errorf("input status = %v", input["status"])
	}
}

func TestCreateTicketWithoutID(t *testing.T) {
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message": "created, allegedly"}`)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if _, err := c.CreateTicket(context.Background(), map[string]any{"name": "x"}); err == nil {
		t.Fatal("expected an error when the server returns no id")
	}
}

func TestUpdateTicket(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `[{"42": true, "message": ""}]`)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	if err := c.UpdateTicket(context.Background(), 42, map[string]any{"status": 6}); err != nil {
		t.Fatalf("UpdateTicket failed: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/Ticket/42" {
		t.Errorf("request = %s %s, want PUT /Ticket/42", gotMethod, gotPath)
	}
	input := decodeInput(t, gotBody)
	if input["status"] != float64(6) {
		t.Errorf("input status = %v, want 6", input["status"])
	}
}

func TestAddFollowup(t *testing.T) {
	var gotPath string
	var gotBody []byte
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 9}`)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	err := c.AddFollowup(context.Background(), 42, 12, "Extinguisher applied.", "2024-03-15 11:00:00")
	if err != nil {
		t.Fatalf("AddFollowup failed: %v", err)
	}
	if gotPath != "/ITILFollowup" {
		t.Errorf("path = %q, want /ITILFollowup", gotPath)
	}
	input := decodeInput(t, gotBody)
	if input["itemtype"] != "Ticket" || input["items_id"] != float64(42) {
		t.Errorf("input target = %v/%v, want Ticket/42", input["itemtype"], input["items_id"])
	}
	if input["content"] != "Extinguisher applied." {
		t.Errorf("input content = %v", input["content"])
	}
	if input["date"] != "2024-03-15 11:00:00" {
		t.Errorf("input date = %v", input["date"])
	}
	if input["users_id"] != float64(12) {
		t.Errorf("input users_id = %v, want 12", input["users_id"])
	}
	if input["is_private"] != float64(0) {
		t.Errorf("input is_private = %v, want 0", input["is_private"])
	}
}

func TestAddFollowupWithoutAuthor(t *testing.T) {
	var gotBody []byte
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 10}`)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	if err := c.AddFollowup(context.Background(), 42, 0, "Anonymous tip.", "2024-03-15 11:05:00"); err != nil {
		t.Fatalf("AddFollowup failed: %v", err)
	}
	input := decodeInput(t, gotBody)
	if _, ok := input["users_id"]; ok {
		t.Errorf("input users_id = %v, want the key absent", input["users_id"])
	}
}

func TestLinkItem(t *testing.T) {
	var gotPath string
	var gotBody []byte
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 3}`)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	if err := c.LinkItem(context.Background(), 42, "Computer", 17); err != nil {
		t.Fatalf("LinkItem failed: %v", err)
	}
	if gotPath != "/Item_Ticket" {
		t.Errorf("path = %q, want /Item_Ticket", gotPath)
	}
	input := decodeInput(t, gotBody)
	if input["tickets_id"] != float64(42) || input["itemtype"] != "Computer" || input["items_id"] != float64(17) {
		t.Errorf("input = %v", input)
	}
}

func TestEnsureCategoryFindsExisting(t *testing.T) {
	searches := 0
	creates := 0
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search/ITILCategory":
			searches++
			fmt.Fprint(w, `{"totalcount": 1, "count": 1, "data": [{"2": 5}]}`)
		case r.URL.Path == "/ITILCategory" && r.Method == http.MethodPost:
			creates++
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id": 99}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	id, err := c.EnsureCategory(context.Background(), "Hardware")
	if err != nil {
		t.Fatalf("EnsureCategory failed: %v", err)
	}
	if id != 5 {
		t.Errorf("id = %d, want 5", id)
	}
	if creates != 0 {
		t.Errorf("create called %d times, want 0 for an existing category", creates)
	}

	// Second lookup is served from the cache.
	id, err = c.EnsureCategory(context.Background(), "hardware")
	if err != nil {
		t.Fatalf("second EnsureCategory failed: %v", err)
	}
	if id != 5 {
		t.Errorf("cached id = %d, want 5", id)
	}
	if searches != 1 {
		t.Errorf("search called %d times, want 1", searches)
	}
}

func TestEnsureCategoryCreatesMissing(t *testing.T) {
	var gotBody []byte
	ts := httptest.NewServer(withSession(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search/ITILCategory":
			fmt.Fprint(w, `{"totalcount": 0, "count": 0, "data": []}`)
		case r.URL.Path == "/ITILCategory" && r.Method == http.MethodPost:
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id": 8}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if err := c.OpenSession(context.Background()); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	id, err := c.EnsureCategory(context.Background(), "Networking")
	if err != nil {
		t.Fatalf("EnsureCategory failed: %v", err)
	}
	if id != 8 {
		t.Errorf("id = %d, want 8", id)
	}
	input := decodeInput(t, gotBody)
	if input["name"] != "Networking" {
		t.Errorf("input name = %v, want Networking", input["name"])
	}
	if cached, ok := c.ResolveByName(domain.KindCategory, "networking"); !ok || cached != 8 {
		t.Errorf("cache entry = (%d, %v), want (8, true)", cached, ok)
	}
}

func TestStatusNames(t *testing.T) {
	ts := httptest.NewServer(withSession(nil))
	defer ts.Close()

	names, err := newTestClient(ts).StatusNames(context.Background())
	if err != nil {
		t.Fatalf("StatusNames failed: %v", err)
	}
	want := map[string]int{
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
	if len(names) != len(want) {
		t.Fatalf("got %d statuses, want %d", len(names), len(want))
	}
	for name, id := range want {
		if names[name] != id {
			t.Errorf("status %q = %d, want %d", name, names[name], id)
		}
	}

	// Mutating the returned map must not leak into later calls.
	names["closed"] = 0
	again, _ := newTestClient(ts).StatusNames(context.Background())
	if again["closed"] != 6 {
		t.Error("StatusNames returned a shared map")
	}
}

func TestTypeNames(t *testing.T) {
	ts := httptest.NewServer(withSession(nil))
	defer ts.Close()

	names, err := newTestClient(ts).TypeNames(context.Background())
	if err != nil {
		t.Fatalf("TypeNames failed: %v", err)
	}
	want := map[string]int{"incident": 1, "request": 2, "demande": 2}
	if len(names) != len(want) {
		t.Fatalf("got %d types, want %d", len(names), len(want))
	}
	for name, id := range want {
		if names[name] != id {
			t.Errorf("type %q = %d, want %d", name, names[name], id)
		}
	}
}
