package engine

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/domain"
)

func newTransformEngine(t *testing.T, mut func(*config.Config)) (*Engine, *fakeTarget) {
	t.Helper()
	src := &fakeSource{}
	tgt := newFakeTarget()
	e, _ := newTestEngine(t, src, tgt, &fakeStore{}, mut)
	tbl, err := e.buildTables(context.Background())
	if err != nil {
		t.Fatalf("buildTables: %v", err)
	}
	e.tables = tbl
	return e, tgt
}

func richIssue() domain.Issue {
	return domain.Issue{
		Key:         "SUP-7",
		Summary:     "Mail gateway down",
		Description: "Cannot send mail since 09:00.",
		Status:      "Closed",
		Type:        "Incident",
		Priority:    "High",
		Reporter:    domain.Actor{Login: "J.Smith", DisplayName: "Jane Smith"},
		Assignee:    domain.Actor{Login: "b.lee", DisplayName: "Bo Lee"},
		Created:     "2024-03-01T10:00:00.000+0700",
		Updated:     "2024-03-02T11:30:00.000+0700",
		Resolved:    "2024-03-03T12:00:00.000+0700",
	}
}

func TestTransformBuildsTicketFields(t *testing.T) {
	e, _ := newTransformEngine(t, func(cfg *config.Config) {
		cfg.Mappings.Priority = map[string]config.PriorityRef{
			"High": {Urgency: 4, Impact: 4},
		}
	})

	p, err := e.transform(context.Background(), richIssue())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	want := map[string]any{
		"status":              6,
		"type":                1,
		"urgency":             4,
		"impact":              4,
		"name":                "Mail gateway down",
		"date":                "2024-03-01 10:00:00",
		"date_mod":            "2024-03-02 11:30:00",
		"solvedate":           "2024-03-03 12:00:00",
		"closedate":           "2024-03-03 12:00:00",
		"_users_id_requester": 21,
		"_users_id_assign":    22,
	}
	for key, v := range want {
		if got := p.fields[key]; got != v {
			t.Errorf("fields[%q] = %v, want %v", key, got, v)
		}
	}

	content, _ := p.fields["content"].(string)
	for _, frag := range []string{"browse/SUP-7", "Cannot send mail", "<hr />", "Jane Smith (J.Smith)"} {
		if !strings.Contains(content, frag) {
			t.Errorf("content missing %q:\n%s", frag, content)
		}
	}
}

func TestTransformDefaultsUnmappedNames(t *testing.T) {
	e, _ := newTransformEngine(t, nil)
	iss := richIssue()
	iss.Status = "Reticulating"
	iss.Type = "Epic"
	iss.Priority = "Blocker"

	p, err := e.transform(context.Background(), iss)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if p.fields["status"] != 3 || p.fields["type"] != 2 {
		t.Errorf("status/type = %v/%v, want defaults 3/2", p.fields["status"], p.fields["type"])
	}
	if p.fields["urgency"] != 3 || p.fields["impact"] != 3 {
		t.Errorf("urgency/impact = %v/%v, want defaults 3/3", p.fields["urgency"], p.fields["impact"])
	}
}

func TestTransformSummaryFallback(t *testing.T) {
	e, _ := newTransformEngine(t, nil)
	iss := richIssue()
	iss.Summary = ""

	p, err := e.transform(context.Background(), iss)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if p.fields["name"] != "[No Title]" {
		t.Errorf("name = %v, want [No Title]", p.fields["name"])
	}
}

func TestTransformFailsOnBadCreatedDate(t *testing.T) {
	e, _ := newTransformEngine(t, nil)
	iss := richIssue()
	iss.Created = "yesterday"

	if _, err := e.transform(context.Background(), iss); err == nil || !strings.Contains(err.Error(), "created date") {
		t.Fatalf("transform error = %v, want created date failure", err)
	}
}

func TestTransformDropsBadOptionalDates(t *testing.T) {
	e, _ := newTransformEngine(t, nil)
	iss := richIssue()
	iss.Updated = "n/a"
	iss.Resolved = "n/a"

	p, err := e.transform(context.Background(), iss)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	for _, key := range []string{"date_mod", "solvedate", "closedate"} {
		if _, ok := p.fields[key]; ok {
			t.Errorf("fields[%q] present, want dropped", key)
		}
	}
}

func TestTransformActors(t *testing.T) {
	t.Run("unresolved reporter without fallback", func(t *testing.T) {
		e, _ := newTransformEngine(t, nil)
		iss := richIssue()
		iss.Reporter = domain.Actor{Login: "ghost", DisplayName: "Casper"}

		p, err := e.transform(context.Background(), iss)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if _, ok := p.fields["_users_id_requester"]; ok {
			t.Error("requester set for unresolved reporter with no fallback")
		}
		if e.tracker.Len() != 1 {
			t.Errorf("tracked %d identities, want 1", e.tracker.Len())
		}
	})

	t.Run("unresolved reporter with fallback", func(t *testing.T) {
		e, _ := newTransformEngine(t, func(cfg *config.Config) {
			cfg.Defaults.User = "migration.bot"
		})
		iss := richIssue()
		iss.Reporter = domain.Actor{Login: "ghost", DisplayName: "Casper"}

		p, err := e.transform(context.Background(), iss)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if p.fields["_users_id_requester"] != 99 {
			t.Errorf("requester = %v, want fallback 99", p.fields["_users_id_requester"])
		}
	})

	t.Run("no assignee", func(t *testing.T) {
		e, _ := newTransformEngine(t, func(cfg *config.Config) {
			cfg.Defaults.User = "migration.bot"
		})
		iss := richIssue()
		iss.Assignee = domain.Actor{}

		p, err := e.transform(context.Background(), iss)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if _, ok := p.fields["_users_id_assign"]; ok {
			t.Error("assignee set on an unassigned record")
		}
	})
}

func TestTransformObservers(t *testing.T) {
	e, _ := newTransformEngine(t, nil)
	iss := richIssue()
	iss.Participants = []domain.Actor{
		{Login: "j.smith", DisplayName: "Jane Smith"},
		{Login: "ghost", DisplayName: "Casper"},
		{},
	}

	p, err := e.transform(context.Background(), iss)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got := p.fields["_users_id_observer"]; !reflect.DeepEqual(got, []int{21}) {
		t.Errorf("observers = %v, want [21]", got)
	}
	if e.tracker.Len() != 1 {
		t.Errorf("tracked %d identities, want only the unmatched participant", e.tracker.Len())
	}
	content, _ := p.fields["content"].(string)
	if !strings.Contains(content, "Casper (ghost)") {
		t.Errorf("content missing unmatched participant:\n%s", content)
	}
}

func TestTransformLocation(t *testing.T) {
	mut := func(cfg *config.Config) {
		cfg.Mappings.ClassificationLocation = map[string]string{
			"Bangkok": "Bangkok HQ",
			"Backup":  "Chiang Mai DC",
		}
	}

	t.Run("last match wins", func(t *testing.T) {
		e, tgt := newTransformEngine(t, mut)
		tgt.refs[domain.KindLocation]["chiang mai dc"] = 10
		iss := richIssue()
		iss.Classification = []string{"Bangkok", "Backup"}

		p, err := e.transform(context.Background(), iss)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if p.fields["locations_id"] != 10 {
			t.Errorf("locations_id = %v, want 10", p.fields["locations_id"])
		}
	})

	t.Run("no classification match", func(t *testing.T) {
		e, _ := newTransformEngine(t, mut)
		iss := richIssue()
		iss.Classification = []string{"Network"}

		p, err := e.transform(context.Background(), iss)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if _, ok := p.fields["locations_id"]; ok {
			t.Error("locations_id set without a classification match")
		}
	})
}

func TestTransformSecurityCategory(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		wantID   any
		wantOmit bool
	}{
		{name: "mapped level", level: "Confidential", wantID: 7},
		{name: "none means no category", level: "None", wantOmit: true},
		{name: "empty means no category", level: "", wantOmit: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTransformEngine(t, nil)
			iss := richIssue()
			iss.SecurityLevel = tt.level

			p, err := e.transform(context.Background(), iss)
			if err != nil {
				t.Fatalf("transform: %v", err)
			}
			got, ok := p.fields["itilcategories_id"]
			if tt.wantOmit {
				if ok {
					t.Errorf("itilcategories_id = %v, want omitted", got)
				}
				return
			}
			if got != tt.wantID {
				t.Errorf("itilcategories_id = %v, want %v", got, tt.wantID)
			}
		})
	}
}

func TestTransformResolvesItems(t *testing.T) {
	e, tgt := newTransformEngine(t, func(cfg *config.Config) {
		cfg.Mappings.ClassificationItem = map[string]config.ItemRef{
			"Payroll": {Type: "Business_Service", Name: "Payroll"},
			"Billing": {Type: "Software", Name: "Billing"},
			"Ghost":   {Type: "Software", Name: "Nope"},
		}
	})
	iss := richIssue()
	iss.Classification = []string{"Payroll", "Billing", "Ghost", "Network"}

	p, err := e.transform(context.Background(), iss)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want := []itemLink{
		{itemType: "BusinessService", id: 301},
		{itemType: "Software", id: 302},
	}
	if !reflect.DeepEqual(p.items, want) {
		t.Errorf("items = %v, want %v", p.items, want)
	}
	for _, call := range tgt.itemCalls {
		if strings.Contains(call, "Business_Service") {
			t.Errorf("item lookup used the underscored type: %q", call)
		}
	}
}

func TestTransformFollowups(t *testing.T) {
	e, _ := newTransformEngine(t, func(cfg *config.Config) {
		cfg.Defaults.User = "migration.bot"
	})
	iss := richIssue()
	iss.Comments = []domain.Comment{
		{
			Author:  domain.Actor{Login: "j.smith", DisplayName: "Jane Smith"},
			Body:    "first\nline",
			Created: "2024-03-01T10:05:00.000+0700",
		},
		{
			Author:  domain.Actor{Login: "ghost", DisplayName: "Casper"},
			Body:    "<b>boo</b>",
			Created: "not a date",
		},
	}

	p, err := e.transform(context.Background(), iss)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(p.followups) != 2 {
		t.Fatalf("followups = %d, want 2", len(p.followups))
	}

	first := p.followups[0]
	if first.authorID != 21 || first.date != "2024-03-01 10:05:00" {
		t.Errorf("first followup = %+v, want author 21 with converted date", first)
	}
	if first.content != "first<br />line" {
		t.Errorf("first content = %q, want escaped body without header", first.content)
	}

	second := p.followups[1]
	if second.authorID != 99 {
		t.Errorf("second author = %d, want fallback 99", second.authorID)
	}
	if second.date != "2024-03-01 10:00:00" {
		t.Errorf("second date = %q, want the ticket creation date", second.date)
	}
	if !strings.HasPrefix(second.content, "<p><strong>Casper (ghost) added a comment - 2024-03-01 10:00:00</strong></p>") {
		t.Errorf("second content = %q, want attribution header", second.content)
	}
	if !strings.Contains(second.content, "&lt;b&gt;boo&lt;/b&gt;") {
		t.Errorf("second content = %q, want escaped body", second.content)
	}
}

func TestTransformClosing(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   bool
	}{
		{name: "closed", status: "Closed", want: true},
		{name: "solved", status: "Solved", want: true},
		{name: "planned", status: "Planned", want: false},
		{name: "approval", status: "Approval", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTransformEngine(t, nil)
			iss := richIssue()
			iss.Status = tt.status

			p, err := e.transform(context.Background(), iss)
			if err != nil {
				t.Fatalf("transform: %v", err)
			}
			if got := p.closing != nil; got != tt.want {
				t.Fatalf("closing present = %v, want %v", got, tt.want)
			}
			if tt.want {
				if p.closing["status"] != p.fields["status"] {
					t.Errorf("closing status = %v, want %v", p.closing["status"], p.fields["status"])
				}
				if p.closing["solvedate"] != "2024-03-03 12:00:00" {
					t.Errorf("closing solvedate = %v, want the resolution date", p.closing["solvedate"])
				}
			}
		})
	}
}

func TestActorLabel(t *testing.T) {
	tests := []struct {
		name  string
		actor domain.Actor
		want  string
	}{
		{name: "both", actor: domain.Actor{Login: "j.smith", DisplayName: "Jane Smith"}, want: "Jane Smith (j.smith)"},
		{name: "display only", actor: domain.Actor{DisplayName: "Jane Smith"}, want: "Jane Smith"},
		{name: "login only", actor: domain.Actor{Login: "j.smith"}, want: "j.smith"},
		{name: "empty", actor: domain.Actor{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := actorLabel(tt.actor); got != tt.want {
				t.Errorf("actorLabel = %q, want %q", got, tt.want)
			}
		})
	}
}
