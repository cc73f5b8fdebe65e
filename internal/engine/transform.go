package engine

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// payload is one source record transformed into target-shaped pieces, ready
// to apply in order: create the ticket, link inventory items, migrate
// attachments, add followups, then re-assert a terminal status.
type payload struct {
	key    string
	fields map[string]any

	items       []itemLink
	attachments []domain.Attachment
	followups   []followup

	// closing carries the status re-assertion applied after followups on
	// solved and closed tickets, nil for tickets that stay open.
	closing map[string]any
}

// itemLink names one inventory item to associate with the created ticket.
type itemLink struct {
	itemType string
	id       int
}

// followup is one comment ready for the target. An authorID of 0 leaves the
// followup attributed to the session user.
type followup struct {
	authorID int
	content  string
	date     string
}

// transform shapes one source record into its target payload. The only
// fatal outcome is an unparseable creation date; every other oddity
// degrades to a default or a dropped field, with a log line.
func (e *Engine) transform(ctx context.Context, iss domain.Issue) (*payload, error) {
	log := e.log.With().Str("key", iss.Key).Logger()

	created, err := e.dates.Convert(iss.Created)
	if err != nil {
		return nil, fmt.Errorf("created date: %w", err)
	}
	updated := e.convertLoose(log, "updated", iss.Updated)
	resolved := e.convertLoose(log, "resolved", iss.Resolved)

	statusID, ok := e.tables.statusFor(iss.Status)
	if !ok && iss.Status != "" {
		log.Debug().Str("status", iss.Status).Int("id", statusID).Msg("status unmapped, using default")
	}
	typeID, ok := e.tables.typeFor(iss.Type)
	if !ok && iss.Type != "" {
		log.Debug().Str("type", iss.Type).Int("id", typeID).Msg("type unmapped, using default")
	}
	pr, ok := e.tables.priorityFor(iss.Priority)
	if !ok && iss.Priority != "" {
		log.Debug().Str("priority", iss.Priority).Msg("priority unmapped, using default")
	}

	summary := iss.Summary
	if summary == "" {
		summary = "[No Title]"
	}

	var observers []int
	var participants []string
	for _, p := range iss.Participants {
		if p.Empty() {
			continue
		}
		participants = append(participants, actorLabel(p))
		if id, fellBack := e.resolver.User(p); !fellBack {
			observers = append(observers, id)
		}
	}

	fields := map[string]any{
		"name":    summary,
		"content": e.renderBody(iss, participants, created, updated, resolved),
		"status":  statusID,
		"type":    typeID,
		"urgency": pr.Urgency,
		"impact":  pr.Impact,
	}
	if created != "" {
		fields["date"] = created
	}
	if updated != "" {
		fields["date_mod"] = updated
	}
	if resolved != "" {
		fields["solvedate"] = resolved
		fields["closedate"] = resolved
	}
	if id, _ := e.resolver.User(iss.Reporter); id > 0 {
		fields["_users_id_requester"] = id
	}
	if !iss.Assignee.Empty() {
		if id, _ := e.resolver.User(iss.Assignee); id > 0 {
			fields["_users_id_assign"] = id
		}
	}
	if len(observers) > 0 {
		fields["_users_id_observer"] = observers
	}

	var locationName string
	for _, c := range iss.Classification {
		if name, ok := e.tables.classLocation[strings.ToLower(c)]; ok {
			locationName = name
		}
	}
	if locationName != "" {
		if id, _ := e.resolver.Location(locationName); id > 0 {
			fields["locations_id"] = id
		}
	}

	if s := iss.SecurityLevel; s != "" && s != "None" {
		if id, _ := e.resolver.Category(s); id > 0 {
			fields["itilcategories_id"] = id
		}
	}

	var closing map[string]any
	if e.tables.terminal(statusID) {
		closing = map[string]any{"status": statusID}
		if resolved != "" {
			closing["solvedate"] = resolved
			closing["closedate"] = resolved
		}
	}

	return &payload{
		key:         iss.Key,
		fields:      fields,
		items:       e.resolveItems(ctx, log, iss.Classification),
		attachments: iss.Attachments,
		followups:   e.buildFollowups(log, iss.Comments, created),
		closing:     closing,
	}, nil
}

// resolveItems maps classification values to inventory items and resolves
// each one on the target. An item that fails to resolve is dropped with a
// warning; it never sinks the record.
func (e *Engine) resolveItems(ctx context.Context, log zerolog.Logger, classification []string) []itemLink {
	var items []itemLink
	for _, c := range classification {
		ref, ok := e.tables.classItem[strings.ToLower(c)]
		if !ok {
			continue
		}
		itemType := ref.Type
		if itemType == "Business_Service" {
			// older configuration files write this type with an underscore
			itemType = "BusinessService"
		}
		id, err := e.target.FindItemID(ctx, itemType, ref.Name)
		if err != nil {
			log.Warn().Err(err).Str("itemtype", itemType).Str("item", ref.Name).Msg("resolve inventory item")
			continue
		}
		if id == 0 {
			log.Warn().Str("itemtype", itemType).Str("item", ref.Name).Msg("inventory item not found")
			continue
		}
		items = append(items, itemLink{itemType: itemType, id: id})
	}
	return items
}

// buildFollowups renders the record's comments for the target, oldest
// first. A comment whose date cannot be parsed is dated with the ticket's
// creation timestamp rather than dropped.
func (e *Engine) buildFollowups(log zerolog.Logger, comments []domain.Comment, created string) []followup {
	var fups []followup
	for _, cm := range comments {
		date := e.convertLoose(log, "comment date", cm.Created)
		if date == "" {
			date = created
		}
		authorID, fellBack := e.resolver.User(cm.Author)
		author := actorLabel(cm.Author)
		if author == "" {
			author = "Unknown"
		}
		fups = append(fups, followup{
			authorID: authorID,
			content:  renderFollowup(author, date, cm.Body, fellBack),
			date:     date,
		})
	}
	return fups
}

// renderBody builds the ticket description from the record's metadata and
// text. Timestamps are shown in the target's converted form.
func (e *Engine) renderBody(iss domain.Issue, participants []string, created, updated, resolved string) string {
	rows := []bodyRow{
		{"Imported From", sourceLink(e.cfg.Source.URL, iss.Key)},
		{"Type", html.EscapeString(iss.Type)},
		{"Priority", html.EscapeString(iss.Priority)},
		{"Reporter", html.EscapeString(actorLabel(iss.Reporter))},
		{"Assignee", html.EscapeString(actorLabel(iss.Assignee))},
		{"Participants", html.EscapeString(strings.Join(participants, ", "))},
		{"Request Type", html.EscapeString(iss.RequestType)},
		{"Classification", html.EscapeString(strings.Join(iss.Classification, ", "))},
		{"Security Level", html.EscapeString(iss.SecurityLevel)},
		{"Created", html.EscapeString(created)},
		{"Updated", html.EscapeString(updated)},
		{"Resolved", html.EscapeString(resolved)},
	}
	return renderTicketBody(rows, iss.Description)
}

// convertLoose converts an optional source timestamp, trading a warning for
// an empty value when it cannot be parsed.
func (e *Engine) convertLoose(log zerolog.Logger, field, value string) string {
	s, err := e.dates.Convert(value)
	if err != nil {
		log.Warn().Err(err).Str("field", field).Msg("drop unparseable timestamp")
		return ""
	}
	return s
}

// actorLabel formats an actor for display, "Jane Smith (j.smith)" when both
// parts are known.
func actorLabel(a domain.Actor) string {
	switch {
	case a.DisplayName != "" && a.Login != "":
		return fmt.Sprintf("%s (%s)", a.DisplayName, a.Login)
	case a.DisplayName != "":
		return a.DisplayName
	default:
		return a.Login
	}
}
