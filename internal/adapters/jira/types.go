package jira

import (
	"encoding/json"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// Wire shapes for the source REST API. Only the fields the migration reads
// are declared; everything else in the payload is ignored.

type searchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []issueJSON `json:"issues"`
}

type issueJSON struct {
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

type fieldsJSON struct {
	Summary        string           `json:"summary"`
	Description    string           `json:"description"`
	Status         *namedJSON       `json:"status"`
	IssueType      *namedJSON       `json:"issuetype"`
	Priority       *namedJSON       `json:"priority"`
	Security       *namedJSON       `json:"security"`
	Reporter       *userJSON        `json:"reporter"`
	Assignee       *userJSON        `json:"assignee"`
	Created        string           `json:"created"`
	Updated        string           `json:"updated"`
	ResolutionDate string           `json:"resolutiondate"`
	Comment        *commentListJSON `json:"comment"`
	Attachments    []attachmentJSON `json:"attachment"`
}

type namedJSON struct {
	Name string `json:"name"`
}

type userJSON struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

func (u *userJSON) toActor() domain.Actor {
	if u == nil {
		return domain.Actor{}
	}
	login := u.Name
	if login == "" {
		login = u.Key
	}
	return domain.Actor{Login: login, DisplayName: u.DisplayName}
}

type commentListJSON struct {
	Comments []commentJSON `json:"comments"`
}

type commentJSON struct {
	Author  *userJSON `json:"author"`
	Body    string    `json:"body"`
	Created string    `json:"created"`
}

type attachmentJSON struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mimeType"`
	Content  string    `json:"content"`
	Author   *userJSON `json:"author"`
	Created  string    `json:"created"`
}

type projectStatusesJSON struct {
	Name     string      `json:"name"`
	Statuses []namedJSON `json:"statuses"`
}

type securityLevelsJSON struct {
	Levels []namedJSON `json:"levels"`
}

// toDomain converts one wire issue into the shape the engine consumes,
// pulling the configured custom fields out of the raw field map.
func (c *Client) toDomain(ij issueJSON) (domain.Issue, error) {
	var f fieldsJSON
	if err := json.Unmarshal(ij.Fields, &f); err != nil {
		return domain.Issue{}, err
	}

	issue := domain.Issue{
		Key:         ij.Key,
		Summary:     f.Summary,
		Description: f.Description,
		Reporter:    f.Reporter.toActor(),
		Assignee:    f.Assignee.toActor(),
		Created:     f.Created,
		Updated:     f.Updated,
		Resolved:    f.ResolutionDate,
	}
	if f.Status != nil {
		issue.Status = f.Status.Name
	}
	if f.IssueType != nil {
		issue.Type = f.IssueType.Name
	}
	if f.Priority != nil {
		issue.Priority = f.Priority.Name
	}
	if f.Security != nil {
		issue.SecurityLevel = f.Security.Name
	}
	if f.Comment != nil {
		issue.Comments = make([]domain.Comment, 0, len(f.Comment.Comments))
		for _, cm := range f.Comment.Comments {
			issue.Comments = append(issue.Comments, domain.Comment{
				Author:  cm.Author.toActor(),
				Body:    cm.Body,
				Created: cm.Created,
			})
		}
	}
	for _, a := range f.Attachments {
		issue.Attachments = append(issue.Attachments, domain.Attachment{
			Filename:   a.Filename,
			MimeType:   a.MimeType,
			Size:       a.Size,
			ContentURL: a.Content,
			Author:     a.Author.toActor(),
			Created:    a.Created,
		})
	}

	if c.requestTypeField == "" && c.classificationField == "" && c.participantsField == "" {
		return issue, nil
	}

	var custom map[string]json.RawMessage
	if err := json.Unmarshal(ij.Fields, &custom); err != nil {
		return domain.Issue{}, err
	}
	issue.RequestType = customString(custom, c.requestTypeField)
	issue.Classification = customStrings(custom, c.classificationField)
	issue.Participants = customUsers(custom, c.participantsField)
	return issue, nil
}

// customString extracts a scalar custom field: either a bare string or an
// object carrying value/name.
func customString(fields map[string]json.RawMessage, id string) string {
	raw, ok := fields[id]
	if id == "" || !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Value string `json:"value"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Value != "" {
			return obj.Value
		}
		return obj.Name
	}
	return ""
}

// customStrings extracts a multi-valued custom field: an array of strings
// or of value/name objects, or a single scalar.
func customStrings(fields map[string]json.RawMessage, id string) []string {
	raw, ok := fields[id]
	if id == "" || !ok {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := customString(fields, id); s != "" {
			return []string{s}
		}
		return nil
	}

	var out []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Value string `json:"value"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			if obj.Value != "" {
				out = append(out, obj.Value)
			} else if obj.Name != "" {
				out = append(out, obj.Name)
			}
		}
	}
	return out
}

// customUsers extracts a user-picker custom field.
func customUsers(fields map[string]json.RawMessage, id string) []domain.Actor {
	raw, ok := fields[id]
	if id == "" || !ok {
		return nil
	}

	var users []userJSON
	if err := json.Unmarshal(raw, &users); err != nil {
		var one userJSON
		if err := json.Unmarshal(raw, &one); err == nil && (one.Name != "" || one.Key != "") {
			return []domain.Actor{one.toActor()}
		}
		return nil
	}

	out := make([]domain.Actor, 0, len(users))
	for _, u := range users {
		if a := u.toActor(); !a.Empty() {
			out = append(out, a)
		}
	}
	return out
}
