package services

import (
	"net/url"
	"strings"
)

const invalidLinkMessage = "Form link is invalid. It's missing key information."

// ShareLink identifies a form to respond to.
type ShareLink struct {
	FormID   string
	AuthorID string
}

// BuildShareLink renders the respondent URL for a form on top of base.
func BuildShareLink(base, formID, authorID string) string {
	q := url.Values{}
	q.Set("page", "viewer")
	q.Set("formId", formID)
	q.Set("authorId", authorID)
	q.Set("mode", "respond")
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return strings.TrimRight(base, "?") + "?" + q.Encode()
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseShareLink accepts a full link or a bare query string.
func ParseShareLink(raw string) (ShareLink, error) {
	raw = strings.TrimSpace(raw)
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ShareLink{}, NewInvalidLinkError(invalidLinkMessage)
	}
	return ShareLinkFromValues(values)
}

func ShareLinkFromValues(values url.Values) (ShareLink, error) {
	link := ShareLink{
		FormID:   strings.TrimSpace(values.Get("formId")),
		AuthorID: strings.TrimSpace(values.Get("authorId")),
	}
	if err := link.Validate(); err != nil {
		return ShareLink{}, err
	}
	return link, nil
}

func (l ShareLink) Validate() error {
	if !ValidDocID(l.FormID) || !ValidDocID(l.AuthorID) {
		return NewInvalidLinkError(invalidLinkMessage)
	}
	return nil
}
