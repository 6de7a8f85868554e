package http

import (
	"time"

	"tally/internal/core"
	"tally/internal/view"
)

type draftPayload struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
	Quantity string `json:"quantity"`
}

func (p draftPayload) draft() core.RecordDraft {
	return core.RecordDraft{
		Name:     sanitizeInput(p.Name),
		Price:    sanitizeInput(p.Price),
		Category: sanitizeInput(p.Category),
		Quantity: sanitizeInput(p.Quantity),
	}
}

type recordResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Category  string `json:"category"`
	Value     string `json:"value"`
	CreatedAt string `json:"created_at,omitempty"`
}

type bucketResponse struct {
	Label        string           `json:"label"`
	Total        string           `json:"total"`
	TotalRecords int              `json:"total_records"`
	Records      []recordResponse `json:"records"`
}

type viewResponse struct {
	Version         uint64           `json:"version"`
	UserID          string           `json:"user_id,omitempty"`
	SignedIn        bool             `json:"signed_in"`
	Mode            string           `json:"mode"`
	Filter          string           `json:"filter"`
	HeaderTotal     string           `json:"header_total"`
	HeaderCaption   string           `json:"header_caption"`
	Buckets         []bucketResponse `json:"buckets"`
	Categories      []string         `json:"categories"`
	Draft           draftPayload     `json:"draft"`
	ShowSuggestions bool             `json:"show_suggestions"`
	Suggestions     []string         `json:"suggestions"`
	DidYouMean      string           `json:"did_you_mean,omitempty"`
	StreamError     string           `json:"stream_error,omitempty"`
}

func newRecordResponse(r core.ExpenseRecord) recordResponse {
	out := recordResponse{
		ID:        r.ID,
		Name:      r.Name,
		UnitPrice: core.FormatAmount(r.UnitPrice),
		Quantity:  r.Quantity,
		Category:  r.Category,
		Value:     core.FormatAmount(r.Value()),
		CreatedAt: r.RawCreatedAt,
	}
	if r.HasTimestamp() {
		out.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	return out
}

// newViewResponse lists only the records visible under the filter; bucket
// totals already follow it.
func newViewResponse(s view.Snapshot) viewResponse {
	out := viewResponse{
		Version:         s.Version,
		UserID:          s.UserID,
		SignedIn:        s.SignedIn,
		Mode:            s.Mode.String(),
		Filter:          string(s.Filter),
		HeaderTotal:     core.FormatAmount(s.HeaderTotal),
		HeaderCaption:   s.HeaderCaption,
		Buckets:         make([]bucketResponse, 0, len(s.Buckets)),
		Categories:      nonNil(s.Categories),
		ShowSuggestions: s.ShowSuggestions,
		Suggestions:     nonNil(s.Suggestions),
		DidYouMean:      s.DidYouMean,
		StreamError:     s.StreamError,
		Draft: draftPayload{
			Name:     s.Draft.Name,
			Price:    s.Draft.Price,
			Category: s.Draft.Category,
			Quantity: s.Draft.Quantity,
		},
	}
	for _, b := range s.Buckets {
		br := bucketResponse{
			Label:        b.Label,
			Total:        core.FormatAmount(b.Total),
			TotalRecords: len(b.Records),
			Records:      make([]recordResponse, 0, len(b.Visible)),
		}
		for _, r := range b.Visible {
			br.Records = append(br.Records, newRecordResponse(r))
		}
		out.Buckets = append(out.Buckets, br)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
