package http

import (
	"github.com/atinyakov/GophFill/internal/models"
	"github.com/atinyakov/GophFill/internal/search"
)

type resultView struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Account    string `json:"account,omitempty"`
	Breadcrumb string `json:"breadcrumb,omitempty"`
}

type deliveryView struct {
	Generation uint64       `json:"generation"`
	Query      string       `json:"query"`
	Strict     bool         `json:"strict"`
	Pending    bool         `json:"pending,omitempty"`
	Empty      bool         `json:"empty"`
	Error      string       `json:"error,omitempty"`
	Results    []resultView `json:"results"`
}

func viewOf(d search.Delivery) deliveryView {
	v := deliveryView{
		Generation: d.Generation,
		Query:      d.Query.Text,
		Strict:     d.Query.Filter == models.StrictDomain,
		Empty:      d.Empty(),
		Results:    make([]resultView, 0, len(d.Results)),
	}
	if d.Err != nil {
		v.Error = d.Err.Error()
	}
	for _, r := range d.Results {
		rv := resultView{Path: r.Entry.RelPath, Title: r.Label.Title(), Breadcrumb: r.Label.Breadcrumb()}
		rv.Subtitle, _ = r.Label.Subtitle()
		rv.Identifier, _ = r.Label.Identifier()
		rv.Account, _ = r.Label.Account()
		v.Results = append(v.Results, rv)
	}
	return v
}

func pendingView(q models.SearchQuery) deliveryView {
	return deliveryView{
		Query:   q.Text,
		Strict:  q.Filter == models.StrictDomain,
		Pending: true,
		Results: []resultView{},
	}
}
