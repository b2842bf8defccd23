package root

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/goccy/go-json"

	"github.com/drewfead/lovemovie/internal"
)

const (
	denseFormatName = "dense"
	jsonFormatName  = "json"
)

// View names select the dense template for a value.
const (
	viewList     = "list"
	viewDetail   = "detail"
	viewToggle   = "toggle"
	viewFavorite = "favorite"
	viewBrowse   = "browse"
)

type outputFormat interface {
	Name() string
	Format(w io.Writer, view string, v any) error
}

func formatByName(name string) (outputFormat, error) {
	switch strings.ToLower(name) {
	case "", denseFormatName:
		return newDenseFormat()
	case jsonFormatName:
		return jsonFormat{}, nil
	}
	return nil, fmt.Errorf("invalid --format %q (valid: dense, json)", name)
}

// favoriteState is what is-favorite prints.
type favoriteState struct {
	MovieID  int  `json:"movie_id"`
	Favorite bool `json:"favorite"`
}

// browseRow is one settled movie of browse with its favorite mark.
type browseRow struct {
	Page     int            `json:"page"`
	Movie    internal.Movie `json:"movie"`
	Favorite bool           `json:"favorite"`
}

// jsonFormat writes one JSON document per line.
type jsonFormat struct{}

func (jsonFormat) Name() string { return jsonFormatName }

func (jsonFormat) Format(w io.Writer, _ string, v any) error {
	return json.NewEncoder(w).Encode(v)
}

const denseTemplates = `
{{- define "state"}}{{if .IsLoading}}[loading]{{else if .IsError}}[error] {{errorText .Err}}{{else}}[success]{{end}}{{end}}

{{- define "movie"}}{{padID .ID}} | {{year .ReleaseDate}} | {{rating .VoteAverage}} | {{.Title}}{{end}}

{{- define "list"}}{{template "state" .}}{{if .IsSuccess}} page {{.Data.Page}}/{{.Data.TotalPages}} ({{.Data.TotalResults}} movies){{end}}
{{if .IsSuccess}}{{range .Data.Results}}  {{template "movie" .}}
{{end}}{{end}}{{end}}

{{- define "detail"}}{{template "state" .}}{{if .IsSuccess}}{{with .Data}} {{template "movie" .Movie}} | {{runtime .Runtime}} | {{genres .Genres}}{{end}}{{end}}
{{end}}

{{- define "toggle"}}{{template "state" .}}{{if .IsSuccess}} {{favoriteText .Data}}{{end}}
{{end}}

{{- define "favorite"}}{{padID .MovieID}} | {{favoriteText .Favorite}}
{{end}}

{{- define "browse"}}{{mark .Favorite}} p{{.Page}} {{template "movie" .Movie}}
{{end}}`

// denseFormat renders each value on one line (a list state adds one line per movie).
type denseFormat struct {
	tmpl *template.Template
}

func newDenseFormat() (*denseFormat, error) {
	funcMap := template.FuncMap{
		"padID": func(id int) string {
			return fmt.Sprintf("%-8d", id)
		},
		"year": func(releaseDate string) string {
			if len(releaseDate) < 4 {
				return "----"
			}
			return releaseDate[:4]
		},
		"rating": func(v float64) string {
			return fmt.Sprintf("%4.1f", v)
		},
		"runtime": func(minutes *int) string {
			if minutes == nil {
				return "-"
			}
			return fmt.Sprintf("%dh%02dm", *minutes/60, *minutes%60)
		},
		"genres": func(genres []internal.Genre) string {
			if len(genres) == 0 {
				return "-"
			}
			names := make([]string, len(genres))
			for i, g := range genres {
				names[i] = g.Name
			}
			return strings.Join(names, ", ")
		},
		"errorText": func(err *internal.Error) string {
			if err == nil {
				return "-"
			}
			if err.Kind == internal.ErrorHTTP {
				return fmt.Sprintf("%s (%s %d)", err.Message, err.Kind, err.Code)
			}
			return fmt.Sprintf("%s (%s)", err.Message, err.Kind)
		},
		"favoriteText": func(fav bool) string {
			if fav {
				return "favorite"
			}
			return "not favorite"
		},
		"mark": func(fav bool) string {
			if fav {
				return "*"
			}
			return " "
		},
	}
	tmpl, err := template.New(denseFormatName).Funcs(funcMap).Parse(denseTemplates)
	if err != nil {
		return nil, fmt.Errorf("dense template: %w", err)
	}
	return &denseFormat{tmpl: tmpl}, nil
}

func (f *denseFormat) Name() string { return denseFormatName }

func (f *denseFormat) Format(w io.Writer, view string, v any) error {
	var buf bytes.Buffer
	if err := f.tmpl.ExecuteTemplate(&buf, view, v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
