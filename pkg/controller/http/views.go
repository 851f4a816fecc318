package http

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/safe"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	pageHome     = "home.html"
	pageLogin    = "login.html"
	pageRegister = "register.html"
	pageProfile  = "profile.html"
	pageLoading  = "loading.html"
)

var pageNames = []string{pageHome, pageLogin, pageRegister, pageProfile, pageLoading}

var templateFuncs = template.FuncMap{
	"humanizeTime": humanize.Time,
	"initial": func(s string) string {
		s = strings.TrimSpace(s)
		if s == "" {
			return "?"
		}
		return strings.ToUpper(string([]rune(s)[0]))
	},
}

// pageData is everything a page template can refer to.
type pageData struct {
	Title string
	Path  string
	State auth.State
	Flash []flashMessage

	// form feedback
	Error       string
	Next        string
	Email       string
	Name        string
	DisplayName string
	PhotoURL    string

	Providers      []auth.ProviderKind
	RefreshSeconds int
}

type views struct {
	pages map[string]*template.Template
}

func newViews() (*views, error) {
	layout, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templatesFS, "templates/layout.html")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse layout template")
	}

	v := &views{pages: make(map[string]*template.Template)}
	for _, name := range pageNames {
		base, err := layout.Clone()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to clone layout template")
		}
		page, err := base.ParseFS(templatesFS, "templates/"+name)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse page template", goerr.V("page", name))
		}
		v.pages[name] = page
	}
	return v, nil
}

// render writes a full page. Templates are executed into a buffer first so
// that a template error can still produce a proper error response.
func (v *views) render(w http.ResponseWriter, r *http.Request, status int, name string, data *pageData) {
	tmpl, ok := v.pages[name]
	if !ok {
		handleError(w, r, goerr.New("unknown page", goerr.V("page", name), goerr.T(errs.TagInternal)))
		return
	}

	data.Path = r.URL.Path
	data.Providers = auth.ProviderKinds
	if data.State == (auth.State{}) {
		data.State = auth.StateFromContext(r.Context())
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		handleError(w, r, goerr.Wrap(err, "failed to render page", goerr.V("page", name), goerr.T(errs.TagInternal)))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	safe.Write(r.Context(), w, buf.Bytes())
}
