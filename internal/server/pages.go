package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/brpsystems/applinks/internal/appinfo"
	"github.com/brpsystems/applinks/internal/metrics"
	"github.com/brpsystems/applinks/internal/useragent"
	"github.com/brpsystems/applinks/internal/visits"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type androidPageData struct {
	ProviderCode string
	PlayStoreURL string
}

type iosPageData struct {
	ProviderCode   string
	AppStoreURL    string
	ClipboardValue string
	App            *appinfo.AppInfo
}

type landingPageData struct {
	ProviderCode string
	App          *appinfo.AppInfo
}

// handleProviderPage is the platform decision layer: Android gets the
// Play-Store page, iOS the install-assist page, everything else the generic
// landing page.
func (s *Server) handleProviderPage(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	platform := useragent.Classify(r.UserAgent())
	ip := s.clientIP(r)

	s.visits.Add(visits.Visit{
		IP:       ip,
		Path:     r.URL.Path,
		Code:     code,
		Platform: platform.String(),
		Time:     time.Now(),
	})
	metrics.VisitsRecorded.WithLabelValues(platform.String()).Inc()

	if platform == useragent.Android {
		s.renderPage(w, "android.html", androidPageData{
			ProviderCode: code,
			PlayStoreURL: s.playStoreLink(code),
		})
		return
	}

	// iOS and generic pages carry app branding. A failed or empty lookup is
	// "no info": the provider code names nothing we can present.
	info := s.apps.Lookup(r.Context(), code)
	if info == nil {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}

	if platform == useragent.IOS {
		s.renderPage(w, "ios.html", iosPageData{
			ProviderCode:   code,
			AppStoreURL:    s.cfg.AppStoreURL,
			ClipboardValue: s.cfg.ClipboardPrefix + code,
			App:            info,
		})
		return
	}

	s.renderPage(w, "landing.html", landingPageData{ProviderCode: code, App: info})
}

// handleLinkRedirect unwraps ?link=<url> requests from older shared links and
// bounces them to the provider page named by the embedded query parameters.
func (s *Server) handleLinkRedirect(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	if link == "" {
		http.Error(w, "Invalid link", http.StatusBadRequest)
		return
	}

	u, err := url.Parse(link)
	if err != nil {
		http.Error(w, "Invalid link", http.StatusBadRequest)
		return
	}
	code := u.Query().Get("providerCode")
	if code == "" {
		code = u.Query().Get("facility")
	}
	if code == "" {
		http.Error(w, "Invalid link", http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, "/providers/"+url.PathEscape(code), http.StatusFound)
}

// playStoreLink appends the install-referrer campaign parameter so the code
// survives the Play-Store install flow.
func (s *Server) playStoreLink(code string) string {
	referrer := "utm_source=deeplink&utm_medium=link&utm_campaign=" + code
	sep := "?"
	if strings.Contains(s.cfg.PlayStoreURL, "?") {
		sep = "&"
	}
	return s.cfg.PlayStoreURL + sep + "referrer=" + url.QueryEscape(referrer)
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("page render failed")
		writeInternalError(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
