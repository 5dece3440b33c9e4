package server

import (
	"net/http"
	"time"

	"github.com/cosflow/cosflow-web/budget"
	"github.com/cosflow/cosflow-web/i18n"
	apperrors "github.com/cosflow/cosflow-web/internal/errors"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/hlog"
)

// PageData is handed to every page template.
type PageData struct {
	AppName   string
	Locale    string
	Locales   []string
	TitleKey  string
	Path      string
	LoggedIn  bool
	Error     string
	Notice    string
	User      *upstream.AuthUser
	Login     *LoginPageData
	Dashboard *DashboardPageData
	Project   *ProjectPageData
	Profile   *upstream.PublicProfile
}

type DashboardPageData struct {
	Projects []upstream.Project
}

type ProjectPageData struct {
	Project     *upstream.Project
	Elements    []ElementRow
	BudgetTotal float64
	TimeTracked time.Duration
	// Owner is set on the public view; tracked time stays private.
	Owner string
}

// ElementRow is one project element with its rolled-up cost.
type ElementRow struct {
	upstream.ProjectElement
	Subtotal float64
	Depth    int
}

func (s *Server) newPageData(r *http.Request, titleKey string) *PageData {
	return &PageData{
		AppName:  s.config.GetAppName(),
		Locale:   s.locale(r),
		Locales:  i18n.SupportedLocales,
		TitleKey: titleKey,
		Path:     r.URL.RequestURI(),
		LoggedIn: s.requestSession(r).Authenticated(),
	}
}

// HomePageHandler renders the marketing home page (GET /)
func (s *Server) HomePageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, pageHome, s.newPageData(r, "home.title"))
	}
}

// PricingPageHandler renders the plans (GET /pricing)
func (s *Server) PricingPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "pricing.title")
		data.Error = r.URL.Query().Get("error")
		if r.URL.Query().Get("checkout") == "cancelled" {
			data.Notice = i18n.T(data.Locale, "checkout.cancelled")
		}
		s.render(w, r, http.StatusOK, pagePricing, data)
	}
}

// DashboardPageHandler lists the user's projects (GET /dashboard)
func (s *Server) DashboardPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "dashboard.title")
		data.Error = r.URL.Query().Get("error")
		if r.URL.Query().Get("checkout") == "success" {
			data.Notice = i18n.T(data.Locale, "checkout.success")
		}

		var projects []upstream.Project
		_, err := s.coordinator.Do(r.Context(), w, s.requestSession(r), func(accessToken string) error {
			user, err := s.upstream.CurrentUser(r.Context(), accessToken)
			if err != nil {
				return err
			}
			data.User = user
			projects, err = s.upstream.Projects(r.Context(), accessToken)
			return err
		})
		if err != nil {
			s.renderPageError(w, r, err, data)
			return
		}
		data.LoggedIn = true
		data.Dashboard = &DashboardPageData{Projects: projects}
		s.render(w, r, http.StatusOK, pageDashboard, data)
	}
}

// ProjectPageHandler shows a project with its element tree, budget and tracked time (GET /projects/{id})
func (s *Server) ProjectPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("id")
		data := s.newPageData(r, "project.elements")

		var (
			project  *upstream.Project
			elements upstream.ProjectElements
			entries  upstream.TimeEntries
		)
		_, err := s.coordinator.Do(r.Context(), w, s.requestSession(r), func(accessToken string) error {
			var err error
			if project, err = s.upstream.Project(r.Context(), accessToken, projectID); err != nil {
				return err
			}
			if elements, err = s.upstream.ProjectElements(r.Context(), accessToken, projectID); err != nil {
				return err
			}
			entries, err = s.upstream.TimeEntries(r.Context(), accessToken, projectID)
			return err
		})
		if err != nil {
			s.renderPageError(w, r, err, data)
			return
		}

		items := elements.BudgetItems()
		data.LoggedIn = true
		data.Project = &ProjectPageData{
			Project:     project,
			Elements:    elementRows(elements, budget.Subtotals(items)),
			BudgetTotal: roundCents(budget.Total(items)),
			TimeTracked: entries.Total(),
		}
		s.render(w, r, http.StatusOK, pageProject, data)
	}
}

// elementRows orders elements depth first under their parents for display.
func elementRows(elements upstream.ProjectElements, subtotals map[int64]float64) []ElementRow {
	byID := make(map[int64]bool, len(elements))
	children := make(map[int64][]upstream.ProjectElement)
	var roots []upstream.ProjectElement
	for _, el := range elements {
		byID[el.ID] = true
	}
	for _, el := range elements {
		if el.ParentID != nil && *el.ParentID != el.ID && byID[*el.ParentID] {
			children[*el.ParentID] = append(children[*el.ParentID], el)
			continue
		}
		roots = append(roots, el)
	}

	rows := make([]ElementRow, 0, len(elements))
	visited := make(map[int64]bool, len(elements))
	var walk func(el upstream.ProjectElement, depth int)
	walk = func(el upstream.ProjectElement, depth int) {
		if visited[el.ID] {
			return
		}
		visited[el.ID] = true
		rows = append(rows, ElementRow{ProjectElement: el, Subtotal: roundCents(subtotals[el.ID]), Depth: depth})
		for _, child := range children[el.ID] {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	// elements caught in a parent cycle have no root; list them flat
	for _, el := range elements {
		walk(el, 0)
	}
	return rows
}

// ProfilePageHandler shows a public profile (GET /u/{username})
func (s *Server) ProfilePageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "profile.projects")
		profile, err := s.upstream.PublicProfile(r.Context(), r.PathValue("username"))
		if err != nil {
			s.renderPageError(w, r, err, data)
			return
		}
		data.Profile = profile
		s.render(w, r, http.StatusOK, pageProfile, data)
	}
}

// PublicProjectPageHandler shows a project shared on a public profile (GET /u/{username}/projects/{id})
func (s *Server) PublicProjectPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("id")
		data := s.newPageData(r, "project.elements")

		project, err := s.upstream.PublicProject(r.Context(), projectID)
		if err != nil {
			s.renderPageError(w, r, err, data)
			return
		}
		elements, err := s.upstream.PublicProjectElements(r.Context(), projectID)
		if err != nil {
			s.renderPageError(w, r, err, data)
			return
		}

		items := elements.BudgetItems()
		data.Project = &ProjectPageData{
			Project:     project,
			Elements:    elementRows(elements, budget.Subtotals(items)),
			BudgetTotal: roundCents(budget.Total(items)),
			Owner:       r.PathValue("username"),
		}
		s.render(w, r, http.StatusOK, pageProject, data)
	}
}

// renderPageError sends lost sessions to /login and renders the error page for everything else.
func (s *Server) renderPageError(w http.ResponseWriter, r *http.Request, err error, data *PageData) {
	status := http.StatusBadGateway
	data.TitleKey = "error.title"
	data.Error = i18n.T(data.Locale, "error.generic")

	switch {
	case apperrors.Is(err, apperrors.ErrNotAuthenticated), apperrors.Is(err, apperrors.ErrRefreshFailed), upstream.IsUnauthorized(err):
		s.redirectToLogin(w, r)
		return
	case apperrors.Is(err, apperrors.ErrNotFound), apperrors.Is(err, apperrors.ErrForbidden):
		status = http.StatusNotFound
		data.Error = i18n.T(data.Locale, "error.not_found")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("page data fetch failed")
	}
	s.render(w, r, status, pageError, data)
}
