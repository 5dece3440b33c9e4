package upstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cosflow/cosflow-web/budget"
	"github.com/cosflow/cosflow-web/internal/utils"
)

// AuthUser is the denormalized account returned by /api/user.
type AuthUser struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	EmailVerifiedAt  *time.Time `json:"email_verified_at,omitempty"`
	IsPremium        bool       `json:"is_premium"`
	IsAdmin          bool       `json:"is_admin"`
	StripeCustomerID string     `json:"stripe_customer_id,omitempty"`
	Profile          *Profile   `json:"profile,omitempty"`
}

func (u AuthUser) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// DisplayName prefers the profile's display name over the account name.
func (u AuthUser) DisplayName() string {
	if u.Profile != nil {
		return utils.FirstNonEmpty(u.Profile.DisplayName, u.Profile.Username, u.Name)
	}
	return u.Name
}

type Profile struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Country     string `json:"country,omitempty"`
	IsPublic    bool   `json:"is_public"`
}

type PublicProfile struct {
	Profile
	Projects []Project `json:"projects"`
}

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Character   string    `json:"character,omitempty"`
	Series      string    `json:"series,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Deadline    string    `json:"deadline,omitempty"`
	Budget      Amount    `json:"budget"`
	IsPublic    bool      `json:"is_public"`
	CoverImage  *Image    `json:"cover_image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProjectElement struct {
	ID         int64  `json:"id"`
	ProjectID  int64  `json:"project_id"`
	ParentID   *int64 `json:"parent_id"`
	CategoryID *int64 `json:"category_id,omitempty"`
	Name       string `json:"name"`
	Kind       string `json:"type,omitempty"` // make or buy
	Status     string `json:"status,omitempty"`
	Price      Amount `json:"price"`
	Notes      string `json:"notes,omitempty"`
}

type ProjectElements []ProjectElement

// BudgetItems projects the elements onto the rollup input.
func (els ProjectElements) BudgetItems() []budget.Item {
	items := make([]budget.Item, 0, len(els))
	for _, el := range els {
		items = append(items, budget.Item{ID: el.ID, ParentID: el.ParentID, Price: el.Price.Float64()})
	}
	return items
}

type TimeEntry struct {
	ID              int64      `json:"id"`
	ProjectID       int64      `json:"project_id"`
	ElementID       *int64     `json:"project_element_id,omitempty"`
	Description     string     `json:"description,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
}

// Duration trusts the recorded minutes and falls back to the start/end span.
// A running entry (no end) counts as zero.
func (e TimeEntry) Duration() time.Duration {
	if e.DurationMinutes > 0 {
		return time.Duration(e.DurationMinutes) * time.Minute
	}
	if e.EndedAt != nil && e.EndedAt.After(e.StartedAt) {
		return e.EndedAt.Sub(e.StartedAt)
	}
	return 0
}

type TimeEntries []TimeEntry

func (entries TimeEntries) Total() time.Duration {
	var total time.Duration
	for _, e := range entries {
		total += e.Duration()
	}
	return total
}

type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Image struct {
	ID           int64  `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Amount accepts both JSON numbers and Laravel decimal strings ("12.50").
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*a = Amount(f)
	return nil
}

func (a Amount) Float64() float64 {
	return float64(a)
}
