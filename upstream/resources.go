package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*AuthUser, error) {
	var user AuthUser
	if err := c.getJSON(ctx, PathUser, accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Projects(ctx context.Context, accessToken string) ([]Project, error) {
	var projects []Project
	if err := c.getJSON(ctx, APIPrefix+"/projects", accessToken, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) Project(ctx context.Context, accessToken, id string) (*Project, error) {
	var project Project
	if err := c.getJSON(ctx, APIPrefix+"/projects/"+url.PathEscape(id), accessToken, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *Client) ProjectElements(ctx context.Context, accessToken, projectID string) (ProjectElements, error) {
	var elements ProjectElements
	if err := c.getJSON(ctx, APIPrefix+"/projects/"+url.PathEscape(projectID)+"/elements", accessToken, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

func (c *Client) TimeEntries(ctx context.Context, accessToken, projectID string) (TimeEntries, error) {
	path := APIPrefix + "/timesheets?" + url.Values{"project_id": {projectID}}.Encode()
	var entries TimeEntries
	if err := c.getJSON(ctx, path, accessToken, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) PublicProfile(ctx context.Context, username string) (*PublicProfile, error) {
	var profile PublicProfile
	if err := c.getJSON(ctx, PublicPrefix+"/profiles/"+url.PathEscape(username), "", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) PublicProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	if err := c.getJSON(ctx, PublicPrefix+"/projects/"+url.PathEscape(id), "", &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *Client) PublicProjectElements(ctx context.Context, id string) (ProjectElements, error) {
	var elements ProjectElements
	if err := c.getJSON(ctx, PublicPrefix+"/projects/"+url.PathEscape(id)+"/elements", "", &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// SubscriptionSync is the normalized billing state pushed to the backend after a Stripe event.
type SubscriptionSync struct {
	UserID           string     `json:"user_id"`
	CustomerID       string     `json:"customer_id"`
	SubscriptionID   string     `json:"subscription_id"`
	Status           string     `json:"status"`
	IsPremium        bool       `json:"is_premium"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

// SyncSubscription posts billing state to the backend, authenticated by the shared webhook secret.
func (c *Client) SyncSubscription(ctx context.Context, sync SubscriptionSync) error {
	body, err := json.Marshal(sync)
	if err != nil {
		return fmt.Errorf("[upstream SyncSubscription] encoding: %w", err)
	}
	header := http.Header{}
	header.Set("X-Webhook-Secret", c.webhookSecret)

	resp, err := c.Forward(ctx, ForwardRequest{
		Method:      http.MethodPost,
		Path:        PathSubscriptionSync,
		ContentType: "application/json",
		Body:        bytes.NewReader(body),
		Header:      header,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

// Register relays a sign-up form to the backend. The response is returned as-is so
// validation errors reach the browser untouched.
func (c *Client) Register(ctx context.Context, body io.Reader, contentType, acceptLanguage string) (*http.Response, error) {
	return c.Forward(ctx, ForwardRequest{
		Method:         http.MethodPost,
		Path:           PathRegister,
		ContentType:    contentType,
		AcceptLanguage: acceptLanguage,
		Body:           body,
	})
}
