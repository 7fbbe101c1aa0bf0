package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nhle/notification-sync/internal/model"
)

// Ack is the acknowledgement returned by mutation endpoints.
type Ack struct {
	Message string
}

// userBody is the request body shared by the read-state mutations.
type userBody struct {
	UserID string `json:"userId"`
}

// FetchAll returns every notification addressed to userID, in the order the
// server returns them (newest first).
func (c *Client) FetchAll(ctx context.Context, userID string) ([]model.Notification, error) {
	var records []model.Notification
	path := "/notifications/user/" + url.PathEscape(userID)
	if _, err := c.do(ctx, "fetch notifications", http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// MarkRead marks a single notification as read on the server.
func (c *Client) MarkRead(ctx context.Context, id, userID string) (Ack, error) {
	path := "/notifications/read/" + url.PathEscape(id)
	msg, err := c.do(ctx, "mark read", http.MethodPatch, path, userBody{UserID: userID}, nil)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Message: msg}, nil
}

// MarkAllRead marks every notification of userID as read on the server.
func (c *Client) MarkAllRead(ctx context.Context, userID string) (Ack, error) {
	msg, err := c.do(ctx, "mark all read", http.MethodPatch, "/notifications/read-all", userBody{UserID: userID}, nil)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Message: msg}, nil
}

// Audience selects who receives a sent notification.
type Audience string

const (
	AudienceDevelopers Audience = "developers"
	AudienceManagers   Audience = "managers"
	AudienceAdmins     Audience = "admin"
	AudienceSpecific   Audience = "specific"
)

// Role names used by the backend for role-wide delivery.
const (
	RoleAdmin          = "Admin"
	RoleDeveloper      = "Developer"
	RoleProjectManager = "ProjectManager"
)

// SendRequest is the body of POST /notifications/send. Exactly one of Role,
// Email and UserID selects the recipients.
type SendRequest struct {
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	Kind     model.Kind `json:"type"`
	SenderID string     `json:"senderId"`
	Meta     model.Meta `json:"meta"`

	Role   string `json:"role,omitempty"`
	Email  string `json:"email,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// SetAudience fills the recipient selector of req. Email is only used for
// AudienceSpecific.
func (r *SendRequest) SetAudience(a Audience, email string) error {
	r.Role, r.Email, r.UserID = "", "", ""
	switch a {
	case AudienceDevelopers:
		r.Role = RoleDeveloper
	case AudienceManagers:
		r.Role = RoleProjectManager
	case AudienceAdmins:
		r.Role = RoleAdmin
	case AudienceSpecific:
		email = strings.TrimSpace(email)
		if email == "" {
			return fmt.Errorf("email is required for a specific user")
		}
		r.Email = email
	default:
		return fmt.Errorf("unknown audience %q", a)
	}
	return nil
}

// Send creates a notification for the selected recipients. The server pushes
// it to recipients that are online.
func (c *Client) Send(ctx context.Context, req SendRequest) (Ack, error) {
	if req.Meta == nil {
		req.Meta = model.Meta{}
	}
	msg, err := c.do(ctx, "send notification", http.MethodPost, "/notifications/send", req, nil)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Message: msg}, nil
}
