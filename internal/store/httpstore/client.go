// Package httpstore talks to an external appointment service over HTTP and
// normalizes whatever record shape it returns.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
)

var _ appointment.Store = (*Client)(nil)

// ErrRemote wraps unexpected responses from the remote service.
var ErrRemote = errors.New("remote store error")

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client. token is used when the request context carries no
// caller credential.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote store url %q", baseURL)
	}
	c := &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ping checks that the remote answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) ListServices(ctx context.Context) ([]appointment.Service, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/services", nil, nil, &raw); err != nil {
		return nil, err
	}
	records, err := unwrapList(raw, "services", "servicios")
	if err != nil {
		return nil, err
	}
	out := make([]appointment.Service, 0, len(records))
	for _, r := range records {
		svc, ok := normalizeService(r)
		if !ok {
			c.log.Warn().Interface("record", r).Msg("skipping service without id")
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

func (c *Client) ListAppointments(ctx context.Context, scope appointment.Scope) ([]appointment.Appointment, error) {
	q := url.Values{}
	if scope.All {
		q.Set("scope", "all")
	} else {
		q.Set("scope", "mine")
		q.Set("email", scope.PatientEmail)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/appointments", q, nil, &raw); err != nil {
		return nil, err
	}
	records, err := unwrapList(raw, "appointments", "turnos", "data")
	if err != nil {
		return nil, err
	}

	out := make([]appointment.Appointment, 0, len(records))
	for _, r := range records {
		a, err := appointment.Normalize(r)
		if err != nil {
			c.log.Warn().Err(err).Msg("skipping unnormalizable record")
			continue
		}
		if scope.Includes(a) {
			out = append(out, a)
		}
	}
	appointment.SortChronological(out)
	return out, nil
}

func (c *Client) GetAppointment(ctx context.Context, id string) (*appointment.Appointment, error) {
	return c.fetchOne(ctx, http.MethodGet, "/appointments/"+url.PathEscape(id), nil)
}

func (c *Client) CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
	body := map[string]any{
		"location":      req.LocationID,
		"service_id":    req.ServiceID,
		"date":          req.Date.Format("2006-01-02"),
		"time":          fmt.Sprintf("%02d:%02d", req.StartMinute/60, req.StartMinute%60),
		"duration":      req.Duration,
		"status":        string(req.Status),
		"patient_name":  req.Patient.Name,
		"patient_email": req.Patient.Email,
		"patient_phone": req.Patient.Phone,
		"notes":         req.Notes,
	}
	if req.Supersedes != "" {
		body["supersedes"] = req.Supersedes
	}
	return c.fetchOne(ctx, http.MethodPost, "/appointments", body)
}

// CancelAppointment sends replaced_by along with the reason. Remotes that
// ignore it leave the record cancelled rather than rescheduled.
func (c *Client) CancelAppointment(ctx context.Context, req appointment.CancelRequest) (*appointment.Appointment, error) {
	body := map[string]any{"reason": req.Reason}
	if req.ReplacedBy != "" {
		body["replaced_by"] = req.ReplacedBy
	}
	return c.fetchOne(ctx, http.MethodPost, "/appointments/"+url.PathEscape(req.ID)+"/cancel", body)
}

func (c *Client) PatchAppointment(ctx context.Context, id string, patch appointment.Patch) (*appointment.Appointment, error) {
	body := map[string]any{}
	if patch.Date != nil {
		body["date"] = patch.Date.Format("2006-01-02")
	}
	if patch.StartMinute != nil {
		body["time"] = fmt.Sprintf("%02d:%02d", *patch.StartMinute/60, *patch.StartMinute%60)
	}
	if patch.Status != nil {
		body["status"] = string(*patch.Status)
	}
	return c.fetchOne(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(id), body)
}

func (c *Client) fetchOne(ctx context.Context, method, path string, body any) (*appointment.Appointment, error) {
	var raw json.RawMessage
	if err := c.do(ctx, method, path, nil, body, &raw); err != nil {
		return nil, err
	}
	rec, err := unwrapOne(raw, "appointment", "turno", "data")
	if err != nil {
		return nil, err
	}
	a, err := appointment.Normalize(rec)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.credential(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("remote store call")

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrRemote, err)
	}
	return nil
}

func (c *Client) credential(ctx context.Context) string {
	if tok := auth.CredentialFromContext(ctx); tok != "" {
		return tok
	}
	return c.token
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch code {
	case http.StatusUnauthorized:
		return appointment.ErrUnauthenticated
	case http.StatusForbidden:
		return appointment.ErrUnauthorized
	case http.StatusNotFound:
		return appointment.ErrAppointmentNotFound
	case http.StatusConflict:
		if strings.Contains(strings.ToLower(msg), "terminal") || strings.Contains(strings.ToLower(msg), "closed") {
			return fmt.Errorf("%w: %s", appointment.ErrAlreadyTerminal, msg)
		}
		return fmt.Errorf("%w: %s", appointment.ErrSlotUnavailable, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", appointment.ErrInvalidSlot, msg)
	}
	return fmt.Errorf("%w: status %d: %s", ErrRemote, code, msg)
}
