package game

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"QQFarmBot/manager"
	"QQFarmBot/models"

	"github.com/google/uuid"
	"rsc.io/qr"
)

// Provider talks to the external farm login service over HTTP and opens
// live game connections over websocket. It implements manager.GameProvider.
type Provider struct {
	loginURL  string
	serverURL string
	deviceID  string // stable per-process device identity sent on every login
	client    *http.Client
}

func NewProvider(loginURL, serverURL string) *Provider {
	return &Provider{
		loginURL:  loginURL,
		serverURL: serverURL,
		deviceID:  uuid.NewString(),
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type beginLoginResponse struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

type pollLoginResponse struct {
	Status     string `json:"status"`
	Credential string `json:"credential"`
	Platform   string `json:"platform"`
}

// BeginLogin requests a QR login ticket and renders the scannable code.
func (p *Provider) BeginLogin(ctx context.Context, uin, platform string) (*manager.LoginTicket, error) {
	body, _ := json.Marshal(map[string]string{"uin": uin, "platform": platform, "device": p.deviceID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.loginURL+"/qr/create", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qr create request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qr create: unexpected status %d", resp.StatusCode)
	}

	var out beginLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("qr create response: %w", err)
	}

	code, err := qr.Encode(out.URL, qr.M)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}

	expiresIn := out.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 120
	}
	return &manager.LoginTicket{
		Token:     out.Token,
		URL:       out.URL,
		QRCodePNG: code.PNG(),
		ExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// PollLogin asks the login service for the current state of a QR ticket.
func (p *Provider) PollLogin(ctx context.Context, uin, token string) (*manager.LoginPoll, error) {
	url := fmt.Sprintf("%s/qr/poll?uin=%s&token=%s", p.loginURL, uin, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qr poll request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qr poll: unexpected status %d", resp.StatusCode)
	}

	var out pollLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("qr poll response: %w", err)
	}

	poll := &manager.LoginPoll{}
	switch out.Status {
	case "pending":
		poll.Status = models.QRPending
	case "scanned":
		poll.Status = models.QRScanned
	case "confirmed":
		poll.Status = models.QRConfirmed
		poll.Credentials = &manager.Credentials{
			UIN:      uin,
			Token:    out.Credential,
			Platform: out.Platform,
		}
	case "expired":
		poll.Status = models.QRExpired
	default:
		return nil, fmt.Errorf("qr poll: unknown status %q", out.Status)
	}
	return poll, nil
}
