package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
	"github.com/unclebandit/mailcampaign-sender/internal/metrics"
	"github.com/unclebandit/mailcampaign-sender/internal/repository"
)

// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
const DefaultTokenLifetime = time.Hour

// AccessToken is the token a run dispatches with. It is read-only once returned.
type AccessToken struct {
	Value        string
	TokenID      string
	AccountEmail string
	AccountName  string
	ExpiresAt    time.Time
	Refreshed    bool
}

// TokenProvider returns a usable access token for a sending identity.
type TokenProvider interface {
	ValidToken(ctx context.Context, tokenID string) (*AccessToken, error)
}

type TokenManager struct {
	Credentials repository.CredentialRepositoryInterface
	OAuth       *oauth2.Config
	Buffer      time.Duration
	HTTPClient  *http.Client
	Now         func() time.Time
}

// NewMicrosoftOAuthConfig builds the refresh-token client for the Microsoft identity platform.
func NewMicrosoftOAuthConfig(clientID, clientSecret, tokenURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ValidToken reads the credential and refreshes it when less than Buffer of
// validity remains. A refreshed token is persisted before it is returned.
func (m *TokenManager) ValidToken(ctx context.Context, tokenID string) (*AccessToken, error) {
	if tokenID == "" {
		return nil, appErrors.ErrNoSendingIdentity
	}

	cred, err := m.Credentials.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, appErrors.NewCredentialNotFound(tokenID)
	}

	logx.L().Infow("using_sending_account", "token_id", cred.ID, "account", cred.Email)

	now := m.now()
	token := &AccessToken{
		Value:        cred.AccessToken,
		TokenID:      cred.ID,
		AccountEmail: cred.Email,
		AccountName:  cred.Name,
		ExpiresAt:    cred.ExpiresAt,
	}
	if cred.AccessToken != "" && !cred.ExpiresWithin(now, m.buffer()) {
		return token, nil
	}

	logx.L().Infow("token_refresh_started", "token_id", cred.ID, "expires_at", cred.ExpiresAt)

	refreshed, err := m.refresh(ctx, cred.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		logx.L().Errorw("token_refresh_failed", "token_id", cred.ID, "error", err)
		return nil, &appErrors.ErrTokenRefresh{TokenID: cred.ID, Err: err}
	}

	refreshToken := refreshed.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	expiresAt := refreshed.Expiry
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultTokenLifetime)
	}

	if err := m.Credentials.UpdateTokens(ctx, cred.ID, refreshed.AccessToken, refreshToken, expiresAt); err != nil {
		metrics.TokenRefreshes.WithLabelValues("persist_failed").Inc()
		return nil, &appErrors.ErrTokenRefresh{TokenID: cred.ID, Err: err}
	}
	metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()
	logx.L().Infow("token_refreshed", "token_id", cred.ID, "expires_at", expiresAt)

	token.Value = refreshed.AccessToken
	token.ExpiresAt = expiresAt
	token.Refreshed = true
	return token, nil
}

func (m *TokenManager) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	base := http.DefaultClient
	if m.HTTPClient != nil {
		base = m.HTTPClient
	}
	client := *base
	client.Transport = &scopeTransport{scope: strings.Join(m.OAuth.Scopes, " "), base: base.Transport}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &client)
	// An empty access token is never valid, so the source always performs the exchange.
	src := m.OAuth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// scopeTransport adds the configured scope to refresh_token grants. The
// oauth2 package only sends scopes on the authorization code exchange, and
// the Microsoft endpoint narrows the issued token to what a refresh asks for.
type scopeTransport struct {
	scope string
	base  http.RoundTripper
}

func (t *scopeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.scope == "" || req.Method != http.MethodPost || req.Body == nil {
		return base.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	form, err := url.ParseQuery(string(body))
	if err == nil && form.Get("grant_type") == "refresh_token" && form.Get("scope") == "" {
		form.Set("scope", t.scope)
		body = []byte(form.Encode())
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return base.RoundTrip(out)
}

func (m *TokenManager) buffer() time.Duration {
	if m.Buffer <= 0 {
		return 5 * time.Minute
	}
	return m.Buffer
}

func (m *TokenManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

var _ TokenProvider = (*TokenManager)(nil)
