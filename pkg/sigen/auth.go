package sigen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sigenflux/sigenflux/pkg/log"
	"github.com/sigenflux/sigenflux/pkg/types"
)

const tokenPath = "/auth/oauth/token"

var (
	// ErrNoCredentials means no stored token exists and no username/password
	// was configured to obtain one.
	ErrNoCredentials = errors.New("no sigen credentials configured")
	// ErrAuthFailed means every way of obtaining a usable token failed.
	ErrAuthFailed = errors.New("sigen authentication failed")
)

// Authenticator owns the token lifecycle against the Sigen auth endpoint:
// reuse the persisted token while it is fresh, refresh it when stale, and
// fall back to a full password login when the refresh token is rejected.
// The password is the pre-transformed string observed from the vendor app;
// this program never hashes a plaintext password itself.
type Authenticator struct {
	client     *http.Client
	store      *Store
	baseURL    string
	username   string
	password   string
	clientAuth string

	now func() time.Time
}

// Active returns a usable access token, performing whatever refresh or login
// is needed. Any newly obtained record is persisted before the token is
// returned, so a crash afterwards never repeats a redundant login.
func (a *Authenticator) Active(ctx context.Context) (string, error) {
	rec, ok := a.store.Load(ctx)
	if ok && rec.Fresh(a.now()) {
		log.Ctx(ctx).DebugContext(ctx, "using persisted access token")
		return rec.AccessToken, nil
	}

	if ok && rec.RefreshToken != "" {
		log.Ctx(ctx).InfoContext(ctx, "access token stale, attempting refresh")
		fresh, err := a.refresh(ctx, rec.RefreshToken)
		if err == nil {
			a.persist(ctx, fresh)
			return fresh.AccessToken, nil
		}
		log.Ctx(ctx).WarnContext(ctx, "token refresh failed, falling back to full login",
			slog.Any("error", err))
	} else if ok {
		log.Ctx(ctx).WarnContext(ctx, "stale token has no refresh token, falling back to full login")
	}

	fresh, err := a.login(ctx)
	if err != nil {
		return "", err
	}
	a.persist(ctx, fresh)
	return fresh.AccessToken, nil
}

func (a *Authenticator) persist(ctx context.Context, rec types.TokenRecord) {
	if err := a.store.Save(ctx, rec); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist token record",
			slog.Any("error", err))
	}
}

func (a *Authenticator) login(ctx context.Context) (types.TokenRecord, error) {
	if a.username == "" || a.password == "" {
		return types.TokenRecord{}, ErrNoCredentials
	}

	data := url.Values{}
	data.Set("username", a.username)
	data.Set("password", a.password)
	data.Set("scope", "server")
	data.Set("grant_type", "password")
	data.Set("userDeviceId", a.deviceID())

	log.Ctx(ctx).InfoContext(ctx, "attempting full authentication",
		slog.String("username", a.username))
	rec, err := a.tokenRequest(ctx, data)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "full authentication failed", slog.Any("error", err))
		return types.TokenRecord{}, fmt.Errorf("%w: %s", ErrAuthFailed, err)
	}
	log.Ctx(ctx).InfoContext(ctx, "full authentication succeeded")
	return rec, nil
}

func (a *Authenticator) refresh(ctx context.Context, refreshToken string) (types.TokenRecord, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("userDeviceId", a.deviceID())

	rec, err := a.tokenRequest(ctx, data)
	if err != nil {
		return types.TokenRecord{}, fmt.Errorf("refresh failed: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "token refresh succeeded")
	return rec, nil
}

// tokenRequest performs one call against the auth endpoint and turns the
// response envelope into an immutable TokenRecord stamped with the current
// time.
func (a *Authenticator) tokenRequest(ctx context.Context, data url.Values) (types.TokenRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+tokenPath,
		strings.NewReader(data.Encode()))
	if err != nil {
		return types.TokenRecord{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+a.clientAuth)

	var res struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := doEnvelope(a.client, req, &res); err != nil {
		return types.TokenRecord{}, err
	}
	if res.AccessToken == "" {
		return types.TokenRecord{}, fmt.Errorf("%w: no access_token in auth response", ErrMalformed)
	}

	return types.TokenRecord{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		RetrievedAt:  a.now().Unix(),
	}, nil
}

// deviceID returns a per-request device identifier the way the vendor app
// builds one: the current time in milliseconds.
func (a *Authenticator) deviceID() string {
	return strconv.FormatInt(a.now().UnixMilli(), 10)
}
