package smartfeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	xhttp "TradePull/pkg/http"
)

const refreshPath = "/rest/auth/angelbroking/jwt/v1/generateTokens"

// Auth refreshes broker session tokens over the REST auth endpoint.
type Auth struct {
	baseURL string
	client  *xhttp.Client
}

var _ repository.AuthClient = (*Auth)(nil)

func NewAuth(baseURL string, timeout time.Duration) *Auth {
	return &Auth{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type refreshResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		JWTToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	} `json:"data"`
}

// Refresh exchanges the refresh token for a fresh session token pair.
func (a *Auth) Refresh(ctx context.Context, apiKey, refreshToken string) (*models.SessionTokens, error) {
	var resp refreshResponse
	err := a.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    a.baseURL + refreshPath,
		Headers: map[string]string{
			"X-PrivateKey": apiKey,
			"Content-Type": "application/json",
		},
		Body: map[string]string{"refreshToken": refreshToken},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}
	if !resp.Status {
		return nil, fmt.Errorf("refresh tokens rejected: %s", resp.Message)
	}
	return &models.SessionTokens{
		SessionToken: resp.Data.JWTToken,
		RefreshToken: resp.Data.RefreshToken,
		FeedToken:    resp.Data.FeedToken,
	}, nil
}
