package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const defaultSigningTimeout = 10 * time.Second

// RemoteSigner delegates signing to an HTTP signing server which answers {"jwt": "..."}.
type RemoteSigner struct {
	url    string
	client *http.Client
}

func NewRemoteSigner(url string, timeout time.Duration) *RemoteSigner {
	if timeout <= 0 {
		timeout = defaultSigningTimeout
	}
	return &RemoteSigner{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type signResponse struct {
	JWT string `json:"jwt"`
}

func (s *RemoteSigner) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", errors.Wrap(err, "marshal claims")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(payload))
	if err != nil {
		return "", errors.Wrap(err, "create signing request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "call signing server")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read signing response")
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("signing server error response: %s", resp.Status)
	}

	var out signResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.Wrap(err, "decode signing response")
	}
	if out.JWT == "" {
		return "", errors.New("signing server returned an empty token")
	}
	return out.JWT, nil
}
