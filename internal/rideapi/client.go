// Package rideapi calls the two HTTP endpoints the realtime core depends on:
// security PIN verification and ride completion.
package rideapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/logger"
)

const (
	pathVerifyPin    = "/rides/verify-pin"
	pathCompleteRide = "/rides/complete"
)

// Config holds ride API configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// TokenFunc returns the access token to send, empty for none
type TokenFunc func() string

// Client performs ride API calls
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
	logger  *logger.Logger
}

// NewClient creates a ride API client
func NewClient(cfg Config, token TokenFunc, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
		logger:  log.Named("rideapi"),
	}
}

type verifyPinRequest struct {
	BookingID string `json:"bookingId"`
	Pin       string `json:"pin"`
}

type completeRideRequest struct {
	BookingID string `json:"bookingId"`
	UserID    string `json:"userId"`
}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VerifyPin checks the rider-supplied PIN for bookingID. A rejected PIN
// yields ErrInvalidPin.
func (c *Client) VerifyPin(ctx context.Context, bookingID, pin string) error {
	res, status, err := c.post(ctx, pathVerifyPin, verifyPinRequest{BookingID: bookingID, Pin: pin})
	if err != nil {
		return err
	}
	if status >= 500 {
		return errors.Transport("RIDE_API_UNAVAILABLE", "Ride service is unavailable", fmt.Errorf("status %d", status))
	}
	if status >= 400 || !res.Success {
		if res.Message != "" {
			return errors.WithMessage(errors.ErrInvalidPin, res.Message)
		}
		return errors.ErrInvalidPin
	}
	return nil
}

// CompleteRide reports the end of bookingID on behalf of userID
func (c *Client) CompleteRide(ctx context.Context, bookingID, userID string) error {
	res, status, err := c.post(ctx, pathCompleteRide, completeRideRequest{BookingID: bookingID, UserID: userID})
	if err != nil {
		return err
	}
	if status >= 500 {
		return errors.Transport("RIDE_API_UNAVAILABLE", "Ride service is unavailable", fmt.Errorf("status %d", status))
	}
	if status >= 400 || !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "Failed to complete ride"
		}
		return errors.Business("COMPLETION_REJECTED", msg, fmt.Errorf("status %d", status))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (result, int, error) {
	var res result
	if c.baseURL == "" {
		return res, 0, errors.Transport("RIDE_API_UNCONFIGURED", "Ride service is not configured", nil)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return res, 0, errors.Internal("Failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return res, 0, errors.Internal("Failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Ride API request failed", logger.String("path", path), logger.Err(err))
		return res, 0, errors.Transport("RIDE_API_UNAVAILABLE", "Ride service is unavailable", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Ride API response",
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("latency", time.Since(start)),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return res, resp.StatusCode, errors.Transport("RIDE_API_UNAVAILABLE", "Ride service is unavailable", err)
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil && resp.StatusCode < 400 {
			return res, resp.StatusCode, errors.Protocol("RIDE_API_BAD_RESPONSE", "Unexpected response from ride service", err)
		}
	}
	return res, resp.StatusCode, nil
}
