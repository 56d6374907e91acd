package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/config"
)

const (
	stibeeProvider = "stibee"
	stibeeAPIURL   = "https://api.stibee.com/v1"
)

// StibeeService talks to the Stibee address book API
type StibeeService struct {
	APIKey  string
	ListID  string
	BaseURL string

	client *http.Client
}

// NewStibeeService creates a new Stibee service instance
func NewStibeeService(cfg *config.Config) *StibeeService {
	return &StibeeService{
		APIKey:  cfg.StibeeAPIKey,
		ListID:  cfg.StibeeListID,
		BaseURL: stibeeAPIURL,
		client:  &http.Client{Timeout: cfg.ExternalCallTimeout},
	}
}

// stibeeResponse is the envelope of every Stibee answer
type stibeeResponse struct {
	Ok    bool `json:"Ok"`
	Error *struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	} `json:"Error,omitempty"`
	Value interface{} `json:"Value,omitempty"`
}

type stibeeSubscriber struct {
	Email    string  `json:"email"`
	GroupIDs []int64 `json:"groupIds,omitempty"`
}

type stibeeSubscribeRequest struct {
	EventOccuredBy string             `json:"eventOccuredBy"`
	ConfirmEmailYN string             `json:"confirmEmailYN"`
	Subscribers    []stibeeSubscriber `json:"subscribers"`
}

type stibeeEmailsRequest struct {
	Subscribers []string `json:"subscribers"`
}

// AddSubscriber adds or updates a subscriber. Members signed up through the
// site already confirmed their address, so the confirmation mail is skipped.
func (s *StibeeService) AddSubscriber(ctx context.Context, email string, groupIDs []int64) (*ListResult, error) {
	listID, err := config.Require("STIBEE_LIST_ID", s.ListID)
	if err != nil {
		return nil, err
	}

	body := stibeeSubscribeRequest{
		EventOccuredBy: "MANUAL",
		ConfirmEmailYN: "N",
		Subscribers:    []stibeeSubscriber{{Email: email, GroupIDs: groupIDs}},
	}
	return s.do(ctx, http.MethodPost, "/lists/"+listID+"/subscribers", body)
}

// RemoveSubscriber removes a subscriber from the list
func (s *StibeeService) RemoveSubscriber(ctx context.Context, email string) (*ListResult, error) {
	listID, err := config.Require("STIBEE_LIST_ID", s.ListID)
	if err != nil {
		return nil, err
	}
	return s.do(ctx, http.MethodDelete, "/lists/"+listID+"/subscribers", stibeeEmailsRequest{Subscribers: []string{email}})
}

// AddToGroup assigns subscribers to a group
func (s *StibeeService) AddToGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error) {
	listID, err := config.Require("STIBEE_LIST_ID", s.ListID)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/lists/%s/groups/%d/subscribers/assign", listID, groupID)
	return s.do(ctx, http.MethodPost, path, stibeeEmailsRequest{Subscribers: emails})
}

// RemoveFromGroup releases subscribers from a group
func (s *StibeeService) RemoveFromGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error) {
	listID, err := config.Require("STIBEE_LIST_ID", s.ListID)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/lists/%s/groups/%d/subscribers/release", listID, groupID)
	return s.do(ctx, http.MethodPost, path, stibeeEmailsRequest{Subscribers: emails})
}

// GetSubscriber searches the list for email
func (s *StibeeService) GetSubscriber(ctx context.Context, email string) (*ListResult, error) {
	listID, err := config.Require("STIBEE_LIST_ID", s.ListID)
	if err != nil {
		return nil, err
	}
	return s.do(ctx, http.MethodGet, "/lists/"+listID+"/subscribers?s="+url.QueryEscape(email), nil)
}

// do sends one request to Stibee and decodes the response envelope
func (s *StibeeService) do(ctx context.Context, method, path string, payload interface{}) (*ListResult, error) {
	apiKey, err := config.Require("STIBEE_API_KEY", s.APIKey)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stibee request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.BaseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("AccessToken", apiKey)

	client := s.client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call stibee: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read stibee response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperror.ProviderError{
			Provider: stibeeProvider,
			Status:   resp.StatusCode,
			Message:  http.StatusText(resp.StatusCode),
		}
	}

	var envelope stibeeResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode stibee response: %w", err)
		}
		// Stibee reports rejected requests inside a 200 envelope
		if !envelope.Ok {
			message := "request rejected"
			if envelope.Error != nil && envelope.Error.Message != "" {
				message = envelope.Error.Message
			}
			return nil, &apperror.ProviderError{
				Provider: stibeeProvider,
				Status:   resp.StatusCode,
				Message:  message,
			}
		}
	}
	return &ListResult{Provider: stibeeProvider, Value: envelope}, nil
}
