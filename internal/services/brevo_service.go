package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/config"
	"harmonyclass-api/pkg/logging"

	brevo "github.com/getbrevo/brevo-go/lib"
)

const brevoProvider = "brevo"

// BrevoService keeps newsletter subscribers as Brevo contacts. Brevo lists
// play the part of the free and premium groups.
type BrevoService struct {
	APIKey string
	// ListID is an optional list every subscriber joins on top of its group
	ListID int64
	// BasePath overrides the API endpoint
	BasePath string

	httpClient *http.Client
	mu         sync.Mutex
	client     *brevo.APIClient
}

// NewBrevoService creates a new Brevo service instance
func NewBrevoService(cfg *config.Config) *BrevoService {
	return &BrevoService{
		APIKey:     cfg.BrevoAPIKey,
		ListID:     cfg.BrevoListID,
		httpClient: &http.Client{Timeout: cfg.ExternalCallTimeout},
	}
}

// contacts returns the contacts API, building the client on first use
func (s *BrevoService) contacts() (*brevo.ContactsApiService, error) {
	apiKey, err := config.Require("BREVO_API_KEY", s.APIKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		cfg := brevo.NewConfiguration()
		cfg.AddDefaultHeader("api-key", apiKey)
		if s.httpClient != nil {
			cfg.HTTPClient = s.httpClient
		}
		if s.BasePath != "" {
			cfg.BasePath = s.BasePath
		}
		s.client = brevo.NewAPIClient(cfg)
	}
	return s.client.ContactsApi, nil
}

// AddSubscriber creates the contact, or updates it when it exists, and adds it to groupIDs
func (s *BrevoService) AddSubscriber(ctx context.Context, email string, groupIDs []int64) (*ListResult, error) {
	api, err := s.contacts()
	if err != nil {
		return nil, err
	}

	listIDs := append([]int64{}, groupIDs...)
	if s.ListID != 0 {
		listIDs = append(listIDs, s.ListID)
	}

	created, resp, err := api.CreateContact(ctx, brevo.CreateContact{
		Email:         email,
		ListIds:       listIDs,
		UpdateEnabled: true,
	})
	if err != nil {
		return nil, brevoError(resp, err)
	}
	return &ListResult{Provider: brevoProvider, Value: created}, nil
}

// RemoveSubscriber deletes the contact
func (s *BrevoService) RemoveSubscriber(ctx context.Context, email string) (*ListResult, error) {
	api, err := s.contacts()
	if err != nil {
		return nil, err
	}

	resp, err := api.DeleteContact(ctx, email)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			logging.Infof("Brevo contact already absent: %s", email)
			return &ListResult{Provider: brevoProvider}, nil
		}
		return nil, brevoError(resp, err)
	}
	return &ListResult{Provider: brevoProvider}, nil
}

// AddToGroup adds contacts to a Brevo list
func (s *BrevoService) AddToGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error) {
	api, err := s.contacts()
	if err != nil {
		return nil, err
	}

	info, resp, err := api.AddContactToList(ctx, brevo.AddContactToList{Emails: emails}, groupID)
	if err != nil {
		if alreadyDone(err) {
			return &ListResult{Provider: brevoProvider}, nil
		}
		return nil, brevoError(resp, err)
	}
	return &ListResult{Provider: brevoProvider, Value: info}, nil
}

// RemoveFromGroup removes contacts from a Brevo list
func (s *BrevoService) RemoveFromGroup(ctx context.Context, groupID int64, emails []string) (*ListResult, error) {
	api, err := s.contacts()
	if err != nil {
		return nil, err
	}

	info, resp, err := api.RemoveContactFromList(ctx, brevo.RemoveContactFromList{Emails: emails}, groupID)
	if err != nil {
		if alreadyDone(err) {
			return &ListResult{Provider: brevoProvider}, nil
		}
		return nil, brevoError(resp, err)
	}
	return &ListResult{Provider: brevoProvider, Value: info}, nil
}

// GetSubscriber gets the contact details
func (s *BrevoService) GetSubscriber(ctx context.Context, email string) (*ListResult, error) {
	api, err := s.contacts()
	if err != nil {
		return nil, err
	}

	details, resp, err := api.GetContactInfo(ctx, email, nil)
	if err != nil {
		return nil, brevoError(resp, err)
	}
	return &ListResult{Provider: brevoProvider, Value: details}, nil
}

// alreadyDone reports whether Brevo rejected a list change because the
// contacts are already in the requested state
func alreadyDone(err error) bool {
	var swaggerErr brevo.GenericSwaggerError
	if errors.As(err, &swaggerErr) {
		return strings.Contains(strings.ToLower(string(swaggerErr.Body())), "already")
	}
	return false
}

// brevoError turns a failed Brevo call into a ProviderError when the API answered
func brevoError(resp *http.Response, err error) error {
	if resp == nil {
		return err
	}

	message := http.StatusText(resp.StatusCode)
	var swaggerErr brevo.GenericSwaggerError
	if errors.As(err, &swaggerErr) && len(swaggerErr.Body()) > 0 {
		message = string(swaggerErr.Body())
	}
	return &apperror.ProviderError{
		Provider: brevoProvider,
		Status:   resp.StatusCode,
		Message:  message,
	}
}
