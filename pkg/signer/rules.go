package signer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/segmentio/encoding/json"
)

// HeaderRules is the secret bundle that drives request signing. It is
// published externally and treated as opaque versioned configuration.
type HeaderRules struct {
	StaticParam      string `json:"static_param"`
	Format           string `json:"format"`
	ChecksumIndexes  []int  `json:"checksum_indexes"`
	ChecksumConstant int    `json:"checksum_constant"`
	AppToken         string `json:"app_token"`
}

// Validate rejects bundles that cannot produce a signature
func (r *HeaderRules) Validate() error {
	var errs []error
	if r.StaticParam == "" {
		errs = append(errs, errors.New("static_param is empty"))
	}
	if r.Format == "" {
		errs = append(errs, errors.New("format is empty"))
	}
	if r.AppToken == "" {
		errs = append(errs, errors.New("app_token is empty"))
	}
	for _, idx := range r.ChecksumIndexes {
		if idx < 0 || idx >= digestLen {
			errs = append(errs, fmt.Errorf("checksum index %d outside digest", idx))
		}
	}
	return errors.Join(errs...)
}

// ParseRules decodes and validates a rules document
func ParseRules(data []byte) (*HeaderRules, error) {
	var rules HeaderRules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode header rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid header rules: %w", err)
	}
	return &rules, nil
}

// LoadRulesFile reads a rules document from disk
func LoadRulesFile(path string) (*HeaderRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read header rules: %w", err)
	}
	return ParseRules(data)
}

// FetchRules downloads the rules document from url
func FetchRules(ctx context.Context, client *http.Client, url string) (*HeaderRules, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rules request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch header rules: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch header rules: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read header rules: %w", err)
	}
	return ParseRules(data)
}
