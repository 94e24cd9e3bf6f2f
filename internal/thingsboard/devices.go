package thingsboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// DeviceDefinition describes a device to provision on the platform.
type DeviceDefinition struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Label          string         `json:"label,omitempty"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`
}

type deviceEnvelope struct {
	ID struct {
		ID string `json:"id"`
	} `json:"id"`
}

// EnsureDevice creates the device on the platform, or reuses an
// existing one with the same name, and returns its platform id.
func (c *Client) EnsureDevice(ctx context.Context, def DeviceDefinition) (string, error) {
	token, err := c.Login(ctx)
	if err != nil {
		return "", err
	}

	// Reuse by name when the device already exists.
	search := fmt.Sprintf("%s/api/tenant/devices?deviceName=%s", c.baseURL, url.QueryEscape(def.Name))
	var existing deviceEnvelope
	if err := c.doJSON(ctx, http.MethodGet, search, token, nil, &existing); err == nil && existing.ID.ID != "" {
		return existing.ID.ID, nil
	}

	var created deviceEnvelope
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/device", token, def, &created); err != nil {
		return "", fmt.Errorf("create device %q: %w", def.Name, err)
	}
	if created.ID.ID == "" {
		return "", fmt.Errorf("create device %q: platform returned no id", def.Name)
	}
	return created.ID.ID, nil
}
