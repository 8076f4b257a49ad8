package upstream

import (
	"context"
	"net/url"
)

// GetCompanies lists the companies visible to the authenticated user. The
// gateway uses this only to resolve the company every address lookup is
// scoped to.
func (c *Client) GetCompanies(ctx context.Context) ([]Company, error) {
	var out companiesResponse
	if err := c.doAuthenticated(ctx, "GET", "/companies", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Companies, nil
}

// GetAddresses lists addresses for a company, optionally filtered by
// addressType and a free-text phrase.
func (c *Client) GetAddresses(ctx context.Context, company string, offset, limit int, addressType, phrase string) (*AddressesResponse, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	q := url.Values{}
	q.Set("offset", intParam(offset))
	q.Set("limit", intParam(limit))
	if addressType != "" {
		q.Set("addressType", addressType)
	}
	if phrase != "" {
		q.Set("phrase", phrase)
	}

	var out AddressesResponse
	path := "/companies/" + url.PathEscape(company) + "/addresses"
	if err := c.doAuthenticated(ctx, "GET", path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAddress fetches a single address by key.
func (c *Client) GetAddress(ctx context.Context, company, addressKey string, fields []string) (*Address, error) {
	q := url.Values{}
	if len(fields) > 0 {
		q.Set("fields", joinComma(fields))
	}
	var out Address
	path := "/companies/" + url.PathEscape(company) + "/addresses/" + url.PathEscape(addressKey)
	if err := c.doAuthenticated(ctx, "GET", path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
