package hiorg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	actionCheckAPIKey      = "checkapikey"
	actionListOperations   = "geteinsaetze"
	actionOperationDetails = "geteinsatz"
	actionListResources    = "geteinsatzmittel"
	actionListPersonnel    = "geteinsatzkraefte"
	actionSetWorkingHours  = "sethelferstunden"
)

type formField struct {
	key   string
	value string
}

// encodeLegacyForm joins fields as key=value pairs in order. Values are not
// escaped: the EFS endpoint expects the body exactly like that.
func encodeLegacyForm(fields []formField) []byte {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.key+"="+f.value)
	}
	return []byte(strings.Join(parts, "&"))
}

// invoke posts an EFS action and decodes the envelope into out when the
// status is OK.
func (c *Client) invoke(ctx context.Context, action string, params []formField, out interface{}) error {
	fields := append(append([]formField(nil), params...),
		formField{key: "apikey", value: c.cfg.APIKey},
		formField{key: "action", value: action},
	)

	c.cfg.Logger.WithField("action", action).Debug("calling EFS")
	resp, err := c.transport.Execute(ctx, &Request{
		Method: http.MethodPost,
		URL:    c.cfg.EFSURL,
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   encodeLegacyForm(fields),
	}, 0)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return fmt.Errorf("decoding '%s' response (HTTP %d): %w", action, resp.StatusCode, err)
	}
	if env.Status != "OK" {
		return &ApplicationError{Action: action, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding '%s' response: %w", action, err)
	}
	return nil
}

// CheckAPIKey asks HiOrg-Server whether the configured key is valid and
// remembers the organization it belongs to.
func (c *Client) CheckAPIKey(ctx context.Context) (*Organization, error) {
	c.clearError()
	c.org = nil
	if !c.hasAPIKey() {
		return nil, c.fail(ErrNoAPIKey)
	}

	var res struct {
		Organization   string          `json:"orga"`
		OrganizationID json.RawMessage `json:"hiorg_org_id"`
	}
	if err := c.invoke(ctx, actionCheckAPIKey, nil, &res); err != nil {
		return nil, c.fail(err)
	}

	c.org = &Organization{
		Name: res.Organization,
		ID:   strings.Trim(string(res.OrganizationID), `"`),
	}
	return c.org, nil
}

// ListOperations returns all current and future operations.
func (c *Client) ListOperations(ctx context.Context) ([]Operation, error) {
	c.clearError()
	if !c.hasAPIKey() {
		return nil, c.fail(ErrNoAPIKey)
	}

	var res operationsResponse
	if err := c.invoke(ctx, actionListOperations, nil, &res); err != nil {
		return nil, c.fail(err)
	}
	return res.Operations, nil
}

// GetOperationDetails returns everything HiOrg-Server knows about an operation.
func (c *Client) GetOperationDetails(ctx context.Context, id int64) (OperationDetails, error) {
	c.clearError()
	if !c.hasAPIKey() {
		return nil, c.fail(ErrNoAPIKey)
	}

	var details OperationDetails
	params := []formField{{key: "id", value: strconv.FormatInt(id, 10)}}
	if err := c.invoke(ctx, actionOperationDetails, params, &details); err != nil {
		return nil, c.fail(err)
	}
	for _, field := range envelopeFields {
		delete(details, field)
	}
	return details, nil
}

// ListResources returns the resources whose name or type contains filter.
// start and end are unix timestamps and are ignored unless positive.
func (c *Client) ListResources(ctx context.Context, filter string, start, end int64) ([]Resource, error) {
	c.clearError()
	if !c.hasAPIKey() {
		return nil, c.fail(ErrNoAPIKey)
	}
	filter = strings.TrimSpace(filter)
	if len([]rune(filter)) < 2 {
		return nil, c.fail(ErrInvalidFilter)
	}

	params := []formField{{key: "filter", value: filter}}
	if start > 0 {
		params = append(params, formField{key: "start", value: strconv.FormatInt(start, 10)})
	}
	if end > 0 {
		params = append(params, formField{key: "ende", value: strconv.FormatInt(end, 10)})
	}

	var res resourcesResponse
	if err := c.invoke(ctx, actionListResources, params, &res); err != nil {
		return nil, c.fail(err)
	}
	return res.Resources, nil
}

// ListPersonnel would return the helpers available between start and end.
// HiOrg-Server does not implement "geteinsatzkraefte" in EFS v1.3.
func (c *Client) ListPersonnel(ctx context.Context, start, end int64) ([]Personnel, error) {
	c.clearError()
	return nil, c.fail(fmt.Errorf("%s: %w", actionListPersonnel, ErrUnsupportedOperation))
}

// SetWorkingHours would write the helpers' hours of an operation back.
// HiOrg-Server does not implement "sethelferstunden" in EFS v1.3; see
// scrape.ExtractPersonnelHours to build the payload.
func (c *Client) SetWorkingHours(ctx context.Context, operationID int64, hours []WorkingHours) error {
	c.clearError()
	return c.fail(fmt.Errorf("%s: %w", actionSetWorkingHours, ErrUnsupportedOperation))
}
