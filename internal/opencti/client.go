// Package opencti implements the knowledge-base client: entity lookups and
// the work protocol used to submit enrichment bundles.
package opencti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonesrussell/darc-connector/internal/config"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

// Client talks to the knowledge base's GraphQL endpoint with a bearer token.
type Client struct {
	baseURL     string
	token       string
	connectorID string
	scope       string
	client      *http.Client
	logger      logger.Logger
}

// NewClient creates a knowledge-base client from configuration.
func NewClient(cfg *config.OpenCTIConfig, log logger.Logger) *Client {
	return &Client{
		baseURL:     cfg.URL,
		token:       cfg.Token,
		connectorID: cfg.ConnectorID,
		scope:       cfg.Scope,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      log,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

// query executes one GraphQL operation and decodes its data payload into out.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, marshalErr := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if marshalErr != nil {
		return fmt.Errorf("marshal graphql request: %w", marshalErr)
	}

	req, reqErr := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if reqErr != nil {
		return fmt.Errorf("create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, doErr := c.client.Do(req)
	if doErr != nil {
		return fmt.Errorf("knowledge base request: %w", doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("knowledge base returned %d", resp.StatusCode)
	}

	var gqlResp graphqlResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&gqlResp); decodeErr != nil {
		return fmt.Errorf("decode graphql response: %w", decodeErr)
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	if out != nil {
		if unmarshalErr := json.Unmarshal(gqlResp.Data, out); unmarshalErr != nil {
			return fmt.Errorf("unmarshal graphql data: %w", unmarshalErr)
		}
	}
	return nil
}

// EntityExists reports whether a domain object with the given name and type
// is already present. Name matching is case-insensitive on the server side.
func (c *Client) EntityExists(ctx context.Context, name, entityType string) (bool, error) {
	const q = `
		query EntityByNameType($types: [String], $name: Any!) {
			stixDomainObjects(
				types: $types
				first: 1
				filters: {
					mode: and
					filters: [{ key: "name", values: [$name], operator: eq, mode: insensitive }]
					filterGroups: []
				}
			) {
				edges { node { id } }
			}
		}
	`

	var result struct {
		StixDomainObjects struct {
			Edges []struct {
				Node struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"stixDomainObjects"`
	}

	err := c.query(ctx, q, map[string]any{
		"types": []string{entityType},
		"name":  name,
	}, &result)
	if err != nil {
		return false, fmt.Errorf("entity lookup %s/%s: %w", entityType, name, err)
	}

	return len(result.StixDomainObjects.Edges) > 0, nil
}

// InitiateWork registers a unit of work for this connector and returns its id.
func (c *Client) InitiateWork(ctx context.Context, friendlyName string) (string, error) {
	const q = `
		mutation WorkAdd($connectorId: String!, $friendlyName: String) {
			workAdd(connectorId: $connectorId, friendlyName: $friendlyName) { id }
		}
	`

	var result struct {
		WorkAdd struct {
			ID string `json:"id"`
		} `json:"workAdd"`
	}

	err := c.query(ctx, q, map[string]any{
		"connectorId":  c.connectorID,
		"friendlyName": friendlyName,
	}, &result)
	if err != nil {
		return "", fmt.Errorf("initiate work: %w", err)
	}
	if result.WorkAdd.ID == "" {
		return "", fmt.Errorf("initiate work: empty work id")
	}

	return result.WorkAdd.ID, nil
}

// SendBundle pushes a bundle under an open work id. The bundle is passed
// through as-is; the server splits and queues its objects.
func (c *Client) SendBundle(ctx context.Context, workID string, bundle json.RawMessage) error {
	const q = `
		mutation BundlePush($connectorId: String!, $workId: ID, $bundle: String!) {
			stixBundlePush(connectorId: $connectorId, workId: $workId, bundle: $bundle)
		}
	`

	err := c.query(ctx, q, map[string]any{
		"connectorId": c.connectorID,
		"workId":      workID,
		"bundle":      string(bundle),
	}, nil)
	if err != nil {
		return fmt.Errorf("send bundle: %w", err)
	}
	return nil
}

// FinalizeWork marks the work as processed with a completion message.
func (c *Client) FinalizeWork(ctx context.Context, workID, message string) error {
	const q = `
		mutation WorkToProcessed($id: ID!, $message: String) {
			workEdit(id: $id) { toProcessed(message: $message) }
		}
	`

	err := c.query(ctx, q, map[string]any{
		"id":      workID,
		"message": message,
	}, nil)
	if err != nil {
		return fmt.Errorf("finalize work %s: %w", workID, err)
	}
	return nil
}

// Health verifies the endpoint answers with its version.
func (c *Client) Health(ctx context.Context) error {
	const q = `query { about { version } }`

	var result struct {
		About struct {
			Version string `json:"version"`
		} `json:"about"`
	}

	if err := c.query(ctx, q, nil, &result); err != nil {
		return fmt.Errorf("knowledge base health: %w", err)
	}
	return nil
}
