package opencti

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/darc-connector/internal/config"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&config.OpenCTIConfig{
		URL:         serverURL,
		Token:       "test-token",
		ConnectorID: "connector-1",
		Scope:       "stix2",
		Timeout:     5 * time.Second,
	}, logger.NewNop())
}

// graphqlServer answers /graphql with canned data keyed by a query substring.
func graphqlServer(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/graphql", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		for needle, data := range answers {
			if strings.Contains(req.Query, needle) {
				_, _ = w.Write([]byte(`{"data": ` + data + `}`))
				return
			}
		}
		t.Errorf("unexpected query: %s", req.Query)
	}))
}

func TestClient_EntityExists(t *testing.T) {
	server := graphqlServer(t, map[string]string{
		"stixDomainObjects": `{"stixDomainObjects": {"edges": [{"node": {"id": "report--1"}}]}}`,
	})
	defer server.Close()

	exists, err := newTestClient(server.URL).EntityExists(context.Background(), "Report 42", "Report")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClient_EntityExists_NoMatch(t *testing.T) {
	server := graphqlServer(t, map[string]string{
		"stixDomainObjects": `{"stixDomainObjects": {"edges": []}}`,
	})
	defer server.Close()

	exists, err := newTestClient(server.URL).EntityExists(context.Background(), "Report 42", "Report")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_WorkProtocol(t *testing.T) {
	server := graphqlServer(t, map[string]string{
		"workAdd":        `{"workAdd": {"id": "work--7"}}`,
		"stixBundlePush": `{"stixBundlePush": true}`,
		"workEdit":       `{"workEdit": {"toProcessed": "work--7"}}`,
	})
	defer server.Close()

	c := newTestClient(server.URL)
	ctx := context.Background()

	workID, err := c.InitiateWork(ctx, "run @ now")
	require.NoError(t, err)
	assert.Equal(t, "work--7", workID)

	require.NoError(t, c.SendBundle(ctx, workID, json.RawMessage(`{"type":"bundle","objects":[]}`)))
	require.NoError(t, c.FinalizeWork(ctx, workID, "processed record 42"))
}

func TestClient_GraphQLErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "auth required"}]}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth required")
}

func TestClient_Health(t *testing.T) {
	server := graphqlServer(t, map[string]string{
		"about": `{"about": {"version": "6.1.0"}}`,
	})
	defer server.Close()

	require.NoError(t, newTestClient(server.URL).Health(context.Background()))
}
