package graphqa

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRunner implements Runner over a Neo4j driver.
type Neo4jRunner struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jRunner connects to a Neo4j instance and verifies the
// connection.
func NewNeo4jRunner(ctx context.Context, url, username, password string) (*Neo4jRunner, error) {
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	return &Neo4jRunner{driver: driver}, nil
}

// Close releases the underlying driver.
func (r *Neo4jRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Run executes a Cypher statement and returns the result rows.
func (r *Neo4jRunner) Run(ctx context.Context, cypher string) ([]map[string]any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.AsMap())
	}
	return rows, nil
}

// Schema reads the labels, relationship types, and property keys of the
// graph and renders them as text for the query-generation prompt.
func (r *Neo4jRunner) Schema(ctx context.Context) (string, error) {
	labels, err := r.listStrings(ctx, "CALL db.labels() YIELD label RETURN label", "label")
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	relTypes, err := r.listStrings(ctx, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", "relationshipType")
	if err != nil {
		return "", fmt.Errorf("failed to list relationship types: %w", err)
	}
	props, err := r.listStrings(ctx, "CALL db.propertyKeys() YIELD propertyKey RETURN propertyKey", "propertyKey")
	if err != nil {
		return "", fmt.Errorf("failed to list property keys: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Node labels: %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(&b, "Relationship types: %s\n", strings.Join(relTypes, ", "))
	fmt.Fprintf(&b, "Property keys: %s", strings.Join(props, ", "))
	return b.String(), nil
}

func (r *Neo4jRunner) listStrings(ctx context.Context, cypher, key string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Get(key)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
