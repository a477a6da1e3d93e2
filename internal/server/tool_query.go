package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pondworks/duckmcp/internal/duck"
	"github.com/pondworks/duckmcp/internal/metrics"
)

const queryToolName = "query"

const queryToolDescription = `
	Execute a SQL query on the DuckDB or MotherDuck database this server is
	connected to.
	Supports the full DuckDB SQL dialect: SELECT, JOINs, WHERE clauses,
	GROUP BY, aggregations (COUNT, SUM, AVG, percentiles), ORDER BY, CTEs,
	and more. Use DESCRIBE and the duckdb_tables()/duckdb_views() functions
	to discover available tables before writing queries.
	Results come back as an ordered column list plus ordered rows; failures
	come back as a structured {kind, message} error.
	Always aggregate and use LIMIT clauses to keep results manageable -
	avoid returning large numbers of raw rows.
`

type QueryInput struct {
	Query string `json:"query" jsonschema:"SQL query to execute"`
}

type QueryOutput struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

func (s *Server) registerQueryTool() error {
	req, err := jsonschema.For[QueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query input schema: %w", err)
	}

	res, err := jsonschema.For[QueryOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query output schema: %w", err)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:         queryToolName,
		Description:  queryToolDescription,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
		startTime := s.cfg.Clock.Now()
		out, qerr := s.runQuery(ctx, req.Query)
		duration := s.cfg.Clock.Since(startTime).Seconds()

		metrics.ToolCallDuration.WithLabelValues(queryToolName).Observe(duration)
		if qerr != nil {
			metrics.ToolCallsTotal.WithLabelValues(queryToolName, "error").Inc()
			metrics.QueryErrorsTotal.WithLabelValues(string(qerr.Kind)).Inc()
			s.log.Debug("server: query failed", "kind", string(qerr.Kind), "error", qerr.Message)
			// Failures are isolated to this invocation and reported through
			// the tool result shape, never raised to the transport. The
			// output must stay schema-valid here: nil slices marshal as
			// null, which the SDK rejects against the output schema.
			return errorResult(qerr), QueryOutput{Columns: []string{}, Rows: [][]any{}}, nil
		}
		metrics.ToolCallsTotal.WithLabelValues(queryToolName, "success").Inc()
		return nil, out, nil
	})
	return nil
}

// runQuery performs the mandatory invocation sequence: guard, acquire,
// execute, release, map. The release is deferred immediately after a
// successful acquire so it runs on every exit path.
func (s *Server) runQuery(ctx context.Context, query string) (QueryOutput, *duck.Error) {
	s.log.Debug("server: running query tool")

	if s.cfg.ReadOnly {
		if err := duck.GuardReadOnly(query); err != nil {
			return QueryOutput{}, err
		}
	}

	db, release, err := s.cfg.Connector.Acquire(ctx)
	if err != nil {
		return QueryOutput{}, asDuckError(err)
	}
	defer release()

	res, err := duck.Query(ctx, db, query)
	if err != nil {
		s.cfg.Connector.Invalidate(err)
		return QueryOutput{}, asDuckError(err)
	}

	return QueryOutput{
		Columns: res.Columns,
		Rows:    res.Rows,
		Count:   res.Count,
	}, nil
}

func asDuckError(err error) *duck.Error {
	var de *duck.Error
	if errors.As(err, &de) {
		return de
	}
	return duck.Classify(err)
}

// errorResult maps a classified failure to the caller-visible error shape.
func errorResult(e *duck.Error) *mcp.CallToolResult {
	payload, err := json.Marshal(e)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"kind":%q,"message":"failed to encode error"}`, e.Kind))
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}
}
