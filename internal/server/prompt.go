package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const initialPromptName = "duckdb-motherduck-initial-prompt"

const initialPromptText = `You are connected to a DuckDB or MotherDuck database through this server's single "query" tool.

How to work with it:
1. Discover what is available before writing queries. Useful starting points:
   - SELECT database_name FROM duckdb_databases() WHERE database_name NOT IN ('system', 'temp')
   - SELECT table_name FROM duckdb_tables()
   - DESCRIBE <table_name>
2. Pass exactly one SQL statement per tool call. The full DuckDB SQL dialect
   is supported, including CTEs, window functions, and aggregations.
3. Keep result sets small: aggregate with GROUP BY and apply LIMIT rather
   than pulling raw rows.
4. A failed query returns a structured error with a kind (SyntaxError,
   PermissionError, ConnectionError, MissingCredential, EngineError) and the
   engine's message. Fix the statement and try again; the server never
   retries on your behalf.
5. If the server runs in read-only mode, statements that mutate the database
   are rejected with a PermissionError.

Start by listing the available databases and tables, then answer the user's
questions with targeted queries.`

func (s *Server) registerPrompt() {
	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        initialPromptName,
		Description: "A prompt to initialize a connection to DuckDB or MotherDuck and start working with it",
	}, func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "Initial prompt for interacting with DuckDB/MotherDuck",
			Messages: []*mcp.PromptMessage{
				{
					Role:    "user",
					Content: &mcp.TextContent{Text: initialPromptText},
				},
			},
		}, nil
	})
}
