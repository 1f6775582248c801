package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/sakif/support-desk/internal/auth"
	"github.com/sakif/support-desk/internal/schema"
)

// maxRequestBytes caps a GraphQL request body.
const maxRequestBytes = 1 << 20

// GraphQLRequest is the POST body of /graphql.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// GraphQLResponse is what /graphql answers with. Errors are plain strings,
// not the location-carrying error objects of standard GraphQL responses.
type GraphQLResponse struct {
	Data   interface{} `json:"data,omitempty"`
	Errors []string    `json:"errors,omitempty"`
}

// GraphQLHandler executes queries against the schema.
type GraphQLHandler struct {
	schema graphql.Schema
	logger *slog.Logger
}

func NewGraphQLHandler(schema graphql.Schema, logger *slog.Logger) *GraphQLHandler {
	return &GraphQLHandler{schema: schema, logger: logger}
}

// HandleQuery executes a query or mutation.
//
// HTTP: POST /graphql
// REQUEST BODY: {"query": "...", "variables": {...}, "operationName": "..."}
//
// The response is always 200 with data and/or errors, except when a
// resolver failed authentication or authorization: that failure is answered
// with its own status and a {code, description} body.
func (h *GraphQLHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req GraphQLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		// A body that does not decode is treated like one without a query.
		h.logger.Debug("invalid GraphQL request body", slog.String("error", err.Error()))
		req = GraphQLRequest{}
	}

	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusOK, GraphQLResponse{Errors: []string{"Must provide query string."}})
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	resp := GraphQLResponse{Data: result.Data}
	for _, e := range result.Errors {
		if authErr, ok := auth.AsError(schema.ResolverError(e)); ok {
			h.logger.Debug("graphql request rejected",
				slog.String("operation", req.OperationName),
				slog.String("code", authErr.Code),
			)
			auth.WriteError(w, authErr)
			return
		}
		resp.Errors = append(resp.Errors, e.Message)
	}

	if len(resp.Errors) > 0 {
		h.logger.Warn("graphql request completed with errors",
			slog.String("operation", req.OperationName),
			slog.Int("errors", len(resp.Errors)),
		)
	}
	writeJSON(w, http.StatusOK, resp)
}
