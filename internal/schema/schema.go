// Package schema builds the GraphQL schema served at /graphql.
//
// Field and argument names are camelCase. Resolvers only translate between
// GraphQL arguments and the service layer; every business rule lives in
// internal/service.
package schema

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/service"
)

// Services are the business services the resolvers call.
type Services struct {
	Conversations *service.ConversationService
	Challenges    *service.ChallengeService
	Users         *service.UserService
}

// builder holds the object types while the schema is assembled. Challenge
// and SupportConversation refer to each other, so their fields are thunks
// resolved once every object exists.
type builder struct {
	svc    Services
	logger *slog.Logger

	user         *graphql.Object
	tag          *graphql.Object
	hint         *graphql.Object
	objective    *graphql.Object
	post         *graphql.Object
	conversation *graphql.Object
	challenge    *graphql.Object
}

// New builds the schema.
func New(svc Services, logger *slog.Logger) (graphql.Schema, error) {
	b := &builder{svc: svc, logger: logger}
	b.defineTypes()

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:    b.queryType(),
		Mutation: b.mutationType(),
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("schema: building: %w", err)
	}
	return schema, nil
}

// ===== SOURCE & ARGUMENT HELPERS =====

// source returns the parent value of a field. Lists hand their elements
// over as values, single fields as pointers.
func source[T any](p graphql.ResolveParams) (*T, bool) {
	switch v := p.Source.(type) {
	case *T:
		return v, v != nil
	case T:
		return &v, true
	}
	return nil, false
}

// field resolves a field of T from fn.
func field[T any](fn func(*T) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		src, ok := source[T](p)
		if !ok {
			return nil, nil
		}
		return fn(src), nil
	}
}

func optionalInt(v *int64) any {
	if v == nil {
		return nil
	}
	return int(*v)
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// stringPtrArg distinguishes an omitted (or null) argument from an empty one.
func stringPtrArg(args map[string]any, name string) *string {
	s, ok := args[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func intArg(args map[string]any, name string) int {
	n, _ := args[name].(int)
	return n
}

func int64PtrArg(args map[string]any, name string) *int64 {
	n, ok := args[name].(int)
	if !ok {
		return nil
	}
	v := int64(n)
	return &v
}

// ===== ERROR HELPERS =====

// notFoundAsNull turns a missing row into a null field.
func notFoundAsNull(v any, err error) (any, error) {
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// clientError returns the error to put in the response: the AppError text
// when there is one, otherwise fallback.
func clientError(err error, fallback string) error {
	return errors.New(apperror.Message(err, fallback))
}

// ResolverError returns the error a resolver returned for e. graphql-go
// hands it back wrapped in a *gqlerrors.Error, which does not implement
// Unwrap, so errors.As cannot see through it.
func ResolverError(e gqlerrors.FormattedError) error {
	err := e.OriginalError()
	for {
		wrapped, ok := err.(*gqlerrors.Error)
		if !ok || wrapped.OriginalError == nil {
			return err
		}
		err = wrapped.OriginalError
	}
}
