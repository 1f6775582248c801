package schema

import (
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/auth"
	"github.com/sakif/support-desk/internal/service"
)

// Messages for failures the client should not see the details of.
const (
	msgCreateFailed = "Failed to create conversation"
	msgAddFailed    = "Failed to add reply"
	msgAssignFailed = "Failed to assign conversation"
	msgStatusFailed = "Failed to update conversation status"
	msgSyncFailed   = "Failed to sync user"
)

// payload builds a mutation result type {ok, <name>: <item>}.
func payload(typeName, name string, item *graphql.Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.Fields{
			"ok": {Type: graphql.Boolean},
			name: {Type: item},
		},
	})
}

func result(name string, v any) map[string]any {
	return map[string]any{"ok": true, name: v}
}

func notOK() map[string]any {
	return map[string]any{"ok": false}
}

// asAuthError turns a service-level permission failure into the 403 auth
// error the HTTP layer renders as {code, description}.
func asAuthError(err error) error {
	if errors.Is(err, apperror.ErrForbidden) {
		return auth.Forbidden(apperror.Message(err, "Forbidden"))
	}
	return nil
}

func (b *builder) mutationType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"syncUser":                 b.syncUserField(),
			"createConversation":       b.createConversationField(),
			"addPost":                  b.addPostField(),
			"assignConversation":       b.assignConversationField(),
			"updateConversationStatus": b.updateStatusField(),
		},
	})
}

func (b *builder) syncUserField() *graphql.Field {
	return &graphql.Field{
		Type: payload("SyncUserPayload", "user", b.user),
		Args: graphql.FieldConfigArgument{
			"email":    {Type: graphql.NewNonNull(graphql.String)},
			"username": {Type: graphql.NewNonNull(graphql.String)},
			"auth0Id":  {Type: graphql.NewNonNull(graphql.String)},
			"name":     {Type: graphql.String},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			user, err := b.svc.Users.SyncUser(p.Context, service.SyncUserInput{
				Email:    stringArg(p.Args, "email"),
				Username: stringArg(p.Args, "username"),
				Subject:  stringArg(p.Args, "auth0Id"),
				Name:     stringPtrArg(p.Args, "name"),
			})
			switch {
			case errors.Is(err, apperror.ErrValidation):
				return notOK(), nil
			case errors.Is(err, apperror.ErrConflict):
				return nil, clientError(err, msgSyncFailed)
			case err != nil:
				return nil, errors.New(msgSyncFailed)
			}
			return result("user", user), nil
		},
	}
}

func (b *builder) createConversationField() *graphql.Field {
	return &graphql.Field{
		Type: payload("CreateConversationPayload", "conversation", b.conversation),
		Args: graphql.FieldConfigArgument{
			"challengePublicId": {Type: graphql.NewNonNull(graphql.String)},
			"topic":             {Type: graphql.NewNonNull(graphql.String)},
			"category":          {Type: graphql.String},
			"firstPost":         {Type: graphql.String},
			"authorDisplayName": {Type: graphql.String},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			conv, err := b.svc.Conversations.CreateConversation(p.Context, service.CreateConversationInput{
				ChallengePublicID: stringArg(p.Args, "challengePublicId"),
				Topic:             stringArg(p.Args, "topic"),
				Category:          stringPtrArg(p.Args, "category"),
				FirstPost:         stringPtrArg(p.Args, "firstPost"),
				AuthorDisplayName: stringPtrArg(p.Args, "authorDisplayName"),
			}, auth.OptionalIdentity(p.Context))
			switch {
			case errors.Is(err, apperror.ErrValidation):
				return notOK(), nil
			case errors.Is(err, apperror.ErrNotFound):
				return nil, clientError(err, msgCreateFailed)
			case err != nil:
				return nil, errors.New(msgCreateFailed)
			}
			return result("conversation", conv), nil
		},
	}
}

func (b *builder) addPostField() *graphql.Field {
	return &graphql.Field{
		Type: payload("AddPostPayload", "post", b.post),
		Args: graphql.FieldConfigArgument{
			"conversationId":    {Type: graphql.NewNonNull(graphql.Int)},
			"content":           {Type: graphql.NewNonNull(graphql.String)},
			"authorDisplayName": {Type: graphql.String},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			post, err := b.svc.Conversations.AddPost(p.Context,
				int64(intArg(p.Args, "conversationId")),
				stringArg(p.Args, "content"),
				stringPtrArg(p.Args, "authorDisplayName"),
				auth.OptionalIdentity(p.Context),
			)
			switch {
			case errors.Is(err, apperror.ErrValidation):
				return notOK(), nil
			case errors.Is(err, apperror.ErrNotFound):
				return nil, clientError(err, msgAddFailed)
			case err != nil:
				return nil, errors.New(msgAddFailed)
			}
			return result("post", post), nil
		},
	}
}

// assignConversationField needs a verified caller. Missing or bad
// credentials surface as the auth error itself so the HTTP layer can answer
// 401/403.
func (b *builder) assignConversationField() *graphql.Field {
	return &graphql.Field{
		Type: payload("AssignConversationPayload", "conversation", b.conversation),
		Args: graphql.FieldConfigArgument{
			"conversationId": {Type: graphql.NewNonNull(graphql.Int)},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			caller, err := auth.RequireIdentity(p.Context, "")
			if err != nil {
				return nil, err
			}

			conv, err := b.svc.Conversations.AssignConversation(p.Context,
				int64(intArg(p.Args, "conversationId")), caller.Roles, caller)
			if authErr := asAuthError(err); authErr != nil {
				return nil, authErr
			}
			switch {
			case errors.Is(err, apperror.ErrNotFound):
				return nil, clientError(err, msgAssignFailed)
			case err != nil:
				return nil, errors.New(msgAssignFailed)
			}
			return result("conversation", conv), nil
		},
	}
}

func (b *builder) updateStatusField() *graphql.Field {
	return &graphql.Field{
		Type: payload("UpdateConversationStatusPayload", "conversation", b.conversation),
		Args: graphql.FieldConfigArgument{
			"conversationId": {Type: graphql.NewNonNull(graphql.Int)},
			"status":         {Type: graphql.NewNonNull(graphql.String)},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			caller, err := auth.RequireIdentity(p.Context, "")
			if err != nil {
				return nil, err
			}

			conv, err := b.svc.Conversations.UpdateStatus(p.Context,
				int64(intArg(p.Args, "conversationId")), stringArg(p.Args, "status"), caller.Roles)
			if authErr := asAuthError(err); authErr != nil {
				return nil, authErr
			}
			switch {
			case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrNotFound):
				return notOK(), nil
			case err != nil:
				return nil, errors.New(msgStatusFailed)
			}
			return result("conversation", conv), nil
		},
	}
}
