package schema

import (
	"github.com/graphql-go/graphql"

	"github.com/sakif/support-desk/internal/model"
	"github.com/sakif/support-desk/internal/repository"
	"github.com/sakif/support-desk/internal/service"
)

func pageArgs(args graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	args["page"] = &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: service.DefaultPage}
	args["pageSize"] = &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: service.DefaultPageSize}
	return args
}

func (b *builder) queryType() *graphql.Object {
	conversationPage := pageType("PaginatedConversations", b.conversation)
	challengePage := pageType("PaginatedChallenges", b.challenge)

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"challenges": {
				Type: graphql.NewList(b.challenge),
				Args: graphql.FieldConfigArgument{
					"search": {Type: graphql.String},
					"tag":    {Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return b.svc.Challenges.List(p.Context, stringArg(p.Args, "search"), stringArg(p.Args, "tag"))
				},
			},

			"challenge": {
				Type: b.challenge,
				Args: graphql.FieldConfigArgument{
					"publicId": {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return notFoundAsNull(b.svc.Challenges.Get(p.Context, stringArg(p.Args, "publicId")))
				},
			},

			"conversation": {
				Type: b.conversation,
				Args: graphql.FieldConfigArgument{
					"id": {Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return notFoundAsNull(b.svc.Conversations.Get(p.Context, int64(intArg(p.Args, "id"))))
				},
			},

			"conversationsByChallenge": {
				Type: graphql.NewList(b.conversation),
				Args: graphql.FieldConfigArgument{
					"challengePublicId": {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return b.svc.Conversations.ListByChallenge(p.Context, stringArg(p.Args, "challengePublicId"))
				},
			},

			"tags": {
				Type: graphql.NewList(b.tag),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return b.svc.Challenges.Tags(p.Context)
				},
			},

			"conversationsPaged": {
				Type: conversationPage,
				Args: pageArgs(graphql.FieldConfigArgument{
					"status":            {Type: graphql.String},
					"category":          {Type: graphql.String},
					"search":            {Type: graphql.String},
					"challengePublicId": {Type: graphql.String},
					"assignedToUserId":  {Type: graphql.Int},
				}),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					filter := repository.ConversationFilter{
						Status:            model.Status(stringArg(p.Args, "status")),
						Category:          stringArg(p.Args, "category"),
						Search:            stringArg(p.Args, "search"),
						ChallengePublicID: stringArg(p.Args, "challengePublicId"),
						AssignedToUserID:  int64PtrArg(p.Args, "assignedToUserId"),
					}
					page, err := b.svc.Conversations.ListPaged(p.Context, filter,
						intArg(p.Args, "page"), intArg(p.Args, "pageSize"))
					if err != nil {
						return nil, clientError(err, "Failed to load conversations")
					}
					if page.Items == nil {
						page.Items = []model.Conversation{}
					}
					return map[string]any{"items": page.Items, "total": page.Total}, nil
				},
			},

			"challengesPaged": {
				Type: challengePage,
				Args: pageArgs(graphql.FieldConfigArgument{
					"search": {Type: graphql.String},
					"tag":    {Type: graphql.String},
				}),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					page, err := b.svc.Challenges.ListPaged(p.Context,
						stringArg(p.Args, "search"), stringArg(p.Args, "tag"),
						intArg(p.Args, "page"), intArg(p.Args, "pageSize"))
					if err != nil {
						return nil, clientError(err, "Failed to load challenges")
					}
					if page.Items == nil {
						page.Items = []model.Challenge{}
					}
					return map[string]any{"items": page.Items, "total": page.Total}, nil
				},
			},

			"conversationCategories": {
				Type: graphql.NewList(graphql.String),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return b.svc.Conversations.Categories(p.Context)
				},
			},

			"assignedUsers": {
				Type: graphql.NewList(b.user),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return b.svc.Conversations.AssignedUsers(p.Context)
				},
			},
		},
	})
}
