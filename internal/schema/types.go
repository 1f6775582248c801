package schema

import (
	"github.com/graphql-go/graphql"

	"github.com/sakif/support-desk/internal/model"
)

func (b *builder) defineTypes() {
	b.user = graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":       {Type: graphql.NewNonNull(graphql.Int), Resolve: field(func(u *model.User) any { return int(u.ID) })},
			"auth0Id":  {Type: graphql.String, Resolve: field(func(u *model.User) any { return u.Subject })},
			"email":    {Type: graphql.String},
			"username": {Type: graphql.String},
			"name":     {Type: graphql.String, Resolve: field(func(u *model.User) any { return optionalString(u.Name) })},
			"roles": {
				Type: graphql.NewList(graphql.String),
				Resolve: field(func(u *model.User) any {
					if u.Roles == nil {
						return []string{}
					}
					return u.Roles
				}),
			},
			"createdAt": {Type: graphql.DateTime},
			"updatedAt": {Type: graphql.DateTime},
		},
	})

	b.tag = graphql.NewObject(graphql.ObjectConfig{
		Name: "Tag",
		Fields: graphql.Fields{
			"id":   {Type: graphql.NewNonNull(graphql.Int), Resolve: field(func(t *model.Tag) any { return int(t.ID) })},
			"name": {Type: graphql.String},
		},
	})

	b.hint = graphql.NewObject(graphql.ObjectConfig{
		Name: "ChallengeHint",
		Fields: graphql.Fields{
			"id":          {Type: graphql.NewNonNull(graphql.Int), Resolve: field(func(h *model.ChallengeHint) any { return int(h.ID) })},
			"challengeId": {Type: graphql.Int, Resolve: field(func(h *model.ChallengeHint) any { return int(h.ChallengeID) })},
			"text":        {Type: graphql.String},
		},
	})

	b.objective = graphql.NewObject(graphql.ObjectConfig{
		Name: "LearningObjective",
		Fields: graphql.Fields{
			"id":          {Type: graphql.NewNonNull(graphql.Int), Resolve: field(func(o *model.LearningObjective) any { return int(o.ID) })},
			"challengeId": {Type: graphql.Int, Resolve: field(func(o *model.LearningObjective) any { return int(o.ChallengeID) })},
			"text":        {Type: graphql.String},
		},
	})

	b.post = graphql.NewObject(graphql.ObjectConfig{
		Name: "ConversationPost",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":                {Type: graphql.NewNonNull(graphql.Int), Resolve: field(func(p *model.Post) any { return int(p.ID) })},
				"conversationId":    {Type: graphql.Int, Resolve: field(func(p *model.Post) any { return int(p.ConversationID) })},
				"authorUserId":      {Type: graphql.Int, Resolve: field(func(p *model.Post) any { return optionalInt(p.AuthorUserID) })},
				"authorDisplayName": {Type: graphql.String, Resolve: field(func(p *model.Post) any { return optionalString(p.AuthorDisplayName) })},
				"content":           {Type: graphql.String},
				"createdAt":         {Type: graphql.DateTime},
				"author": {
					Type: b.user,
					Resolve: func(p graphql.ResolveParams) (any, error) {
						post, ok := source[model.Post](p)
						if !ok || post.AuthorUserID == nil {
							return nil, nil
						}
						return notFoundAsNull(b.svc.Users.Get(p.Context, *post.AuthorUserID))
					},
				},
			}
		}),
	})

	b.conversation = graphql.NewObject(graphql.ObjectConfig{
		Name:   "SupportConversation",
		Fields: graphql.FieldsThunk(b.conversationFields),
	})

	b.challenge = graphql.NewObject(graphql.ObjectConfig{
		Name:   "Challenge",
		Fields: graphql.FieldsThunk(b.challengeFields),
	})
}

// userByID resolves an optional user reference to a User field.
func (b *builder) userByID(p graphql.ResolveParams, id *int64) (any, error) {
	if id == nil {
		return nil, nil
	}
	return notFoundAsNull(b.svc.Users.Get(p.Context, *id))
}

func (b *builder) conversationFields() graphql.Fields {
	return graphql.Fields{
		"id":               {Type: graphql.NewNonNull(graphql.Int), Resolve: field(func(c *model.Conversation) any { return int(c.ID) })},
		"identifier":       {Type: graphql.String},
		"topic":            {Type: graphql.String},
		"category":         {Type: graphql.String, Resolve: field(func(c *model.Conversation) any { return optionalString(c.Category) })},
		"status":           {Type: graphql.String, Resolve: field(func(c *model.Conversation) any { return string(c.Status) })},
		"priority":         {Type: graphql.String, Resolve: field(func(c *model.Conversation) any { return optionalString(c.Priority) })},
		"challengeId":      {Type: graphql.Int, Resolve: field(func(c *model.Conversation) any { return optionalInt(c.ChallengeID) })},
		"createdByUserId":  {Type: graphql.Int, Resolve: field(func(c *model.Conversation) any { return optionalInt(c.CreatedByUserID) })},
		"assignedToUserId": {Type: graphql.Int, Resolve: field(func(c *model.Conversation) any { return optionalInt(c.AssignedToUserID) })},
		"createdAt":        {Type: graphql.DateTime},
		"updatedAt":        {Type: graphql.DateTime},
		"posts": {
			Type: graphql.NewList(b.post),
			Resolve: func(p graphql.ResolveParams) (any, error) {
				conv, ok := source[model.Conversation](p)
				if !ok {
					return nil, nil
				}
				return b.svc.Conversations.Posts(p.Context, conv.ID)
			},
		},
		"challenge": {
			Type: b.challenge,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				conv, ok := source[model.Conversation](p)
				if !ok || conv.ChallengeID == nil {
					return nil, nil
				}
				return notFoundAsNull(b.svc.Challenges.GetByID(p.Context, *conv.ChallengeID))
			},
		},
		"createdBy": {
			Type: b.user,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				conv, ok := source[model.Conversation](p)
				if !ok {
					return nil, nil
				}
				return b.userByID(p, conv.CreatedByUserID)
			},
		},
		"assignedSupport": {
			Type: b.user,
			Resolve: func(p graphql.ResolveParams) (any, error) {
				conv, ok := source[model.Conversation](p)
				if !ok {
					return nil, nil
				}
				return b.userByID(p, conv.AssignedToUserID)
			},
		},
	}
}

func (b *builder) challengeFields() graphql.Fields {
	// byChallenge resolves a list owned by the parent challenge.
	byChallenge := func(load func(p graphql.ResolveParams, c *model.Challenge) (any, error)) graphql.FieldResolveFn {
		return func(p graphql.ResolveParams) (any, error) {
			c, ok := source[model.Challenge](p)
			if !ok {
				return nil, nil
			}
			return load(p, c)
		}
	}

	return graphql.Fields{
		"id":                    {Type: graphql.NewNonNull(graphql.Int), Resolve: field(func(c *model.Challenge) any { return int(c.ID) })},
		"publicId":              {Type: graphql.String},
		"title":                 {Type: graphql.String},
		"description":           {Type: graphql.String, Resolve: field(func(c *model.Challenge) any { return optionalString(c.Description) })},
		"category":              {Type: graphql.String, Resolve: field(func(c *model.Challenge) any { return optionalString(c.Category) })},
		"difficulty":            {Type: graphql.String, Resolve: field(func(c *model.Challenge) any { return optionalString(c.Difficulty) })},
		"points":                {Type: graphql.Int, Resolve: field(func(c *model.Challenge) any { return optionalInt(c.Points) })},
		"assignedSupportUserId": {Type: graphql.Int, Resolve: field(func(c *model.Challenge) any { return optionalInt(c.AssignedSupportUserID) })},
		"createdAt":             {Type: graphql.DateTime},
		"updatedAt":             {Type: graphql.DateTime},
		"tags": {
			Type: graphql.NewList(b.tag),
			Resolve: byChallenge(func(p graphql.ResolveParams, c *model.Challenge) (any, error) {
				return b.svc.Challenges.ChallengeTags(p.Context, c.ID)
			}),
		},
		"hints": {
			Type: graphql.NewList(b.hint),
			Resolve: byChallenge(func(p graphql.ResolveParams, c *model.Challenge) (any, error) {
				return b.svc.Challenges.Hints(p.Context, c.ID)
			}),
		},
		"learningObjectives": {
			Type: graphql.NewList(b.objective),
			Resolve: byChallenge(func(p graphql.ResolveParams, c *model.Challenge) (any, error) {
				return b.svc.Challenges.LearningObjectives(p.Context, c.ID)
			}),
		},
		"conversations": {
			Type: graphql.NewList(b.conversation),
			Resolve: byChallenge(func(p graphql.ResolveParams, c *model.Challenge) (any, error) {
				return b.svc.Conversations.ListByChallenge(p.Context, c.PublicID)
			}),
		},
		"assignedSupport": {
			Type: b.user,
			Resolve: byChallenge(func(p graphql.ResolveParams, c *model.Challenge) (any, error) {
				return b.userByID(p, c.AssignedSupportUserID)
			}),
		},
	}
}

// pageType wraps a list type in {items, total}.
func pageType(name string, item *graphql.Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.Fields{
			"items": {Type: graphql.NewList(item)},
			"total": {Type: graphql.Int},
		},
	})
}
