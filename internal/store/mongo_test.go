package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestToAggregation(t *testing.T) {
	stages, err := toAggregation(Pipeline{
		Match(HasPrefix("id", "article."), Gt("id", "article.00003"), Eq("state", "Published")),
		Sort("id", false),
		Unwind("versions"),
		Match(Eq("versions.languageCode", "en"), ElemMatch("versions.metadata", Eq("slug", "a.b"), Eq("type", "Tag"))),
		Limit(5),
		ReplaceRoot("versions"),
	})
	require.NoError(t, err)

	want := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "id", Value: bson.D{{Key: "$regex", Value: primitive.Regex{Pattern: `^article\.`}}}}},
			bson.D{{Key: "id", Value: bson.D{{Key: "$gt", Value: "article.00003"}}}},
			bson.D{{Key: "state", Value: "Published"}},
		}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "id", Value: 1}}}},
		{{Key: "$unwind", Value: "$versions"}},
		{{Key: "$match", Value: bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "versions.languageCode", Value: "en"}},
			bson.D{{Key: "versions.metadata", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "slug", Value: "a.b"}},
				bson.D{{Key: "type", Value: "Tag"}},
			}}}}}}},
		}}}}},
		{{Key: "$limit", Value: 5}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$versions"}}}},
	}
	require.Equal(t, want, stages)
}

func TestToAggregationSingleConditionAndDescending(t *testing.T) {
	stages, err := toAggregation(Pipeline{Match(Eq("id", "metadata")), Sort("published", true)})
	require.NoError(t, err)
	require.Equal(t, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "id", Value: "metadata"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "published", Value: -1}}}},
	}, stages)
}

func TestToAggregationRejectsUnknownStage(t *testing.T) {
	_, err := toAggregation(Pipeline{{Kind: StageKind(99)}})
	require.Error(t, err)
}
