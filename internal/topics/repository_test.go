package topics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/remote/remotetest"
)

func TestGetUserTopics_FiltersByOwner(t *testing.T) {
	t.Parallel()

	b := remotetest.New()
	ann := remotetest.UserID("ann@example.com")
	bob := remotetest.UserID("bob@example.com")
	b.SeedTopic(ann, "Work")
	b.SeedTopic(bob, "Secret")
	b.SeedTopic(ann, "Home")

	ts, err := NewRepository(b).GetUserTopics(context.Background(), ann)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	require.Equal(t, "Work", ts[0].Title)
	require.Equal(t, "Home", ts[1].Title)
	for _, tp := range ts {
		require.Equal(t, ann, tp.UserID)
	}
}

func TestGetUserTopics_PropagatesRemoteError(t *testing.T) {
	t.Parallel()

	b := remotetest.New()
	b.FailNext(remotetest.OpTopicsList, &errs.RemoteError{Status: 401, Message: "JWT expired"})

	ts, err := NewRepository(b).GetUserTopics(context.Background(), remotetest.UserID("ann@example.com"))
	require.Nil(t, ts)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	var re *errs.RemoteError
	require.ErrorAs(t, err, &re)
}

func TestLoad_AggregatesAfterBothFetches(t *testing.T) {
	t.Parallel()

	b := remotetest.New()
	ann := remotetest.UserID("ann@example.com")
	work := b.SeedTopic(ann, "Work")
	b.SeedSubtopic(ann, model.Subtopic{TopicID: work, Title: "Email"})

	ts, err := NewRepository(b).Load(context.Background(), ann)
	require.NoError(t, err)
	require.Equal(t, []string{remotetest.OpTopicsList, remotetest.OpSubtopicsList}, b.Calls())
	require.Len(t, ts, 1)
	require.Len(t, ts[0].Subtopics, 1)
	require.Equal(t, "Email", ts[0].Subtopics[0].Title)
	require.False(t, ts[0].Subtopics[0].Completed)
}

func TestLoad_SubtopicFailureFailsLoad(t *testing.T) {
	t.Parallel()

	b := remotetest.New()
	ann := remotetest.UserID("ann@example.com")
	b.SeedTopic(ann, "Work")
	b.FailNext(remotetest.OpSubtopicsList, &errs.RemoteError{Status: 500, Message: "boom"})

	_, err := NewRepository(b).Load(context.Background(), ann)
	require.Error(t, err)
}

func TestWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := remotetest.New()
	ann := remotetest.UserID("ann@example.com")
	bob := remotetest.UserID("bob@example.com")
	repo := NewRepository(b)

	require.NoError(t, repo.InsertTopic(ctx, ann, "Groceries"))
	rows := b.TopicRows()
	require.Len(t, rows, 1)
	id := rows[0].ID
	require.Equal(t, ann.String(), rows[0].UserID)

	require.NoError(t, repo.UpdateTopicTitle(ctx, id, "Shopping"))
	require.Equal(t, "Shopping", b.TopicRows()[0].Title)

	require.NoError(t, repo.InsertSubtopic(ctx, ann, model.NewSubtopic{TopicID: id, Title: "Milk", URL: "https://shop.example"}))
	subs := b.SubtopicRows()
	require.Len(t, subs, 1)
	require.False(t, subs[0].Completed)
	require.Equal(t, "https://shop.example", *subs[0].URL)

	// another user's filter does not touch ann's row
	require.NoError(t, repo.SetSubtopicCompleted(ctx, bob, subs[0].ID, true))
	require.False(t, b.SubtopicRows()[0].Completed)
	require.NoError(t, repo.SetSubtopicCompleted(ctx, ann, subs[0].ID, true))
	require.True(t, b.SubtopicRows()[0].Completed)

	require.NoError(t, repo.DeleteTopic(ctx, id))
	require.Empty(t, b.TopicRows())
	require.Empty(t, b.SubtopicRows())
}
