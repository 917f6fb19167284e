package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"live_engagement/internal/domain"
	apperrors "live_engagement/pkg/errors"
)

func TestPostMessageEnqueuesUserStep(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	msg, err := f.engagement.PostMessage(ctx, testRoom, domain.KindQAndA, "  When is the demo?  ", "10.1.0.1")
	require.NoError(t, err)

	assert.Equal(t, "When is the demo?", msg.Text)
	assert.False(t, msg.IsAIAuthored)
	assert.True(t, msg.IsTopLevel())

	queued := f.queued(t)
	require.Len(t, queued, 1)
	assert.Equal(t, domain.StepQuestionToUser, queued[0].Step)
	assert.Equal(t, domain.KindQAndA, queued[0].Kind)
	assert.Equal(t, msg.Sender, queued[0].SenderName)
	assert.Equal(t, msg.ID, queued[0].ParentMessageID)

	assert.Equal(t, []string{domain.EventCreateQuestion, domain.EventFetchMessages}, f.broadcaster.types())
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestPostReplyStepDependsOnParentAuthor(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	human := f.messages.seed(t, domain.NewMessage(testRoom, domain.KindComment, "Good point", "Ann", "", false, nil))
	ai := f.messages.seed(t, domain.NewMessage(testRoom, domain.KindComment, "Welcome all", "Host", "", true, nil))

	reply, err := f.engagement.PostReply(ctx, testRoom, human.ID, domain.KindComment, "Indeed", "10.1.0.2")
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, human.ID, *reply.ParentID)

	_, err = f.engagement.PostReply(ctx, testRoom, ai.ID, domain.KindComment, "Thanks", "10.1.0.2")
	require.NoError(t, err)

	queued := f.queued(t)
	require.Len(t, queued, 2)
	assert.Equal(t, domain.StepCommentToUser, queued[0].Step)
	assert.Equal(t, human.ID, queued[0].ParentMessageID)
	assert.Equal(t, domain.StepCommentToAI, queued[1].Step)
	assert.Equal(t, ai.ID, queued[1].ParentMessageID)

	parent, err := f.messages.GetByID(ctx, human.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{reply.ID}, parent.Replies)
}

func TestPostReplyValidation(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	question := f.messages.seed(t, domain.NewMessage(testRoom, domain.KindQAndA, "Why?", "Ann", "", false, nil))
	other := domain.NewRoomKey("R2", domain.CategorySlide)
	f.sessions.add(openSession(other, true, true))
	elsewhere := f.messages.seed(t, domain.NewMessage(other, domain.KindComment, "Hi", "Bob", "", false, nil))

	_, err := f.engagement.PostReply(ctx, testRoom, question.ID, domain.KindComment, "Because", "10.1.0.3")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = f.engagement.PostReply(ctx, testRoom, elsewhere.ID, domain.KindComment, "Hey", "10.1.0.3")
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)

	_, err = f.engagement.PostReply(ctx, testRoom, uuid.New(), domain.KindComment, "Hey", "10.1.0.3")
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)

	assert.Empty(t, f.queued(t))
	assert.Zero(t, f.dispatcher.count())
}

func TestPostMessageRejectsInvalidInput(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	_, err := f.engagement.PostMessage(ctx, testRoom, domain.KindComment, "   ", "10.1.0.4")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = f.engagement.PostMessage(ctx, domain.NewRoomKey("nope", domain.CategoryChannel), domain.KindComment, "Hi", "10.1.0.4")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	_, err = f.engagement.PostMessage(ctx, domain.RoomKey{Code: "R1"}, domain.KindComment, "Hi", "10.1.0.4")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	require.NoError(t, f.engagement.EndSession(ctx, testRoom, testPresenter))
	_, err = f.engagement.PostMessage(ctx, testRoom, domain.KindComment, "Hi", "10.1.0.4")
	assert.ErrorIs(t, err, apperrors.ErrSessionEnded)
}

func TestSameIPKeepsGuestIdentity(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	first, err := f.engagement.PostMessage(ctx, testRoom, domain.KindComment, "one", "10.1.0.5")
	require.NoError(t, err)
	second, err := f.engagement.PostMessage(ctx, testRoom, domain.KindComment, "two", "10.1.0.5")
	require.NoError(t, err)

	assert.Equal(t, first.Sender, second.Sender)
	assert.Equal(t, first.SenderImage, second.SenderImage)
	assert.NotEmpty(t, first.Sender)
}

func TestToggleAutoReplyRequiresPresenter(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	err := f.engagement.ToggleAutoReply(ctx, testRoom, "someone-else", domain.KindComment, false)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, f.engagement.ToggleAutoReply(ctx, testRoom, testPresenter, domain.KindComment, false))
	require.NoError(t, f.engagement.ToggleAutoReply(ctx, testRoom, testPresenter, domain.KindComment, false))

	override, err := f.state.Override(ctx, testRoom, domain.KindComment)
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.False(t, *override)

	assert.Equal(t, 2, f.dispatcher.count())
	assert.Equal(t, []string{domain.EventTypeAutoReplyToggled, domain.EventTypeAutoReplyToggled}, f.audit.types())
}

func TestEndSessionIsIdempotent(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	require.NoError(t, f.engagement.EndSession(ctx, testRoom, testPresenter))
	require.NoError(t, f.engagement.EndSession(ctx, testRoom, testPresenter))

	ended, err := f.state.IsEnded(ctx, testRoom)
	require.NoError(t, err)
	assert.True(t, ended)

	session, err := f.sessions.GetByCode(ctx, testRoom)
	require.NoError(t, err)
	assert.NotNil(t, session.EndedAt)
	assert.Equal(t, 2, f.dispatcher.count())
}

func TestStartAICommentSeedsTopLevelMessage(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	f.generator.fn = func(_ int, req GenerationRequest) (*GenerationResult, error) {
		return &GenerationResult{Text: "What did everyone think of slide 3?", ThreadID: "th-seed"}, nil
	}

	msg, err := f.engagement.StartAIComment(ctx, testRoom, testPresenter)
	require.NoError(t, err)

	assert.True(t, msg.IsAIAuthored)
	assert.True(t, msg.IsTopLevel())
	assert.Equal(t, "Host", msg.Sender)
	assert.Equal(t, domain.KindComment, msg.Kind)
	require.NotNil(t, msg.ThreadID)
	assert.Equal(t, "th-seed", *msg.ThreadID)

	reqs := f.generator.requests()
	require.Len(t, reqs, 1)
	assert.Nil(t, reqs[0].ThreadID)
	assert.Contains(t, reqs[0].Prompt, "Quarterly review")

	assert.Equal(t, []string{
		domain.EventIsTypingComment,
		domain.EventIsTypingComment,
		domain.EventCreateComment,
		domain.EventFetchMessages,
	}, f.broadcaster.types())
	assert.Empty(t, f.queued(t))
	assert.Zero(t, f.dispatcher.count())
	assert.Contains(t, f.audit.types(), domain.EventTypeAIMessageSeeded)
}

func TestStartAIQuestionUsesQAndAHost(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)

	msg, err := f.engagement.StartAIQuestion(context.Background(), testRoom, testPresenter)
	require.NoError(t, err)
	assert.Equal(t, "Q&A Host", msg.Sender)
	assert.Equal(t, domain.KindQAndA, msg.Kind)
	assert.Len(t, f.broadcaster.ofType(domain.EventCreateQuestion), 1)
}

func TestStartAIRejectsEndedSession(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	require.NoError(t, f.engagement.EndSession(ctx, testRoom, testPresenter))
	_, err := f.engagement.StartAIQuestion(ctx, testRoom, testPresenter)
	assert.ErrorIs(t, err, apperrors.ErrSessionEnded)
	assert.Empty(t, f.generator.requests())
}

func TestStartAIGenerationFailureEmitsError(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	f.generator.fn = func(int, GenerationRequest) (*GenerationResult, error) {
		return nil, apperrors.ErrGenerationExhausted
	}

	_, err := f.engagement.StartAIComment(context.Background(), testRoom, testPresenter)
	assert.True(t, errors.Is(err, apperrors.ErrGenerationExhausted))
	assert.Empty(t, f.messages.all())
	assert.Len(t, f.broadcaster.ofType(domain.EventError), 1)
}

func TestLikeIsIdempotentPerParticipant(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	msg := f.messages.seed(t, domain.NewMessage(testRoom, domain.KindComment, "Like me", "Ann", "", false, nil))

	liked, err := f.engagement.Like(ctx, msg.ID, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikeCount)

	liked, err = f.engagement.Like(ctx, msg.ID, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikeCount)

	liked, err = f.engagement.Like(ctx, msg.ID, "p-2")
	require.NoError(t, err)
	assert.Equal(t, 2, liked.LikeCount)
	assert.Len(t, f.broadcaster.ofType(domain.EventFetchMessages), 3)

	_, err = f.engagement.Like(ctx, msg.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestListingNestsReplies(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	top := f.messages.seed(t, domain.NewMessage(testRoom, domain.KindComment, "Top", "Ann", "", false, nil))
	child := f.messages.seed(t, domain.NewMessage(testRoom, domain.KindComment, "Child", "Bob", "", false, &top.ID))
	f.messages.seed(t, domain.NewMessage(testRoom, domain.KindComment, "Grandchild", "Ann", "", false, &child.ID))
	f.messages.seed(t, domain.NewMessage(testRoom, domain.KindQAndA, "Other kind", "Ann", "", false, nil))

	threads, err := f.engagement.Listing(ctx, testRoom, domain.KindComment)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Len(t, threads[0].ReplyMessages, 1)
	assert.Equal(t, "Child", threads[0].ReplyMessages[0].Text)
	require.Len(t, threads[0].ReplyMessages[0].ReplyMessages, 1)
	assert.Equal(t, "Grandchild", threads[0].ReplyMessages[0].ReplyMessages[0].Text)
}

func TestStateReportsRoomProgress(t *testing.T) {
	f := newEngagementFixture(t, openSession(testRoom, true, true), syncConfig)
	ctx := context.Background()

	_, err := f.engagement.PostMessage(ctx, testRoom, domain.KindComment, "Hi", "10.1.0.6")
	require.NoError(t, err)
	require.NoError(t, f.engagement.ToggleAutoReply(ctx, testRoom, testPresenter, domain.KindQAndA, false))

	state, err := f.engagement.State(ctx, testRoom, testPresenter)
	require.NoError(t, err)
	assert.Equal(t, domain.StepCommentToAI, state.Step)
	assert.False(t, state.Ended)
	assert.Equal(t, int64(1), state.QueueSize)
	assert.Equal(t, map[domain.EngagementKind]bool{domain.KindQAndA: false}, state.Overrides)

	_, err = f.engagement.State(ctx, testRoom, "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
