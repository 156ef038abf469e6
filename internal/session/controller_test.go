package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/internal/remote"
	"github.com/capitalize-ai/querychat/internal/render"
	"github.com/capitalize-ai/querychat/internal/store"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

type executorFunc func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error)

func (f executorFunc) ExecuteQuery(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	return f(ctx, req)
}

type fakeView struct {
	mu          sync.Mutex
	loading     []bool
	suggestions []bool
}

func (v *fakeView) ClearMessages()                                       {}
func (v *fakeView) ShowMessage(conversationID string, msg model.Message) {}
func (v *fakeView) RenderList(conversations []model.ConversationSummary) {}

func (v *fakeView) SetSuggestionsVisible(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.suggestions = append(v.suggestions, visible)
}

func (v *fakeView) SetLoading(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = append(v.loading, visible)
}

type fakeAuth struct {
	logouts atomic.Int32
}

func (a *fakeAuth) Logout() { a.logouts.Add(1) }

func newController(t *testing.T, exec Executor, cfg Config) (*Controller, *store.Store, *fakeView, *fakeAuth) {
	t.Helper()
	view := &fakeView{}
	st := store.New(nil, view, logger.NewNop())
	auth := &fakeAuth{}
	expiry := NewExpiry(auth, 20*time.Millisecond, logger.NewNop())
	t.Cleanup(expiry.Close)
	ctrl := NewController(st, exec, view, expiry, cfg, logger.NewNop())
	return ctrl, st, view, auth
}

func messages(t *testing.T, st *store.Store, id string) []model.Message {
	t.Helper()
	conv, ok := st.Conversation(id)
	require.True(t, ok)
	return conv.Messages
}

func TestTableResultTurn(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{
			SQL: "SELECT id FROM t",
			Result: &model.TableResult{
				Columns: []string{"id"},
				Rows:    [][]any{{1}, {2}},
			},
		}, nil
	})
	ctrl, st, view, _ := newController(t, exec, Config{})

	res, err := ctrl.Submit(context.Background(), "show rows")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTable, res.Outcome)
	assert.Equal(t, "SELECT id FROM t", res.GeneratedQuery)
	assert.Equal(t, st.CurrentID(), res.ConversationID)
	assert.False(t, ctrl.InFlight())

	msgs := messages(t, st, res.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "show rows", msgs[0].Content)
	assert.Equal(t, "SELECT id FROM t", msgs[0].GeneratedQuery)
	assert.True(t, msgs[1].IsHTML)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(msgs[1].Content))
	require.NoError(t, err)
	assert.Equal(t, "2 rows returned", strings.TrimSpace(doc.Find(".table-info").Text()))
	assert.Equal(t, 3, doc.Find("tr").Length())

	assert.Equal(t, []bool{true, false}, view.loading)
	assert.Contains(t, view.suggestions, false)

	assert.Equal(t, []model.ContextPair{{Query: "show rows", GeneratedQuery: "SELECT id FROM t"}}, st.GetContext(res.ConversationID))
}

func TestSubmitSendsContextWindow(t *testing.T) {
	var seen [][]model.ContextPair
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		seen = append(seen, req.ConversationHistory)
		return &model.QueryResponse{SQL: "SELECT " + req.Query}, nil
	})
	ctrl, _, _, _ := newController(t, exec, Config{})

	for _, q := range []string{"a", "b", "c"} {
		_, err := ctrl.Submit(context.Background(), q)
		require.NoError(t, err)
	}

	require.Len(t, seen, 3)
	assert.Empty(t, seen[0])
	assert.Equal(t, []model.ContextPair{
		{Query: "a", GeneratedQuery: "SELECT a"},
		{Query: "b", GeneratedQuery: "SELECT b"},
	}, seen[2])
}

func TestEmptyQueryRejected(t *testing.T) {
	ctrl, st, _, _ := newController(t, executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		t.Fatal("executor must not be called")
		return nil, nil
	}), Config{})

	_, err := ctrl.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 0, st.Len())
}

func TestSecondSubmitRejectedWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		if req.Query == "first" {
			close(started)
			<-release
		}
		return &model.QueryResponse{}, nil
	})
	ctrl, _, _, _ := newController(t, exec, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Submit(context.Background(), "first")
		done <- err
	}()
	<-started

	assert.True(t, ctrl.InFlight())
	_, err := ctrl.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrQueryInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, ctrl.InFlight())

	_, err = ctrl.Submit(context.Background(), "second")
	assert.NoError(t, err)
}

func TestUnauthorizedSchedulesLogout(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		return nil, remote.ErrUnauthorized
	})
	ctrl, st, view, auth := newController(t, exec, Config{})

	res, err := ctrl.Submit(context.Background(), "show rows")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, res.Outcome)
	assert.False(t, ctrl.InFlight())
	assert.Equal(t, []bool{true, false}, view.loading)

	msgs := messages(t, st, res.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, render.SessionExpiredNotice, msgs[1].Content)
	assert.Empty(t, msgs[0].GeneratedQuery)

	assert.Equal(t, int32(0), auth.logouts.Load())
	require.Eventually(t, func() bool { return auth.logouts.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctrl, st, _, auth := newController(t, exec, Config{QueryTimeout: 20 * time.Millisecond})

	res, err := ctrl.Submit(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransport, res.Outcome)
	assert.False(t, ctrl.InFlight())
	assert.Equal(t, int32(0), auth.logouts.Load())

	msgs := messages(t, st, res.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, render.ConnectionErrorNotice, msgs[1].Content)
	assert.Empty(t, msgs[0].GeneratedQuery)
}

func TestCallerCancellationDoesNotAbortTurn(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		time.Sleep(10 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &model.QueryResponse{SQL: "SELECT 1"}, nil
	})
	ctrl, _, _, _ := newController(t, exec, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := ctrl.Submit(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTable, res.Outcome)
}

func TestDomainErrorTurn(t *testing.T) {
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{Result: &model.TableResult{Error: "no such table: t"}}, nil
	})
	ctrl, st, _, _ := newController(t, exec, Config{})

	res, err := ctrl.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDomainError, res.Outcome)

	msgs := messages(t, st, res.ConversationID)
	assert.Equal(t, "Error: no such table: t", msgs[1].Content)
	assert.False(t, msgs[1].IsHTML)
}

func TestChartTurn(t *testing.T) {
	chart := map[string]any{"type": "bar"}
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		return &model.QueryResponse{ResponseType: model.ResponseTypeChart, Chart: chart, SQL: "SELECT 1"}, nil
	})
	ctrl, st, _, _ := newController(t, exec, Config{})

	res, err := ctrl.Submit(context.Background(), "plot it")
	require.NoError(t, err)
	assert.Equal(t, OutcomeChart, res.Outcome)

	msgs := messages(t, st, res.ConversationID)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsChart)
	assert.Equal(t, chart, msgs[1].ChartConfig)
	assert.Equal(t, "SELECT 1", msgs[0].GeneratedQuery)
}

func TestTurnLandsInIssuingConversation(t *testing.T) {
	var st *store.Store
	var switchedTo string
	exec := executorFunc(func(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
		switchedTo = st.CreateConversation()
		return &model.QueryResponse{SQL: "SELECT 1", Result: &model.TableResult{Columns: []string{"n"}, Rows: [][]any{{1}}}}, nil
	})
	ctrl, s, _, _ := newController(t, exec, Config{})
	st = s

	origin := st.CreateConversation()
	res, err := ctrl.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, origin, res.ConversationID)
	assert.Equal(t, switchedTo, st.CurrentID())

	assert.Len(t, messages(t, st, origin), 2)
	assert.Empty(t, messages(t, st, switchedTo))
	assert.Len(t, st.GetContext(origin), 1)
}
