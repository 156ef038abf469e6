// Package store holds the in-memory cache of conversations and their
// messages, the current-conversation cursor, and hydration from the remote
// conversation store.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/capitalize-ai/querychat/internal/contextwindow"
	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/internal/remote"
	"github.com/capitalize-ai/querychat/internal/render"
	"github.com/capitalize-ai/querychat/pkg/logger"
	"github.com/capitalize-ai/querychat/pkg/metrics"
)

var (
	// ErrNoConversation is returned when a message targets no conversation.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrInvalidMessageType is returned for a message type other than user or bot.
	ErrInvalidMessageType = errors.New("invalid message type")

	// ErrLoadFailed wraps a failed message-history fetch. The conversation is
	// still current and carries a notice explaining the failure.
	ErrLoadFailed = errors.New("failed to load conversation")
)

// Remote is the remote conversation store the cache is hydrated from.
type Remote interface {
	ListConversations(ctx context.Context) ([]model.RemoteConversation, error)
	GetConversationMessages(ctx context.Context, conversationID string) ([]model.RemoteMessage, error)
}

// View receives presentation updates. The Store calls it while holding its
// lock, so implementations must not block and must not call back into the
// Store.
type View interface {
	ClearMessages()
	ShowMessage(conversationID string, msg model.Message)
	SetSuggestionsVisible(visible bool)
	RenderList(conversations []model.ConversationSummary)
}

// AppendOptions tags the content of an appended message.
type AppendOptions struct {
	IsHTML         bool
	IsChart        bool
	ChartConfig    any
	GeneratedQuery string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSessionExpired registers fn to run when a remote call reports the
// session as unauthorized. fn is called with the Store's lock held and must
// not block.
func WithSessionExpired(fn func()) Option {
	return func(s *Store) {
		s.onExpired = fn
	}
}

// WithIDGenerator overrides how new conversation IDs are allocated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// Store is the single owner of all locally known conversations.
type Store struct {
	remote Remote
	view   View
	logger *logger.Logger
	now    func() time.Time
	newID  func() string

	onExpired func()

	mu            sync.Mutex
	conversations map[string]*model.Conversation
	currentID     string
	// loadSeq increments whenever the cursor moves, so a message fetch that
	// completes after a later switch can tell it is stale.
	loadSeq uint64
	// pendingLoad is the load the cursor is waiting on. Messages appended to
	// that conversation from index pendingLoad.start on arrived while its
	// history was in flight and are kept across the replay.
	pendingLoad struct {
		id          string
		start       int
		title       string
		titleFrozen bool
		set         bool
	}

	hydrate singleflight.Group
}

// New creates an empty Store.
func New(rc Remote, view View, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		remote:        rc,
		view:          view,
		logger:        log.Named("store"),
		now:           time.Now,
		newID:         func() string { return uuid.Must(uuid.NewV7()).String() },
		conversations: make(map[string]*model.Conversation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HydrateFromRemote replaces the local cache with the remote conversation
// list, renders it, and loads the most recent conversation. With an empty
// list no conversation is current and suggestions are shown. A failed list
// call leaves the cache and the view untouched. Overlapping calls share one
// remote round-trip.
//
// Local conversations the remote store has not acknowledged are dropped.
func (s *Store) HydrateFromRemote(ctx context.Context) error {
	_, err, _ := s.hydrate.Do("hydrate", func() (any, error) {
		return nil, s.hydrateFromRemote(ctx)
	})
	return err
}

func (s *Store) hydrateFromRemote(ctx context.Context) error {
	remoteConvs, err := s.remote.ListConversations(ctx)
	if err != nil {
		metrics.HydrationsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("failed to hydrate conversations", zap.Error(err))
		if errors.Is(err, remote.ErrUnauthorized) {
			s.mu.Lock()
			s.sessionExpiredLocked()
			s.mu.Unlock()
		}
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	cache := make(map[string]*model.Conversation, len(remoteConvs))
	for _, rc := range remoteConvs {
		if rc.ConversationID == "" {
			s.logger.Debug("skipping remote conversation without id")
			continue
		}
		title := strings.TrimSpace(rc.Title)
		frozen := title != "" && title != model.DefaultTitle
		if !frozen {
			title = model.DefaultTitle
		}
		cache[rc.ConversationID] = &model.Conversation{
			ID:          rc.ConversationID,
			Title:       title,
			TitleFrozen: frozen,
			CreatedAt:   rc.CreatedAt.Time,
			LastUpdated: rc.LastUpdated.Time,
			Messages:    []model.Message{},
		}
	}

	s.mu.Lock()
	s.conversations = cache
	s.currentID = ""
	s.loadSeq++
	s.pendingLoad.set = false
	summaries := s.summariesLocked()
	s.view.RenderList(summaries)
	if len(summaries) == 0 {
		s.view.ClearMessages()
		s.view.SetSuggestionsVisible(true)
	}
	metrics.ConversationsCached.Set(float64(len(cache)))
	s.mu.Unlock()

	metrics.HydrationsTotal.WithLabelValues("success").Inc()
	s.logger.Info("conversations hydrated", zap.Int("count", len(summaries)))

	if len(summaries) == 0 {
		return nil
	}
	return s.LoadConversation(ctx, summaries[0].ID)
}

// LoadConversation makes conversationID current and replaces its history
// with a fresh fetch from the remote store, replaying every message through
// the same path live messages take. A failed fetch appends a single notice.
// A fetch that completes after the cursor moved elsewhere is discarded.
// Messages appended to the conversation while its fetch is in flight are
// kept after the replayed history.
func (s *Store) LoadConversation(ctx context.Context, conversationID string) error {
	log := s.logger.WithConversation(conversationID)

	s.mu.Lock()
	if !s.pendingLoad.set || s.pendingLoad.id != conversationID {
		s.pendingLoad.id = conversationID
		s.pendingLoad.start = 0
		s.pendingLoad.title = model.DefaultTitle
		s.pendingLoad.titleFrozen = false
		if conv, ok := s.conversations[conversationID]; ok {
			s.pendingLoad.start = len(conv.Messages)
			s.pendingLoad.title = conv.Title
			s.pendingLoad.titleFrozen = conv.TitleFrozen
		}
		s.pendingLoad.set = true
	}
	s.currentID = conversationID
	s.loadSeq++
	seq := s.loadSeq
	s.view.ClearMessages()
	s.mu.Unlock()

	remoteMsgs, err := s.remote.GetConversationMessages(ctx, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.loadSeq {
		metrics.ConversationLoadsTotal.WithLabelValues("superseded").Inc()
		log.Debug("discarding superseded conversation load")
		return nil
	}

	pending := s.pendingLoad
	s.pendingLoad.set = false

	if err != nil {
		metrics.ConversationLoadsTotal.WithLabelValues("error").Inc()
		log.Warn("failed to load conversation", zap.Error(err))
		notice := render.LoadFailedNotice
		if errors.Is(err, remote.ErrUnauthorized) {
			notice = render.SessionExpiredNotice
			s.sessionExpiredLocked()
		}
		s.appendLocked(conversationID, model.Message{
			Type:      model.MessageTypeBot,
			Content:   notice,
			CreatedAt: s.now(),
		})
		return fmt.Errorf("%w %s: %w", ErrLoadFailed, conversationID, err)
	}

	replayed := replayMessages(remoteMsgs, log)

	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &model.Conversation{ID: conversationID, Title: model.DefaultTitle}
		s.conversations[conversationID] = conv
		metrics.ConversationsCached.Set(float64(len(s.conversations)))
	}

	var live []model.Message
	if pending.start < len(conv.Messages) {
		live = slices.Clone(conv.Messages[pending.start:])
		// The title is derived again from the merged history.
		conv.Title = pending.title
		conv.TitleFrozen = pending.titleFrozen
		s.view.ClearMessages()
		log.Debug("keeping messages appended during load", zap.Int("messages", len(live)))
	}

	conv.Messages = make([]model.Message, 0, len(replayed)+len(live))
	for _, msg := range replayed {
		s.applyLocked(conv, msg, true)
	}
	for _, msg := range live {
		s.applyLocked(conv, msg, true)
	}
	conv.Loaded = true

	s.view.SetSuggestionsVisible(len(conv.Messages) == 0)
	s.view.RenderList(s.summariesLocked())

	metrics.ConversationLoadsTotal.WithLabelValues("success").Inc()
	log.Debug("conversation loaded", zap.Int("messages", len(conv.Messages)))
	return nil
}

// CreateConversation allocates a new, empty, fully loaded conversation and
// makes it current.
func (s *Store) CreateConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.uniqueIDLocked()
	now := s.now()
	s.conversations[id] = &model.Conversation{
		ID:          id,
		Title:       model.DefaultTitle,
		CreatedAt:   now,
		LastUpdated: now,
		Messages:    []model.Message{},
		Loaded:      true,
	}
	s.currentID = id
	s.loadSeq++
	s.pendingLoad.set = false
	metrics.ConversationsCached.Set(float64(len(s.conversations)))

	s.view.ClearMessages()
	s.view.SetSuggestionsVisible(true)
	s.view.RenderList(s.summariesLocked())

	s.logger.Info("conversation created", zap.String("conversation_id", id))
	return id
}

func (s *Store) sessionExpiredLocked() {
	if s.onExpired != nil {
		s.onExpired()
	}
}

func (s *Store) uniqueIDLocked() string {
	for attempt := 0; ; attempt++ {
		id := s.newID()
		if attempt > 0 {
			id = fmt.Sprintf("%s-%d", id, attempt)
		}
		if _, exists := s.conversations[id]; id != "" && !exists {
			return id
		}
	}
}

// AppendMessage appends a message to the current conversation. It does
// nothing when no conversation is current.
func (s *Store) AppendMessage(content string, typ model.MessageType, opts AppendOptions) {
	s.mu.Lock()
	id := s.currentID
	s.mu.Unlock()

	if id == "" {
		s.logger.Debug("dropping message appended with no current conversation")
		return
	}
	if err := s.AppendMessageTo(id, content, typ, opts); err != nil {
		s.logger.Warn("failed to append message", zap.Error(err))
	}
}

// AppendMessageTo appends a message to the given conversation, creating its
// local record if needed. The first user message of a conversation fixes its
// title. The view only shows the message when the conversation is current.
func (s *Store) AppendMessageTo(conversationID, content string, typ model.MessageType, opts AppendOptions) error {
	if conversationID == "" {
		return ErrNoConversation
	}
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMessageType, typ)
	}

	msg := model.Message{
		Type:      typ,
		Content:   content,
		IsHTML:    opts.IsHTML,
		CreatedAt: s.now(),
	}
	switch typ {
	case model.MessageTypeUser:
		msg.GeneratedQuery = opts.GeneratedQuery
	case model.MessageTypeBot:
		if opts.IsChart {
			msg.IsChart = true
			msg.IsHTML = false
			msg.ChartConfig = opts.ChartConfig
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(conversationID, msg)
	return nil
}

func (s *Store) appendLocked(conversationID string, msg model.Message) {
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &model.Conversation{
			ID:        conversationID,
			Title:     model.DefaultTitle,
			CreatedAt: msg.CreatedAt,
			Loaded:    true,
		}
		s.conversations[conversationID] = conv
		metrics.ConversationsCached.Set(float64(len(s.conversations)))
	}

	titleChanged := s.applyLocked(conv, msg, false)
	if titleChanged || !ok {
		s.view.RenderList(s.summariesLocked())
	}
}

// applyLocked is the single append path for live and replayed messages. It
// reports whether the title was derived by this message.
func (s *Store) applyLocked(conv *model.Conversation, msg model.Message, replay bool) bool {
	conv.Messages = append(conv.Messages, msg)

	if !replay || msg.CreatedAt.After(conv.LastUpdated) {
		conv.LastUpdated = msg.CreatedAt
	}

	titleChanged := false
	if msg.IsUser() && !conv.TitleFrozen {
		conv.Title = render.Title(msg.Content)
		conv.TitleFrozen = true
		titleChanged = true
	}

	if conv.ID == s.currentID {
		s.view.ShowMessage(conv.ID, msg)
	}

	source := "live"
	if replay {
		source = "replay"
	}
	metrics.MessagesAppendedTotal.WithLabelValues(string(msg.Type), source).Inc()

	return titleChanged
}

// AttachGeneratedQuery attaches query to the most recent user message of the
// current conversation. It reports whether a message was updated.
func (s *Store) AttachGeneratedQuery(query string) bool {
	s.mu.Lock()
	id := s.currentID
	s.mu.Unlock()

	if id == "" {
		return false
	}
	return s.AttachGeneratedQueryTo(id, query)
}

// AttachGeneratedQueryTo attaches query to the most recent user message of
// the given conversation, scanning backward from the newest message.
func (s *Store) AttachGeneratedQueryTo(conversationID, query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsUser() {
			conv.Messages[i].GeneratedQuery = query
			return true
		}
	}
	return false
}

// GetContext returns the context window of a conversation. Unknown
// conversations have an empty window.
func (s *Store) GetContext(conversationID string) []model.ContextPair {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return []model.ContextPair{}
	}
	return contextwindow.Extract(conv.Messages)
}

// RenderList hands the ordered conversation list to the view and returns it.
func (s *Store) RenderList() []model.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := s.summariesLocked()
	s.view.RenderList(summaries)
	return summaries
}

// Summaries returns the ordered conversation list without rendering it.
func (s *Store) Summaries() []model.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summariesLocked()
}

// summariesLocked projects the cache most-recent first. Ties are ordered by
// ID so the projection is stable across calls.
func (s *Store) summariesLocked() []model.ConversationSummary {
	convs := make([]*model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	slices.SortStableFunc(convs, func(a, b *model.Conversation) int {
		if c := b.Recency().Compare(a.Recency()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	now := s.now()
	summaries := make([]model.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, model.ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			Preview:      render.Preview(conv.Title),
			CreatedAt:    conv.CreatedAt,
			LastUpdated:  conv.LastUpdated,
			UpdatedLabel: render.RelativeTime(conv.Recency(), now),
			MessageCount: len(conv.Messages),
			Loaded:       conv.Loaded,
			Current:      conv.ID == s.currentID,
		})
	}
	return summaries
}

// CurrentID returns the current conversation ID, or "" if none.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Conversation returns a detached copy of a conversation.
func (s *Store) Conversation(conversationID string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return model.Conversation{}, false
	}
	return *clone.Clone(conv).(*model.Conversation), true
}

// Len returns the number of cached conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// replayMessages converts a fetched history into messages in the shapes live
// turns produce. Messages of unknown type are skipped.
func replayMessages(history []model.RemoteMessage, log *logger.Logger) []model.Message {
	out := make([]model.Message, 0, len(history))
	for _, rm := range history {
		msg := model.Message{Type: rm.Type, CreatedAt: rm.CreatedAt.Time}

		switch rm.Type {
		case model.MessageTypeUser:
			msg.Content = rm.Content
			msg.GeneratedQuery = rm.SQL

		case model.MessageTypeBot:
			switch {
			case rm.Error != "":
				msg.Content = render.ErrorNotice(rm.Error)
			case rm.Result != nil && rm.Result.Error != "":
				msg.Content = render.ErrorNotice(rm.Result.Error)
			case rm.Result != nil:
				markup, err := render.Table(rm.Result)
				if err != nil {
					log.Warn("failed to render historical result", zap.Error(err))
					continue
				}
				msg.Content = markup
				msg.IsHTML = true
			case rm.Content != "":
				msg.Content = rm.Content
			default:
				continue
			}

		default:
			log.Debug("skipping message of unknown type", zap.String("type", string(rm.Type)))
			continue
		}

		out = append(out, msg)
	}
	return out
}
