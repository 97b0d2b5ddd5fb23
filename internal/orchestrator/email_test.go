package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pipehunter/internal/intake"
	"github.com/kiranshivaraju/pipehunter/internal/mailbox"
	"github.com/kiranshivaraju/pipehunter/internal/store"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for email-processing tests.
type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.ProcessedEmailRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]*models.ProcessedEmailRecord)}
}

func (m *memStore) Ping(_ context.Context) error { return nil }

func (m *memStore) CreateProcessedEmail(_ context.Context, record *models.ProcessedEmailRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.MessageUID == record.MessageUID {
			return store.ErrDuplicateKey
		}
		if r.MessageID != nil && record.MessageID != nil && *r.MessageID == *record.MessageID {
			return store.ErrDuplicateKey
		}
	}
	clone := *record
	m.records[record.ID] = &clone
	return nil
}

func (m *memStore) GetProcessedEmailByMessageID(_ context.Context, messageID string) (*models.ProcessedEmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.MessageID != nil && *r.MessageID == messageID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetProcessedEmailByUID(_ context.Context, uid string) (*models.ProcessedEmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.MessageUID == uid {
			clone := *r
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateProcessedEmailStatus(_ context.Context, id uuid.UUID, status string, opts ...store.EmailUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	store.ApplyEmailUpdateOptions(r, opts...)
	return nil
}

func (m *memStore) DeleteProcessedEmail(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memStore) ListProcessedEmails(_ context.Context, _ store.EmailFilter) ([]*models.ProcessedEmailRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProcessedEmailRecord
	for _, r := range m.records {
		clone := *r
		out = append(out, &clone)
	}
	return out, len(out), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var _ store.Store = (*memStore)(nil)

func failureMessage(uid, messageID string) mailbox.Message {
	return mailbox.Message{
		UID:       uid,
		MessageID: messageID,
		From:      "GitLab <gitlab@example.com>",
		Subject:   "Pipeline #42 has failed for group/app",
		Date:      time.Now().UTC(),
		Headers: map[string][]string{
			"X-Gitlab-Project-Id":      {"7"},
			"X-Gitlab-Project-Path":    {"group/app"},
			"X-Gitlab-Pipeline-Id":     {"42"},
			"X-Gitlab-Pipeline-Ref":    {"main"},
			"X-Gitlab-Pipeline-Status": {"failed"},
		},
		Text: "Your pipeline has failed.",
	}
}

func newEmailProcessor(t *testing.T, st store.Store) *EmailProcessor {
	t.Helper()
	parser := intake.NewEmailParser("gitlab@example.com", []string{"failed", "failure"}, "https://gitlab.example.com", testLogger())
	engine := newTestEngine(happyGitLab(), workingAIService())
	return NewEmailProcessor(st, engine, parser, testLogger())
}

func TestProcessMessage_CompletesAndStoresSummary(t *testing.T) {
	st := newMemStore()
	p := newEmailProcessor(t, st)

	err := p.ProcessMessage(context.Background(), failureMessage("uid-1", "<m1@gitlab>"))
	require.NoError(t, err)

	rec, err := st.GetProcessedEmailByUID(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusCompleted, rec.Status)
	require.NotNil(t, rec.ProjectID)
	assert.Equal(t, int64(7), *rec.ProjectID)
	require.NotNil(t, rec.PipelineID)
	assert.Equal(t, int64(42), *rec.PipelineID)
	require.NotNil(t, rec.ErrorMessage, "analysis summary stored in the free-text field")
	assert.NotEmpty(t, *rec.ErrorMessage)
	require.NotNil(t, rec.GitLabErrorLog)
	assert.Contains(t, *rec.GitLabErrorLog, "assertion failed")
}

func TestProcessMessage_WrongSenderDropped(t *testing.T) {
	st := newMemStore()
	p := newEmailProcessor(t, st)

	msg := failureMessage("uid-2", "<m2@gitlab>")
	msg.From = "Mallory <mallory@example.com>"

	err := p.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 0, st.count(), "invalid email must not create a record")
}

func TestProcessMessage_MissingHeadersRecorded(t *testing.T) {
	st := newMemStore()
	p := newEmailProcessor(t, st)

	msg := failureMessage("uid-3", "<m3@gitlab>")
	delete(msg.Headers, "X-Gitlab-Project-Id")

	err := p.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)

	rec, err := st.GetProcessedEmailByUID(context.Background(), "uid-3")
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusNoGitLabHeaders, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "x-gitlab-project-id")
}

func TestProcessMessage_CompletedRecordShortCircuits(t *testing.T) {
	st := newMemStore()
	p := newEmailProcessor(t, st)
	ctx := context.Background()
	msg := failureMessage("uid-4", "<m4@gitlab>")

	require.NoError(t, p.ProcessMessage(ctx, msg))
	first, err := st.GetProcessedEmailByUID(ctx, "uid-4")
	require.NoError(t, err)
	require.Equal(t, models.EmailStatusCompleted, first.Status)

	// Second pass must not reprocess or touch the record.
	require.NoError(t, p.ProcessMessage(ctx, msg))
	second, err := st.GetProcessedEmailByUID(ctx, "uid-4")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, st.count())
}

func TestProcessMessage_StaleRecordReplaced(t *testing.T) {
	st := newMemStore()
	p := newEmailProcessor(t, st)
	ctx := context.Background()
	msg := failureMessage("uid-5", "<m5@gitlab>")

	// Simulate an earlier pass that died mid-flight.
	staleID := "<m5@gitlab>"
	stale := &models.ProcessedEmailRecord{
		ID:         uuid.New(),
		MessageUID: "uid-5",
		MessageID:  &staleID,
		ReceivedAt: msg.Date,
		FromEmail:  "gitlab@example.com",
		Subject:    msg.Subject,
		Status:     models.EmailStatusError,
	}
	require.NoError(t, st.CreateProcessedEmail(ctx, stale))

	require.NoError(t, p.ProcessMessage(ctx, msg))

	rec, err := st.GetProcessedEmailByMessageID(ctx, "<m5@gitlab>")
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, rec.ID, "stale record replaced, not updated in place")
	assert.Equal(t, models.EmailStatusCompleted, rec.Status)
	assert.Equal(t, 1, st.count(), "exactly one record per physical email")
}

// fakeMailbox returns its queued messages once, then an empty inbox.
type fakeMailbox struct {
	mu       sync.Mutex
	messages []mailbox.Message
}

func (f *fakeMailbox) Fetch(_ context.Context, _ time.Time) ([]mailbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.messages
	f.messages = nil
	return out, nil
}

func (f *fakeMailbox) Close() error { return nil }

func TestPoller_ProcessesInboxAndStops(t *testing.T) {
	st := newMemStore()
	p := newEmailProcessor(t, st)
	inbox := &fakeMailbox{messages: []mailbox.Message{failureMessage("uid-6", "<m6@gitlab>")}}

	poller := NewPoller(inbox, p, 20*time.Millisecond, testLogger())
	poller.Start(context.Background())

	assert.Eventually(t, func() bool {
		rec, err := st.GetProcessedEmailByUID(context.Background(), "uid-6")
		return err == nil && rec.Status == models.EmailStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Stopping again is a no-op.
	poller.Stop()
}
