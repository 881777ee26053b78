package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/onebox/pkg/types"
)

type fakeIndexer struct {
	indexed    []*types.Email
	updates    map[string]types.Category
	indexErr   error
	updateErr  error
	stepRecord *[]string
}

func (f *fakeIndexer) IndexEmail(_ context.Context, email *types.Email) error {
	if f.stepRecord != nil {
		*f.stepRecord = append(*f.stepRecord, "index")
	}
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, email)
	return nil
}

func (f *fakeIndexer) UpdateCategory(_ context.Context, id string, category types.Category) error {
	if f.stepRecord != nil {
		*f.stepRecord = append(*f.stepRecord, "update")
	}
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updates == nil {
		f.updates = make(map[string]types.Category)
	}
	f.updates[id] = category
	return nil
}

type fakeClassifier struct {
	category   types.Category
	gotSubject string
	gotBody    string
	stepRecord *[]string
}

func (f *fakeClassifier) Classify(_ context.Context, subject, body string) types.Category {
	if f.stepRecord != nil {
		*f.stepRecord = append(*f.stepRecord, "classify")
	}
	f.gotSubject = subject
	f.gotBody = body
	return f.category
}

type fakeNotifier struct {
	slackCalls   int
	webhookCalls int
	slackOK      bool
	webhookOK    bool
}

func (f *fakeNotifier) NotifySlack(_ context.Context, _ *types.Email) bool {
	f.slackCalls++
	return f.slackOK
}

func (f *fakeNotifier) NotifyWebhook(_ context.Context, _ *types.Email) bool {
	f.webhookCalls++
	return f.webhookOK
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func sampleEmail(id string) *types.Email {
	return &types.Email{
		ID:        id,
		AccountID: "acct-1",
		Folder:    "INBOX",
		Headers:   types.EmailHeader{Subject: "Quick question", From: "lead@example.com"},
		Body:      types.EmailBody{Text: "Interested in a demo next week."},
		Category:  types.CategoryUncategorized,
	}
}

func TestProcessStepOrder(t *testing.T) {
	var steps []string
	indexer := &fakeIndexer{stepRecord: &steps}
	classifier := &fakeClassifier{category: types.CategoryNotInterested, stepRecord: &steps}
	notifier := &fakeNotifier{}

	p := New(indexer, classifier, notifier, testLogger())
	p.Process(context.Background(), sampleEmail("m1"))

	assert.Equal(t, []string{"index", "classify", "update"}, steps)
	assert.Equal(t, types.CategoryNotInterested, indexer.updates["m1"])
	assert.Zero(t, notifier.slackCalls)
	assert.Zero(t, notifier.webhookCalls)
}

func TestProcessInterestedNotifiesBothChannels(t *testing.T) {
	indexer := &fakeIndexer{}
	classifier := &fakeClassifier{category: types.CategoryInterested}
	notifier := &fakeNotifier{slackOK: false, webhookOK: true}

	p := New(indexer, classifier, notifier, testLogger())
	email := sampleEmail("m2")
	p.Process(context.Background(), email)

	// Slack failing must not short-circuit the webhook attempt.
	assert.Equal(t, 1, notifier.slackCalls)
	assert.Equal(t, 1, notifier.webhookCalls)
	assert.Equal(t, types.CategoryInterested, email.Category)
}

func TestProcessIndexFailureDoesNotAbort(t *testing.T) {
	indexer := &fakeIndexer{indexErr: errors.New("search backend down")}
	classifier := &fakeClassifier{category: types.CategorySpam}
	notifier := &fakeNotifier{}

	p := New(indexer, classifier, notifier, testLogger())
	p.Process(context.Background(), sampleEmail("m3"))

	// Classification and the label write still ran.
	assert.Equal(t, "Quick question", classifier.gotSubject)
	assert.Equal(t, types.CategorySpam, indexer.updates["m3"])
}

func TestProcessTruncatesBodyForClassification(t *testing.T) {
	indexer := &fakeIndexer{}
	classifier := &fakeClassifier{category: types.CategoryUncategorized}
	p := New(indexer, classifier, &fakeNotifier{}, testLogger())

	email := sampleEmail("m4")
	long := ""
	for len(long) < classifyBodyLimit+500 {
		long += "lorem ipsum dolor sit amet "
	}
	email.Body.Text = long
	p.Process(context.Background(), email)

	assert.Len(t, classifier.gotBody, classifyBodyLimit)
}

func TestProcessTruncationKeepsRunesWhole(t *testing.T) {
	indexer := &fakeIndexer{}
	classifier := &fakeClassifier{category: types.CategoryUncategorized}
	p := New(indexer, classifier, &fakeNotifier{}, testLogger())

	email := sampleEmail("m6")
	email.Body.Text = strings.Repeat("é", classifyBodyLimit)
	p.Process(context.Background(), email)

	assert.True(t, utf8.ValidString(classifier.gotBody))
	assert.LessOrEqual(t, len(classifier.gotBody), classifyBodyLimit)
}

func TestProcessFallsBackToHTMLBody(t *testing.T) {
	indexer := &fakeIndexer{}
	classifier := &fakeClassifier{category: types.CategoryUncategorized}
	p := New(indexer, classifier, &fakeNotifier{}, testLogger())

	email := sampleEmail("m5")
	email.Body.Text = ""
	email.Body.HTML = "<p>hello</p>"
	p.Process(context.Background(), email)

	assert.Equal(t, "<p>hello</p>", classifier.gotBody)
}

func TestRunDrainsUntilClose(t *testing.T) {
	indexer := &fakeIndexer{}
	classifier := &fakeClassifier{category: types.CategoryUncategorized}
	p := New(indexer, classifier, &fakeNotifier{}, testLogger())

	events := make(chan *types.Email, 5)
	for i := 0; i < 5; i++ {
		events <- sampleEmail(fmt.Sprintf("m%d", i))
	}
	close(events)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not drain closed channel")
	}
	require.Len(t, indexer.indexed, 5)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p := New(&fakeIndexer{}, &fakeClassifier{}, &fakeNotifier{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan *types.Email)

	done := make(chan struct{})
	go func() {
		p.Run(ctx, events)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop on cancel")
	}
}
