package email

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/onebox/internal/config"
)

func TestEngineBackfillsIntoEventStream(t *testing.T) {
	acc, mbox, _ := newTestServer(t)
	appendMessage(t, mbox, "Engine pass")

	cfg := &config.Config{
		LookbackDays:   30,
		PipelineBuffer: 16,
		Accounts:       []config.AccountConfig{*acc},
	}
	engine := NewEngine(cfg, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(runDone)
	}()

	// The seeded message and the appended one both reach the stream.
	subjects := make(map[string]bool)
	timeout := time.After(10 * time.Second)
	for len(subjects) < 2 {
		select {
		case e := <-engine.Events():
			require.NotNil(t, e)
			subjects[e.Headers.Subject] = true
			assert.Equal(t, "test-account", e.AccountID)
			assert.Equal(t, "INBOX", e.Folder)
		case <-timeout:
			t.Fatal("timed out waiting for backfilled events")
		}
	}
	assert.True(t, subjects["Engine pass"])

	cancel()
	select {
	case <-runDone:
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not shut down on cancel")
	}

	// The stream is closed once every account worker has exited.
	for range engine.Events() {
	}
}
