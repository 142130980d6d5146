package distributor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gistflow/internal/gist"
)

type fakeDestination struct {
	kind  gist.DestinationKind
	ref   string
	err   error
	calls int
}

func (f *fakeDestination) Kind() gist.DestinationKind { return f.kind }

func (f *fakeDestination) Publish(_ context.Context, _ gist.Record) (string, error) {
	f.calls++
	return f.ref, f.err
}

func sampleRecord() gist.Record {
	return gist.Record{
		Title:          "Weekly AI digest",
		Summary:        "Three new open models were released.",
		Score:          82,
		Tags:           []string{"AI", "Open, Source"},
		KeyInsights:    []string{"Open weights are catching up", "Evaluation is still hard"},
		MentionedLinks: []string{"https://example.com/a", "https://example.com/b"},
		SourceID:       "msg-1",
		Subject:        "AI Weekly #42",
		Sender:         "AI Weekly",
		SenderEmail:    "news@aiweekly.example",
		Timestamp:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		OriginalURL:    "https://mail.google.com/mail/u/0/#all/msg-1",
		Content:        "Body of the newsletter.",
	}
}

func TestPublishPartialSuccess(t *testing.T) {
	notionDest := &fakeDestination{kind: gist.DestinationNotion, err: gist.Transient("notion", errors.New("503"))}
	localDest := &fakeDestination{kind: gist.DestinationLocal, ref: "/gists/a.md"}
	d := New(nil, nil, notionDest, localDest)

	res := d.Publish(context.Background(), sampleRecord(), []gist.DestinationKind{gist.DestinationNotion, gist.DestinationLocal})

	assert.True(t, res.Succeeded())
	assert.Equal(t, map[gist.DestinationKind]string{gist.DestinationLocal: "/gists/a.md"}, res.Refs)
	require.Contains(t, res.Errors, gist.DestinationNotion)
	assert.Equal(t, gist.CategoryTransient, gist.CategoryOf(res.Errors[gist.DestinationNotion]))
	assert.Equal(t, 1, notionDest.calls)
	assert.Equal(t, 1, localDest.calls)
}

func TestPublishAllFail(t *testing.T) {
	d := New(nil, nil,
		&fakeDestination{kind: gist.DestinationNotion, err: errors.New("notion down")},
		&fakeDestination{kind: gist.DestinationLocal, err: errors.New("disk full")},
	)

	res := d.Publish(context.Background(), sampleRecord(), []gist.DestinationKind{gist.DestinationNotion, gist.DestinationLocal})

	assert.False(t, res.Succeeded())
	err := res.Err()
	require.Error(t, err)
	assert.Equal(t, "local: disk full\nnotion: notion down", err.Error())
}

func TestPublishUnknownDestination(t *testing.T) {
	d := New(nil, nil, &fakeDestination{kind: gist.DestinationLocal, ref: "x"})

	res := d.Publish(context.Background(), sampleRecord(), []gist.DestinationKind{gist.DestinationDrive})

	assert.False(t, res.Succeeded())
	assert.Equal(t, gist.CategoryConfiguration, gist.CategoryOf(res.Errors[gist.DestinationDrive]))
}

func TestPublishCancelled(t *testing.T) {
	dest := &fakeDestination{kind: gist.DestinationLocal, ref: "x"}
	d := New(nil, nil, dest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.Publish(ctx, sampleRecord(), []gist.DestinationKind{gist.DestinationLocal})

	assert.ErrorIs(t, res.Errors[gist.DestinationLocal], context.Canceled)
	assert.Equal(t, 0, dest.calls)
}

func TestKinds(t *testing.T) {
	d := New(nil, nil,
		&fakeDestination{kind: gist.DestinationNotion},
		&fakeDestination{kind: gist.DestinationLocal},
		&fakeDestination{kind: gist.DestinationNotion},
	)
	assert.Equal(t, []gist.DestinationKind{gist.DestinationNotion, gist.DestinationLocal}, d.Kinds())
	assert.Nil(t, Result{}.Err())
}
