package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
)

type fakeExtractor struct {
	records []course.Course
	raw     []byte
	err     error
}

func (f *fakeExtractor) Extract(context.Context) ([]course.Course, []byte, error) {
	return f.records, f.raw, f.err
}

type fakeStore struct {
	course.Store

	preloadCalls int
	preloadErr   error

	chunkCalls  [][]string
	chunkErr    error
	failingRefs map[string]bool
	oneCalls    []string
	lastSeen    time.Time
}

func (f *fakeStore) PreloadDimensions(context.Context, []course.Course) error {
	f.preloadCalls++
	return f.preloadErr
}

func (f *fakeStore) UpsertChunk(_ context.Context, chunk []course.Course, _ time.Time) error {
	refs := make([]string, 0, len(chunk))
	for _, c := range chunk {
		refs = append(refs, c.Reference)
	}
	f.chunkCalls = append(f.chunkCalls, refs)
	if f.chunkErr != nil {
		return f.chunkErr
	}
	for _, c := range chunk {
		if f.failingRefs[c.Reference] {
			return errors.New("chunk transaction aborted")
		}
	}
	return nil
}

func (f *fakeStore) UpsertOne(_ context.Context, c course.Course, _ time.Time) error {
	f.oneCalls = append(f.oneCalls, c.Reference)
	if f.failingRefs[c.Reference] {
		return errors.New("value out of range")
	}
	return nil
}

func (f *fakeStore) LastSeenAt(context.Context) (time.Time, error) {
	return f.lastSeen, nil
}

type fakePinger struct {
	pings    int
	lastOK   bool
	lastText string
}

func (f *fakePinger) Ping(_ context.Context, ok bool, message string) {
	f.pings++
	f.lastOK = ok
	f.lastText = message
}

type fakeArchiver struct {
	runID string
	html  []byte
	err   error
}

func (f *fakeArchiver) Archive(_ context.Context, runID string, html []byte, _ time.Time) (string, error) {
	f.runID = runID
	f.html = html
	return "file:///tmp/snap.html", f.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func refs(n int) []course.Course {
	out := make([]course.Course, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, course.Course{Reference: string(rune('A'+i)) + "-course"})
	}
	return out
}

func newSyncer(ext *fakeExtractor, store *fakeStore, arch *fakeArchiver, ping *fakePinger, chunk int) *Syncer {
	clock := fixedClock{t: time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC)}
	return New(ext, store, arch, ping, clock, Config{ChunkSize: chunk}, zap.NewNop())
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	ext := &fakeExtractor{records: refs(5), raw: []byte("<html></html>")}
	store := &fakeStore{}
	ping := &fakePinger{}
	arch := &fakeArchiver{}

	result, err := newSyncer(ext, store, arch, ping, 2).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 5, result.Total)
	require.Equal(t, 5, result.Succeeded)
	require.Zero(t, result.Failed)
	require.Empty(t, result.Errors)
	require.NotEmpty(t, result.RunID)

	require.Equal(t, 1, store.preloadCalls)
	require.Len(t, store.chunkCalls, 3, "5 records at chunk size 2 is 3 transactions")
	require.Empty(t, store.oneCalls, "no fallback on clean chunks")

	require.Equal(t, 1, ping.pings)
	require.True(t, ping.lastOK)
	require.Contains(t, ping.lastText, "synced 5/5")

	require.Equal(t, result.RunID, arch.runID)
	require.Equal(t, []byte("<html></html>"), arch.html)
}

func TestRunChunkFailureFallsBackPerRecord(t *testing.T) {
	t.Parallel()

	records := refs(4)
	ext := &fakeExtractor{records: records}
	store := &fakeStore{failingRefs: map[string]bool{records[1].Reference: true}}
	ping := &fakePinger{}

	result, err := newSyncer(ext, store, &fakeArchiver{}, ping, 4).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	require.Equal(t, records[1].Reference, result.Errors[0].Reference,
		"only the genuinely failing record lands in the error list")

	require.Len(t, store.oneCalls, 4, "every record of the failed chunk is retried")
	require.False(t, ping.lastOK)
}

func TestRunExtractionFailureAborts(t *testing.T) {
	t.Parallel()

	ext := &fakeExtractor{err: errors.New("status 503")}
	store := &fakeStore{}
	ping := &fakePinger{}

	_, err := newSyncer(ext, store, &fakeArchiver{}, ping, 10).Run(context.Background())
	require.Error(t, err)

	require.Zero(t, store.preloadCalls, "nothing persists when extraction fails")
	require.Equal(t, 1, ping.pings)
	require.False(t, ping.lastOK)
	require.Contains(t, ping.lastText, "extraction failed")
}

func TestRunArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	ext := &fakeExtractor{records: refs(1), raw: []byte("x")}
	arch := &fakeArchiver{err: errors.New("bucket unreachable")}

	result, err := newSyncer(ext, &fakeStore{}, arch, &fakePinger{}, 10).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)
}

func TestLastSyncTimestampPassesThrough(t *testing.T) {
	t.Parallel()

	seen := time.Date(2024, 1, 4, 6, 0, 0, 0, time.UTC)
	s := newSyncer(&fakeExtractor{}, &fakeStore{lastSeen: seen}, &fakeArchiver{}, &fakePinger{}, 10)

	got, err := s.LastSyncTimestamp(context.Background())
	require.NoError(t, err)
	require.Equal(t, seen, got)
}
