package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alexjbarnes/keepsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *State {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(outcome string) models.Run {
	return models.Run{
		StartedAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		DurationMS: 42,
		LocalKey:   "local|/home/alex/db.kdbx",
		RemoteKey:  "SFTP|/srv/db.kdbx|alex",
		Outcome:    outcome,
	}
}

// --- LoadAt / Close ---

func TestLoadAt_CreatesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "state.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestLoadAt_ReopensExistingDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s1, err := LoadAt(dbPath)
	require.NoError(t, err)
	_, err = s1.RecordRun(testRun("Files are up to date"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := LoadAt(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	last, err := s2.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "Files are up to date", last.Outcome)
}

// --- RecordRun / Runs ---

func TestLastRun_NilWhenEmpty(t *testing.T) {
	s := testDB(t)
	last, err := s.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.Equal(t, 0, s.RunCount())
}

func TestRecordRun_AssignsIncreasingIDs(t *testing.T) {
	s := testDB(t)

	id1, err := s.RecordRun(testRun("a"))
	require.NoError(t, err)
	id2, err := s.RecordRun(testRun("b"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
}

func TestRecordRun_RoundTrip(t *testing.T) {
	s := testDB(t)
	input := testRun("")
	input.Error = "remote file error: refused"

	id, err := s.RecordRun(input)
	require.NoError(t, err)

	last, err := s.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)

	input.ID = id
	assert.Equal(t, input, *last)
	assert.True(t, last.Failed())
}

func TestRuns_NewestFirst(t *testing.T) {
	s := testDB(t)
	for _, o := range []string{"first", "second", "third"} {
		_, err := s.RecordRun(testRun(o))
		require.NoError(t, err)
	}

	runs, err := s.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].Outcome)
	assert.Equal(t, "second", runs[1].Outcome)
	assert.Equal(t, "first", runs[2].Outcome)
}

func TestRuns_Limit(t *testing.T) {
	s := testDB(t)
	for i := 0; i < 5; i++ {
		_, err := s.RecordRun(testRun("x"))
		require.NoError(t, err)
	}

	runs, err := s.Runs(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, uint64(5), runs[0].ID)
	assert.Equal(t, uint64(4), runs[1].ID)
}

func TestRecordRun_PrunesOldest(t *testing.T) {
	s := testDB(t)
	s.maxRuns = 3

	for i := 0; i < 5; i++ {
		_, err := s.RecordRun(testRun("x"))
		require.NoError(t, err)
	}

	runs, err := s.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, uint64(5), runs[0].ID)
	assert.Equal(t, uint64(3), runs[2].ID)
	assert.Equal(t, 3, s.RunCount())
}

func TestRun_Failed(t *testing.T) {
	assert.False(t, testRun("Files are up to date").Failed())
	assert.True(t, models.Run{Error: "boom"}.Failed())
}
