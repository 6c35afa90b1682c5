package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sharegate/pkg/storage"
)

// ManagerTestSuite tests the disk cache against its size ceiling and
// eviction order.
type ManagerTestSuite struct {
	suite.Suite
	tempDir  string
	dbPath   string
	cacheDir string
	db       *sql.DB
	manager  *Manager
}

// SetupSuite runs once before all tests.
func (s *ManagerTestSuite) SetupSuite() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "cache-test-*")
	s.Require().NoError(err)
}

// TearDownSuite runs once after all tests.
func (s *ManagerTestSuite) TearDownSuite() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

// SetupTest runs before each test.
func (s *ManagerTestSuite) SetupTest() {
	s.dbPath = filepath.Join(s.tempDir, "test.db")
	s.cacheDir = filepath.Join(s.tempDir, "cache")
	var err error
	s.db, err = storage.Open(s.dbPath)
	s.Require().NoError(err)
	s.manager, err = NewManager(s.db, s.cacheDir, 100, 0)
	s.Require().NoError(err)
}

// TearDownTest runs after each test.
func (s *ManagerTestSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
	os.Remove(s.dbPath)
	os.RemoveAll(s.cacheDir)
}

// payloadFetch returns a FetchFunc writing a fixed payload and counting how
// many times the origin was reached.
func payloadFetch(payload []byte, calls *int) FetchFunc {
	return func(_ context.Context, w io.Writer) error {
		*calls++
		_, err := w.Write(payload)
		return err
	}
}

func (s *ManagerTestSuite) fill(fileID string, size int) string {
	var calls int
	path, err := s.manager.GetOrFetch(context.Background(), fileID,
		payloadFetch(bytes.Repeat([]byte("x"), size), &calls))
	s.Require().NoError(err)
	s.Require().Equal(1, calls)
	return path
}

// TestMissThenHit tests that the origin is reached once and subsequent reads
// serve from disk.
func (s *ManagerTestSuite) TestMissThenHit() {
	payload := []byte("hello cache")
	var calls int
	fetch := payloadFetch(payload, &calls)

	first, err := s.manager.GetOrFetch(context.Background(), "file1", fetch)
	s.NoError(err)
	s.Equal(1, calls)

	second, err := s.manager.GetOrFetch(context.Background(), "file1", fetch)
	s.NoError(err)
	s.Equal(1, calls)
	s.Equal(first, second)

	data, err := os.ReadFile(second)
	s.NoError(err)
	s.Equal(payload, data)
}

// TestFetchError tests that a failed origin fetch admits nothing.
func (s *ManagerTestSuite) TestFetchError() {
	wantErr := errors.New("origin down")
	_, err := s.manager.GetOrFetch(context.Background(), "file1",
		func(_ context.Context, _ io.Writer) error { return wantErr })
	s.ErrorIs(err, wantErr)

	usage, err := s.manager.Usage()
	s.NoError(err)
	s.Equal(int64(0), usage.Entries)
	s.Equal(int64(0), usage.UsedBytes)
}

// TestCeilingInvariant tests that total size never exceeds the ceiling across
// a sequence of admissions.
func (s *ManagerTestSuite) TestCeilingInvariant() {
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		s.fill(id, 40)
		usage, err := s.manager.Usage()
		s.NoError(err)
		s.LessOrEqual(usage.UsedBytes, int64(100), "after admission %d", i)
	}
}

// TestEvictionLRU tests that the least recently accessed entry goes first.
func (s *ManagerTestSuite) TestEvictionLRU() {
	pathA := s.fill("a", 40)
	time.Sleep(10 * time.Millisecond)
	pathB := s.fill("b", 40)
	time.Sleep(10 * time.Millisecond)

	// Touch a so b becomes the oldest.
	var calls int
	_, err := s.manager.GetOrFetch(context.Background(), "a", payloadFetch(nil, &calls))
	s.NoError(err)
	s.Equal(0, calls)
	time.Sleep(10 * time.Millisecond)

	// Admitting c forces one eviction; b must be the victim.
	s.fill("c", 40)

	s.FileExists(pathA)
	s.NoFileExists(pathB)

	_, err = s.manager.GetOrFetch(context.Background(), "b", payloadFetch(bytes.Repeat([]byte("x"), 40), &calls))
	s.NoError(err)
	s.Equal(1, calls)
}

// TestEvictionExpiredFirst tests that expired entries are reclaimed before
// any live entry, regardless of recency.
func (s *ManagerTestSuite) TestEvictionExpiredFirst() {
	expiring, err := NewManager(s.db, s.cacheDir, 100, 50*time.Millisecond)
	s.Require().NoError(err)

	var calls int
	pathA, err := expiring.GetOrFetch(context.Background(), "a",
		payloadFetch(bytes.Repeat([]byte("x"), 40), &calls))
	s.Require().NoError(err)
	time.Sleep(60 * time.Millisecond)

	// a is expired and must be reclaimed before the live entry b.
	pathB := s.fill("b", 40)
	s.fill("c", 40)

	s.NoFileExists(pathA)
	s.FileExists(pathB)
}

// TestCacheFull tests rejection of entries larger than the ceiling.
func (s *ManagerTestSuite) TestCacheFull() {
	var calls int
	_, err := s.manager.GetOrFetch(context.Background(), "huge",
		payloadFetch(bytes.Repeat([]byte("x"), 101), &calls))
	s.ErrorIs(err, ErrCacheFull)
	s.Equal(1, calls)

	usage, err := s.manager.Usage()
	s.NoError(err)
	s.Equal(int64(0), usage.UsedBytes)
}

// TestInvalidate tests single-entry removal and the re-fetch that follows.
func (s *ManagerTestSuite) TestInvalidate() {
	path := s.fill("file1", 10)
	s.NoError(s.manager.Invalidate("file1"))
	s.NoFileExists(path)

	// Unknown ids are a no-op.
	s.NoError(s.manager.Invalidate("missing"))

	var calls int
	_, err := s.manager.GetOrFetch(context.Background(), "file1",
		payloadFetch([]byte("fresh"), &calls))
	s.NoError(err)
	s.Equal(1, calls)
}

// TestClearAll tests wholesale removal.
func (s *ManagerTestSuite) TestClearAll() {
	pathA := s.fill("a", 10)
	pathB := s.fill("b", 10)

	removed, err := s.manager.ClearAll()
	s.NoError(err)
	s.Equal(int64(2), removed)
	s.NoFileExists(pathA)
	s.NoFileExists(pathB)

	usage, err := s.manager.Usage()
	s.NoError(err)
	s.Equal(int64(0), usage.Entries)
}

// TestCleanupExpired tests that only expired entries are removed.
func (s *ManagerTestSuite) TestCleanupExpired() {
	expiring, err := NewManager(s.db, s.cacheDir, 100, 50*time.Millisecond)
	s.Require().NoError(err)

	var calls int
	pathOld, err := expiring.GetOrFetch(context.Background(), "old",
		payloadFetch([]byte("stale"), &calls))
	s.Require().NoError(err)
	time.Sleep(60 * time.Millisecond)
	pathNew := s.fill("new", 10)

	removed, err := s.manager.CleanupExpired()
	s.NoError(err)
	s.Equal(int64(1), removed)
	s.NoFileExists(pathOld)
	s.FileExists(pathNew)
}

// TestExpiredHitRefetches tests that an expired entry does not serve a hit.
func (s *ManagerTestSuite) TestExpiredHitRefetches() {
	expiring, err := NewManager(s.db, s.cacheDir, 100, 50*time.Millisecond)
	s.Require().NoError(err)

	payload := []byte("payload")
	var calls int
	fetch := payloadFetch(payload, &calls)

	_, err = expiring.GetOrFetch(context.Background(), "file1", fetch)
	s.NoError(err)
	time.Sleep(60 * time.Millisecond)

	_, err = expiring.GetOrFetch(context.Background(), "file1", fetch)
	s.NoError(err)
	s.Equal(2, calls)
}

// TestVanishedBytesRefetch tests recovery when the file disappears from disk
// behind the metadata's back.
func (s *ManagerTestSuite) TestVanishedBytesRefetch() {
	path := s.fill("file1", 10)
	s.Require().NoError(os.Remove(path))

	var calls int
	_, err := s.manager.GetOrFetch(context.Background(), "file1",
		payloadFetch([]byte("restored"), &calls))
	s.NoError(err)
	s.Equal(1, calls)
}

// TestUsage tests the occupancy report.
func (s *ManagerTestSuite) TestUsage() {
	s.fill("a", 30)
	s.fill("b", 20)

	usage, err := s.manager.Usage()
	s.NoError(err)
	s.Equal(int64(2), usage.Entries)
	s.Equal(int64(50), usage.UsedBytes)
	s.Equal(int64(100), usage.MaxBytes)
	s.InDelta(50.0, usage.UsedPercent, 0.001)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
