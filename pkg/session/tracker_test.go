package session

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"sharegate/pkg/models"
	"sharegate/pkg/storage"
)

// TrackerTestSuite tests the download session state machine.
type TrackerTestSuite struct {
	suite.Suite
	tempDir string
	dbPath  string
	db      *sql.DB
	tracker *Tracker
}

// SetupSuite runs once before all tests.
func (s *TrackerTestSuite) SetupSuite() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "session-test-*")
	s.Require().NoError(err)
}

// TearDownSuite runs once after all tests.
func (s *TrackerTestSuite) TearDownSuite() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

// SetupTest runs before each test.
func (s *TrackerTestSuite) SetupTest() {
	s.dbPath = filepath.Join(s.tempDir, "test.db")
	var err error
	s.db, err = storage.Open(s.dbPath)
	s.Require().NoError(err)
	s.tracker = NewTracker(s.db)
}

// TearDownTest runs after each test.
func (s *TrackerTestSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
	os.Remove(s.dbPath)
}

func (s *TrackerTestSuite) begin(totalBytes int64) *models.Session {
	sess, err := s.tracker.Begin("code1", "file1", "10.0.0.1", "curl/8.0", totalBytes, 1024)
	s.Require().NoError(err)
	return sess
}

// TestBegin tests session creation in the pending state.
func (s *TrackerTestSuite) TestBegin() {
	sess := s.begin(500)
	s.Equal(models.SessionPending, sess.Status)
	s.Equal(models.MethodDirect, sess.Method)
	s.Equal(int64(0), sess.DownloadedBytes)

	stored, err := s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(models.SessionPending, stored.Status)
}

// TestBeginRelayMethod tests method selection for oversized files.
func (s *TrackerTestSuite) TestBeginRelayMethod() {
	sess := s.begin(4096)
	s.Equal(models.MethodRelay, sess.Method)
}

// TestChooseMethod tests the size-vs-ceiling selection function.
func (s *TrackerTestSuite) TestChooseMethod() {
	testCases := []struct {
		size   int64
		limit  int64
		method models.RetrievalMethod
	}{
		{100, 1024, models.MethodDirect},
		{1024, 1024, models.MethodDirect},
		{1025, 1024, models.MethodRelay},
		{1 << 30, 1024, models.MethodRelay},
		{1 << 30, 0, models.MethodDirect}, // no ceiling configured
	}
	for _, tc := range testCases {
		s.Equal(tc.method, ChooseMethod(tc.size, tc.limit))
	}
}

// TestProgressLifecycle tests pending -> downloading with monotonic bytes.
func (s *TrackerTestSuite) TestProgressLifecycle() {
	sess := s.begin(300)

	// Progress before the transfer starts changes nothing.
	s.NoError(s.tracker.Progress(sess.ID, 50))
	stored, err := s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(int64(0), stored.DownloadedBytes)

	s.NoError(s.tracker.Start(sess.ID))
	s.NoError(s.tracker.Progress(sess.ID, 100))
	s.NoError(s.tracker.Progress(sess.ID, 150))
	s.NoError(s.tracker.Progress(sess.ID, 0))
	s.NoError(s.tracker.Progress(sess.ID, -10))

	stored, err = s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(models.SessionDownloading, stored.Status)
	s.Equal(int64(250), stored.DownloadedBytes)
}

// TestFinishIdempotent tests that the second finalization has no observable
// effect.
func (s *TrackerTestSuite) TestFinishIdempotent() {
	sess := s.begin(100)
	s.NoError(s.tracker.Start(sess.ID))
	s.NoError(s.tracker.Finish(sess.ID, true, ""))

	stored, err := s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(models.SessionCompleted, stored.Status)
	s.NotNil(stored.CompletedAt)
	firstCompleted := *stored.CompletedAt

	// A second, contradictory call is ignored.
	s.NoError(s.tracker.Finish(sess.ID, false, "boom"))

	stored, err = s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(models.SessionCompleted, stored.Status)
	s.Empty(stored.ErrorDetail)
	s.Equal(firstCompleted, *stored.CompletedAt)
}

// TestFinishFailed tests failure finalization with detail.
func (s *TrackerTestSuite) TestFinishFailed() {
	sess := s.begin(100)
	s.NoError(s.tracker.Start(sess.ID))
	s.NoError(s.tracker.Finish(sess.ID, false, "origin timeout"))

	stored, err := s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(models.SessionFailed, stored.Status)
	s.Equal("origin timeout", stored.ErrorDetail)
}

// TestCancel tests cancellation and that terminal sessions stay terminal.
func (s *TrackerTestSuite) TestCancel() {
	sess := s.begin(100)
	s.NoError(s.tracker.Start(sess.ID))
	s.NoError(s.tracker.Progress(sess.ID, 10))
	s.NoError(s.tracker.Cancel(sess.ID))

	stored, err := s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(models.SessionCancelled, stored.Status)
	s.Equal(int64(10), stored.DownloadedBytes)

	// No resurrection: progress and finish on a cancelled session no-op.
	s.NoError(s.tracker.Progress(sess.ID, 999))
	s.NoError(s.tracker.Finish(sess.ID, true, ""))

	stored, err = s.tracker.Get(sess.ID)
	s.NoError(err)
	s.Equal(models.SessionCancelled, stored.Status)
	s.Equal(int64(10), stored.DownloadedBytes)
}

// TestListActive tests active-session listing and counting.
func (s *TrackerTestSuite) TestListActive() {
	first := s.begin(100)
	second := s.begin(100)
	third := s.begin(100)
	s.Require().NoError(s.tracker.Start(second.ID))
	s.Require().NoError(s.tracker.Finish(third.ID, true, ""))

	active, err := s.tracker.ListActive()
	s.NoError(err)
	s.Len(active, 2)

	count, err := s.tracker.CountActive()
	s.NoError(err)
	s.Equal(int64(2), count)

	_ = first
}

// TestGetMissing tests the not-found path.
func (s *TrackerTestSuite) TestGetMissing() {
	_, err := s.tracker.Get("missing")
	s.ErrorIs(err, ErrSessionNotFound)
}

func TestTrackerTestSuite(t *testing.T) {
	suite.Run(t, new(TrackerTestSuite))
}

func TestProgressPercent(t *testing.T) {
	testCases := []struct {
		downloaded int64
		total      int64
		expected   float64
	}{
		{0, 100, 0},
		{50, 100, 50},
		{100, 100, 100},
		{150, 100, 100}, // clamped
		{10, 0, 0},      // unknown total
	}
	for _, tc := range testCases {
		sess := &models.Session{DownloadedBytes: tc.downloaded, TotalBytes: tc.total}
		assert.InDelta(t, tc.expected, sess.ProgressPercent(), 0.001)
	}
}
