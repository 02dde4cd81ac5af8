package testutil

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/stretchr/testify/suite"
)

// FileSuite is a testify suite with a scratch directory for input and
// output files and a context bounding the whole suite
type FileSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	dir    string
}

func (s *FileSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 2*time.Minute)
	s.dir = s.T().TempDir()
}

func (s *FileSuite) TearDownSuite() {
	s.cancel()
}

func (s *FileSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the suite's scratch directory
func (s *FileSuite) TempDir() string {
	return s.dir
}

// CreateTempFile writes content to name in the scratch directory and
// returns its path
func (s *FileSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, content, 0o600))
	return path
}

// WriteCSV writes rows generated lines matching ExampleSchema
func (s *FileSuite) WriteCSV(name string, rows int, seed int64) string {
	return s.CreateTempFile(name, GenerateCSV(rows, seed))
}
