package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"
)

// LakeSuite gives every test in a suite a fresh project and a bounded
// context. Embed it and call suite.Run.
type LakeSuite struct {
	suite.Suite
	Project *Project

	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// SetupTest runs before each test in the suite
func (s *LakeSuite) SetupTest() {
	s.startTime = time.Now()
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 2*time.Minute)
	TestLogger(s.T())
	s.Project = NewProject(s.T())
}

// TearDownTest runs after each test in the suite
func (s *LakeSuite) TearDownTest() {
	s.cancel()
	s.T().Logf("completed in %v", time.Since(s.startTime))
}

// Context returns the test context
func (s *LakeSuite) Context() context.Context {
	return s.ctx
}
