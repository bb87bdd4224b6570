package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/dealersites/internal/activity"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/propagation"
)

type AutoCheckPropagationWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *AutoCheckPropagationWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *AutoCheckPropagationWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

var testBackoff = propagation.Backoff{Initial: 30 * time.Second, Max: 10 * time.Minute, Multiplier: 1.5, MaxAttempts: 3}

func partial(passed int) *model.PropagationStatus {
	return &model.PropagationStatus{Overall: model.PropagationOverall{ChecksPassed: passed, TotalChecks: 3, Percentage: passed * 100 / 3}}
}

func full() *model.PropagationStatus {
	return &model.PropagationStatus{Overall: model.PropagationOverall{ChecksPassed: 3, TotalChecks: 3, Percentage: 100, FullyPropagated: true}}
}

func (s *AutoCheckPropagationWorkflowTestSuite) TestCompletesWhenFullyPropagated() {
	s.env.OnActivity("CheckPropagation", mock.Anything, "onb-1").Return(partial(1), nil).Once()
	s.env.OnActivity("CheckPropagation", mock.Anything, "onb-1").Return(full(), nil).Once()
	s.env.OnActivity("FinishAutoCheck", mock.Anything, activity.FinishAutoCheckParams{
		OnboardingID: "onb-1",
		Status:       model.AutoCheckCompleted,
		Attempts:     2,
	}).Return(nil)

	s.env.ExecuteWorkflow(AutoCheckPropagationWorkflow, "onb-1", testBackoff)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *AutoCheckPropagationWorkflowTestSuite) TestGivesUpAfterMaxAttempts() {
	s.env.OnActivity("CheckPropagation", mock.Anything, "onb-1").Return(partial(2), nil).Times(3)
	s.env.OnActivity("FinishAutoCheck", mock.Anything, activity.FinishAutoCheckParams{
		OnboardingID: "onb-1",
		Status:       model.AutoCheckGaveUp,
		Attempts:     3,
	}).Return(nil)

	s.env.ExecuteWorkflow(AutoCheckPropagationWorkflow, "onb-1", testBackoff)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *AutoCheckPropagationWorkflowTestSuite) TestOnboardingMovedOnEndsQuietly() {
	s.env.OnActivity("CheckPropagation", mock.Anything, "onb-1").
		Return(nil, temporal.NewNonRetryableApplicationError("illegal onboarding state transition", activity.ErrTypeIllegalTransition, nil))

	s.env.ExecuteWorkflow(AutoCheckPropagationWorkflow, "onb-1", testBackoff)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *AutoCheckPropagationWorkflowTestSuite) TestCancelStopsChecks() {
	s.env.OnActivity("CheckPropagation", mock.Anything, "onb-1").Return(partial(1), nil).Once()
	// First check runs at 30s, the second would run at 75s.
	s.env.RegisterDelayedCallback(func() {
		s.env.CancelWorkflow()
	}, time.Minute)

	s.env.ExecuteWorkflow(AutoCheckPropagationWorkflow, "onb-1", testBackoff)
	s.True(s.env.IsWorkflowCompleted())
	s.True(temporal.IsCanceledError(s.env.GetWorkflowError()))
}

func TestAutoCheckPropagationWorkflow(t *testing.T) {
	suite.Run(t, new(AutoCheckPropagationWorkflowTestSuite))
}
