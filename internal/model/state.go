package model

import (
	"errors"
	"fmt"
)

// OnboardingState is the closed set of states a DomainOnboarding moves through.
type OnboardingState string

const (
	StatePending                OnboardingState = "pending"
	StateDNSAnalyzed            OnboardingState = "dns_analyzed"
	StateRouteSelected          OnboardingState = "route_selected"
	StateConfigurationGenerated OnboardingState = "configuration_generated"
	StateAwaitingPropagation    OnboardingState = "awaiting_propagation"
	StateVerificationComplete   OnboardingState = "verification_complete"
	StateConfigurationComplete  OnboardingState = "configuration_complete"
	StateDeploying              OnboardingState = "deploying"
	StateSSLProvisioning        OnboardingState = "ssl_provisioning"
	StateLive                   OnboardingState = "live"
	StateFailed                 OnboardingState = "failed"
)

var ErrIllegalTransition = errors.New("illegal onboarding state transition")

// TransitionError reports a rejected state change.
type TransitionError struct {
	From OnboardingState
	To   OnboardingState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Self-loops on dns_analyzed and route_selected allow re-running analysis
// and changing the route before configuration is generated.
var transitions = map[OnboardingState][]OnboardingState{
	StatePending:                {StateDNSAnalyzed, StateFailed},
	StateDNSAnalyzed:            {StateDNSAnalyzed, StateRouteSelected, StateFailed},
	StateRouteSelected:          {StateRouteSelected, StateDNSAnalyzed, StateConfigurationGenerated, StateFailed},
	StateConfigurationGenerated: {StateConfigurationGenerated, StateAwaitingPropagation, StateRouteSelected, StateFailed},
	StateAwaitingPropagation:    {StateVerificationComplete, StateConfigurationComplete, StateRouteSelected, StateFailed},
	StateVerificationComplete:   {StateDeploying, StateFailed},
	StateConfigurationComplete:  {StateDeploying, StateFailed},
	StateDeploying:              {StateSSLProvisioning, StateLive, StateFailed},
	StateSSLProvisioning:        {StateLive, StateFailed},
	StateLive:                   nil,
	StateFailed:                 nil,
}

// Valid reports whether s is a known state.
func (s OnboardingState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s OnboardingState) Terminal() bool {
	return s == StateLive || s == StateFailed
}

func (s OnboardingState) CanTransitionTo(to OnboardingState) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when from -> to is not allowed.
func ValidateTransition(from, to OnboardingState) error {
	if !from.CanTransitionTo(to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// PropagatedState is the state an onboarding enters once DNS for the route is visible.
func PropagatedState(route Route) OnboardingState {
	if route == RouteSubdomain {
		return StateConfigurationComplete
	}
	return StateVerificationComplete
}

// ReadyToDeploy reports whether a deployment may be started from s.
func (s OnboardingState) ReadyToDeploy() bool {
	return s == StateVerificationComplete || s == StateConfigurationComplete
}
