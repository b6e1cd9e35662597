package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// ChallengeTypeTOTP is the only challenge type currently issued.
const ChallengeTypeTOTP = "totp"

// ErrMarkerUnavailable wraps marker backend failures. The gate fails closed.
var ErrMarkerUnavailable = errors.New("mfa marker backend unavailable")

// Decision is the outcome of Gate.Evaluate.
type Decision int

const (
	// DecisionIssue allows full token issuance.
	DecisionIssue Decision = iota
	// DecisionIssueSetupRequired allows issuance but flags that MFA is not enrolled.
	DecisionIssueSetupRequired
	// DecisionChallenge withholds tokens until the second factor is verified.
	DecisionChallenge
)

func (d Decision) String() string {
	switch d {
	case DecisionIssue:
		return "issue"
	case DecisionIssueSetupRequired:
		return "issue_setup_required"
	case DecisionChallenge:
		return "challenge"
	default:
		return "unknown"
	}
}

// Challenge is returned to the caller instead of tokens.
type Challenge struct {
	UserID      string    `json:"userId"`
	MFARequired bool      `json:"mfaRequired"`
	Type        string    `json:"type"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Result carries the decision and, for DecisionChallenge, the challenge payload.
//
// MarkerPending is set when the decision rests on a verified marker that has
// not been consumed yet; the caller must call Gate.Consume right before it
// issues tokens.
type Result struct {
	Decision      Decision
	Challenge     *Challenge
	MarkerPending bool
}

// MarkerStore holds short-lived "second factor verified" markers per identity.
//
// HasVerified must not modify the marker. ConsumeVerified must read and
// delete atomically so a marker admits exactly one login.
type MarkerStore interface {
	SetVerified(ctx context.Context, userID string, ttl time.Duration) error
	HasVerified(ctx context.Context, userID string) (bool, error)
	ConsumeVerified(ctx context.Context, userID string) (bool, error)
	Clear(ctx context.Context, userID string) error
}

// Gate applies the MFA policy to identities holding ElevatedRole.
type Gate struct {
	elevatedRole string
	markers      MarkerStore
	challengeTTL time.Duration
	now          func() time.Time
}

// NewGate returns a Gate. challengeTTL bounds how long the returned challenge
// is advertised as valid; it defaults to five minutes.
func NewGate(elevatedRole string, markers MarkerStore, challengeTTL time.Duration, now func() time.Time) *Gate {
	if challengeTTL <= 0 {
		challengeTTL = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{elevatedRole: elevatedRole, markers: markers, challengeTTL: challengeTTL, now: now}
}

// Evaluate decides whether id may receive tokens now. It only reads the
// verified marker; see Consume.
func (g *Gate) Evaluate(ctx context.Context, id *store.Identity) (Result, error) {
	if id == nil || g.elevatedRole == "" || id.GlobalRole != g.elevatedRole {
		return Result{Decision: DecisionIssue}, nil
	}
	if !id.MFAEnabled {
		return Result{Decision: DecisionIssueSetupRequired}, nil
	}
	if g.markers == nil {
		return Result{}, fmt.Errorf("%w: no marker store configured", ErrMarkerUnavailable)
	}

	verified, err := g.markers.HasVerified(ctx, id.ID)
	if err != nil {
		return Result{}, err
	}
	if verified {
		return Result{Decision: DecisionIssue, MarkerPending: true}, nil
	}
	return g.challenge(id.ID), nil
}

// Consume spends the verified marker of userID. It returns DecisionIssue when
// the marker was still present and a fresh challenge when a concurrent login
// spent it first.
func (g *Gate) Consume(ctx context.Context, userID string) (Result, error) {
	if g.markers == nil {
		return Result{}, fmt.Errorf("%w: no marker store configured", ErrMarkerUnavailable)
	}
	ok, err := g.markers.ConsumeVerified(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return g.challenge(userID), nil
	}
	return Result{Decision: DecisionIssue}, nil
}

func (g *Gate) challenge(userID string) Result {
	return Result{
		Decision: DecisionChallenge,
		Challenge: &Challenge{
			UserID:      userID,
			MFARequired: true,
			Type:        ChallengeTypeTOTP,
			ExpiresAt:   g.now().Add(g.challengeTTL),
		},
	}
}

// Applies reports whether identities with globalRole are subject to the gate.
func (g *Gate) Applies(globalRole string) bool {
	return g.elevatedRole != "" && globalRole == g.elevatedRole
}
