// Package engine implements the Lifecycle Engine: spec.md §4.5's atomic
// commit protocol — authorize, load, run the invariant battery, and on
// failure write exactly one PolicyDecision/Violation/evidence
// chain/AuditLog(FAILURE), or on success exactly one BatchEvent and
// AuditLog(SUCCESS). Grounded on original_source/app/core/fsm.py and
// violations.py for the control flow shape, and on the teacher's
// audit.Service pattern (internal/domain/services/audit/service.go) for
// how a domain service wraps a repository and a logger around a single
// write path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/evidence"
	"github.com/procguard/core/internal/fsm"
	"github.com/procguard/core/internal/hashing"
	"github.com/procguard/core/internal/identity"
	"github.com/procguard/core/internal/invariant"
	"github.com/procguard/core/internal/ledger"
	"github.com/procguard/core/internal/logging"
	"github.com/procguard/core/internal/metrics"
	"github.com/procguard/core/internal/policy"
	"github.com/procguard/core/internal/repository"
)

// DomainError is the engine's own error type: Code is always either an
// identity/ledger sentinel code or an invariant.RuleCode, so a caller
// can switch on it without string matching (spec.md §6 "Domain error
// codes").
type DomainError struct {
	Code string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("engine: %s", e.Code)
}

var (
	ErrBatchNotFound     = &DomainError{Code: "BATCH_NOT_FOUND"}
	ErrViolationNotFound = &DomainError{Code: "VIOLATION_NOT_FOUND"}
	ErrViolationNotOpen  = &DomainError{Code: "VIOLATION_NOT_OPEN"}
)

// Request is one commanded action against a batch.
type Request struct {
	BatchID        uuid.UUID
	Event          fsm.Event
	ActorID        string
	ActorRole      identity.Role
	RequestVersion int
	StepID         string
	Now            time.Time

	// ApprovalMethod records which ceremony produced an approve_step
	// request ("password" or "totp"). Purely informational: the
	// invariant battery never reads it, it only cares the actor is a
	// Supervisor. Defaults to "password" when empty.
	ApprovalMethod string
}

// Clock abstracts time.Now so tests can supply a fixed clock.
type Clock func() time.Time

// Engine is the Lifecycle Engine. It depends only on the repository
// Facade's transactional boundary, a clock, and a logger; it never
// imports a concrete store implementation.
type Engine struct {
	facade *repository.Facade
	clock  Clock
	log    *logging.Logger
}

// New builds an Engine. log is used only for security-relevant denial
// events (unauthorized attempts, invariant violations) — every actor
// identifier it logs is redacted first (spec.md §6 "secrets never
// appear in logs"), so log lines can be correlated without exposing
// who did what in plaintext.
func New(facade *repository.Facade, clock Clock, log *logging.Logger) *Engine {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{facade: facade, clock: clock, log: log}
}

// outcome captures what happened inside the transaction so the engine
// can decide, after commit, whether to return a domain error — the
// atomic commit protocol commits the denial record *and* raises an
// error, so the error must be synthesized outside the transaction
// closure (spec.md §4.5 step 4).
type outcome struct {
	violated bool
	rule     invariant.RuleCode
}

// Process authorizes, evaluates, and atomically commits one request.
// On success it returns nil; on a recorded denial it returns a
// *DomainError whose Code equals the violated rule; on an
// authorization failure it returns a *DomainError with no ledger
// writes at all.
func (e *Engine) Process(ctx context.Context, req Request) error {
	if req.Now.IsZero() {
		req.Now = e.clock()
	}

	if err := identity.Authorize(req.ActorRole, identity.Event(req.Event)); err != nil {
		metrics.LifecycleTransitionsTotal.WithLabelValues(string(req.Event), "unauthorized").Inc()
		e.logWarn("lifecycle transition denied: unauthorized",
			"event", string(req.Event), "actor_id", logging.Redact(req.ActorID), "actor_role", string(req.ActorRole))
		return mapIdentityError(err)
	}

	var result outcome
	txErr := e.facade.WithTx(ctx, func(tx ledger.Tx) error {
		batch, err := tx.LoadBatchForUpdate(ctx, req.BatchID)
		if err != nil {
			return err
		}

		facts, err := e.buildFacts(ctx, tx, batch, req)
		if err != nil {
			return err
		}

		evalResult := invariant.Evaluate(facts)
		if evalResult.Violated {
			result = outcome{violated: true, rule: evalResult.Rule}
			return e.commitViolation(ctx, tx, batch, req, facts, evalResult.Rule)
		}

		result = outcome{violated: false}
		return e.commitAdvance(ctx, tx, batch, req)
	})

	if txErr != nil {
		if errors.Is(txErr, ledger.ErrBatchNotFound) {
			metrics.LifecycleTransitionsTotal.WithLabelValues(string(req.Event), "not_found").Inc()
			return ErrBatchNotFound
		}
		return fmt.Errorf("engine: process: %w", txErr)
	}

	if result.violated {
		metrics.LifecycleTransitionsTotal.WithLabelValues(string(req.Event), "violated").Inc()
		metrics.ViolationsTotal.WithLabelValues(string(result.rule)).Inc()
		e.logError("lifecycle transition denied: invariant violated",
			"event", string(req.Event), "rule_code", string(result.rule),
			"batch_id", req.BatchID, "actor_id", logging.Redact(req.ActorID), "actor_role", string(req.ActorRole))
		return &DomainError{Code: string(result.rule)}
	}
	metrics.LifecycleTransitionsTotal.WithLabelValues(string(req.Event), "success").Inc()
	return nil
}

// ResolveViolationRequest is a Supervisor's explicit, audited decision
// to close an OPEN violation (spec.md §3) — the one mutation the
// violations table's immutability trigger permits.
type ResolveViolationRequest struct {
	ViolationID uuid.UUID
	ActorID     string
	ActorRole   identity.Role
	Now         time.Time
}

// ResolveViolation authorizes the actor, moves the violation from OPEN
// to RESOLVED, and writes exactly one AuditLog(SUCCESS) row in the same
// transaction — nothing about this path bypasses the audit trail the
// storage trigger's comment promises.
func (e *Engine) ResolveViolation(ctx context.Context, req ResolveViolationRequest) error {
	if req.Now.IsZero() {
		req.Now = e.clock()
	}
	if err := identity.Authorize(req.ActorRole, identity.EventResolveViolation); err != nil {
		e.logWarn("violation resolution denied: unauthorized",
			"actor_id", logging.Redact(req.ActorID), "actor_role", string(req.ActorRole))
		return mapIdentityError(err)
	}

	txErr := e.facade.WithTx(ctx, func(tx ledger.Tx) error {
		violation, err := tx.ResolveViolation(ctx, req.ViolationID)
		if err != nil {
			return err
		}

		batch, err := tx.LoadBatchForUpdate(ctx, violation.BatchID)
		if err != nil {
			return err
		}

		auditPayload := map[string]any{
			"violation_id": violation.ViolationID.String(),
			"batch_id":     violation.BatchID.String(),
			"rule_code":    violation.RuleCode,
			"actor":        req.ActorID,
			"actor_role":   string(req.ActorRole),
		}
		auditHash, err := hashing.CanonicalHash(auditPayload)
		if err != nil {
			return err
		}
		audit := entities.AuditLog{
			AuditID:       uuid.New(),
			BatchID:       &violation.BatchID,
			ExpectedState: batch.CurrentState,
			ActualState:   batch.CurrentState,
			Action:        fsm.EventResolveViolation,
			Result:        entities.AuditResultSuccess,
			Actor:         req.ActorID,
			ActorRole:     req.ActorRole,
			Timestamp:     req.Now,
			ViolationID:   &violation.ViolationID,
			AuditHash:     auditHash,
			Payload:       auditPayload,
		}
		return tx.InsertAudit(ctx, audit)
	})

	if txErr != nil {
		if errors.Is(txErr, ledger.ErrViolationNotFound) {
			return ErrViolationNotFound
		}
		if errors.Is(txErr, ledger.ErrViolationNotOpen) {
			return ErrViolationNotOpen
		}
		return fmt.Errorf("engine: resolve violation: %w", txErr)
	}
	return nil
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if e.log != nil {
		e.log.Warn(msg, keysAndValues...)
	}
}

func (e *Engine) logError(msg string, keysAndValues ...any) {
	if e.log != nil {
		e.log.Error(msg, keysAndValues...)
	}
}

func mapIdentityError(err error) error {
	switch err {
	case identity.ErrUnauthorized:
		return &DomainError{Code: "UNAUTHORIZED"}
	case identity.ErrInvalidRole:
		return &DomainError{Code: "INVALID_ROLE"}
	default:
		return err
	}
}

// buildFacts resolves every fact the invariant battery needs, strictly
// from the ledger and the pinned procedure version — never from
// request fields the battery itself shouldn't trust (spec.md §4.4's
// "approval required" note).
func (e *Engine) buildFacts(ctx context.Context, tx ledger.Tx, batch entities.Batch, req Request) (invariant.Facts, error) {
	facts := invariant.Facts{
		CurrentState:   batch.CurrentState,
		Event:          req.Event,
		ActorRole:      req.ActorRole,
		RequestVersion: req.RequestVersion,
		BoundVersion:   batch.ProcedureVersion,
		StepID:         req.StepID,
		Now:            req.Now,
	}

	// Terminal/invalid-transition/version checks run ahead of any step
	// lookup, so a request that fails those doesn't need a valid StepID.
	if fsm.IsTerminal(facts.CurrentState) {
		return facts, nil
	}
	if _, ok := fsm.Next(facts.CurrentState, req.Event); !ok {
		return facts, nil
	}
	if facts.RequestVersion != facts.BoundVersion {
		return facts, nil
	}

	if req.StepID == "" {
		return facts, nil
	}

	exists, err := tx.FindExistingApproval(ctx, req.BatchID, req.StepID)
	if err != nil {
		return invariant.Facts{}, err
	}
	facts.ApprovalExists = exists

	step, err := tx.FetchStepDefinition(ctx, batch.ProcedureID, batch.ProcedureVersion, req.StepID)
	if err == nil {
		facts.StepRequiresApproval = step.RequiresApproval
	}
	// StepAlreadyAdvanced: an approval attempt on a step the batch has
	// already moved past. Resolved as "the batch is no longer
	// AWAITING_APPROVAL for this step" — true whenever the current state
	// isn't AWAITING_APPROVAL at the moment of an approve_step request.
	if req.Event == fsm.EventApproveStep {
		facts.StepAlreadyAdvanced = facts.CurrentState != fsm.StateAwaitingApproval
	}

	return facts, nil
}

func (e *Engine) commitAdvance(ctx context.Context, tx ledger.Tx, batch entities.Batch, req Request) error {
	nextState, _ := fsm.Next(batch.CurrentState, req.Event)

	payload := map[string]any{"actor": req.ActorID, "actor_role": string(req.ActorRole)}
	if req.Event == fsm.EventApproveStep {
		method := req.ApprovalMethod
		if method == "" {
			method = "password"
		}
		payload["approval_method"] = method
	}

	event := entities.BatchEvent{
		EventID:    uuid.New(),
		BatchID:    req.BatchID,
		EventType:  req.Event,
		StepID:     req.StepID,
		Payload:    payload,
		OccurredAt: req.Now,
	}
	if err := tx.AppendEvent(ctx, event); err != nil {
		return err
	}
	if err := tx.UpdateBatchState(ctx, req.BatchID, nextState); err != nil {
		return err
	}

	auditPayload := map[string]any{
		"batch_id":       req.BatchID.String(),
		"action":         string(req.Event),
		"actor":          req.ActorID,
		"actor_role":     string(req.ActorRole),
		"expected_state": string(nextState),
		"actual_state":   string(nextState),
	}
	auditHash, err := hashing.CanonicalHash(auditPayload)
	if err != nil {
		return err
	}
	audit := entities.AuditLog{
		AuditID:       uuid.New(),
		BatchID:       &req.BatchID,
		ExpectedState: nextState,
		ActualState:   nextState,
		Action:        req.Event,
		Result:        entities.AuditResultSuccess,
		Actor:         req.ActorID,
		ActorRole:     req.ActorRole,
		Timestamp:     req.Now,
		AuditHash:     auditHash,
		Payload:       auditPayload,
	}
	return tx.InsertAudit(ctx, audit)
}

func (e *Engine) commitViolation(ctx context.Context, tx ledger.Tx, batch entities.Batch, req Request, facts invariant.Facts, rule invariant.RuleCode) error {
	violationPayload := map[string]any{
		"batch_id":   req.BatchID.String(),
		"event":      string(req.Event),
		"rule_code":  string(rule),
		"actor":      req.ActorID,
		"actor_role": string(req.ActorRole),
	}

	inputFacts := policy.InputFacts{
		BatchID:        req.BatchID.String(),
		Event:          string(req.Event),
		ActorRole:      string(req.ActorRole),
		CurrentState:   string(facts.CurrentState),
		RequestVersion: facts.RequestVersion,
		BoundVersion:   facts.BoundVersion,
	}
	decision, err := policy.Deny(string(rule), req.BatchID.String(), inputFacts, req.Now)
	if err != nil {
		return err
	}
	if err := tx.InsertPolicyDecision(ctx, decision); err != nil {
		return err
	}

	sop, sopFound, err := tx.ResolveSOP(ctx, string(rule))
	if err != nil {
		return err
	}
	var sopID *string
	if sopFound {
		id := sop.SOPID
		sopID = &id
	}

	violationHash, err := hashing.CanonicalHash(violationPayload)
	if err != nil {
		return err
	}
	violation := entities.Violation{
		ViolationID:     uuid.New(),
		BatchID:         req.BatchID,
		RuleCode:        string(rule),
		SOPID:           sopID,
		DetectedAt:      req.Now,
		Status:          entities.ViolationStatusOpen,
		ViolationHash:   violationHash,
		OPADecisionHash: decision.DecisionHash,
		Payload:         violationPayload,
	}
	if err := tx.InsertViolation(ctx, violation); err != nil {
		return err
	}

	// Terminal-state denials are recorded against the batch's existing
	// terminal state; only a non-terminal denial actually moves the
	// batch to VIOLATED.
	if rule != invariant.RuleTerminalStateMutation {
		if err := tx.UpdateBatchState(ctx, req.BatchID, fsm.StateViolated); err != nil {
			return err
		}
	}

	if err := e.buildEnforcementChain(ctx, tx, violation, sop, sopFound, req.Now); err != nil {
		return err
	}

	finalState := fsm.StateViolated
	if rule == invariant.RuleTerminalStateMutation {
		finalState = batch.CurrentState
	}

	auditPayload := map[string]any{
		"batch_id":       req.BatchID.String(),
		"action":         string(req.Event),
		"actor":          req.ActorID,
		"actor_role":     string(req.ActorRole),
		"expected_state": string(batch.CurrentState),
		"actual_state":   string(finalState),
		"violation_id":   violation.ViolationID.String(),
		"rule_code":      string(rule),
	}
	auditHash, err := hashing.CanonicalHash(auditPayload)
	if err != nil {
		return err
	}
	violationHashLink := violation.ViolationHash
	audit := entities.AuditLog{
		AuditID:           uuid.New(),
		BatchID:           &req.BatchID,
		ExpectedState:     batch.CurrentState,
		ActualState:       finalState,
		Action:            req.Event,
		Result:            entities.AuditResultFailure,
		Actor:             req.ActorID,
		ActorRole:         req.ActorRole,
		Timestamp:         req.Now,
		ViolationID:        &violation.ViolationID,
		AuditHash:         auditHash,
		ViolationHashLink: &violationHashLink,
		Payload:           auditPayload,
	}
	return tx.InsertAudit(ctx, audit)
}

// buildEnforcementChain appends the evidence chain nodes spec.md §4.5
// prescribes: VIOLATION_DETECTED, then SOP_INVOKED and one
// ENFORCEMENT_EXECUTED per SOP action, conditional on a non-null SOP
// resolution (spec.md §9's design note on SOP lookup).
func (e *Engine) buildEnforcementChain(ctx context.Context, tx ledger.Tx, violation entities.Violation, sop entities.SOP, sopFound bool, now time.Time) error {
	builder := evidence.NewBuilder(violation.ViolationID, "")

	node := builder.Append(entities.EvidenceViolationDetected, violation.RuleCode, now)
	if err := tx.InsertEvidenceNode(ctx, node); err != nil {
		return err
	}

	if !sopFound {
		return nil
	}

	sopNode := builder.Append(entities.EvidenceSOPInvoked, sop.SOPID, now)
	if err := tx.InsertEvidenceNode(ctx, sopNode); err != nil {
		return err
	}

	for _, action := range sop.Actions {
		enforcementNode := builder.Append(entities.EvidenceEnforcementExecuted, action.RuleID, now)
		if err := tx.InsertEvidenceNode(ctx, enforcementNode); err != nil {
			return err
		}
		enforcementEvent := entities.EnforcementEvent{
			ID:          uuid.New(),
			ViolationID: violation.ViolationID,
			Action:      action.Action,
			ExecutedAt:  now,
			NodeID:      enforcementNode.ID,
		}
		if err := tx.InsertEnforcementEvent(ctx, enforcementEvent); err != nil {
			return err
		}
	}
	return nil
}
