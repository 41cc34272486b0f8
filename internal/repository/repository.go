// Package repository is the thin transactional Facade the Lifecycle
// Engine depends on (spec.md §2 "Repository Facade", §9 "Repository
// interface"): it hides the ledger store's concrete shape behind
// internal/ledger's capability interfaces and owns the
// commit/rollback boundary around a single request, so internal/engine
// never imports internal/ledger/postgres directly.
package repository

import (
	"context"
	"fmt"

	"github.com/procguard/core/internal/ledger"
)

// Facade opens and closes transactions for the engine, translating a
// request's lifetime into exactly one ledger.Tx.
type Facade struct {
	repo ledger.Repository
}

func NewFacade(repo ledger.Repository) *Facade {
	return &Facade{repo: repo}
}

// WithTx opens a transaction, runs fn, and commits on success or rolls
// back on any error or panic. fn's returned error (if any) propagates
// after rollback, preserving the engine's own domain error.
func (f *Facade) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	tx, err := f.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}
