package rag

import (
	"context"
	"fmt"
)

// ReconcileReport describes the consistency of the two stores for one
// user. The stores are written without a joint transaction, so a
// failed Persisting stage can leave a turn in exactly one of them;
// this report gives operators the ids needed to repair either side.
type ReconcileReport struct {
	UserID string

	// LoggedTurns is the number of turns in the relational log.
	LoggedTurns int
	// IndexedRecords is the number of vector records for the user.
	IndexedRecords int

	// MissingFromIndex are turn ids present in the log with no vector
	// record.
	MissingFromIndex []string
	// MissingFromLog are vector record ids with no log row.
	MissingFromLog []string
}

// Consistent reports whether the two stores agree.
func (r ReconcileReport) Consistent() bool {
	return len(r.MissingFromIndex) == 0 && len(r.MissingFromLog) == 0
}

// Reconcile audits the relational log against the vector index for one
// user. It never repairs; it only reports.
func (o *Orchestrator) Reconcile(ctx context.Context, userID string) (ReconcileReport, error) {
	report := ReconcileReport{UserID: userID}

	turns, err := o.log.ListTurns(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("listing turns: %w", err)
	}

	indexed, err := o.index.List(ctx, map[string]string{"user_id": userID})
	if err != nil {
		return report, fmt.Errorf("%w: listing vector records: %v", ErrProviderUnavailable, err)
	}

	report.LoggedTurns = len(turns)
	report.IndexedRecords = len(indexed)

	indexedSet := make(map[string]struct{}, len(indexed))
	for _, id := range indexed {
		indexedSet[id] = struct{}{}
	}
	loggedSet := make(map[string]struct{}, len(turns))
	for _, t := range turns {
		loggedSet[t.ID] = struct{}{}
		if _, ok := indexedSet[t.ID]; !ok {
			report.MissingFromIndex = append(report.MissingFromIndex, t.ID)
		}
	}
	for _, id := range indexed {
		if _, ok := loggedSet[id]; !ok {
			report.MissingFromLog = append(report.MissingFromLog, id)
		}
	}

	if !report.Consistent() {
		o.logger.Warn("store inconsistency detected",
			"user_id", userID,
			"missing_from_index", len(report.MissingFromIndex),
			"missing_from_log", len(report.MissingFromLog),
		)
	}

	return report, nil
}
