package alerts

import (
	"time"

	"scholarwatch/internal/types"
)

// applySnooze moves an alert into the snoozed state for SnoozeDuration.
// Snoozing an alert whose snooze is still running changes nothing; an alert
// whose snooze has elapsed reads as pending and is snoozed again.
func applySnooze(a types.Alert, requester string, now time.Time) (types.Alert, bool, error) {
	if err := checkOwner(a, requester); err != nil {
		return a, false, err
	}
	if a.Status == types.AlertStatusDismissed {
		return a, false, types.NewAppError(types.ErrCodeConflictAlertDismissed, "alert has already been dismissed", nil)
	}
	if a.SnoozedAt(now) {
		return a, false, nil
	}

	until := now.Add(types.SnoozeDuration)
	a.Status = types.AlertStatusSnoozed
	a.SnoozeUntil = &until
	return a, true, nil
}

// applyDismiss moves an alert into the terminal dismissed state. Dismissing a
// dismissed alert is a no-op. SnoozeUntil is cleared so that it stays set
// exactly while the alert is snoozed.
func applyDismiss(a types.Alert, requester string, now time.Time) (types.Alert, bool, error) {
	if err := checkOwner(a, requester); err != nil {
		return a, false, err
	}
	if a.Status == types.AlertStatusDismissed {
		return a, false, nil
	}

	at := now
	a.Status = types.AlertStatusDismissed
	a.SnoozeUntil = nil
	a.DismissedAt = &at
	return a, true, nil
}

func checkOwner(a types.Alert, requester string) error {
	if requester == "" || a.StudentID != requester {
		return types.NewAppError(types.ErrCodePermissionOwnerMismatch, "alert belongs to another student", nil)
	}
	return nil
}
