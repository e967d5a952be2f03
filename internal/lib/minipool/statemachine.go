package minipool

// allowedTransitions is the canonical transition table and the single source
// of truth for status changes.  Every mutating operation fetches the current
// status and checks the target against this table before doing anything else.
//
// Withdrawable -> Withdrawable re-affirms the status on the settlement and
// periodic-distribution paths.  Withdrawable/Error -> Prelaunch and
// Finished/Canceled -> Prelaunch are re-admission only (cycle renewal and
// record reuse respectively).
var allowedTransitions = map[MinipoolStatus][]MinipoolStatus{
	StatusPrelaunch:    {StatusLaunched, StatusCanceled},
	StatusLaunched:     {StatusStaking, StatusError},
	StatusStaking:      {StatusWithdrawable, StatusError},
	StatusWithdrawable: {StatusWithdrawable, StatusFinished, StatusPrelaunch},
	StatusError:        {StatusFinished, StatusPrelaunch},
	StatusFinished:     {StatusPrelaunch},
	StatusCanceled:     {StatusPrelaunch},
}

// requireValidTransition returns a state-transition error unless the table
// permits from -> to.
func requireValidTransition(from, to MinipoolStatus) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidStateTransitionError{From: from, To: to}
}
