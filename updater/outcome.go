package updater

import (
	"context"
	"errors"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/criteria"
	"xdao.co/modelsync/storage"
)

type Status int

const (
	Unchanged Status = iota
	Updated
	Failed
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Reason classifies a failed sync. It is empty for other statuses.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonUnavailable   Reason = "unavailable"
	ReasonTimeout       Reason = "timeout"
	ReasonCorrupt       Reason = "corrupt"
	ReasonHashMismatch  Reason = "hash_mismatch"
	ReasonInvalidCommit Reason = "invalid_commit"
	ReasonIneligible    Reason = "ineligible"
	ReasonInternal      Reason = "internal"
)

// Outcome is the result of syncing one publisher.
type Outcome struct {
	Status Status
	Reason Reason
	Err    error
}

func (o Outcome) String() string {
	if o.Status != Failed {
		return o.Status.String()
	}
	return o.Status.String() + "(" + string(o.Reason) + ")"
}

// Classify maps an error from any collaborator onto a Reason.
// It returns "" for a nil error.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, storage.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, context.Canceled):
		return ReasonUnavailable
	case errors.Is(err, storage.ErrInvalidCommit):
		return ReasonInvalidCommit
	case errors.Is(err, storage.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, artifact.ErrHashMismatch), errors.Is(err, artifact.ErrInvalidHash):
		return ReasonHashMismatch
	case errors.Is(err, storage.ErrCorrupt), errors.Is(err, artifact.ErrInvalidIdentity):
		return ReasonCorrupt
	case errors.Is(err, criteria.ErrIneligible):
		return ReasonIneligible
	}
	return ReasonInternal
}
