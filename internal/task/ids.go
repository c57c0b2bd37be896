package task

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// StartingVersion is the first version observed by any task, per §3. It is
// chosen greater than zero so that callers can use 0 as a sentinel meaning
// "no version observed yet".
const StartingVersion int64 = 1

// QueryID, StageID, and PartitionID identify where in a query's physical
// plan a task instance runs. AttemptID distinguishes retried instances of
// the same stage/partition.
type (
	QueryID     string
	StageID     int
	PartitionID int
	AttemptID   int
)

// ID is the immutable identity of a task. InstanceULID is regenerated on
// every call to NewID so that peers can detect a worker restart mid-query:
// two tasks with the same (Query, Stage, Partition, Attempt) but different
// InstanceULID values are never the same execution.
type ID struct {
	Query        QueryID
	Stage        StageID
	Partition    PartitionID
	Attempt      AttemptID
	InstanceULID ulid.ULID
}

// NewID builds an ID for a freshly created task, generating a new instance
// ULID.
func NewID(query QueryID, stage StageID, partition PartitionID, attempt AttemptID) ID {
	return ID{
		Query:        query,
		Stage:        stage,
		Partition:    partition,
		Attempt:      attempt,
		InstanceULID: ulid.Make(),
	}
}

func (id ID) String() string {
	return fmt.Sprintf("%s.%d.%d.%d.%s", id.Query, id.Stage, id.Partition, id.Attempt, id.InstanceULID)
}

// TraceToken is an opaque string set once per task for failure-injection
// routing. The zero value means no token has been set.
type TraceToken string

// PlanNodeID identifies a node within a task's plan fragment. The concrete
// shape of a plan fragment is owned by the (external) planner; the
// coordinator only needs an opaque, comparable identifier for it.
type PlanNodeID string

// BufferID identifies one of a task's output buffer partitions, addressed
// by downstream consumers in GetResults/AcknowledgeResults/DestroyResults.
type BufferID int
