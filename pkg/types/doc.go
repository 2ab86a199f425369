/*
Package types defines the core data structures shared by every layer of the
scheduler: offers and resources coming from the master, TaskInfo/TaskStatus
describing launched work, the ServiceSpec declarative model, and the
Plan/Phase/Step state machine that tracks deployment progress.

# Resources and reservations

A Resource is typed (cpus/mem/disk/ports), carries a role, and optionally a
Reservation — role + principal + a generated resource-id. The resource-id is
the durable handle tying a resource to a task across process restarts: it is
the join key the evaluator uses to prefer re-using an existing reservation
over minting a new one.

# Step state machine

	PENDING -> PREPARED -> STARTING -> STARTED -> COMPLETE
	   \           \            \           \
	    \-----------\------------\-----------\--> ERROR
	                                 (externally blocked) -> WAITING

PENDING moves to PREPARED once a PodInstanceRequirement is produced;
PREPARED to STARTING once the evaluator yields accepted recommendations;
STARTING to STARTED once the task's status reaches RUNNING; STARTED to
COMPLETE; any state but COMPLETE to ERROR on a terminal, non-recoverable
failure. The transition table in pkg/plan enforces this: COMPLETE is
reachable only from STARTED, never directly from an earlier state.

# Goal overrides

(override, progress) pairs form a 4x3 table of legal transitions, enumerated
in CanTransition rather than scattered across call sites.
*/
package types
