/*
Package plan implements the Plan/Phase/Step state machine (strict phase
ordering, forward-only step transitions), the PlanManager variants that
drive deploy, recovery, decommission, and uninstall lifecycles, and the
Coordinator that excludes pod names already claimed by another manager
within the same worker tick.
*/
package plan
