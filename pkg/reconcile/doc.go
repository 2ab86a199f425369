/*
Package reconcile implements ImplicitReconciler, the background loop that
asks the master to resend status for every non-terminal task on an
exponentially widening interval, resetting to the floor the moment a cycle
finds something outstanding.
*/
package reconcile
