/*
Package scheduler ties the evaluator, plan, recorder, and mesosapi packages
together into the running process: OfferProcessor is the bounded queue and
single worker that makes every tick's StateStore/PlanCoordinator mutation
single-threaded; PlanScheduler is what the worker runs each tick;
ServiceScheduler owns one service's lifecycle (deploy, decommission,
uninstall, the absorbing uninstall transition); FrameworkScheduler is the
sole mesosapi.EventHandler implementer, adapting driver callbacks into
calls against the rest of this package.
*/
package scheduler
