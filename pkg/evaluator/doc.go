/*
Package evaluator implements OfferEvaluator as a pure function: given an
offer batch and a PodInstanceRequirement, it returns the recommendations
(Reserve, CreateVolume, Launch) needed to satisfy it, or a MismatchReason
when nothing in the batch fits. It touches no store and no driver; callers
decide what to do with its output.
*/
package evaluator
