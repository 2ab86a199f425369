/*
Package log provides structured logging for the scheduler using zerolog.

Init configures the package-global Logger once at process start (level,
JSON vs. console output). WithComponent/WithTaskID/WithStepName/WithOfferID
derive child loggers carrying one field each. The scheduler's components use
WithComponent and add task, step, or offer fields with Str() per log call.
*/
package log
