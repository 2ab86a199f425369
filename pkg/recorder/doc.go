/*
Package recorder implements the persist-before-publish boundary: every
accepted recommendation's TaskInfo mutation is durably recorded one record
at a time before anything reaches the driver.
*/
package recorder
